package enrichment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"cropcare/internal/types"
)

func TestCache_GetPutExpire(t *testing.T) {
	clock := &mutableClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewCache(clock)
	k := KeyFor(types.ProviderWeather, &coordA, 5*time.Minute)

	_, ok := c.Get(k)
	assert.False(t, ok)

	c.Put(k, weatherAt(coordA))
	v, ok := c.Get(k)
	assert.True(t, ok)
	assert.Equal(t, weatherAt(coordA), v)

	// A different max age is a different key.
	_, ok = c.Get(KeyFor(types.ProviderWeather, &coordA, time.Minute))
	assert.False(t, ok)

	clock.Advance(5 * time.Minute)
	_, ok = c.Get(k)
	assert.False(t, ok)
	assert.Zero(t, c.Len(), "expired entry evicted on read")
}

func TestCache_DisabledByZeroMaxAgeOrNil(t *testing.T) {
	c := NewCache(nil)
	k := KeyFor(types.ProviderWeather, &coordA, 0)
	c.Put(k, 1)
	_, ok := c.Get(k)
	assert.False(t, ok)
	assert.Zero(t, c.Len())

	var nilCache *Cache
	nilCache.Put(k, 1)
	_, ok = nilCache.Get(k)
	assert.False(t, ok)
	assert.Zero(t, nilCache.InvalidateCell(coordA))
	assert.Zero(t, nilCache.Len())
}

func TestCache_InvalidateCell(t *testing.T) {
	c := NewCache(nil)
	for _, p := range []types.Provider{types.ProviderWeather, types.ProviderAirQuality, types.ProviderGeocode} {
		c.Put(KeyFor(p, &coordA, time.Hour), "a")
		c.Put(KeyFor(p, &coordB, time.Hour), "b")
	}
	c.Put(KeyFor(types.ProviderAlerts, nil, time.Hour), "global")

	assert.Equal(t, 3, c.InvalidateCell(coordA))
	assert.Equal(t, 4, c.Len())
	_, ok := c.Get(KeyFor(types.ProviderAlerts, nil, time.Hour))
	assert.True(t, ok)

	assert.Zero(t, c.InvalidateCell(coordA))
	assert.Equal(t, 4, c.Len())
}

func TestCellFor(t *testing.T) {
	assert.Equal(t, CellFor(coordA), CellFor(types.NewCoordinate(coordA.Lat, coordA.Lon, 1)))
	assert.NotEqual(t, CellFor(coordA), CellFor(coordB))
	assert.Equal(t, CacheCellLevel, CellFor(coordA).Level())
}
