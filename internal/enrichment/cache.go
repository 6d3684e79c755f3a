package enrichment

import (
	"sync"
	"time"

	"github.com/golang/geo/s2"

	"cropcare/internal/types"
)

// CacheCellLevel is the S2 level used to round coordinates for caching.
// Level 17 cells are roughly 70 m across, so nearby fixes share entries.
const CacheCellLevel = 17

// Key identifies one cached provider result. Cell is zero for lookups that
// do not depend on a coordinate (regional alerts).
type Key struct {
	Provider types.Provider
	Cell     s2.CellID
	MaxAge   time.Duration
}

// KeyFor builds the cache key for a provider lookup at c.
func KeyFor(p types.Provider, c *types.Coordinate, maxAge time.Duration) Key {
	k := Key{Provider: p, MaxAge: maxAge}
	if c != nil {
		k.Cell = CellFor(*c)
	}
	return k
}

// CellFor rounds a coordinate to its cache cell.
func CellFor(c types.Coordinate) s2.CellID {
	return s2.CellIDFromLatLng(s2.LatLngFromDegrees(c.Lat, c.Lon)).Parent(CacheCellLevel)
}

type cacheEntry struct {
	value    any
	storedAt time.Time
}

// Cache holds successful provider results. It is an explicit object passed
// to the Aggregator; failures are never stored, so a failing provider can
// never surface a stale value.
type Cache struct {
	clock types.Clock

	mu      sync.Mutex
	entries map[Key]cacheEntry
}

// NewCache creates an empty cache. A nil clock uses the wall clock.
func NewCache(clock types.Clock) *Cache {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Cache{clock: clock, entries: make(map[Key]cacheEntry)}
}

// Get returns the value stored under k if it is younger than k.MaxAge.
// Expired entries are evicted on read.
func (c *Cache) Get(k Key) (any, bool) {
	if c == nil || k.MaxAge <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	if c.clock.Now().Sub(e.storedAt) >= k.MaxAge {
		delete(c.entries, k)
		return nil, false
	}
	return e.value, true
}

// Put stores a successful result.
func (c *Cache) Put(k Key, v any) {
	if c == nil || k.MaxAge <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[k] = cacheEntry{value: v, storedAt: c.clock.Now()}
	c.mu.Unlock()
}

// InvalidateCell drops every entry resolved for the cell containing coord.
// Called when the active coordinate moves away from it.
func (c *Cache) InvalidateCell(coord types.Coordinate) int {
	if c == nil {
		return 0
	}
	cell := CellFor(coord)
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if k.Cell == cell {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len reports the number of stored entries, including expired ones not yet
// evicted.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
