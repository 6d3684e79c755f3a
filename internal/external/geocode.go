package external

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"cropcare/internal/types"
)

// GeocodeClient resolves coordinates to a place label through a Nominatim
// compatible reverse endpoint.
type GeocodeClient struct {
	endpoint *EndpointClient
	url      string
}

// NewGeocodeClient creates a GeocodeClient.
func NewGeocodeClient(endpoint *EndpointClient, baseURL string) *GeocodeClient {
	return &GeocodeClient{endpoint: endpoint, url: baseURL}
}

type nominatimAddress struct {
	Neighbourhood string `json:"neighbourhood"`
	Suburb        string `json:"suburb"`
	City          string `json:"city"`
	Town          string `json:"town"`
	Village       string `json:"village"`
	State         string `json:"state"`
	Region        string `json:"region"`
	Country       string `json:"country"`
}

type nominatimReverse struct {
	Address *nominatimAddress `json:"address"`
	Error   string            `json:"error"`
}

// ReverseGeocode returns the label for c.
func (g *GeocodeClient) ReverseGeocode(ctx context.Context, c types.Coordinate) (*types.LocationLabel, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", formatFloat(c.Lat))
	q.Set("lon", formatFloat(c.Lon))
	q.Set("zoom", "14")
	q.Set("addressdetails", "1")

	var resp nominatimReverse
	if err := g.endpoint.GetJSON(ctx, g.url, q, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &Failure{Provider: types.ProviderGeocode, Kind: KindRejected, Err: fmt.Errorf("geocoder: %s", resp.Error)}
	}
	if resp.Address == nil {
		return nil, &Failure{Provider: types.ProviderGeocode, Kind: KindDecode, Err: fmt.Errorf("missing address")}
	}
	text := formatAddress(*resp.Address)
	if text == "" {
		return nil, &Failure{Provider: types.ProviderGeocode, Kind: KindDecode, Err: fmt.Errorf("address has no usable parts")}
	}
	return &types.LocationLabel{Text: text}, nil
}

// formatAddress joins neighborhood/suburb, city/town, state/region and
// country in that order, skipping empty and repeated parts.
func formatAddress(a nominatimAddress) string {
	parts := []string{
		firstNonEmpty(a.Neighbourhood, a.Suburb),
		firstNonEmpty(a.City, a.Town, a.Village),
		firstNonEmpty(a.State, a.Region),
		a.Country,
	}
	seen := make(map[string]bool, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		key := strings.ToLower(p)
		if p == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return strings.Join(out, ", ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
