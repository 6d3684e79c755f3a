package location

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"cropcare/internal/types"

	"gopkg.in/yaml.v3"
)

//go:embed regions.yaml
var defaultRegionsYAML []byte

// DefaultManualAccuracyMeters is reported for manual picks when the table
// does not set one.
const DefaultManualAccuracyMeters = 500

// Region is one manually selectable place.
type Region struct {
	Name string  `yaml:"name" json:"name"`
	Lat  float64 `yaml:"lat" json:"lat"`
	Lon  float64 `yaml:"lon" json:"lon"`
}

type regionFile struct {
	AccuracyM float64  `yaml:"accuracy_m"`
	Regions   []Region `yaml:"regions"`
}

// Regions is an immutable, case-insensitive lookup table of manual regions.
type Regions struct {
	accuracy float64
	ordered  []Region
	byName   map[string]Region
}

// DefaultRegions returns the built-in table.
func DefaultRegions() *Regions {
	r, err := ParseRegions(defaultRegionsYAML)
	if err != nil {
		panic(fmt.Sprintf("load regions.yaml: %v", err))
	}
	return r
}

// LoadRegions reads a YAML table from path, or returns the built-in table
// when path is empty.
func LoadRegions(path string) (*Regions, error) {
	if path == "" {
		return DefaultRegions(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading regions file: %w", err)
	}
	return ParseRegions(data)
}

// ParseRegions decodes and validates a region table.
func ParseRegions(data []byte) (*Regions, error) {
	var f regionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse regions: %w", err)
	}
	if len(f.Regions) == 0 {
		return nil, fmt.Errorf("parse regions: table is empty")
	}
	acc := f.AccuracyM
	if acc <= 0 {
		acc = DefaultManualAccuracyMeters
	}

	r := &Regions{accuracy: acc, byName: make(map[string]Region, len(f.Regions))}
	for _, reg := range f.Regions {
		key := strings.ToLower(strings.TrimSpace(reg.Name))
		if key == "" {
			return nil, fmt.Errorf("parse regions: region without a name")
		}
		if _, dup := r.byName[key]; dup {
			return nil, fmt.Errorf("parse regions: duplicate region %q", reg.Name)
		}
		if err := (types.Coordinate{Lat: reg.Lat, Lon: reg.Lon}).Validate(); err != nil {
			return nil, fmt.Errorf("parse regions: %s: %w", reg.Name, err)
		}
		r.byName[key] = reg
		r.ordered = append(r.ordered, reg)
	}
	return r, nil
}

// Lookup returns the coordinate for a region name, carrying the manual
// accuracy.
func (r *Regions) Lookup(name string) (types.Coordinate, bool) {
	reg, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return types.Coordinate{}, false
	}
	return types.NewCoordinate(reg.Lat, reg.Lon, r.accuracy), true
}

// List returns the regions in table order.
func (r *Regions) List() []Region {
	return append([]Region(nil), r.ordered...)
}

// Names returns the sorted region names, for error messages and CLI help.
func (r *Regions) Names() []string {
	names := make([]string, 0, len(r.ordered))
	for _, reg := range r.ordered {
		names = append(names, reg.Name)
	}
	sort.Strings(names)
	return names
}
