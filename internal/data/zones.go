package data

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed zones.yaml
var defaultZonesYAML []byte

// Zone is one bidding zone or virtual hub of the capacity calculation region.
type Zone struct {
	Code       string   `yaml:"code" json:"code"`
	EIC        string   `yaml:"eic,omitempty" json:"eic,omitempty"`
	Neighbours []string `yaml:"neighbours,omitempty" json:"neighbours,omitempty"`
}

// ZoneTable is the static zone reference supplied at startup. Order is
// significant: it is the column order of net-position and PTDF vectors and the
// search order for zone names inside CNEC names.
type ZoneTable struct {
	Region string `yaml:"region" json:"region"`
	Zones  []Zone `yaml:"zones" json:"zones"`

	index map[string]int
}

// DefaultZones returns the embedded Nordic zone table.
func DefaultZones() *ZoneTable {
	zt, err := ParseZones(defaultZonesYAML)
	if err != nil {
		panic(fmt.Errorf("embedded zone table: %w", err))
	}
	return zt
}

// LoadZones reads a zone table from a YAML file. An empty path yields the
// embedded default.
func LoadZones(path string) (*ZoneTable, error) {
	if path == "" {
		return DefaultZones(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read zones file: %w", err)
	}
	zt, err := ParseZones(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse zones file %s: %w", path, err)
	}
	return zt, nil
}

// ParseZones decodes and checks a zone table.
func ParseZones(raw []byte) (*ZoneTable, error) {
	var zt ZoneTable
	if err := yaml.Unmarshal(raw, &zt); err != nil {
		return nil, err
	}
	if err := zt.build(); err != nil {
		return nil, err
	}
	return &zt, nil
}

func (zt *ZoneTable) build() error {
	if len(zt.Zones) == 0 {
		return fmt.Errorf("zone table is empty")
	}
	zt.index = make(map[string]int, len(zt.Zones))
	for i, z := range zt.Zones {
		if z.Code == "" {
			return fmt.Errorf("zone %d: code is required", i)
		}
		if _, dup := zt.index[z.Code]; dup {
			return fmt.Errorf("zone %q listed twice", z.Code)
		}
		zt.index[z.Code] = i
	}
	for _, z := range zt.Zones {
		for _, n := range z.Neighbours {
			if _, ok := zt.index[n]; !ok {
				return fmt.Errorf("zone %q: unknown neighbour %q", z.Code, n)
			}
			if n == z.Code {
				return fmt.Errorf("zone %q lists itself as neighbour", z.Code)
			}
		}
	}
	return nil
}

// Has reports whether code is in the table.
func (zt *ZoneTable) Has(code string) bool {
	_, ok := zt.index[code]
	return ok
}

// Lookup returns the zone with the given code.
func (zt *ZoneTable) Lookup(code string) (Zone, bool) {
	i, ok := zt.index[code]
	if !ok {
		return Zone{}, false
	}
	return zt.Zones[i], true
}

// Codes returns all zone codes in table order.
func (zt *ZoneTable) Codes() []string {
	out := make([]string, len(zt.Zones))
	for i, z := range zt.Zones {
		out[i] = z.Code
	}
	return out
}

// Physical returns the zones that have an EIC, i.e. that the transparency
// platform reports flows for.
func (zt *ZoneTable) Physical() []Zone {
	var out []Zone
	for _, z := range zt.Zones {
		if z.EIC != "" {
			out = append(out, z)
		}
	}
	return out
}

// Borders returns each neighbouring pair once, ordered as (a, b) with a listed
// before b in the table.
func (zt *ZoneTable) Borders() [][2]string {
	var out [][2]string
	for i, z := range zt.Zones {
		for _, n := range z.Neighbours {
			if zt.index[n] > i {
				out = append(out, [2]string{z.Code, n})
			}
		}
	}
	return out
}

// ZonesFromName finds the (from, to) pair of physical zones named in a CNEC
// name, e.g. "NO1->SE3" or "NO4 NO3 flowgate". The first pair in table order
// whose codes appear as FROM...TO wins.
func (zt *ZoneTable) ZonesFromName(cnecName string) (from, to string, ok bool) {
	physical := zt.Physical()
	for _, a := range physical {
		i := strings.Index(cnecName, a.Code)
		if i < 0 {
			continue
		}
		// at least one character between the two codes
		rest := cnecName[i+len(a.Code):]
		if len(rest) < 2 {
			continue
		}
		rest = rest[1:]
		for _, b := range physical {
			if a.Code != b.Code && strings.Contains(rest, b.Code) {
				return a.Code, b.Code, true
			}
		}
	}
	return "", "", false
}
