package data

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DiscoverZones returns the zone codes named by ptdf_<ZONE> columns across
// rows, sorted.
func DiscoverZones(rows []RawRow) []string {
	seen := map[string]struct{}{}
	for _, row := range rows {
		for key := range row {
			if z := strings.TrimPrefix(key, PtdfPrefix); z != key && z != "" {
				seen[z] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for z := range seen {
		out = append(out, z)
	}
	sort.Strings(out)
	return out
}

// WithZones returns a copy of the table with every unknown code appended as a
// virtual zone (no EIC, no neighbours), and the codes that were added.
func (zt *ZoneTable) WithZones(codes []string) (*ZoneTable, []string, error) {
	out := &ZoneTable{Region: zt.Region, Zones: append([]Zone(nil), zt.Zones...)}
	var added []string
	for _, c := range codes {
		if zt.Has(c) {
			continue
		}
		out.Zones = append(out.Zones, Zone{Code: c})
		added = append(added, c)
	}
	if err := out.build(); err != nil {
		return nil, nil, err
	}
	return out, added, nil
}

// SaveZones writes the table as YAML, creating the directory if needed.
func SaveZones(zt *ZoneTable, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	raw, err := yaml.Marshal(zt)
	if err != nil {
		return fmt.Errorf("failed to marshal zones: %w", err)
	}

	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write zones file: %w", err)
	}
	return nil
}
