package data

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"fbmc-quality/internal/model"
	"fbmc-quality/internal/timeseries"

	"github.com/go-playground/validator/v10"
)

// RawRow is one row object of an upstream constraint payload.
type RawRow = map[string]any

// PtdfPrefix marks per-zone sensitivity columns in the upstream payload.
const PtdfPrefix = "ptdf_"

// IngestStats reports what Normalize did with a batch.
type IngestStats struct {
	Input        int
	Kept         int
	MissingName  int
	Duplicates   int
	Invalid      int
	UnknownZones []string
}

// Normalizer turns raw upstream rows into CnecRecords.
type Normalizer struct {
	// Zones, when set, is the expected zone set. PTDF columns outside it are
	// kept but reported in IngestStats.UnknownZones.
	Zones    *ZoneTable
	validate *validator.Validate
}

func NewNormalizer(zones *ZoneTable) *Normalizer {
	return &Normalizer{Zones: zones, validate: validator.New()}
}

// Normalize converts the rows fetched for hour into records.
//
// Rows without a CNEC name are dropped. Each kept row gets its CnecID, has the
// ptdf_ prefix stripped from its sensitivity columns and is deduplicated on
// (CnecID, hour), keeping the first occurrence. Output preserves input order.
func (n *Normalizer) Normalize(rows []RawRow, hour time.Time) ([]model.CnecRecord, IngestStats) {
	stats := IngestStats{Input: len(rows)}
	hour = timeseries.FloorHour(hour)

	seen := make(map[model.RowKey]struct{}, len(rows))
	unknown := map[string]struct{}{}
	out := make([]model.CnecRecord, 0, len(rows))

	for _, row := range rows {
		name, _ := row["cnecName"].(string)
		if strings.TrimSpace(name) == "" {
			stats.MissingName++
			continue
		}

		rec, err := decodeRow(row, hour)
		if err != nil {
			stats.Invalid++
			continue
		}
		if n.validate != nil {
			if err := n.validate.Struct(rec); err != nil {
				stats.Invalid++
				continue
			}
		}

		key := rec.Key()
		if _, dup := seen[key]; dup {
			stats.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		if n.Zones != nil {
			for zone := range rec.Ptdfs {
				if !n.Zones.Has(zone) {
					unknown[zone] = struct{}{}
				}
			}
		}
		out = append(out, rec)
	}

	stats.Kept = len(out)
	for z := range unknown {
		stats.UnknownZones = append(stats.UnknownZones, z)
	}
	return out, stats
}

// decodeRow maps one raw row onto a CnecRecord. Scalar fields are decoded through
// the record's JSON tags; PTDF columns, the timestamp and the contingency list
// need special handling.
func decodeRow(row RawRow, hour time.Time) (model.CnecRecord, error) {
	scalars := make(map[string]any, len(row))
	ptdfs := make(map[string]float64)
	var contingencies string

	for key, val := range row {
		switch {
		case strings.HasPrefix(key, PtdfPrefix):
			if f, ok := toFloat(val); ok {
				ptdfs[strings.TrimPrefix(key, PtdfPrefix)] = f
			}
		case key == "contingencies":
			contingencies = rawText(val)
		case key == "dateTimeUtc":
		default:
			scalars[key] = val
		}
	}

	raw, err := json.Marshal(scalars)
	if err != nil {
		return model.CnecRecord{}, fmt.Errorf("encoding row: %w", err)
	}
	var rec model.CnecRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.CnecRecord{}, fmt.Errorf("decoding row: %w", err)
	}

	rec.Time = hour
	if s, ok := row["dateTimeUtc"].(string); ok && s != "" {
		if t, err := timeseries.ParseTime(s); err == nil {
			rec.Time = timeseries.FloorHour(t)
		}
	}
	rec.Contingencies = contingencies
	rec.Ptdfs = ptdfs
	rec.CnecID = CnecID(rec.CnecName, rec.ContName)
	return rec, nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func rawText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
