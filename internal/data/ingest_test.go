package data

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(name, cont string, extra map[string]any) RawRow {
	r := RawRow{
		"id":          json.Number("101"),
		"cnecName":    name,
		"contName":    cont,
		"dateTimeUtc": "2023-03-01T10:00:00Z",
		"fmax":        1500.0,
		"fref":        200.0,
		"fall":        -12.5,
		"presolved":   true,
		"ptdf_NO1":    0.25,
		"ptdf_SE3":    -0.1,
		"ptdf_FI":     nil,
	}
	for k, v := range extra {
		r[k] = v
	}
	return r
}

func TestNormalizeMapsFields(t *testing.T) {
	hour := time.Date(2023, 3, 1, 10, 0, 0, 0, time.UTC)
	n := NewNormalizer(DefaultZones())

	recs, stats := n.Normalize([]RawRow{row("NO1->SE3", "BASECASE", map[string]any{
		"contingencies": []any{map[string]any{"number": 1.0}},
		"ltaMargin":     json.Number("3.5"),
	})}, hour)

	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, CnecID("NO1->SE3", "BASECASE"), rec.CnecID)
	assert.Equal(t, hour, rec.Time)
	assert.Equal(t, int64(101), rec.RawID)
	assert.Equal(t, 1500.0, rec.Fmax)
	assert.Equal(t, -12.5, rec.Fall)
	assert.True(t, rec.Presolved)
	require.NotNil(t, rec.LtaMargin)
	assert.Equal(t, 3.5, *rec.LtaMargin)
	assert.Nil(t, rec.Fcore)
	assert.Equal(t, map[string]float64{"NO1": 0.25, "SE3": -0.1}, rec.Ptdfs)
	assert.JSONEq(t, `[{"number":1}]`, rec.Contingencies)
	assert.Equal(t, 1, stats.Kept)
	assert.Empty(t, stats.UnknownZones)
}

func TestNormalizeDropsNamelessRows(t *testing.T) {
	hour := time.Date(2023, 3, 1, 10, 0, 0, 0, time.UTC)
	n := NewNormalizer(nil)

	rows := []RawRow{
		row("", "x", nil),
		row("NO1->SE3", "", nil),
		{"cnecName": nil, "fmax": 1.0},
	}
	recs, stats := n.Normalize(rows, hour)
	assert.Len(t, recs, 1)
	assert.Equal(t, 2, stats.MissingName)
	assert.Equal(t, 3, stats.Input)
}

func TestNormalizeFirstWriteWins(t *testing.T) {
	hour := time.Date(2023, 3, 1, 10, 0, 0, 0, time.UTC)
	n := NewNormalizer(nil)

	rows := []RawRow{
		row("NO1->SE3", "A", map[string]any{"fmax": 100.0}),
		row("NO2->DK1", "B", nil),
		row("NO1->SE3", "A", map[string]any{"fmax": 999.0}),
	}
	recs, stats := n.Normalize(rows, hour)
	require.Len(t, recs, 2)
	assert.Equal(t, 100.0, recs[0].Fmax)
	assert.Equal(t, "NO2->DK1", recs[1].CnecName)
	assert.Equal(t, 1, stats.Duplicates)
}

func TestNormalizeFallsBackToRequestedHour(t *testing.T) {
	hour := time.Date(2023, 3, 1, 10, 0, 0, 0, time.UTC)
	r := row("NO1->SE3", "", nil)
	delete(r, "dateTimeUtc")

	recs, _ := NewNormalizer(nil).Normalize([]RawRow{r}, hour.Add(25*time.Minute))
	require.Len(t, recs, 1)
	assert.Equal(t, hour, recs[0].Time)
}

func TestNormalizeReportsUnknownZones(t *testing.T) {
	hour := time.Date(2023, 3, 1, 10, 0, 0, 0, time.UTC)
	r := row("NO1->SE3", "", map[string]any{"ptdf_XX9": 0.3})

	recs, stats := NewNormalizer(DefaultZones()).Normalize([]RawRow{r}, hour)
	require.Len(t, recs, 1)
	assert.Equal(t, 0.3, recs[0].Ptdfs["XX9"])
	assert.Equal(t, []string{"XX9"}, stats.UnknownZones)
}

func TestNormalizeCountsUndecodableRows(t *testing.T) {
	hour := time.Date(2023, 3, 1, 10, 0, 0, 0, time.UTC)
	r := row("NO1->SE3", "", map[string]any{"fmax": "not a number"})

	recs, stats := NewNormalizer(nil).Normalize([]RawRow{r}, hour)
	assert.Empty(t, recs)
	assert.Equal(t, 1, stats.Invalid)
}
