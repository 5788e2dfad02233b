package main

import (
	"testing"
	"time"

	"fbmc-quality/internal/analysis"
	"fbmc-quality/internal/data"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetPositionsFollowPayloadTimestamp(t *testing.T) {
	requested := time.Date(2023, 3, 1, 10, 0, 0, 0, time.UTC)
	stamped := requested.Add(time.Hour)
	rows := []data.RawRow{
		{"cnecName": "NO1->SE3", "contName": "", "dateTimeUtc": stamped.Format(time.RFC3339), "fmax": 1000.0, "fall": 5.0, "ptdf_NO1": 0.5},
	}
	recs, _ := data.NewNormalizer(data.DefaultZones()).Normalize(rows, requested)
	require.Len(t, recs, 1)
	require.Equal(t, stamped, recs[0].Time)

	nps := netPositionsFor(recs, map[string]float64{"NO1": 200})
	assert.Equal(t, []time.Time{stamped}, nps.Hours())

	predicted := analysis.PredictedFlow(recs, nps)
	assert.InDelta(t, 105, predicted[0].Flow, 1e-9, "net positions reach the record, not only Fall")
}

func TestParseNetPositions(t *testing.T) {
	got, err := parseNetPositions("NO1=500, SE3=-300,")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"NO1": 500, "SE3": -300}, got)

	_, err = parseNetPositions("NO1")
	assert.Error(t, err)
	_, err = parseNetPositions("NO1=lots")
	assert.Error(t, err)
}

func TestHourFromName(t *testing.T) {
	assert.Equal(t, "2023-03-01T10", hourFromName("/tmp/jao_20230301T10.json"))
	assert.Empty(t, hourFromName("payload.json"))
}
