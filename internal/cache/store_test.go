package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"fbmc-quality/internal/model"
	"fbmc-quality/internal/timeseries"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "cache", "fbmc.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func rec(id string, hour int, fmax float64) model.CnecRecord {
	lta := 12.5
	return model.CnecRecord{
		CnecID:        id,
		Time:          t0.Add(time.Duration(hour) * time.Hour),
		RawID:         int64(hour),
		CnecName:      "name-" + id,
		ContName:      "cont",
		Contingencies: `[{"number":1}]`,
		Presolved:     true,
		Fmax:          fmax,
		Fref:          100,
		Fall:          -3,
		LtaMargin:     &lta,
		Ptdfs:         map[string]float64{"NO1": 0.1, "SE3": -0.2},
	}
}

func hoursRange(t *testing.T, from, to int) timeseries.TimeRange {
	t.Helper()
	r, err := timeseries.NewRange(t0.Add(time.Duration(from)*time.Hour), t0.Add(time.Duration(to)*time.Hour))
	require.NoError(t, err)
	return r
}

func TestPutAndQueryRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	in := []model.CnecRecord{rec("b", 1, 10), rec("a", 1, 20), rec("a", 0, 30)}
	n, err := s.PutRecords(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	out, err := s.QueryRecords(ctx, hoursRange(t, 0, 4))
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, rec("a", 0, 30), out[0])
	assert.Equal(t, "a", out[1].CnecID)
	assert.Equal(t, "b", out[2].CnecID)
	assert.Equal(t, time.UTC, out[0].Time.Location())
}

func TestPutRecordsIsInsertOrIgnore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.PutRecords(ctx, []model.CnecRecord{rec("a", 0, 1)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.PutRecords(ctx, []model.CnecRecord{rec("a", 0, 999), rec("a", 1, 2)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	out, err := s.QueryRecords(ctx, hoursRange(t, 0, 2))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 1.0, out[0].Fmax, "first write wins")
}

func TestConcurrentWritersOfSameHour(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.PutRecords(ctx, []model.CnecRecord{rec("a", 0, 1), rec("b", 0, 1)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	out, err := s.QueryRecords(ctx, hoursRange(t, 0, 1))
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestHours(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.PutRecords(ctx, []model.CnecRecord{rec("a", 0, 1), rec("b", 0, 1), rec("a", 2, 1), rec("a", 5, 1)})
	require.NoError(t, err)

	hours, err := s.Hours(ctx, hoursRange(t, 0, 5))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{t0, t0.Add(2 * time.Hour)}, hours)
}

func TestMarkEmpty(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.MarkEmpty(ctx, []time.Time{t0.Add(3 * time.Hour), t0.Add(time.Hour + 20*time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.MarkEmpty(ctx, []time.Time{t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.Zero(t, n, "marking twice is a no-op")

	hours, err := s.EmptyHours(ctx, hoursRange(t, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{t0.Add(time.Hour)}, hours)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.EmptyHours)
}

func TestFlows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	pts := []model.FlowPoint{{Time: t0, Flow: 10}, {Time: t0.Add(time.Hour), Flow: -4}}
	n, err := s.PutFlows(ctx, "NO1", "SE3", pts)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.PutFlows(ctx, "NO1", "SE3", []model.FlowPoint{{Time: t0, Flow: 99}})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := s.QueryFlows(ctx, "NO1", "SE3", hoursRange(t, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, pts, got)

	got, err = s.QueryFlows(ctx, "SE3", "NO1", hoursRange(t, 0, 3))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Records)
	assert.Nil(t, st.FirstHour)

	_, err = s.PutRecords(ctx, []model.CnecRecord{rec("a", 0, 1), rec("b", 0, 1), rec("a", 3, 1)})
	require.NoError(t, err)
	_, err = s.PutFlows(ctx, "A", "B", []model.FlowPoint{{Time: t0, Flow: 1}})
	require.NoError(t, err)

	st, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", st.Driver)
	assert.EqualValues(t, 3, st.Records)
	assert.EqualValues(t, 2, st.Hours)
	assert.EqualValues(t, 2, st.Cnecs)
	assert.EqualValues(t, 1, st.FlowRows)
	require.NotNil(t, st.LastHour)
	assert.Equal(t, t0.Add(3*time.Hour), *st.LastHour)
}

func TestOpenFailuresAreUnavailable(t *testing.T) {
	cases := map[string]Config{
		"no path":        {Driver: DriverSQLite},
		"no dsn":         {Driver: DriverPostgres},
		"unknown driver": {Driver: "oracle"},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Open(context.Background(), cfg)
			var ue *UnavailableError
			assert.True(t, errors.As(err, &ue), "got %v", err)
		})
	}
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.QueryRecords(context.Background(), hoursRange(t, 0, 1))
	var ue *UnavailableError
	assert.True(t, errors.As(err, &ue))
}
