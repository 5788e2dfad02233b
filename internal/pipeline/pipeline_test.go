package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"fbmc-quality/internal/acquire"
	"fbmc-quality/internal/data"
	"fbmc-quality/internal/model"
	"fbmc-quality/internal/timeseries"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var h0 = time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)

type fakeSeries struct {
	series *acquire.Series
	err    error
}

func (f fakeSeries) Acquire(ctx context.Context, r timeseries.TimeRange) (*acquire.Series, error) {
	return f.series, f.err
}

type fakeFlows struct {
	flows map[[2]string][]model.FlowPoint
	nps   model.NetPositions
	calls int
}

func (f *fakeFlows) NetFlow(ctx context.Context, from, to string, r timeseries.TimeRange) ([]model.FlowPoint, error) {
	f.calls++
	return f.flows[[2]string{from, to}], nil
}

func (f *fakeFlows) NetPositions(ctx context.Context, r timeseries.TimeRange) (model.NetPositions, error) {
	return f.nps, nil
}

func hour(i int) time.Time { return h0.Add(time.Duration(i) * time.Hour) }

func record(name, cont string, i int, fmax float64) model.CnecRecord {
	return model.CnecRecord{
		CnecID:   data.CnecID(name, cont),
		CnecName: name,
		ContName: cont,
		Time:     hour(i),
		Fmax:     fmax,
		Fref:     0,
		Fall:     0,
		Ptdfs:    map[string]float64{"NO1": 0.5},
	}
}

func fixture(t *testing.T) (*Loader, *fakeFlows, timeseries.TimeRange) {
	t.Helper()
	r, err := timeseries.NewRange(hour(0), hour(3))
	require.NoError(t, err)

	recs := []model.CnecRecord{
		record("NO1->SE3", "", 0, 1000), record("NO1->SE3", "", 1, 1000), record("NO1->SE3", "", 2, 1000),
		record("NO1->SE3", "Outage A", 0, 1000), record("NO1->SE3", "Outage A", 1, 1000),
		record("SE3->SE4", "", 0, 500), record("SE3->SE4", "", 1, 500),
		record("Ringhals", "", 0, 100),
	}

	nps := model.NetPositions{}
	for i := 0; i < 2; i++ {
		nps[hour(i)] = model.NetPosition{Time: hour(i), Zones: map[string]float64{"NO1": 200}}
	}
	flows := &fakeFlows{
		flows: map[[2]string][]model.FlowPoint{
			{"NO1", "SE3"}: {{Time: hour(0), Flow: 300}, {Time: hour(1), Flow: 100}, {Time: hour(2), Flow: 50}},
			{"SE3", "SE4"}: {{Time: hour(0), Flow: 400}, {Time: hour(1), Flow: 300}},
		},
		nps: nps,
	}
	l := &Loader{
		Series: fakeSeries{series: &acquire.Series{Range: r, Records: acquire.Merge(nil, recs)}},
		Flows:  flows,
		Zones:  data.DefaultZones(),
	}
	return l, flows, r
}

func TestForCnecAlignsOnCommonHours(t *testing.T) {
	l, _, r := fixture(t)
	ctx := context.Background()

	ds, err := l.LoadRange(ctx, r)
	require.NoError(t, err)

	cd, err := l.ForCnec(ctx, ds, "NO1->SE3")
	require.NoError(t, err)
	assert.Equal(t, data.CnecID("NO1->SE3", ""), cd.CnecID)
	assert.Equal(t, "NO1", cd.FromZone)
	assert.Equal(t, "SE3", cd.ToZone)
	// hour 2 has flow but no net positions
	assert.Len(t, cd.Records, 2)
	assert.Len(t, cd.Observed, 2)
	assert.Len(t, cd.NetPositions, 2)

	res, err := VulnerabilityForCnec(cd)
	require.NoError(t, err)
	require.Len(t, res, 2)
	// predicted 0.5*200 = 100; hour 0 observed 300 → error 200, margin 700
	assert.Equal(t, 200.0, res[0].LinearisationError)
	assert.InDelta(t, 200.0/700, res[0].VulnerabilityScore, 1e-12)
	assert.Zero(t, res[1].LinearisationError)
}

func TestForCnecByID(t *testing.T) {
	l, _, r := fixture(t)
	ds, err := l.LoadRange(context.Background(), r)
	require.NoError(t, err)

	id := data.CnecID("NO1->SE3", "Outage A")
	cd, err := l.ForCnec(context.Background(), ds, id)
	require.NoError(t, err)
	assert.Equal(t, id, cd.CnecID)
	assert.Len(t, cd.Records, 2)
}

func TestForCnecErrors(t *testing.T) {
	l, _, r := fixture(t)
	ds, err := l.LoadRange(context.Background(), r)
	require.NoError(t, err)

	_, err = l.ForCnec(context.Background(), ds, "does not exist")
	assert.ErrorIs(t, err, ErrUnknownCnec)

	_, err = l.ForCnec(context.Background(), ds, "Ringhals")
	assert.ErrorIs(t, err, ErrNoZones)

	l.Flows.(*fakeFlows).flows[[2]string{"SE3", "SE4"}] = nil
	_, err = l.ForCnec(context.Background(), ds, "SE3->SE4")
	assert.ErrorIs(t, err, ErrNoObservedFlow)
}

func TestLoadRangePartial(t *testing.T) {
	l, _, r := fixture(t)
	partial := l.Series.(fakeSeries).series
	acqErr := &acquire.AcquisitionError{
		Failed:  []*acquire.FetchError{{Hour: hour(2), Err: errors.New("timeout")}},
		Partial: partial,
	}
	l.Series = fakeSeries{err: acqErr}

	_, err := l.LoadRange(context.Background(), r)
	var got *acquire.AcquisitionError
	assert.True(t, errors.As(err, &got))

	l.AllowPartial = true
	ds, err := l.LoadRange(context.Background(), r)
	require.NoError(t, err)
	assert.Same(t, partial, ds.Series)
}

func TestLoadRangeWithoutNetPositions(t *testing.T) {
	l, flows, r := fixture(t)
	flows.nps = model.NetPositions{}

	_, err := l.LoadRange(context.Background(), r)
	assert.ErrorIs(t, err, ErrNoNetPositions)
}

func TestRank(t *testing.T) {
	l, flows, r := fixture(t)
	ds, err := l.LoadRange(context.Background(), r)
	require.NoError(t, err)

	ranked, err := l.Rank(context.Background(), ds)
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].MeanVulnerability, ranked[i].MeanVulnerability)
	}
	for _, s := range ranked {
		assert.NotEmpty(t, s.CnecName)
	}
	// both NO1->SE3 contingencies share one flow lookup
	assert.Equal(t, 2, flows.calls)
}
