package acquire

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fbmc-quality/internal/data"
	"fbmc-quality/internal/model"
	"fbmc-quality/internal/timeseries"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFlowSource struct {
	mu    sync.Mutex
	spans []timeseries.TimeRange
	flows map[[2]string]float64
	// oneSided hours are reported by the forward direction only
	oneSided map[time.Time]bool
	err      error
}

func (f *fakeFlowSource) FetchNetFlow(ctx context.Context, from, to data.Zone, r timeseries.TimeRange) (data.NetFlowSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spans = append(f.spans, r)
	if f.err != nil {
		return data.NetFlowSeries{}, f.err
	}
	v, ok := f.flows[[2]string{from.Code, to.Code}]
	if !ok {
		return data.NetFlowSeries{}, nil
	}
	var out data.NetFlowSeries
	for _, h := range r.Hours() {
		out.Points = append(out.Points, model.FlowPoint{Time: h, Flow: v})
		if !f.oneSided[h] {
			out.Complete = append(out.Complete, h)
		}
	}
	return out, nil
}

func testZones(t *testing.T) *data.ZoneTable {
	t.Helper()
	zt, err := data.ParseZones([]byte(`
zones:
  - {code: A, eic: EA, neighbours: [B, C]}
  - {code: B, eic: EB, neighbours: [A]}
  - {code: C, eic: EC, neighbours: [A]}
  - {code: A_V}
`))
	require.NoError(t, err)
	return zt
}

func TestNetFlowFetchesOnlyMissingSpans(t *testing.T) {
	src := &fakeFlowSource{flows: map[[2]string]float64{{"A", "B"}: 100}}
	store := openStore(t)
	fa := &FlowAcquirer{Source: src, Store: store, Zones: testZones(t)}
	ctx := context.Background()

	_, err := store.PutFlows(ctx, "A", "B", []model.FlowPoint{{Time: t0.Add(2 * time.Hour), Flow: 42}})
	require.NoError(t, err)

	got, err := fa.NetFlow(ctx, "A", "B", span(t, 0, 5))
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, 42.0, got[2].Flow, "cached value wins")
	assert.Equal(t, 100.0, got[4].Flow)
	assert.Equal(t, []timeseries.TimeRange{span(t, 0, 2), span(t, 3, 5)}, src.spans)

	src.spans = nil
	_, err = fa.NetFlow(ctx, "A", "B", span(t, 0, 5))
	require.NoError(t, err)
	assert.Empty(t, src.spans)
}

func TestNetFlowDoesNotCacheOneSidedHours(t *testing.T) {
	src := &fakeFlowSource{
		flows:    map[[2]string]float64{{"A", "B"}: 100},
		oneSided: map[time.Time]bool{t0.Add(time.Hour): true},
	}
	store := openStore(t)
	fa := &FlowAcquirer{Source: src, Store: store, Zones: testZones(t)}
	ctx := context.Background()

	got, err := fa.NetFlow(ctx, "A", "B", span(t, 0, 3))
	require.NoError(t, err)
	assert.Len(t, got, 3, "one-sided hour is still returned")

	cached, err := store.QueryFlows(ctx, "A", "B", span(t, 0, 3))
	require.NoError(t, err)
	require.Len(t, cached, 2)
	assert.Equal(t, t0, cached[0].Time)
	assert.Equal(t, t0.Add(2*time.Hour), cached[1].Time)

	// the late direction arrives; only the one-sided hour is fetched again
	src.spans = nil
	delete(src.oneSided, t0.Add(time.Hour))
	_, err = fa.NetFlow(ctx, "A", "B", span(t, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, []timeseries.TimeRange{span(t, 1, 2)}, src.spans)
}

func TestNetFlowUnknownZone(t *testing.T) {
	fa := &FlowAcquirer{Source: &fakeFlowSource{}, Zones: testZones(t)}
	_, err := fa.NetFlow(context.Background(), "A", "Z", span(t, 0, 1))
	assert.Error(t, err)
}

func TestNetPositions(t *testing.T) {
	src := &fakeFlowSource{flows: map[[2]string]float64{
		{"A", "B"}: 100,
		{"A", "C"}: -30,
	}}
	fa := &FlowAcquirer{Source: src, Zones: testZones(t), Workers: 2}

	nps, err := fa.NetPositions(context.Background(), span(t, 0, 2))
	require.NoError(t, err)
	require.Len(t, nps, 2)

	np := nps[t0]
	assert.Equal(t, map[string]float64{"A": 70, "B": -100, "C": 30}, np.Zones)
	assert.Equal(t, []time.Time{t0, t0.Add(time.Hour)}, nps.Hours())

	var sum float64
	for _, v := range np.Zones {
		sum += v
	}
	assert.InDelta(t, 0, sum, 1e-9)
}

func TestNetPositionsPropagatesSourceErrors(t *testing.T) {
	boom := errors.New("entsoe down")
	fa := &FlowAcquirer{Source: &fakeFlowSource{err: boom}, Zones: testZones(t)}

	_, err := fa.NetPositions(context.Background(), span(t, 0, 2))
	assert.ErrorIs(t, err, boom)
}
