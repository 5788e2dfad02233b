package acquire

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fbmc-quality/internal/data"
	"fbmc-quality/internal/metrics"
	"fbmc-quality/internal/model"
	"fbmc-quality/internal/timeseries"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// FlowSource returns observed net flows between two zones.
type FlowSource interface {
	FetchNetFlow(ctx context.Context, from, to data.Zone, r timeseries.TimeRange) (data.NetFlowSeries, error)
}

// FlowStore caches observed net flows per directed border.
type FlowStore interface {
	QueryFlows(ctx context.Context, from, to string, r timeseries.TimeRange) ([]model.FlowPoint, error)
	PutFlows(ctx context.Context, from, to string, points []model.FlowPoint) (int, error)
}

// FlowAcquirer serves observed border flows and the net positions derived from
// them, fetching only hours the cache lacks.
type FlowAcquirer struct {
	Source  FlowSource
	Store   FlowStore
	Zones   *data.ZoneTable
	Workers int
}

// NetFlow returns the observed net flow from→to for every hour of r that has
// data. Missing hours are fetched as contiguous spans, one upstream call per
// span. Only hours both directions reported are cached; a one-sided hour is
// returned but fetched again next time.
func (a *FlowAcquirer) NetFlow(ctx context.Context, from, to string, r timeseries.TimeRange) ([]model.FlowPoint, error) {
	fz, ok := a.Zones.Lookup(from)
	if !ok {
		return nil, fmt.Errorf("unknown zone %q", from)
	}
	tz, ok := a.Zones.Lookup(to)
	if !ok {
		return nil, fmt.Errorf("unknown zone %q", to)
	}

	hours := r.Hours()
	var cached []model.FlowPoint
	cacheOK := a.Store != nil
	if cacheOK {
		var err error
		cached, err = a.Store.QueryFlows(ctx, from, to, r)
		if err != nil {
			metrics.CacheUnavailable.WithLabelValues("entsoe").Inc()
			log.Warn().Err(err).Str("from", from).Str("to", to).Msg("flow cache unavailable, fetching full range")
			cached, cacheOK = nil, false
		}
	}

	present := make(map[time.Time]struct{}, len(cached))
	for _, p := range cached {
		present[p.Time] = struct{}{}
	}
	missing := timeseries.Missing(hours, present)
	metrics.CacheHours.WithLabelValues("entsoe", "hit").Add(float64(len(hours) - len(missing)))
	metrics.CacheHours.WithLabelValues("entsoe", "missing").Add(float64(len(missing)))
	if len(missing) == 0 {
		return cached, nil
	}

	byHour := make(map[time.Time]float64, len(hours))
	for _, p := range cached {
		byHour[p.Time] = p.Flow
	}
	for _, span := range timeseries.Spans(missing) {
		net, err := a.Source.FetchNetFlow(ctx, fz, tz, span)
		if err != nil {
			return nil, fmt.Errorf("net flow %s->%s %s: %w", from, to, span, err)
		}
		if complete := net.CompletePoints(); cacheOK && len(complete) > 0 {
			n, err := a.Store.PutFlows(ctx, from, to, complete)
			if err != nil {
				log.Warn().Err(err).Str("from", from).Str("to", to).Msg("flow cache write failed")
			} else {
				metrics.RowsPersisted.WithLabelValues("entsoe").Add(float64(n))
			}
		}
		for _, p := range net.Points {
			if _, seen := byHour[p.Time]; !seen {
				byHour[p.Time] = p.Flow
			}
		}
	}

	out := make([]model.FlowPoint, 0, len(byHour))
	for t, f := range byHour {
		out = append(out, model.FlowPoint{Time: t, Flow: f})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// NetPositions derives the observed net position of every physical zone as the
// sum of its net exports over all configured borders. An hour is included when
// at least one border reported it; borders silent for that hour count as zero.
func (a *FlowAcquirer) NetPositions(ctx context.Context, r timeseries.TimeRange) (model.NetPositions, error) {
	var borders [][2]string
	for _, b := range a.Zones.Borders() {
		from, _ := a.Zones.Lookup(b[0])
		to, _ := a.Zones.Lookup(b[1])
		if from.EIC != "" && to.EIC != "" {
			borders = append(borders, b)
		}
	}

	workers := a.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	var mu sync.Mutex
	flows := make(map[[2]string][]model.FlowPoint, len(borders))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, b := range borders {
		b := b
		g.Go(func() error {
			points, err := a.NetFlow(gctx, b[0], b[1], r)
			if err != nil {
				return err
			}
			mu.Lock()
			flows[b] = points
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	nps := model.NetPositions{}
	for b, points := range flows {
		for _, p := range points {
			np, ok := nps[p.Time]
			if !ok {
				np = model.NetPosition{Time: p.Time, Zones: zeroPositions(a.Zones)}
			}
			np.Zones[b[0]] += p.Flow
			np.Zones[b[1]] -= p.Flow
			nps[p.Time] = np
		}
	}
	log.Debug().Stringer("range", r).Int("borders", len(borders)).Int("hours", len(nps)).Msg("net positions derived")
	return nps, nil
}

func zeroPositions(zt *data.ZoneTable) map[string]float64 {
	out := map[string]float64{}
	for _, z := range zt.Physical() {
		out[z.Code] = 0
	}
	return out
}
