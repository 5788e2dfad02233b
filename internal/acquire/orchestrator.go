package acquire

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fbmc-quality/internal/data"
	"fbmc-quality/internal/metrics"
	"fbmc-quality/internal/model"
	"fbmc-quality/internal/timeseries"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds concurrent hour fetches.
const DefaultWorkers = 4

// ErrNoData is returned when a range yields no records at all.
var ErrNoData = errors.New("no data for requested range")

// Fetcher retrieves the raw constraint rows for one hour. An hour without a
// publication returns no rows and no error.
type Fetcher interface {
	FetchHour(ctx context.Context, hour time.Time) ([]data.RawRow, error)
}

// FetchError is a failed fetch of one hour.
type FetchError struct {
	Hour time.Time
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Hour.UTC().Format(time.RFC3339), e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AcquisitionError reports hours that could not be fetched. Partial holds every
// record that was obtained; the hours behind it are already cached, so a retry
// only fetches the failed hours.
type AcquisitionError struct {
	Failed  []*FetchError
	Partial *Series
}

func (e *AcquisitionError) Error() string {
	msgs := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		msgs = append(msgs, f.Error())
	}
	total := len(e.Failed)
	if e.Partial != nil {
		total = e.Partial.Range.Len()
	}
	return fmt.Sprintf("%d of %d hours failed: %s", len(e.Failed), total, strings.Join(msgs, "; "))
}

func (e *AcquisitionError) Unwrap() []error {
	out := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		out[i] = f
	}
	return out
}

// Series is the merged hourly record set for a range.
type Series struct {
	Range   timeseries.TimeRange `json:"range"`
	Records []model.CnecRecord   `json:"records"`
	Status  CacheStatus          `json:"cache_status"`
	// CachedHours were served from the cache, FetchedHours came from upstream
	// and EmptyHours were fetched but had no publication.
	CachedHours  []time.Time `json:"cached_hours"`
	FetchedHours []time.Time `json:"fetched_hours"`
	EmptyHours   []time.Time `json:"empty_hours,omitempty"`
	Persisted    int         `json:"persisted"`
}

// Orchestrator fills cache gaps from a Fetcher and returns merged series.
type Orchestrator struct {
	Fetcher    Fetcher
	Store      RecordStore
	Normalizer *data.Normalizer
	Workers    int
}

// NewOrchestrator wires an orchestrator. store may be nil to run uncached.
func NewOrchestrator(f Fetcher, store RecordStore, zones *data.ZoneTable, workers int) *Orchestrator {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Orchestrator{Fetcher: f, Store: store, Normalizer: data.NewNormalizer(zones), Workers: workers}
}

type hourResult struct {
	hour      time.Time
	records   []model.CnecRecord
	persisted int
	err       error
}

// Acquire returns every record in r. Cached hours are never fetched; each
// missing hour is fetched once, normalised, persisted and merged in.
//
// If any hour fails, the error is an *AcquisitionError carrying the partial
// series. If no hour has data, the error is ErrNoData.
func (o *Orchestrator) Acquire(ctx context.Context, r timeseries.TimeRange) (*Series, error) {
	rc := (&Reconciler{Store: o.Store, Dataset: "jao"}).Reconcile(ctx, r)

	series := &Series{Range: r, Status: rc.Status, EmptyHours: rc.Empty}
	if rc.Status != CacheUnavailable {
		skip := timeseries.HourSet(rc.Missing)
		for _, h := range rc.Empty {
			skip[h] = struct{}{}
		}
		series.CachedHours = timeseries.Missing(rc.Hours, skip)
	}

	if len(rc.Missing) == 0 {
		if len(rc.Cached) == 0 {
			return nil, ErrNoData
		}
		series.Records = rc.Cached
		log.Info().Stringer("range", r).Int("rows", len(rc.Cached)).Msg("served from cache")
		return series, nil
	}

	persist := o.Store != nil && rc.Status != CacheUnavailable
	results := o.fetchAll(ctx, rc.Missing, persist)

	var (
		fresh  []model.CnecRecord
		failed []*FetchError
	)
	for _, res := range results {
		if res.err != nil {
			failed = append(failed, &FetchError{Hour: res.hour, Err: res.err})
			continue
		}
		if len(res.records) == 0 {
			series.EmptyHours = append(series.EmptyHours, res.hour)
		} else {
			series.FetchedHours = append(series.FetchedHours, res.hour)
		}
		series.Persisted += res.persisted
		fresh = append(fresh, res.records...)
	}
	series.Records = Merge(rc.Cached, fresh)
	if persist {
		o.markEmpty(ctx, series.EmptyHours[len(rc.Empty):])
	}

	log.Info().Stringer("range", r).Str("cache", rc.Status.String()).
		Int("fetched", len(series.FetchedHours)).Int("empty", len(series.EmptyHours)).
		Int("failed", len(failed)).Int("rows", len(series.Records)).Int("persisted", series.Persisted).
		Msg("acquisition finished")

	if len(failed) > 0 {
		return nil, &AcquisitionError{Failed: failed, Partial: series}
	}
	if len(series.Records) == 0 {
		return nil, ErrNoData
	}
	return series, nil
}

// markEmpty remembers fetched hours without a publication. Hours that have not
// ended yet may still be published and are left to be fetched again.
func (o *Orchestrator) markEmpty(ctx context.Context, hours []time.Time) {
	es, ok := o.Store.(EmptyHourStore)
	if !ok || len(hours) == 0 {
		return
	}
	now := time.Now()
	settled := make([]time.Time, 0, len(hours))
	for _, h := range hours {
		if !h.Add(time.Hour).After(now) {
			settled = append(settled, h)
		}
	}
	if _, err := es.MarkEmpty(ctx, settled); err != nil {
		log.Warn().Err(err).Int("hours", len(settled)).Msg("cache write of empty hours failed")
	}
}

// fetchAll fetches hours with bounded concurrency. Results keep the order of
// hours. A failed hour does not cancel the others.
func (o *Orchestrator) fetchAll(ctx context.Context, hours []time.Time, persist bool) []hourResult {
	results := make([]hourResult, len(hours))

	var g errgroup.Group
	g.SetLimit(o.Workers)
	for i, h := range hours {
		i, h := i, h
		g.Go(func() error {
			results[i] = o.fetchHour(ctx, h, persist)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) fetchHour(ctx context.Context, hour time.Time, persist bool) hourResult {
	res := hourResult{hour: hour}
	if err := ctx.Err(); err != nil {
		res.err = err
		return res
	}

	start := time.Now()
	rows, err := o.Fetcher.FetchHour(ctx, hour)
	if err != nil {
		log.Warn().Err(err).Time("hour", hour).Msg("hour fetch failed")
		res.err = err
		return res
	}

	recs, stats := o.Normalizer.Normalize(rows, hour)
	recs = keepHour(recs, hour)
	recordDrops(stats)

	if persist && len(recs) > 0 {
		n, err := o.Store.PutRecords(ctx, recs)
		if err != nil {
			// the data is still good, only the cache write failed
			log.Warn().Err(err).Time("hour", hour).Msg("cache write failed")
		} else {
			res.persisted = n
			metrics.RowsPersisted.WithLabelValues("jao").Add(float64(n))
		}
	}

	log.Debug().Time("hour", hour).Int("rows", len(rows)).Int("kept", len(recs)).
		Int("persisted", res.persisted).Dur("duration", time.Since(start)).Msg("hour acquired")
	if len(stats.UnknownZones) > 0 {
		log.Warn().Time("hour", hour).Strs("zones", stats.UnknownZones).Msg("ptdf columns for unknown zones")
	}
	res.records = recs
	return res
}

// keepHour drops records whose timestamp disagrees with the hour they were
// fetched for. The requested hour is what the cache is reconciled on.
func keepHour(recs []model.CnecRecord, hour time.Time) []model.CnecRecord {
	out := recs[:0]
	for _, r := range recs {
		if r.Time.Equal(hour) {
			out = append(out, r)
		}
	}
	if dropped := len(recs) - len(out); dropped > 0 {
		metrics.RowsDropped.WithLabelValues("hour_mismatch").Add(float64(dropped))
		log.Warn().Time("hour", hour).Int("rows", dropped).Msg("rows timestamped outside requested hour")
	}
	return out
}

func recordDrops(stats data.IngestStats) {
	if stats.MissingName > 0 {
		metrics.RowsDropped.WithLabelValues("missing_name").Add(float64(stats.MissingName))
	}
	if stats.Duplicates > 0 {
		metrics.RowsDropped.WithLabelValues("duplicate").Add(float64(stats.Duplicates))
	}
	if stats.Invalid > 0 {
		metrics.RowsDropped.WithLabelValues("invalid").Add(float64(stats.Invalid))
	}
}
