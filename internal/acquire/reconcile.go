// Package acquire turns a time range into a complete, deduplicated hourly
// series: it reads what the cache already holds, fetches only the missing
// hours, persists them and merges the result.
package acquire

import (
	"context"
	"errors"
	"time"

	"fbmc-quality/internal/cache"
	"fbmc-quality/internal/metrics"
	"fbmc-quality/internal/model"
	"fbmc-quality/internal/timeseries"

	"github.com/rs/zerolog/log"
)

// RecordStore is the part of the cache the acquisition path needs.
type RecordStore interface {
	QueryRecords(ctx context.Context, r timeseries.TimeRange) ([]model.CnecRecord, error)
	PutRecords(ctx context.Context, recs []model.CnecRecord) (int, error)
}

// EmptyHourStore remembers hours upstream answered without rows. Stores that
// implement it let the reconciler skip those hours.
type EmptyHourStore interface {
	MarkEmpty(ctx context.Context, hours []time.Time) (int, error)
	EmptyHours(ctx context.Context, r timeseries.TimeRange) ([]time.Time, error)
}

// CacheStatus tags how much of a range the cache could serve.
type CacheStatus int

const (
	CacheMiss CacheStatus = iota
	CacheHit
	CachePartial
	CacheUnavailable
)

func (s CacheStatus) String() string {
	switch s {
	case CacheHit:
		return "hit"
	case CachePartial:
		return "partial"
	case CacheUnavailable:
		return "unavailable"
	default:
		return "miss"
	}
}

func (s CacheStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Reconciliation is the outcome of comparing a range with the cache.
type Reconciliation struct {
	Range  timeseries.TimeRange
	Hours  []time.Time
	Cached []model.CnecRecord
	// Empty hours are known to have no publication.
	Empty   []time.Time
	Missing []time.Time
	Status  CacheStatus
	// Err is the cache error behind CacheUnavailable.
	Err error
}

// Reconciler compares requested hours against a cache.
type Reconciler struct {
	Store   RecordStore
	Dataset string
}

var errNoStore = errors.New("no cache configured")

// Reconcile enumerates the hours of r and splits them into cached and missing.
// An hour with at least one cached row, or one marked empty, counts as
// satisfied. A cache that cannot be read makes every hour missing.
func (rc *Reconciler) Reconcile(ctx context.Context, r timeseries.TimeRange) Reconciliation {
	hours := r.Hours()
	out := Reconciliation{Range: r, Hours: hours}

	dataset := rc.Dataset
	if dataset == "" {
		dataset = "jao"
	}

	if rc.Store == nil {
		out.Missing = hours
		out.Status = CacheUnavailable
		out.Err = &cache.UnavailableError{Op: "reconcile", Err: errNoStore}
		return out
	}

	cached, err := rc.Store.QueryRecords(ctx, r)
	if err != nil {
		metrics.CacheUnavailable.WithLabelValues(dataset).Inc()
		log.Warn().Err(err).Stringer("range", r).Msg("cache unavailable, fetching full range")
		out.Missing = hours
		out.Status = CacheUnavailable
		out.Err = err
		return out
	}

	present := make(map[time.Time]struct{}, len(hours))
	for _, rec := range cached {
		present[rec.Time.UTC()] = struct{}{}
	}
	if es, ok := rc.Store.(EmptyHourStore); ok {
		empty, err := es.EmptyHours(ctx, r)
		if err != nil {
			log.Warn().Err(err).Stringer("range", r).Msg("empty-hour markers unreadable, refetching them")
		}
		for _, h := range empty {
			if _, ok := present[h]; !ok {
				present[h] = struct{}{}
				out.Empty = append(out.Empty, h)
			}
		}
	}
	out.Cached = cached
	out.Missing = timeseries.Missing(hours, present)

	switch {
	case len(out.Missing) == 0:
		out.Status = CacheHit
	case len(out.Missing) == len(hours):
		out.Status = CacheMiss
	default:
		out.Status = CachePartial
	}

	metrics.CacheHours.WithLabelValues(dataset, "hit").Add(float64(len(hours) - len(out.Missing)))
	metrics.CacheHours.WithLabelValues(dataset, "missing").Add(float64(len(out.Missing)))
	log.Debug().Stringer("range", r).Str("status", out.Status.String()).
		Int("hours", len(hours)).Int("missing", len(out.Missing)).Int("empty", len(out.Empty)).Int("rows", len(cached)).
		Msg("cache reconciled")
	return out
}
