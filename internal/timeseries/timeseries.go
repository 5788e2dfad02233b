// Package timeseries turns time ranges into hourly buckets and works out which
// buckets are still missing.
package timeseries

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// InvalidRangeError reports a range whose start is not before its end once both
// ends are normalised to UTC hours. It is always a caller bug.
type InvalidRangeError struct {
	From time.Time
	To   time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid time range: from %s is not before to %s",
		e.From.Format(time.RFC3339), e.To.Format(time.RFC3339))
}

// TimeRange is the half-open interval [From, To), hour aligned, in UTC.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// NewRange normalises from and to to UTC, truncates both to the hour and checks
// that from < to.
func NewRange(from, to time.Time) (TimeRange, error) {
	f := FloorHour(from)
	t := FloorHour(to)
	if !f.Before(t) {
		return TimeRange{}, &InvalidRangeError{From: f, To: t}
	}
	return TimeRange{From: f, To: t}, nil
}

// ParseRange parses both ends with ParseTime and builds a TimeRange.
func ParseRange(from, to string) (TimeRange, error) {
	f, err := ParseTime(from)
	if err != nil {
		return TimeRange{}, fmt.Errorf("parsing from: %w", err)
	}
	t, err := ParseTime(to)
	if err != nil {
		return TimeRange{}, fmt.Errorf("parsing to: %w", err)
	}
	return NewRange(f, t)
}

// FloorHour converts t to UTC and truncates it to the start of its hour.
func FloorHour(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime accepts a date (midnight assumed) or a timestamp with or without an
// offset. Timestamps without an offset are read as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q (expected YYYY-MM-DD or RFC3339)", s)
}

// Len is the number of hourly buckets in the range.
func (r TimeRange) Len() int {
	return int(r.To.Sub(r.From) / time.Hour)
}

// Contains reports whether t falls inside [From, To).
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && t.Before(r.To)
}

// Hours enumerates the range as ascending hour instants.
func (r TimeRange) Hours() []time.Time {
	n := r.Len()
	if n <= 0 {
		return nil
	}
	out := make([]time.Time, 0, n)
	for cur := r.From; cur.Before(r.To); cur = cur.Add(time.Hour) {
		out = append(out, cur)
	}
	return out
}

func (r TimeRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.From.Format(time.RFC3339), r.To.Format(time.RFC3339))
}

// Enumerate is NewRange followed by Hours.
func Enumerate(from, to time.Time) ([]time.Time, error) {
	r, err := NewRange(from, to)
	if err != nil {
		return nil, err
	}
	return r.Hours(), nil
}

// HourSet builds a lookup set from hour instants.
func HourSet(hours []time.Time) map[time.Time]struct{} {
	set := make(map[time.Time]struct{}, len(hours))
	for _, h := range hours {
		set[FloorHour(h)] = struct{}{}
	}
	return set
}

// Missing returns the hours not present in present, ascending.
func Missing(hours []time.Time, present map[time.Time]struct{}) []time.Time {
	var out []time.Time
	for _, h := range hours {
		if _, ok := present[FloorHour(h)]; !ok {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Spans coalesces hour instants into contiguous ranges. Input need not be sorted;
// duplicates are ignored.
func Spans(hours []time.Time) []TimeRange {
	if len(hours) == 0 {
		return nil
	}
	sorted := make([]time.Time, len(hours))
	for i, h := range hours {
		sorted[i] = FloorHour(h)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	var out []TimeRange
	cur := TimeRange{From: sorted[0], To: sorted[0].Add(time.Hour)}
	for _, h := range sorted[1:] {
		switch {
		case h.Before(cur.To):
			// duplicate
		case h.Equal(cur.To):
			cur.To = h.Add(time.Hour)
		default:
			out = append(out, cur)
			cur = TimeRange{From: h, To: h.Add(time.Hour)}
		}
	}
	return append(out, cur)
}
