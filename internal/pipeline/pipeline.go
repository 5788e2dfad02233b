// Package pipeline loads everything needed to judge one or many CNECs over a
// range: constraint records, observed net positions and observed flows, aligned
// on common hours.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"fbmc-quality/internal/acquire"
	"fbmc-quality/internal/analysis"
	"fbmc-quality/internal/data"
	"fbmc-quality/internal/model"
	"fbmc-quality/internal/timeseries"

	"github.com/rs/zerolog/log"
)

var (
	// ErrNoObservedFlow means no hour had records, observed flow and net
	// positions all at once.
	ErrNoObservedFlow = errors.New("no observed flow aligns with the constraint data")
	// ErrNoNetPositions means no observed net position could be derived.
	ErrNoNetPositions = errors.New("no observed net positions for range")
	// ErrUnknownCnec means the dataset has no CNEC with the given name or id.
	ErrUnknownCnec = errors.New("unknown cnec")
	// ErrNoZones means the CNEC name does not name a pair of bidding zones.
	ErrNoZones = errors.New("no from/to zones in cnec name")
)

// SeriesSource yields the constraint records of a range.
type SeriesSource interface {
	Acquire(ctx context.Context, r timeseries.TimeRange) (*acquire.Series, error)
}

// FlowSource yields observed flows and net positions.
type FlowSource interface {
	NetFlow(ctx context.Context, from, to string, r timeseries.TimeRange) ([]model.FlowPoint, error)
	NetPositions(ctx context.Context, r timeseries.TimeRange) (model.NetPositions, error)
}

// Loader assembles datasets.
type Loader struct {
	Series SeriesSource
	Flows  FlowSource
	Zones  *data.ZoneTable
	// AllowPartial accepts a series with failed hours instead of failing.
	AllowPartial bool
}

// Dataset is the constraint data and observed net positions of a range.
type Dataset struct {
	Range        timeseries.TimeRange
	Series       *acquire.Series
	NetPositions model.NetPositions
}

// CnecDataset is one CNEC's records with its observed flow and net positions,
// restricted to the hours all three share.
type CnecDataset struct {
	CnecID       string
	CnecName     string
	FromZone     string
	ToZone       string
	Records      []model.CnecRecord
	Observed     []model.FlowValue
	NetPositions model.NetPositions
}

// LoadRange acquires the constraint series and observed net positions of r.
func (l *Loader) LoadRange(ctx context.Context, r timeseries.TimeRange) (*Dataset, error) {
	series, err := l.Series.Acquire(ctx, r)
	if err != nil {
		var acqErr *acquire.AcquisitionError
		if !l.AllowPartial || !errors.As(err, &acqErr) {
			return nil, fmt.Errorf("constraint data: %w", err)
		}
		log.Warn().Int("failed_hours", len(acqErr.Failed)).Stringer("range", r).Msg("continuing with partial constraint data")
		series = acqErr.Partial
		if len(series.Records) == 0 {
			return nil, fmt.Errorf("constraint data: %w", err)
		}
	}

	nps, err := l.Flows.NetPositions(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("observed net positions: %w", err)
	}
	if len(nps) == 0 {
		return nil, ErrNoNetPositions
	}
	return &Dataset{Range: r, Series: series, NetPositions: nps}, nil
}

// Resolve finds the CNEC id for a name or id. A name shared by several
// contingencies resolves to the basecase (no contingency) when present,
// otherwise to the lowest id.
func (ds *Dataset) Resolve(cnec string) (id, name string, err error) {
	candidates := map[string]model.CnecRecord{}
	for _, r := range ds.Series.Records {
		if r.CnecID == cnec {
			return r.CnecID, r.CnecName, nil
		}
		if r.CnecName == cnec {
			if _, ok := candidates[r.CnecID]; !ok {
				candidates[r.CnecID] = r
			}
		}
	}
	if len(candidates) == 0 {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownCnec, cnec)
	}
	ids := make([]string, 0, len(candidates))
	for id, r := range candidates {
		if r.ContName == "" {
			return id, r.CnecName, nil
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids[0], cnec, nil
}

// Records returns the dataset's records for one CNEC id in hour order.
func (ds *Dataset) Records(cnecID string) []model.CnecRecord {
	var out []model.CnecRecord
	for _, r := range ds.Series.Records {
		if r.CnecID == cnecID {
			out = append(out, r)
		}
	}
	return out
}

// ForCnec builds the aligned dataset of one CNEC, given by name or id. The
// observed flow is the net flow between the zones named in the CNEC name.
func (l *Loader) ForCnec(ctx context.Context, ds *Dataset, cnec string) (*CnecDataset, error) {
	id, name, err := ds.Resolve(cnec)
	if err != nil {
		return nil, err
	}
	from, to, ok := l.Zones.ZonesFromName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoZones, name)
	}

	flows, err := l.Flows.NetFlow(ctx, from, to, ds.Range)
	if err != nil {
		return nil, fmt.Errorf("observed flow %s->%s: %w", from, to, err)
	}
	return alignCnec(id, name, from, to, ds.Records(id), flows, ds.NetPositions)
}

func alignCnec(id, name, from, to string, recs []model.CnecRecord, flows []model.FlowPoint, nps model.NetPositions) (*CnecDataset, error) {
	observed := make([]model.FlowValue, len(flows))
	for i, p := range flows {
		observed[i] = model.FlowValue{CnecID: id, Time: p.Time, Flow: p.Flow}
	}

	recs, observed, nps = analysis.Align(recs, observed, nps)
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoObservedFlow, name)
	}
	return &CnecDataset{
		CnecID:       id,
		CnecName:     name,
		FromZone:     from,
		ToZone:       to,
		Records:      recs,
		Observed:     observed,
		NetPositions: nps,
	}, nil
}

// VulnerabilityForCnec runs the linearisation engine on an aligned dataset.
func VulnerabilityForCnec(cd *CnecDataset) ([]model.VulnerabilityResult, error) {
	return analysis.Vulnerability(cd.Records, cd.NetPositions, cd.Observed)
}

// Rank summarises every CNEC in the dataset whose name identifies a zone pair
// and ranks them by mean vulnerability. CNECs without zones or aligned flow
// are skipped.
func (l *Loader) Rank(ctx context.Context, ds *Dataset) ([]analysis.CnecSummary, error) {
	type meta struct{ name, from, to string }
	cnecs := map[string]meta{}
	for _, r := range ds.Series.Records {
		if _, seen := cnecs[r.CnecID]; seen {
			continue
		}
		from, to, ok := l.Zones.ZonesFromName(r.CnecName)
		if !ok {
			continue
		}
		cnecs[r.CnecID] = meta{name: r.CnecName, from: from, to: to}
	}

	flowCache := map[[2]string][]model.FlowPoint{}
	var results []model.VulnerabilityResult
	names := map[string]string{}
	for id, m := range cnecs {
		key := [2]string{m.from, m.to}
		flows, ok := flowCache[key]
		if !ok {
			var err error
			flows, err = l.Flows.NetFlow(ctx, m.from, m.to, ds.Range)
			if err != nil {
				return nil, fmt.Errorf("observed flow %s->%s: %w", m.from, m.to, err)
			}
			flowCache[key] = flows
		}

		cd, err := alignCnec(id, m.name, m.from, m.to, ds.Records(id), flows, ds.NetPositions)
		if errors.Is(err, ErrNoObservedFlow) {
			continue
		}
		if err != nil {
			return nil, err
		}
		res, err := VulnerabilityForCnec(cd)
		if err != nil {
			return nil, err
		}
		results = append(results, res...)
		names[id] = m.name
	}

	summaries := analysis.Summarize(results)
	for i := range summaries {
		summaries[i].CnecName = names[summaries[i].CnecID]
	}
	log.Debug().Int("cnecs", len(summaries)).Int("skipped", len(cnecs)-len(summaries)).Msg("cnecs ranked")
	return analysis.RankByVulnerability(summaries), nil
}
