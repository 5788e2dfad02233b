// Package analysis measures how well the linear PTDF model explains observed
// flows on critical network elements.
//
// For a CNEC in hour t with zone sensitivities ptdf and net positions np:
//
//	predicted(t) = Σ_z ptdf_z(t)·np_z(t) + Fall(t)
//	error(t)     = observed(t) − predicted(t)
//	score(t)     = |error(t)| / |Fmax(t) − observed(t)|
//	margin(t)    = |(Fmax(t) − observed(t)) / (Fmax(t) − Fref(t))|
//
// The sum runs over zones present on both sides; a zone missing from either
// contributes nothing. A zero denominator yields +Inf rather than an error.
package analysis

import (
	"fmt"
	"math"
	"sort"
	"time"

	"fbmc-quality/internal/model"
)

// AlignmentError means two series passed to the engine do not cover the same
// (CNEC, hour) keys.
type AlignmentError struct {
	OnlyRecords  []model.RowKey
	OnlyObserved []model.RowKey
	Duplicates   []model.RowKey
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("series not aligned: %d keys only in records, %d only in observed flows, %d duplicated",
		len(e.OnlyRecords), len(e.OnlyObserved), len(e.Duplicates))
}

// PredictedFlow computes the linearised flow of every record under nps.
// Output follows the order of records.
func PredictedFlow(records []model.CnecRecord, nps model.NetPositions) []model.FlowValue {
	out := make([]model.FlowValue, len(records))
	for i, r := range records {
		out[i] = model.FlowValue{CnecID: r.CnecID, Time: r.Time, Flow: predict(r, nps[r.Time.UTC()])}
	}
	return out
}

func predict(r model.CnecRecord, np model.NetPosition) float64 {
	sum := 0.0
	for zone, ptdf := range r.Ptdfs {
		if v, ok := np.Zones[zone]; ok {
			sum += ptdf * v
		}
	}
	return sum + r.Fall
}

// LinearisationError returns observed − predicted per (CNEC, hour), in the
// order of records. records and observed must carry exactly the same keys.
func LinearisationError(records []model.CnecRecord, nps model.NetPositions, observed []model.FlowValue) ([]model.FlowValue, error) {
	obs, err := alignedObserved(records, observed)
	if err != nil {
		return nil, err
	}
	out := make([]model.FlowValue, len(records))
	for i, r := range records {
		out[i] = model.FlowValue{CnecID: r.CnecID, Time: r.Time, Flow: obs[i] - predict(r, nps[r.Time.UTC()])}
	}
	return out, nil
}

// Vulnerability computes the vulnerability score and basecase relative margin
// per (CNEC, hour), in the order of records.
func Vulnerability(records []model.CnecRecord, nps model.NetPositions, observed []model.FlowValue) ([]model.VulnerabilityResult, error) {
	obs, err := alignedObserved(records, observed)
	if err != nil {
		return nil, err
	}
	out := make([]model.VulnerabilityResult, len(records))
	for i, r := range records {
		predicted := predict(r, nps[r.Time.UTC()])
		linErr := obs[i] - predicted
		ramObs := r.Fmax - obs[i]
		ramBase := r.Fmax - r.Fref
		out[i] = model.VulnerabilityResult{
			CnecID:                 r.CnecID,
			Time:                   r.Time,
			ObservedFlow:           obs[i],
			LinearisedFlow:         predicted,
			LinearisationError:     linErr,
			VulnerabilityScore:     ratio(linErr, ramObs),
			BasecaseRelativeMargin: ratio(ramObs, ramBase),
		}
	}
	return out, nil
}

// ratio is |num/den|, with +Inf for a zero denominator (0/0 included).
func ratio(num, den float64) float64 {
	if den == 0 {
		return math.Inf(1)
	}
	return math.Abs(num / den)
}

// alignedObserved returns observed values in the order of records, or an
// AlignmentError if the key sets differ or either side repeats a key.
func alignedObserved(records []model.CnecRecord, observed []model.FlowValue) ([]float64, error) {
	byKey := make(map[model.RowKey]float64, len(observed))
	aerr := &AlignmentError{}
	for _, o := range observed {
		k := normKey(o.CnecID, o.Time)
		if _, dup := byKey[k]; dup {
			aerr.Duplicates = append(aerr.Duplicates, k)
			continue
		}
		byKey[k] = o.Flow
	}

	out := make([]float64, len(records))
	used := make(map[model.RowKey]struct{}, len(records))
	for i, r := range records {
		k := normKey(r.CnecID, r.Time)
		if _, dup := used[k]; dup {
			aerr.Duplicates = append(aerr.Duplicates, k)
			continue
		}
		used[k] = struct{}{}
		v, ok := byKey[k]
		if !ok {
			aerr.OnlyRecords = append(aerr.OnlyRecords, k)
			continue
		}
		out[i] = v
	}
	for k := range byKey {
		if _, ok := used[k]; !ok {
			aerr.OnlyObserved = append(aerr.OnlyObserved, k)
		}
	}

	if len(aerr.OnlyRecords)+len(aerr.OnlyObserved)+len(aerr.Duplicates) > 0 {
		sortKeys(aerr.OnlyRecords)
		sortKeys(aerr.OnlyObserved)
		sortKeys(aerr.Duplicates)
		return nil, aerr
	}
	return out, nil
}

// Align restricts records, observed flows and net positions to the keys all
// three have in common: a record is kept when an observed value exists for its
// (CNEC, hour) and net positions exist for its hour. Outputs are ordered by
// hour then CNEC id and are safe to pass to LinearisationError and
// Vulnerability.
func Align(records []model.CnecRecord, observed []model.FlowValue, nps model.NetPositions) ([]model.CnecRecord, []model.FlowValue, model.NetPositions) {
	obs := make(map[model.RowKey]model.FlowValue, len(observed))
	for _, o := range observed {
		k := normKey(o.CnecID, o.Time)
		if _, dup := obs[k]; !dup {
			obs[k] = o
		}
	}

	var (
		outRecs []model.CnecRecord
		outObs  []model.FlowValue
		seen    = map[model.RowKey]struct{}{}
	)
	outNPs := model.NetPositions{}
	for _, r := range records {
		k := normKey(r.CnecID, r.Time)
		if _, dup := seen[k]; dup {
			continue
		}
		o, ok := obs[k]
		if !ok {
			continue
		}
		np, ok := nps[k.Time]
		if !ok {
			continue
		}
		seen[k] = struct{}{}
		outRecs = append(outRecs, r)
		outObs = append(outObs, o)
		outNPs[k.Time] = np
	}

	sort.SliceStable(outRecs, func(i, j int) bool { return model.Less(outRecs[i], outRecs[j]) })
	model.SortFlowValues(outObs)
	return outRecs, outObs, outNPs
}

func normKey(id string, t time.Time) model.RowKey {
	return model.RowKey{CnecID: id, Time: t.UTC()}
}

func sortKeys(keys []model.RowKey) {
	sort.Slice(keys, func(i, j int) bool {
		if !keys[i].Time.Equal(keys[j].Time) {
			return keys[i].Time.Before(keys[j].Time)
		}
		return keys[i].CnecID < keys[j].CnecID
	})
}
