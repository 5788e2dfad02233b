package analysis

import (
	"math"
	"sort"
	"time"

	"fbmc-quality/internal/model"
)

// CnecSummary condenses the hourly results of one CNEC into figures you can
// rank on. Means are taken over hours with a finite value; hours where a
// margin was zero are counted in DegenerateHours instead.
type CnecSummary struct {
	CnecID   string `json:"cnec_id"`
	CnecName string `json:"cnec_name,omitempty"`

	StartUTC time.Time `json:"start_utc"`
	EndUTC   time.Time `json:"end_utc"`
	Hours    int       `json:"hours"`

	MeanVulnerability float64 `json:"mean_vulnerability"`
	MaxVulnerability  float64 `json:"max_vulnerability"`
	MeanMargin        float64 `json:"mean_basecase_relative_margin"`
	MeanAbsError      float64 `json:"mean_abs_linearisation_error"`
	RMSError          float64 `json:"rms_linearisation_error"`
	DegenerateHours   int     `json:"degenerate_hours"`
}

// Summarize groups results by CNEC. Output is ordered by CNEC id.
func Summarize(results []model.VulnerabilityResult) []CnecSummary {
	byCnec := map[string][]model.VulnerabilityResult{}
	for _, r := range results {
		byCnec[r.CnecID] = append(byCnec[r.CnecID], r)
	}
	out := make([]CnecSummary, 0, len(byCnec))
	for id, rs := range byCnec {
		out = append(out, summarize(id, rs))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CnecID < out[j].CnecID })
	return out
}

func summarize(id string, rs []model.VulnerabilityResult) CnecSummary {
	s := CnecSummary{CnecID: id, Hours: len(rs)}
	if len(rs) == 0 {
		return s
	}
	s.StartUTC, s.EndUTC = rs[0].Time, rs[0].Time

	var (
		scoreSum, marginSum, absErrSum, sqErrSum float64
		scoreN, marginN                          int
	)
	for _, r := range rs {
		if r.Time.Before(s.StartUTC) {
			s.StartUTC = r.Time
		}
		if r.Time.After(s.EndUTC) {
			s.EndUTC = r.Time
		}
		absErrSum += math.Abs(r.LinearisationError)
		sqErrSum += r.LinearisationError * r.LinearisationError

		degenerate := false
		if math.IsInf(r.VulnerabilityScore, 0) {
			degenerate = true
		} else {
			scoreSum += r.VulnerabilityScore
			scoreN++
			s.MaxVulnerability = math.Max(s.MaxVulnerability, r.VulnerabilityScore)
		}
		if math.IsInf(r.BasecaseRelativeMargin, 0) {
			degenerate = true
		} else {
			marginSum += r.BasecaseRelativeMargin
			marginN++
		}
		if degenerate {
			s.DegenerateHours++
		}
	}

	s.MeanVulnerability = meanOrInf(scoreSum, scoreN)
	s.MeanMargin = meanOrInf(marginSum, marginN)
	s.MeanAbsError = absErrSum / float64(len(rs))
	s.RMSError = math.Sqrt(sqErrSum / float64(len(rs)))
	return s
}

func meanOrInf(sum float64, n int) float64 {
	if n == 0 {
		return math.Inf(1)
	}
	return sum / float64(n)
}

// RankByVulnerability sorts summaries by mean vulnerability, most vulnerable
// first. Ties fall back to CNEC id so the order is stable across runs.
func RankByVulnerability(summaries []CnecSummary) []CnecSummary {
	out := append([]CnecSummary(nil), summaries...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MeanVulnerability != out[j].MeanVulnerability {
			return out[i].MeanVulnerability > out[j].MeanVulnerability
		}
		return out[i].CnecID < out[j].CnecID
	})
	return out
}
