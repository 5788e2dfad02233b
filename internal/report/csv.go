// Package report writes acquisition and analysis results as CSV.
package report

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"fbmc-quality/internal/analysis"
	"fbmc-quality/internal/model"
)

// WriteFile creates path and hands it to write.
func WriteFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteSeriesCSV writes constraint records, one row per CNEC and hour, with a
// ptdf_<ZONE> column for every zone seen in any record.
func WriteSeriesCSV(out io.Writer, recs []model.CnecRecord) error {
	w := csv.NewWriter(out)

	zones := ptdfZones(recs)
	header := []string{
		"hour_utc",
		"cnec_id",
		"cnec_name",
		"cont_name",
		"tso",
		"direction",
		"ram",
		"fmax",
		"fref",
		"fall",
		"frm",
	}
	for _, z := range zones {
		header = append(header, "ptdf_"+z)
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, r := range recs {
		row := []string{
			fmtTime(r.Time),
			r.CnecID,
			r.CnecName,
			r.ContName,
			r.Tso,
			r.Direction,
			fmtFloat(r.RAM),
			fmtFloat(r.Fmax),
			fmtFloat(r.Fref),
			fmtFloat(r.Fall),
			fmtFloat(r.Frm),
		}
		for _, z := range zones {
			v, ok := r.Ptdf(z)
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, fmtFloat(v))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// WriteFlowsCSV writes an hourly flow series.
func WriteFlowsCSV(out io.Writer, from, to string, points []model.FlowPoint) error {
	w := csv.NewWriter(out)
	if err := w.Write([]string{"hour_utc", "from_zone", "to_zone", "flow"}); err != nil {
		return err
	}
	for _, p := range points {
		if err := w.Write([]string{fmtTime(p.Time), from, to, fmtFloat(p.Flow)}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// WriteVulnerabilityCSV writes per-hour vulnerability results.
func WriteVulnerabilityCSV(out io.Writer, cnecName string, results []model.VulnerabilityResult) error {
	w := csv.NewWriter(out)

	header := []string{
		"hour_utc",
		"cnec_id",
		"cnec_name",
		"observed_flow",
		"linearised_flow",
		"linearisation_error",
		"vulnerability_score",
		"basecase_relative_margin",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, r := range results {
		row := []string{
			fmtTime(r.Time),
			r.CnecID,
			cnecName,
			fmtFloat(r.ObservedFlow),
			fmtFloat(r.LinearisedFlow),
			fmtFloat(r.LinearisationError),
			fmtFloat(r.VulnerabilityScore),
			fmtFloat(r.BasecaseRelativeMargin),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// WriteSummaryCSV writes ranked CNEC summaries, keeping the given order.
func WriteSummaryCSV(out io.Writer, summaries []analysis.CnecSummary) error {
	w := csv.NewWriter(out)

	header := []string{
		"rank",
		"cnec_id",
		"cnec_name",
		"start_utc",
		"end_utc",
		"hours",
		"mean_vulnerability",
		"max_vulnerability",
		"mean_margin",
		"mean_abs_error",
		"rms_error",
		"degenerate_hours",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for i, s := range summaries {
		row := []string{
			strconv.Itoa(i + 1),
			s.CnecID,
			s.CnecName,
			fmtTime(s.StartUTC),
			fmtTime(s.EndUTC),
			strconv.Itoa(s.Hours),
			fmtFloat(s.MeanVulnerability),
			fmtFloat(s.MaxVulnerability),
			fmtFloat(s.MeanMargin),
			fmtFloat(s.MeanAbsError),
			fmtFloat(s.RMSError),
			strconv.Itoa(s.DegenerateHours),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func ptdfZones(recs []model.CnecRecord) []string {
	seen := map[string]struct{}{}
	for _, r := range recs {
		for z := range r.Ptdfs {
			seen[z] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for z := range seen {
		out = append(out, z)
	}
	sort.Strings(out)
	return out
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func fmtFloat(x float64) string {
	switch {
	case math.IsInf(x, 1):
		return "inf"
	case math.IsInf(x, -1):
		return "-inf"
	case math.IsNaN(x):
		return ""
	}
	return strconv.FormatFloat(x, 'f', 6, 64)
}
