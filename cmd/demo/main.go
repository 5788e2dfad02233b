package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fbmc-quality/internal/analysis"
	"fbmc-quality/internal/data"
	"fbmc-quality/internal/model"
	"fbmc-quality/internal/report"
	"fbmc-quality/internal/timeseries"
)

// Demo:
// - Load one saved JAO hour (jao_YYYYMMDDTHH.json)
// - Normalise it into CNEC records
// - Linearise each CNEC against hand-written net positions to show how the
//   PTDF model fits together
func main() {
	dataPath := flag.String("data", "", "Path to a saved JAO hour payload")
	hourFlag := flag.String("hour", "", "Hour of the payload (default: from the file name)")
	npFlag := flag.String("np", "NO1=500,NO2=-200,SE3=-300", "Net positions as ZONE=MW pairs")
	n := flag.Int("n", 12, "Number of CNECs to show")
	outCSV := flag.String("out", "", "Optional path to write the normalised records as CSV")
	flag.Parse()

	if *dataPath == "" {
		fmt.Fprintln(os.Stderr, "--data is required")
		os.Exit(2)
	}

	hourText := *hourFlag
	if hourText == "" {
		hourText = hourFromName(*dataPath)
	}
	hour, err := timeseries.ParseTime(hourText)
	if err != nil {
		panic(fmt.Errorf("cannot tell the hour of %s, pass --hour: %w", *dataPath, err))
	}
	hour = timeseries.FloorHour(hour)

	rows, err := data.LoadConstraintJSON(*dataPath)
	if err != nil {
		panic(err)
	}
	recs, stats := data.NewNormalizer(data.DefaultZones()).Normalize(rows, hour)
	if len(recs) == 0 {
		panic("no usable rows in payload")
	}
	fmt.Printf("Normalised %d/%d rows for %s (duplicates=%d nameless=%d invalid=%d)\n",
		stats.Kept, stats.Input, hour.Format("2006-01-02T15Z"), stats.Duplicates, stats.MissingName, stats.Invalid)
	if len(stats.UnknownZones) > 0 {
		fmt.Printf("Unknown zones: %s\n", strings.Join(stats.UnknownZones, ", "))
	}

	zones, err := parseNetPositions(*npFlag)
	if err != nil {
		panic(err)
	}
	nps := netPositionsFor(recs, zones)
	for _, t := range nps.Hours() {
		if !t.Equal(hour) {
			fmt.Printf("Payload is stamped %s, not %s; using the payload hour\n", t.Format("2006-01-02T15Z"), hour.Format("2006-01-02T15Z"))
		}
	}
	predicted := analysis.PredictedFlow(recs, nps)

	limit := *n
	if limit <= 0 || limit > len(recs) {
		limit = len(recs)
	}
	fmt.Printf("%-40s %-20s %9s %9s %9s %10s\n", "cnec", "contingency", "fmax", "fref", "fall", "predicted")
	for i := 0; i < limit; i++ {
		r := recs[i]
		fmt.Printf("%-40.40s %-20.20s %9.1f %9.1f %9.1f %10.1f\n",
			r.CnecName, r.ContName, r.Fmax, r.Fref, r.Fall, predicted[i].Flow)
	}

	if *outCSV != "" {
		if err := os.MkdirAll(filepath.Dir(*outCSV), 0o755); err != nil {
			panic(err)
		}
		if err := report.WriteFile(*outCSV, func(w io.Writer) error {
			return report.WriteSeriesCSV(w, recs)
		}); err != nil {
			panic(err)
		}
		fmt.Printf("Wrote %d rows to %s\n", len(recs), *outCSV)
	}
}

// netPositionsFor applies the same zone positions to every hour the records are
// stamped with.
func netPositionsFor(recs []model.CnecRecord, zones map[string]float64) model.NetPositions {
	nps := model.NetPositions{}
	for _, r := range recs {
		t := r.Time.UTC()
		if _, ok := nps[t]; !ok {
			nps[t] = model.NetPosition{Time: t, Zones: zones}
		}
	}
	return nps
}

// hourFromName reads 20230301T10 out of jao_20230301T10.json.
func hourFromName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base = strings.TrimPrefix(base, "jao_")
	if len(base) != len("20060102T15") {
		return ""
	}
	return base[:4] + "-" + base[4:6] + "-" + base[6:8] + "T" + base[9:11]
}

func parseNetPositions(s string) (map[string]float64, error) {
	out := map[string]float64{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		zone, mw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("bad net position %q, want ZONE=MW", pair)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(mw), 64)
		if err != nil {
			return nil, fmt.Errorf("bad net position %q: %w", pair, err)
		}
		out[strings.TrimSpace(zone)] = v
	}
	return out, nil
}
