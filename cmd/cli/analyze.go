package main

import (
	"fmt"
	"io"
	"math"

	"fbmc-quality/internal/analysis"
	"fbmc-quality/internal/pipeline"
	"fbmc-quality/internal/report"

	"github.com/spf13/cobra"
)

func vulnerabilityCmd(g *globals) *cobra.Command {
	var (
		rng     rangeFlags
		cnec    string
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "vulnerability",
		Short: "Per-hour linearisation error and vulnerability of one CNEC",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := rng.parse()
			if err != nil {
				return err
			}
			a, err := g.app(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			ds, err := a.Loader.LoadRange(cmd.Context(), r)
			if err != nil {
				return err
			}
			cd, err := a.Loader.ForCnec(cmd.Context(), ds, cnec)
			if err != nil {
				return err
			}
			results, err := pipeline.VulnerabilityForCnec(cd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outPath != "" {
				if err := writeCSV(outPath, func(w io.Writer) error {
					return report.WriteVulnerabilityCSV(w, cd.CnecName, results)
				}); err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote %d rows to %s\n", len(results), outPath)
			} else {
				fmt.Fprintf(out, "%s (%s->%s) %s\n", cd.CnecName, cd.FromZone, cd.ToZone, cd.CnecID)
				fmt.Fprintf(out, "%-18s %10s %10s %10s %8s %8s\n", "hour_utc", "observed", "linear", "error", "vuln", "margin")
				for _, res := range results {
					fmt.Fprintf(out, "%-18s %10.1f %10.1f %10.1f %8s %8s\n",
						res.Time.Format("2006-01-02T15:04Z"),
						res.ObservedFlow,
						res.LinearisedFlow,
						res.LinearisationError,
						fmtRatio(res.VulnerabilityScore),
						fmtRatio(res.BasecaseRelativeMargin),
					)
				}
			}

			for _, s := range analysis.Summarize(results) {
				fmt.Fprintf(out, "hours=%d mean_vuln=%s max_vuln=%s rms_error=%.1f degenerate=%d\n",
					s.Hours, fmtRatio(s.MeanVulnerability), fmtRatio(s.MaxVulnerability), s.RMSError, s.DegenerateHours)
			}
			return nil
		},
	}
	rng.register(cmd)
	cmd.Flags().StringVar(&cnec, "cnec", "", "CNEC name or id")
	cmd.Flags().StringVar(&outPath, "out", "", "Optional CSV output path")
	_ = cmd.MarkFlagRequired("cnec")
	return cmd
}

func rankCmd(g *globals) *cobra.Command {
	var (
		rng     rangeFlags
		limit   int
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank CNECs by mean vulnerability over a range",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := rng.parse()
			if err != nil {
				return err
			}
			a, err := g.app(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			ds, err := a.Loader.LoadRange(cmd.Context(), r)
			if err != nil {
				return err
			}
			ranked, err := a.Loader.Rank(cmd.Context(), ds)
			if err != nil {
				return err
			}
			if limit > 0 && limit < len(ranked) {
				ranked = ranked[:limit]
			}

			out := cmd.OutOrStdout()
			if outPath != "" {
				if err := writeCSV(outPath, func(w io.Writer) error {
					return report.WriteSummaryCSV(w, ranked)
				}); err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote %d rows to %s\n", len(ranked), outPath)
				return nil
			}

			fmt.Fprintf(out, "%-4s %-40s %-6s %-10s %-10s %-10s %-6s\n", "rank", "cnec", "hours", "mean_vuln", "max_vuln", "rms_err", "degen")
			for i, s := range ranked {
				fmt.Fprintf(out, "%-4d %-40s %-6d %-10s %-10s %-10.1f %-6d\n",
					i+1,
					truncate(s.CnecName, 40),
					s.Hours,
					fmtRatio(s.MeanVulnerability),
					fmtRatio(s.MaxVulnerability),
					s.RMSError,
					s.DegenerateHours,
				)
			}
			return nil
		},
	}
	rng.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of CNECs to show (0 = all)")
	cmd.Flags().StringVar(&outPath, "out", "", "Optional CSV output path")
	return cmd
}

func fmtRatio(x float64) string {
	if math.IsInf(x, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.3f", x)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
