package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"fbmc-quality/internal/acquire"
	"fbmc-quality/internal/report"

	"github.com/spf13/cobra"
)

func acquireCmd(g *globals) *cobra.Command {
	var (
		rng     rangeFlags
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Fill the cache for a range and report what was cached, fetched and failed",
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

			series, err := a.Orchestrator.Acquire(cmd.Context(), r)
			var acqErr *acquire.AcquisitionError
			switch {
			case errors.As(err, &acqErr) && g.cfg.Acquire.AllowPartial:
				series = acqErr.Partial
				for _, f := range acqErr.Failed {
					fmt.Fprintf(cmd.ErrOrStderr(), "failed %s: %v\n", f.Hour.Format("2006-01-02T15Z"), f.Err)
				}
			case err != nil:
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "range     %s (%d hours)\n", r, r.Len())
			fmt.Fprintf(out, "cache     %s\n", series.Status)
			fmt.Fprintf(out, "cached    %d hours\n", len(series.CachedHours))
			fmt.Fprintf(out, "fetched   %d hours (%d empty)\n", len(series.FetchedHours), len(series.EmptyHours))
			fmt.Fprintf(out, "persisted %d rows\n", series.Persisted)
			fmt.Fprintf(out, "records   %d\n", len(series.Records))

			if outPath == "" {
				return nil
			}
			if err := writeCSV(outPath, func(w io.Writer) error {
				return report.WriteSeriesCSV(w, series.Records)
			}); err != nil {
				return err
			}
			fmt.Fprintf(out, "Wrote %d rows to %s\n", len(series.Records), outPath)
			return nil
		},
	}
	rng.register(cmd)
	cmd.Flags().StringVar(&outPath, "out", "", "Optional CSV output path")
	return cmd
}

func flowsCmd(g *globals) *cobra.Command {
	var (
		rng          rangeFlags
		outPath      string
		netPositions bool
	)
	cmd := &cobra.Command{
		Use:   "flows [FROM TO]",
		Short: "Observed net flow between two zones, or observed net positions",
		Args: func(cmd *cobra.Command, args []string) error {
			if netPositions {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
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
			out := cmd.OutOrStdout()

			if netPositions {
				nps, err := a.Flows.NetPositions(cmd.Context(), r)
				if err != nil {
					return err
				}
				zones := a.Zones.Physical()
				fmt.Fprintf(out, "%-22s", "hour_utc")
				for _, z := range zones {
					fmt.Fprintf(out, " %9s", z.Code)
				}
				fmt.Fprintln(out)
				for _, h := range nps.Hours() {
					fmt.Fprintf(out, "%-22s", h.Format("2006-01-02T15:04Z"))
					for _, z := range zones {
						fmt.Fprintf(out, " %9.1f", nps[h].Zones[z.Code])
					}
					fmt.Fprintln(out)
				}
				return nil
			}

			from, to := args[0], args[1]
			points, err := a.Flows.NetFlow(cmd.Context(), from, to, r)
			if err != nil {
				return err
			}
			if outPath != "" {
				if err := writeCSV(outPath, func(w io.Writer) error {
					return report.WriteFlowsCSV(w, from, to, points)
				}); err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote %d rows to %s\n", len(points), outPath)
				return nil
			}
			for _, p := range points {
				fmt.Fprintf(out, "%s %s->%s %10.1f\n", p.Time.Format("2006-01-02T15:04Z"), from, to, p.Flow)
			}
			return nil
		},
	}
	rng.register(cmd)
	cmd.Flags().StringVar(&outPath, "out", "", "Optional CSV output path")
	cmd.Flags().BoolVar(&netPositions, "net-positions", false, "Print observed net positions of every physical zone")
	return cmd
}

// writeCSV ensures the output dir exists before writing.
func writeCSV(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return report.WriteFile(path, write)
}
