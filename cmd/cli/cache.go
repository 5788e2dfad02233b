package main

import (
	"errors"
	"fmt"

	"fbmc-quality/internal/timeseries"

	"github.com/spf13/cobra"
)

func cacheCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the local cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show what the cache holds",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.app(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Store == nil {
				return errors.New("cache unavailable")
			}

			st, err := a.Store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "driver     %s\n", st.Driver)
			fmt.Fprintf(out, "records    %d\n", st.Records)
			fmt.Fprintf(out, "hours      %d\n", st.Hours)
			fmt.Fprintf(out, "cnecs      %d\n", st.Cnecs)
			if st.FirstHour != nil && st.LastHour != nil {
				fmt.Fprintf(out, "span       %s .. %s\n", st.FirstHour.Format("2006-01-02T15Z"), st.LastHour.Format("2006-01-02T15Z"))
			}
			fmt.Fprintf(out, "flow rows  %d\n", st.FlowRows)
			fmt.Fprintf(out, "empty      %d\n", st.EmptyHours)
			return nil
		},
	})
	cmd.AddCommand(coverageCmd(g))
	return cmd
}

func coverageCmd(g *globals) *cobra.Command {
	var rng rangeFlags
	cmd := &cobra.Command{
		Use:   "coverage",
		Short: "List which hours of a range are cached, known empty or missing",
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
			if a.Store == nil {
				return errors.New("cache unavailable")
			}

			cached, err := a.Store.Hours(cmd.Context(), r)
			if err != nil {
				return err
			}
			empty, err := a.Store.EmptyHours(cmd.Context(), r)
			if err != nil {
				return err
			}
			cachedSet, emptySet := timeseries.HourSet(cached), timeseries.HourSet(empty)

			out := cmd.OutOrStdout()
			missing := 0
			for _, h := range r.Hours() {
				state := "missing"
				if _, ok := cachedSet[h]; ok {
					state = "cached"
				} else if _, ok := emptySet[h]; ok {
					state = "empty"
				} else {
					missing++
				}
				fmt.Fprintf(out, "%s  %s\n", h.Format("2006-01-02T15Z"), state)
			}
			fmt.Fprintf(out, "%d of %d hours cached, %d empty, %d missing\n", len(cached), r.Len(), len(empty), missing)
			return nil
		},
	}
	rng.register(cmd)
	return cmd
}
