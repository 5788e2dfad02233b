package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"fbmc-quality/internal/acquire"
	"fbmc-quality/internal/data"
	"fbmc-quality/internal/logging"
	"fbmc-quality/internal/timeseries"

	"github.com/rs/zerolog/log"
)

// update-zones samples recent JAO publications and appends any ptdf_<ZONE>
// column missing from the zone table as a virtual zone.
func main() {
	var (
		seedFile    = flag.String("seed", "", "Zone table to extend (default: built-in Nordic table)")
		outputPath  = flag.String("output", "./data/zones.yaml", "Output zone table path")
		hours       = flag.Int("hours", 24, "Number of hours to sample, ending at the last full hour")
		baseURL     = flag.String("base-url", "", "JAO publication tool base URL")
		fixturesDir = flag.String("fixtures", "", "Sample saved jao_YYYYMMDDTHH.json files instead of the network")
	)
	flag.Parse()
	logging.Setup(os.Getenv("LOG_LEVEL"), "auto")

	zones, err := data.LoadZones(*seedFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load seed zone table")
	}
	fmt.Printf("Loaded %d zones (%d physical)\n", len(zones.Zones), len(zones.Physical()))

	var fetcher acquire.Fetcher = data.NewJAOClient(*baseURL, data.ClientOptions{InsecureSkipVerify: true})
	if *fixturesDir != "" {
		fetcher = data.DirFetcher{Dir: *fixturesDir}
	}

	end := timeseries.FloorHour(time.Now())
	r, err := timeseries.NewRange(end.Add(-time.Duration(*hours)*time.Hour), end)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid sample window")
	}
	fmt.Printf("Sampling %s...\n", r)

	seen, ok := sample(context.Background(), fetcher, r)
	if !ok {
		log.Fatal().Msg("no hour could be sampled")
	}

	updated, added, err := zones.WithZones(seen)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to extend zone table")
	}
	for _, z := range added {
		fmt.Printf("  + %s\n", z)
	}
	fmt.Printf("Found %d zones in publications, %d new\n", len(seen), len(added))

	if err := data.SaveZones(updated, *outputPath); err != nil {
		log.Fatal().Err(err).Msg("failed to save zone table")
	}
	fmt.Printf("Saved %d zones to %s\n", len(updated.Zones), *outputPath)
}

// sample fetches each hour and collects the zones named by its ptdf columns.
// Failed hours are reported and skipped.
func sample(ctx context.Context, f acquire.Fetcher, r timeseries.TimeRange) ([]string, bool) {
	var (
		all []data.RawRow
		ok  bool
	)
	for _, h := range r.Hours() {
		rows, err := f.FetchHour(ctx, h)
		if err != nil {
			fmt.Printf("  warning: %s: %v\n", h.Format("2006-01-02T15Z"), err)
			continue
		}
		ok = true
		all = append(all, rows...)
	}
	return data.DiscoverZones(all), ok
}
