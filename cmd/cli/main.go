package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"fbmc-quality/internal/app"
	"fbmc-quality/internal/config"
	"fbmc-quality/internal/logging"
	"fbmc-quality/internal/timeseries"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// globals are the flags shared by every subcommand.
type globals struct {
	configPath   string
	logLevel     string
	logFormat    string
	dbPath       string
	fixturesDir  string
	workers      int
	allowPartial bool

	cfg *config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "fbmc",
		Short:         "Flow-based market coupling data quality toolkit",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "Path to YAML config")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	pf.StringVar(&g.logFormat, "log-format", "", "Log format (auto, console, json)")
	pf.StringVar(&g.dbPath, "db", "", "sqlite cache path (overrides config)")
	pf.StringVar(&g.fixturesDir, "fixtures", "", "Serve constraint data from a directory of jao_YYYYMMDDTHH.json files")
	pf.IntVar(&g.workers, "workers", 0, "Concurrent hourly fetches (0 = config)")
	pf.BoolVar(&g.allowPartial, "allow-partial", false, "Continue with the hours that succeeded when some fail")

	root.AddCommand(acquireCmd(g))
	root.AddCommand(flowsCmd(g))
	root.AddCommand(vulnerabilityCmd(g))
	root.AddCommand(rankCmd(g))
	root.AddCommand(cacheCmd(g))
	return root
}

func (g *globals) load(cmd *cobra.Command) error {
	cfg, err := config.LoadUnchecked(g.configPath)
	if err != nil {
		return err
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Logging.Format = g.logFormat
	}
	if g.dbPath != "" {
		cfg.Cache.Path = g.dbPath
	}
	if g.fixturesDir != "" {
		cfg.JAO.FixturesDir = g.fixturesDir
	}
	if g.workers > 0 {
		cfg.Acquire.Workers = g.workers
	}
	if cmd.Flags().Changed("allow-partial") {
		cfg.Acquire.AllowPartial = g.allowPartial
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	g.cfg = cfg
	return nil
}

func (g *globals) app(ctx context.Context) (*app.App, error) {
	return app.New(ctx, g.cfg)
}

// rangeFlags registers --from/--to on cmd.
type rangeFlags struct {
	from, to string
}

func (r *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.from, "from", "", "Range start, YYYY-MM-DD or RFC3339 (inclusive)")
	cmd.Flags().StringVar(&r.to, "to", "", "Range end, YYYY-MM-DD or RFC3339 (exclusive)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
}

func (r *rangeFlags) parse() (timeseries.TimeRange, error) {
	return timeseries.ParseRange(r.from, r.to)
}
