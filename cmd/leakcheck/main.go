// Package main provides the CLI entry point for leakcheck, which replays
// identical synthetic quote batches through fresh backtest engines and records
// resident memory after each one.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"backtest-leakcheck/internal/analysis"
	"backtest-leakcheck/internal/config"
	"backtest-leakcheck/internal/data"
	"backtest-leakcheck/internal/harness"
	"backtest-leakcheck/internal/history"
	"backtest-leakcheck/internal/report"

	"github.com/spf13/cobra"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd(logger, level, harness.DefaultRegistry())
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error("leakcheck failed", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger, level *slog.LevelVar, registry *harness.Registry) *cobra.Command {
	root := &cobra.Command{
		Use:   "leakcheck",
		Short: "Memory-growth harness for the backtest engine",
		Long: `Leakcheck runs the same synthetic quote batch through a fresh engine
instance per batch, forces a full collection after each engine is released and
records resident memory. A flat series means engines are fully reclaimed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd(logger, level, registry))
	root.AddCommand(newEnginesCmd(registry))
	root.AddCommand(newReportCmd())
	root.AddCommand(newHistoryCmd())

	return root
}

func newRunCmd(logger *slog.Logger, level *slog.LevelVar, registry *harness.Registry) *cobra.Command {
	var (
		cfgPath    string
		override   config.Config
		outputJSON bool
		topSteps   int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the memory-growth measurement",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithOverrides(cfgPath, &override)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			lvl, _ := config.ParseSlogLevel(cfg.LogLevel)
			level.Set(lvl)

			return runMeasurement(cmd.Context(), logger, registry, cfg, cmd.OutOrStdout(), outputJSON, topSteps)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgPath, "config", "",
		"Path to YAML config")
	flags.StringVar(&override.TestName, "name", "",
		"Test name; the series is written to <output-dir>/<name>.csv (default memory)")
	flags.IntVar(&override.TotalItems, "total-items", 0,
		"Total quotes across all batches (default 32431360)")
	flags.IntVar(&override.BatchCount, "batch-count", 0,
		"Number of batches (default 50)")
	flags.StringVar(&override.OutputDir, "output-dir", "",
		"Directory for the persisted series (default .)")
	flags.StringVar(&override.Engine, "engine", "",
		"Registered engine to measure (default backtest)")
	flags.StringVar(&override.Timestamps, "timestamps", "",
		"Batch timestamps: reset or continuous (default reset)")
	flags.StringVar(&override.LogLevel, "log-level", "",
		"Log level: debug, info, warn, error (default info)")
	flags.Float64Var(&override.MaxGrowthGB, "max-growth-gb", 0,
		"Fail when last-minus-first memory exceeds this many GB (0 disables)")
	flags.StringVar(&override.HistoryDB, "history-db", "",
		"SQLite file to record the run in (disabled when empty)")
	flags.BoolVar(&outputJSON, "json", false,
		"Output results as JSON instead of tables")
	flags.IntVar(&topSteps, "top-steps", 3,
		"Show the N batches with the largest memory increase")

	return cmd
}

func runMeasurement(
	ctx context.Context,
	logger *slog.Logger,
	registry *harness.Registry,
	cfg *config.Config,
	w io.Writer,
	outputJSON bool,
	topSteps int,
) error {
	fixture, err := cfg.ToFixture()
	if err != nil {
		return err
	}
	spec, err := cfg.ToQuoteSpec()
	if err != nil {
		return err
	}

	factory, err := registry.Load(cfg.Engine, fixture, logger.With(slog.String("component", "engine")))
	if err != nil {
		return err
	}
	sampler, err := harness.NewProcessSampler()
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "starting measurement",
		slog.String("engine", cfg.Engine),
		slog.String("timestamps", string(cfg.TimestampMode())),
		slog.String("output_dir", cfg.OutputDir))

	loop := harness.NewLoop(harness.LoopConfig{
		Run:       cfg.ToRunConfig(),
		OutputDir: cfg.OutputDir,
		Generator: data.NewQuoteGenerator(spec, cfg.TimestampMode()),
		Factory:   factory,
		Sampler:   sampler,
		OnFailure: func(partial []harness.MeasurementRow, _ error) {
			if len(partial) > 0 {
				_ = report.Series(w, cfg.TestName+" (partial, not persisted)", partial)
			}
		},
	}, logger)

	out, err := loop.Run(ctx)
	if err != nil {
		return err
	}

	if cfg.HistoryDB != "" {
		if err := recordRun(ctx, cfg.HistoryDB, cfg.Engine, out); err != nil {
			return err
		}
		logger.InfoContext(ctx, "run recorded", slog.String("history_db", cfg.HistoryDB))
	}

	growth := analysis.ComputeGrowth(out.Rows)
	if outputJSON {
		if err := report.GenerateJSON(w, out, growth); err != nil {
			return err
		}
	} else {
		if err := report.Series(w, out.TestName, out.Rows); err != nil {
			return err
		}
		report.Summary(w, growth, cfg.MaxGrowthGB)
		report.TopSteps(w, analysis.RankStepsByGrowth(out.Rows), topSteps)
		fmt.Fprintf(w, "\nSeries written to %s\n", out.ArtifactPath)
	}

	if growth.Exceeds(cfg.MaxGrowthGB) {
		return fmt.Errorf("memory grew %.3f GB, above the %.3f GB limit", growth.DeltaGB, cfg.MaxGrowthGB)
	}
	return nil
}

func recordRun(ctx context.Context, path, engine string, out *harness.Outcome) error {
	store, err := history.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	if _, err := store.Record(ctx, engine, out); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func newEnginesCmd(registry *harness.Registry) *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "List registered engines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range registry.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newReportCmd() *cobra.Command {
	var (
		maxGrowth float64
		topSteps  int
	)

	cmd := &cobra.Command{
		Use:   "report <series.csv>",
		Short: "Summarise a persisted series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := harness.ReadCSVFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			w := cmd.OutOrStdout()
			if err := report.Series(w, args[0], rows); err != nil {
				return err
			}
			growth := analysis.ComputeGrowth(rows)
			report.Summary(w, growth, maxGrowth)
			report.TopSteps(w, analysis.RankStepsByGrowth(rows), topSteps)
			if growth.Exceeds(maxGrowth) {
				return fmt.Errorf("memory grew %.3f GB, above the %.3f GB limit", growth.DeltaGB, maxGrowth)
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&maxGrowth, "max-growth-gb", 0,
		"Fail when last-minus-first memory exceeds this many GB (0 disables)")
	cmd.Flags().IntVar(&topSteps, "top-steps", 3,
		"Show the N batches with the largest memory increase")

	return cmd
}

func newHistoryCmd() *cobra.Command {
	var (
		dbPath   string
		testName string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List runs recorded in a history database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dbPath == "" {
				return fmt.Errorf("--db is required")
			}
			store, err := history.Open(cmd.Context(), dbPath)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			runs, err := store.Recent(cmd.Context(), testName, limit)
			if err != nil {
				return err
			}
			return report.History(cmd.OutOrStdout(), runs)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&dbPath, "db", "",
		"SQLite history file written by run --history-db")
	flags.StringVar(&testName, "name", "",
		"Only show runs of this test")
	flags.IntVar(&limit, "limit", 10,
		"Maximum number of runs to show")

	return cmd
}
