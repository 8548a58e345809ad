package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/screenrec/pkg/adapters/logger"
	"github.com/user/screenrec/pkg/adapters/sqlitestore"
	"github.com/user/screenrec/pkg/config"
	"github.com/user/screenrec/pkg/pipeline"
	"github.com/user/screenrec/pkg/ports"
	"github.com/user/screenrec/pkg/summarizer"
)

func loadEnvFiles(c *cli.Context) error {
	if err := config.LoadEnv(c.StringSlice("env-file")...); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

// loadConfig resolves the configuration: defaults, then the file, then the
// environment, then command flags.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return cfg, fmt.Errorf("load config %s: %w", path, err)
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, fmt.Errorf("apply environment: %w", err)
	}

	if c.IsSet("output-dir") {
		cfg.OutputDir = c.String("output-dir")
	}
	if c.IsSet("db") {
		cfg.Database = c.String("db")
	}
	if c.IsSet("quality") {
		cfg.Quality = pipeline.QualityMode(c.String("quality"))
	}
	if c.IsSet("daily-budget") {
		size, err := config.ParseByteSize(c.String("daily-budget"))
		if err != nil {
			return cfg, err
		}
		cfg.Budget.Daily = size
	}
	if c.IsSet("active-hours") {
		cfg.Budget.ActiveHours = c.Float64("active-hours")
	}
	if c.IsSet("segment") {
		cfg.Capture.Segment = c.Duration("segment")
	}
	if c.IsSet("fps") {
		cfg.Capture.FPS = c.Float64("fps")
	}
	if c.IsSet("codec") {
		cfg.Codecs = c.StringSlice("codec")
	}
	if c.IsSet("listen") {
		cfg.Listen = c.String("listen")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(c *cli.Context, cfg config.Config) ports.Logger {
	if c.Bool("quiet") {
		return logger.NewNoop()
	}
	return logger.NewConsole(ports.ParseLogLevel(cfg.LogLevel))
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(log ports.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			log.Warn("Interrupted, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// openStore opens the configured database, falling back to an in-memory
// store so recording never depends on the metadata store.
func openStore(ctx context.Context, cfg config.Config, log ports.Logger) (*sqlitestore.Store, error) {
	if dir := filepath.Dir(cfg.Database); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Warn("Failed to open metadata store %s: %v", cfg.Database, err)
		}
	}
	return sqlitestore.OpenFirst(ctx, log, cfg.Database, sqlitestore.MemoryPath)
}

func markdownFormatter() *summarizer.MarkdownFormatter {
	return summarizer.NewMarkdownFormatter(
		summarizer.WithTranslator(l10n.T),
		summarizer.WithVersion(version),
	)
}

// writeSummary writes s to path, choosing the format by extension:
// .json and .json.zst are JSON, everything else Markdown.
func writeSummary(path string, s *summarizer.Summary) error {
	formatter := summarizer.FormatterFor(path, markdownFormatter())
	return summarizer.NewWriter(formatter).Write(path, s)
}

func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "output-dir",
			Aliases:  []string{"o"},
			Usage:    l10n.T("Directory for chunk files"),
			Category: l10n.T(categoryOutput),
		},
		&cli.StringFlag{
			Name:     "db",
			Usage:    l10n.T("Path to the metadata database"),
			Category: l10n.T(categoryOutput),
		},
	}
}

func budgetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "daily-budget",
			Aliases:  []string{"b"},
			Usage:    l10n.T("Storage budget per day (e.g., 2GiB, 500MiB)"),
			Category: l10n.T(categoryBudget),
		},
		&cli.Float64Flag{
			Name:     "active-hours",
			Usage:    l10n.T("Hours of recording per day the budget is spread over"),
			Category: l10n.T(categoryBudget),
		},
		&cli.StringFlag{
			Name:     "quality",
			Usage:    l10n.T("Quality mode (auto, low, medium, high, lossless)"),
			Category: l10n.T(categoryBudget),
		},
		&cli.DurationFlag{
			Name:     "segment",
			Usage:    l10n.T("Chunk length (e.g., 15m)"),
			Category: l10n.T(categoryCapture),
		},
		&cli.Float64Flag{
			Name:     "fps",
			Usage:    l10n.T("Frames captured per second"),
			Category: l10n.T(categoryCapture),
		},
	}
}
