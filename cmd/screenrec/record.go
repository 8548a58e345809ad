package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/screenrec/pkg/adapters/diskspace"
	"github.com/user/screenrec/pkg/adapters/osfilesystem"
	"github.com/user/screenrec/pkg/adapters/statusserver"
	"github.com/user/screenrec/pkg/adapters/synthsource"
	"github.com/user/screenrec/pkg/codec"
	"github.com/user/screenrec/pkg/metrics"
	"github.com/user/screenrec/pkg/session"
	"github.com/user/screenrec/pkg/summarizer"
)

func recordCommand() *cli.Command {
	flags := append(configFlags(), budgetFlags()...)
	flags = append(flags,
		&cli.StringSliceFlag{
			Name:     "codec",
			Usage:    l10n.T("Codec preference, most preferred first (hevc, h264, mjpeg)"),
			Category: l10n.T(categoryBudget),
		},
		&cli.StringFlag{
			Name:     "listen",
			Usage:    l10n.T("Address of the status server (e.g., 127.0.0.1:9180)"),
			Category: l10n.T(categoryOutput),
		},
		&cli.IntFlag{
			Name:     "frames",
			Usage:    l10n.T("Stop after this many frames (0 = until interrupted)"),
			Category: l10n.T(categoryCapture),
		},
		&cli.DurationFlag{
			Name:     "duration",
			Usage:    l10n.T("Stop after this long (0 = until interrupted)"),
			Category: l10n.T(categoryCapture),
		},
		&cli.StringFlag{
			Name:     "summary",
			Usage:    l10n.T("Write a session summary to this file (.md, .json or .json.zst)"),
			Category: l10n.T(categoryOutput),
		},
	)

	return &cli.Command{
		Name:        "record",
		Usage:       l10n.T("Record the synthetic desktop into budgeted chunks"),
		Description: l10n.T("Capture frames, compress them into fixed-length chunks and adapt quality to the daily budget until interrupted."),
		Flags:       flags,
		Action:      runRecord,
	}
}

func runRecord(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := newLogger(c, cfg)

	ctx, stop := signalContext(log)
	defer stop()
	if d := c.Duration("duration"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	fs := osfilesystem.New()
	if err := fs.MkdirAll(cfg.OutputDir); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.New()
	provider := codec.NewProvider(codec.DefaultCandidates(cfg.CodecOptions()), log)

	sess, err := session.New(cfg.ToSessionConfig(), session.Deps{
		Codecs:  provider,
		FS:      fs,
		Disk:    diskspace.New(),
		Store:   store,
		Metrics: m,
		Logger:  log,
	})
	if err != nil {
		return err
	}
	if err := sess.Start(ctx); err != nil {
		return err
	}

	source, err := synthsource.New(synthsource.Config{
		Width:    cfg.Capture.Width,
		Height:   cfg.Capture.Height,
		FPS:      cfg.Capture.FPS,
		Frames:   c.Int("frames"),
		Realtime: true,
	})
	if err != nil {
		sess.Stop(context.WithoutCancel(ctx))
		return err
	}

	if cfg.Listen != "" {
		srv := statusserver.New(sess, m, log)
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.Listen); err != nil {
				log.Error("Status server stopped: %v", err)
			}
		}()
	}

	log.Info("Recording to %s with a %s daily budget", cfg.OutputDir, cfg.Budget.Daily)
	runErr := sess.Run(ctx, source)
	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
		runErr = nil
	}

	if path := c.String("summary"); path != "" {
		summary := summarizer.NewBuilder().
			WithStats(sess.Stats(), cfg.Quality).
			WithChunks(sess.Chunks()).
			WithAdjustments(sess.Adjustments()).
			Build()
		if err := writeSummary(path, summary); err != nil {
			log.Error("Failed to write summary: %v", err)
		} else {
			log.Info("Summary saved to %s", path)
		}
	}

	return runErr
}
