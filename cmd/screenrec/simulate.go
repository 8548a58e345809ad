package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/screenrec/pkg/adapters/modelencoder"
	"github.com/user/screenrec/pkg/adapters/osfilesystem"
	"github.com/user/screenrec/pkg/adapters/sqlitestore"
	"github.com/user/screenrec/pkg/adapters/synthsource"
	"github.com/user/screenrec/pkg/codec"
	"github.com/user/screenrec/pkg/config"
	"github.com/user/screenrec/pkg/pipeline"
	"github.com/user/screenrec/pkg/ports"
	"github.com/user/screenrec/pkg/session"
	"github.com/user/screenrec/pkg/summarizer"
)

func simulateCommand() *cli.Command {
	flags := append(budgetFlags(),
		&cli.IntFlag{
			Name:  "days",
			Value: 1,
			Usage: l10n.T("Number of simulated days"),
		},
		&cli.Float64Flag{
			Name:  "complexity",
			Value: 1.2,
			Usage: l10n.T("Content complexity relative to the base bitrate (1.0 = exact)"),
		},
		&cli.Float64Flag{
			Name:  "noise",
			Value: 0.05,
			Usage: l10n.T("Relative per-frame size jitter"),
		},
		&cli.Uint64Flag{
			Name:  "seed",
			Value: 1,
			Usage: l10n.T("Random seed of the jitter"),
		},
		&cli.StringFlag{
			Name:     "summary",
			Usage:    l10n.T("Write a session summary to this file (.md, .json or .json.zst)"),
			Category: l10n.T(categoryOutput),
		},
	)

	return &cli.Command{
		Name:        "simulate",
		Usage:       l10n.T("Simulate recording days with a modelled encoder"),
		Description: l10n.T("Run the quality controller against a virtual encoder and clock to see how a budget converges. Nothing is written except the optional summary."),
		Flags:       flags,
		Action:      runSimulate,
	}
}

// simClock is a manually advanced clock.
type simClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *simClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *simClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type simulation struct {
	cfg       config.Config
	days      int
	model     modelencoder.Model
	start     time.Time
	frameW    int
	frameH    int
	outputDir string
	logger    ports.Logger
}

func runSimulate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := newLogger(c, cfg)

	ctx, stop := signalContext(log)
	defer stop()

	dir, err := os.MkdirTemp("", "screenrec-sim-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	sim := simulation{
		cfg:  cfg,
		days: c.Int("days"),
		model: modelencoder.Model{
			Complexity: c.Float64("complexity"),
			Noise:      c.Float64("noise"),
			Seed:       c.Uint64("seed"),
		},
		start:     time.Now().Truncate(24 * time.Hour).Add(9 * time.Hour),
		frameW:    64,
		frameH:    36,
		outputDir: dir,
		logger:    log,
	}
	sess, err := sim.run(ctx)
	if err != nil {
		return err
	}

	summary := summarizer.NewBuilder().
		WithStats(sess.Stats(), cfg.Quality).
		WithChunks(sess.Chunks()).
		WithAdjustments(sess.Adjustments()).
		Build()

	if path := c.String("summary"); path != "" {
		if err := writeSummary(path, summary); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
		log.Info("Summary saved to %s", path)
		return nil
	}
	fmt.Fprint(c.App.Writer, markdownFormatter().Format(summary))
	return nil
}

// run records sim.days days of sim.cfg.Budget.ActiveHours each, rotating on
// the virtual clock. Idle hours between days advance the clock without frames.
func (sim simulation) run(ctx context.Context) (*session.Session, error) {
	clock := &simClock{now: sim.start}
	factory := modelencoder.NewFactory(sim.model)
	provider := codec.NewProvider([]codec.Candidate{{
		Info: codec.Info{Name: "model", Codec: pipeline.CodecHEVC, Backend: codec.BackendSoftware},
		New:  factory.NewEncoder,
	}}, sim.logger)

	store, err := sqlitestore.Open(ctx, sqlitestore.MemoryPath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	sessCfg := sim.cfg.ToSessionConfig()
	sessCfg.OutputDir = sim.outputDir
	sessCfg.MinFreeBytes = 0
	sessCfg.SubmitTimeout = time.Minute

	sess, err := session.New(sessCfg, session.Deps{
		Codecs: provider,
		FS:     osfilesystem.New(),
		Store:  store,
		Logger: sim.logger,
		Clock:  clock.Now,
	})
	if err != nil {
		return nil, err
	}
	if err := sess.Start(ctx); err != nil {
		return nil, err
	}

	interval := time.Duration(float64(time.Second) / sessCfg.FrameRate)
	framesPerSegment := int(sessCfg.SegmentDuration / interval)
	segmentsPerDay := int(time.Duration(sessCfg.ActiveHoursPerDay*float64(time.Hour)) / sessCfg.SegmentDuration)
	idle := 24*time.Hour - time.Duration(segmentsPerDay)*sessCfg.SegmentDuration

	ts := clock.Now()
	segments := 0
	for day := 0; day < sim.days; day++ {
		for i := 0; i < segmentsPerDay; i++ {
			if err := ctx.Err(); err != nil {
				sess.Stop(context.WithoutCancel(ctx))
				return sess, nil
			}
			img := synthsource.Render(sim.frameW, sim.frameH, segments, ts)
			for f := 0; f < framesPerSegment; f++ {
				if err := sess.SubmitFrame(img, ts); err != nil {
					sim.logger.Debug("Frame rejected: %v", err)
				}
				ts = ts.Add(interval)
			}
			clock.Advance(time.Duration(framesPerSegment) * interval)
			segments++

			last := day == sim.days-1 && i == segmentsPerDay-1
			if last {
				break
			}
			if _, err := sess.Rotate(ctx); err != nil {
				sim.logger.Warn("Rotation could not open a new segment: %v", err)
			}
		}
		if day < sim.days-1 && idle > 0 {
			clock.Advance(idle)
			ts = ts.Add(idle)
		}
	}

	if _, err := sess.Stop(context.WithoutCancel(ctx)); err != nil {
		return sess, err
	}
	sim.logger.Info("Simulated %d segments of %s", segments, sessCfg.SegmentDuration)
	return sess, nil
}
