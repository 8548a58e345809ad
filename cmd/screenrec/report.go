package main

import (
	"fmt"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/screenrec/pkg/adapters/sqlitestore"
	"github.com/user/screenrec/pkg/config"
	"github.com/user/screenrec/pkg/pipeline"
	"github.com/user/screenrec/pkg/storagemetrics"
	"github.com/user/screenrec/pkg/summarizer"
)

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:        "report",
		Usage:       l10n.T("Write a recording report"),
		Description: l10n.T("Build a report from the metadata database, or re-render an exported JSON summary. The output format follows the file extension: .md, .json or .json.zst."),
		Flags: append(configFlags(),
			&cli.StringFlag{
				Name:  "session",
				Usage: l10n.T("Only include chunks of this session"),
			},
			&cli.DurationFlag{
				Name:  "since",
				Value: 24 * time.Hour,
				Usage: l10n.T("Include chunks that ended within this period"),
			},
			&cli.StringFlag{
				Name:  "input",
				Usage: l10n.T("Render this JSON summary instead of reading the database"),
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"w"},
				Usage:   l10n.T("Write the report to this file instead of stdout"),
			},
		),
		Action: runReport,
	}
}

func runReport(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	var summary *summarizer.Summary
	if input := c.String("input"); input != "" {
		summary, err = summarizer.ReadJSON(input)
	} else {
		summary, err = reportFromStore(c, cfg, time.Now)
	}
	if err != nil {
		return err
	}

	if path := c.String("out"); path != "" {
		if err := writeSummary(path, summary); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Fprintln(c.App.Writer, l10n.F("Summary saved to %s", path))
		return nil
	}
	fmt.Fprint(c.App.Writer, markdownFormatter().Format(summary))
	return nil
}

func reportFromStore(c *cli.Context, cfg config.Config, now func() time.Time) (*summarizer.Summary, error) {
	store, err := sqlitestore.Open(c.Context, cfg.Database)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	chunks, err := store.ListChunks(c.Context, now().Add(-c.Duration("since")))
	if err != nil {
		return nil, err
	}
	if id := c.String("session"); id != "" {
		chunks = filterSession(chunks, id)
	}
	recs, err := store.Adjustments(c.Context, 0)
	if err != nil {
		return nil, err
	}
	recs = adjustmentsFor(recs, chunks)

	agg := storagemetrics.New(storagemetrics.Config{
		Retention:   time.Duration(cfg.Budget.RetentionDays) * 24 * time.Hour,
		DailyBudget: int64(cfg.Budget.Daily),
		AlertMargin: cfg.Budget.AlertMargin,
	})
	agg.SetClock(now)
	agg.Load(chunks)

	target := pipeline.SegmentBudget(int64(cfg.Budget.Daily), cfg.Budget.ActiveHours, cfg.Capture.Segment)
	return summarizer.NewBuilder().
		WithSession(sessionSpan(c.String("session"), chunks)).
		WithSettings(summarizer.Settings{
			QualityMode:     string(cfg.Quality),
			TargetBytes:     target,
			BaseBitrateKbps: pipeline.BaseBitrate(target, cfg.Capture.Segment),
			SegmentDuration: cfg.Capture.Segment,
			FrameRate:       cfg.Capture.FPS,
		}).
		WithChunks(chunks).
		WithAdjustments(recs).
		WithStorage(agg.Snapshot()).
		Build(), nil
}

func filterSession(chunks []pipeline.CompressedChunk, id string) []pipeline.CompressedChunk {
	out := chunks[:0]
	for _, ch := range chunks {
		if ch.SessionID == id {
			out = append(out, ch)
		}
	}
	return out
}

// adjustmentsFor keeps the decisions made after one of chunks.
func adjustmentsFor(recs []pipeline.QualityAdjustmentRecord, chunks []pipeline.CompressedChunk) []pipeline.QualityAdjustmentRecord {
	ids := make(map[string]struct{}, len(chunks))
	for _, ch := range chunks {
		ids[ch.ID()] = struct{}{}
	}
	out := make([]pipeline.QualityAdjustmentRecord, 0, len(recs))
	for _, r := range recs {
		if _, ok := ids[r.ChunkID]; ok {
			out = append(out, r)
		}
	}
	return out
}

func sessionSpan(id string, chunks []pipeline.CompressedChunk) summarizer.SessionInfo {
	info := summarizer.SessionInfo{ID: id}
	if id == "" {
		info.ID = "*"
	}
	for _, ch := range chunks {
		if info.StartedAt.IsZero() || ch.StartedAt.Before(info.StartedAt) {
			info.StartedAt = ch.StartedAt
		}
		if ch.EndedAt.After(info.StoppedAt) {
			info.StoppedAt = ch.EndedAt
		}
	}
	return info
}
