package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/screenrec/pkg/adapters/sqlitestore"
	"github.com/user/screenrec/pkg/config"
	"github.com/user/screenrec/pkg/pipeline"
	"github.com/user/screenrec/pkg/storagemetrics"
)

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:        "stats",
		Usage:       l10n.T("Show storage usage and quality trends"),
		Description: l10n.T("Read the metadata database and report usage over the retention window, the usage trend and recent quality decisions."),
		Flags: append(configFlags(),
			&cli.IntFlag{
				Name:  "adjustments",
				Value: 10,
				Usage: l10n.T("Number of recent quality decisions to show"),
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: l10n.T("Print the snapshot as JSON"),
			},
		),
		Action: runStats,
	}
}

type statsReport struct {
	Storage     pipeline.StorageMetricsSnapshot    `json:"storage"`
	Adjustments []pipeline.QualityAdjustmentRecord `json:"adjustments"`
}

func runStats(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	store, err := sqlitestore.Open(c.Context, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := collectStats(c, cfg, store, time.Now)
	if err != nil {
		return err
	}

	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printStats(c.App.Writer, report)
	return nil
}

func collectStats(c *cli.Context, cfg config.Config, store *sqlitestore.Store, now func() time.Time) (statsReport, error) {
	retention := time.Duration(cfg.Budget.RetentionDays) * 24 * time.Hour
	chunks, err := store.ListChunks(c.Context, now().Add(-retention))
	if err != nil {
		return statsReport{}, err
	}

	agg := storagemetrics.New(storagemetrics.Config{
		Retention:   retention,
		DailyBudget: int64(cfg.Budget.Daily),
		AlertMargin: cfg.Budget.AlertMargin,
	})
	agg.SetClock(now)
	agg.Load(chunks)

	recs, err := store.Adjustments(c.Context, c.Int("adjustments"))
	if err != nil {
		return statsReport{}, err
	}
	return statsReport{Storage: agg.Snapshot(), Adjustments: recs}, nil
}

func printStats(w io.Writer, r statsReport) {
	s := r.Storage
	fmt.Fprintln(w, l10n.F("Window: %s - %s", s.WindowStart.Format(time.DateOnly), s.WindowEnd.Format(time.DateOnly)))
	fmt.Fprintln(w, l10n.F("Chunks: %d, total %s", s.Chunks, config.ByteSize(s.TotalBytes)))
	fmt.Fprintln(w, l10n.F("Daily average: %s, trend %+.1f MiB/day", config.ByteSize(int64(s.DailyAverage)), s.TrendSlope/float64(config.MiB)))
	fmt.Fprintln(w, l10n.F("Projected: %s of %s budget", config.ByteSize(int64(s.ProjectedBytes)), config.ByteSize(s.BudgetBytes)))
	if s.Alert {
		fmt.Fprintln(w, l10n.T("ALERT: projected usage exceeds the storage budget"))
	}

	if len(r.Adjustments) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, l10n.T("Recent quality decisions:"))
	for _, a := range r.Adjustments {
		fmt.Fprintf(w, "  %s  %-20s %-8s %+.3f  %.3f -> %.3f\n",
			a.Timestamp.Format(time.DateTime), a.ChunkID, a.Action, a.Deviation, a.PriorFactor, a.NewFactor)
	}
}
