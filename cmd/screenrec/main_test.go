package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/user/screenrec/pkg/adapters/sqlitestore"
	"github.com/user/screenrec/pkg/config"
	"github.com/user/screenrec/pkg/pipeline"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"screenrec", "--quiet"}, args...))
	return out.String(), err
}

func seedStore(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()
	store, err := sqlitestore.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	end := time.Now().Add(-time.Hour)
	chunks := []pipeline.CompressedChunk{
		{SessionID: "day1", Seq: 1, Status: pipeline.ChunkFinalized, Codec: pipeline.CodecHEVC,
			QualityMultiplier: 1, TargetBytes: 1000, Bytes: 1200, Frames: 60,
			StartedAt: end.Add(-2 * time.Minute), EndedAt: end.Add(-time.Minute)},
		{SessionID: "day1", Seq: 2, Status: pipeline.ChunkFinalized, Codec: pipeline.CodecHEVC,
			QualityMultiplier: 0.9, TargetBytes: 1000, Bytes: 1000, Frames: 60,
			StartedAt: end.Add(-time.Minute), EndedAt: end},
		{SessionID: "other", Seq: 1, Status: pipeline.ChunkFailed, FailureReason: "encoder crashed",
			StartedAt: end.Add(-time.Minute), EndedAt: end},
	}
	for _, c := range chunks {
		if err := store.UpsertChunk(ctx, c); err != nil {
			t.Fatalf("UpsertChunk failed: %v", err)
		}
	}
	if err := store.RecordAdjustment(ctx, pipeline.QualityAdjustmentRecord{
		ChunkID: "day1-000001", PriorFactor: 1, NewFactor: 0.9, Deviation: 0.2,
		Action: pipeline.ActionDecrease, Timestamp: end,
	}); err != nil {
		t.Fatalf("RecordAdjustment failed: %v", err)
	}
}

func TestSimulate_PrintsSummary(t *testing.T) {
	out, err := runApp(t, "simulate",
		"--segment", "1m",
		"--active-hours", "0.25",
		"--daily-budget", "100MiB",
		"--noise", "0")
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}

	checks := []string{
		"# Recording Summary",
		"15 finalized, 0 failed, 0 skipped",
		"model (hevc, software)",
	}
	for _, check := range checks {
		if !strings.Contains(out, check) {
			t.Errorf("expected output to contain %q\n%s", check, out)
		}
	}
}

func TestSimulate_WritesCompressedSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.json.zst")

	if _, err := runApp(t, "simulate",
		"--segment", "1m",
		"--active-hours", "0.1",
		"--summary", path); err != nil {
		t.Fatalf("simulate failed: %v", err)
	}

	out, err := runApp(t, "report", "--input", path)
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if !strings.Contains(out, "6 finalized") {
		t.Errorf("expected re-rendered summary with 6 chunks, got:\n%s", out)
	}
}

func TestReport_FromStore(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "meta.db")
	seedStore(t, db)
	out := filepath.Join(dir, "report.md")

	if _, err := runApp(t, "report", "--db", db, "--session", "day1", "--out", out); err != nil {
		t.Fatalf("report failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	report := string(data)
	checks := []string{
		"day1-000001",
		"day1-000002",
		"2 finalized, 0 failed",
		"1 decrease",
	}
	for _, check := range checks {
		if !strings.Contains(report, check) {
			t.Errorf("expected report to contain %q", check)
		}
	}
	if strings.Contains(report, "other-000001") {
		t.Error("expected other sessions to be filtered out")
	}
}

func TestStats_JSON(t *testing.T) {
	db := filepath.Join(t.TempDir(), "meta.db")
	seedStore(t, db)

	out, err := runApp(t, "stats", "--db", db, "--json")
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}

	var report statsReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if report.Storage.Chunks != 2 {
		t.Errorf("expected 2 finalized chunks, got %d", report.Storage.Chunks)
	}
	if report.Storage.TotalBytes != 2200 {
		t.Errorf("expected 2200 bytes, got %d", report.Storage.TotalBytes)
	}
	if len(report.Adjustments) != 1 || report.Adjustments[0].NewFactor != 0.9 {
		t.Errorf("unexpected adjustments %+v", report.Adjustments)
	}
}

func TestStats_Text(t *testing.T) {
	db := filepath.Join(t.TempDir(), "meta.db")
	seedStore(t, db)

	out, err := runApp(t, "stats", "--db", db)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if !strings.Contains(out, "Chunks: 2") {
		t.Errorf("expected chunk count, got:\n%s", out)
	}
	if !strings.Contains(out, "day1-000001") {
		t.Errorf("expected the quality decision, got:\n%s", out)
	}
}

func TestConfig_InitAndMigrate(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "screenrec.yaml")
	if _, err := runApp(t, "config", "init", path); err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if _, err := runApp(t, "config", "init", path); err == nil {
		t.Error("expected init to refuse overwriting")
	}

	legacy := filepath.Join(dir, "legacy.yaml")
	v1 := "daily_budget_mb: 1024\nactive_hours: 6\nsegment_minutes: 10\ncodec: hevc\n"
	if err := os.WriteFile(legacy, []byte(v1), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := runApp(t, "config", "migrate", legacy); err != nil {
		t.Fatalf("config migrate failed: %v", err)
	}

	cfg, err := config.LoadFromFile(legacy)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.SchemaVersion != config.CurrentVersion {
		t.Errorf("expected schema version %d, got %d", config.CurrentVersion, cfg.SchemaVersion)
	}
	if cfg.Budget.Daily != config.GiB || cfg.Capture.Segment != 10*time.Minute {
		t.Errorf("unexpected migrated values: daily %s, segment %s", cfg.Budget.Daily, cfg.Capture.Segment)
	}
}

func TestConfig_ShowAppliesFlags(t *testing.T) {
	out, err := runApp(t, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if !strings.Contains(out, "schema_version: 3") {
		t.Errorf("expected schema version in output:\n%s", out)
	}
}

func TestLoadConfig_RejectsInvalidBudget(t *testing.T) {
	_, err := runApp(t, "simulate", "--daily-budget", "lots")
	if err == nil {
		t.Fatal("expected an error for an invalid budget")
	}
}

func TestInspect_MissingFile(t *testing.T) {
	_, err := runApp(t, "inspect", filepath.Join(t.TempDir(), "none.mp4"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
