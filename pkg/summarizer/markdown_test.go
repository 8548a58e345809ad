package summarizer

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func testSummary() *Summary {
	start := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	return &Summary{
		GeneratedAt: time.Date(2024, 1, 15, 17, 30, 0, 0, time.UTC),
		Session:     SessionInfo{ID: "abc", StartedAt: start, StoppedAt: start.Add(8 * time.Hour)},
		Codec:       CodecInfo{Name: "hevc_videotoolbox", Codec: "hevc", Backend: "hardware"},
		Settings: Settings{
			QualityMode:     "auto",
			TargetBytes:     64 * 1024 * 1024,
			BaseBitrateKbps: 596,
			SegmentDuration: 15 * time.Minute,
			FrameRate:       1,
		},
		Frames: FrameInfo{Submitted: 100, Encoded: 98, Dropped: 2},
		Output: OutputInfo{Finalized: 32, TotalBytes: 1024 * 1024 * 1024, TargetBytes: 1024 * 1024 * 1024},
		Quality: QualityInfo{
			FinalMultiplier: 0.85,
			MinMultiplier:   0.8,
			MaxMultiplier:   1.0,
			Decreases:       3,
			Holds:           28,
		},
		Storage: StorageInfo{Chunks: 32, TotalBytes: 1024 * 1024 * 1024, BudgetBytes: 60 * 1024 * 1024 * 1024},
	}
}

func TestMarkdownFormatter_Format_Basic(t *testing.T) {
	formatter := NewMarkdownFormatter()

	result := formatter.Format(testSummary())

	// Check required sections
	checks := []string{
		"# Recording Summary",
		"## Session",
		"abc",
		"8h0m0s",                                // Duration
		"hevc_videotoolbox (hevc, hardware)",    // Encoder
		"596 kbps",                              // Base bitrate
		"64 MiB",                                // Target per chunk
		"1.0 GiB",                               // Total size
		"Budget Usage**: 100.0%",
		"98 encoded, 2 dropped, 0 rejected",
		"Final Multiplier**: 0.850",
		"0.800 - 1.000",
		"3 decrease, 0 increase, 28 hold",
		"60 GiB",                                // Budget
	}

	for _, check := range checks {
		if !strings.Contains(result, check) {
			t.Errorf("expected output to contain %q", check)
		}
	}

	if strings.Contains(result, "Alert") {
		t.Error("did not expect an alert")
	}
	if strings.Contains(result, "Fallback") {
		t.Error("did not expect a fallback note")
	}
}

func TestMarkdownFormatter_Format_WithAlertAndFallback(t *testing.T) {
	summary := testSummary()
	summary.Storage.Alert = true
	summary.Codec.FallbackUsed = true

	result := NewMarkdownFormatter().Format(summary)

	if !strings.Contains(result, "> **Alert**") {
		t.Error("expected output to contain the alert")
	}
	if !strings.Contains(result, "Preferred encoders unavailable") {
		t.Error("expected output to contain the fallback note")
	}
}

func TestMarkdownFormatter_Format_ChunkTable(t *testing.T) {
	summary := testSummary()
	summary.Chunks = []ChunkRow{
		{ID: "abc-000001", Status: "finalized", Bytes: 2048, Target: 4096, Multiplier: 1, Frames: 900},
		{ID: "abc-000002", Status: "failed", Failure: "encoder crashed"},
	}

	result := NewMarkdownFormatter().Format(summary)

	checks := []string{
		"## Chunks",
		"| abc-000001 | finalized | 2.0 KiB | 4.0 KiB | 1.000 | 900 |",
		"| abc-000002 | failed (encoder crashed) |",
	}
	for _, check := range checks {
		if !strings.Contains(result, check) {
			t.Errorf("expected output to contain %q", check)
		}
	}
}

func TestMarkdownFormatter_Format_MaxRows(t *testing.T) {
	summary := testSummary()
	for i := 1; i <= 5; i++ {
		summary.Chunks = append(summary.Chunks, ChunkRow{ID: fmt.Sprintf("c%d", i), Status: "finalized"})
	}

	result := NewMarkdownFormatter(WithMaxRows(2)).Format(summary)

	if !strings.Contains(result, "Showing the last 2 of 5 chunks") {
		t.Error("expected truncation note")
	}
	if strings.Contains(result, "| c3 |") {
		t.Error("expected early rows to be omitted")
	}
	if !strings.Contains(result, "| c5 |") {
		t.Error("expected the last row to be shown")
	}
}

func TestMarkdownFormatter_Format_NoChunks(t *testing.T) {
	summary := testSummary()

	result := NewMarkdownFormatter().Format(summary)

	if strings.Contains(result, "## Chunks") {
		t.Error("did not expect a chunk table without chunks")
	}
}

func TestMarkdownFormatter_WithTranslator(t *testing.T) {
	translations := map[string]string{
		"Recording Summary": "録画サマリー",
		"Session":           "セッション",
	}
	translator := func(s string) string {
		if v, ok := translations[s]; ok {
			return v
		}
		return s
	}

	result := NewMarkdownFormatter(WithTranslator(translator)).Format(testSummary())

	if !strings.Contains(result, "# 録画サマリー") {
		t.Error("expected translated title")
	}
	if !strings.Contains(result, "## セッション") {
		t.Error("expected translated section heading")
	}
}

func TestMarkdownFormatter_WithVersion(t *testing.T) {
	result := NewMarkdownFormatter(WithVersion("v1.2.0")).Format(testSummary())

	if !strings.Contains(result, "screenrec v1.2.0") {
		t.Error("expected version in footer")
	}
	if !strings.Contains(result, "2024-01-15T17:30:00Z") {
		t.Error("expected generation time in footer")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1024 * 1024, "1.0 MiB"},
		{1024 * 1024 * 1024, "1.0 GiB"},
		{64 * 1024 * 1024, "64 MiB"},
		{-5, "-5 B"},
	}

	for _, tt := range tests {
		result := formatBytes(tt.bytes)
		if result != tt.expected {
			t.Errorf("formatBytes(%d) = %s, expected %s", tt.bytes, result, tt.expected)
		}
	}
}
