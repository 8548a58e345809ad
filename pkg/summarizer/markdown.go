package summarizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// MarkdownFormatter renders a Summary as a Markdown report.
type MarkdownFormatter struct {
	translate func(string) string
	version   string
	maxRows   int
}

// MarkdownOption configures a MarkdownFormatter.
type MarkdownOption func(*MarkdownFormatter)

// WithTranslator translates headings and labels.
func WithTranslator(t func(string) string) MarkdownOption {
	return func(f *MarkdownFormatter) {
		f.translate = t
	}
}

// WithVersion adds the program version to the footer.
func WithVersion(v string) MarkdownOption {
	return func(f *MarkdownFormatter) {
		f.version = v
	}
}

// WithMaxRows limits the chunk table to the last n rows. Zero shows all.
func WithMaxRows(n int) MarkdownOption {
	return func(f *MarkdownFormatter) {
		f.maxRows = n
	}
}

// NewMarkdownFormatter creates a formatter.
func NewMarkdownFormatter(opts ...MarkdownOption) *MarkdownFormatter {
	f := &MarkdownFormatter{
		translate: func(s string) string { return s },
		maxRows:   100,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format implements Formatter.
func (f *MarkdownFormatter) Format(s *Summary) string {
	t := f.translate
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", t("Recording Summary"))

	fmt.Fprintf(&b, "## %s\n\n", t("Session"))
	f.row(&b, "Session ID", s.Session.ID)
	if !s.Session.StartedAt.IsZero() {
		f.row(&b, "Started", s.Session.StartedAt.Format(time.RFC3339))
	}
	if d := s.Session.Duration(); d > 0 {
		f.row(&b, "Duration", d.Round(time.Second).String())
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## %s\n\n", t("Encoding"))
	codec := s.Codec.Name
	if s.Codec.Codec != "" {
		codec = fmt.Sprintf("%s (%s, %s)", s.Codec.Name, s.Codec.Codec, s.Codec.Backend)
	}
	f.row(&b, "Encoder", codec)
	if s.Codec.FallbackUsed {
		f.row(&b, "Fallback", t("Preferred encoders unavailable"))
	}
	f.row(&b, "Quality Mode", s.Settings.QualityMode)
	f.row(&b, "Target per Chunk", formatBytes(s.Settings.TargetBytes))
	if s.Settings.BaseBitrateKbps > 0 {
		f.row(&b, "Base Bitrate", fmt.Sprintf("%d kbps", s.Settings.BaseBitrateKbps))
	}
	if s.Settings.SegmentDuration > 0 {
		f.row(&b, "Segment Duration", s.Settings.SegmentDuration.String())
	}
	if s.Settings.FrameRate > 0 {
		f.row(&b, "Frame Rate", fmt.Sprintf("%g fps", s.Settings.FrameRate))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## %s\n\n", t("Output"))
	f.row(&b, "Chunks", fmt.Sprintf("%d %s, %d %s, %d %s",
		s.Output.Finalized, t("finalized"), s.Output.Failed, t("failed"), s.Output.Skipped, t("skipped")))
	f.row(&b, "Total Size", formatBytes(s.Output.TotalBytes))
	if r := s.Output.BudgetRatio(); r > 0 {
		f.row(&b, "Budget Usage", fmt.Sprintf("%.1f%%", r*100))
	}
	if r := s.Output.CompressionRatio(); r > 0 {
		f.row(&b, "Compression Ratio", fmt.Sprintf("%.1f:1", r))
	}
	f.row(&b, "Frames", fmt.Sprintf("%d %s, %d %s, %d %s",
		s.Frames.Encoded, t("encoded"), s.Frames.Dropped, t("dropped"), s.Frames.Rejected, t("rejected")))
	b.WriteString("\n")

	fmt.Fprintf(&b, "## %s\n\n", t("Quality Control"))
	f.row(&b, "Final Multiplier", fmt.Sprintf("%.3f", s.Quality.FinalMultiplier))
	if s.Quality.Decreases+s.Quality.Increases+s.Quality.Holds > 0 {
		f.row(&b, "Range", fmt.Sprintf("%.3f - %.3f", s.Quality.MinMultiplier, s.Quality.MaxMultiplier))
		f.row(&b, "Decisions", fmt.Sprintf("%d %s, %d %s, %d %s",
			s.Quality.Decreases, t("decrease"), s.Quality.Increases, t("increase"), s.Quality.Holds, t("hold")))
	}
	if s.Quality.Clamped > 0 {
		f.row(&b, "Clamped", fmt.Sprintf("%d", s.Quality.Clamped))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## %s\n\n", t("Storage"))
	f.row(&b, "Retained", fmt.Sprintf("%s (%d %s)", formatBytes(s.Storage.TotalBytes), s.Storage.Chunks, t("chunks")))
	f.row(&b, "Daily Average", formatBytes(int64(s.Storage.DailyAverage)))
	f.row(&b, "Projected", formatBytes(int64(s.Storage.ProjectedBytes)))
	f.row(&b, "Budget", formatBytes(s.Storage.BudgetBytes))
	if s.Storage.Alert {
		fmt.Fprintf(&b, "\n> **%s**: %s\n", t("Alert"), t("Projected usage exceeds the storage budget"))
	}
	b.WriteString("\n")

	if len(s.Chunks) > 0 {
		f.chunkTable(&b, s.Chunks)
	}

	b.WriteString("---\n\n")
	footer := fmt.Sprintf("%s %s", t("Generated at"), s.GeneratedAt.Format(time.RFC3339))
	if f.version != "" {
		footer += fmt.Sprintf(" by screenrec %s", f.version)
	}
	b.WriteString(footer + "\n")

	return b.String()
}

func (f *MarkdownFormatter) row(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "- **%s**: %s\n", f.translate(label), value)
}

func (f *MarkdownFormatter) chunkTable(b *strings.Builder, rows []ChunkRow) {
	t := f.translate
	fmt.Fprintf(b, "## %s\n\n", t("Chunks"))

	if f.maxRows > 0 && len(rows) > f.maxRows {
		fmt.Fprintf(b, "_%s_\n\n", fmt.Sprintf(t("Showing the last %d of %d chunks"), f.maxRows, len(rows)))
		rows = rows[len(rows)-f.maxRows:]
	}

	fmt.Fprintf(b, "| %s | %s | %s | %s | %s | %s |\n",
		t("Chunk"), t("Status"), t("Size"), t("Target"), t("Multiplier"), t("Frames"))
	b.WriteString("|---|---|---:|---:|---:|---:|\n")
	for _, r := range rows {
		status := r.Status
		if r.Failure != "" {
			status = fmt.Sprintf("%s (%s)", r.Status, r.Failure)
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s | %.3f | %d |\n",
			r.ID, status, formatBytes(r.Bytes), formatBytes(r.Target), r.Multiplier, r.Frames)
	}
	b.WriteString("\n")
}

func formatBytes(bytes int64) string {
	if bytes < 0 {
		return fmt.Sprintf("%d B", bytes)
	}
	return humanize.IBytes(uint64(bytes))
}
