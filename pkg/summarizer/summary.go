// Package summarizer provides summary generation for recording sessions.
package summarizer

import (
	"time"

	"github.com/user/screenrec/pkg/pipeline"
	"github.com/user/screenrec/pkg/session"
)

// Summary contains all data collected during a recording session.
type Summary struct {
	// Metadata
	GeneratedAt time.Time `json:"generated_at"`

	Session  SessionInfo `json:"session"`
	Codec    CodecInfo   `json:"codec"`
	Settings Settings    `json:"settings"`
	Frames   FrameInfo   `json:"frames"`
	Output   OutputInfo  `json:"output"`
	Quality  QualityInfo `json:"quality"`
	Storage  StorageInfo `json:"storage"`
	Chunks   []ChunkRow  `json:"chunks"`
}

// SessionInfo identifies the session.
type SessionInfo struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
}

// Duration returns the wall-clock length of the session.
func (s SessionInfo) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.StoppedAt.Before(s.StartedAt) {
		return 0
	}
	return s.StoppedAt.Sub(s.StartedAt)
}

// CodecInfo describes the selected encoder.
type CodecInfo struct {
	Name         string `json:"name"`
	Codec        string `json:"codec"`
	Backend      string `json:"backend"`
	FallbackUsed bool   `json:"fallback_used"`
}

// Settings contains the session configuration.
type Settings struct {
	QualityMode     string        `json:"quality_mode"`
	TargetBytes     int64         `json:"target_bytes"`
	BaseBitrateKbps int           `json:"base_bitrate_kbps"`
	SegmentDuration time.Duration `json:"segment_duration"`
	FrameRate       float64       `json:"frame_rate"`
}

// FrameInfo counts frames by outcome.
type FrameInfo struct {
	Submitted int64 `json:"submitted"`
	Encoded   int64 `json:"encoded"`
	Dropped   int64 `json:"dropped"`
	Rejected  int64 `json:"rejected"`
}

// OutputInfo aggregates the chunks of the session.
type OutputInfo struct {
	Finalized  int   `json:"finalized"`
	Failed     int   `json:"failed"`
	Skipped    int   `json:"skipped"`
	TotalBytes int64 `json:"total_bytes"`
	RawBytes   int64 `json:"raw_bytes"`
	// TargetBytes is the sum of the budgets of finalized chunks.
	TargetBytes int64 `json:"target_bytes"`
}

// BudgetRatio returns TotalBytes/TargetBytes, or 0 without a budget.
func (o OutputInfo) BudgetRatio() float64 {
	if o.TargetBytes <= 0 {
		return 0
	}
	return float64(o.TotalBytes) / float64(o.TargetBytes)
}

// CompressionRatio returns RawBytes/TotalBytes, or 0 when nothing was written.
func (o OutputInfo) CompressionRatio() float64 {
	if o.TotalBytes <= 0 {
		return 0
	}
	return float64(o.RawBytes) / float64(o.TotalBytes)
}

// QualityInfo summarizes the quality decisions.
type QualityInfo struct {
	FinalMultiplier float64 `json:"final_multiplier"`
	MinMultiplier   float64 `json:"min_multiplier"`
	MaxMultiplier   float64 `json:"max_multiplier"`
	Decreases       int     `json:"decreases"`
	Increases       int     `json:"increases"`
	Holds           int     `json:"holds"`
	Clamped         int     `json:"clamped"`
}

// StorageInfo is the storage metrics snapshot at the end of the session.
type StorageInfo struct {
	Chunks         int     `json:"chunks"`
	TotalBytes     int64   `json:"total_bytes"`
	DailyAverage   float64 `json:"daily_average"`
	TrendSlope     float64 `json:"trend_slope"`
	ProjectedBytes float64 `json:"projected_bytes"`
	BudgetBytes    int64   `json:"budget_bytes"`
	Alert          bool    `json:"alert"`
}

// ChunkRow is one line of the chunk table.
type ChunkRow struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	Bytes      int64   `json:"bytes"`
	Target     int64   `json:"target_bytes"`
	Multiplier float64 `json:"quality_multiplier"`
	Frames     int     `json:"frames"`
	Dropped    int     `json:"dropped_frames"`
	Failure    string  `json:"failure_reason,omitempty"`
}

// NewSummary creates a new Summary with the current timestamp.
func NewSummary() *Summary {
	return &Summary{
		GeneratedAt: time.Now(),
	}
}

// Builder provides a fluent interface for building a Summary.
type Builder struct {
	summary *Summary
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{
		summary: NewSummary(),
	}
}

// WithGeneratedAt overrides the generation timestamp.
func (b *Builder) WithGeneratedAt(t time.Time) *Builder {
	b.summary.GeneratedAt = t
	return b
}

// WithStats copies session statistics.
func (b *Builder) WithStats(st session.Stats, mode pipeline.QualityMode) *Builder {
	s := b.summary
	s.Session = SessionInfo{ID: st.ID, StartedAt: st.StartedAt, StoppedAt: st.StoppedAt}
	s.Codec = CodecInfo{
		Name:         st.Codec.Name,
		Codec:        string(st.Codec.Codec),
		Backend:      string(st.Codec.Backend),
		FallbackUsed: st.Codec.FallbackUsed,
	}
	s.Settings = Settings{
		QualityMode:     string(mode),
		TargetBytes:     st.Settings.TargetBytes,
		BaseBitrateKbps: st.Settings.BaseBitrateKbps,
		SegmentDuration: st.Settings.SegmentDuration,
		FrameRate:       st.Settings.FrameRate,
	}
	s.Frames = FrameInfo{
		Submitted: st.Engine.Submitted,
		Encoded:   st.Engine.Encoded,
		Dropped:   st.Engine.Dropped,
		Rejected:  st.Engine.Rejected,
	}
	s.Quality.FinalMultiplier = st.Multiplier
	return b.WithStorage(st.Storage)
}

// WithSession sets the session section.
func (b *Builder) WithSession(info SessionInfo) *Builder {
	b.summary.Session = info
	return b
}

// WithSettings sets the settings section.
func (b *Builder) WithSettings(settings Settings) *Builder {
	b.summary.Settings = settings
	return b
}

// WithStorage sets the storage snapshot.
func (b *Builder) WithStorage(snap pipeline.StorageMetricsSnapshot) *Builder {
	b.summary.Storage = StorageInfo{
		Chunks:         snap.Chunks,
		TotalBytes:     snap.TotalBytes,
		DailyAverage:   snap.DailyAverage,
		TrendSlope:     snap.TrendSlope,
		ProjectedBytes: snap.ProjectedBytes,
		BudgetBytes:    snap.BudgetBytes,
		Alert:          snap.Alert,
	}
	return b
}

// WithChunks aggregates chunks into the output section and the chunk table.
func (b *Builder) WithChunks(chunks []pipeline.CompressedChunk) *Builder {
	out := OutputInfo{}
	rows := make([]ChunkRow, 0, len(chunks))
	for _, c := range chunks {
		switch c.Status {
		case pipeline.ChunkFinalized:
			out.Finalized++
			out.TotalBytes += c.Bytes
			out.RawBytes += c.RawBytes
			out.TargetBytes += c.TargetBytes
		case pipeline.ChunkFailed:
			out.Failed++
		case pipeline.ChunkSkipped:
			out.Skipped++
		}
		rows = append(rows, ChunkRow{
			ID:         c.ID(),
			Status:     string(c.Status),
			Bytes:      c.Bytes,
			Target:     c.TargetBytes,
			Multiplier: c.QualityMultiplier,
			Frames:     c.Frames,
			Dropped:    c.DroppedFrames,
			Failure:    c.FailureReason,
		})
	}
	b.summary.Output = out
	b.summary.Chunks = rows
	return b
}

// WithAdjustments summarizes the quality decision trail.
func (b *Builder) WithAdjustments(recs []pipeline.QualityAdjustmentRecord) *Builder {
	q := &b.summary.Quality
	for i, r := range recs {
		if i == 0 || r.NewFactor < q.MinMultiplier {
			q.MinMultiplier = r.NewFactor
		}
		if i == 0 || r.NewFactor > q.MaxMultiplier {
			q.MaxMultiplier = r.NewFactor
		}
		switch r.Action {
		case pipeline.ActionDecrease:
			q.Decreases++
		case pipeline.ActionIncrease:
			q.Increases++
		default:
			q.Holds++
		}
		if r.Clamped {
			q.Clamped++
		}
	}
	if len(recs) > 0 {
		q.FinalMultiplier = recs[len(recs)-1].NewFactor
	}
	return b
}

// Build returns the constructed Summary.
func (b *Builder) Build() *Summary {
	return b.summary
}
