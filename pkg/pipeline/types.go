// Package pipeline holds the value types shared by the compression pipeline.
package pipeline

import (
	"fmt"
	"time"
)

// =============================================================================
// Codec and Quality
// =============================================================================

// Codec identifies a codec family.
type Codec string

const (
	CodecHEVC  Codec = "hevc"
	CodecH264  Codec = "h264"
	CodecMJPEG Codec = "mjpeg"
)

// QualityMode selects between the adaptive controller and a pinned level.
type QualityMode string

const (
	QualityAuto     QualityMode = "auto"
	QualityLow      QualityMode = "low"
	QualityMedium   QualityMode = "medium"
	QualityHigh     QualityMode = "high"
	QualityLossless QualityMode = "lossless"
)

// FixedMultiplier returns the pinned multiplier of a fixed quality level.
// The second value is false for QualityAuto or an unknown mode.
func (m QualityMode) FixedMultiplier() (float64, bool) {
	switch m {
	case QualityLow:
		return 0.5, true
	case QualityMedium:
		return 1.0, true
	case QualityHigh:
		return 1.5, true
	case QualityLossless:
		return 2.0, true
	default:
		return 0, false
	}
}

// Adaptive reports whether the mode enables the adaptive quality controller.
func (m QualityMode) Adaptive() bool {
	return m == QualityAuto
}

// =============================================================================
// Compression Settings
// =============================================================================

// CompressionSettings is the immutable configuration of one segment.
// A new value is derived for every segment; fields are never mutated in place.
type CompressionSettings struct {
	Codec             Codec
	Backend           string
	QualityMultiplier float64
	BaseBitrateKbps   int   // Bitrate that would exactly meet the byte budget at multiplier 1.0
	TargetBytes       int64 // Byte budget of one chunk
	KeyFrameInterval  int   // Frames between key frames
	SegmentDuration   time.Duration
	FrameRate         float64
}

// WithMultiplier returns a copy of s using multiplier m.
func (s CompressionSettings) WithMultiplier(m float64) CompressionSettings {
	s.QualityMultiplier = m
	return s
}

// BitrateKbps returns the bitrate handed to the encoder for this segment.
func (s CompressionSettings) BitrateKbps() int {
	kbps := int(float64(s.BaseBitrateKbps) * s.QualityMultiplier)
	if kbps < 1 {
		kbps = 1
	}
	return kbps
}

// SegmentBudget derives the byte budget of one segment from a daily budget
// spread over the hours a day is expected to be recorded.
func SegmentBudget(dailyBytes int64, activeHoursPerDay float64, segment time.Duration) int64 {
	if activeHoursPerDay <= 0 || segment <= 0 {
		return 0
	}
	segmentsPerDay := activeHoursPerDay * float64(time.Hour) / float64(segment)
	return int64(float64(dailyBytes) / segmentsPerDay)
}

// BaseBitrate returns the bitrate in kbps that produces targetBytes over d.
func BaseBitrate(targetBytes int64, d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(float64(targetBytes) * 8 / d.Seconds() / 1000)
}

// =============================================================================
// Compressed Chunk
// =============================================================================

// ChunkStatus is the lifecycle status of a chunk.
type ChunkStatus string

const (
	ChunkOpen       ChunkStatus = "open"
	ChunkFinalizing ChunkStatus = "finalizing"
	ChunkFinalized  ChunkStatus = "finalized"
	ChunkFailed     ChunkStatus = "failed"
	ChunkSkipped    ChunkStatus = "skipped" // finalized with zero frames, no file
)

// CompressedChunk describes one segment of compressed output.
type CompressedChunk struct {
	SessionID string
	Seq       uint64
	Path      string // empty unless Status is ChunkFinalized
	Status    ChunkStatus

	Codec             Codec
	QualityMultiplier float64
	TargetBytes       int64

	Bytes         int64
	RawBytes      int64 // Uncompressed RGBA bytes of the encoded frames
	Frames        int
	DroppedFrames int
	Duration      time.Duration
	StartedAt     time.Time
	EndedAt       time.Time
	FailureReason string
}

// ID returns the chunk identity used as the persistence key.
func (c CompressedChunk) ID() string {
	return fmt.Sprintf("%s-%06d", c.SessionID, c.Seq)
}

// CompressionRatio returns RawBytes/Bytes, or 0 when nothing was written.
func (c CompressedChunk) CompressionRatio() float64 {
	if c.Bytes <= 0 {
		return 0
	}
	return float64(c.RawBytes) / float64(c.Bytes)
}

// Usable reports whether the chunk has a file that can be played back.
func (c CompressedChunk) Usable() bool {
	return c.Status == ChunkFinalized && c.Path != ""
}

// =============================================================================
// Quality Adjustment
// =============================================================================

// AdjustmentAction is the direction the controller chose for one decision.
type AdjustmentAction string

const (
	ActionDecrease AdjustmentAction = "decrease"
	ActionIncrease AdjustmentAction = "increase"
	ActionHold     AdjustmentAction = "hold"
)

// QualityAdjustmentRecord is one decision of the adaptive quality controller.
type QualityAdjustmentRecord struct {
	ChunkID       string
	PriorFactor   float64
	NewFactor     float64
	Deviation     float64
	WindowAverage int64
	TargetBytes   int64
	Action        AdjustmentAction
	Clamped       bool
	Timestamp     time.Time
}

// =============================================================================
// Storage Metrics
// =============================================================================

// StorageMetricsSnapshot is a derived view over finalized chunks.
// It is never a source of truth and can always be recomputed.
type StorageMetricsSnapshot struct {
	WindowStart    time.Time
	WindowEnd      time.Time
	Chunks         int
	TotalBytes     int64
	DailyAverage   float64 // bytes per day over the days observed
	TrendSlope     float64 // change of daily usage in bytes per day
	ProjectedBytes float64 // projected usage over one retention window
	BudgetBytes    int64   // retention budget (daily budget x retention days)
	Alert          bool
}
