// Package ports defines interfaces for the pipeline's external dependencies.
package ports

import (
	"image"
	"time"
)

// VideoEncoder abstracts one encoder instance writing a single chunk file.
// An instance is used for exactly one segment: Begin, any number of
// EncodeFrame calls, then End or Abort.
type VideoEncoder interface {
	// Begin opens the output file at path and prepares the encoder for frames
	// of the given dimensions.
	Begin(path string, width, height int, opts EncoderOptions) error

	// EncodeFrame encodes a single frame. offset is the frame's position
	// relative to the start of the segment.
	EncodeFrame(img image.Image, offset time.Duration) error

	// End flushes pending frames, closes the output file and reports what
	// was written.
	End() (EncodeResult, error)

	// Abort releases the encoder without producing a usable file.
	// It is safe to call after a failed Begin or End.
	Abort()
}

// EncoderOptions configures video encoding parameters for one segment.
type EncoderOptions struct {
	FPS              float64 // Nominal input frame rate
	BitrateKbps      int     // Target bitrate in kbps (already scaled by the quality multiplier)
	Quality          float64 // Quality multiplier applied to the baseline settings
	KeyFrameInterval int     // Frames between key frames
}

// EncodeResult describes the output of a finished encoder.
type EncodeResult struct {
	Bytes  int64 // Size of the output file
	Frames int   // Frames written to the output
}
