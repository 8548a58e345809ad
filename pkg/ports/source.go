package ports

import (
	"context"
	"image"
	"time"
)

// CapturedFrame is one pixel buffer handed over by a capture source.
type CapturedFrame struct {
	Image     image.Image
	Timestamp time.Time
}

// FrameSource abstracts a capture source producing frames at a nominal rate.
type FrameSource interface {
	// Frames starts capturing and returns a channel of frames.
	// The channel is closed when ctx is cancelled or the source ends.
	Frames(ctx context.Context) (<-chan CapturedFrame, error)
}
