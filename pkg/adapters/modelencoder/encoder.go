// Package modelencoder is a virtual encoder for simulations. It writes no
// file and reports the size a real encoder would produce for content of a
// given complexity.
package modelencoder

import (
	"errors"
	"image"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/user/screenrec/pkg/ports"
)

// Model describes the simulated content.
type Model struct {
	// Complexity scales the output relative to the requested bitrate.
	// 1.0 means the encoder hits its bitrate exactly, 1.2 overshoots by 20%.
	Complexity float64
	// Noise is the relative per-frame jitter, 0.1 for +/-10%.
	Noise float64
	// Seed makes the jitter reproducible.
	Seed uint64
	// ComplexityAt optionally overrides Complexity with a function of the
	// frame offset within the run.
	ComplexityAt func(frame int) float64
}

// Factory hands out encoders sharing one model and one frame counter, so
// complexity changes can span segments.
type Factory struct {
	model Model

	mu     sync.Mutex
	rng    *rand.Rand
	frames int
}

// NewFactory creates a factory for model.
func NewFactory(model Model) *Factory {
	if model.Complexity <= 0 {
		model.Complexity = 1
	}
	return &Factory{
		model: model,
		rng:   rand.New(rand.NewPCG(model.Seed, model.Seed^0x9e3779b97f4a7c15)),
	}
}

// NewEncoder creates a virtual encoder for one segment.
func (f *Factory) NewEncoder() ports.VideoEncoder {
	return &Encoder{factory: f}
}

func (f *Factory) nextFrameBytes(opts ports.EncoderOptions) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := f.model.Complexity
	if f.model.ComplexityAt != nil {
		k = f.model.ComplexityAt(f.frames)
	}
	f.frames++

	fps := opts.FPS
	if fps <= 0 {
		fps = 1
	}
	perFrame := float64(opts.BitrateKbps) * 1000 / 8 / fps * k
	if f.model.Noise > 0 {
		perFrame *= 1 + f.model.Noise*(2*f.rng.Float64()-1)
	}
	if perFrame < 1 {
		perFrame = 1
	}
	return int64(perFrame)
}

var (
	errNotBegun = errors.New("model encoder not begun")
	errEnded    = errors.New("model encoder already ended")
)

// Encoder accumulates modelled sizes for one segment.
type Encoder struct {
	factory *Factory
	opts    ports.EncoderOptions
	begun   bool
	ended   bool
	frames  int
	bytes   int64
}

// Begin records the options. No file is created.
func (e *Encoder) Begin(path string, width, height int, opts ports.EncoderOptions) error {
	if width <= 0 || height <= 0 {
		return errors.New("invalid frame size")
	}
	e.opts = opts
	e.begun = true
	return nil
}

// EncodeFrame adds the modelled size of one frame.
func (e *Encoder) EncodeFrame(img image.Image, offset time.Duration) error {
	if !e.begun {
		return errNotBegun
	}
	if e.ended {
		return errEnded
	}
	e.frames++
	e.bytes += e.factory.nextFrameBytes(e.opts)
	return nil
}

// End reports the modelled chunk size.
func (e *Encoder) End() (ports.EncodeResult, error) {
	if !e.begun {
		return ports.EncodeResult{}, errNotBegun
	}
	e.ended = true
	return ports.EncodeResult{Bytes: e.bytes, Frames: e.frames}, nil
}

// Abort discards the segment.
func (e *Encoder) Abort() {
	e.ended = true
}

var _ ports.VideoEncoder = (*Encoder)(nil)
