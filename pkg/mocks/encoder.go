package mocks

import (
	"image"
	"sync"
	"time"

	"github.com/user/screenrec/pkg/ports"
)

// VideoEncoder is a mock implementation of ports.VideoEncoder.
// When FS is set, Begin creates the output file there and End records its
// final size, so tests can check which chunk files exist.
type VideoEncoder struct {
	mu sync.Mutex

	FS *FileSystem
	// BytesPerFrame is the size model used by End when EndFunc is nil.
	BytesPerFrame func(opts ports.EncoderOptions) int64

	BeginFunc       func(path string, width, height int, opts ports.EncoderOptions) error
	EncodeFrameFunc func(img image.Image, offset time.Duration) error
	EndFunc         func() (ports.EncodeResult, error)

	// Recorded calls for verification
	BeginCalls       []BeginCall
	EncodeFrameCalls []time.Duration
	EndCalled        bool
	AbortCalled      bool
}

// BeginCall records a call to Begin.
type BeginCall struct {
	Path   string
	Width  int
	Height int
	Opts   ports.EncoderOptions
}

func (m *VideoEncoder) Begin(path string, width, height int, opts ports.EncoderOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BeginCalls = append(m.BeginCalls, BeginCall{Path: path, Width: width, Height: height, Opts: opts})
	if m.BeginFunc != nil {
		if err := m.BeginFunc(path, width, height, opts); err != nil {
			return err
		}
	}
	if m.FS != nil {
		m.FS.SetFile(path, 0)
	}
	return nil
}

func (m *VideoEncoder) EncodeFrame(img image.Image, offset time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EncodeFrameCalls = append(m.EncodeFrameCalls, offset)
	if m.EncodeFrameFunc != nil {
		return m.EncodeFrameFunc(img, offset)
	}
	return nil
}

func (m *VideoEncoder) End() (ports.EncodeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EndCalled = true
	if m.EndFunc != nil {
		return m.EndFunc()
	}

	result := ports.EncodeResult{Frames: len(m.EncodeFrameCalls)}
	perFrame := int64(1024)
	if m.BytesPerFrame != nil && len(m.BeginCalls) > 0 {
		perFrame = m.BytesPerFrame(m.BeginCalls[0].Opts)
	}
	result.Bytes = perFrame * int64(result.Frames)
	if m.FS != nil && len(m.BeginCalls) > 0 {
		m.FS.SetFile(m.BeginCalls[0].Path, result.Bytes)
	}
	return result, nil
}

func (m *VideoEncoder) Abort() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AbortCalled = true
}

// Frames returns the number of frames encoded so far.
func (m *VideoEncoder) Frames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.EncodeFrameCalls)
}

var _ ports.VideoEncoder = (*VideoEncoder)(nil)

// EncoderFactory hands out mock encoders and remembers each one.
// Configure is applied to every new encoder with its 1-based index.
type EncoderFactory struct {
	mu sync.Mutex

	FS            *FileSystem
	BytesPerFrame func(opts ports.EncoderOptions) int64
	Configure     func(index int, enc *VideoEncoder)

	Created []*VideoEncoder
}

// NewEncoder creates the next mock encoder.
func (f *EncoderFactory) NewEncoder() ports.VideoEncoder {
	f.mu.Lock()
	defer f.mu.Unlock()

	enc := &VideoEncoder{FS: f.FS, BytesPerFrame: f.BytesPerFrame}
	f.Created = append(f.Created, enc)
	if f.Configure != nil {
		f.Configure(len(f.Created), enc)
	}
	return enc
}

// Encoders returns the encoders created so far.
func (f *EncoderFactory) Encoders() []*VideoEncoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*VideoEncoder, len(f.Created))
	copy(out, f.Created)
	return out
}
