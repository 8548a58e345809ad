// Package synthsource provides a synthetic screen capture source: a desktop
// like test pattern with moving windows and a clock, drawn with gg.
package synthsource

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"github.com/fogleman/gg"

	"github.com/user/screenrec/pkg/ports"
)

// Config configures the source.
type Config struct {
	Width  int
	Height int
	FPS    float64
	// Frames stops the source after this many frames. Zero means unlimited.
	Frames int
	// Realtime paces frames on a wall-clock ticker. Otherwise frames are
	// produced as fast as they are consumed, with timestamps spaced 1/FPS
	// apart starting at Start.
	Realtime bool
	Start    time.Time
}

// DefaultConfig returns a 1 fps, 1280x720 real-time source.
func DefaultConfig() Config {
	return Config{Width: 1280, Height: 720, FPS: 1, Realtime: true}
}

// Source implements ports.FrameSource.
type Source struct {
	cfg Config
	now func() time.Time
}

// New creates a source.
func New(cfg Config) (*Source, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("frame rate must be positive, got %g", cfg.FPS)
	}
	return &Source{cfg: cfg, now: time.Now}, nil
}

// Frames starts producing frames. The channel is closed when ctx is done or
// the configured frame count is reached.
func (s *Source) Frames(ctx context.Context) (<-chan ports.CapturedFrame, error) {
	out := make(chan ports.CapturedFrame)
	interval := time.Duration(float64(time.Second) / s.cfg.FPS)

	go func() {
		defer close(out)

		var ticker *time.Ticker
		if s.cfg.Realtime {
			ticker = time.NewTicker(interval)
			defer ticker.Stop()
		}
		start := s.cfg.Start
		if start.IsZero() {
			start = s.now()
		}

		for i := 0; s.cfg.Frames == 0 || i < s.cfg.Frames; i++ {
			ts := start.Add(time.Duration(i) * interval)
			if s.cfg.Realtime {
				ts = s.now()
			}
			frame := ports.CapturedFrame{Image: Render(s.cfg.Width, s.cfg.Height, i, ts), Timestamp: ts}

			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}

			if ticker != nil {
				select {
				case <-ticker.C:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

var (
	desktop  = color.RGBA{R: 0x2b, G: 0x3a, B: 0x55, A: 0xff}
	titleBar = color.RGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}
	body     = color.RGBA{R: 0xfa, G: 0xfa, B: 0xfa, A: 0xff}
	text     = color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}
	accent   = color.RGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff}
)

// Render draws frame n of the test pattern.
func Render(width, height, n int, ts time.Time) image.Image {
	dc := gg.NewContext(width, height)
	dc.SetColor(desktop)
	dc.Clear()

	w := float64(width)
	h := float64(height)

	// Two windows drifting slowly so consecutive frames differ a little.
	for i, phase := range []float64{0, math.Pi / 2} {
		ww, wh := w*0.45, h*0.5
		x := w*0.05 + (w*0.45)*(0.5+0.5*math.Sin(float64(n)/40+phase))
		y := h*0.1 + float64(i)*h*0.3
		dc.SetColor(body)
		dc.DrawRoundedRectangle(x, y, ww, wh, 6)
		dc.Fill()
		dc.SetColor(titleBar)
		dc.DrawRectangle(x, y, ww, 24)
		dc.Fill()
		dc.SetColor(text)
		for line := 0; line < 8; line++ {
			dc.DrawString(fmt.Sprintf("line %d of window %d, frame %d", line+1, i+1, n), x+12, y+48+float64(line)*16)
		}
	}

	// Taskbar with a clock and a progress indicator.
	dc.SetColor(titleBar)
	dc.DrawRectangle(0, h-28, w, 28)
	dc.Fill()
	dc.SetColor(accent)
	dc.DrawRectangle(0, h-28, w*float64(n%100)/100, 4)
	dc.Fill()
	dc.SetColor(text)
	dc.DrawStringAnchored(ts.Format("15:04:05"), w-12, h-12, 1, 0.5)

	return dc.Image()
}

var _ ports.FrameSource = (*Source)(nil)
