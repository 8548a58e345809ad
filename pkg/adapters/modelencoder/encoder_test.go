package modelencoder

import (
	"image"
	"math"
	"testing"

	"github.com/user/screenrec/pkg/ports"
)

func encodeSegment(t *testing.T, f *Factory, opts ports.EncoderOptions, frames int) ports.EncodeResult {
	t.Helper()
	enc := f.NewEncoder()
	if err := enc.Begin("/virtual/chunk.mp4", 64, 48, opts); err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for i := 0; i < frames; i++ {
		if err := enc.EncodeFrame(img, 0); err != nil {
			t.Fatal(err)
		}
	}
	res, err := enc.End()
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestEncoder_HitsBitrateAtUnitComplexity(t *testing.T) {
	f := NewFactory(Model{Complexity: 1})
	opts := ports.EncoderOptions{FPS: 1, BitrateKbps: 800}

	res := encodeSegment(t, f, opts, 900)

	want := int64(800 * 1000 / 8 * 900)
	if res.Bytes != want {
		t.Errorf("Bytes = %d, want %d", res.Bytes, want)
	}
	if res.Frames != 900 {
		t.Errorf("Frames = %d, want 900", res.Frames)
	}
}

func TestEncoder_ComplexityScalesOutput(t *testing.T) {
	opts := ports.EncoderOptions{FPS: 2, BitrateKbps: 400}
	base := encodeSegment(t, NewFactory(Model{Complexity: 1}), opts, 100)
	heavy := encodeSegment(t, NewFactory(Model{Complexity: 1.5}), opts, 100)

	ratio := float64(heavy.Bytes) / float64(base.Bytes)
	if math.Abs(ratio-1.5) > 0.001 {
		t.Errorf("ratio = %.4f, want 1.5", ratio)
	}
}

func TestEncoder_NoiseIsBoundedAndReproducible(t *testing.T) {
	opts := ports.EncoderOptions{FPS: 1, BitrateKbps: 800}
	model := Model{Complexity: 1, Noise: 0.1, Seed: 42}

	a := encodeSegment(t, NewFactory(model), opts, 500)
	b := encodeSegment(t, NewFactory(model), opts, 500)
	if a.Bytes != b.Bytes {
		t.Errorf("same seed produced %d and %d", a.Bytes, b.Bytes)
	}

	nominal := float64(800 * 1000 / 8 * 500)
	if dev := math.Abs(float64(a.Bytes)-nominal) / nominal; dev > 0.1 {
		t.Errorf("deviation %.3f exceeds noise bound", dev)
	}
}

func TestEncoder_ComplexityAtSpansSegments(t *testing.T) {
	f := NewFactory(Model{ComplexityAt: func(frame int) float64 {
		if frame < 10 {
			return 1
		}
		return 2
	}})
	opts := ports.EncoderOptions{FPS: 1, BitrateKbps: 8}

	first := encodeSegment(t, f, opts, 10)
	second := encodeSegment(t, f, opts, 10)
	if second.Bytes != 2*first.Bytes {
		t.Errorf("second segment = %d, want twice %d", second.Bytes, first.Bytes)
	}
}

func TestEncoder_RequiresBegin(t *testing.T) {
	enc := NewFactory(Model{}).NewEncoder()
	if err := enc.EncodeFrame(image.NewRGBA(image.Rect(0, 0, 1, 1)), 0); err == nil {
		t.Error("expected error before Begin")
	}
	if _, err := enc.End(); err == nil {
		t.Error("expected error from End before Begin")
	}
}
