package codecdetect

import (
	"bytes"
	"image"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/screenrec/pkg/adapters/mjpegencoder"
	"github.com/user/screenrec/pkg/pipeline"
	"github.com/user/screenrec/pkg/ports"
)

func writeMJPEG(t *testing.T, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunk.mp4")
	enc := mjpegencoder.New()
	if err := enc.Begin(path, 64, 48, ports.EncoderOptions{FPS: 1, Quality: 1, KeyFrameInterval: 2}); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for i := 0; i < frames; i++ {
		if err := enc.EncodeFrame(img, time.Duration(i)*time.Second); err != nil {
			t.Fatalf("EncodeFrame failed: %v", err)
		}
	}
	if _, err := enc.End(); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	return path
}

func TestDetectFromFile_MJPEG(t *testing.T) {
	path := writeMJPEG(t, 5)

	info, err := DetectFromFile(path)
	if err != nil {
		t.Fatalf("DetectFromFile failed: %v", err)
	}
	if info.Codec != pipeline.CodecMJPEG {
		t.Errorf("expected codec mjpeg, got %s", info.Codec)
	}
	if info.SampleEntry != "jpeg" {
		t.Errorf("expected sample entry jpeg, got %s", info.SampleEntry)
	}
	if info.Width != 64 || info.Height != 48 {
		t.Errorf("expected 64x48, got %dx%d", info.Width, info.Height)
	}
	if !info.Fragmented {
		t.Error("expected a fragmented file")
	}
	if info.Fragments == 0 {
		t.Error("expected at least one fragment")
	}
}

func TestDetectFromFile_Missing(t *testing.T) {
	info, err := DetectFromFile(filepath.Join(t.TempDir(), "none.mp4"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if info.Codec != CodecUnknown {
		t.Errorf("expected unknown codec, got %s", info.Codec)
	}
}

func TestDetectFromReader_Garbage(t *testing.T) {
	_, err := DetectFromReader(bytes.NewReader([]byte("definitely not an mp4 file")))
	if err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestCodecForEntry(t *testing.T) {
	tests := []struct {
		entry string
		want  pipeline.Codec
	}{
		{"hvc1", pipeline.CodecHEVC},
		{"hev1", pipeline.CodecHEVC},
		{"avc1", pipeline.CodecH264},
		{"avc3", pipeline.CodecH264},
		{"jpeg", pipeline.CodecMJPEG},
		{"mp4a", CodecUnknown},
	}
	for _, tt := range tests {
		if got := codecForEntry(tt.entry); got != tt.want {
			t.Errorf("codecForEntry(%q) = %s, want %s", tt.entry, got, tt.want)
		}
	}
}
