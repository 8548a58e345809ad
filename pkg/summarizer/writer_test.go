package summarizer

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriter_Write_CreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "day", "summary.md")

	w := NewWriter(NewMarkdownFormatter())
	if err := w.Write(path, testSummary()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(string(data), "# Recording Summary") {
		t.Errorf("unexpected content: %.40s", data)
	}
}

func TestWriter_CompressedJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json"+ZstdExt)
	want := testSummary()

	if err := NewWriter(JSONFormatter).Write(path, want); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte{0x28, 0xb5, 0x2f, 0xfd}) {
		t.Error("expected a zstd frame")
	}

	got, err := ReadJSON(path)
	if err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if got.Session.ID != want.Session.ID || got.Output.TotalBytes != want.Output.TotalBytes {
		t.Errorf("round trip mismatch: got %+v", got)
	}
	if !got.GeneratedAt.Equal(want.GeneratedAt) {
		t.Errorf("expected GeneratedAt %v, got %v", want.GeneratedAt, got.GeneratedAt)
	}
}

func TestReadJSON_Plain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	if err := NewWriter(JSONFormatter).Write(path, testSummary()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := ReadJSON(path)
	if err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if got.Settings.BaseBitrateKbps != 596 {
		t.Errorf("expected base bitrate 596, got %d", got.Settings.BaseBitrateKbps)
	}
}

func TestReadJSON_Missing(t *testing.T) {
	if _, err := ReadJSON(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Error("expected error for a missing file")
	}
}
