package diskspace

import (
	"path/filepath"
	"runtime"
	"testing"
)

func TestProbe_Available(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" && runtime.GOOS != "windows" {
		t.Skip("free space probe not supported on", runtime.GOOS)
	}

	avail, err := New().Available(t.TempDir())
	if err != nil {
		t.Fatalf("Available failed: %v", err)
	}
	if avail == 0 {
		t.Error("expected non-zero free space on the temp volume")
	}
}

func TestProbe_MissingPathUsesParent(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" && runtime.GOOS != "windows" {
		t.Skip("free space probe not supported on", runtime.GOOS)
	}

	dir := t.TempDir()
	missing := filepath.Join(dir, "not", "created", "yet")
	if got := existingParent(missing); got != dir {
		t.Errorf("existingParent = %s, want %s", got, dir)
	}
	if _, err := New().Available(missing); err != nil {
		t.Errorf("Available on a missing path should resolve its parent: %v", err)
	}
}
