// Package diskspace reports free space of the volume holding a path.
package diskspace

import (
	"os"
	"path/filepath"

	"github.com/user/screenrec/pkg/ports"
)

// Probe implements ports.DiskSpace using the operating system.
type Probe struct{}

// New creates a disk space probe.
func New() *Probe {
	return &Probe{}
}

// Available returns bytes available to unprivileged writers on the volume
// holding path. A path that does not exist yet is resolved to its nearest
// existing parent, so the probe works before the output directory is created.
func (p *Probe) Available(path string) (uint64, error) {
	return available(existingParent(path))
}

func existingParent(path string) string {
	path = filepath.Clean(path)
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}

var _ ports.DiskSpace = (*Probe)(nil)
