package mocks

import (
	"fmt"
	"sync"

	"github.com/user/screenrec/pkg/ports"
)

// FileSystem is a mock implementation of ports.FileSystem.
// Files are tracked by size only.
type FileSystem struct {
	mu    sync.RWMutex
	files map[string]int64
	dirs  map[string]bool

	MkdirAllFunc func(path string) error
	ExistsFunc   func(path string) (bool, error)
	SizeFunc     func(path string) (int64, error)
	RemoveFunc   func(path string) error

	// Recorded calls for verification
	Removed []string
}

// NewFileSystem creates a new mock FileSystem.
func NewFileSystem() *FileSystem {
	return &FileSystem{
		files: make(map[string]int64),
		dirs:  make(map[string]bool),
	}
}

func (m *FileSystem) MkdirAll(path string) error {
	if m.MkdirAllFunc != nil {
		return m.MkdirAllFunc(path)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[path] = true
	return nil
}

func (m *FileSystem) Exists(path string) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(path)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.files[path]; ok {
		return true, nil
	}
	if _, ok := m.dirs[path]; ok {
		return true, nil
	}
	return false, nil
}

func (m *FileSystem) Size(path string) (int64, error) {
	if m.SizeFunc != nil {
		return m.SizeFunc(path)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if size, ok := m.files[path]; ok {
		return size, nil
	}
	return 0, fmt.Errorf("file not found: %s", path)
}

func (m *FileSystem) Remove(path string) error {
	m.mu.Lock()
	m.Removed = append(m.Removed, path)
	m.mu.Unlock()
	if m.RemoveFunc != nil {
		return m.RemoveFunc(path)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

// SetFile creates or resizes a file (used by mock encoders and tests).
func (m *FileSystem) SetFile(path string, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = size
}

// Files returns all files with their sizes (for test verification).
func (m *FileSystem) Files() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]int64, len(m.files))
	for k, v := range m.files {
		result[k] = v
	}
	return result
}

var _ ports.FileSystem = (*FileSystem)(nil)

// DiskSpace is a mock implementation of ports.DiskSpace.
type DiskSpace struct {
	mu sync.Mutex

	Free          uint64
	AvailableFunc func(path string) (uint64, error)

	Calls int
}

func (m *DiskSpace) Available(path string) (uint64, error) {
	m.mu.Lock()
	m.Calls++
	free := m.Free
	m.mu.Unlock()
	if m.AvailableFunc != nil {
		return m.AvailableFunc(path)
	}
	return free, nil
}

// SetFree changes the reported free space.
func (m *DiskSpace) SetFree(free uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Free = free
}

var _ ports.DiskSpace = (*DiskSpace)(nil)
