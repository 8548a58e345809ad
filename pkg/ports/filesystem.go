package ports

// FileSystem abstracts the file operations the pipeline performs on chunk files.
type FileSystem interface {
	// MkdirAll creates a directory and all parent directories.
	MkdirAll(path string) error

	// Exists checks if a file or directory exists.
	Exists(path string) (bool, error)

	// Size returns the size in bytes of the file at path.
	Size(path string) (int64, error)

	// Remove deletes a file. Removing a missing file is not an error.
	Remove(path string) error
}

// DiskSpace reports free space for the volume holding a path.
type DiskSpace interface {
	// Available returns the number of bytes available to unprivileged writers.
	Available(path string) (uint64, error)
}
