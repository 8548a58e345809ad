package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrCodecUnavailable is returned when no codec candidate initializes.
	ErrCodecUnavailable = errors.New("codec unavailable")
	// ErrFrameSubmitTimeout is returned when a frame could not be queued within its budget.
	ErrFrameSubmitTimeout = errors.New("frame submit timeout")
	// ErrSegmentFinalize is returned when an encoder fails to close its segment.
	ErrSegmentFinalize = errors.New("segment finalize failure")
	// ErrStorageInsufficient is returned when free space is below the configured minimum.
	ErrStorageInsufficient = errors.New("storage insufficient")
	// ErrSegmentNotOpen is returned when a frame arrives while no segment accepts frames.
	ErrSegmentNotOpen = errors.New("segment not open")
	// ErrSessionClosed is returned by operations on a stopped session.
	ErrSessionClosed = errors.New("session closed")
)

// ErrorKind classifies pipeline failures by scope.
type ErrorKind int

const (
	KindCodec ErrorKind = iota + 1
	KindFrame
	KindSegment
	KindStorage
	KindPersistence
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindCodec:
		return "codec"
	case KindFrame:
		return "frame"
	case KindSegment:
		return "segment"
	case KindStorage:
		return "storage"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Error carries the context needed to reconstruct a pipeline failure.
type Error struct {
	Kind  ErrorKind
	Op    string
	Chunk string
	Err   error
}

func (e *Error) Error() string {
	if e.Chunk != "" {
		return fmt.Sprintf("[%v] %s %s: %v", e.Kind, e.Op, e.Chunk, e.Err)
	}
	return fmt.Sprintf("[%v] %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Recoverable reports whether the pipeline keeps running after this error.
// Codec and storage failures abort the start attempt they occur in.
func (e *Error) Recoverable() bool {
	switch e.Kind {
	case KindFrame, KindSegment, KindPersistence:
		return true
	default:
		return false
	}
}

// StorageInsufficientError reports a failed free-space precondition.
type StorageInsufficientError struct {
	Path      string
	Available uint64
	Required  uint64
}

func (e *StorageInsufficientError) Error() string {
	return fmt.Sprintf("storage insufficient at %s: %d bytes available, %d required", e.Path, e.Available, e.Required)
}

func (e *StorageInsufficientError) Is(target error) bool {
	return target == ErrStorageInsufficient
}
