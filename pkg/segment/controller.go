// Package segment owns the chunk lifecycle of a recording session.
//
// Exactly one segment is open at a time. Rotation finalizes the open
// segment, feeds the result to the quality policy, opens the next segment
// with freshly derived settings and only then persists the finished chunk,
// so a slow store never holds frames back.
package segment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/screenrec/pkg/pipeline"
	"github.com/user/screenrec/pkg/ports"
)

// State is the lifecycle state of the current segment.
type State int32

const (
	StateIdle State = iota // no segment could be opened
	StateOpen
	StateFinalizing
	StateFinalized
	StateFailed
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateFinalizing:
		return "finalizing"
	case StateFinalized:
		return "finalized"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Engine is the part of the compression engine the controller drives.
type Engine interface {
	Open(chunk pipeline.CompressedChunk, settings pipeline.CompressionSettings) error
	FinalizeSegment() (pipeline.CompressedChunk, error)
}

// QualityPolicy decides the multiplier of the next segment.
type QualityPolicy interface {
	Observe(chunk pipeline.CompressedChunk) (pipeline.QualityAdjustmentRecord, bool)
	Multiplier() float64
}

// Config configures the controller.
type Config struct {
	SessionID    string
	OutputDir    string
	Interval     time.Duration // rotation interval
	MinFreeBytes uint64
}

// Hooks observe lifecycle events. All fields are optional. Hooks run on
// the rotation path and must not block.
type Hooks struct {
	OnChunk      func(chunk pipeline.CompressedChunk)
	OnAdjustment func(rec pipeline.QualityAdjustmentRecord)
	OnPersistErr func(err error)
}

// Stats are cumulative counters of a controller.
type Stats struct {
	State           State
	Seq             uint64 // sequence of the current or last segment
	Finalized       int
	Failed          int
	Skipped         int
	PersistFailures int
	IdleRotations   int // rotations that could not open a segment
	Multiplier      float64
}

// Controller is the segment state machine of one session.
type Controller struct {
	cfg     Config
	engine  Engine
	quality QualityPolicy
	store   ports.ChunkStore
	disk    ports.DiskSpace
	logger  ports.Logger
	hooks   Hooks
	now     func() time.Time

	// mu serializes Start, Rotate and Stop.
	mu       sync.Mutex
	state    atomic.Int32
	base     pipeline.CompressionSettings
	current  pipeline.CompressionSettings
	seq      uint64
	started  bool
	stopped  bool
	statsMu  sync.RWMutex
	counters Stats
}

// New creates a controller. base is the session's initial settings; the
// multiplier of every segment comes from quality.
func New(cfg Config, base pipeline.CompressionSettings, engine Engine, quality QualityPolicy,
	store ports.ChunkStore, disk ports.DiskSpace, logger ports.Logger) *Controller {
	c := &Controller{
		cfg:     cfg,
		engine:  engine,
		quality: quality,
		store:   store,
		disk:    disk,
		logger:  logger.WithComponent("segment"),
		base:    base,
		now:     time.Now,
	}
	if c.cfg.Interval <= 0 {
		c.cfg.Interval = base.SegmentDuration
	}
	c.state.Store(int32(StateIdle))
	return c
}

// SetHooks installs lifecycle hooks. Call before Start.
func (c *Controller) SetHooks(h Hooks) {
	c.hooks = h
}

// SetClock replaces the clock used for chunk timestamps.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

// State returns the current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Settings returns the settings of the open segment.
func (c *Controller) Settings() pipeline.CompressionSettings {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.current
}

// Stats returns a snapshot of the counters.
func (c *Controller) Stats() Stats {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	s := c.counters
	s.State = c.State()
	s.Multiplier = c.quality.Multiplier()
	return s
}

// Start opens the first segment.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return errors.New("segment controller already started")
	}
	c.started = true
	return c.openNext()
}

// Rotate finalizes the open segment and opens the next one. Finalize
// failures are absorbed: the failed chunk is returned with a nil error. The
// error is non-nil only when the next segment could not be opened, in which
// case the controller stays idle and the next rotation tries again.
func (c *Controller) Rotate(ctx context.Context) (pipeline.CompressedChunk, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return pipeline.CompressedChunk{}, pipeline.ErrSessionClosed
	}

	chunk, rec, finished := c.finishCurrent()
	if !finished {
		c.bumpIdle()
	}

	openErr := c.openNext()

	// Persist after the next segment is already recording.
	if finished {
		c.persist(ctx, chunk, rec)
	}
	return chunk, openErr
}

// Stop finalizes the open segment and leaves the controller stopped.
func (c *Controller) Stop(ctx context.Context) (pipeline.CompressedChunk, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return pipeline.CompressedChunk{}, nil
	}
	c.stopped = true

	chunk, rec, finished := c.finishCurrent()
	c.state.Store(int32(StateStopped))
	if finished {
		c.persist(ctx, chunk, rec)
	}
	c.logger.Info("Segment controller stopped after %d segments", c.seq)
	return chunk, nil
}

// Run rotates on a wall-clock ticker until ctx is done. Frame timing has no
// influence on when rotation happens.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Rotate(ctx); err != nil {
				if errors.Is(err, pipeline.ErrSessionClosed) {
					return
				}
				c.logger.Warn("Rotation could not open a new segment: %v", err)
			}
		}
	}
}

// finishCurrent finalizes the open segment, if any. Callers hold mu.
func (c *Controller) finishCurrent() (pipeline.CompressedChunk, *pipeline.QualityAdjustmentRecord, bool) {
	if c.State() != StateOpen {
		return pipeline.CompressedChunk{}, nil, false
	}

	c.state.Store(int32(StateFinalizing))
	chunk, err := c.engine.FinalizeSegment()
	chunk.EndedAt = c.now()

	var rec *pipeline.QualityAdjustmentRecord
	switch {
	case err != nil:
		c.state.Store(int32(StateFailed))
		if chunk.Status != pipeline.ChunkFailed {
			chunk.Status = pipeline.ChunkFailed
			chunk.FailureReason = err.Error()
		}
		c.count(func(s *Stats) { s.Failed++ })
		c.logger.Error("Segment %s failed after %d frames: %v", chunk.ID(), chunk.Frames, err)

	case chunk.Status == pipeline.ChunkSkipped:
		c.state.Store(int32(StateFinalized))
		c.count(func(s *Stats) { s.Skipped++ })
		c.logger.Info("Segment %s skipped: no frames", chunk.ID())

	default:
		c.state.Store(int32(StateFinalized))
		c.count(func(s *Stats) { s.Finalized++ })
		c.logger.Info("Segment %s finalized: %d bytes, %d frames, target %d, multiplier %.3f",
			chunk.ID(), chunk.Bytes, chunk.Frames, chunk.TargetBytes, chunk.QualityMultiplier)

		if r, ok := c.quality.Observe(chunk); ok {
			rec = &r
			if c.hooks.OnAdjustment != nil {
				c.hooks.OnAdjustment(r)
			}
		}
	}

	if c.hooks.OnChunk != nil {
		c.hooks.OnChunk(chunk)
	}
	return chunk, rec, true
}

// openNext checks free space and opens the next segment. Callers hold mu.
func (c *Controller) openNext() error {
	if err := CheckDisk(c.disk, c.cfg.OutputDir, c.cfg.MinFreeBytes); err != nil {
		c.state.Store(int32(StateIdle))
		c.logger.Error("Not opening a segment: %v", err)
		return &pipeline.Error{Kind: pipeline.KindStorage, Op: "open", Err: err}
	}

	settings := c.base.WithMultiplier(c.quality.Multiplier())
	seq := c.seq + 1
	chunk := pipeline.CompressedChunk{
		SessionID: c.cfg.SessionID,
		Seq:       seq,
		StartedAt: c.now(),
	}

	if err := c.engine.Open(chunk, settings); err != nil {
		c.state.Store(int32(StateIdle))
		c.logger.Error("Failed to open segment %s: %v", chunk.ID(), err)
		return &pipeline.Error{Kind: pipeline.KindSegment, Op: "open", Chunk: chunk.ID(), Err: err}
	}

	c.seq = seq
	c.statsMu.Lock()
	c.current = settings
	c.counters.Seq = seq
	c.statsMu.Unlock()
	c.state.Store(int32(StateOpen))
	c.logger.Debug("Segment %s open with multiplier %.3f", chunk.ID(), settings.QualityMultiplier)
	return nil
}

// persist hands the chunk and the adjustment record to the store. Failures
// are logged and counted; retrying is the store's concern.
func (c *Controller) persist(ctx context.Context, chunk pipeline.CompressedChunk, rec *pipeline.QualityAdjustmentRecord) {
	if c.store == nil || chunk.Status == pipeline.ChunkSkipped {
		return
	}

	if err := c.store.UpsertChunk(ctx, chunk); err != nil {
		c.persistFailed(&pipeline.Error{Kind: pipeline.KindPersistence, Op: "upsert", Chunk: chunk.ID(), Err: err})
	}

	if rec == nil {
		return
	}
	recorder, ok := c.store.(ports.AdjustmentRecorder)
	if !ok {
		return
	}
	if err := recorder.RecordAdjustment(ctx, *rec); err != nil {
		c.persistFailed(&pipeline.Error{Kind: pipeline.KindPersistence, Op: "record adjustment", Chunk: chunk.ID(), Err: err})
	}
}

func (c *Controller) persistFailed(err error) {
	c.count(func(s *Stats) { s.PersistFailures++ })
	c.logger.Warn("Persisting metadata failed, continuing: %v", err)
	if c.hooks.OnPersistErr != nil {
		c.hooks.OnPersistErr(err)
	}
}

func (c *Controller) bumpIdle() {
	c.count(func(s *Stats) { s.IdleRotations++ })
}

func (c *Controller) count(f func(*Stats)) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	f(&c.counters)
}

// CheckDisk returns a *pipeline.StorageInsufficientError when the volume
// holding dir has less than min bytes free. A nil disk skips the check.
func CheckDisk(disk ports.DiskSpace, dir string, min uint64) error {
	if disk == nil || min == 0 {
		return nil
	}
	avail, err := disk.Available(dir)
	if err != nil {
		return err
	}
	if avail < min {
		return &pipeline.StorageInsufficientError{Path: dir, Available: avail, Required: min}
	}
	return nil
}
