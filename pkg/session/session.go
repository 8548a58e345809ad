// Package session wires one recording session: codec selection, the
// compression engine, the segment controller, quality control and storage
// metrics. A Session is an explicit object; nothing here is global.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/screenrec/pkg/adapters/logger"
	"github.com/user/screenrec/pkg/codec"
	"github.com/user/screenrec/pkg/engine"
	"github.com/user/screenrec/pkg/metrics"
	"github.com/user/screenrec/pkg/persist"
	"github.com/user/screenrec/pkg/pipeline"
	"github.com/user/screenrec/pkg/ports"
	"github.com/user/screenrec/pkg/quality"
	"github.com/user/screenrec/pkg/segment"
	"github.com/user/screenrec/pkg/storagemetrics"
)

// Config contains the initial settings of a session. It is supplied once;
// changing it requires a new session.
type Config struct {
	ID        string // generated when empty
	OutputDir string

	QualityMode pipeline.QualityMode
	Quality     quality.Config

	DailyBudgetBytes  int64
	ActiveHoursPerDay float64
	SegmentDuration   time.Duration
	FrameRate         float64
	KeyFrameInterval  int // frames; defaults to two seconds of frames

	QueueDepth    int
	SubmitTimeout time.Duration
	MinFreeBytes  uint64

	Retention   time.Duration
	AlertMargin float64

	Retry persist.RetryConfig
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		OutputDir:         "recordings",
		QualityMode:       pipeline.QualityAuto,
		Quality:           quality.DefaultConfig(),
		DailyBudgetBytes:  2 << 30,
		ActiveHoursPerDay: 8,
		SegmentDuration:   15 * time.Minute,
		FrameRate:         1,
		QueueDepth:        2,
		MinFreeBytes:      1 << 30,
		Retention:         30 * 24 * time.Hour,
		AlertMargin:       0.10,
		Retry:             persist.DefaultRetryConfig(),
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	switch {
	case c.OutputDir == "":
		return errors.New("output directory is required")
	case c.DailyBudgetBytes <= 0:
		return fmt.Errorf("daily budget must be positive, got %d", c.DailyBudgetBytes)
	case c.ActiveHoursPerDay <= 0 || c.ActiveHoursPerDay > 24:
		return fmt.Errorf("active hours per day must be in (0, 24], got %g", c.ActiveHoursPerDay)
	case c.SegmentDuration <= 0:
		return fmt.Errorf("segment duration must be positive, got %s", c.SegmentDuration)
	case c.FrameRate <= 0:
		return fmt.Errorf("frame rate must be positive, got %g", c.FrameRate)
	case c.QueueDepth < 0 || c.QueueDepth > 2:
		return fmt.Errorf("queue depth must be 1 or 2, got %d", c.QueueDepth)
	case c.AlertMargin < 0:
		return fmt.Errorf("alert margin must not be negative, got %g", c.AlertMargin)
	}
	if c.QualityMode.Adaptive() {
		return c.Quality.Validate()
	}
	if _, ok := c.QualityMode.FixedMultiplier(); !ok {
		return fmt.Errorf("unknown quality mode %q", c.QualityMode)
	}
	return nil
}

// CodecSelector picks the encoder of a session. *codec.Provider implements it.
type CodecSelector interface {
	Select(ctx context.Context) (*codec.Handle, error)
}

// Deps are the collaborators of a session. Store, Disk and Metrics are optional.
type Deps struct {
	Codecs  CodecSelector
	FS      ports.FileSystem
	Disk    ports.DiskSpace
	Store   ports.ChunkStore
	Metrics *metrics.Metrics
	Logger  ports.Logger
	Clock   func() time.Time
}

// Stats is a point-in-time view of a session.
type Stats struct {
	ID         string
	Codec      codec.Info
	StartedAt  time.Time
	StoppedAt  time.Time
	Settings   pipeline.CompressionSettings
	Engine     engine.Stats
	Segments   segment.Stats
	Multiplier float64
	Storage    pipeline.StorageMetricsSnapshot
	Accepting  bool // a segment is open for frames
}

// Session is one recording: one pipeline instance.
type Session struct {
	cfg    Config
	deps   Deps
	logger ports.Logger
	now    func() time.Time
	id     string

	store      ports.ChunkStore
	policy     quality.Policy
	aggregator *storagemetrics.Aggregator

	mu        sync.Mutex
	started   bool
	stopped   bool
	handle    *codec.Handle
	engine    *engine.Engine
	segments  *segment.Controller
	base      pipeline.CompressionSettings
	startedAt time.Time
	stoppedAt time.Time

	chunksMu sync.RWMutex
	chunks   []pipeline.CompressedChunk
}

// New validates cfg and creates a session. Nothing is started yet.
func New(cfg Config, deps Deps) (*Session, error) {
	if cfg.QueueDepth == 0 {
		cfg.QueueDepth = 2
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	if deps.Codecs == nil {
		return nil, errors.New("session requires a codec selector")
	}
	if deps.FS == nil {
		return nil, errors.New("session requires a file system")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoop()
	}

	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}

	s := &Session{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.WithComponent("session"),
		now:    deps.Clock,
		id:     id,
	}

	policy, err := quality.ForMode(cfg.QualityMode, cfg.Quality, deps.Logger)
	if err != nil {
		return nil, err
	}
	if c, ok := policy.(*quality.Controller); ok {
		c.SetClock(deps.Clock)
	}
	s.policy = policy

	s.aggregator = storagemetrics.New(storagemetrics.Config{
		Retention:   cfg.Retention,
		DailyBudget: cfg.DailyBudgetBytes,
		AlertMargin: cfg.AlertMargin,
	})
	s.aggregator.SetClock(deps.Clock)

	if deps.Store != nil {
		var rec persist.Recorder
		if deps.Metrics != nil {
			rec = deps.Metrics
		}
		s.store = persist.NewRetrying(deps.Store, cfg.Retry, rec, deps.Logger)
	}
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Start runs the start sequence: free-space check, codec selection, engine
// initialization, metrics warm-up and the first segment. Codec and storage
// failures are fatal for this attempt and leave nothing running.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return pipeline.ErrSessionClosed
	}
	if s.started {
		return errors.New("session already started")
	}

	s.logger.Info("Starting session %s", s.id)

	if err := segment.CheckDisk(s.deps.Disk, s.cfg.OutputDir, s.cfg.MinFreeBytes); err != nil {
		s.logger.Error("Session %s cannot start: %v", s.id, err)
		return &pipeline.Error{Kind: pipeline.KindStorage, Op: "start", Err: err}
	}

	handle, err := s.deps.Codecs.Select(ctx)
	if err != nil {
		s.logger.Error("Session %s cannot start: %v", s.id, err)
		return &pipeline.Error{Kind: pipeline.KindCodec, Op: "start", Err: err}
	}
	info := handle.Info()

	s.base = s.baseSettings(info)
	eng := engine.New(handle, s.deps.FS, engine.Config{
		OutputDir:     s.cfg.OutputDir,
		QueueDepth:    s.cfg.QueueDepth,
		SubmitTimeout: s.cfg.SubmitTimeout,
	}, s.deps.Logger)
	if err := eng.Initialize(s.base); err != nil {
		eng.Close()
		s.logger.Error("Session %s cannot start: %v", s.id, err)
		return err
	}

	s.warmUp(ctx)

	ctrl := segment.New(segment.Config{
		SessionID:    s.id,
		OutputDir:    s.cfg.OutputDir,
		Interval:     s.cfg.SegmentDuration,
		MinFreeBytes: s.cfg.MinFreeBytes,
	}, s.base, eng, s.policy, s.store, s.deps.Disk, s.deps.Logger)
	ctrl.SetClock(s.now)
	ctrl.SetHooks(segment.Hooks{
		OnChunk:      s.onChunk,
		OnAdjustment: s.onAdjustment,
	})

	if err := ctrl.Start(ctx); err != nil {
		eng.Close()
		return err
	}

	s.handle = handle
	s.engine = eng
	s.segments = ctrl
	s.started = true
	s.startedAt = s.now()
	if m := s.deps.Metrics; m != nil {
		m.SetQualityMultiplier(s.policy.Multiplier())
	}

	s.logger.Info("Session %s recording with %s (%s), target %d bytes per %s segment",
		s.id, info.Name, info.Backend, s.base.TargetBytes, s.cfg.SegmentDuration)
	return nil
}

func (s *Session) baseSettings(info codec.Info) pipeline.CompressionSettings {
	target := pipeline.SegmentBudget(s.cfg.DailyBudgetBytes, s.cfg.ActiveHoursPerDay, s.cfg.SegmentDuration)
	keyInt := s.cfg.KeyFrameInterval
	if keyInt <= 0 {
		keyInt = int(2 * s.cfg.FrameRate)
		if keyInt < 1 {
			keyInt = 1
		}
	}
	return pipeline.CompressionSettings{
		Codec:             info.Codec,
		Backend:           string(info.Backend),
		QualityMultiplier: s.policy.Multiplier(),
		BaseBitrateKbps:   pipeline.BaseBitrate(target, s.cfg.SegmentDuration),
		TargetBytes:       target,
		KeyFrameInterval:  keyInt,
		SegmentDuration:   s.cfg.SegmentDuration,
		FrameRate:         s.cfg.FrameRate,
	}
}

// warmUp loads the retention window's chunk history into the aggregator.
func (s *Session) warmUp(ctx context.Context) {
	history, ok := s.store.(ports.ChunkHistory)
	if !ok {
		return
	}
	since := s.now().Add(-s.cfg.Retention)
	chunks, err := history.ListChunks(ctx, since)
	if err != nil {
		s.logger.Warn("Could not load chunk history: %v", err)
		return
	}
	s.aggregator.Load(chunks)
	s.logger.Debug("Loaded %d chunks of history", len(chunks))
}

func (s *Session) onChunk(c pipeline.CompressedChunk) {
	s.aggregator.Add(c)

	s.chunksMu.Lock()
	s.chunks = append(s.chunks, c)
	s.chunksMu.Unlock()

	if m := s.deps.Metrics; m != nil {
		m.ObserveChunk(c)
		m.SetStorage(s.aggregator.Snapshot())
	}
}

func (s *Session) onAdjustment(r pipeline.QualityAdjustmentRecord) {
	if r.Clamped {
		s.logger.Debug("Quality multiplier clamped to %.3f after %s", r.NewFactor, r.ChunkID)
	}
	if m := s.deps.Metrics; m != nil {
		m.ObserveAdjustment(r)
	}
}

// SubmitFrame hands a frame to the open segment. Frames rejected or dropped
// are counted and reported through the returned error.
func (s *Session) SubmitFrame(img image.Image, ts time.Time) error {
	s.mu.Lock()
	eng := s.engine
	s.mu.Unlock()
	if eng == nil {
		return pipeline.ErrSegmentNotOpen
	}

	err := eng.SubmitFrame(img, ts)
	if m := s.deps.Metrics; m != nil {
		switch {
		case err == nil:
			m.IncFramesSubmitted()
		case errors.Is(err, pipeline.ErrFrameSubmitTimeout):
			m.IncFramesDropped()
		default:
			m.IncFramesRejected()
		}
	}
	if errors.Is(err, pipeline.ErrFrameSubmitTimeout) {
		s.logger.Debug("Frame at %s dropped: encoder busy", ts.Format(time.RFC3339))
	}
	return err
}

// Rotate finalizes the open segment and opens the next one outside the
// ticker, e.g. for simulations driven by a virtual clock.
func (s *Session) Rotate(ctx context.Context) (pipeline.CompressedChunk, error) {
	s.mu.Lock()
	ctrl := s.segments
	s.mu.Unlock()
	if ctrl == nil {
		return pipeline.CompressedChunk{}, pipeline.ErrSegmentNotOpen
	}
	return ctrl.Rotate(ctx)
}

// Run feeds frames from source into the session and rotates segments on a
// wall-clock ticker until ctx is done or the source ends, then stops the
// session. Start must have succeeded.
func (s *Session) Run(ctx context.Context, source ports.FrameSource) error {
	s.mu.Lock()
	ctrl := s.segments
	s.mu.Unlock()
	if ctrl == nil {
		return errors.New("session not started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames, err := source.Frames(runCtx)
	if err != nil {
		s.Stop(context.WithoutCancel(ctx))
		return fmt.Errorf("capture source: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctrl.Run(runCtx)
	}()

	for f := range frames {
		err := s.SubmitFrame(f.Image, f.Timestamp)
		if err == nil || errors.Is(err, pipeline.ErrSegmentNotOpen) {
			continue
		}
		var perr *pipeline.Error
		if errors.As(err, &perr) && perr.Recoverable() {
			continue
		}
		s.logger.Warn("Frame rejected: %v", err)
	}

	cancel()
	wg.Wait()
	_, err = s.Stop(context.WithoutCancel(ctx))
	return err
}

// Stop finalizes the open segment, releases the encoder and returns the
// last chunk. Calling Stop again is a no-op.
func (s *Session) Stop(ctx context.Context) (pipeline.CompressedChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return pipeline.CompressedChunk{}, nil
	}
	s.stopped = true
	if !s.started {
		return pipeline.CompressedChunk{}, nil
	}

	last, err := s.segments.Stop(ctx)
	s.engine.Close()
	s.stoppedAt = s.now()

	es := s.engine.Stats()
	ss := s.segments.Stats()
	s.logger.Info("Session %s stopped: %d finalized, %d failed, %d frames dropped",
		s.id, ss.Finalized, ss.Failed, es.Dropped)
	return last, err
}

// Snapshot returns the current storage metrics view.
func (s *Session) Snapshot() pipeline.StorageMetricsSnapshot {
	return s.aggregator.Snapshot()
}

// Chunks returns the chunks produced by this session, in order.
func (s *Session) Chunks() []pipeline.CompressedChunk {
	s.chunksMu.RLock()
	defer s.chunksMu.RUnlock()
	out := make([]pipeline.CompressedChunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// Adjustments returns the quality decision trail, empty for fixed modes.
func (s *Session) Adjustments() []pipeline.QualityAdjustmentRecord {
	if c, ok := s.policy.(*quality.Controller); ok {
		return c.History()
	}
	return nil
}

// Stats returns a point-in-time view of the session.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		ID:         s.id,
		StartedAt:  s.startedAt,
		StoppedAt:  s.stoppedAt,
		Settings:   s.base,
		Multiplier: s.policy.Multiplier(),
		Storage:    s.aggregator.Snapshot(),
	}
	if s.handle != nil {
		st.Codec = s.handle.Info()
	}
	if s.engine != nil {
		st.Engine = s.engine.Stats()
		st.Accepting = s.engine.Accepting()
	}
	if s.segments != nil {
		st.Segments = s.segments.Stats()
		st.Settings = s.segments.Settings()
	}
	return st
}
