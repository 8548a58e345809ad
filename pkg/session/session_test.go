package session

import (
	"context"
	"errors"
	"image"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/user/screenrec/pkg/adapters/logger"
	"github.com/user/screenrec/pkg/adapters/modelencoder"
	"github.com/user/screenrec/pkg/codec"
	"github.com/user/screenrec/pkg/metrics"
	"github.com/user/screenrec/pkg/mocks"
	"github.com/user/screenrec/pkg/pipeline"
	"github.com/user/screenrec/pkg/ports"
)

const gb = int64(1 << 30)

var t0 = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

type virtualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *virtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *virtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func providerFor(factory func() ports.VideoEncoder) *codec.Provider {
	return codec.NewProvider([]codec.Candidate{{
		Info:  codec.Info{Name: "test-hevc", Codec: pipeline.CodecHEVC, Backend: codec.BackendSoftware},
		Probe: func(context.Context) error { return nil },
		New:   factory,
	}}, logger.NewNoop())
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ID = "sess"
	cfg.OutputDir = "/rec"
	cfg.MinFreeBytes = 1 << 30
	cfg.Retry.InitialBackoff = time.Millisecond
	cfg.Retry.MaxBackoff = time.Millisecond
	return cfg
}

type fixture struct {
	session *Session
	clock   *virtualClock
	fs      *mocks.FileSystem
	disk    *mocks.DiskSpace
	store   *mocks.ChunkStore
	frameTS time.Time
}

func newFixture(t *testing.T, cfg Config, factory func() ports.VideoEncoder) *fixture {
	t.Helper()
	f := &fixture{
		clock:   &virtualClock{now: t0},
		fs:      mocks.NewFileSystem(),
		disk:    &mocks.DiskSpace{Free: uint64(100 * gb)},
		store:   mocks.NewChunkStore(),
		frameTS: t0,
	}
	s, err := New(cfg, Deps{
		Codecs:  providerFor(factory),
		FS:      f.fs,
		Disk:    f.disk,
		Store:   f.store,
		Metrics: metrics.New(),
		Logger:  logger.NewNoop(),
		Clock:   f.clock.Now,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	f.session = s
	t.Cleanup(func() { s.Stop(context.Background()) })
	return f
}

// segment submits one segment's worth of frames at the configured rate and
// advances the clock by one segment duration.
func (f *fixture) segment(t *testing.T, frames int, interval time.Duration) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < frames; i++ {
		if err := f.session.SubmitFrame(img, f.frameTS); err != nil {
			t.Fatalf("SubmitFrame %d failed: %v", i, err)
		}
		f.frameTS = f.frameTS.Add(interval)
	}
	f.clock.Advance(time.Duration(frames) * interval)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"no output dir", func(c *Config) { c.OutputDir = "" }, true},
		{"zero budget", func(c *Config) { c.DailyBudgetBytes = 0 }, true},
		{"too many hours", func(c *Config) { c.ActiveHoursPerDay = 25 }, true},
		{"zero frame rate", func(c *Config) { c.FrameRate = 0 }, true},
		{"queue too deep", func(c *Config) { c.QueueDepth = 3 }, true},
		{"unknown mode", func(c *Config) { c.QualityMode = "ultra" }, true},
		{"fixed mode ignores controller tuning", func(c *Config) {
			c.QualityMode = pipeline.QualityHigh
			c.Quality.Window = 0
		}, false},
		{"bad controller tuning", func(c *Config) { c.Quality.Window = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSession_EightHourDayConvergesToBudget(t *testing.T) {
	cfg := testConfig()
	cfg.DailyBudgetBytes = 2 * gb
	cfg.ActiveHoursPerDay = 8
	cfg.SegmentDuration = 15 * time.Minute
	cfg.FrameRate = 1

	// Content 20% more complex than the baseline bitrate assumes.
	model := modelencoder.NewFactory(modelencoder.Model{Complexity: 1.2})
	f := newFixture(t, cfg, model.NewEncoder)
	ctx := context.Background()

	if err := f.session.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	const segments = 32
	for i := 1; i <= segments; i++ {
		f.segment(t, 900, time.Second)
		var err error
		if i < segments {
			_, err = f.session.Rotate(ctx)
		} else {
			_, err = f.session.Stop(ctx)
		}
		if err != nil {
			t.Fatalf("segment %d: %v", i, err)
		}
	}

	chunks := f.session.Chunks()
	if len(chunks) != segments {
		t.Fatalf("expected %d chunks, got %d", segments, len(chunks))
	}

	var total int64
	for _, c := range chunks {
		if c.Status != pipeline.ChunkFinalized {
			t.Errorf("chunk %s: status %s", c.ID(), c.Status)
		}
		total += c.Bytes
	}
	ratio := float64(total) / float64(2*gb)
	if math.Abs(ratio-1) > 0.10 {
		t.Errorf("day total %d bytes is %.3f of the budget, want within 10%%", total, ratio)
	}

	last := chunks[len(chunks)-1]
	if last.QualityMultiplier >= 1.0 {
		t.Errorf("multiplier should have dropped below 1.0, got %.3f", last.QualityMultiplier)
	}
	if len(f.session.Adjustments()) != segments {
		t.Errorf("expected one decision per finalized chunk, got %d", len(f.session.Adjustments()))
	}
	if len(f.store.Chunks()) != segments {
		t.Errorf("expected all chunks persisted, got %d", len(f.store.Chunks()))
	}

	snap := f.session.Snapshot()
	if snap.Chunks != segments || snap.TotalBytes != total {
		t.Errorf("snapshot mismatch: %+v", snap)
	}
}

func TestSession_StartOrderAndCodecUnavailable(t *testing.T) {
	cfg := testConfig()
	probes := 0
	provider := codec.NewProvider([]codec.Candidate{
		{
			Info:  codec.Info{Name: "hw", Codec: pipeline.CodecHEVC, Backend: codec.BackendHardware},
			Probe: func(context.Context) error { probes++; return errors.New("no device") },
			New:   func() ports.VideoEncoder { return &mocks.VideoEncoder{} },
		},
		{
			Info:  codec.Info{Name: "sw", Codec: pipeline.CodecH264, Backend: codec.BackendSoftware},
			Probe: func(context.Context) error { probes++; return errors.New("not installed") },
			New:   func() ports.VideoEncoder { return &mocks.VideoEncoder{} },
		},
	}, logger.NewNoop())

	fs := mocks.NewFileSystem()
	s, err := New(cfg, Deps{Codecs: provider, FS: fs, Disk: &mocks.DiskSpace{Free: uint64(100 * gb)}, Logger: logger.NewNoop()})
	if err != nil {
		t.Fatal(err)
	}

	err = s.Start(context.Background())
	if !errors.Is(err, pipeline.ErrCodecUnavailable) {
		t.Fatalf("expected ErrCodecUnavailable, got %v", err)
	}
	var perr *pipeline.Error
	if !errors.As(err, &perr) || perr.Kind != pipeline.KindCodec || perr.Recoverable() {
		t.Errorf("expected a fatal codec error, got %v", err)
	}
	if probes != 2 {
		t.Errorf("each candidate should be probed once, got %d probes", probes)
	}
	if len(fs.Files()) != 0 {
		t.Error("no chunk file should exist")
	}
	if err := s.SubmitFrame(image.NewRGBA(image.Rect(0, 0, 1, 1)), t0); !errors.Is(err, pipeline.ErrSegmentNotOpen) {
		t.Errorf("frames must be refused, got %v", err)
	}
}

func TestSession_StorageInsufficientAtStart(t *testing.T) {
	cfg := testConfig()
	factory := &mocks.EncoderFactory{}
	f := newFixture(t, cfg, factory.NewEncoder)
	f.disk.SetFree(uint64(gb / 2))

	err := f.session.Start(context.Background())
	if !errors.Is(err, pipeline.ErrStorageInsufficient) {
		t.Fatalf("expected ErrStorageInsufficient, got %v", err)
	}
	var sie *pipeline.StorageInsufficientError
	if !errors.As(err, &sie) || sie.Available != uint64(gb/2) {
		t.Errorf("expected details of the failed check, got %v", err)
	}
	if len(factory.Encoders()) != 0 || len(f.fs.Files()) != 0 {
		t.Error("no encoder or file should be created")
	}
}

func TestSession_PersistenceFailureDoesNotStopRecording(t *testing.T) {
	cfg := testConfig()
	factory := &mocks.EncoderFactory{}
	f := newFixture(t, cfg, factory.NewEncoder)
	f.store.UpsertChunkFunc = func(context.Context, pipeline.CompressedChunk) error {
		return errors.New("database is locked")
	}
	ctx := context.Background()

	if err := f.session.Start(ctx); err != nil {
		t.Fatal(err)
	}
	f.segment(t, 3, time.Second)
	chunk, err := f.session.Rotate(ctx)
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if chunk.Status != pipeline.ChunkFinalized {
		t.Errorf("chunk should still be finalized, got %s", chunk.Status)
	}

	// One initial attempt plus one retry.
	if f.store.UpsertCalls != 2 {
		t.Errorf("expected 2 upsert attempts, got %d", f.store.UpsertCalls)
	}
	f.segment(t, 3, time.Second)
	stats := f.session.Stats()
	if stats.Segments.PersistFailures != 1 || stats.Segments.Seq != 2 {
		t.Errorf("unexpected stats: %+v", stats.Segments)
	}
	if stats.Engine.Submitted != 6 {
		t.Errorf("expected 6 frames submitted, got %d", stats.Engine.Submitted)
	}
}

func TestSession_FixedQualityMode(t *testing.T) {
	cfg := testConfig()
	cfg.QualityMode = pipeline.QualityLow
	factory := &mocks.EncoderFactory{}
	f := newFixture(t, cfg, factory.NewEncoder)
	ctx := context.Background()

	if err := f.session.Start(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		f.segment(t, 2, time.Second)
		if _, err := f.session.Rotate(ctx); err != nil {
			t.Fatal(err)
		}
	}

	for _, c := range f.session.Chunks() {
		if c.QualityMultiplier != 0.5 {
			t.Errorf("chunk %s: multiplier %.3f, want pinned 0.5", c.ID(), c.QualityMultiplier)
		}
	}
	if len(f.session.Adjustments()) != 0 {
		t.Error("fixed modes must not record adjustments")
	}
	if got := f.session.Stats().Multiplier; got != 0.5 {
		t.Errorf("multiplier = %.3f, want 0.5", got)
	}
}

func TestSession_WarmsStorageMetricsFromHistory(t *testing.T) {
	cfg := testConfig()
	factory := &mocks.EncoderFactory{}
	f := newFixture(t, cfg, factory.NewEncoder)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		f.store.UpsertChunk(ctx, pipeline.CompressedChunk{
			SessionID: "previous",
			Seq:       uint64(i),
			Status:    pipeline.ChunkFinalized,
			Bytes:     100,
			EndedAt:   t0.Add(-time.Duration(i) * 24 * time.Hour),
		})
	}
	// Outside the retention window.
	f.store.UpsertChunk(ctx, pipeline.CompressedChunk{
		SessionID: "ancient", Seq: 1, Status: pipeline.ChunkFinalized, Bytes: 100,
		EndedAt: t0.Add(-60 * 24 * time.Hour),
	})

	if err := f.session.Start(ctx); err != nil {
		t.Fatal(err)
	}
	snap := f.session.Snapshot()
	if snap.Chunks != 3 || snap.TotalBytes != 300 {
		t.Errorf("expected 3 chunks and 300 bytes of history, got %d and %d", snap.Chunks, snap.TotalBytes)
	}
}

func TestSession_StopIsIdempotentAndClosesEncoder(t *testing.T) {
	cfg := testConfig()
	factory := &mocks.EncoderFactory{}
	f := newFixture(t, cfg, factory.NewEncoder)
	ctx := context.Background()

	if err := f.session.Start(ctx); err != nil {
		t.Fatal(err)
	}
	f.segment(t, 4, time.Second)
	if !f.session.Stats().Accepting {
		t.Error("expected the open segment to accept frames")
	}

	last, err := f.session.Stop(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if last.Status != pipeline.ChunkFinalized || last.Frames != 4 {
		t.Errorf("stop should finalize the pending segment, got %s with %d frames", last.Status, last.Frames)
	}
	for _, enc := range factory.Encoders() {
		if !enc.EndCalled && !enc.AbortCalled {
			t.Error("encoder leaked: neither ended nor aborted")
		}
	}

	if f.session.Stats().Accepting {
		t.Error("a stopped session must not accept frames")
	}

	again, err := f.session.Stop(ctx)
	if err != nil || again.Seq != 0 {
		t.Errorf("second Stop should be a no-op, got %+v, %v", again, err)
	}
	if err := f.session.Start(ctx); !errors.Is(err, pipeline.ErrSessionClosed) {
		t.Errorf("restart should fail with ErrSessionClosed, got %v", err)
	}
}

type sliceSource struct {
	frames []ports.CapturedFrame
}

func (s *sliceSource) Frames(ctx context.Context) (<-chan ports.CapturedFrame, error) {
	ch := make(chan ports.CapturedFrame)
	go func() {
		defer close(ch)
		for _, f := range s.frames {
			select {
			case ch <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func TestSession_RunConsumesSourceAndStops(t *testing.T) {
	cfg := testConfig()
	cfg.SegmentDuration = time.Hour
	factory := &mocks.EncoderFactory{}
	f := newFixture(t, cfg, factory.NewEncoder)
	ctx := context.Background()

	src := &sliceSource{}
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < 5; i++ {
		src.frames = append(src.frames, ports.CapturedFrame{Image: img, Timestamp: t0.Add(time.Duration(i) * time.Second)})
	}

	if err := f.session.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.session.Run(ctx, src); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	chunks := f.session.Chunks()
	if len(chunks) != 1 || chunks[0].Frames != 5 {
		t.Fatalf("expected one chunk with 5 frames, got %+v", chunks)
	}
	if len(f.store.Chunks()) != 1 {
		t.Error("final chunk should be persisted on stop")
	}
	if !f.session.Stats().StoppedAt.Equal(t0) {
		t.Errorf("unexpected stop time %s", f.session.Stats().StoppedAt)
	}
}
