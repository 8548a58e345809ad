package segment

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/screenrec/pkg/adapters/logger"
	"github.com/user/screenrec/pkg/engine"
	"github.com/user/screenrec/pkg/mocks"
	"github.com/user/screenrec/pkg/pipeline"
	"github.com/user/screenrec/pkg/ports"
	"github.com/user/screenrec/pkg/quality"
)

const (
	gb           = uint64(1 << 30)
	minFree      = 10 * gb
	targetBytes  = int64(9000)
	frameBytes   = int64(3000) // three frames per segment hit the target at multiplier 1.0
	framesPerSeg = 3
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	ctrl    *Controller
	engine  *engine.Engine
	factory *mocks.EncoderFactory
	fs      *mocks.FileSystem
	disk    *mocks.DiskSpace
	store   *mocks.ChunkStore
	quality *quality.Controller
	log     *logger.Recorder
	clock   time.Time
	frameTS time.Time
}

func baseSettings() pipeline.CompressionSettings {
	return pipeline.CompressionSettings{
		Codec:             pipeline.CodecHEVC,
		QualityMultiplier: 1.0,
		BaseBitrateKbps:   100,
		TargetBytes:       targetBytes,
		KeyFrameInterval:  10,
		SegmentDuration:   15 * time.Minute,
		FrameRate:         1,
	}
}

func newHarness(t *testing.T, configure func(index int, enc *mocks.VideoEncoder)) *harness {
	t.Helper()
	h := &harness{
		fs:      mocks.NewFileSystem(),
		disk:    &mocks.DiskSpace{Free: 100 * gb},
		store:   mocks.NewChunkStore(),
		log:     logger.NewRecorder(),
		clock:   t0,
		frameTS: t0,
	}
	h.factory = &mocks.EncoderFactory{
		FS: h.fs,
		BytesPerFrame: func(opts ports.EncoderOptions) int64 {
			return int64(float64(frameBytes) * opts.Quality)
		},
		Configure: configure,
	}

	h.engine = engine.New(h.factory, h.fs, engine.Config{OutputDir: "/rec"}, logger.NewNoop())
	if err := h.engine.Initialize(baseSettings()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(h.engine.Close)

	h.quality = quality.New(quality.DefaultConfig(), 1.0, logger.NewNoop())
	h.ctrl = New(Config{SessionID: "sess", OutputDir: "/rec", MinFreeBytes: minFree},
		baseSettings(), h.engine, h.quality, h.store, h.disk, h.log)
	h.ctrl.SetClock(func() time.Time { return h.clock })
	return h
}

func (h *harness) feed(t *testing.T, n int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < n; i++ {
		h.frameTS = h.frameTS.Add(time.Second)
		if err := h.engine.SubmitFrame(img, h.frameTS); err != nil {
			t.Fatalf("SubmitFrame failed: %v", err)
		}
	}
	h.clock = h.clock.Add(15 * time.Minute)
}

func TestController_RotationLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if h.ctrl.State() != StateIdle {
		t.Errorf("expected idle before start, got %s", h.ctrl.State())
	}
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if h.ctrl.State() != StateOpen {
		t.Fatalf("expected open after start, got %s", h.ctrl.State())
	}

	h.feed(t, framesPerSeg)
	chunk, err := h.ctrl.Rotate(ctx)
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if chunk.Status != pipeline.ChunkFinalized || chunk.Seq != 1 {
		t.Errorf("expected finalized chunk 1, got %s %d", chunk.Status, chunk.Seq)
	}
	if !chunk.EndedAt.Equal(t0.Add(15 * time.Minute)) {
		t.Errorf("unexpected end time %s", chunk.EndedAt)
	}
	if h.ctrl.State() != StateOpen || h.ctrl.Stats().Seq != 2 {
		t.Errorf("next segment should be open, state %s seq %d", h.ctrl.State(), h.ctrl.Stats().Seq)
	}

	stored := h.store.Chunks()
	if len(stored) != 1 || stored[0].ID() != "sess-000001" {
		t.Errorf("expected chunk 1 persisted, got %+v", stored)
	}
	if len(h.store.Adjustments()) != 1 {
		t.Errorf("expected one adjustment record persisted, got %d", len(h.store.Adjustments()))
	}

	if _, err := h.ctrl.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if h.ctrl.State() != StateStopped {
		t.Errorf("expected stopped, got %s", h.ctrl.State())
	}
	if _, err := h.ctrl.Rotate(ctx); !errors.Is(err, pipeline.ErrSessionClosed) {
		t.Errorf("rotate after stop should fail with ErrSessionClosed, got %v", err)
	}
}

func TestController_FailureOnThirdOfFiveSegments(t *testing.T) {
	h := newHarness(t, func(index int, enc *mocks.VideoEncoder) {
		if index == 3 {
			enc.EndFunc = func() (ports.EncodeResult, error) {
				return ports.EncodeResult{}, errors.New("encoder lost")
			}
		}
	})
	ctx := context.Background()

	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatal(err)
	}

	var chunks []pipeline.CompressedChunk
	for i := 1; i <= 5; i++ {
		h.feed(t, framesPerSeg)
		var chunk pipeline.CompressedChunk
		var err error
		if i < 5 {
			chunk, err = h.ctrl.Rotate(ctx)
		} else {
			chunk, err = h.ctrl.Stop(ctx)
		}
		if err != nil {
			t.Fatalf("segment %d: unexpected error %v", i, err)
		}
		chunks = append(chunks, chunk)
	}

	var finalized, failed int
	for i, c := range chunks {
		switch c.Status {
		case pipeline.ChunkFinalized:
			finalized++
		case pipeline.ChunkFailed:
			failed++
			if i != 2 {
				t.Errorf("unexpected failure of segment %d", i+1)
			}
			if c.Path != "" || c.FailureReason == "" {
				t.Errorf("failed chunk should have no path and a reason: %+v", c)
			}
		}
	}
	if finalized != 4 || failed != 1 {
		t.Errorf("expected 4 finalized and 1 failed, got %d and %d", finalized, failed)
	}

	stats := h.ctrl.Stats()
	if stats.Finalized != 4 || stats.Failed != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if got := len(h.quality.History()); got != 4 {
		t.Errorf("failed chunk must not reach the quality controller, %d observations", got)
	}
	if _, ok := h.fs.Files()["/rec/sess-000003.mp4"]; ok {
		t.Error("partial file of the failed segment should be removed")
	}
	if len(h.fs.Files()) != 4 {
		t.Errorf("expected 4 chunk files, got %d", len(h.fs.Files()))
	}
}

func TestController_StorageInsufficientAtStart(t *testing.T) {
	h := newHarness(t, nil)
	h.disk.SetFree(minFree - 1)

	err := h.ctrl.Start(context.Background())
	if !errors.Is(err, pipeline.ErrStorageInsufficient) {
		t.Fatalf("expected ErrStorageInsufficient, got %v", err)
	}
	var sie *pipeline.StorageInsufficientError
	if !errors.As(err, &sie) || sie.Available != minFree-1 || sie.Required != minFree {
		t.Errorf("expected details of the failed check, got %#v", err)
	}

	if h.ctrl.State() != StateIdle {
		t.Errorf("expected idle, got %s", h.ctrl.State())
	}
	if h.engine.Accepting() {
		t.Error("no segment may be open")
	}
	if err := h.engine.SubmitFrame(image.NewRGBA(image.Rect(0, 0, 2, 2)), t0); !errors.Is(err, pipeline.ErrSegmentNotOpen) {
		t.Errorf("frames must be rejected, got %v", err)
	}
	if len(h.factory.Encoders()) != 0 || len(h.fs.Files()) != 0 {
		t.Error("no encoder or file may be created")
	}
}

func TestController_StorageInsufficientAtRotationRecovers(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatal(err)
	}
	h.feed(t, framesPerSeg)

	h.disk.SetFree(0)
	chunk, err := h.ctrl.Rotate(ctx)
	if !errors.Is(err, pipeline.ErrStorageInsufficient) {
		t.Fatalf("expected ErrStorageInsufficient, got %v", err)
	}
	if chunk.Status != pipeline.ChunkFinalized {
		t.Errorf("the open segment should still finalize, got %s", chunk.Status)
	}
	if h.ctrl.State() != StateIdle {
		t.Errorf("expected idle, got %s", h.ctrl.State())
	}

	// Still no space: nothing to finalize, still idle
	if _, err := h.ctrl.Rotate(ctx); !errors.Is(err, pipeline.ErrStorageInsufficient) {
		t.Errorf("expected ErrStorageInsufficient again, got %v", err)
	}

	h.disk.SetFree(100 * gb)
	chunk, err = h.ctrl.Rotate(ctx)
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if chunk.Status != "" {
		t.Errorf("idle rotation should not produce a chunk, got %s", chunk.Status)
	}
	stats := h.ctrl.Stats()
	if stats.State != StateOpen || stats.Seq != 2 || stats.IdleRotations != 2 {
		t.Errorf("unexpected stats after recovery: %+v", stats)
	}
}

func TestController_PersistFailureDoesNotBlock(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	var openDuringPersist atomic.Bool
	calls := 0
	h.store.UpsertChunkFunc = func(context.Context, pipeline.CompressedChunk) error {
		calls++
		openDuringPersist.Store(h.engine.Accepting())
		return errors.New("database locked")
	}

	var hookErrs int
	h.ctrl.SetHooks(Hooks{OnPersistErr: func(error) { hookErrs++ }})

	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatal(err)
	}
	h.feed(t, framesPerSeg)
	if _, err := h.ctrl.Rotate(ctx); err != nil {
		t.Fatalf("persistence failure must not surface: %v", err)
	}

	if calls != 1 {
		t.Errorf("expected one upsert call, got %d", calls)
	}
	if !openDuringPersist.Load() {
		t.Error("the next segment should be open before the chunk is persisted")
	}
	if h.ctrl.Stats().PersistFailures != 1 || hookErrs != 1 {
		t.Errorf("expected one persist failure, got %d (hook %d)", h.ctrl.Stats().PersistFailures, hookErrs)
	}
	if h.ctrl.State() != StateOpen {
		t.Errorf("recording should continue, state %s", h.ctrl.State())
	}

	warns := h.log.Entries(ports.LevelWarn)
	if len(warns) != 1 || warns[0].Component != "segment" || !strings.Contains(warns[0].Message, "sess-000001") {
		t.Errorf("expected one segment warning naming the chunk, got %+v", warns)
	}
}

func TestController_MultiplierAppliesToNextSegmentOnly(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatal(err)
	}

	// Twice the frames: the chunk is twice its target
	h.feed(t, 2*framesPerSeg)
	chunk, err := h.ctrl.Rotate(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if chunk.QualityMultiplier != 1.0 {
		t.Errorf("finished chunk keeps its multiplier, got %f", chunk.QualityMultiplier)
	}
	next := h.ctrl.Settings().QualityMultiplier
	if next >= 1.0 {
		t.Errorf("oversized chunk should lower the next multiplier, got %f", next)
	}
	if next != h.quality.Multiplier() {
		t.Errorf("next segment should use the controller's multiplier %f, got %f", h.quality.Multiplier(), next)
	}
	if h.ctrl.Settings().TargetBytes != targetBytes {
		t.Error("target bytes must not change between segments")
	}
}

func TestController_SkippedSegment(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatal(err)
	}

	chunk, err := h.ctrl.Rotate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if chunk.Status != pipeline.ChunkSkipped {
		t.Errorf("expected skipped chunk, got %s", chunk.Status)
	}
	if h.ctrl.Stats().Skipped != 1 {
		t.Error("skipped segment should be counted")
	}
	if h.store.UpsertCalls != 0 {
		t.Error("skipped segments are not persisted")
	}
	if len(h.quality.History()) != 0 {
		t.Error("skipped segments are not observed")
	}
}

func TestController_RunRotatesOnTicker(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.cfg.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		h.ctrl.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for h.ctrl.Stats().Seq < 3 {
		if time.Now().After(deadline) {
			t.Fatal("ticker did not rotate")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}

func TestCheckDisk(t *testing.T) {
	if err := CheckDisk(nil, "/rec", 1); err != nil {
		t.Errorf("nil disk should skip the check, got %v", err)
	}

	disk := &mocks.DiskSpace{AvailableFunc: func(string) (uint64, error) {
		return 0, errors.New("statfs failed")
	}}
	if err := CheckDisk(disk, "/rec", 1); err == nil || errors.Is(err, pipeline.ErrStorageInsufficient) {
		t.Errorf("probe errors should surface as-is, got %v", err)
	}
}
