// Package engine runs the encoder of the open segment.
//
// A single worker goroutine owns the encoder and all per-segment state.
// Frames reach it through a bounded queue; when the queue stays full for
// longer than the submit budget the frame is dropped. Finalizing closes the
// gate first, so no frame submitted after that point joins the segment, then
// the worker drains what was queued and closes the encoder.
package engine

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/screenrec/pkg/pipeline"
	"github.com/user/screenrec/pkg/ports"
)

// EncoderFactory creates one encoder per segment. *codec.Handle implements it.
type EncoderFactory interface {
	NewEncoder() ports.VideoEncoder
}

// Config configures the engine.
type Config struct {
	// OutputDir receives the chunk files.
	OutputDir string
	// QueueDepth is the number of frames that may wait for the worker (1 or 2).
	QueueDepth int
	// SubmitTimeout bounds how long SubmitFrame waits for queue space.
	// Defaults to one frame interval.
	SubmitTimeout time.Duration
	// FileExt is the chunk file extension.
	FileExt string
}

// Stats are cumulative counters of an engine.
type Stats struct {
	Submitted int64 // frames queued
	Dropped   int64 // frames dropped on timeout
	Rejected  int64 // frames refused because no segment was open
	Encoded   int64 // frames handed to an encoder
}

type frame struct {
	img image.Image
	ts  time.Time
}

type requestKind int

const (
	reqOpen requestKind = iota
	reqFinalize
)

type request struct {
	kind     requestKind
	chunk    pipeline.CompressedChunk
	settings pipeline.CompressionSettings
	dropped  int64
	reply    chan response
}

type response struct {
	chunk pipeline.CompressedChunk
	err   error
}

// segment is the worker-owned state of the open segment.
type segment struct {
	chunk    pipeline.CompressedChunk
	settings pipeline.CompressionSettings
	encoder  ports.VideoEncoder
	began    bool
	first    time.Time
	last     time.Time
	frames   int
	rawBytes int64
	err      error
}

// Engine wraps the active encoder of a session.
type Engine struct {
	factory EncoderFactory
	fs      ports.FileSystem
	logger  ports.Logger
	cfg     Config

	// gate serializes the accepting flag against in-flight submits:
	// submitters hold the read side while enqueuing.
	gate      sync.RWMutex
	accepting bool
	openID    string

	frames   chan frame
	requests chan request
	quit     chan struct{}
	done     chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool

	segDropped atomic.Int64
	submitted  atomic.Int64
	dropped    atomic.Int64
	rejected   atomic.Int64
	encoded    atomic.Int64
}

// New creates an engine. Call Initialize before opening a segment.
func New(factory EncoderFactory, fs ports.FileSystem, cfg Config, logger ports.Logger) *Engine {
	if cfg.QueueDepth < 1 {
		cfg.QueueDepth = 2
	}
	if cfg.FileExt == "" {
		cfg.FileExt = ".mp4"
	}
	return &Engine{
		factory:  factory,
		fs:       fs,
		logger:   logger.WithComponent("engine"),
		cfg:      cfg,
		frames:   make(chan frame, cfg.QueueDepth),
		requests: make(chan request),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Initialize checks that settings are usable and that there is an encoder
// factory, then starts the worker.
func (e *Engine) Initialize(settings pipeline.CompressionSettings) error {
	if err := validate(settings); err != nil {
		return err
	}
	if e.factory == nil {
		return &pipeline.Error{Kind: pipeline.KindCodec, Op: "initialize", Err: pipeline.ErrCodecUnavailable}
	}

	if e.cfg.SubmitTimeout <= 0 {
		e.cfg.SubmitTimeout = time.Duration(float64(time.Second) / settings.FrameRate)
	}
	if err := e.fs.MkdirAll(e.cfg.OutputDir); err != nil {
		return &pipeline.Error{Kind: pipeline.KindStorage, Op: "initialize", Err: err}
	}

	e.startOnce.Do(func() {
		e.started.Store(true)
		go e.run()
	})
	return nil
}

func validate(s pipeline.CompressionSettings) error {
	switch {
	case s.FrameRate <= 0:
		return fmt.Errorf("frame rate must be positive, got %g", s.FrameRate)
	case s.SegmentDuration <= 0:
		return fmt.Errorf("segment duration must be positive, got %s", s.SegmentDuration)
	case s.TargetBytes <= 0:
		return fmt.Errorf("target bytes must be positive, got %d", s.TargetBytes)
	case s.QualityMultiplier <= 0:
		return fmt.Errorf("quality multiplier must be positive, got %g", s.QualityMultiplier)
	}
	return nil
}

// Open starts a new segment for chunk with settings fixed for its lifetime.
// The encoder itself begins with the first frame, whose size it adopts.
func (e *Engine) Open(chunk pipeline.CompressedChunk, settings pipeline.CompressionSettings) error {
	e.gate.Lock()
	defer e.gate.Unlock()

	if e.accepting {
		return fmt.Errorf("segment %s still open", chunk.ID())
	}

	chunk.Status = pipeline.ChunkOpen
	chunk.Path = filepath.Join(e.cfg.OutputDir, chunk.ID()+e.cfg.FileExt)
	chunk.Codec = settings.Codec
	chunk.QualityMultiplier = settings.QualityMultiplier
	chunk.TargetBytes = settings.TargetBytes

	resp, err := e.call(request{kind: reqOpen, chunk: chunk, settings: settings})
	if err != nil {
		return err
	}
	if resp.err != nil {
		return resp.err
	}

	e.segDropped.Store(0)
	e.accepting = true
	e.openID = chunk.ID()
	return nil
}

// SubmitFrame queues a frame for the open segment. It waits at most the
// submit budget for queue space, then drops the frame and returns a
// recoverable *pipeline.Error of kind frame wrapping ErrFrameSubmitTimeout.
func (e *Engine) SubmitFrame(img image.Image, ts time.Time) error {
	e.gate.RLock()
	defer e.gate.RUnlock()

	if !e.accepting {
		e.rejected.Add(1)
		return pipeline.ErrSegmentNotOpen
	}

	f := frame{img: img, ts: ts}
	select {
	case e.frames <- f:
		e.submitted.Add(1)
		return nil
	default:
	}

	timer := time.NewTimer(e.cfg.SubmitTimeout)
	defer timer.Stop()
	select {
	case e.frames <- f:
		e.submitted.Add(1)
		return nil
	case <-timer.C:
		e.segDropped.Add(1)
		e.dropped.Add(1)
		return &pipeline.Error{Kind: pipeline.KindFrame, Op: "submit", Chunk: e.openID, Err: pipeline.ErrFrameSubmitTimeout}
	}
}

// Accepting reports whether a segment is open for frames.
func (e *Engine) Accepting() bool {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.accepting
}

// FinalizeSegment stops accepting frames, drains the queue into the encoder
// and closes it. A segment without frames yields a skipped chunk and no error.
// On failure the chunk is marked failed, its partial file is removed and the
// returned error matches pipeline.ErrSegmentFinalize.
func (e *Engine) FinalizeSegment() (pipeline.CompressedChunk, error) {
	e.gate.Lock()
	if !e.accepting {
		e.gate.Unlock()
		return pipeline.CompressedChunk{}, pipeline.ErrSegmentNotOpen
	}
	e.accepting = false
	e.gate.Unlock()

	resp, err := e.call(request{kind: reqFinalize, dropped: e.segDropped.Load()})
	if err != nil {
		return pipeline.CompressedChunk{}, err
	}
	return resp.chunk, resp.err
}

// Close stops the worker. An encoder still open is aborted and its file removed.
func (e *Engine) Close() {
	e.gate.Lock()
	e.accepting = false
	e.gate.Unlock()

	e.stopOnce.Do(func() { close(e.quit) })
	e.startOnce.Do(func() { close(e.done) })
	<-e.done
}

// Stats returns the cumulative counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Submitted: e.submitted.Load(),
		Dropped:   e.dropped.Load(),
		Rejected:  e.rejected.Load(),
		Encoded:   e.encoded.Load(),
	}
}

var (
	errClosed         = errors.New("engine closed")
	errNotInitialized = errors.New("engine not initialized")
)

func (e *Engine) call(req request) (response, error) {
	if !e.started.Load() {
		return response{}, errNotInitialized
	}
	req.reply = make(chan response, 1)
	select {
	case e.requests <- req:
	case <-e.done:
		return response{}, fmt.Errorf("%w: %w", pipeline.ErrSessionClosed, errClosed)
	}
	return <-req.reply, nil
}

func (e *Engine) run() {
	defer close(e.done)

	var seg *segment
	for {
		select {
		case f := <-e.frames:
			e.encode(seg, f)

		case req := <-e.requests:
			switch req.kind {
			case reqOpen:
				seg = &segment{chunk: req.chunk, settings: req.settings}
				e.logger.Debug("Segment %s opened (multiplier %.3f, target %d bytes)",
					req.chunk.ID(), req.settings.QualityMultiplier, req.settings.TargetBytes)
				req.reply <- response{}
			case reqFinalize:
				e.drain(seg)
				chunk, err := e.finalize(seg, req.dropped)
				seg = nil
				req.reply <- response{chunk: chunk, err: err}
			}

		case <-e.quit:
			e.drain(seg)
			if seg != nil && seg.encoder != nil {
				seg.encoder.Abort()
				e.fs.Remove(seg.chunk.Path)
				e.logger.Warn("Segment %s aborted on close", seg.chunk.ID())
			}
			return
		}
	}
}

// drain encodes every frame queued before the gate closed.
func (e *Engine) drain(seg *segment) {
	for {
		select {
		case f := <-e.frames:
			e.encode(seg, f)
		default:
			return
		}
	}
}

func (e *Engine) encode(seg *segment, f frame) {
	if seg == nil || seg.err != nil {
		return
	}

	if !seg.began {
		seg.began = true
		seg.encoder = e.factory.NewEncoder()
		if seg.encoder == nil {
			seg.err = pipeline.ErrCodecUnavailable
			return
		}
		b := f.img.Bounds()
		opts := ports.EncoderOptions{
			FPS:              seg.settings.FrameRate,
			BitrateKbps:      seg.settings.BitrateKbps(),
			Quality:          seg.settings.QualityMultiplier,
			KeyFrameInterval: seg.settings.KeyFrameInterval,
		}
		if err := seg.encoder.Begin(seg.chunk.Path, b.Dx(), b.Dy(), opts); err != nil {
			seg.err = fmt.Errorf("begin: %w", err)
			return
		}
		seg.first = f.ts
	}

	offset := f.ts.Sub(seg.first)
	if offset < 0 {
		offset = 0
	}
	if err := seg.encoder.EncodeFrame(f.img, offset); err != nil {
		seg.err = fmt.Errorf("encode frame %d: %w", seg.frames, err)
		return
	}

	b := f.img.Bounds()
	seg.frames++
	seg.rawBytes += int64(b.Dx()) * int64(b.Dy()) * 4
	seg.last = f.ts
	e.encoded.Add(1)
}

func (e *Engine) finalize(seg *segment, dropped int64) (pipeline.CompressedChunk, error) {
	if seg == nil {
		return pipeline.CompressedChunk{}, pipeline.ErrSegmentNotOpen
	}

	chunk := seg.chunk
	chunk.Status = pipeline.ChunkFinalizing
	chunk.Frames = seg.frames
	chunk.DroppedFrames = int(dropped)
	chunk.RawBytes = seg.rawBytes
	if seg.frames > 0 {
		chunk.Duration = seg.last.Sub(seg.first) + time.Duration(float64(time.Second)/seg.settings.FrameRate)
	}

	if seg.err == nil && seg.frames == 0 {
		chunk.Status = pipeline.ChunkSkipped
		chunk.Path = ""
		return chunk, nil
	}

	if seg.err != nil {
		return e.fail(seg, chunk, seg.err)
	}

	result, err := seg.encoder.End()
	if err != nil {
		return e.fail(seg, chunk, fmt.Errorf("end: %w", err))
	}

	chunk.Bytes = result.Bytes
	if chunk.Bytes <= 0 {
		if size, err := e.fs.Size(chunk.Path); err == nil {
			chunk.Bytes = size
		}
	}
	chunk.Status = pipeline.ChunkFinalized
	return chunk, nil
}

func (e *Engine) fail(seg *segment, chunk pipeline.CompressedChunk, cause error) (pipeline.CompressedChunk, error) {
	if seg.encoder != nil {
		seg.encoder.Abort()
	}
	if err := e.fs.Remove(chunk.Path); err != nil {
		e.logger.Warn("Failed to remove partial file %s: %v", chunk.Path, err)
	}

	chunk.Status = pipeline.ChunkFailed
	chunk.Path = ""
	chunk.Bytes = 0
	chunk.FailureReason = cause.Error()

	return chunk, &pipeline.Error{
		Kind:  pipeline.KindSegment,
		Op:    "finalize",
		Chunk: chunk.ID(),
		Err:   fmt.Errorf("%w: %w", pipeline.ErrSegmentFinalize, cause),
	}
}
