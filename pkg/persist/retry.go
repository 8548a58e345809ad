// Package persist wraps the metadata store so that a failed write is
// retried once before the pipeline moves on.
package persist

import (
	"context"
	"time"

	"github.com/user/screenrec/pkg/pipeline"
	"github.com/user/screenrec/pkg/ports"
)

// RetryConfig configures retry behavior for store writes.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns one retry after a short pause.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     1,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
	}
}

// Recorder receives retry outcomes. *metrics.Metrics implements it.
type Recorder interface {
	IncPersistRetry(op string)
	IncPersistFailure(op string)
}

// Retrying is a ports.ChunkStore that retries failed writes.
// RecordAdjustment and ListChunks are forwarded when the inner store has them.
type Retrying struct {
	inner    ports.ChunkStore
	cfg      RetryConfig
	logger   ports.Logger
	recorder Recorder
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewRetrying wraps inner. recorder may be nil.
func NewRetrying(inner ports.ChunkStore, cfg RetryConfig, recorder Recorder, logger ports.Logger) *Retrying {
	return &Retrying{
		inner:    inner,
		cfg:      cfg,
		logger:   logger.WithComponent("store"),
		recorder: recorder,
		sleep:    sleepCtx,
	}
}

// UpsertChunk writes chunk metadata, retrying on failure.
func (r *Retrying) UpsertChunk(ctx context.Context, chunk pipeline.CompressedChunk) error {
	return r.do(ctx, "upsert_chunk", chunk.ID(), func() error {
		return r.inner.UpsertChunk(ctx, chunk)
	})
}

// RecordAdjustment writes a quality decision, retrying on failure.
// Stores without an adjustment table accept and discard the record.
func (r *Retrying) RecordAdjustment(ctx context.Context, rec pipeline.QualityAdjustmentRecord) error {
	recorder, ok := r.inner.(ports.AdjustmentRecorder)
	if !ok {
		return nil
	}
	return r.do(ctx, "record_adjustment", rec.ChunkID, func() error {
		return recorder.RecordAdjustment(ctx, rec)
	})
}

// ListChunks reads chunk history from the inner store, if it keeps one.
func (r *Retrying) ListChunks(ctx context.Context, since time.Time) ([]pipeline.CompressedChunk, error) {
	history, ok := r.inner.(ports.ChunkHistory)
	if !ok {
		return nil, nil
	}
	return history.ListChunks(ctx, since)
}

func (r *Retrying) do(ctx context.Context, op, key string, fn func() error) error {
	var lastErr error
	backoff := r.cfg.InitialBackoff

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				r.logger.Info("Store %s succeeded on retry %d for %s", op, attempt, key)
			}
			return nil
		}
		lastErr = err

		// Don't sleep after the last attempt
		if attempt < r.cfg.MaxRetries {
			if r.recorder != nil {
				r.recorder.IncPersistRetry(op)
			}
			r.logger.Debug("Store %s failed for %s, retrying in %v: %v", op, key, backoff, err)
			if err := r.sleep(ctx, backoff); err != nil {
				lastErr = err
				break
			}
			backoff *= 2
			if backoff > r.cfg.MaxBackoff {
				backoff = r.cfg.MaxBackoff
			}
		}
	}

	if r.recorder != nil {
		r.recorder.IncPersistFailure(op)
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var (
	_ ports.ChunkStore         = (*Retrying)(nil)
	_ ports.AdjustmentRecorder = (*Retrying)(nil)
	_ ports.ChunkHistory       = (*Retrying)(nil)
)
