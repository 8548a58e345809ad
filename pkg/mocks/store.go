package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/user/screenrec/pkg/pipeline"
	"github.com/user/screenrec/pkg/ports"
)

// ChunkStore is an in-memory mock of the persistence collaborator.
// Upserts are keyed by chunk id, like the real store.
type ChunkStore struct {
	mu sync.Mutex

	UpsertChunkFunc      func(ctx context.Context, chunk pipeline.CompressedChunk) error
	RecordAdjustmentFunc func(ctx context.Context, rec pipeline.QualityAdjustmentRecord) error

	chunks      map[string]pipeline.CompressedChunk
	order       []string
	adjustments []pipeline.QualityAdjustmentRecord

	// Recorded calls for verification
	UpsertCalls int
}

// NewChunkStore creates an empty mock store.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{chunks: make(map[string]pipeline.CompressedChunk)}
}

func (m *ChunkStore) UpsertChunk(ctx context.Context, chunk pipeline.CompressedChunk) error {
	m.mu.Lock()
	m.UpsertCalls++
	m.mu.Unlock()
	if m.UpsertChunkFunc != nil {
		if err := m.UpsertChunkFunc(ctx, chunk); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := chunk.ID()
	if _, ok := m.chunks[id]; !ok {
		m.order = append(m.order, id)
	}
	m.chunks[id] = chunk
	return nil
}

func (m *ChunkStore) RecordAdjustment(ctx context.Context, rec pipeline.QualityAdjustmentRecord) error {
	if m.RecordAdjustmentFunc != nil {
		if err := m.RecordAdjustmentFunc(ctx, rec); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adjustments = append(m.adjustments, rec)
	return nil
}

func (m *ChunkStore) ListChunks(ctx context.Context, since time.Time) ([]pipeline.CompressedChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []pipeline.CompressedChunk
	for _, id := range m.order {
		c := m.chunks[id]
		if !c.EndedAt.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Chunks returns stored chunks in first-insert order.
func (m *ChunkStore) Chunks() []pipeline.CompressedChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]pipeline.CompressedChunk, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.chunks[id])
	}
	return out
}

// Adjustments returns recorded quality adjustments.
func (m *ChunkStore) Adjustments() []pipeline.QualityAdjustmentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]pipeline.QualityAdjustmentRecord, len(m.adjustments))
	copy(out, m.adjustments)
	return out
}

var (
	_ ports.ChunkStore         = (*ChunkStore)(nil)
	_ ports.AdjustmentRecorder = (*ChunkStore)(nil)
	_ ports.ChunkHistory       = (*ChunkStore)(nil)
)
