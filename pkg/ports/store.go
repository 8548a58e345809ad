package ports

import (
	"context"
	"time"

	"github.com/user/screenrec/pkg/pipeline"
)

// ChunkStore is the metadata persistence collaborator.
// UpsertChunk must be idempotent and keyed by the chunk id.
type ChunkStore interface {
	UpsertChunk(ctx context.Context, chunk pipeline.CompressedChunk) error
}

// AdjustmentRecorder is implemented by stores that also keep the quality
// controller's decision trail.
type AdjustmentRecorder interface {
	RecordAdjustment(ctx context.Context, rec pipeline.QualityAdjustmentRecord) error
}

// ChunkHistory is implemented by stores that can replay finalized chunks,
// used to warm the storage metrics aggregator on start.
type ChunkHistory interface {
	ListChunks(ctx context.Context, since time.Time) ([]pipeline.CompressedChunk, error)
}
