// Package sqlitestore persists chunk metadata and quality decisions in SQLite.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"github.com/user/screenrec/pkg/pipeline"
	"github.com/user/screenrec/pkg/ports"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// ErrNoStore is returned by OpenFirst when no location could be opened.
var ErrNoStore = errors.New("no metadata store available")

// Store is the SQLite implementation of the chunk store.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	// busy_timeout helps prevent "database is locked" errors
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	if path == MemoryPath {
		connStr = MemoryPath
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if path == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(4)
	}

	s := &Store{db: db, path: path}
	if err := s.initialize(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return s, nil
}

// OpenError lists why every location passed to OpenFirst failed.
type OpenError struct {
	Attempts map[string]error
	Order    []string
}

func (e *OpenError) Error() string {
	parts := make([]string, 0, len(e.Order))
	for _, p := range e.Order {
		parts = append(parts, fmt.Sprintf("%s: %v", p, e.Attempts[p]))
	}
	return fmt.Sprintf("%v (%s)", ErrNoStore, strings.Join(parts, "; "))
}

func (e *OpenError) Is(target error) bool {
	return target == ErrNoStore
}

// OpenFirst tries each path in order and returns the first store that opens.
// Callers typically pass the configured file followed by MemoryPath.
func OpenFirst(ctx context.Context, logger ports.Logger, paths ...string) (*Store, error) {
	openErr := &OpenError{Attempts: make(map[string]error)}
	for _, p := range paths {
		s, err := Open(ctx, p)
		if err == nil {
			if len(openErr.Order) > 0 {
				logger.Warn("Metadata store fell back to %s", p)
			}
			return s, nil
		}
		logger.Warn("Failed to open metadata store %s: %v", p, err)
		openErr.Order = append(openErr.Order, p)
		openErr.Attempts[p] = err
	}
	return nil, openErr
}

func (s *Store) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		path TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		codec TEXT NOT NULL DEFAULT '',
		quality_multiplier REAL NOT NULL DEFAULT 0,
		target_bytes INTEGER NOT NULL DEFAULT 0,
		bytes INTEGER NOT NULL DEFAULT 0,
		raw_bytes INTEGER NOT NULL DEFAULT 0,
		frames INTEGER NOT NULL DEFAULT 0,
		dropped_frames INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL,
		failure_reason TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_ended_at ON chunks(ended_at);
	CREATE INDEX IF NOT EXISTS idx_chunks_session ON chunks(session_id, seq);

	CREATE TABLE IF NOT EXISTS quality_adjustments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chunk_id TEXT NOT NULL,
		prior_factor REAL NOT NULL,
		new_factor REAL NOT NULL,
		deviation REAL NOT NULL,
		window_average INTEGER NOT NULL,
		target_bytes INTEGER NOT NULL,
		action TEXT NOT NULL,
		clamped INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_adjustments_chunk ON quality_adjustments(chunk_id);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Path returns the location the store was opened at.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertChunk inserts or replaces the row keyed by the chunk id.
func (s *Store) UpsertChunk(ctx context.Context, c pipeline.CompressedChunk) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chunks (id, session_id, seq, path, status, codec, quality_multiplier,
			target_bytes, bytes, raw_bytes, frames, dropped_frames, duration_ms,
			started_at, ended_at, failure_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			status = excluded.status,
			codec = excluded.codec,
			quality_multiplier = excluded.quality_multiplier,
			target_bytes = excluded.target_bytes,
			bytes = excluded.bytes,
			raw_bytes = excluded.raw_bytes,
			frames = excluded.frames,
			dropped_frames = excluded.dropped_frames,
			duration_ms = excluded.duration_ms,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at,
			failure_reason = excluded.failure_reason
	`,
		c.ID(), c.SessionID, c.Seq, c.Path, string(c.Status), string(c.Codec), c.QualityMultiplier,
		c.TargetBytes, c.Bytes, c.RawBytes, c.Frames, c.DroppedFrames, c.Duration.Milliseconds(),
		c.StartedAt.UnixMilli(), c.EndedAt.UnixMilli(), c.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk %s: %w", c.ID(), err)
	}
	return nil
}

// RecordAdjustment appends a quality decision.
func (s *Store) RecordAdjustment(ctx context.Context, r pipeline.QualityAdjustmentRecord) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	clamped := 0
	if r.Clamped {
		clamped = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quality_adjustments (chunk_id, prior_factor, new_factor, deviation,
			window_average, target_bytes, action, clamped, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ChunkID, r.PriorFactor, r.NewFactor, r.Deviation, r.WindowAverage, r.TargetBytes,
		string(r.Action), clamped, r.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record adjustment for %s: %w", r.ChunkID, err)
	}
	return nil
}

// ListChunks returns chunks that ended at or after since, oldest first.
func (s *Store) ListChunks(ctx context.Context, since time.Time) ([]pipeline.CompressedChunk, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, path, status, codec, quality_multiplier, target_bytes,
			bytes, raw_bytes, frames, dropped_frames, duration_ms, started_at, ended_at,
			failure_reason
		FROM chunks
		WHERE ended_at >= ?
		ORDER BY ended_at, session_id, seq
	`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []pipeline.CompressedChunk
	for rows.Next() {
		var (
			c                  pipeline.CompressedChunk
			status, codec      string
			durationMs         int64
			startedMs, endedMs int64
		)
		if err := rows.Scan(&c.SessionID, &c.Seq, &c.Path, &status, &codec, &c.QualityMultiplier,
			&c.TargetBytes, &c.Bytes, &c.RawBytes, &c.Frames, &c.DroppedFrames, &durationMs,
			&startedMs, &endedMs, &c.FailureReason); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		c.Status = pipeline.ChunkStatus(status)
		c.Codec = pipeline.Codec(codec)
		c.Duration = time.Duration(durationMs) * time.Millisecond
		c.StartedAt = time.UnixMilli(startedMs).UTC()
		c.EndedAt = time.UnixMilli(endedMs).UTC()
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Adjustments returns the most recent quality decisions, oldest first.
// A limit of zero or less returns all of them.
func (s *Store) Adjustments(ctx context.Context, limit int) ([]pipeline.QualityAdjustmentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, prior_factor, new_factor, deviation, window_average, target_bytes,
			action, clamped, created_at
		FROM (
			SELECT * FROM quality_adjustments ORDER BY id DESC LIMIT ?
		)
		ORDER BY id
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list adjustments: %w", err)
	}
	defer rows.Close()

	var out []pipeline.QualityAdjustmentRecord
	for rows.Next() {
		var (
			r         pipeline.QualityAdjustmentRecord
			action    string
			clamped   int
			createdMs int64
		)
		if err := rows.Scan(&r.ChunkID, &r.PriorFactor, &r.NewFactor, &r.Deviation,
			&r.WindowAverage, &r.TargetBytes, &action, &clamped, &createdMs); err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		r.Action = pipeline.AdjustmentAction(action)
		r.Clamped = clamped != 0
		r.Timestamp = time.UnixMilli(createdMs).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

var (
	_ ports.ChunkStore         = (*Store)(nil)
	_ ports.AdjustmentRecorder = (*Store)(nil)
	_ ports.ChunkHistory       = (*Store)(nil)
)
