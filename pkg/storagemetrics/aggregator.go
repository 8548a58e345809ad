// Package storagemetrics derives storage usage trends from finalized chunks.
// It only reads chunk metadata and never influences the pipeline.
package storagemetrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/user/screenrec/pkg/pipeline"
)

const day = 24 * time.Hour

// Config configures the aggregator.
type Config struct {
	Retention   time.Duration // how far back chunks count
	DailyBudget int64         // bytes per day
	AlertMargin float64       // tolerated overshoot of the retention budget
}

type entry struct {
	id    string
	at    time.Time
	bytes int64
}

// Aggregator keeps the finalized-chunk history of one retention window.
// Add is called by the pipeline; Snapshot may be called from any goroutine.
type Aggregator struct {
	cfg Config
	now func() time.Time

	mu      sync.RWMutex
	entries []entry
	seen    map[string]struct{}
}

// New creates an empty aggregator.
func New(cfg Config) *Aggregator {
	return &Aggregator{
		cfg:  cfg,
		now:  time.Now,
		seen: make(map[string]struct{}),
	}
}

// SetClock replaces the clock used for the retention window.
func (a *Aggregator) SetClock(now func() time.Time) {
	a.now = now
}

// Add records a chunk. Only finalized chunks count; a chunk id is counted once.
func (a *Aggregator) Add(chunk pipeline.CompressedChunk) {
	if chunk.Status != pipeline.ChunkFinalized {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	id := chunk.ID()
	if _, ok := a.seen[id]; ok {
		return
	}
	a.seen[id] = struct{}{}

	at := chunk.EndedAt
	if at.IsZero() {
		at = chunk.StartedAt
	}
	a.entries = append(a.entries, entry{id: id, at: at, bytes: chunk.Bytes})
	a.prune(a.now())
}

// Load adds a batch of chunks, typically history read back from a store.
func (a *Aggregator) Load(chunks []pipeline.CompressedChunk) {
	for _, c := range chunks {
		a.Add(c)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	sort.Slice(a.entries, func(i, j int) bool { return a.entries[i].at.Before(a.entries[j].at) })
}

// prune drops entries older than the retention window together with their
// ids. Callers hold mu.
func (a *Aggregator) prune(now time.Time) {
	if a.cfg.Retention <= 0 {
		return
	}
	cutoff := now.Add(-a.cfg.Retention)
	kept := a.entries[:0]
	for _, e := range a.entries {
		if e.at.Before(cutoff) {
			delete(a.seen, e.id)
			continue
		}
		kept = append(kept, e)
	}
	a.entries = kept
}

// Snapshot computes the current view. The result is a value and can be kept.
func (a *Aggregator) Snapshot() pipeline.StorageMetricsSnapshot {
	now := a.now()

	a.mu.RLock()
	defer a.mu.RUnlock()

	retentionDays := a.cfg.Retention.Hours() / 24
	snap := pipeline.StorageMetricsSnapshot{
		WindowEnd:   now,
		WindowStart: now.Add(-a.cfg.Retention),
		BudgetBytes: int64(float64(a.cfg.DailyBudget) * retentionDays),
	}

	inWindow := make([]entry, 0, len(a.entries))
	var firstDay time.Time
	for _, e := range a.entries {
		if a.cfg.Retention > 0 && e.at.Before(snap.WindowStart) {
			continue
		}
		inWindow = append(inWindow, e)
		if d := startOfDay(e.at); firstDay.IsZero() || d.Before(firstDay) {
			firstDay = d
		}
	}

	var totals []float64
	for _, e := range inWindow {
		idx := int(startOfDay(e.at).Sub(firstDay) / day)
		for len(totals) <= idx {
			totals = append(totals, 0)
		}
		totals[idx] += float64(e.bytes)
		snap.TotalBytes += e.bytes
		snap.Chunks++
	}
	if snap.Chunks == 0 {
		return snap
	}

	// Count empty days up to today so idle days pull the average down.
	if today := int(startOfDay(now).Sub(firstDay) / day); today >= len(totals) {
		totals = append(totals, make([]float64, today+1-len(totals))...)
	}

	snap.DailyAverage = float64(snap.TotalBytes) / float64(len(totals))
	snap.TrendSlope = slope(totals)

	projectedDaily := math.Max(0, snap.DailyAverage+snap.TrendSlope*retentionDays/2)
	snap.ProjectedBytes = projectedDaily * retentionDays
	snap.Alert = snap.BudgetBytes > 0 && snap.ProjectedBytes > float64(snap.BudgetBytes)*(1+a.cfg.AlertMargin)
	return snap
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// slope is the least-squares slope of ys against their index.
func slope(ys []float64) float64 {
	n := float64(len(ys))
	if n < 2 {
		return 0
	}
	var sx, sy, sxy, sxx float64
	for i, y := range ys {
		x := float64(i)
		sx += x
		sy += y
		sxy += x * y
		sxx += x * x
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0
	}
	return (n*sxy - sx*sy) / den
}
