package storagemetrics

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/user/screenrec/pkg/pipeline"
)

const gib = int64(1 << 30)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func chunkAt(seq uint64, at time.Time, bytes int64) pipeline.CompressedChunk {
	return pipeline.CompressedChunk{
		SessionID: "s",
		Seq:       seq,
		Status:    pipeline.ChunkFinalized,
		Bytes:     bytes,
		StartedAt: at.Add(-15 * time.Minute),
		EndedAt:   at,
	}
}

func newAggregator(now *time.Time) *Aggregator {
	a := New(Config{Retention: 30 * day, DailyBudget: 2 * gib, AlertMargin: 0.1})
	a.SetClock(func() time.Time { return *now })
	return a
}

func TestAggregator_EmptySnapshot(t *testing.T) {
	now := base
	snap := newAggregator(&now).Snapshot()

	if snap.Chunks != 0 || snap.TotalBytes != 0 || snap.Alert {
		t.Errorf("unexpected empty snapshot: %+v", snap)
	}
	if snap.BudgetBytes != 60*gib {
		t.Errorf("expected retention budget of 60 GiB, got %d", snap.BudgetBytes)
	}
}

func TestAggregator_StableUsageNoAlert(t *testing.T) {
	now := base
	a := newAggregator(&now)

	seq := uint64(0)
	for d := 0; d < 10; d++ {
		for i := 0; i < 4; i++ {
			seq++
			a.Add(chunkAt(seq, base.Add(time.Duration(d)*day+time.Duration(i)*time.Hour), gib/2))
		}
	}
	now = base.Add(9*day + 5*time.Hour)

	snap := a.Snapshot()
	if snap.Chunks != 40 {
		t.Errorf("expected 40 chunks, got %d", snap.Chunks)
	}
	if snap.TotalBytes != 20*gib {
		t.Errorf("expected 20 GiB total, got %d", snap.TotalBytes)
	}
	if math.Abs(snap.DailyAverage-float64(2*gib)) > 1 {
		t.Errorf("expected daily average of 2 GiB, got %f", snap.DailyAverage)
	}
	if math.Abs(snap.TrendSlope) > 1e-3 {
		t.Errorf("expected flat trend, got %f", snap.TrendSlope)
	}
	if snap.Alert {
		t.Error("usage at budget should not alert")
	}
}

func TestAggregator_GrowingUsageAlerts(t *testing.T) {
	now := base
	a := newAggregator(&now)

	// Daily usage grows by 0.5 GiB per day, starting at the budget
	for d := 0; d < 6; d++ {
		a.Add(chunkAt(uint64(d+1), base.Add(time.Duration(d)*day), 2*gib+int64(d)*gib/2))
	}
	now = base.Add(5 * day)

	snap := a.Snapshot()
	if snap.TrendSlope <= 0 {
		t.Fatalf("expected positive trend, got %f", snap.TrendSlope)
	}
	if math.Abs(snap.TrendSlope-float64(gib/2)) > 1 {
		t.Errorf("expected slope of 0.5 GiB/day, got %f", snap.TrendSlope)
	}
	if !snap.Alert {
		t.Errorf("expected alert, projected %.0f vs budget %d", snap.ProjectedBytes, snap.BudgetBytes)
	}
}

func TestAggregator_IdleDaysLowerAverage(t *testing.T) {
	now := base
	a := newAggregator(&now)
	a.Add(chunkAt(1, base, 4*gib))
	now = base.Add(3 * day)

	snap := a.Snapshot()
	if math.Abs(snap.DailyAverage-float64(gib)) > 1 {
		t.Errorf("4 GiB over 4 days should average 1 GiB, got %f", snap.DailyAverage)
	}
}

func TestAggregator_RetentionWindow(t *testing.T) {
	now := base
	a := newAggregator(&now)
	a.Add(chunkAt(1, base, gib))
	a.Add(chunkAt(2, base.Add(20*day), gib))

	now = base.Add(31 * day)
	snap := a.Snapshot()
	if snap.Chunks != 1 || snap.TotalBytes != gib {
		t.Errorf("chunk outside retention should be ignored: %+v", snap)
	}
}

func TestAggregator_PruneForgetsExpiredIDs(t *testing.T) {
	now := base
	a := newAggregator(&now)
	for i := 0; i < 40; i++ {
		now = base.Add(time.Duration(i) * day)
		a.Add(chunkAt(uint64(i+1), now, gib))
	}

	a.mu.RLock()
	entries, seen := len(a.entries), len(a.seen)
	a.mu.RUnlock()

	if entries != 31 {
		t.Errorf("expected 31 entries inside the window, got %d", entries)
	}
	if seen != entries {
		t.Errorf("seen ids = %d, want %d (one per retained entry)", seen, entries)
	}
}

func TestAggregator_OnlyFinalizedCountedOnce(t *testing.T) {
	now := base
	a := newAggregator(&now)

	c := chunkAt(1, base, gib)
	a.Add(c)
	a.Add(c) // same id

	failed := chunkAt(2, base, gib)
	failed.Status = pipeline.ChunkFailed
	a.Add(failed)

	skipped := chunkAt(3, base, 0)
	skipped.Status = pipeline.ChunkSkipped
	a.Add(skipped)

	if snap := a.Snapshot(); snap.Chunks != 1 || snap.TotalBytes != gib {
		t.Errorf("expected exactly one counted chunk, got %+v", snap)
	}
}

func TestAggregator_LoadUnordered(t *testing.T) {
	now := base.Add(2 * day)
	a := newAggregator(&now)
	a.Load([]pipeline.CompressedChunk{
		chunkAt(3, base.Add(2*day), gib),
		chunkAt(1, base, gib),
		chunkAt(2, base.Add(day), gib),
	})

	snap := a.Snapshot()
	if snap.Chunks != 3 {
		t.Fatalf("expected 3 chunks, got %d", snap.Chunks)
	}
	if math.Abs(snap.DailyAverage-float64(gib)) > 1 {
		t.Errorf("expected 1 GiB/day, got %f", snap.DailyAverage)
	}
}

func TestAggregator_ConcurrentReaders(t *testing.T) {
	now := base
	a := New(Config{Retention: 30 * day, DailyBudget: 2 * gib, AlertMargin: 0.1})
	a.SetClock(func() time.Time { return now })

	var wg sync.WaitGroup
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				snap := a.Snapshot()
				if snap.TotalBytes < 0 {
					t.Error("negative total")
					return
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		a.Add(chunkAt(uint64(i+1), base.Add(time.Duration(i)*time.Minute), 1024))
	}
	wg.Wait()

	if snap := a.Snapshot(); snap.Chunks != 200 {
		t.Errorf("expected 200 chunks, got %d", snap.Chunks)
	}
}
