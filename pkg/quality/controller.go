// Package quality implements the adaptive quality controller that steers
// chunk sizes toward their byte budget.
//
// Each finalized chunk is added to a rolling window. The deviation of the
// window average from the target decides the direction; an oversized window
// lowers the multiplier by a larger step than an undersized one raises it.
// The proposal is smoothed against the previous multiplier, its step is
// capped, and the result is clamped to the configured bounds.
package quality

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/user/screenrec/pkg/pipeline"
	"github.com/user/screenrec/pkg/ports"
)

// Config holds the controller's tunables.
type Config struct {
	Window        int     `yaml:"window"`         // chunks in the rolling window
	HighThreshold float64 `yaml:"high_threshold"` // deviation above which quality drops
	LowThreshold  float64 `yaml:"low_threshold"`  // deviation below -LowThreshold raises quality
	Decrement     float64 `yaml:"decrement"`      // relative decrease when oversized
	Increment     float64 `yaml:"increment"`      // relative increase when undersized
	Smoothing     float64 `yaml:"smoothing"`      // weight of the proposal against the previous value
	MinFactor     float64 `yaml:"min_factor"`
	MaxFactor     float64 `yaml:"max_factor"`
	MaxStep       float64 `yaml:"max_step"` // largest change of the multiplier per decision
	HistoryLimit  int     `yaml:"history_limit"`
}

// DefaultConfig returns the default controller tuning.
func DefaultConfig() Config {
	return Config{
		Window:        4,
		HighThreshold: 0.10,
		LowThreshold:  0.10,
		Decrement:     0.10,
		Increment:     0.05,
		Smoothing:     0.5,
		MinFactor:     0.25,
		MaxFactor:     2.0,
		MaxStep:       0.10,
		HistoryLimit:  512,
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	switch {
	case c.Window < 1:
		return fmt.Errorf("quality window must be at least 1, got %d", c.Window)
	case c.HighThreshold < 0 || c.LowThreshold < 0:
		return fmt.Errorf("quality thresholds must not be negative")
	case c.Decrement <= 0 || c.Decrement >= 1:
		return fmt.Errorf("quality decrement must be in (0, 1), got %g", c.Decrement)
	case c.Increment <= 0:
		return fmt.Errorf("quality increment must be positive, got %g", c.Increment)
	case c.Smoothing <= 0 || c.Smoothing > 1:
		return fmt.Errorf("quality smoothing must be in (0, 1], got %g", c.Smoothing)
	case c.MinFactor <= 0 || c.MaxFactor < c.MinFactor:
		return fmt.Errorf("quality bounds invalid: [%g, %g]", c.MinFactor, c.MaxFactor)
	case c.MaxStep <= 0:
		return fmt.Errorf("quality max step must be positive, got %g", c.MaxStep)
	case c.HistoryLimit < 1:
		return fmt.Errorf("quality history limit must be at least 1, got %d", c.HistoryLimit)
	}
	return nil
}

// Clamp bounds m to [MinFactor, MaxFactor].
func (c Config) Clamp(m float64) float64 {
	return math.Min(c.MaxFactor, math.Max(c.MinFactor, m))
}

// Controller is the adaptive quality controller.
// Observe is called from the pipeline's sequential rotation path; readers
// may call Multiplier, Window and History concurrently.
type Controller struct {
	cfg    Config
	logger ports.Logger
	now    func() time.Time

	mu         sync.RWMutex
	multiplier float64
	window     []int64
	history    []pipeline.QualityAdjustmentRecord
}

// New creates a controller starting at initial, clamped to the bounds.
func New(cfg Config, initial float64, logger ports.Logger) *Controller {
	return &Controller{
		cfg:        cfg,
		logger:     logger.WithComponent("quality"),
		now:        time.Now,
		multiplier: cfg.Clamp(initial),
		window:     make([]int64, 0, cfg.Window),
	}
}

// SetClock replaces the clock used to timestamp records.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

// Observe feeds a finalized chunk to the controller and returns the decision.
// Chunks that are not finalized are ignored and the second value is false.
func (c *Controller) Observe(chunk pipeline.CompressedChunk) (pipeline.QualityAdjustmentRecord, bool) {
	if chunk.Status != pipeline.ChunkFinalized || chunk.TargetBytes <= 0 {
		return pipeline.QualityAdjustmentRecord{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.window = append(c.window, chunk.Bytes)
	if len(c.window) > c.cfg.Window {
		c.window = c.window[len(c.window)-c.cfg.Window:]
	}

	var sum int64
	for _, b := range c.window {
		sum += b
	}
	avg := sum / int64(len(c.window))
	deviation := float64(avg-chunk.TargetBytes) / float64(chunk.TargetBytes)

	prior := c.multiplier
	proposed := prior
	action := pipeline.ActionHold
	switch {
	case deviation > c.cfg.HighThreshold:
		proposed = prior * (1 - c.cfg.Decrement)
		action = pipeline.ActionDecrease
	case deviation < -c.cfg.LowThreshold:
		proposed = prior * (1 + c.cfg.Increment)
		action = pipeline.ActionIncrease
	}

	next := prior + c.cfg.Smoothing*(proposed-prior)
	if step := next - prior; math.Abs(step) > c.cfg.MaxStep {
		next = prior + math.Copysign(c.cfg.MaxStep, step)
	}
	clamped := next < c.cfg.MinFactor || next > c.cfg.MaxFactor
	next = c.cfg.Clamp(next)

	rec := pipeline.QualityAdjustmentRecord{
		ChunkID:       chunk.ID(),
		PriorFactor:   prior,
		NewFactor:     next,
		Deviation:     deviation,
		WindowAverage: avg,
		TargetBytes:   chunk.TargetBytes,
		Action:        action,
		Clamped:       clamped,
		Timestamp:     c.now(),
	}

	c.multiplier = next
	c.history = append(c.history, rec)
	if len(c.history) > c.cfg.HistoryLimit {
		c.history = c.history[len(c.history)-c.cfg.HistoryLimit:]
	}

	if action == pipeline.ActionHold {
		c.logger.Debug("Quality hold for %s: deviation %+.3f within thresholds (+%.2f/-%.2f)",
			rec.ChunkID, deviation, c.cfg.HighThreshold, c.cfg.LowThreshold)
	} else {
		c.logger.Info("Quality %s for %s: deviation %+.3f, multiplier %.3f -> %.3f",
			action, rec.ChunkID, deviation, prior, next)
	}
	if clamped {
		c.logger.Debug("Quality multiplier clamped to [%.2f, %.2f]", c.cfg.MinFactor, c.cfg.MaxFactor)
	}

	return rec, true
}

// Multiplier returns the multiplier to apply to the next segment.
func (c *Controller) Multiplier() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.multiplier
}

// Window returns a copy of the rolling window, oldest first.
func (c *Controller) Window() []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]int64, len(c.window))
	copy(out, c.window)
	return out
}

// History returns a copy of the decision records, oldest first.
func (c *Controller) History() []pipeline.QualityAdjustmentRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]pipeline.QualityAdjustmentRecord, len(c.history))
	copy(out, c.history)
	return out
}

// Fixed pins the multiplier of a fixed quality level. It never adjusts.
type Fixed struct {
	multiplier float64
}

// NewFixed creates a pinned policy.
func NewFixed(multiplier float64) *Fixed {
	return &Fixed{multiplier: multiplier}
}

// Observe never produces a decision.
func (f *Fixed) Observe(pipeline.CompressedChunk) (pipeline.QualityAdjustmentRecord, bool) {
	return pipeline.QualityAdjustmentRecord{}, false
}

// Multiplier returns the pinned multiplier.
func (f *Fixed) Multiplier() float64 {
	return f.multiplier
}

// ForMode returns the policy for a quality mode: the adaptive controller for
// auto, a pinned multiplier otherwise.
func ForMode(mode pipeline.QualityMode, cfg Config, logger ports.Logger) (Policy, error) {
	if mode.Adaptive() {
		return New(cfg, 1.0, logger), nil
	}
	m, ok := mode.FixedMultiplier()
	if !ok {
		return nil, fmt.Errorf("unknown quality mode %q", mode)
	}
	return NewFixed(m), nil
}

// Policy is the interface shared by Controller and Fixed.
type Policy interface {
	Observe(chunk pipeline.CompressedChunk) (pipeline.QualityAdjustmentRecord, bool)
	Multiplier() float64
}

var (
	_ Policy = (*Controller)(nil)
	_ Policy = (*Fixed)(nil)
)
