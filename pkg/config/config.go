// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/user/screenrec/pkg/codec"
	"github.com/user/screenrec/pkg/persist"
	"github.com/user/screenrec/pkg/pipeline"
	"github.com/user/screenrec/pkg/ports"
	"github.com/user/screenrec/pkg/quality"
	"github.com/user/screenrec/pkg/session"
)

// CurrentVersion is the schema version written by this build.
const CurrentVersion = 3

// Config represents the full configuration for screenrec.
type Config struct {
	SchemaVersion int `yaml:"schema_version"`

	// Output
	OutputDir string `yaml:"output_dir"`
	Database  string `yaml:"database"`
	Listen    string `yaml:"listen"`
	LogLevel  string `yaml:"log_level"`

	// Encoding
	FFmpegPath string              `yaml:"ffmpeg_path"`
	Codecs     []string            `yaml:"codecs"`
	Quality    pipeline.QualityMode `yaml:"quality"`

	Budget  BudgetConfig   `yaml:"budget"`
	Capture CaptureConfig  `yaml:"capture"`
	Control quality.Config `yaml:"quality_control"`
}

// BudgetConfig is the storage budget.
type BudgetConfig struct {
	Daily         ByteSize `yaml:"daily"`
	ActiveHours   float64  `yaml:"active_hours"`
	RetentionDays int      `yaml:"retention_days"`
	AlertMargin   float64  `yaml:"alert_margin"`
	MinFree       ByteSize `yaml:"min_free"`
}

// CaptureConfig covers frame intake and segmenting.
type CaptureConfig struct {
	FPS              float64       `yaml:"fps"`
	Segment          time.Duration `yaml:"segment"`
	Width            int           `yaml:"width"`  // synthetic source only
	Height           int           `yaml:"height"` // synthetic source only
	QueueDepth       int           `yaml:"queue_depth"`
	SubmitTimeout    time.Duration `yaml:"submit_timeout"`
	KeyFrameInterval int           `yaml:"key_frame_interval"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		SchemaVersion: CurrentVersion,

		OutputDir: "./recordings",
		Database:  "./recordings/screenrec.db",
		LogLevel:  "info",

		Codecs:  []string{"hevc", "h264", "mjpeg"},
		Quality: pipeline.QualityAuto,

		Budget: BudgetConfig{
			Daily:         2 * GiB,
			ActiveHours:   8,
			RetentionDays: 30,
			AlertMargin:   0.10,
			MinFree:       1 * GiB,
		},

		Capture: CaptureConfig{
			FPS:        1,
			Segment:    15 * time.Minute,
			Width:      1280,
			Height:     720,
			QueueDepth: 2,
		},

		Control: quality.DefaultConfig(),
	}
}

// LoadFromFile loads configuration from a YAML file, migrating older
// schema versions first. Fields missing from the file keep their defaults.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Defaults(), err
	}
	return Parse(data)
}

// Parse decodes YAML configuration data.
func Parse(data []byte) (Config, error) {
	cfg := Defaults()

	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if raw == nil {
		return cfg, nil
	}

	if err := Migrate(raw); err != nil {
		return cfg, err
	}

	migrated, err := yaml.Marshal(raw)
	if err != nil {
		return cfg, fmt.Errorf("re-encode migrated config: %w", err)
	}
	if err := yaml.Unmarshal(migrated, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML at the current schema version.
func (c Config) Save(path string) error {
	c.SchemaVersion = CurrentVersion
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if len(c.Codecs) == 0 {
		return fmt.Errorf("at least one codec is required")
	}
	if _, err := c.CodecPreferences(); err != nil {
		return err
	}
	if c.Budget.RetentionDays <= 0 {
		return fmt.Errorf("retention_days must be positive, got %d", c.Budget.RetentionDays)
	}
	if _, ok := ports.LookupLogLevel(c.LogLevel); !ok {
		return fmt.Errorf("unknown log_level %q (supported: debug, info, warn, error, quiet)", c.LogLevel)
	}
	if c.Budget.MinFree < 0 {
		return fmt.Errorf("min_free must not be negative, got %d", int64(c.Budget.MinFree))
	}
	return c.ToSessionConfig().Validate()
}

// CodecPreferences converts the codec names to codecs, in order.
func (c Config) CodecPreferences() ([]pipeline.Codec, error) {
	prefs := make([]pipeline.Codec, 0, len(c.Codecs))
	for _, name := range c.Codecs {
		switch cd := pipeline.Codec(name); cd {
		case pipeline.CodecHEVC, pipeline.CodecH264, pipeline.CodecMJPEG:
			prefs = append(prefs, cd)
		default:
			return nil, fmt.Errorf("unknown codec %q (supported: hevc, h264, mjpeg)", name)
		}
	}
	return prefs, nil
}

// CodecOptions returns the options of the default codec candidate list.
func (c Config) CodecOptions() codec.Options {
	prefs, _ := c.CodecPreferences()
	return codec.Options{FFmpegPath: c.FFmpegPath, Preferences: prefs}
}

// ToSessionConfig converts Config to session.Config.
func (c Config) ToSessionConfig() session.Config {
	return session.Config{
		OutputDir: c.OutputDir,

		QualityMode: c.Quality,
		Quality:     c.Control,

		DailyBudgetBytes:  int64(c.Budget.Daily),
		ActiveHoursPerDay: c.Budget.ActiveHours,
		SegmentDuration:   c.Capture.Segment,
		FrameRate:         c.Capture.FPS,
		KeyFrameInterval:  c.Capture.KeyFrameInterval,

		QueueDepth:    c.Capture.QueueDepth,
		SubmitTimeout: c.Capture.SubmitTimeout,
		MinFreeBytes:  uint64(c.Budget.MinFree),

		Retention:   time.Duration(c.Budget.RetentionDays) * 24 * time.Hour,
		AlertMargin: c.Budget.AlertMargin,

		Retry: persist.DefaultRetryConfig(),
	}
}
