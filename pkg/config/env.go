package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/user/screenrec/pkg/pipeline"
)

// LoadEnv reads .env files into the process environment. A missing file is
// not an error; with no paths, ".env" is used.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// ApplyEnv overrides c with SCREENREC_* environment variables.
func (c *Config) ApplyEnv() error {
	c.OutputDir = GetEnv("SCREENREC_OUTPUT_DIR", c.OutputDir)
	c.Database = GetEnv("SCREENREC_DB", c.Database)
	c.Listen = GetEnv("SCREENREC_LISTEN", c.Listen)
	c.LogLevel = GetEnv("SCREENREC_LOG_LEVEL", c.LogLevel)
	c.FFmpegPath = GetEnv("SCREENREC_FFMPEG_PATH", c.FFmpegPath)
	c.Quality = pipeline.QualityMode(GetEnv("SCREENREC_QUALITY", string(c.Quality)))
	c.Budget.RetentionDays = GetEnvInt("SCREENREC_RETENTION_DAYS", c.Budget.RetentionDays)

	if s := os.Getenv("SCREENREC_DAILY_BUDGET"); s != "" {
		size, err := ParseByteSize(s)
		if err != nil {
			return err
		}
		c.Budget.Daily = size
	}
	return nil
}
