package ports

import "strings"

// LogLevel is the minimum severity a logger emits.
type LogLevel int

const (
	// LevelDebug adds per-frame drops and per-decision controller details.
	LevelDebug LogLevel = iota
	// LevelInfo covers session start/stop, codec selection and every chunk.
	LevelInfo
	// LevelWarn covers failed chunks, persistence retries and fallbacks.
	LevelWarn
	// LevelError covers failures that stop a session or a start attempt.
	LevelError
	// LevelQuiet suppresses all log output.
	LevelQuiet
)

var levelNames = [...]string{"debug", "info", "warn", "error", "quiet"}

// String returns the configuration name of the level.
func (l LogLevel) String() string {
	if l < LevelDebug || l > LevelQuiet {
		return "unknown"
	}
	return levelNames[l]
}

// Allows reports whether a message of severity msg passes this level.
func (l LogLevel) Allows(msg LogLevel) bool {
	return l != LevelQuiet && msg >= l
}

// LookupLogLevel resolves a level name as written in configuration files
// and flags. Matching ignores case; "warning" is accepted for warn.
func LookupLogLevel(s string) (LogLevel, bool) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "warning" {
		return LevelWarn, true
	}
	for i, n := range levelNames {
		if n == name {
			return LogLevel(i), true
		}
	}
	return LevelInfo, false
}

// ParseLogLevel is LookupLogLevel falling back to LevelInfo.
func ParseLogLevel(s string) LogLevel {
	l, _ := LookupLogLevel(s)
	return l
}

// Logger is the logging port every pipeline component receives.
// msg is a format string and also the go-l10n translation key, so callers
// pass constant formats and keep values in args.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	// Warn is for problems the recording survives.
	Warn(msg string, args ...interface{})
	// Error is for problems that end a session or a start attempt.
	Error(msg string, args ...interface{})

	// WithComponent returns a Logger whose lines carry "[component]".
	// Sessions hand one to each of codec, engine, segment, quality and store.
	WithComponent(component string) Logger
}
