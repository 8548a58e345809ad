package logger

import (
	"fmt"
	"sync"

	"github.com/user/screenrec/pkg/ports"
)

// NoopLogger discards everything. The CLI uses it for --quiet.
type NoopLogger struct{}

// NewNoop creates a new no-op logger.
func NewNoop() *NoopLogger {
	return &NoopLogger{}
}

func (l *NoopLogger) Debug(msg string, args ...interface{}) {}
func (l *NoopLogger) Info(msg string, args ...interface{}) {}
func (l *NoopLogger) Warn(msg string, args ...interface{}) {}
func (l *NoopLogger) Error(msg string, args ...interface{}) {}
func (l *NoopLogger) WithComponent(component string) ports.Logger { return l }

// Entry is one line kept by a Recorder.
type Entry struct {
	Level     ports.LogLevel
	Component string
	Message   string // formatted, untranslated
}

// Recorder keeps log lines in memory so callers can check which failures
// were reported. Component loggers derived from it share one buffer.
type Recorder struct {
	component string
	shared    *recorded
}

type recorded struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{shared: &recorded{}}
}

func (r *Recorder) Debug(msg string, args ...interface{}) { r.add(ports.LevelDebug, msg, args) }
func (r *Recorder) Info(msg string, args ...interface{}) { r.add(ports.LevelInfo, msg, args) }
func (r *Recorder) Warn(msg string, args ...interface{}) { r.add(ports.LevelWarn, msg, args) }
func (r *Recorder) Error(msg string, args ...interface{}) { r.add(ports.LevelError, msg, args) }

// WithComponent returns a recorder writing to the same buffer.
func (r *Recorder) WithComponent(component string) ports.Logger {
	return &Recorder{component: component, shared: r.shared}
}

func (r *Recorder) add(level ports.LogLevel, msg string, args []interface{}) {
	r.shared.mu.Lock()
	defer r.shared.mu.Unlock()
	r.shared.entries = append(r.shared.entries, Entry{
		Level:     level,
		Component: r.component,
		Message:   fmt.Sprintf(msg, args...),
	})
}

// Entries returns the lines at or above min, oldest first.
func (r *Recorder) Entries(min ports.LogLevel) []Entry {
	r.shared.mu.Lock()
	defer r.shared.mu.Unlock()
	var out []Entry
	for _, e := range r.shared.entries {
		if min.Allows(e.Level) {
			out = append(out, e)
		}
	}
	return out
}
