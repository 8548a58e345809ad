// Package summarizer provides summary generation for recording sessions.
package summarizer

import (
	"path/filepath"
	"strings"
)

// Formatter renders a Summary as text.
type Formatter interface {
	Format(summary *Summary) string
}

// FormatFunc adapts a function to Formatter.
type FormatFunc func(summary *Summary) string

// Format implements the Formatter interface.
func (f FormatFunc) Format(summary *Summary) string {
	return f(summary)
}

// IsJSONPath reports whether path names a JSON summary, compressed or not:
// "report.json" and "report.json.zst" do, "report.md" does not.
func IsJSONPath(path string) bool {
	return strings.EqualFold(filepath.Ext(strings.TrimSuffix(path, ZstdExt)), ".json")
}

// FormatterFor picks the formatter for a summary file: JSON for .json and
// .json.zst paths, text otherwise.
func FormatterFor(path string, text Formatter) Formatter {
	if IsJSONPath(path) {
		return JSONFormatter
	}
	return text
}
