package logger

import (
	"strings"
	"time"
)

// Took is the time since start rounded to milliseconds.
func Took(start time.Time) time.Duration { return RoundMS(time.Since(start)) }

// RoundMS rounds d to whole milliseconds. Negative durations become zero.
func RoundMS(d time.Duration) time.Duration { return max(d, 0).Round(time.Millisecond) }

// SummarizeStrings joins at most limit values and reports whether any
// were left out.
func SummarizeStrings(values []string, limit int) (string, bool) {
	limit = max(0, min(limit, len(values)))
	return strings.Join(values[:limit], ", "), limit < len(values)
}
