package app

import (
	"sync"
	"time"
)

// LogSeverity tags an activity log entry.
type LogSeverity string

const (
	SeverityInfo    LogSeverity = "info"
	SeverityWhale   LogSeverity = "whale"
	SeveritySuccess LogSeverity = "success"
	SeverityError   LogSeverity = "error"
)

// LogEntry is one human-readable state-change or detection message.
type LogEntry struct {
	Message   string      `json:"message"`
	Severity  LogSeverity `json:"severity"`
	Timestamp time.Time   `json:"timestamp"`
}

// ActivityLog is a bounded ring of recent entries for the dashboard.
// Oldest entries fall off once the limit is reached.
type ActivityLog struct {
	mu      sync.RWMutex
	entries []LogEntry
	limit   int
}

func NewActivityLog(limit int) *ActivityLog {
	if limit <= 0 {
		limit = 20
	}
	return &ActivityLog{limit: limit}
}

// Add appends an entry, evicting the oldest when full.
func (al *ActivityLog) Add(severity LogSeverity, message string) {
	al.mu.Lock()
	defer al.mu.Unlock()

	al.entries = append(al.entries, LogEntry{
		Message:   message,
		Severity:  severity,
		Timestamp: time.Now(),
	})
	if len(al.entries) > al.limit {
		al.entries = al.entries[len(al.entries)-al.limit:]
	}
}

// Entries returns the buffered entries, newest first.
func (al *ActivityLog) Entries() []LogEntry {
	al.mu.RLock()
	defer al.mu.RUnlock()

	out := make([]LogEntry, len(al.entries))
	for i, e := range al.entries {
		out[len(al.entries)-1-i] = e
	}
	return out
}

// Len returns the current number of buffered entries.
func (al *ActivityLog) Len() int {
	al.mu.RLock()
	defer al.mu.RUnlock()
	return len(al.entries)
}
