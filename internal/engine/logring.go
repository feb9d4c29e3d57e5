package engine

import (
	"fmt"
	"sync"

	"github.com/yanun0323/logs"
)

type LogEntry struct {
	Timestamp int64  `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// LogRing keeps the most recent engine messages for the dashboard.
type LogRing struct {
	mu      sync.Mutex
	entries []LogEntry
	next    int
	full    bool
}

func NewLogRing(capacity int) *LogRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &LogRing{entries: make([]LogEntry, capacity)}
}

func (r *LogRing) Add(e LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// Entries returns messages oldest first.
func (r *LogRing) Entries() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]LogEntry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]LogEntry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	return append(out, r.entries[:r.next]...)
}

func (e *Engine) infof(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	logs.Info(msg)
	e.logs.Add(LogEntry{Timestamp: e.session.NowMillis(), Level: "INFO", Message: msg})
}

func (e *Engine) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	logs.Warnf("%s", msg)
	e.logs.Add(LogEntry{Timestamp: e.session.NowMillis(), Level: "WARN", Message: msg})
}
