package domain

import (
	"strings"
	"sync"
	"time"
)

const DefaultLogCapacity = 100

type LogKind string

const (
	LogTx   LogKind = "tx"
	LogRx   LogKind = "rx"
	LogErr  LogKind = "err"
	LogWarn LogKind = "warn"
	LogSys  LogKind = "sys"
)

type LogEntry struct {
	Time time.Time
	Text string
	Kind LogKind
}

// LogRing keeps the newest entries first and drops the oldest once full.
// It is safe for concurrent use.
type LogRing struct {
	mu       sync.RWMutex
	entries  []LogEntry
	capacity int
}

func NewLogRing(capacity int) *LogRing {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &LogRing{capacity: capacity, entries: make([]LogEntry, 0, capacity)}
}

func (r *LogRing) Append(entry LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) < r.capacity {
		r.entries = append(r.entries, LogEntry{})
	}
	copy(r.entries[1:], r.entries[:len(r.entries)-1])
	r.entries[0] = entry
}

// Entries returns a copy, newest first.
func (r *LogRing) Entries() []LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]LogEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *LogRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *LogRing) Contains(pattern string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entry := range r.entries {
		if strings.Contains(entry.Text, pattern) {
			return true
		}
	}
	return false
}
