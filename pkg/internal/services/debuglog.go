package services

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const debugLogCapacity = 512

type DebugLogEntry struct {
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// DebugLogRing is a capped in-memory sink with oldest-first eviction. It is
// best effort and empties on cold start.
type DebugLogRing struct {
	mutex   sync.Mutex
	entries []DebugLogEntry
}

var DebugLogs = &DebugLogRing{}

func (r *DebugLogRing) Append(entry DebugLogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if len(r.entries) >= debugLogCapacity {
		r.entries = r.entries[1:]
	}
	r.entries = append(r.entries, entry)
}

// Since returns entries at or after the given time; a zero time returns all.
func (r *DebugLogRing) Since(t time.Time) []DebugLogEntry {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	var out []DebugLogEntry
	for _, entry := range r.entries {
		if t.IsZero() || !entry.Timestamp.Before(t) {
			out = append(out, entry)
		}
	}
	return out
}

func (r *DebugLogRing) Clear() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.entries = nil
}

func FormatDebugLogs(entries []DebugLogEntry) string {
	var sb strings.Builder
	for _, entry := range entries {
		fmt.Fprintf(&sb, "%s [%s] %s\n", entry.Timestamp.Format(time.RFC3339), strings.ToUpper(entry.Level), entry.Message)
	}
	return sb.String()
}

// DebugLogHook mirrors zerolog output into the ring.
type DebugLogHook struct{}

func (DebugLogHook) Run(_ *zerolog.Event, level zerolog.Level, message string) {
	if level == zerolog.NoLevel || len(message) == 0 {
		return
	}
	DebugLogs.Append(DebugLogEntry{
		Level:   level.String(),
		Message: message,
	})
}
