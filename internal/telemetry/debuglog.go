// Package telemetry keeps a bounded in-memory record of every remote call
// the terminal makes. It exists for the debug screen only; nothing in the
// pipeline takes decisions based on it.
package telemetry

import (
	"sync"
	"time"

	"odelivery/terminal/internal/domain"
	"odelivery/terminal/internal/xid"
)

const DefaultCapacity = 200

// Log is a fixed-size FIFO ring of DebugLogEntry values. Safe for concurrent
// use; the poller goroutine appends while the HTTP API reads.
type Log struct {
	mu       sync.Mutex
	capacity int
	entries  []domain.DebugLogEntry
}

func NewLog(capacity int) *Log {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Log{
		capacity: capacity,
		entries:  make([]domain.DebugLogEntry, 0, capacity),
	}
}

// Record appends one call outcome, evicting the oldest entry once the ring
// is full. Success means no transport error and a status below 400.
func (l *Log) Record(method, endpoint string, status int, callErr error, duration time.Duration) {
	entry := domain.DebugLogEntry{
		ID:         xid.New("dbg"),
		Timestamp:  time.Now().UTC(),
		Method:     method,
		Endpoint:   endpoint,
		Status:     status,
		DurationMS: duration.Milliseconds(),
		Success:    callErr == nil && status < 400,
	}
	if callErr != nil {
		entry.Error = callErr.Error()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == l.capacity {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:l.capacity-1]
	}
	l.entries = append(l.entries, entry)
}

// Entries returns a copy of the ring, newest last.
func (l *Log) Entries() []domain.DebugLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.DebugLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Stats derives aggregate counters from the current ring contents. Nothing
// is cached; every call recomputes from scratch.
func (l *Log) Stats() domain.DebugLogStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := domain.DebugLogStats{Total: len(l.entries)}
	var durationSum int64
	for _, entry := range l.entries {
		if entry.Success {
			stats.Success++
		} else {
			stats.Failure++
		}
		durationSum += entry.DurationMS
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Success) / float64(stats.Total)
		stats.AvgDurationMS = float64(durationSum) / float64(stats.Total)
	}
	return stats
}
