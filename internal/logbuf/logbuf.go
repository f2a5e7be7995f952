// Package logbuf keeps recent log entries in memory so operators can read
// them over the API, filtered by level, time, or ticket.
package logbuf

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultSize is the buffer capacity used when New is given a non-positive size.
const DefaultSize = 2000

// TicketKey is the log attribute that ties an entry to a ticket.
const TicketKey = "ticket"

// Entry is a single log entry captured from slog.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Ticket  string         `json:"ticket,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`

	level slog.Level
}

// Filter selects entries in Query. Zero fields match everything.
type Filter struct {
	Since    time.Time
	MinLevel slog.Level
	Ticket   string
	Limit    int // newest Limit matches; 0 = all
}

// Buffer is a thread-safe ring buffer for log entries.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	size    int
	pos     int
	count   int
}

// New creates a new ring buffer that holds up to size entries.
func New(size int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Buffer{
		entries: make([]Entry, size),
		size:    size,
	}
}

// Write appends an entry to the ring buffer, evicting the oldest when full.
func (b *Buffer) Write(e Entry) {
	e.level = ParseLevel(e.Level)
	b.mu.Lock()
	b.entries[b.pos] = e
	b.pos = (b.pos + 1) % b.size
	if b.count < b.size {
		b.count++
	}
	b.mu.Unlock()
}

// Len returns the number of entries held.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Query returns entries matching f, oldest first.
func (b *Buffer) Query(f Filter) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := []Entry{}

	start := 0
	if b.count == b.size {
		start = b.pos // oldest entry when buffer is full
	}
	for i := 0; i < b.count; i++ {
		e := b.entries[(start+i)%b.size]

		if !f.Since.IsZero() && e.Time.Before(f.Since) {
			continue
		}
		if e.level < f.MinLevel {
			continue
		}
		if f.Ticket != "" && e.Ticket != f.Ticket {
			continue
		}
		result = append(result, e)
	}

	if f.Limit > 0 && len(result) > f.Limit {
		result = result[len(result)-f.Limit:]
	}
	return result
}

// ParseLevel converts a level name ("debug", "INFO", "warn", ...) to an
// slog.Level. Unknown names are treated as info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
