package logging

import (
	"strings"
	"sync"
	"time"
)

// Entry is a single captured log line, shaped for the diagnostics UI.
type Entry struct {
	ID        uint64    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
}

// Buffer is a fixed-capacity in-memory ring of recent log entries. It is
// constructed once at startup and shared by every logger in the process.
// Once full, new entries overwrite the oldest slot in place.
type Buffer struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	head     int // oldest slot once the ring is full
	counter  uint64
}

func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
	}
}

func (b *Buffer) Append(level, source, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := Entry{
		ID:        b.counter,
		Timestamp: time.Now(),
		Level:     level,
		Source:    source,
		Message:   message,
	}
	b.counter++

	if len(b.entries) < b.capacity {
		b.entries = append(b.entries, entry)
		return
	}
	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.capacity
}

// Recent returns up to count entries, newest first. An empty level matches
// every entry.
func (b *Buffer) Recent(count int, level string) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if count <= 0 {
		count = 100
	}

	// head is 0 until the ring fills, so this walk covers both phases.
	n := len(b.entries)
	out := make([]Entry, 0, count)
	for i := 0; i < n && len(out) < count; i++ {
		entry := b.entries[(b.head+n-1-i)%n]
		if level != "" && !strings.EqualFold(entry.Level, level) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = b.entries[:0]
	b.head = 0
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
