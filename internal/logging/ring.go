package logging

import (
	"bytes"
	"sync"
)

// Ring retains the most recent log lines for the /stats endpoint.
// It is safe for concurrent use and implements io.Writer so it can be
// attached to zerolog via MultiLevelWriter.
type Ring struct {
	mu    sync.Mutex
	lines []string
	cap   int
}

// NewRing creates a ring holding up to capacity lines.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 30
	}
	return &Ring{cap: capacity}
}

// Write appends one log line per call. zerolog emits exactly one line per event.
func (r *Ring) Write(p []byte) (int, error) {
	line := string(bytes.TrimRight(p, "\n"))
	if line == "" {
		return len(p), nil
	}

	r.mu.Lock()
	r.lines = append(r.lines, line)
	if len(r.lines) > r.cap {
		r.lines = r.lines[len(r.lines)-r.cap:]
	}
	r.mu.Unlock()
	return len(p), nil
}

// Tail returns up to n of the most recent lines, oldest first.
func (r *Ring) Tail(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || n > len(r.lines) {
		n = len(r.lines)
	}
	out := make([]string, n)
	copy(out, r.lines[len(r.lines)-n:])
	return out
}
