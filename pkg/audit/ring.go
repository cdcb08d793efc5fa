// Package audit implements the audit event pipeline: best-effort durable
// persistence plus a bounded in-memory ring for the live tail.
package audit

import (
	"sync"

	"github.com/provenance-labs/provd/pkg/models"
)

// Ring is a fixed-capacity event buffer. When full, the oldest entry is
// overwritten. Safe for concurrent use.
type Ring struct {
	mu   sync.RWMutex
	buf  []*models.AuditEvent
	next int
	size int
}

// NewRing creates a ring holding at most capacity events.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]*models.AuditEvent, capacity)}
}

// Append adds ev, evicting the oldest entry when full.
func (r *Ring) Append(ev *models.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.next] = ev
	r.next = (r.next + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

// Len returns the number of buffered events.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Tail returns up to limit of the newest events matching the filters,
// newest first. Only EventType and Severity filters apply to the ring.
func (r *Ring) Tail(limit int, filters models.EventFilters) []*models.AuditEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit < 1 || limit > r.size {
		limit = r.size
	}

	out := make([]*models.AuditEvent, 0, limit)
	for i := 1; i <= r.size && len(out) < limit; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		ev := r.buf[idx]
		if filters.EventType != "" && ev.EventType != filters.EventType {
			continue
		}
		if filters.Severity != "" && ev.Severity != filters.Severity {
			continue
		}
		out = append(out, ev)
	}
	return out
}
