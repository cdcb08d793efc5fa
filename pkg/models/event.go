package models

import "time"

// EventSeverity classifies audit events.
type EventSeverity string

const (
	SeverityInfo    EventSeverity = "info"
	SeverityWarning EventSeverity = "warning"
	SeverityError   EventSeverity = "error"
)

// ValidSeverity reports whether s is a known severity level.
func ValidSeverity(s EventSeverity) bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError:
		return true
	}
	return false
}

// AuditEvent is one entry in the audit pipeline. ID is assigned by the
// database; ring-buffered copies that were never persisted keep ID zero.
type AuditEvent struct {
	ID        int64          `json:"id" db:"id"`
	EventType string         `json:"event_type" db:"event_type"`
	Severity  EventSeverity  `json:"severity" db:"severity"`
	Source    string         `json:"source" db:"source"`
	ActorID   *string        `json:"actor_id,omitempty" db:"actor_id"`
	RequestID *string        `json:"request_id,omitempty" db:"request_id"`
	Payload   map[string]any `json:"payload" db:"-"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// EventFilters contains filtering options for querying audit events
type EventFilters struct {
	EventType     string        `json:"event_type,omitempty"`
	Severity      EventSeverity `json:"severity,omitempty"`
	ActorID       string        `json:"actor_id,omitempty"`
	CreatedAfter  *time.Time    `json:"created_after,omitempty"`
	CreatedBefore *time.Time    `json:"created_before,omitempty"`
	Limit         int           `json:"limit,omitempty"`
	Offset        int           `json:"offset,omitempty"`
}

// EventsResponse contains a list of audit events
type EventsResponse struct {
	Events []*AuditEvent `json:"events"`
}
