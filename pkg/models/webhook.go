package models

import (
	"encoding/json"
	"time"
)

// WebhookItem is one pending delivery in the durable webhook queue.
type WebhookItem struct {
	URL           string          `json:"url"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	Attempts      int             `json:"attempts"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	FirstFailedAt *time.Time      `json:"first_failed_at,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// DeadLetterEntry records a delivery abandoned after exhausting retries.
type DeadLetterEntry struct {
	URL            string    `json:"url"`
	EventType      string    `json:"event_type"`
	PayloadDigest  string    `json:"payload_digest"`
	Attempts       int       `json:"attempts"`
	LastStatusCode int       `json:"last_status_code,omitempty"`
	LastError      string    `json:"last_error"`
	DeadLetteredAt time.Time `json:"dead_lettered_at"`
}
