package api

import "github.com/provenance-labs/provd/pkg/database"

// ErrorResponse is the envelope every 4xx/5xx carries. Error is a
// machine-readable kind such as ValidationFailed or RateLimited.
type ErrorResponse struct {
	Error      string       `json:"error"`
	Detail     string       `json:"detail,omitempty"`
	Fields     []FieldError `json:"fields,omitempty"`
	StatusCode int          `json:"status_code"`
	RequestID  string       `json:"request_id,omitempty"`
	Path       string       `json:"path"`
}

// FieldError is one failed field in a validation error.
type FieldError struct {
	Field  string `json:"field"`
	Detail string `json:"detail"`
}

// HealthCheck is one dependency's health in the health response.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string                 `json:"status"`
	Version  string                 `json:"version"`
	Checks   map[string]HealthCheck `json:"checks,omitempty"`
	Database *database.HealthStatus `json:"database,omitempty"`
}

// EstimateResponse is the body of POST /intel/x/collect/estimate.
type EstimateResponse struct {
	TargetPages      int `json:"target_pages"`
	MentionPages     int `json:"mention_pages"`
	InteractionPages int `json:"interaction_pages"`
	TotalRequests    int `json:"total_requests"`
}

// TriggerResponse is the body of POST /intel/scheduler/trigger.
type TriggerResponse struct {
	Handle string `json:"handle"`
	Status string `json:"status"`
}
