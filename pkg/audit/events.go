package audit

import (
	"time"

	"github.com/provenance-labs/provd/pkg/models"
)

// Typed emit helpers keep event shapes consistent across callers.

// EmitHTTPRequest records one handled HTTP request.
func (s *Service) EmitHTTPRequest(method, path string, status int, duration time.Duration, actorID, requestID string) {
	s.Emit(&models.AuditEvent{
		EventType: "http.request",
		Severity:  severityForStatus(status),
		Source:    "api",
		ActorID:   optional(actorID),
		RequestID: optional(requestID),
		Payload: map[string]any{
			"method":      method,
			"path":        path,
			"status":      status,
			"duration_ms": duration.Milliseconds(),
		},
	})
}

// EmitAnalysisCompleted records one finished analysis.
func (s *Service) EmitAnalysisCompleted(analysisID string, contentType models.ContentType, isAI bool, confidence float64, actorID, requestID string) {
	s.Emit(&models.AuditEvent{
		EventType: "analysis.completed",
		Severity:  models.SeverityInfo,
		Source:    "detection",
		ActorID:   optional(actorID),
		RequestID: optional(requestID),
		Payload: map[string]any{
			"analysis_id":     analysisID,
			"content_type":    string(contentType),
			"is_ai_generated": isAI,
			"confidence":      confidence,
		},
	})
}

// EmitRateLimited records a rejected request.
func (s *Service) EmitRateLimited(clientID, bucket, reason string) {
	s.Emit(&models.AuditEvent{
		EventType: "ratelimit.rejected",
		Severity:  models.SeverityWarning,
		Source:    "ratelimit",
		ActorID:   optional(clientID),
		Payload: map[string]any{
			"bucket": bucket,
			"reason": reason,
		},
	})
}

// EmitSchedulerRun records one completed or failed collection run.
func (s *Service) EmitSchedulerRun(handle string, requestsUsed int, runErr error) {
	severity := models.SeverityInfo
	payload := map[string]any{
		"handle":        handle,
		"requests_used": requestsUsed,
	}
	if runErr != nil {
		severity = models.SeverityError
		payload["error"] = runErr.Error()
	}
	s.Emit(&models.AuditEvent{
		EventType: "scheduler.run",
		Severity:  severity,
		Source:    "scheduler",
		Payload:   payload,
	})
}

// EmitSchedulerCapped records the monthly cap kill switch: once when it
// arms, then once per tick while it stays armed.
func (s *Service) EmitSchedulerCapped(monthKey string, requestsUsed, cap int) {
	s.Emit(&models.AuditEvent{
		EventType: "scheduler.capped",
		Severity:  models.SeverityError,
		Source:    "scheduler",
		Payload: map[string]any{
			"month_key":     monthKey,
			"requests_used": requestsUsed,
			"monthly_cap":   cap,
		},
	})
}

// EmitSchedulerBudgetSkip records a run skipped because its estimated cost
// would exceed the remaining monthly budget.
func (s *Service) EmitSchedulerBudgetSkip(handle string, estimated, requestsUsed, cap int) {
	s.Emit(&models.AuditEvent{
		EventType: "scheduler.budget_skip",
		Severity:  models.SeverityWarning,
		Source:    "scheduler",
		Payload: map[string]any{
			"handle":        handle,
			"estimated":     estimated,
			"requests_used": requestsUsed,
			"monthly_cap":   cap,
		},
	})
}

// EmitWebhookDelivered records a successful webhook delivery.
func (s *Service) EmitWebhookDelivered(url, eventType string, attempts int) {
	s.Emit(&models.AuditEvent{
		EventType: "webhook.delivered",
		Severity:  models.SeverityInfo,
		Source:    "webhook",
		Payload: map[string]any{
			"url":        url,
			"event_type": eventType,
			"attempts":   attempts,
		},
	})
}

// EmitWebhookDeadLettered records a delivery abandoned to the DLQ.
func (s *Service) EmitWebhookDeadLettered(url, eventType string, attempts int, lastError string) {
	s.Emit(&models.AuditEvent{
		EventType: "webhook.dead_lettered",
		Severity:  models.SeverityError,
		Source:    "webhook",
		Payload: map[string]any{
			"url":        url,
			"event_type": eventType,
			"attempts":   attempts,
			"last_error": lastError,
		},
	})
}

func severityForStatus(status int) models.EventSeverity {
	switch {
	case status >= 500:
		return models.SeverityError
	case status >= 400:
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
