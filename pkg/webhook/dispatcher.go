// Package webhook delivers outbound event notifications with a durable
// retry queue and a dead-letter log for deliveries that exhaust their
// attempts.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/provenance-labs/provd/pkg/config"
	"github.com/provenance-labs/provd/pkg/models"
)

// auditEmitter is the slice of the audit service the dispatcher needs.
type auditEmitter interface {
	EmitWebhookDelivered(url, eventType string, attempts int)
	EmitWebhookDeadLettered(url, eventType string, attempts int, lastError string)
}

// envelope is the wire shape of every delivered event.
type envelope struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	EmittedAt time.Time `json:"emitted_at"`
	Data      any       `json:"data"`
}

// Dispatcher fans events out to the configured endpoints, retrying with
// capped exponential backoff and dead-lettering exhausted deliveries.
type Dispatcher struct {
	cfg    *config.WebhookConfig
	client *http.Client
	audit  auditEmitter
	secret string

	mu    sync.Mutex
	queue []*models.WebhookItem

	now func() time.Time
}

// NewDispatcher creates a dispatcher and recovers any pending deliveries
// from the queue file.
func NewDispatcher(cfg *config.Config, audit auditEmitter) (*Dispatcher, error) {
	queue, err := loadQueue(cfg.Webhook.QueueFile)
	if err != nil {
		return nil, err
	}
	var secret string
	if cfg.Webhook.SecretEnv != "" {
		secret = os.Getenv(cfg.Webhook.SecretEnv)
	}
	d := &Dispatcher{
		cfg:    cfg.Webhook,
		client: &http.Client{Timeout: cfg.Webhook.Timeout},
		audit:  audit,
		secret: secret,
		queue:  queue,
		now:    time.Now,
	}
	if len(queue) > 0 {
		slog.Info("Recovered pending webhook deliveries", "count", len(queue))
	}
	return d, nil
}

// Enqueue queues one delivery per configured endpoint and persists the
// queue snapshot. Events are due immediately; Drain performs delivery.
func (d *Dispatcher) Enqueue(eventType string, data any) error {
	if len(d.cfg.URLs) == 0 {
		return nil
	}
	now := d.now().UTC()
	payload, err := json.Marshal(envelope{
		EventID:   uuid.NewString(),
		EventType: eventType,
		EmittedAt: now,
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, url := range d.cfg.URLs {
		d.queue = append(d.queue, &models.WebhookItem{
			URL:           url,
			EventType:     eventType,
			Payload:       payload,
			NextAttemptAt: now,
			CreatedAt:     now,
		})
	}
	return d.persistLocked()
}

// Drain attempts every due delivery once. Failures are rescheduled with
// backoff; deliveries past max_attempts move to the dead-letter log.
func (d *Dispatcher) Drain(ctx context.Context) {
	due := d.takeDue()
	for _, item := range due {
		if ctx.Err() != nil {
			d.requeue(item)
			continue
		}
		d.attempt(ctx, item)
	}
}

// Pending reports the number of queued deliveries.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Run drains the queue on the configured interval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("Webhook dispatcher started",
		"endpoints", len(d.cfg.URLs), "drain_interval", d.cfg.DrainInterval)
	ticker := time.NewTicker(d.cfg.DrainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Webhook dispatcher stopped", "pending", d.Pending())
			return
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

func (d *Dispatcher) attempt(ctx context.Context, item *models.WebhookItem) {
	item.Attempts++
	status, err := d.deliver(ctx, item)
	if err == nil {
		slog.Debug("Webhook delivered",
			"url", item.URL, "event_type", item.EventType, "attempts", item.Attempts)
		d.audit.EmitWebhookDelivered(item.URL, item.EventType, item.Attempts)
		return
	}

	item.LastError = err.Error()
	if item.FirstFailedAt == nil {
		t := d.now().UTC()
		item.FirstFailedAt = &t
	}
	if item.Attempts >= d.cfg.MaxAttempts {
		d.deadLetter(item, status)
		return
	}

	item.NextAttemptAt = d.now().UTC().Add(d.backoff(item.Attempts))
	slog.Warn("Webhook delivery failed, will retry",
		"url", item.URL, "event_type", item.EventType,
		"attempts", item.Attempts, "next_attempt_at", item.NextAttemptAt, "error", err)
	d.requeue(item)
}

// deliver posts the payload. The signature header authenticates the body
// when a shared secret is configured.
func (d *Dispatcher) deliver(ctx context.Context, item *models.WebhookItem) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, item.URL, bytes.NewReader(item.Payload))
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", item.EventType)
	if d.secret != "" {
		req.Header.Set("X-Webhook-Signature", "sha256="+d.sign(item.Payload))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (d *Dispatcher) sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(d.secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// backoff is base*2^(attempts-1) capped at max, with 20% jitter so
// simultaneous failures do not retry in lockstep.
func (d *Dispatcher) backoff(attempts int) time.Duration {
	delay := d.cfg.BaseBackoff
	for i := 1; i < attempts && delay < d.cfg.MaxBackoff; i++ {
		delay *= 2
	}
	if delay > d.cfg.MaxBackoff {
		delay = d.cfg.MaxBackoff
	}
	jitter := 1 + (rand.Float64()*0.4 - 0.2)
	return time.Duration(float64(delay) * jitter)
}

func (d *Dispatcher) deadLetter(item *models.WebhookItem, lastStatus int) {
	digest := sha256.Sum256(item.Payload)
	entry := &models.DeadLetterEntry{
		URL:            item.URL,
		EventType:      item.EventType,
		PayloadDigest:  hex.EncodeToString(digest[:]),
		Attempts:       item.Attempts,
		LastStatusCode: lastStatus,
		LastError:      item.LastError,
		DeadLetteredAt: d.now().UTC(),
	}
	if err := appendDeadLetter(d.cfg.DeadLetterFile, entry); err != nil {
		slog.Error("Failed to write dead-letter entry",
			"url", item.URL, "event_type", item.EventType, "error", err)
	}
	slog.Error("Webhook delivery abandoned",
		"url", item.URL, "event_type", item.EventType,
		"attempts", item.Attempts, "last_error", item.LastError)
	d.audit.EmitWebhookDeadLettered(item.URL, item.EventType, item.Attempts, item.LastError)
}

// takeDue removes and returns all deliveries whose retry time has passed.
func (d *Dispatcher) takeDue() []*models.WebhookItem {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now().UTC()
	var due, rest []*models.WebhookItem
	for _, item := range d.queue {
		if !item.NextAttemptAt.After(now) {
			due = append(due, item)
		} else {
			rest = append(rest, item)
		}
	}
	if len(due) == 0 {
		return nil
	}
	d.queue = rest
	if err := d.persistLocked(); err != nil {
		slog.Warn("Failed to persist webhook queue", "error", err)
	}
	return due
}

func (d *Dispatcher) requeue(item *models.WebhookItem) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, item)
	if err := d.persistLocked(); err != nil {
		slog.Warn("Failed to persist webhook queue", "error", err)
	}
}

func (d *Dispatcher) persistLocked() error {
	return saveQueue(d.cfg.QueueFile, d.queue)
}
