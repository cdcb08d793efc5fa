// Package ratelimit enforces per-client fixed-window request buckets and
// a daily points-based spend ledger, over in-process or Redis-shared
// counters.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/provenance-labs/provd/pkg/config"
)

// Reasons a request is denied.
const (
	ReasonRateLimited      = "rate_limited"
	ReasonSpendCapExceeded = "spend_cap_exceeded"
)

// Decision is the outcome of one Authorize call.
type Decision struct {
	Allowed    bool
	Reason     string
	Bucket     string
	RetryAfter time.Duration
	// Remaining is requests left in the current window (when allowed).
	Remaining int64
	// SpendUsed is points consumed today including this request.
	SpendUsed int64
}

// Backend is the counter store shared by the window and ledger paths.
type Backend interface {
	// IncrBy adds delta to key, setting ttl on first write, and returns
	// the new value.
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
	// Delete removes keys.
	Delete(ctx context.Context, keys ...string) error
}

// Guard authorizes requests against the configured buckets and the daily
// spend cap.
type Guard struct {
	cfg     *config.RateLimitConfig
	buckets func(string) config.BucketConfig
	backend Backend
	now     func() time.Time
}

// NewGuard creates a guard over the given backend.
func NewGuard(cfg *config.Config, backend Backend) *Guard {
	return &Guard{
		cfg:     cfg.RateLimit,
		buckets: cfg.Bucket,
		backend: backend,
		now:     time.Now,
	}
}

// Authorize consumes one request from the client's bucket window and cost
// points from the daily ledger. When the ledger would exceed the daily
// cap, the points are rolled back and the request is denied; the window
// slot stays consumed either way.
//
// Backend faults fail open: the request is allowed and the fault logged,
// so a cache outage degrades enforcement rather than availability.
func (g *Guard) Authorize(ctx context.Context, clientID, bucket string, cost int) (*Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bc := g.buckets(bucket)
	now := g.now().UTC()

	window := time.Duration(bc.WindowSeconds) * time.Second
	windowIdx := now.Unix() / int64(bc.WindowSeconds)
	windowEnd := time.Unix((windowIdx+1)*int64(bc.WindowSeconds), 0).UTC()
	windowKey := fmt.Sprintf("provd:rl:%s:%s:%d", clientID, bucket, windowIdx)

	count, err := g.backend.IncrBy(ctx, windowKey, 1, window+time.Minute)
	if err != nil {
		slog.Warn("Rate limit backend unavailable, allowing request",
			"client_id", clientID, "bucket", bucket, "error", err)
		return &Decision{Allowed: true, Bucket: bucket}, nil
	}
	if count > int64(bc.Requests) {
		return &Decision{
			Allowed:    false,
			Reason:     ReasonRateLimited,
			Bucket:     bucket,
			RetryAfter: windowEnd.Sub(now),
		}, nil
	}

	dayKey := g.spendKey(clientID, now)
	nextMidnight := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	total, err := g.backend.IncrBy(ctx, dayKey, int64(cost), nextMidnight.Sub(now)+time.Hour)
	if err != nil {
		slog.Warn("Spend ledger backend unavailable, allowing request",
			"client_id", clientID, "error", err)
		return &Decision{Allowed: true, Bucket: bucket, Remaining: int64(bc.Requests) - count}, nil
	}
	if total > int64(g.cfg.DailySpendCap) {
		// Roll the debit back so a denied request costs nothing.
		if _, rbErr := g.backend.IncrBy(ctx, dayKey, -int64(cost), 0); rbErr != nil {
			slog.Warn("Failed to roll back spend debit",
				"client_id", clientID, "error", rbErr)
		}
		return &Decision{
			Allowed:    false,
			Reason:     ReasonSpendCapExceeded,
			Bucket:     bucket,
			RetryAfter: nextMidnight.Sub(now),
			SpendUsed:  total - int64(cost),
		}, nil
	}

	return &Decision{
		Allowed:   true,
		Bucket:    bucket,
		Remaining: int64(bc.Requests) - count,
		SpendUsed: total,
	}, nil
}

// Cost returns the configured point cost for an operation family.
func (g *Guard) Cost(op string) int {
	switch op {
	case "text":
		return g.cfg.Costs.Text
	case "image":
		return g.cfg.Costs.Image
	case "audio":
		return g.cfg.Costs.Audio
	case "video":
		return g.cfg.Costs.Video
	case "batch":
		return g.cfg.Costs.Batch
	case "intel":
		return g.cfg.Costs.Intel
	}
	return 1
}

// Reset clears the client's current window counters and today's ledger.
func (g *Guard) Reset(ctx context.Context, clientID string) error {
	now := g.now().UTC()
	keys := []string{g.spendKey(clientID, now)}
	for name, bc := range g.cfg.Buckets {
		windowIdx := now.Unix() / int64(bc.WindowSeconds)
		keys = append(keys, fmt.Sprintf("provd:rl:%s:%s:%d", clientID, name, windowIdx))
	}
	if err := g.backend.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to reset limits for %s: %w", clientID, err)
	}
	return nil
}

func (g *Guard) spendKey(clientID string, now time.Time) string {
	return fmt.Sprintf("provd:spend:%s:%s", clientID, now.Format("2006-01-02"))
}
