// Package cleanup enforces data retention policies in the background.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/provenance-labs/provd/pkg/config"
)

type recordPruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

type eventPruner interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service periodically enforces retention policies:
//   - Deletes analysis records older than the retention window
//   - Deletes audit event rows past their TTL
//
// All operations are idempotent and safe to run from multiple replicas.
type Service struct {
	config  *config.RetentionConfig
	records recordPruner
	events  eventPruner
	now     func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, records recordPruner, events eventPruner) *Service {
	return &Service{
		config:  cfg,
		records: records,
		events:  events,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"analysis_retention_days", s.config.AnalysisRetentionDays,
		"event_ttl_days", s.config.EventTTLDays,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.pruneAnalysisRecords(ctx)
	s.pruneAuditEvents(ctx)
}

func (s *Service) pruneAnalysisRecords(ctx context.Context) {
	if s.config.AnalysisRetentionDays <= 0 {
		return
	}
	cutoff := s.now().AddDate(0, 0, -s.config.AnalysisRetentionDays)
	count, err := s.records.Prune(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: analysis record prune failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: pruned analysis records", "count", count)
	}
}

func (s *Service) pruneAuditEvents(ctx context.Context) {
	if s.config.EventTTLDays <= 0 {
		return
	}
	cutoff := s.now().AddDate(0, 0, -s.config.EventTTLDays)
	count, err := s.events.PruneOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: audit event prune failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: pruned audit events", "count", count)
	}
}
