package api

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/provenance-labs/provd/pkg/audit"
	"github.com/provenance-labs/provd/pkg/config"
	"github.com/provenance-labs/provd/pkg/consensus"
	"github.com/provenance-labs/provd/pkg/database"
	"github.com/provenance-labs/provd/pkg/detector"
	"github.com/provenance-labs/provd/pkg/intel"
	"github.com/provenance-labs/provd/pkg/ratelimit"
	"github.com/provenance-labs/provd/pkg/scheduler"
	"github.com/provenance-labs/provd/pkg/services"
	"github.com/provenance-labs/provd/pkg/store"
	"github.com/provenance-labs/provd/pkg/webhook"
)

// newValidationServer builds a server with just enough to exercise the
// request validation paths that return before reaching any service.
func newValidationServer() *Server {
	return &Server{validate: validator.New()}
}

func testAPIConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Server:    config.DefaultServerConfig(),
		Auth:      config.DefaultAuthConfig(),
		Limits:    config.DefaultLimitsConfig(),
		RateLimit: config.DefaultRateLimitConfig(),
		Consensus: config.DefaultConsensusConfig(),
		Scheduler: config.DefaultSchedulerConfig(),
		Webhook:   config.DefaultWebhookConfig(),
		Audit:     config.DefaultAuditConfig(),
		Retention: config.DefaultRetentionConfig(),
		Store:     config.DefaultStoreConfig(),
		Intel:     config.DefaultIntelConfig(),
	}
	cfg.Scheduler.UsageFile = filepath.Join(dir, "usage.json")
	cfg.Webhook.QueueFile = filepath.Join(dir, "queue.json")
	cfg.Webhook.DeadLetterFile = filepath.Join(dir, "dead_letter.jsonl")
	// Dedup off so Put expectations are a single INSERT.
	cfg.Store.DedupWindow = 0
	return cfg
}

// newWiredServer assembles a full server over sqlmock, an in-memory rate
// limiter, and a ring-only audit service.
func newWiredServer(t *testing.T, cfg *config.Config) (*Server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	client := database.NewClientFromDB(db)
	analysisStore := store.NewAnalysisStore(client.DB(), cfg.Store)
	auditSvc := audit.NewService(nil, cfg.Audit)
	guard := ratelimit.NewGuard(cfg, ratelimit.NewMemoryBackend())

	hooks, err := webhook.NewDispatcher(cfg, auditSvc)
	require.NoError(t, err)

	engine := consensus.NewEngine(detector.New(cfg.Limits), cfg.Consensus)
	detection := services.NewDetectionService(engine, analysisStore, auditSvc, hooks, cfg.Limits)

	sched, err := scheduler.New(cfg,
		func(ctx context.Context, job config.JobConfig) (int, error) { return 0, nil },
		func(config.JobConfig) int { return 1 },
		auditSvc)
	require.NoError(t, err)

	collector := intel.NewCollector(cfg, nil, analysisStore, hooks)
	return NewServer(cfg, client, detection, analysisStore, auditSvc, guard, sched, collector, nil), mock
}
