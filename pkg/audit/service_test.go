package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provenance-labs/provd/pkg/config"
	"github.com/provenance-labs/provd/pkg/models"
)

func setupService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewService(sqlx.NewDb(db, "pgx"), config.DefaultAuditConfig()), mock
}

func TestEmit_DisabledIsNoOp(t *testing.T) {
	cfg := config.DefaultAuditConfig()
	cfg.Enabled = false
	s := NewService(nil, cfg)

	s.Emit(&models.AuditEvent{EventType: "test", Source: "test"})
	assert.Empty(t, s.Tail(0, models.EventFilters{}))
}

func TestEmit_RingOnlyWithoutDB(t *testing.T) {
	s := NewService(nil, config.DefaultAuditConfig())

	s.Emit(&models.AuditEvent{EventType: "test.ring", Source: "test"})

	out := s.Tail(0, models.EventFilters{})
	require.Len(t, out, 1)
	assert.Equal(t, "test.ring", out[0].EventType)
	assert.Equal(t, models.SeverityInfo, out[0].Severity, "severity defaults to info")
	assert.False(t, out[0].CreatedAt.IsZero())
}

func TestPersist_InsertsAndBackfillsID(t *testing.T) {
	s, mock := setupService(t)

	mock.ExpectQuery(`INSERT INTO audit_events`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(77))

	ev := &models.AuditEvent{
		EventType: "analysis.completed",
		Severity:  models.SeverityInfo,
		Source:    "detection",
		Payload:   map[string]any{"analysis_id": "abc"},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.persist(context.Background(), ev))
	assert.Equal(t, int64(77), ev.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersist_NilPayloadBecomesEmptyObject(t *testing.T) {
	s, mock := setupService(t)

	mock.ExpectQuery(`INSERT INTO audit_events`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	ev := &models.AuditEvent{EventType: "t", Severity: models.SeverityInfo, Source: "s", CreatedAt: time.Now()}
	require.NoError(t, s.persist(context.Background(), ev))
}

func TestQuery_AppliesFilters(t *testing.T) {
	s, mock := setupService(t)

	rows := sqlmock.NewRows([]string{
		"id", "event_type", "severity", "source", "actor_id", "request_id", "payload", "created_at",
	}).AddRow(1, "ratelimit.rejected", "warning", "ratelimit", "client-1", nil, []byte(`{"bucket":"text"}`), time.Now())
	mock.ExpectQuery(`SELECT .+ FROM audit_events WHERE event_type = \$1 AND severity = \$2`).
		WillReturnRows(rows)

	events, err := s.Query(context.Background(), models.EventFilters{
		EventType: "ratelimit.rejected",
		Severity:  models.SeverityWarning,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ratelimit.rejected", events[0].EventType)
	assert.Equal(t, "text", events[0].Payload["bucket"])
}

func TestPruneOlderThan(t *testing.T) {
	s, mock := setupService(t)

	mock.ExpectExec(`DELETE FROM audit_events WHERE created_at`).
		WillReturnResult(sqlmock.NewResult(0, 9))

	n, err := s.PruneOlderThan(context.Background(), time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
}

func TestTypedHelpers_ShapePayloads(t *testing.T) {
	s := NewService(nil, config.DefaultAuditConfig())

	s.EmitHTTPRequest("POST", "/detect/text", 429, 12*time.Millisecond, "client-1", "req-1")
	s.EmitWebhookDeadLettered("https://sink.test/hook", "analysis.completed", 5, "connection refused")

	out := s.Tail(0, models.EventFilters{})
	require.Len(t, out, 2)

	assert.Equal(t, "webhook.dead_lettered", out[0].EventType)
	assert.Equal(t, models.SeverityError, out[0].Severity)

	assert.Equal(t, "http.request", out[1].EventType)
	assert.Equal(t, models.SeverityWarning, out[1].Severity, "4xx maps to warning")
	require.NotNil(t, out[1].ActorID)
	assert.Equal(t, "client-1", *out[1].ActorID)
}
