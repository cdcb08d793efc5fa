package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/provenance-labs/provd/pkg/config"
	"github.com/provenance-labs/provd/pkg/models"
)

// persistTimeout bounds one background insert.
const persistTimeout = 5 * time.Second

// Service fans audit events into the in-memory ring and, best-effort, the
// audit_events table. Emit never blocks the caller on the database and
// never propagates persistence failures.
type Service struct {
	db      *sqlx.DB
	ring    *Ring
	enabled bool
}

// NewService creates the audit service. db may be nil in tests; events then
// live only in the ring.
func NewService(db *sqlx.DB, cfg *config.AuditConfig) *Service {
	return &Service{
		db:      db,
		ring:    NewRing(cfg.RingCapacity),
		enabled: cfg.Enabled,
	}
}

// Emit records an event. The ring append is synchronous; persistence runs
// in the background and failures are logged and swallowed.
func (s *Service) Emit(ev *models.AuditEvent) {
	if !s.enabled {
		return
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if ev.Severity == "" {
		ev.Severity = models.SeverityInfo
	}

	s.ring.Append(ev)

	if s.db == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Audit persist panicked", "panic", r, "event_type", ev.EventType)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := s.persist(ctx, ev); err != nil {
			slog.Warn("Failed to persist audit event",
				"event_type", ev.EventType,
				"error", err)
		}
	}()
}

// persist inserts ev and backfills its database id.
func (s *Service) persist(ctx context.Context, ev *models.AuditEvent) error {
	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal audit payload: %w", err)
	}

	var id int64
	err = s.db.QueryRowxContext(ctx,
		`INSERT INTO audit_events (event_type, severity, source, actor_id, request_id, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		ev.EventType, ev.Severity, ev.Source, ev.ActorID, ev.RequestID, raw, ev.CreatedAt).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	ev.ID = id
	return nil
}

// Tail returns the newest ring-buffered events, newest first.
func (s *Service) Tail(limit int, filters models.EventFilters) []*models.AuditEvent {
	return s.ring.Tail(limit, filters)
}

// Query reads persisted events matching the filters, newest first.
func (s *Service) Query(ctx context.Context, filters models.EventFilters) ([]*models.AuditEvent, error) {
	var conds []string
	var args []any
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filters.EventType != "" {
		add("event_type = $%d", filters.EventType)
	}
	if filters.Severity != "" {
		add("severity = $%d", filters.Severity)
	}
	if filters.ActorID != "" {
		add("actor_id = $%d", filters.ActorID)
	}
	if filters.CreatedAfter != nil {
		add("created_at >= $%d", *filters.CreatedAfter)
	}
	if filters.CreatedBefore != nil {
		add("created_at < $%d", *filters.CreatedBefore)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filters.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT id, event_type, severity, source, actor_id, request_id, payload, created_at
	 FROM audit_events` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d", limit, offset)

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	events := []*models.AuditEvent{}
	for rows.Next() {
		var ev models.AuditEvent
		var raw []byte
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.Severity, &ev.Source,
			&ev.ActorID, &ev.RequestID, &raw, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &ev.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode audit payload: %w", err)
			}
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit event iteration failed: %w", err)
	}
	return events, nil
}

// PruneOlderThan deletes persisted events created before cutoff.
func (s *Service) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read prune count: %w", err)
	}
	return n, nil
}
