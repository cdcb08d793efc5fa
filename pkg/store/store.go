// Package store persists analysis records and serves the analytics,
// dashboard, and export read paths.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/provenance-labs/provd/pkg/config"
	"github.com/provenance-labs/provd/pkg/models"
)

// ErrNotFound is returned when no record matches the requested analysis id.
var ErrNotFound = errors.New("analysis record not found")

// AnalysisStore is the hash-addressed analysis record repository.
type AnalysisStore struct {
	db  *sqlx.DB
	cfg *config.StoreConfig
}

// NewAnalysisStore creates a store over an existing database handle.
func NewAnalysisStore(db *sqlx.DB, cfg *config.StoreConfig) *AnalysisStore {
	return &AnalysisStore{db: db, cfg: cfg}
}

const recordColumns = `analysis_id, content_type, content_hash, is_ai_generated, confidence,
	model_prediction, result_payload, source, source_url, filename, input_size, created_at`

// Put stores a record. When another record with the same (content_type,
// content_hash) was stored within the dedup window, the existing record's
// id is returned and nothing is written. Assigns a UUID when rec has no id.
// Re-putting an existing analysis_id is a no-op.
func (s *AnalysisStore) Put(ctx context.Context, rec *models.AnalysisRecord) (string, error) {
	if rec.AnalysisID == "" {
		rec.AnalysisID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	if s.cfg.DedupWindow > 0 {
		cutoff := rec.CreatedAt.Add(-s.cfg.DedupWindow)
		var existing string
		err := s.db.GetContext(ctx, &existing,
			`SELECT analysis_id FROM analysis_records
			 WHERE content_type = $1 AND content_hash = $2 AND created_at >= $3
			 ORDER BY created_at ASC LIMIT 1`,
			rec.ContentType, rec.ContentHash, cutoff)
		if err == nil {
			slog.Debug("Deduplicated analysis record",
				"analysis_id", existing,
				"content_type", rec.ContentType)
			return existing, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("failed to check dedup window: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analysis_records (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (analysis_id) DO NOTHING`,
		rec.AnalysisID, rec.ContentType, rec.ContentHash, rec.IsAIGenerated, rec.Confidence,
		rec.ModelPrediction, rec.ResultPayload, rec.Source, rec.SourceURL, rec.Filename,
		rec.InputSize, rec.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("failed to insert analysis record: %w", err)
	}

	return rec.AnalysisID, nil
}

// Get returns one record by analysis id.
func (s *AnalysisStore) Get(ctx context.Context, analysisID string) (*models.AnalysisRecord, error) {
	var rec models.AnalysisRecord
	err := s.db.GetContext(ctx, &rec,
		`SELECT `+recordColumns+` FROM analysis_records WHERE analysis_id = $1`,
		analysisID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get analysis record: %w", err)
	}
	return &rec, nil
}

// List returns records matching the filters, newest first, plus the total
// count for the same filters.
func (s *AnalysisStore) List(ctx context.Context, filters models.RecordFilters) (*models.RecordListResponse, error) {
	where, args := buildRecordWhere(filters)

	var total int
	countQuery := "SELECT COUNT(*) FROM analysis_records" + where
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to count analysis records: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	query := "SELECT " + recordColumns + " FROM analysis_records" + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", limit, offset)

	records := []*models.AnalysisRecord{}
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list analysis records: %w", err)
	}

	return &models.RecordListResponse{
		Records:    records,
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
	}, nil
}

// Prune deletes records created before cutoff and returns the count removed.
func (s *AnalysisStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM analysis_records WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune analysis records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read prune count: %w", err)
	}
	return n, nil
}

// buildRecordWhere assembles the WHERE clause shared by List and Export.
func buildRecordWhere(filters models.RecordFilters) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filters.ContentType != "" {
		add("content_type = $%d", filters.ContentType)
	}
	if filters.Source != "" {
		add("source = $%d", filters.Source)
	}
	if filters.IsAIGenerated != nil {
		add("is_ai_generated = $%d", *filters.IsAIGenerated)
	}
	if filters.CreatedAfter != nil {
		add("created_at >= $%d", *filters.CreatedAfter)
	}
	if filters.CreatedBefore != nil {
		add("created_at < $%d", *filters.CreatedBefore)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
