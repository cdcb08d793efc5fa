package store

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/jmoiron/sqlx"

	"github.com/provenance-labs/provd/pkg/models"
)

// ExportFormat selects the export encoding.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
)

// ValidExportFormat reports whether f is a supported export encoding.
func ValidExportFormat(f ExportFormat) bool {
	return f == ExportCSV || f == ExportJSON
}

var exportHeader = []string{
	"analysis_id", "content_type", "content_hash", "is_ai_generated",
	"confidence", "model_prediction", "source", "source_url", "filename",
	"input_size", "created_at",
}

// Export streams matching records to w, oldest first, capped at the
// configured row limit. Rows are written incrementally so large exports
// never buffer fully in memory.
func (s *AnalysisStore) Export(ctx context.Context, w io.Writer, format ExportFormat, filters models.RecordFilters) (int, error) {
	if !ValidExportFormat(format) {
		return 0, fmt.Errorf("unsupported export format %q", format)
	}

	where, args := buildRecordWhere(filters)
	query := "SELECT " + recordColumns + " FROM analysis_records" + where +
		fmt.Sprintf(" ORDER BY created_at ASC LIMIT %d", s.cfg.ExportRowCap)

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to query export rows: %w", err)
	}
	defer rows.Close()

	var written int
	switch format {
	case ExportCSV:
		written, err = writeCSV(w, rows)
	case ExportJSON:
		written, err = writeJSON(w, rows)
	}
	if err != nil {
		return written, err
	}
	if err := rows.Err(); err != nil {
		return written, fmt.Errorf("export row iteration failed: %w", err)
	}
	return written, nil
}

func writeCSV(w io.Writer, rows *sqlx.Rows) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return 0, fmt.Errorf("failed to write csv header: %w", err)
	}

	count := 0
	for rows.Next() {
		var rec models.AnalysisRecord
		if err := rows.StructScan(&rec); err != nil {
			return count, fmt.Errorf("failed to scan export row: %w", err)
		}
		if err := cw.Write([]string{
			rec.AnalysisID,
			string(rec.ContentType),
			rec.ContentHash,
			strconv.FormatBool(rec.IsAIGenerated),
			strconv.FormatFloat(rec.Confidence, 'f', 4, 64),
			derefOr(rec.ModelPrediction, ""),
			rec.Source,
			derefOr(rec.SourceURL, ""),
			derefOr(rec.Filename, ""),
			strconv.FormatInt(rec.InputSize, 10),
			rec.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}); err != nil {
			return count, fmt.Errorf("failed to write csv row: %w", err)
		}
		count++
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return count, fmt.Errorf("failed to flush csv: %w", err)
	}
	return count, nil
}

func writeJSON(w io.Writer, rows *sqlx.Rows) (int, error) {
	if _, err := io.WriteString(w, "["); err != nil {
		return 0, fmt.Errorf("failed to write json export: %w", err)
	}

	enc := json.NewEncoder(w)
	count := 0
	for rows.Next() {
		var rec models.AnalysisRecord
		if err := rows.StructScan(&rec); err != nil {
			return count, fmt.Errorf("failed to scan export row: %w", err)
		}
		if count > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return count, fmt.Errorf("failed to write json export: %w", err)
			}
		}
		if err := enc.Encode(&rec); err != nil {
			return count, fmt.Errorf("failed to encode export row: %w", err)
		}
		count++
	}

	if _, err := io.WriteString(w, "]"); err != nil {
		return count, fmt.Errorf("failed to write json export: %w", err)
	}
	return count, nil
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
