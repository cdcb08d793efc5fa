package models

import (
	"encoding/json"
	"time"
)

// ContentType enumerates the modalities the service analyzes.
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
	ContentTypeAudio ContentType = "audio"
	ContentTypeVideo ContentType = "video"
)

// ValidContentType reports whether ct is one of the supported modalities.
func ValidContentType(ct ContentType) bool {
	switch ct {
	case ContentTypeText, ContentTypeImage, ContentTypeAudio, ContentTypeVideo:
		return true
	}
	return false
}

// AnalysisRecord is the durable result of one provenance analysis.
type AnalysisRecord struct {
	AnalysisID      string          `json:"analysis_id" db:"analysis_id"`
	ContentType     ContentType     `json:"content_type" db:"content_type"`
	ContentHash     string          `json:"content_hash" db:"content_hash"`
	IsAIGenerated   bool            `json:"is_ai_generated" db:"is_ai_generated"`
	Confidence      float64         `json:"confidence" db:"confidence"`
	ModelPrediction *string         `json:"model_prediction" db:"model_prediction"`
	ResultPayload   json.RawMessage `json:"result_payload" db:"result_payload"`
	Source          string          `json:"source" db:"source"`
	SourceURL       *string         `json:"source_url,omitempty" db:"source_url"`
	Filename        *string         `json:"filename,omitempty" db:"filename"`
	InputSize       int64           `json:"input_size" db:"input_size"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// RecordFilters contains filtering options for listing analysis records
type RecordFilters struct {
	ContentType   ContentType `json:"content_type,omitempty"`
	Source        string      `json:"source,omitempty"`
	IsAIGenerated *bool       `json:"is_ai_generated,omitempty"`
	CreatedAfter  *time.Time  `json:"created_after,omitempty"`
	CreatedBefore *time.Time  `json:"created_before,omitempty"`
	Limit         int         `json:"limit,omitempty"`
	Offset        int         `json:"offset,omitempty"`
}

// RecordListResponse contains a paginated record list
type RecordListResponse struct {
	Records    []*AnalysisRecord `json:"records"`
	TotalCount int               `json:"total_count"`
	Limit      int               `json:"limit"`
	Offset     int               `json:"offset"`
}

// DetectionResult is the raw output of one detector pass, before consensus.
type DetectionResult struct {
	IsAIGenerated    bool               `json:"is_ai_generated"`
	Confidence       float64            `json:"confidence"`
	ModelPrediction  *string            `json:"model_prediction"`
	Analysis         map[string]float64 `json:"analysis"`
	Explanation      string             `json:"explanation"`
	ProcessingTimeMs int64              `json:"processing_time_ms"`
}
