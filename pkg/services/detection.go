package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/provenance-labs/provd/pkg/config"
	"github.com/provenance-labs/provd/pkg/consensus"
	"github.com/provenance-labs/provd/pkg/detector"
	"github.com/provenance-labs/provd/pkg/models"
)

// RequestMeta carries per-request attribution through the pipeline.
type RequestMeta struct {
	ClientID  string
	RequestID string
	Source    string
}

// recordStore is the slice of the analysis store the service needs.
type recordStore interface {
	Put(ctx context.Context, rec *models.AnalysisRecord) (string, error)
}

// auditEmitter is the slice of the audit service the service needs.
type auditEmitter interface {
	EmitAnalysisCompleted(analysisID string, contentType models.ContentType, isAI bool, confidence float64, actorID, requestID string)
}

// webhookEnqueuer queues an outbound event notification.
type webhookEnqueuer interface {
	Enqueue(eventType string, data any) error
}

// DetectionService runs the full detection path: validate, score through
// the consensus engine, persist, audit, and notify.
type DetectionService struct {
	engine *consensus.Engine
	store  recordStore
	audit  auditEmitter
	hooks  webhookEnqueuer
	limits *config.LimitsConfig
	fetch  *http.Client
}

// NewDetectionService wires the detection pipeline.
func NewDetectionService(engine *consensus.Engine, store recordStore, audit auditEmitter, hooks webhookEnqueuer, limits *config.LimitsConfig) *DetectionService {
	return &DetectionService{
		engine: engine,
		store:  store,
		audit:  audit,
		hooks:  hooks,
		limits: limits,
		fetch:  &http.Client{Timeout: 30 * time.Second},
	}
}

// DetectText analyzes one text and persists the verdict.
func (s *DetectionService) DetectText(ctx context.Context, text string, meta RequestMeta) (*models.DetectionResponse, error) {
	if err := s.validateText(text); err != nil {
		return nil, err
	}
	return s.analyze(ctx, consensus.Artifact{
		Modality: models.ContentTypeText,
		Text:     text,
	}, int64(len(text)), meta)
}

// DetectMedia analyzes one uploaded image, audio, or video payload.
func (s *DetectionService) DetectMedia(ctx context.Context, modality models.ContentType, data []byte, filename string, meta RequestMeta) (*models.DetectionResponse, error) {
	if !models.ValidContentType(modality) || modality == models.ContentTypeText {
		return nil, NewValidationError("content_type", fmt.Sprintf("unsupported modality %q", modality))
	}
	if len(data) == 0 {
		return nil, NewValidationError("file", "file is empty")
	}
	if limit := s.mediaSizeLimit(modality); int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: file exceeds %d MiB limit", ErrInputTooLarge, limit>>20)
	}
	return s.analyze(ctx, consensus.Artifact{
		Modality: modality,
		Data:     data,
		Filename: filename,
	}, int64(len(data)), meta)
}

// DetectURL fetches a URL, classifies the payload as image or text, and
// runs the matching detection path.
func (s *DetectionService) DetectURL(ctx context.Context, rawURL string, meta RequestMeta) (*models.DetectionResponse, error) {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return nil, NewValidationError("url", "url must be http or https")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, NewValidationError("url", "url is not valid")
	}
	resp, err := s.fetch.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch failed: %w", ErrInvalidInput, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: url returned status %d", ErrInvalidInput, resp.StatusCode)
	}

	limit := int64(s.limits.MaxURLFetchSizeMB) << 20
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read url body: %w", ErrInvalidInput, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: content exceeds %d MiB fetch limit",
			ErrInputTooLarge, s.limits.MaxURLFetchSizeMB)
	}

	meta.Source = "url"
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return s.analyzeFetched(ctx, consensus.Artifact{
			Modality: models.ContentTypeImage,
			Data:     body,
			Filename: rawURL,
		}, int64(len(body)), rawURL, meta)
	case mediaType == "text/html":
		text := stripHTML(string(body))
		if err := s.validateText(text); err != nil {
			return nil, err
		}
		return s.analyzeFetched(ctx, consensus.Artifact{
			Modality: models.ContentTypeText,
			Text:     text,
		}, int64(len(text)), rawURL, meta)
	case strings.HasPrefix(mediaType, "text/"):
		text := string(body)
		if err := s.validateText(text); err != nil {
			return nil, err
		}
		return s.analyzeFetched(ctx, consensus.Artifact{
			Modality: models.ContentTypeText,
			Text:     text,
		}, int64(len(text)), rawURL, meta)
	}
	return nil, fmt.Errorf("%w: content type %q", ErrUnsupportedMedia, mediaType)
}

// BatchText analyzes up to the configured maximum of texts in order.
// Per-item failures are reported in place; stopOnError aborts the
// remainder after the first failure.
func (s *DetectionService) BatchText(ctx context.Context, items []models.BatchTextItem, stopOnError bool, meta RequestMeta) (*models.BatchResponse, error) {
	if len(items) == 0 {
		return nil, NewValidationError("items", "batch is empty")
	}
	if len(items) > s.limits.MaxBatchItems {
		return nil, fmt.Errorf("%w: batch exceeds %d items", ErrInputTooLarge, s.limits.MaxBatchItems)
	}

	out := &models.BatchResponse{Total: len(items)}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := s.DetectText(ctx, item.Text, meta)
		if err != nil {
			out.Failed++
			out.Results = append(out.Results, models.BatchItemResult{
				ItemID: item.ItemID,
				Error:  err.Error(),
			})
			if stopOnError {
				break
			}
			continue
		}
		out.Succeeded++
		out.Results = append(out.Results, models.BatchItemResult{
			ItemID: item.ItemID,
			Result: res,
		})
	}
	return out, nil
}

// ScoreText runs one text through the consensus engine without persisting
// anything. The intel collector stores its own records, so this path skips
// the store, audit, and webhook stages.
func (s *DetectionService) ScoreText(ctx context.Context, text string) (*models.DetectionResult, error) {
	if err := s.validateText(text); err != nil {
		return nil, err
	}
	summary, result, err := s.engine.Score(ctx, consensus.Artifact{
		Modality: models.ContentTypeText,
		Text:     text,
	})
	if err != nil {
		return nil, mapEngineError(err)
	}
	prediction := result.ModelPrediction
	if summary.IsAIGenerated && prediction == nil {
		unknown := "unknown"
		prediction = &unknown
	}
	return &models.DetectionResult{
		IsAIGenerated:    summary.IsAIGenerated,
		Confidence:       round3(summary.FinalProbability),
		ModelPrediction:  prediction,
		Analysis:         result.Analysis,
		Explanation:      result.Explanation,
		ProcessingTimeMs: result.ProcessingTimeMs,
	}, nil
}

func (s *DetectionService) analyze(ctx context.Context, art consensus.Artifact, inputSize int64, meta RequestMeta) (*models.DetectionResponse, error) {
	return s.analyzeFetched(ctx, art, inputSize, "", meta)
}

func (s *DetectionService) analyzeFetched(ctx context.Context, art consensus.Artifact, inputSize int64, sourceURL string, meta RequestMeta) (*models.DetectionResponse, error) {
	summary, result, err := s.engine.Score(ctx, art)
	if err != nil {
		return nil, mapEngineError(err)
	}

	isAI := summary.IsAIGenerated
	confidence := round3(summary.FinalProbability)
	prediction := result.ModelPrediction
	if isAI && prediction == nil {
		unknown := "unknown"
		prediction = &unknown
	}

	response := &models.DetectionResponse{
		IsAIGenerated:    isAI,
		Confidence:       confidence,
		ModelPrediction:  prediction,
		Analysis:         result.Analysis,
		Explanation:      result.Explanation,
		ProcessingTimeMs: result.ProcessingTimeMs,
		Consensus:        summary,
	}

	payload, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result payload: %w", err)
	}
	source := meta.Source
	if source == "" {
		source = "api"
	}
	rec := &models.AnalysisRecord{
		ContentType:     art.Modality,
		ContentHash:     artifactHash(art),
		IsAIGenerated:   isAI,
		Confidence:      confidence,
		ModelPrediction: prediction,
		ResultPayload:   payload,
		Source:          source,
		InputSize:       inputSize,
	}
	if sourceURL != "" {
		rec.SourceURL = &sourceURL
	}
	if art.Filename != "" && sourceURL == "" {
		rec.Filename = &art.Filename
	}

	id, err := s.store.Put(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to persist analysis: %w", err)
	}
	response.AnalysisID = id

	s.audit.EmitAnalysisCompleted(id, art.Modality, isAI, confidence, meta.ClientID, meta.RequestID)
	if err := s.hooks.Enqueue("analysis.completed", response); err != nil {
		slog.Warn("Failed to enqueue analysis webhook", "analysis_id", id, "error", err)
	}
	return response, nil
}

func (s *DetectionService) validateText(text string) error {
	n := len(strings.TrimSpace(text))
	if n < s.limits.MinTextLength {
		return NewValidationError("text",
			fmt.Sprintf("text must be at least %d characters", s.limits.MinTextLength))
	}
	if n > s.limits.MaxTextLength {
		return fmt.Errorf("%w: text must be at most %d characters",
			ErrInputTooLarge, s.limits.MaxTextLength)
	}
	return nil
}

func (s *DetectionService) mediaSizeLimit(modality models.ContentType) int64 {
	mb := 0
	switch modality {
	case models.ContentTypeImage:
		mb = s.limits.MaxImageSizeMB
	case models.ContentTypeAudio:
		mb = s.limits.MaxAudioSizeMB
	case models.ContentTypeVideo:
		mb = s.limits.MaxVideoSizeMB
	}
	return int64(mb) << 20
}

// mapEngineError folds consensus-layer failures into the service error
// taxonomy the API translates to status codes.
func mapEngineError(err error) error {
	switch {
	case errors.Is(err, detector.ErrUnsupportedFormat):
		return fmt.Errorf("%w: %w", ErrUnsupportedMedia, err)
	case errors.Is(err, detector.ErrInputTooSmall):
		return NewValidationError("content", err.Error())
	case errors.Is(err, consensus.ErrInternalDetector):
		return fmt.Errorf("%w: %w", ErrDetectorUnavailable, err)
	}
	return err
}

func artifactHash(art consensus.Artifact) string {
	var sum [32]byte
	if art.Modality == models.ContentTypeText {
		sum = sha256.Sum256([]byte(art.Text))
	} else {
		sum = sha256.Sum256(art.Data)
	}
	return hex.EncodeToString(sum[:])
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
