// Package detector implements the internal deterministic detection
// heuristics for text, image, audio, and video artifacts.
package detector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/provenance-labs/provd/pkg/config"
	"github.com/provenance-labs/provd/pkg/models"
)

var (
	// ErrUnsupportedFormat is returned when a payload cannot be decoded
	// as the claimed modality.
	ErrUnsupportedFormat = errors.New("unsupported media format")

	// ErrInputTooSmall is returned when the payload is below the minimum
	// analyzable size.
	ErrInputTooSmall = errors.New("input too small to analyze")
)

// Input is one artifact handed to the detector.
type Input struct {
	Modality models.ContentType
	Text     string
	Data     []byte
	Filename string
}

// Detector runs the built-in signal analysis for each modality.
type Detector struct {
	limits *config.LimitsConfig
}

// New creates a detector with the configured input bounds.
func New(limits *config.LimitsConfig) *Detector {
	return &Detector{limits: limits}
}

// Detect analyzes one artifact and returns the raw detection result.
// The error is non-nil only for undecodable or out-of-bounds input;
// low-confidence results are not errors.
func (d *Detector) Detect(ctx context.Context, in Input) (*models.DetectionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	var (
		result *models.DetectionResult
		err    error
	)
	switch in.Modality {
	case models.ContentTypeText:
		result, err = d.analyzeText(in.Text)
	case models.ContentTypeImage:
		result, err = d.analyzeImage(in.Data)
	case models.ContentTypeAudio:
		result, err = d.analyzeAudio(in.Data)
	case models.ContentTypeVideo:
		result, err = d.analyzeVideo(in.Data)
	default:
		return nil, fmt.Errorf("unknown modality %q", in.Modality)
	}
	if err != nil {
		return nil, err
	}

	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	return result, nil
}

// clamp01 clips v to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// probabilityToResult folds a raw probability into the result envelope.
// Confidence is the AI probability itself, so the verdict always satisfies
// is_ai_generated == (confidence >= 0.5).
func probabilityToResult(prob float64, signals map[string]float64, explanation string) *models.DetectionResult {
	prob = clamp01(prob)
	signals["ai_probability"] = prob
	return &models.DetectionResult{
		IsAIGenerated: prob >= 0.5,
		Confidence:    prob,
		Analysis:      signals,
		Explanation:   explanation,
	}
}
