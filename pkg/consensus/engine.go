package consensus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/provenance-labs/provd/pkg/config"
	"github.com/provenance-labs/provd/pkg/detector"
	"github.com/provenance-labs/provd/pkg/models"
)

// ErrInternalDetector is returned when the internal detector fails for a
// non-validation reason. External provider faults never surface it.
var ErrInternalDetector = errors.New("internal detector failed")

const internalProviderName = "internal"

// Engine runs one consensus round per artifact: the internal detector and
// every configured external provider probe concurrently under a shared
// deadline, then ok votes are aggregated by weighted mean.
type Engine struct {
	det       *detector.Detector
	cfg       *config.ConsensusConfig
	providers []Provider
}

// NewEngine builds the engine and its provider adapters. Provider order is
// stable (sorted by name) so vote lists are deterministic.
func NewEngine(det *detector.Detector, cfg *config.ConsensusConfig) *Engine {
	e := &Engine{det: det, cfg: cfg}
	if !cfg.Enabled {
		return e
	}

	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pc := cfg.Providers[name]
		if pc.Weight == 0 {
			continue
		}
		e.providers = append(e.providers, newProvider(name, pc, cfg.ProviderTimeout, cfg.RetryAttempts))
	}
	return e
}

// Score runs one consensus round. The returned summary lists the internal
// vote first, then external votes in engine order. The detection result is
// the internal detector's raw output.
//
// Validation errors from the detector (undecodable or undersized input)
// pass through unchanged; any other internal failure maps to
// ErrInternalDetector regardless of how healthy the externals are.
func (e *Engine) Score(ctx context.Context, art Artifact) (*models.ConsensusSummary, *models.DetectionResult, error) {
	probeCtx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
	defer cancel()

	votes := make([]models.ConsensusVote, 1+len(e.providers))
	var internalResult *models.DetectionResult
	var internalErr error

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		res, err := e.det.Detect(probeCtx, detector.Input{
			Modality: art.Modality,
			Text:     art.Text,
			Data:     art.Data,
			Filename: art.Filename,
		})
		if err != nil {
			internalErr = err
			votes[0] = failedVote(internalProviderName, e.cfg.InternalWeight, models.VoteError, err.Error())
			return
		}
		internalResult = res
		votes[0] = okVote(internalProviderName, e.cfg.InternalWeight,
			res.Analysis["ai_probability"], res.Explanation)
	}()

	for i, p := range e.providers {
		wg.Add(1)
		go func(idx int, p Provider) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Provider probe panicked", "provider", p.Name(), "panic", r)
					votes[idx] = failedVote(p.Name(), p.Weight(), models.VoteError, "provider panicked")
				}
			}()
			votes[idx] = p.Probe(probeCtx, art)
		}(i+1, p)
	}
	wg.Wait()

	if internalErr != nil {
		if errors.Is(internalErr, detector.ErrUnsupportedFormat) || errors.Is(internalErr, detector.ErrInputTooSmall) {
			return nil, nil, internalErr
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrInternalDetector, internalErr)
	}

	summary := aggregate(votes, e.threshold(art.Modality))
	return summary, internalResult, nil
}

func (e *Engine) threshold(modality models.ContentType) float64 {
	if t, ok := e.cfg.Thresholds[string(modality)]; ok {
		return t
	}
	return 0.5
}

// aggregate folds votes into the final verdict: probability is the
// weight-normalized mean over ok votes, disagreement their weighted
// population standard deviation.
func aggregate(votes []models.ConsensusVote, threshold float64) *models.ConsensusSummary {
	var weightSum, weighted float64
	for _, v := range votes {
		if v.Status != models.VoteOK || v.Probability == nil {
			continue
		}
		weightSum += v.Weight
		weighted += v.Weight * *v.Probability
	}

	summary := &models.ConsensusSummary{
		Threshold: threshold,
		Providers: votes,
	}
	if weightSum == 0 {
		return summary
	}

	mean := weighted / weightSum
	var variance float64
	for _, v := range votes {
		if v.Status != models.VoteOK || v.Probability == nil {
			continue
		}
		d := *v.Probability - mean
		variance += v.Weight * d * d
	}
	variance /= weightSum

	summary.FinalProbability = mean
	summary.Disagreement = math.Sqrt(variance)
	summary.IsAIGenerated = mean >= threshold
	return summary
}
