package consensus

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provenance-labs/provd/pkg/config"
	"github.com/provenance-labs/provd/pkg/detector"
	"github.com/provenance-labs/provd/pkg/models"
)

// stubProvider returns a canned vote, optionally after a delay.
type stubProvider struct {
	name  string
	w     float64
	vote  models.ConsensusVote
	delay time.Duration
}

func (s *stubProvider) Name() string    { return s.name }
func (s *stubProvider) Weight() float64 { return s.w }
func (s *stubProvider) Probe(ctx context.Context, _ Artifact) models.ConsensusVote {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return failedVote(s.name, s.w, models.VoteUnavailable, "probe timed out")
		}
	}
	return s.vote
}

func newTestEngine(providers ...Provider) *Engine {
	cfg := config.DefaultConsensusConfig()
	cfg.ProviderTimeout = 500 * time.Millisecond
	e := NewEngine(detector.New(config.DefaultLimitsConfig()), cfg)
	e.providers = providers
	return e
}

func machineText() Artifact {
	return Artifact{
		Modality: models.ContentTypeText,
		Text:     strings.Repeat("the system performs the task and the system performs the task again. ", 20),
	}
}

func TestScore_InternalOnly(t *testing.T) {
	e := newTestEngine()

	summary, result, err := e.Score(context.Background(), machineText())
	require.NoError(t, err)
	require.NotNil(t, result)

	require.Len(t, summary.Providers, 1)
	assert.Equal(t, "internal", summary.Providers[0].Provider)
	assert.Equal(t, models.VoteOK, summary.Providers[0].Status)
	assert.InDelta(t, result.Analysis["ai_probability"], summary.FinalProbability, 1e-9)
	assert.Zero(t, summary.Disagreement, "single voter cannot disagree")
}

func TestScore_WeightedMeanOverOKVotes(t *testing.T) {
	// Internal weight 1.0 plus one external at weight 1.0 voting 0.0 and
	// one failed provider that must not dilute the mean.
	e := newTestEngine(
		&stubProvider{name: "a", w: 1.0, vote: okVote("a", 1.0, 0.0, "")},
		&stubProvider{name: "b", w: 5.0, vote: failedVote("b", 5.0, models.VoteUnavailable, "down")},
	)

	summary, result, err := e.Score(context.Background(), machineText())
	require.NoError(t, err)

	internal := result.Analysis["ai_probability"]
	expected := (internal*1.0 + 0.0*1.0) / 2.0
	assert.InDelta(t, expected, summary.FinalProbability, 1e-9)
	assert.Greater(t, summary.Disagreement, 0.0)

	// Failed vote keeps its slot in the vote list with no probability.
	require.Len(t, summary.Providers, 3)
	assert.Equal(t, models.VoteUnavailable, summary.Providers[2].Status)
	assert.Nil(t, summary.Providers[2].Probability)
}

func TestScore_AllExternalsDownStillSucceeds(t *testing.T) {
	e := newTestEngine(
		&stubProvider{name: "a", w: 1, vote: failedVote("a", 1, models.VoteUnavailable, "down")},
		&stubProvider{name: "b", w: 1, vote: failedVote("b", 1, models.VoteError, "bad auth")},
		&stubProvider{name: "c", w: 1, vote: failedVote("c", 1, models.VoteUnsupported, "no audio")},
	)

	summary, _, err := e.Score(context.Background(), machineText())
	require.NoError(t, err)
	require.Len(t, summary.Providers, 4)
	assert.Equal(t, models.VoteOK, summary.Providers[0].Status, "internal carries the round")
}

func TestScore_SlowProviderBoundedBySharedDeadline(t *testing.T) {
	e := newTestEngine(
		&stubProvider{name: "slow", w: 1, delay: 5 * time.Second,
			vote: okVote("slow", 1, 0.9, "")},
	)

	start := time.Now()
	summary, _, err := e.Score(context.Background(), machineText())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Equal(t, models.VoteUnavailable, summary.Providers[1].Status)
}

func TestScore_ValidationErrorPassesThrough(t *testing.T) {
	e := newTestEngine()

	_, _, err := e.Score(context.Background(), Artifact{
		Modality: models.ContentTypeText,
		Text:     "too short",
	})
	assert.ErrorIs(t, err, detector.ErrInputTooSmall)
	assert.NotErrorIs(t, err, ErrInternalDetector)
}

func TestScore_ThresholdPerModality(t *testing.T) {
	cfg := config.DefaultConsensusConfig()
	cfg.Thresholds["text"] = 0.99
	e := NewEngine(detector.New(config.DefaultLimitsConfig()), cfg)

	summary, _, err := e.Score(context.Background(), machineText())
	require.NoError(t, err)
	assert.Equal(t, 0.99, summary.Threshold)
	assert.False(t, summary.IsAIGenerated, "probability below raised threshold")
}

func TestNewEngine_SkipsZeroWeightProviders(t *testing.T) {
	cfg := config.DefaultConsensusConfig()
	cfg.Providers["muted"] = &config.ProviderConfig{Weight: 0, Endpoint: "https://x.test"}
	cfg.Providers["active"] = &config.ProviderConfig{Weight: 1, Endpoint: "https://y.test"}

	e := NewEngine(detector.New(config.DefaultLimitsConfig()), cfg)
	require.Len(t, e.providers, 1)
	assert.Equal(t, "active", e.providers[0].Name())
}

func TestAggregate_DisagreementIsWeightedStddev(t *testing.T) {
	votes := []models.ConsensusVote{
		okVote("a", 1, 0.0, ""),
		okVote("b", 1, 1.0, ""),
	}
	summary := aggregate(votes, 0.5)
	assert.InDelta(t, 0.5, summary.FinalProbability, 1e-9)
	assert.InDelta(t, 0.5, summary.Disagreement, 1e-9)
	assert.True(t, summary.IsAIGenerated, "mean at threshold counts as AI")
}

func TestAggregate_NoOKVotes(t *testing.T) {
	votes := []models.ConsensusVote{
		failedVote("a", 1, models.VoteUnavailable, ""),
	}
	summary := aggregate(votes, 0.5)
	assert.Zero(t, summary.FinalProbability)
	assert.False(t, summary.IsAIGenerated)
}
