// Package consensus fans detection out to the internal detector and the
// configured external providers, then aggregates votes into one verdict.
package consensus

import (
	"context"

	"github.com/provenance-labs/provd/pkg/models"
)

// Artifact is one piece of content under analysis.
type Artifact struct {
	Modality models.ContentType
	Text     string
	Data     []byte
	Filename string
}

// Provider is one external detection source. Probe never returns an
// error; faults are folded into the vote status so a broken provider can
// never fail a round.
type Provider interface {
	Name() string
	Weight() float64
	Probe(ctx context.Context, art Artifact) models.ConsensusVote
}

// okVote builds an ok vote with a clipped probability.
func okVote(name string, weight, probability float64, rationale string) models.ConsensusVote {
	if probability < 0 {
		probability = 0
	}
	if probability > 1 {
		probability = 1
	}
	return models.ConsensusVote{
		Provider:    name,
		Probability: &probability,
		Weight:      weight,
		Status:      models.VoteOK,
		Rationale:   rationale,
	}
}

// failedVote builds a non-ok vote. Non-ok votes carry no probability and
// are excluded from aggregation.
func failedVote(name string, weight float64, status models.VoteStatus, rationale string) models.ConsensusVote {
	return models.ConsensusVote{
		Provider:  name,
		Weight:    weight,
		Status:    status,
		Rationale: rationale,
	}
}
