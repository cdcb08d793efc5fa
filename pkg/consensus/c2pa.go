package consensus

import (
	"bytes"
	"context"
	"slices"

	"github.com/provenance-labs/provd/pkg/models"
)

// c2paProvider inspects media payloads for embedded C2PA provenance
// manifests. Verification is local; no network calls.
type c2paProvider struct {
	name       string
	weight     float64
	modalities []string
}

// JUMBF box markers that carry C2PA manifest stores.
var (
	c2paMarker  = []byte("c2pa")
	jumbfMarker = []byte("jumb")
	aiToolHint  = []byte("trainedAlgorithmicMedia")
)

func (p *c2paProvider) Name() string    { return p.name }
func (p *c2paProvider) Weight() float64 { return p.weight }

// Probe votes from the embedded manifest when one exists. A manifest that
// declares algorithmic generation is near-certain AI; a plain capture
// manifest is strong evidence of the opposite. No manifest means this
// provider has nothing to say.
func (p *c2paProvider) Probe(_ context.Context, art Artifact) models.ConsensusVote {
	if art.Modality == models.ContentTypeText {
		return failedVote(p.name, p.weight, models.VoteUnsupported, "text carries no provenance manifest")
	}
	if len(p.modalities) > 0 && !slices.Contains(p.modalities, string(art.Modality)) {
		return failedVote(p.name, p.weight, models.VoteUnsupported, "modality not supported")
	}

	if !bytes.Contains(art.Data, c2paMarker) && !bytes.Contains(art.Data, jumbfMarker) {
		return failedVote(p.name, p.weight, models.VoteUnsupported, "no provenance manifest found")
	}

	if bytes.Contains(art.Data, aiToolHint) {
		return okVote(p.name, p.weight, 0.98, "manifest declares algorithmic media")
	}
	return okVote(p.name, p.weight, 0.05, "signed capture manifest present")
}
