package models

// VoteStatus is the outcome of one provider probe.
type VoteStatus string

const (
	VoteOK          VoteStatus = "ok"
	VoteUnavailable VoteStatus = "unavailable"
	VoteUnsupported VoteStatus = "unsupported"
	VoteError       VoteStatus = "error"
)

// ConsensusVote is one provider's contribution to a consensus round.
// Probability is nil unless Status is "ok".
type ConsensusVote struct {
	Provider    string     `json:"provider"`
	Probability *float64   `json:"probability"`
	Weight      float64    `json:"weight"`
	Status      VoteStatus `json:"status"`
	Rationale   string     `json:"rationale,omitempty"`
}

// ConsensusSummary aggregates all votes of one round.
type ConsensusSummary struct {
	FinalProbability float64         `json:"final_probability"`
	Threshold        float64         `json:"threshold"`
	IsAIGenerated    bool            `json:"is_ai_generated"`
	Disagreement     float64         `json:"disagreement"`
	Providers        []ConsensusVote `json:"providers"`
}
