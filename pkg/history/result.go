package history

import (
	"github.com/comet-ml/opik-sub004/pkg/core"
)

// AlgorithmResult is the uniform return type for every optimizer in the
// framework. Bayesian and evolutionary algorithms alike fill it from the
// same ledger, so downstream reporting never branches on which algorithm ran.
type AlgorithmResult struct {
	BestPrompts map[string][]core.Message `json:"best_prompts"`
	BestScore   float64                   `json:"best_score"`
	History     []*Round                  `json:"history"`
	Metadata    map[string]interface{}    `json:"metadata,omitempty"`
}

// Improvement returns the relative gain of the best score over the baseline.
// A zero baseline yields zero to keep the ratio well-defined.
func (r *AlgorithmResult) Improvement(baseline float64) float64 {
	if baseline == 0 {
		return 0
	}
	return (r.BestScore - baseline) / baseline
}

// FinalRound returns the last closed round, or nil for an empty history.
func (r *AlgorithmResult) FinalRound() *Round {
	if len(r.History) == 0 {
		return nil
	}
	return r.History[len(r.History)-1]
}
