package optimizers

import (
	"github.com/comet-ml/opik-sub004/pkg/core"
	"github.com/comet-ml/opik-sub004/pkg/history"
)

// AssembleResult reduces the final population state and the ledger into the
// uniform AlgorithmResult. A run that produced no history entries gets a
// single synthesized "final_best" trial and round so downstream reporting
// always has at least one data point.
func AssembleResult(ledger *history.Ledger, best *core.Genome, bestScore float64, tools []core.Tool, metadata map[string]interface{}) *history.AlgorithmResult {
	entries := ledger.Entries()
	if len(entries) == 0 {
		payload := history.PromptBundle{Prompts: best.Prompts, Tools: tools}
		round := ledger.StartRound(-1)
		ledger.RecordTrial(round, bestScore, payload,
			history.WithTrialExtras(map[string]interface{}{"type": "final_best"}))
		ledger.EndRound(round,
			history.WithBestScore(bestScore),
			history.WithBestCandidate(payload),
			history.WithRoundExtras(map[string]interface{}{"label": "final_best"}))
		entries = ledger.Entries()
	}

	prompts := make(map[string][]core.Message, len(best.Prompts))
	for name, msgs := range best.Prompts {
		prompts[name] = core.CloneMessages(msgs)
	}

	return &history.AlgorithmResult{
		BestPrompts: prompts,
		BestScore:   bestScore,
		History:     entries,
		Metadata:    metadata,
	}
}
