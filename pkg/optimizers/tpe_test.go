package optimizers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comet-ml/opik-sub004/pkg/core"
	"github.com/comet-ml/opik-sub004/pkg/errors"
	"github.com/comet-ml/opik-sub004/pkg/history"
)

func tpeSpace() map[string][]interface{} {
	return map[string][]interface{}{
		"temperature": {0.0, 0.5, 1.0},
		"top_p":       {0.8, 1.0},
	}
}

func temperatureObjective(ctx context.Context, params map[string]interface{}) (float64, error) {
	temp, _ := params["temperature"].(float64)
	return temp, nil
}

func TestTPERecordsTrialsInBatchedRounds(t *testing.T) {
	cfg := DefaultTPEConfig()
	cfg.MaxTrials = 30
	cfg.BatchSize = 10
	cfg.Seed = 1

	tpe := NewTPE(cfg, tpeSpace())
	result, err := tpe.Optimize(context.Background(), core.NewRunContext(nil),
		seedGenome(), "temperature_score", temperatureObjective)
	require.NoError(t, err)

	require.Len(t, result.History, 3)
	total := 0
	prev := -1
	for _, round := range result.History {
		total += len(round.Trials)
		for _, trial := range round.Trials {
			assert.Greater(t, trial.Index, prev)
			prev = trial.Index
			assert.Contains(t, trial.Candidate, "model_kwargs")
		}
	}
	assert.Equal(t, 30, total)

	assert.GreaterOrEqual(t, result.BestScore, 0.5, "search converges past the worst bucket")
	assert.Equal(t, "tpe", result.Metadata["algorithm"])
	assert.NotNil(t, result.Metadata["best_params"])
}

func TestTPEValidatesInputs(t *testing.T) {
	tpe := NewTPE(DefaultTPEConfig(), nil)
	_, err := tpe.Optimize(context.Background(), nil, seedGenome(), "m", temperatureObjective)
	assert.True(t, errors.HasCode(err, errors.InvalidInput))

	tpe = NewTPE(DefaultTPEConfig(), tpeSpace())
	_, err = tpe.Optimize(context.Background(), nil, seedGenome(), "m", nil)
	assert.True(t, errors.HasCode(err, errors.InvalidInput))
}

func TestTPESharesLedgerWithSiblings(t *testing.T) {
	shared := history.NewLedger()
	round := shared.StartRound(0)
	shared.RecordTrial(round, 0.3, nil)
	shared.EndRound(round)

	cfg := DefaultTPEConfig()
	cfg.MaxTrials = 10
	cfg.BatchSize = 10
	cfg.Seed = 1
	tpe := NewTPE(cfg, tpeSpace())
	tpe.ShareLedger(shared)

	result, err := tpe.Optimize(context.Background(), core.NewRunContext(nil),
		seedGenome(), "temperature_score", temperatureObjective)
	require.NoError(t, err)

	require.Len(t, result.History, 2, "sibling rounds append after the existing history")
	assert.Equal(t, 0, result.History[0].Index)
	assert.Equal(t, 1, result.History[1].Index)
	assert.Len(t, result.History[1].Trials, 10)
}

func TestTPEStopFlag(t *testing.T) {
	cfg := DefaultTPEConfig()
	cfg.MaxTrials = 50
	run := core.NewRunContext(nil)
	run.Stop()

	tpe := NewTPE(cfg, tpeSpace())
	result, err := tpe.Optimize(context.Background(), run, seedGenome(), "m", temperatureObjective)
	require.NoError(t, err)

	// nothing ran, so the assembler synthesizes the single reporting round
	require.Len(t, result.History, 1)
	assert.Equal(t, "final_best", result.History[0].Extras["label"])
}
