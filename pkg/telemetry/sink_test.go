package telemetry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comet-ml/opik-sub004/pkg/history"
)

func TestSQLiteReporterPersistsTrialsAndRounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.db")
	reporter, err := NewSQLiteReporter(path)
	require.NoError(t, err)
	defer reporter.Close()

	ctx := context.Background()
	trial := history.Trial{
		Index:     0,
		Score:     0.8,
		Candidate: map[string]interface{}{"main": "prompt"},
		Timestamp: time.Now(),
	}
	reporter.TrialRecorded(ctx, "run-1", 0, trial)

	best := 0.8
	reporter.RoundClosed(ctx, "run-1", &history.Round{
		Index:      0,
		Trials:     []history.Trial{trial},
		BestScore:  &best,
		StopReason: "completed",
	})

	var trials, rounds int
	require.NoError(t, reporter.db.QueryRow("SELECT COUNT(*) FROM trials").Scan(&trials))
	require.NoError(t, reporter.db.QueryRow("SELECT COUNT(*) FROM rounds").Scan(&rounds))
	assert.Equal(t, 1, trials)
	assert.Equal(t, 1, rounds)
}

func TestSQLiteReporterUpsertsSameKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.db")
	reporter, err := NewSQLiteReporter(path)
	require.NoError(t, err)
	defer reporter.Close()

	ctx := context.Background()
	trial := history.Trial{Index: 3, Score: 0.1, Timestamp: time.Now()}
	reporter.TrialRecorded(ctx, "run-1", 0, trial)
	trial.Score = 0.2
	reporter.TrialRecorded(ctx, "run-1", 0, trial)

	var count int
	var score float64
	require.NoError(t, reporter.db.QueryRow("SELECT COUNT(*), MAX(score) FROM trials").Scan(&count, &score))
	assert.Equal(t, 1, count)
	assert.Equal(t, 0.2, score)
}

func TestNopReporterIsSafe(t *testing.T) {
	var r NopReporter
	r.TrialRecorded(context.Background(), "run", 0, history.Trial{})
	r.RoundClosed(context.Background(), "run", nil)
	assert.NoError(t, r.Close())
}
