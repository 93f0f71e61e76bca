// Package telemetry persists optimization progress outside the process so
// long runs can be inspected while they execute. Reporting is strictly
// best-effort: a failing sink never interrupts a run.
package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"

	_ "github.com/mattn/go-sqlite3"

	"github.com/comet-ml/opik-sub004/pkg/errors"
	"github.com/comet-ml/opik-sub004/pkg/history"
	"github.com/comet-ml/opik-sub004/pkg/logging"
)

// Reporter receives ledger events as they happen.
type Reporter interface {
	TrialRecorded(ctx context.Context, runID string, round int, trial history.Trial)
	RoundClosed(ctx context.Context, runID string, round *history.Round)
	Close() error
}

// NopReporter discards all events.
type NopReporter struct{}

func (NopReporter) TrialRecorded(context.Context, string, int, history.Trial) {}
func (NopReporter) RoundClosed(context.Context, string, *history.Round)       {}
func (NopReporter) Close() error                                              { return nil }

// SQLiteReporter appends trials and rounds to a local SQLite database.
type SQLiteReporter struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS trials (
	run_id      TEXT NOT NULL,
	round       INTEGER NOT NULL,
	trial_index INTEGER NOT NULL,
	score       REAL NOT NULL,
	candidate   TEXT,
	recorded_at TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, trial_index)
);
CREATE TABLE IF NOT EXISTS rounds (
	run_id      TEXT NOT NULL,
	round       INTEGER NOT NULL,
	best_score  REAL,
	best_so_far REAL,
	stop_reason TEXT,
	payload     TEXT,
	PRIMARY KEY (run_id, round)
);`

// NewSQLiteReporter opens (or creates) the database at path and ensures the
// schema exists.
func NewSQLiteReporter(path string) (*SQLiteReporter, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.Unknown, "failed to open telemetry database"),
			errors.Fields{"path": path})
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.Unknown, "failed to initialize telemetry schema")
	}
	return &SQLiteReporter{db: db}, nil
}

func (s *SQLiteReporter) TrialRecorded(ctx context.Context, runID string, round int, trial history.Trial) {
	candidate, _ := json.Marshal(trial.Candidate)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO trials (run_id, round, trial_index, score, candidate, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, round, trial.Index, trial.Score, string(candidate), trial.Timestamp)
	if err != nil {
		logging.GetLogger().Warn(ctx, "telemetry: failed to persist trial %d: %v", trial.Index, err)
	}
}

func (s *SQLiteReporter) RoundClosed(ctx context.Context, runID string, round *history.Round) {
	payload, _ := json.Marshal(round)
	var bestScore, bestSoFar interface{}
	if round.BestScore != nil {
		bestScore = *round.BestScore
	}
	if round.BestSoFar != nil {
		bestSoFar = *round.BestSoFar
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO rounds (run_id, round, best_score, best_so_far, stop_reason, payload)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, round.Index, bestScore, bestSoFar, round.StopReason, string(payload))
	if err != nil {
		logging.GetLogger().Warn(ctx, "telemetry: failed to persist round %d: %v", round.Index, err)
	}
}

func (s *SQLiteReporter) Close() error {
	return s.db.Close()
}
