// Package history implements the round/trial ledger shared by every search
// algorithm in the framework. The ledger is the single source of truth for
// budget tracking and reporting: each scored candidate becomes an immutable
// Trial owned by exactly one Round, and closed rounds merge by index so
// callers can emit partial updates to the same generation without data loss.
package history

import (
	"time"
)

// Trial is one atomic scoring event. Immutable after creation.
type Trial struct {
	Index     int                    `json:"index"`
	Score     float64                `json:"score"`
	Candidate map[string]interface{} `json:"candidate,omitempty"`
	Metrics   map[string]float64     `json:"metrics,omitempty"`
	Dataset   string                 `json:"dataset,omitempty"`
	Split     string                 `json:"split,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Extras    map[string]interface{} `json:"extras,omitempty"`
}

// Round is one generation's worth of trials plus derived aggregates.
type Round struct {
	Index         int                    `json:"index"`
	Trials        []Trial                `json:"trials"`
	BestScore     *float64               `json:"best_score,omitempty"`
	BestSoFar     *float64               `json:"best_so_far,omitempty"`
	BestCandidate map[string]interface{} `json:"best_candidate,omitempty"`
	StopReason    string                 `json:"stop_reason,omitempty"`
	Extras        map[string]interface{} `json:"extras,omitempty"`
}

// StopReasonCompleted is the stop reason applied when a round closes without
// an explicit one.
const StopReasonCompleted = "completed"

// Ledger tracks open and closed rounds for one optimization run.
//
// The ledger is written only from the single-threaded generation loop,
// strictly after any parallel scoring phase has drained. It therefore carries
// no internal locking; that is a design invariant of the framework, not an
// omission.
type Ledger struct {
	open       map[int]*Round
	closed     []*Round
	bestSoFar  *float64
	trialCount int
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{open: make(map[int]*Round)}
}

// StartRound opens the round at index, or returns the existing open round's
// index if it was already started. A negative index defaults to the next
// round after the closed list.
func (l *Ledger) StartRound(index int) int {
	if index < 0 {
		index = len(l.closed)
	}
	if _, ok := l.open[index]; !ok {
		l.open[index] = &Round{Index: index}
	}
	return index
}

// TrialOption customizes a recorded trial.
type TrialOption func(*Trial)

// WithTrialIndex overrides the process-wide monotonic trial index.
func WithTrialIndex(index int) TrialOption {
	return func(t *Trial) { t.Index = index }
}

// WithMetrics attaches named metric values to the trial.
func WithMetrics(metrics map[string]float64) TrialOption {
	return func(t *Trial) { t.Metrics = metrics }
}

// WithDatasetSplit records which dataset and split produced the score.
func WithDatasetSplit(dataset, split string) TrialOption {
	return func(t *Trial) { t.Dataset = dataset; t.Split = split }
}

// WithTrialExtras attaches free-form annotations to the trial.
func WithTrialExtras(extras map[string]interface{}) TrialOption {
	return func(t *Trial) { t.Extras = extras }
}

// RecordTrial appends one scoring event to the round, opening it if needed.
// The candidate may be a CandidatePayload or any raw value; malformed shapes
// are coerced rather than rejected. Best-so-far rises monotonically across
// the whole run regardless of which round the trial belongs to.
func (l *Ledger) RecordTrial(round int, score float64, candidate interface{}, opts ...TrialOption) Trial {
	round = l.StartRound(round)
	r := l.open[round]

	trial := Trial{
		Index:     -1,
		Score:     score,
		Candidate: canonicalize(candidate),
		Timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(&trial)
	}
	if trial.Index < 0 {
		trial.Index = l.trialCount
	}
	l.trialCount++

	r.Trials = append(r.Trials, trial)
	if r.BestScore == nil || score > *r.BestScore {
		best := score
		r.BestScore = &best
	}
	if l.bestSoFar == nil || score > *l.bestSoFar {
		best := score
		l.bestSoFar = &best
	}
	running := *l.bestSoFar
	r.BestSoFar = &running

	return trial
}

// RoundOption customizes how a round is closed.
type RoundOption func(*roundClose)

type roundClose struct {
	bestScore     *float64
	bestCandidate map[string]interface{}
	stopReason    string
	extras        map[string]interface{}
}

// WithBestScore supplies the round's best score, used only if the round has
// not already derived one from its trials.
func WithBestScore(score float64) RoundOption {
	return func(c *roundClose) { c.bestScore = &score }
}

// WithBestCandidate supplies the round's best candidate payload.
func WithBestCandidate(candidate interface{}) RoundOption {
	return func(c *roundClose) { c.bestCandidate = canonicalize(candidate) }
}

// WithStopReason overrides the round's stop reason unconditionally.
func WithStopReason(reason string) RoundOption {
	return func(c *roundClose) { c.stopReason = reason }
}

// WithRoundExtras attaches free-form round annotations.
func WithRoundExtras(extras map[string]interface{}) RoundOption {
	return func(c *roundClose) { c.extras = extras }
}

// MarkStopReason notes a stop reason on the still-open round, to be resolved
// when the round closes.
func (l *Ledger) MarkStopReason(round int, reason string) {
	round = l.StartRound(round)
	l.open[round].StopReason = reason
}

// EndRound finalizes the round, merge-appends it into the closed list, and
// returns the merged closed round. Optional fields apply only where the round
// has no value yet; the stop reason resolves as explicit override >
// accumulated reason > "completed". Ending a handle that was never opened
// synthesizes an empty round so the close is still recorded.
func (l *Ledger) EndRound(round int, opts ...RoundOption) *Round {
	if round < 0 {
		round = len(l.closed)
	}
	r, ok := l.open[round]
	if !ok {
		r = &Round{Index: round}
	}
	delete(l.open, round)

	var cl roundClose
	for _, opt := range opts {
		opt(&cl)
	}

	if r.BestScore == nil {
		r.BestScore = cl.bestScore
	}
	if r.BestCandidate == nil {
		r.BestCandidate = cl.bestCandidate
	}
	switch {
	case cl.stopReason != "":
		r.StopReason = cl.stopReason
	case r.StopReason != "":
		// keep the accumulated reason
	default:
		r.StopReason = StopReasonCompleted
	}
	if cl.extras != nil {
		if r.Extras == nil {
			r.Extras = make(map[string]interface{}, len(cl.extras))
		}
		for k, v := range cl.extras {
			if _, exists := r.Extras[k]; !exists {
				r.Extras[k] = v
			}
		}
	}
	if r.BestSoFar == nil && l.bestSoFar != nil {
		running := *l.bestSoFar
		r.BestSoFar = &running
	}

	return l.mergeClosed(r)
}

// mergeClosed merges a finished round into the closed list keyed by index:
// trial lists concatenate and round-level scalars take the incoming non-null
// values, supporting multiple partial EndRound calls for the same generation.
func (l *Ledger) mergeClosed(incoming *Round) *Round {
	for _, existing := range l.closed {
		if existing.Index != incoming.Index {
			continue
		}
		existing.Trials = append(existing.Trials, incoming.Trials...)
		if incoming.BestScore != nil {
			existing.BestScore = incoming.BestScore
		}
		if incoming.BestSoFar != nil {
			existing.BestSoFar = incoming.BestSoFar
		}
		if incoming.BestCandidate != nil {
			existing.BestCandidate = incoming.BestCandidate
		}
		if incoming.StopReason != "" {
			existing.StopReason = incoming.StopReason
		}
		for k, v := range incoming.Extras {
			if existing.Extras == nil {
				existing.Extras = make(map[string]interface{})
			}
			existing.Extras[k] = v
		}
		return existing
	}
	l.closed = append(l.closed, incoming)
	return incoming
}

// Entries force-closes any rounds still open, then returns the closed list.
// No trial is silently lost when a caller forgets to close a round.
func (l *Ledger) Entries() []*Round {
	for _, index := range l.openIndexes() {
		l.EndRound(index)
	}
	out := make([]*Round, len(l.closed))
	copy(out, l.closed)
	return out
}

// BestSoFar returns the highest score recorded across the whole run.
func (l *Ledger) BestSoFar() (float64, bool) {
	if l.bestSoFar == nil {
		return 0, false
	}
	return *l.bestSoFar, true
}

// TrialCount returns how many trials have been recorded so far.
func (l *Ledger) TrialCount() int {
	return l.trialCount
}

func (l *Ledger) openIndexes() []int {
	indexes := make([]int, 0, len(l.open))
	for index := range l.open {
		indexes = append(indexes, index)
	}
	// ascending, so force-closed rounds land in a stable order
	for i := 0; i < len(indexes); i++ {
		for j := i + 1; j < len(indexes); j++ {
			if indexes[j] < indexes[i] {
				indexes[i], indexes[j] = indexes[j], indexes[i]
			}
		}
	}
	return indexes
}
