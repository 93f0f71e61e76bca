package optimizers

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/comet-ml/opik-sub004/pkg/core"
	"github.com/comet-ml/opik-sub004/pkg/errors"
	"github.com/comet-ml/opik-sub004/pkg/history"
	"github.com/comet-ml/opik-sub004/pkg/logging"
	"github.com/comet-ml/opik-sub004/pkg/telemetry"
)

// TPEConfig contains the Tree-structured Parzen Estimator hyperparameters.
type TPEConfig struct {
	// MaxTrials is the total number of objective evaluations.
	MaxTrials int `yaml:"max_trials" validate:"gt=0"`
	// Gamma is the percentile split between good and bad observations.
	Gamma float64 `yaml:"gamma"`
	// CandidateSamples is the number of candidates scored by density ratio
	// per suggestion.
	CandidateSamples int `yaml:"candidate_samples"`
	// PriorWeight smooths the per-value frequency estimates.
	PriorWeight float64 `yaml:"prior_weight"`
	// BatchSize groups trials into ledger rounds.
	BatchSize int   `yaml:"batch_size"`
	Seed      int64 `yaml:"seed"`
}

// DefaultTPEConfig returns the standard search settings.
func DefaultTPEConfig() TPEConfig {
	return TPEConfig{
		MaxTrials:        50,
		Gamma:            0.25,
		CandidateSamples: 24,
		PriorWeight:      1.0,
		BatchSize:        10,
		Seed:             42,
	}
}

// ParamObjective scores one model-parameter assignment for a fixed genome.
type ParamObjective func(ctx context.Context, params map[string]interface{}) (float64, error)

type tpeObservation struct {
	params map[string]interface{}
	score  float64
}

// TPE is the Bayesian parameter-search sibling of the evolutionary optimizer.
// It searches a categorical parameter space (model kwargs such as temperature
// buckets) and records every trial through the same history ledger, so run
// reporting is identical across algorithms.
type TPE struct {
	cfg      TPEConfig
	space    map[string][]interface{}
	ledger   *history.Ledger
	reporter telemetry.Reporter
	rng      *rand.Rand

	observations []tpeObservation
	bestParams   map[string]interface{}
	bestScore    float64
}

// NewTPE creates a TPE searcher over the given categorical space.
func NewTPE(cfg TPEConfig, space map[string][]interface{}) *TPE {
	if cfg.Gamma <= 0 || cfg.Gamma >= 1 {
		cfg.Gamma = 0.25
	}
	if cfg.CandidateSamples <= 0 {
		cfg.CandidateSamples = 24
	}
	if cfg.PriorWeight <= 0 {
		cfg.PriorWeight = 1.0
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	seed := cfg.Seed
	if seed <= 0 {
		seed = time.Now().UnixNano()
	}
	return &TPE{
		cfg:       cfg,
		space:     space,
		ledger:    history.NewLedger(),
		reporter:  telemetry.NopReporter{},
		rng:       rand.New(rand.NewSource(seed)),
		bestScore: -math.MaxFloat64,
	}
}

// ShareLedger points the searcher at an existing ledger.
func (t *TPE) ShareLedger(l *history.Ledger) { t.ledger = l }

// SetReporter attaches a telemetry sink.
func (t *TPE) SetReporter(r telemetry.Reporter) { t.reporter = r }

// Optimize evaluates up to MaxTrials parameter assignments for the fixed
// genome, recording each as a ledger trial grouped into batched rounds.
func (t *TPE) Optimize(ctx context.Context, run *core.RunContext, genome *core.Genome, metricName string, objective ParamObjective) (*history.AlgorithmResult, error) {
	logger := logging.GetLogger()
	if len(t.space) == 0 {
		return nil, errors.New(errors.InvalidInput, "parameter space cannot be empty")
	}
	if objective == nil {
		return nil, errors.New(errors.InvalidInput, "objective is required")
	}
	if run != nil {
		ctx = logging.WithRunID(ctx, run.ID)
	}

	round := -1
	var stopped bool
	for trial := 0; trial < t.cfg.MaxTrials; trial++ {
		if run.ShouldStop() {
			stopped = true
			break
		}
		if trial%t.cfg.BatchSize == 0 {
			if round >= 0 {
				t.closeRound(ctx, run, round, "")
			}
			round = t.ledger.StartRound(-1)
		}

		params := t.suggest()
		score, err := objective(ctx, params)
		if err != nil {
			logger.Warn(ctx, "objective failed for trial %d: %v", trial, err)
			continue
		}
		t.observations = append(t.observations, tpeObservation{params: params, score: score})
		if score > t.bestScore {
			t.bestScore = score
			t.bestParams = cloneParams(params)
		}

		rec := t.ledger.RecordTrial(round, score,
			history.PromptBundle{Prompts: genome.Prompts, ModelKwargs: params},
			history.WithMetrics(map[string]float64{metricName: score}),
		)
		if run != nil {
			t.reporter.TrialRecorded(ctx, run.ID, round, rec)
		}
	}

	if round >= 0 {
		reason := ""
		if stopped {
			reason = "stop_requested"
		}
		t.closeRound(ctx, run, round, reason)
	}

	best := t.bestScore
	if len(t.observations) == 0 {
		best = 0
	}
	metadata := map[string]interface{}{
		"algorithm":   "tpe",
		"metric":      metricName,
		"best_params": t.bestParams,
		"stopped":     stopped,
	}
	return AssembleResult(t.ledger, genome, best, nil, metadata), nil
}

func (t *TPE) closeRound(ctx context.Context, run *core.RunContext, round int, stopReason string) {
	opts := []history.RoundOption{}
	if t.bestParams != nil {
		opts = append(opts, history.WithBestCandidate(history.RawPayload{Value: map[string]interface{}{
			"params": t.bestParams,
			"score":  t.bestScore,
		}}))
	}
	if stopReason != "" {
		opts = append(opts, history.WithStopReason(stopReason))
	}
	closed := t.ledger.EndRound(round, opts...)
	if run != nil {
		t.reporter.RoundClosed(ctx, run.ID, closed)
	}
}

// suggest falls back to random sampling until enough observations exist, then
// samples from the good/bad density ratio per parameter.
func (t *TPE) suggest() map[string]interface{} {
	startup := 5
	if n := t.cfg.MaxTrials / 10; n > startup {
		startup = n
	}
	if len(t.observations) < startup {
		return t.randomSample()
	}
	return t.suggestByDensityRatio()
}

func (t *TPE) randomSample() map[string]interface{} {
	params := make(map[string]interface{}, len(t.space))
	for name, values := range t.space {
		if len(values) > 0 {
			params[name] = values[t.rng.Intn(len(values))]
		}
	}
	return params
}

func (t *TPE) suggestByDensityRatio() map[string]interface{} {
	sorted := make([]tpeObservation, len(t.observations))
	copy(sorted, t.observations)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].score > sorted[j].score })

	nGood := int(float64(len(sorted)) * t.cfg.Gamma)
	if nGood < 1 {
		nGood = 1
	}
	good := sorted[:nGood]
	bad := sorted[nGood:]

	bestRatio := -math.MaxFloat64
	best := t.randomSample()
	for i := 0; i < t.cfg.CandidateSamples; i++ {
		candidate := t.sampleFromGood(good, bad)
		ratio := t.densityRatio(candidate, good, bad)
		if ratio > bestRatio {
			bestRatio = ratio
			best = candidate
		}
	}
	return best
}

// sampleFromGood draws each parameter value with probability proportional to
// the smoothed good/bad frequency ratio.
func (t *TPE) sampleFromGood(good, bad []tpeObservation) map[string]interface{} {
	candidate := make(map[string]interface{}, len(t.space))
	for name, values := range t.space {
		goodCounts := countValues(good, name, values)
		badCounts := countValues(bad, name, values)

		ratios := make([]float64, len(values))
		var total float64
		for i := range values {
			g := t.smooth(goodCounts[i], len(good), len(values))
			b := t.smooth(badCounts[i], len(bad), len(values))
			if b > 0 {
				ratios[i] = g / b
			} else {
				ratios[i] = g * 1000
			}
			total += ratios[i]
		}

		if total <= 0 {
			candidate[name] = values[t.rng.Intn(len(values))]
			continue
		}
		threshold := t.rng.Float64() * total
		var cumulative float64
		for i, r := range ratios {
			cumulative += r
			if cumulative >= threshold {
				candidate[name] = values[i]
				break
			}
		}
	}
	return candidate
}

func (t *TPE) densityRatio(candidate map[string]interface{}, good, bad []tpeObservation) float64 {
	g := t.likelihood(candidate, good)
	b := t.likelihood(candidate, bad)
	if b <= 0 {
		return g * 1000
	}
	return g / b
}

func (t *TPE) likelihood(candidate map[string]interface{}, obs []tpeObservation) float64 {
	if len(obs) == 0 {
		return 0
	}
	likelihood := 1.0
	for name, value := range candidate {
		count := 0
		for _, o := range obs {
			if v, ok := o.params[name]; ok && v == value {
				count++
			}
		}
		likelihood *= (float64(count) + t.cfg.PriorWeight/float64(len(t.space[name]))) /
			(float64(len(obs)) + t.cfg.PriorWeight)
	}
	return likelihood
}

func (t *TPE) smooth(count float64, observations, numValues int) float64 {
	return (count + t.cfg.PriorWeight/float64(numValues)) /
		(float64(observations) + t.cfg.PriorWeight)
}

func countValues(obs []tpeObservation, name string, values []interface{}) []float64 {
	counts := make([]float64, len(values))
	for _, o := range obs {
		v, ok := o.params[name]
		if !ok {
			continue
		}
		for i, candidate := range values {
			if v == candidate {
				counts[i]++
				break
			}
		}
	}
	return counts
}

func cloneParams(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
