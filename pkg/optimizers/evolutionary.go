package optimizers

import (
	"context"
	"math/rand"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/comet-ml/opik-sub004/pkg/core"
	"github.com/comet-ml/opik-sub004/pkg/errors"
	"github.com/comet-ml/opik-sub004/pkg/evo"
	"github.com/comet-ml/opik-sub004/pkg/history"
	"github.com/comet-ml/opik-sub004/pkg/logging"
	"github.com/comet-ml/opik-sub004/pkg/telemetry"
)

// TaskRunner executes one candidate genome against one dataset item and
// returns the program outputs to be scored.
type TaskRunner func(ctx context.Context, genome *core.Genome, item core.Item) (map[string]interface{}, error)

// EvolutionaryConfig holds the genetic-search hyperparameters.
type EvolutionaryConfig struct {
	PopulationSize            int     `yaml:"population_size" validate:"gt=0"`
	Generations               int     `yaml:"generations" validate:"gt=0"`
	MutationRate              float64 `yaml:"mutation_rate" validate:"gte=0,lte=1"`
	CrossoverRate             float64 `yaml:"crossover_rate" validate:"gte=0,lte=1"`
	ElitismSize               int     `yaml:"elitism_size" validate:"gte=0"`
	TournamentSize            int     `yaml:"tournament_size" validate:"gt=0"`
	EnableMOO                 bool    `yaml:"enable_moo"`
	EnableLLMCrossover        bool    `yaml:"enable_llm_crossover"`
	HallOfFameSize            int     `yaml:"hall_of_fame_size" validate:"gt=0"`
	PatternExtractionInterval int     `yaml:"pattern_extraction_interval" validate:"gt=0"`
	PatternsPerInjection      int     `yaml:"patterns_per_injection" validate:"gte=0"`
	SamplesPerEval            int     `yaml:"samples_per_eval" validate:"gte=0"`
	MaxWorkers                int     `yaml:"max_workers" validate:"gt=0"`
	Seed                      int64   `yaml:"seed"`
	DatasetName               string  `yaml:"dataset_name"`
	Split                     string  `yaml:"split"`
}

// DefaultEvolutionaryConfig returns the standard hyperparameters.
func DefaultEvolutionaryConfig() EvolutionaryConfig {
	return EvolutionaryConfig{
		PopulationSize:            30,
		Generations:               15,
		MutationRate:              0.2,
		CrossoverRate:             0.8,
		ElitismSize:               3,
		TournamentSize:            4,
		EnableMOO:                 true,
		EnableLLMCrossover:        true,
		HallOfFameSize:            10,
		PatternExtractionInterval: 10,
		PatternsPerInjection:      3,
		MaxWorkers:                8,
		Seed:                      42,
	}
}

// Evolutionary is the population-based prompt optimizer. Each generation it
// produces offspring via crossover and mutation, scores them in parallel,
// records every scored candidate into the shared ledger, feeds the hall of
// fame, and selects the next population.
type Evolutionary struct {
	cfg       EvolutionaryConfig
	llm       core.LLM
	crossover *CrossoverEngine
	selection *SelectionEngine
	hof       *HallOfFame
	ledger    *history.Ledger
	reporter  telemetry.Reporter
	tools     []core.Tool
	rng       *rand.Rand
}

// EvolutionaryOption customizes the optimizer.
type EvolutionaryOption func(*Evolutionary)

// WithReporter attaches a telemetry sink for live progress.
func WithReporter(r telemetry.Reporter) EvolutionaryOption {
	return func(o *Evolutionary) { o.reporter = r }
}

// WithTools enables tool-description optimization over the given tools.
func WithTools(tools []core.Tool) EvolutionaryOption {
	return func(o *Evolutionary) { o.tools = tools }
}

// WithLedger shares an existing history ledger, letting sibling algorithms
// append to the same run history.
func WithLedger(l *history.Ledger) EvolutionaryOption {
	return func(o *Evolutionary) { o.ledger = l }
}

// NewEvolutionary builds the optimizer around an LLM and a selection toolkit.
func NewEvolutionary(cfg EvolutionaryConfig, llm core.LLM, toolkit evo.Toolkit, opts ...EvolutionaryOption) *Evolutionary {
	rng := rand.New(rand.NewSource(cfg.Seed))
	o := &Evolutionary{
		cfg:       cfg,
		llm:       llm,
		crossover: NewCrossoverEngine(llm, rng, cfg.EnableLLMCrossover),
		selection: NewSelectionEngine(toolkit, rng),
		hof:       NewHallOfFame(llm, cfg.HallOfFameSize, cfg.PatternExtractionInterval),
		ledger:    history.NewLedger(),
		reporter:  telemetry.NopReporter{},
		rng:       rng,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HallOfFame exposes the archive for inspection after a run.
func (o *Evolutionary) HallOfFame() *HallOfFame { return o.hof }

// Optimize runs the full generational loop and returns the best genome found
// together with the complete run history.
func (o *Evolutionary) Optimize(ctx context.Context, run *core.RunContext, seed *core.Genome, dataset core.Dataset, metric core.Metric, metricName string, task TaskRunner) (*history.AlgorithmResult, error) {
	logger := logging.GetLogger()
	if seed == nil || len(seed.Prompts) == 0 {
		return nil, errors.New(errors.InvalidInput, "seed genome must contain at least one prompt")
	}
	if dataset == nil || len(dataset.Items()) == 0 {
		return nil, errors.New(errors.InvalidInput, "dataset is empty")
	}
	if metric == nil || task == nil {
		return nil, errors.New(errors.InvalidInput, "metric and task runner are required")
	}
	if run != nil {
		ctx = logging.WithRunID(ctx, run.ID)
	}

	population := o.initPopulation(seed)
	state := &OptimizerState{
		ToolsEnabled: len(o.tools) > 0,
		Tools:        o.tools,
		MetricName:   metricName,
	}
	var front *evo.ParetoFront
	if o.cfg.EnableMOO {
		front = evo.NewParetoFront()
	}

	var (
		bestGenome *core.Genome
		bestScore  float64
		baseline   float64
		haveBest   bool
		stopped    bool
	)

	for gen := 0; gen < o.cfg.Generations && !stopped; gen++ {
		genCtx := logging.WithGeneration(ctx, gen)
		round := o.ledger.StartRound(gen)

		items := o.sampleItems(dataset)
		scored := o.evaluatePopulation(genCtx, run, population, items, metric, task)

		if gen == 0 {
			for _, ind := range scored {
				if ind.Score > baseline {
					baseline = ind.Score
				}
			}
		}

		var lastTrialIndex int
		for _, ind := range scored {
			trial := o.ledger.RecordTrial(round, ind.Score,
				history.PromptBundle{Prompts: ind.Genome.Prompts, Tools: o.tools},
				history.WithMetrics(map[string]float64{
					metricName: ind.Score,
					"length":   ind.Length,
				}),
				history.WithDatasetSplit(o.cfg.DatasetName, o.cfg.Split),
			)
			lastTrialIndex = trial.Index
			if run != nil {
				o.reporter.TrialRecorded(genCtx, run.ID, round, trial)
			}

			if !haveBest || ind.Score > bestScore {
				bestScore = ind.Score
				bestGenome = ind.Genome
				haveBest = true
			}

			o.hof.Add(HallOfFameEntry{
				Prompts:     ind.Genome.Clone().Prompts,
				Score:       ind.Score,
				Trial:       trial.Index,
				Improvement: relativeImprovement(ind.Score, baseline),
				MetricName:  metricName,
			})
		}

		if len(scored) > 0 && o.hof.ShouldExtract(lastTrialIndex) {
			if err := o.hof.ExtractPatterns(genCtx, lastTrialIndex); err != nil {
				logger.Warn(genCtx, "pattern extraction skipped: %v", err)
			}
		}
		state.Patterns = o.hof.PatternsForInjection(o.cfg.PatternsPerInjection)

		extras := map[string]interface{}{"generation": gen}
		if front != nil {
			front.Update(scored...)
			extras["pareto_front"] = SerializeFront(front.Members(), gen)
		}

		if run.ShouldStop() {
			o.ledger.MarkStopReason(round, "stop_requested")
			stopped = true
		}

		endOpts := []history.RoundOption{history.WithRoundExtras(extras)}
		if len(scored) > 0 {
			endOpts = append(endOpts, history.WithBestCandidate(bestCandidateOf(scored, o.tools)))
		}
		closed := o.ledger.EndRound(round, endOpts...)
		if run != nil {
			o.reporter.RoundClosed(genCtx, run.ID, closed)
		}
		logger.Info(genCtx, "generation %d complete: best %.4f, best so far %.4f", gen, roundBest(closed), bestScore)

		if stopped || gen == o.cfg.Generations-1 {
			break
		}

		survivors, err := o.selection.Select(scored,
			o.cfg.PopulationSize, o.cfg.ElitismSize, o.cfg.TournamentSize, o.cfg.EnableMOO)
		if err != nil {
			return nil, err
		}
		population = o.breed(genCtx, survivors, state)
	}

	metadata := map[string]interface{}{
		"algorithm":   "evolutionary",
		"metric":      metricName,
		"generations": o.cfg.Generations,
		"stopped":     stopped,
	}
	if front != nil {
		if best, err := BestOfFront(front.Members()); err == nil {
			bestGenome = best.Genome
			bestScore = best.Score
		}
	}
	if bestGenome == nil {
		bestGenome = seed
	}
	return AssembleResult(o.ledger, bestGenome, bestScore, o.tools, metadata), nil
}

func (o *Evolutionary) sampleItems(dataset core.Dataset) []core.Item {
	if o.cfg.SamplesPerEval > 0 {
		return dataset.Sample(o.cfg.SamplesPerEval, o.rng)
	}
	return dataset.Items()
}

// initPopulation seeds generation zero with the seed genome plus mutated
// variants.
func (o *Evolutionary) initPopulation(seed *core.Genome) []*core.Genome {
	population := make([]*core.Genome, 0, o.cfg.PopulationSize)
	population = append(population, seed.Clone())
	for len(population) < o.cfg.PopulationSize {
		population = append(population, o.mutate(seed.Clone()))
	}
	return population
}

// evaluatePopulation scores every genome against every item on a bounded
// worker pool. Per-genome scores aggregate by unordered mean, so completion
// order does not affect the result. Task failures score zero for that item.
// Genomes whose evaluation never started because a stop was requested are
// omitted entirely; they must not surface as trials.
func (o *Evolutionary) evaluatePopulation(ctx context.Context, run *core.RunContext, population []*core.Genome, items []core.Item, metric core.Metric, task TaskRunner) []evo.Individual {
	logger := logging.GetLogger()

	type accumulator struct {
		scoreSum float64
		lenSum   float64
		attempts int
		count    int
	}
	accs := make([]accumulator, len(population))
	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(o.cfg.MaxWorkers)
	for i, genome := range population {
		if run.ShouldStop() {
			break
		}
		for _, item := range items {
			p.Go(func() {
				if run.ShouldStop() {
					return
				}
				mu.Lock()
				accs[i].attempts++
				mu.Unlock()

				outputs, err := task(ctx, genome, item)
				if err != nil {
					logger.Warn(ctx, "task failed for item %s: %v", item.ID, err)
					return
				}
				score := metric(item.Expected, outputs)
				length := responseLength(outputs)

				mu.Lock()
				accs[i].scoreSum += score
				accs[i].lenSum += length
				accs[i].count++
				mu.Unlock()
			})
		}
	}
	p.Wait()

	scored := make([]evo.Individual, 0, len(population))
	for i, genome := range population {
		if accs[i].attempts == 0 {
			continue
		}
		ind := evo.Individual{Genome: genome}
		if accs[i].count > 0 {
			ind.Score = accs[i].scoreSum / float64(accs[i].count)
			ind.Length = accs[i].lenSum / float64(accs[i].count)
		}
		scored = append(scored, ind)
	}
	return scored
}

// breed produces the next population from the survivors: shuffled pairs are
// crossed at CrossoverRate and every child is mutated at MutationRate.
func (o *Evolutionary) breed(ctx context.Context, survivors []evo.Individual, state *OptimizerState) []*core.Genome {
	parents := make([]*core.Genome, len(survivors))
	for i, ind := range survivors {
		parents[i] = ind.Genome
	}
	o.rng.Shuffle(len(parents), func(i, j int) { parents[i], parents[j] = parents[j], parents[i] })

	next := make([]*core.Genome, 0, o.cfg.PopulationSize)
	for i := 0; i+1 < len(parents) && len(next) < o.cfg.PopulationSize; i += 2 {
		var c1, c2 *core.Genome
		if o.rng.Float64() < o.cfg.CrossoverRate {
			c1, c2 = o.crossover.Crossover(ctx, parents[i], parents[i+1], state)
		} else {
			c1, c2 = parents[i].Clone(), parents[i+1].Clone()
		}
		next = append(next, o.mutate(c1))
		if len(next) < o.cfg.PopulationSize {
			next = append(next, o.mutate(c2))
		}
	}
	for i := 0; len(next) < o.cfg.PopulationSize && i < len(parents); i++ {
		next = append(next, o.mutate(parents[i].Clone()))
	}
	return next
}

// mutate applies a word-swap mutation to each message at MutationRate.
func (o *Evolutionary) mutate(g *core.Genome) *core.Genome {
	for _, name := range g.PromptNames() {
		msgs := g.Prompts[name]
		for i, msg := range msgs {
			if o.rng.Float64() >= o.cfg.MutationRate {
				continue
			}
			words := strings.Fields(msg.Text())
			if len(words) < 2 {
				continue
			}
			a := o.rng.Intn(len(words))
			b := o.rng.Intn(len(words))
			words[a], words[b] = words[b], words[a]
			msgs[i] = msg.WithText(strings.Join(words, " "))
		}
		g.Prompts[name] = msgs
	}
	return g
}

func responseLength(outputs map[string]interface{}) float64 {
	var total float64
	for _, v := range outputs {
		if s, ok := v.(string); ok {
			total += float64(len(s))
		}
	}
	return total
}

func relativeImprovement(score, baseline float64) float64 {
	if baseline == 0 {
		return 0
	}
	return (score - baseline) / baseline
}

// bestCandidateOf requires a non-empty scored slice.
func bestCandidateOf(scored []evo.Individual, tools []core.Tool) history.CandidatePayload {
	best := scored[0]
	for _, ind := range scored[1:] {
		if ind.Score > best.Score {
			best = ind
		}
	}
	return history.PromptBundle{Prompts: best.Genome.Prompts, Tools: tools}
}

func roundBest(r *history.Round) float64 {
	if r == nil || r.BestScore == nil {
		return 0
	}
	return *r.BestScore
}
