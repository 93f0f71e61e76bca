package optimizers

import (
	"fmt"
	"math/rand"

	"github.com/comet-ml/opik-sub004/pkg/errors"
	"github.com/comet-ml/opik-sub004/pkg/evo"
)

// SelectionEngine produces the next generation from a scored population. The
// operator primitives come from an injected evo.Toolkit; a missing toolkit is
// a hard error because selection correctness cannot be approximated.
type SelectionEngine struct {
	toolkit evo.Toolkit
	rng     *rand.Rand
}

func NewSelectionEngine(toolkit evo.Toolkit, rng *rand.Rand) *SelectionEngine {
	return &SelectionEngine{toolkit: toolkit, rng: rng}
}

// Select returns exactly populationSize survivors. Under multi-objective mode
// it delegates entirely to NSGA-II; otherwise it keeps the top elitismSize
// individuals verbatim and fills the remainder by tournament.
func (s *SelectionEngine) Select(pop []evo.Individual, populationSize, elitismSize, tournamentSize int, enableMOO bool) ([]evo.Individual, error) {
	if s.toolkit == nil {
		return nil, errors.New(errors.MissingDependency, "evolutionary toolkit is not configured")
	}
	if populationSize <= 0 {
		return nil, errors.WithFields(
			errors.New(errors.InvalidInput, "population size must be positive"),
			errors.Fields{"population_size": populationSize})
	}

	if enableMOO {
		next := s.toolkit.SelectNSGA2(pop, populationSize)
		// NSGA-II clamps to the population; pad by cycling the ranked
		// survivors so both modes return exactly populationSize
		if ranked := len(next); ranked > 0 {
			for i := 0; len(next) < populationSize; i++ {
				next = append(next, next[i%ranked])
			}
		}
		return next, nil
	}

	if elitismSize > populationSize {
		elitismSize = populationSize
	}
	next := s.toolkit.SelectBest(pop, elitismSize)
	remainder := populationSize - len(next)
	if remainder > 0 {
		next = append(next, s.toolkit.SelectTournament(pop, remainder, tournamentSize, s.rng)...)
	}
	return next, nil
}

// SerializeFront renders a Pareto front for reporting.
func SerializeFront(front []evo.Individual, generation int) []map[string]interface{} {
	out := make([]map[string]interface{}, len(front))
	for i, ind := range front {
		out[i] = map[string]interface{}{
			"score":  ind.Score,
			"length": ind.Length,
			"id":     fmt.Sprintf("gen%d_hof%d", generation, i),
		}
	}
	return out
}

// BestOfFront picks the front member with the highest primary score, first
// seen winning ties.
func BestOfFront(front []evo.Individual) (evo.Individual, error) {
	if len(front) == 0 {
		return evo.Individual{}, errors.New(errors.EmptyArchive, "pareto front is empty")
	}
	best := front[0]
	for _, ind := range front[1:] {
		if ind.Score > best.Score {
			best = ind
		}
	}
	return best, nil
}
