// Package evo provides the evolutionary-computation primitives consumed by
// the selection engine: best-of, tournament and NSGA-II selection over a
// two-objective fitness (primary score maximized, length minimized), plus a
// non-dominated front container. Callers receive the toolkit by injection so
// its absence can be reported explicitly rather than degraded around.
package evo

import (
	"math/rand"
	"sort"

	"github.com/comet-ml/opik-sub004/pkg/core"
)

// Individual is one member of a scored population.
type Individual struct {
	Genome *core.Genome
	Score  float64 // primary objective, maximized
	Length float64 // secondary objective, minimized
	Tag    string
}

// Toolkit is the operator surface of the evolutionary-computation library.
type Toolkit interface {
	// SelectBest returns the n fittest individuals by primary score.
	SelectBest(pop []Individual, n int) []Individual
	// SelectTournament returns n survivors of repeated best-of-k contests.
	SelectTournament(pop []Individual, n, tournamentSize int, rng *rand.Rand) []Individual
	// SelectNSGA2 returns n survivors ranked by non-dominated front and
	// crowding distance.
	SelectNSGA2(pop []Individual, n int) []Individual
}

// Default is the built-in Toolkit implementation.
type Default struct{}

var _ Toolkit = Default{}

// SelectBest sorts by primary score descending (stable, so earlier
// individuals win ties) and returns the top n.
func (Default) SelectBest(pop []Individual, n int) []Individual {
	sorted := make([]Individual, len(pop))
	copy(sorted, pop)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

// SelectTournament draws tournamentSize random contestants per slot and keeps
// the one with the highest primary score.
func (Default) SelectTournament(pop []Individual, n, tournamentSize int, rng *rand.Rand) []Individual {
	if len(pop) == 0 || n <= 0 {
		return nil
	}
	if tournamentSize < 1 {
		tournamentSize = 1
	}

	selected := make([]Individual, 0, n)
	for i := 0; i < n; i++ {
		best := pop[rng.Intn(len(pop))]
		for j := 1; j < tournamentSize; j++ {
			challenger := pop[rng.Intn(len(pop))]
			if challenger.Score > best.Score {
				best = challenger
			}
		}
		selected = append(selected, best)
	}
	return selected
}
