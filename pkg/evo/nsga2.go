package evo

import (
	"math"
	"sort"
)

// Dominates reports whether a is at least as good as b on both objectives and
// strictly better on at least one.
func Dominates(a, b Individual) bool {
	if a.Score < b.Score || a.Length > b.Length {
		return false
	}
	return a.Score > b.Score || a.Length < b.Length
}

// SelectNSGA2 fills n slots front by front; the front that overflows the
// budget is thinned by crowding distance, keeping the most spread-out
// members.
func (Default) SelectNSGA2(pop []Individual, n int) []Individual {
	if n > len(pop) {
		n = len(pop)
	}
	if n <= 0 {
		return nil
	}

	selected := make([]Individual, 0, n)
	for _, front := range sortNonDominated(pop) {
		if len(selected)+len(front) <= n {
			selected = append(selected, front...)
			if len(selected) == n {
				break
			}
			continue
		}

		distances := crowdingDistances(front)
		order := make([]int, len(front))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(i, j int) bool {
			return distances[order[i]] > distances[order[j]]
		})
		for _, idx := range order[:n-len(selected)] {
			selected = append(selected, front[idx])
		}
		break
	}
	return selected
}

// sortNonDominated partitions the population into Pareto fronts, best first.
func sortNonDominated(pop []Individual) [][]Individual {
	n := len(pop)
	dominatedBy := make([][]int, n)   // indices each individual dominates
	dominationCount := make([]int, n) // how many dominate this individual

	var first []int
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if Dominates(pop[i], pop[j]) {
				dominatedBy[i] = append(dominatedBy[i], j)
			} else if Dominates(pop[j], pop[i]) {
				dominationCount[i]++
			}
		}
		if dominationCount[i] == 0 {
			first = append(first, i)
		}
	}

	var fronts [][]Individual
	current := first
	for len(current) > 0 {
		front := make([]Individual, 0, len(current))
		var next []int
		for _, i := range current {
			front = append(front, pop[i])
			for _, j := range dominatedBy[i] {
				dominationCount[j]--
				if dominationCount[j] == 0 {
					next = append(next, j)
				}
			}
		}
		fronts = append(fronts, front)
		current = next
	}
	return fronts
}

// crowdingDistances computes the NSGA-II crowding distance for one front.
func crowdingDistances(front []Individual) []float64 {
	n := len(front)
	distances := make([]float64, n)
	if n <= 2 {
		for i := range distances {
			distances[i] = math.Inf(1)
		}
		return distances
	}

	for _, objective := range []func(Individual) float64{
		func(ind Individual) float64 { return ind.Score },
		func(ind Individual) float64 { return ind.Length },
	} {
		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(i, j int) bool {
			return objective(front[order[i]]) < objective(front[order[j]])
		})

		lo := objective(front[order[0]])
		hi := objective(front[order[n-1]])
		distances[order[0]] = math.Inf(1)
		distances[order[n-1]] = math.Inf(1)
		if hi == lo {
			continue
		}
		for i := 1; i < n-1; i++ {
			gap := objective(front[order[i+1]]) - objective(front[order[i-1]])
			distances[order[i]] += gap / (hi - lo)
		}
	}
	return distances
}

// ParetoFront is a fitness-ordered container of the non-dominated set seen so
// far.
type ParetoFront struct {
	members []Individual
}

// NewParetoFront creates an empty front.
func NewParetoFront() *ParetoFront {
	return &ParetoFront{}
}

// Update offers candidates to the front, evicting newly dominated members.
func (f *ParetoFront) Update(candidates ...Individual) {
	for _, c := range candidates {
		dominated := false
		kept := f.members[:0]
		for _, m := range f.members {
			if Dominates(m, c) {
				dominated = true
			}
			if !Dominates(c, m) {
				kept = append(kept, m)
			}
		}
		if dominated {
			continue
		}
		f.members = append(kept, c)
	}
	sort.SliceStable(f.members, func(i, j int) bool {
		return f.members[i].Score > f.members[j].Score
	})
}

// Members returns the current front ordered by primary score descending.
func (f *ParetoFront) Members() []Individual {
	out := make([]Individual, len(f.members))
	copy(out, f.members)
	return out
}
