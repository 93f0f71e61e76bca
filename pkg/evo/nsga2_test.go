package evo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDominates(t *testing.T) {
	cases := []struct {
		name string
		a, b Individual
		want bool
	}{
		{"better on both", Individual{Score: 0.9, Length: 10}, Individual{Score: 0.5, Length: 20}, true},
		{"better score same length", Individual{Score: 0.9, Length: 10}, Individual{Score: 0.5, Length: 10}, true},
		{"shorter same score", Individual{Score: 0.5, Length: 5}, Individual{Score: 0.5, Length: 10}, true},
		{"identical", Individual{Score: 0.5, Length: 10}, Individual{Score: 0.5, Length: 10}, false},
		{"tradeoff", Individual{Score: 0.9, Length: 20}, Individual{Score: 0.5, Length: 10}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Dominates(tc.a, tc.b))
		})
	}
}

func TestSelectNSGA2FillsFromBestFronts(t *testing.T) {
	pop := []Individual{
		{Score: 0.9, Length: 10, Tag: "front0-a"},
		{Score: 0.8, Length: 5, Tag: "front0-b"},
		{Score: 0.5, Length: 50, Tag: "dominated"},
		{Score: 0.4, Length: 60, Tag: "dominated-worse"},
	}

	selected := Default{}.SelectNSGA2(pop, 2)
	require.Len(t, selected, 2)
	tags := []string{selected[0].Tag, selected[1].Tag}
	assert.Contains(t, tags, "front0-a")
	assert.Contains(t, tags, "front0-b")
}

func TestSelectNSGA2ExactSize(t *testing.T) {
	pop := []Individual{
		{Score: 0.9, Length: 10},
		{Score: 0.8, Length: 5},
		{Score: 0.7, Length: 3},
		{Score: 0.6, Length: 1},
		{Score: 0.5, Length: 50},
	}
	for _, n := range []int{1, 2, 3, 4, 5} {
		assert.Len(t, Default{}.SelectNSGA2(pop, n), n)
	}
	assert.Len(t, Default{}.SelectNSGA2(pop, 10), 5, "clamped to population size")
}

func TestSortNonDominatedLayers(t *testing.T) {
	pop := []Individual{
		{Score: 0.9, Length: 10, Tag: "best"},
		{Score: 0.9, Length: 20, Tag: "second"},
		{Score: 0.5, Length: 30, Tag: "third"},
	}

	fronts := sortNonDominated(pop)
	require.Len(t, fronts, 3)
	assert.Equal(t, "best", fronts[0][0].Tag)
	assert.Equal(t, "second", fronts[1][0].Tag)
	assert.Equal(t, "third", fronts[2][0].Tag)
}

func TestParetoFrontUpdate(t *testing.T) {
	front := NewParetoFront()

	front.Update(Individual{Score: 0.5, Length: 20, Tag: "a"})
	front.Update(Individual{Score: 0.7, Length: 30, Tag: "b"})   // tradeoff, both stay
	front.Update(Individual{Score: 0.8, Length: 10, Tag: "c"})   // dominates both
	front.Update(Individual{Score: 0.1, Length: 100, Tag: "d"})  // dominated, rejected

	members := front.Members()
	require.Len(t, members, 1)
	assert.Equal(t, "c", members[0].Tag)
}

func TestParetoFrontOrdering(t *testing.T) {
	front := NewParetoFront()
	front.Update(
		Individual{Score: 0.5, Length: 5},
		Individual{Score: 0.9, Length: 50},
		Individual{Score: 0.7, Length: 20},
	)

	members := front.Members()
	require.Len(t, members, 3)
	assert.Equal(t, 0.9, members[0].Score)
	assert.Equal(t, 0.7, members[1].Score)
	assert.Equal(t, 0.5, members[2].Score)
}
