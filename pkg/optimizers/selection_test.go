package optimizers

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comet-ml/opik-sub004/pkg/errors"
	"github.com/comet-ml/opik-sub004/pkg/evo"
)

func scoredPopulation(scores ...float64) []evo.Individual {
	pop := make([]evo.Individual, len(scores))
	for i, s := range scores {
		pop[i] = evo.Individual{Score: s, Length: float64(100 - i)}
	}
	return pop
}

func TestSelectionSizingScenario(t *testing.T) {
	engine := NewSelectionEngine(evo.Default{}, rand.New(rand.NewSource(1)))

	pop := scoredPopulation(0.1, 0.9, 0.3, 0.8, 0.5, 0.2, 0.7, 0.4, 0.6, 0.0)
	next, err := engine.Select(pop, 10, 2, 3, false)
	require.NoError(t, err)

	assert.Len(t, next, 10)
	assert.Equal(t, 0.9, next[0].Score, "elites come first, best on top")
	assert.Equal(t, 0.8, next[1].Score)
}

func TestSelectionMOODelegatesToNSGA2(t *testing.T) {
	engine := NewSelectionEngine(evo.Default{}, rand.New(rand.NewSource(1)))

	pop := scoredPopulation(0.1, 0.9, 0.3, 0.8)
	next, err := engine.Select(pop, 3, 1, 2, true)
	require.NoError(t, err)
	assert.Len(t, next, 3)
}

func TestSelectionMOOPadsSmallPopulations(t *testing.T) {
	engine := NewSelectionEngine(evo.Default{}, rand.New(rand.NewSource(1)))

	next, err := engine.Select(scoredPopulation(0.9, 0.5), 5, 1, 2, true)
	require.NoError(t, err)
	assert.Len(t, next, 5)
}

func TestSelectionMissingToolkitFailsFast(t *testing.T) {
	engine := NewSelectionEngine(nil, rand.New(rand.NewSource(1)))

	_, err := engine.Select(scoredPopulation(0.5), 1, 0, 2, false)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.MissingDependency))
}

func TestSelectionRejectsNonPositiveSize(t *testing.T) {
	engine := NewSelectionEngine(evo.Default{}, rand.New(rand.NewSource(1)))

	_, err := engine.Select(scoredPopulation(0.5), 0, 0, 2, false)
	assert.True(t, errors.HasCode(err, errors.InvalidInput))
}

func TestSelectionClampsElitism(t *testing.T) {
	engine := NewSelectionEngine(evo.Default{}, rand.New(rand.NewSource(1)))

	next, err := engine.Select(scoredPopulation(0.5, 0.7), 2, 5, 2, false)
	require.NoError(t, err)
	assert.Len(t, next, 2)
}

func TestSerializeFront(t *testing.T) {
	front := []evo.Individual{
		{Score: 0.9, Length: 120},
		{Score: 0.7, Length: 80},
	}

	serialized := SerializeFront(front, 3)
	require.Len(t, serialized, 2)
	assert.Equal(t, 0.9, serialized[0]["score"])
	assert.Equal(t, float64(120), serialized[0]["length"])
	assert.Equal(t, "gen3_hof0", serialized[0]["id"])
	assert.Equal(t, "gen3_hof1", serialized[1]["id"])
}

func TestBestOfFront(t *testing.T) {
	front := []evo.Individual{
		{Score: 0.7, Tag: "first"},
		{Score: 0.9, Tag: "winner"},
		{Score: 0.9, Tag: "later-tie"},
	}

	best, err := BestOfFront(front)
	require.NoError(t, err)
	assert.Equal(t, "winner", best.Tag, "first seen wins ties")

	_, err = BestOfFront(nil)
	assert.True(t, errors.HasCode(err, errors.EmptyArchive))
}
