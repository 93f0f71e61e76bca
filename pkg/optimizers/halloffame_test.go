package optimizers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comet-ml/opik-sub004/internal/testutil"
	"github.com/comet-ml/opik-sub004/pkg/core"
	"github.com/comet-ml/opik-sub004/pkg/errors"
)

func hofEntry(text string, score float64) HallOfFameEntry {
	return HallOfFameEntry{
		Prompts: map[string][]core.Message{
			"main": {core.NewTextMessage(core.RoleSystem, text)},
		},
		Score: score,
	}
}

func scoresOf(entries []HallOfFameEntry) []float64 {
	out := make([]float64, len(entries))
	for i, e := range entries {
		out[i] = e.Score
	}
	return out
}

func TestHallOfFameCapacityScenario(t *testing.T) {
	hof := NewHallOfFame(nil, 2, 10)

	assert.True(t, hof.Add(hofEntry("a", 0.5)))
	assert.True(t, hof.Add(hofEntry("b", 0.7)))
	assert.Equal(t, []float64{0.7, 0.5}, scoresOf(hof.Entries()))

	assert.True(t, hof.Add(hofEntry("c", 0.6)))
	assert.Equal(t, []float64{0.7, 0.6}, scoresOf(hof.Entries()))

	assert.False(t, hof.Add(hofEntry("d", 0.4)))
	assert.Equal(t, []float64{0.7, 0.6}, scoresOf(hof.Entries()))
}

func TestHallOfFameStrictReplacement(t *testing.T) {
	hof := NewHallOfFame(nil, 2, 10)
	hof.Add(hofEntry("a", 0.7))
	hof.Add(hofEntry("b", 0.5))

	assert.False(t, hof.Add(hofEntry("tie", 0.5)), "a tie with the worst entry never replaces it")
	assert.Equal(t, []float64{0.7, 0.5}, scoresOf(hof.Entries()))
}

func TestHallOfFameBoundedSortedInvariant(t *testing.T) {
	hof := NewHallOfFame(nil, 3, 10)

	for _, score := range []float64{0.2, 0.9, 0.1, 0.5, 0.7, 0.3, 0.8} {
		hof.Add(hofEntry("x", score))

		entries := hof.Entries()
		assert.LessOrEqual(t, len(entries), 3)
		for i := 1; i < len(entries); i++ {
			assert.GreaterOrEqual(t, entries[i-1].Score, entries[i].Score)
		}
	}
	assert.Equal(t, []float64{0.9, 0.8, 0.7}, scoresOf(hof.Entries()))
}

func TestHallOfFameBestOnEmpty(t *testing.T) {
	hof := NewHallOfFame(nil, 3, 10)

	_, err := hof.Best()
	assert.True(t, errors.HasCode(err, errors.EmptyArchive))
}

func TestShouldExtract(t *testing.T) {
	hof := NewHallOfFame(&testutil.StaticLLM{}, 5, 10)
	hof.Add(hofEntry("a", 0.1))
	hof.Add(hofEntry("b", 0.2))
	assert.False(t, hof.ShouldExtract(100), "needs at least three entries")

	hof.Add(hofEntry("c", 0.3))
	assert.True(t, hof.ShouldExtract(100))

	hof.lastExtractionTrial = 95
	assert.False(t, hof.ShouldExtract(100), "interval not elapsed")
	assert.True(t, hof.ShouldExtract(105))
}

func TestMiningDisabledWithoutLLM(t *testing.T) {
	hof := NewHallOfFame(nil, 5, 10)
	hof.Add(hofEntry("a", 0.9))
	hof.Add(hofEntry("b", 0.8))
	hof.Add(hofEntry("c", 0.7))

	assert.False(t, hof.ShouldExtract(100))

	err := hof.ExtractPatterns(context.Background(), 100)
	assert.True(t, errors.HasCode(err, errors.MissingDependency))
}

func TestExtractPatternsStructured(t *testing.T) {
	llm := &testutil.StaticLLM{Replies: []string{
		`{"patterns": [{"pattern": "instruct step by step", "example": "think step by step"}]}`,
	}}
	hof := NewHallOfFame(llm, 5, 10)
	hof.Add(hofEntry("Think step by step before answering.", 0.9))
	hof.Add(hofEntry("Answer concisely.", 0.6))
	hof.Add(hofEntry("Reason about each step carefully.", 0.8))

	require.NoError(t, hof.ExtractPatterns(context.Background(), 10))

	require.Len(t, hof.patterns, 1)
	assert.Equal(t, "instruct step by step", hof.patterns[0].Pattern)
	// both step-mentioning entries match via the keyword heuristic
	assert.Contains(t, hof.entries[0].MatchedPatterns, "instruct step by step")
	assert.Empty(t, hof.entries[2].MatchedPatterns)
}

func TestExtractPatternsHeuristicFallback(t *testing.T) {
	llm := &testutil.StaticLLM{Replies: []string{
		"Here are some ideas:\n- Always give examples\n2) Set an explicit persona\nno bullet here",
	}}
	hof := NewHallOfFame(llm, 5, 10)
	hof.Add(hofEntry("a", 0.9))
	hof.Add(hofEntry("b", 0.8))
	hof.Add(hofEntry("c", 0.7))

	require.NoError(t, hof.ExtractPatterns(context.Background(), 10))

	require.Len(t, hof.patterns, 2)
	assert.Equal(t, "Always give examples", hof.patterns[0].Pattern)
	assert.Equal(t, "Set an explicit persona", hof.patterns[1].Pattern)
}

func TestExtractPatternsTransportErrorSurfaces(t *testing.T) {
	hof := NewHallOfFame(&testutil.StaticLLM{}, 5, 10)
	hof.Add(hofEntry("a", 0.9))

	err := hof.ExtractPatterns(context.Background(), 10)
	assert.True(t, errors.HasCode(err, errors.LLMGenerationFailed))
}

func TestPatternsForInjectionDecay(t *testing.T) {
	hof := NewHallOfFame(nil, 5, 10)
	hof.patterns = []Pattern{{Pattern: "give examples"}, {Pattern: "set persona"}}

	e1 := hofEntry("a", 0.6)
	e1.MatchedPatterns = []string{"give examples"}
	e2 := hofEntry("b", 0.57)
	e2.MatchedPatterns = []string{"set persona"}
	hof.entries = []HallOfFameEntry{e1, e2}

	first := hof.PatternsForInjection(1)
	require.Equal(t, []string{"give examples"}, first)

	// usage decay: 0.6/1.1 < 0.57, so the runner-up wins the next draw
	second := hof.PatternsForInjection(1)
	assert.Equal(t, []string{"set persona"}, second)
}

func TestPatternsForInjectionSkipsUnmatched(t *testing.T) {
	hof := NewHallOfFame(nil, 5, 10)
	hof.patterns = []Pattern{{Pattern: "orphaned pattern"}}
	hof.entries = []HallOfFameEntry{hofEntry("a", 0.9)}

	assert.Empty(t, hof.PatternsForInjection(3))
}
