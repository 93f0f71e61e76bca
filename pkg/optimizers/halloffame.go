package optimizers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/comet-ml/opik-sub004/pkg/core"
	"github.com/comet-ml/opik-sub004/pkg/errors"
	"github.com/comet-ml/opik-sub004/pkg/logging"
)

// HallOfFameEntry is an immutable snapshot of a top-scoring genome. Only
// MatchedPatterns is attached after insertion, by a pattern-extraction pass.
type HallOfFameEntry struct {
	Prompts         map[string][]core.Message
	Score           float64
	Trial           int
	Improvement     float64
	MetricName      string
	MatchedPatterns []string
}

// Pattern is one mined prompt-engineering pattern with a supporting example.
type Pattern struct {
	Pattern string `json:"pattern"`
	Example string `json:"example"`
}

const (
	maxScorecardEntries   = 5
	maxExtractedPatterns  = 5
	minEntriesForMining   = 3
	patternKeywordWords   = 5
	patternKeywordMinLen  = 3
	injectionUsagePenalty = 0.1
)

// HallOfFame is a bounded, score-sorted archive of the best genomes seen so
// far, doubling as the meta-learning loop: it periodically mines the archive
// for winning patterns and hands them back for injection into future
// crossovers. All methods mutate shared state and must only be called from
// the single-threaded generation loop.
type HallOfFame struct {
	llm      core.LLM
	maxSize  int
	interval int

	entries             []HallOfFameEntry
	patterns            []Pattern
	usage               map[string]int
	lastExtractionTrial int
}

// NewHallOfFame creates an archive holding at most maxSize entries, mining
// patterns every extractionInterval trials. A nil llm disables mining; the
// archive itself still works.
func NewHallOfFame(llm core.LLM, maxSize, extractionInterval int) *HallOfFame {
	return &HallOfFame{
		llm:                 llm,
		maxSize:             maxSize,
		interval:            extractionInterval,
		usage:               make(map[string]int),
		lastExtractionTrial: -1 << 31,
	}
}

// insertEntry returns the sorted list after attempting to place e. At
// capacity, e replaces the worst entry only when strictly better; equal
// scores never displace an incumbent.
func insertEntry(entries []HallOfFameEntry, e HallOfFameEntry, maxSize int) ([]HallOfFameEntry, bool) {
	if len(entries) < maxSize {
		entries = append(entries, e)
	} else {
		worst := len(entries) - 1
		if e.Score <= entries[worst].Score {
			return entries, false
		}
		entries[worst] = e
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries, true
}

// Add offers an entry to the archive and reports whether it was inserted.
func (h *HallOfFame) Add(e HallOfFameEntry) bool {
	var inserted bool
	h.entries, inserted = insertEntry(h.entries, e, h.maxSize)
	return inserted
}

// Entries returns the archive sorted descending by score.
func (h *HallOfFame) Entries() []HallOfFameEntry {
	out := make([]HallOfFameEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Best returns the highest-scoring entry.
func (h *HallOfFame) Best() (HallOfFameEntry, error) {
	if len(h.entries) == 0 {
		return HallOfFameEntry{}, errors.New(errors.EmptyArchive, "hall of fame is empty")
	}
	return h.entries[0], nil
}

// ShouldExtract reports whether a pattern-mining pass is due at trialIndex.
// Always false without a completion service.
func (h *HallOfFame) ShouldExtract(trialIndex int) bool {
	return h.llm != nil &&
		len(h.entries) >= minEntriesForMining &&
		trialIndex-h.lastExtractionTrial >= h.interval
}

type patternsReply struct {
	Patterns []Pattern `json:"patterns"`
}

// ExtractPatterns mines the top entries for recurring prompt-engineering
// patterns and annotates each scorecard entry with the patterns it matches.
// On a total structured-parse failure the raw reply is scanned with a bullet
// heuristic instead, so mining degrades rather than fails.
func (h *HallOfFame) ExtractPatterns(ctx context.Context, trialIndex int) error {
	logger := logging.GetLogger()
	if h.llm == nil {
		return errors.New(errors.MissingDependency, "pattern mining requires a completion service")
	}
	if len(h.entries) == 0 {
		return errors.New(errors.EmptyArchive, "cannot extract patterns from an empty hall of fame")
	}
	h.lastExtractionTrial = trialIndex

	top := h.entries
	if len(top) > maxScorecardEntries {
		top = top[:maxScorecardEntries]
	}

	request := []core.Message{
		{Role: core.RoleSystem, Content: patternMiningSystem},
		{Role: core.RoleUser, Content: buildScorecard(top)},
	}

	var reply patternsReply
	err := core.GenerateStructured(ctx, h.llm, request, &reply, core.WithTemperature(0.3))
	var mined []Pattern
	switch {
	case err == nil:
		mined = reply.Patterns
	case errors.HasCode(err, errors.StructuredParseFailed):
		logger.Warn(ctx, "pattern extraction reply unparseable, applying bullet heuristic")
		mined = minePatternsHeuristically(rawReplyOf(err))
	default:
		return err
	}

	if len(mined) > maxExtractedPatterns {
		mined = mined[:maxExtractedPatterns]
	}
	h.patterns = append(h.patterns, mined...)

	for i := range top {
		h.entries[i].MatchedPatterns = matchPatterns(h.entries[i], h.patterns)
	}
	logger.Info(ctx, "extracted %d patterns at trial %d (pool size %d)", len(mined), trialIndex, len(h.patterns))
	return nil
}

const patternMiningSystem = `You analyze high-scoring chat prompts and identify what makes them effective. Given a scorecard of the best prompts found so far, list up to 5 recurring patterns. Respond with JSON only: {"patterns": [{"pattern": "short description", "example": "verbatim excerpt"}]}`

func buildScorecard(entries []HallOfFameEntry) string {
	var sb strings.Builder
	sb.WriteString("Top prompts by score:\n")
	for i, e := range entries {
		fmt.Fprintf(&sb, "\n## Rank %d (score %.4f, improvement %+.2f%%)\n", i+1, e.Score, e.Improvement*100)
		for _, name := range sortedPromptNames(e.Prompts) {
			turns := make([]chatTurn, len(e.Prompts[name]))
			for j, m := range e.Prompts[name] {
				turns[j] = chatTurn{Role: string(m.Role), Content: m.Text()}
			}
			data, err := json.Marshal(turns)
			if err != nil {
				continue
			}
			fmt.Fprintf(&sb, "%s: %s\n", name, data)
		}
	}
	return sb.String()
}

var bulletLine = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*(.+)`)

// minePatternsHeuristically salvages bullet or numbered lines from a reply
// that failed schema validation.
func minePatternsHeuristically(raw string) []Pattern {
	var mined []Pattern
	for _, line := range strings.Split(raw, "\n") {
		m := bulletLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		mined = append(mined, Pattern{Pattern: strings.TrimSpace(m[1])})
		if len(mined) == maxExtractedPatterns {
			break
		}
	}
	return mined
}

func rawReplyOf(err error) string {
	var e *errors.Error
	if stderrors.As(err, &e) {
		if raw, ok := e.Fields()["content"].(string); ok {
			return raw
		}
	}
	return ""
}

var foldCaser = cases.Fold()

// matchPatterns reports which patterns appear in the entry's prompt text.
// A pattern matches when any of its first 5 words longer than 3 characters
// occurs in the case-folded concatenation of the entry's messages. This is a
// coarse keyword heuristic, not a semantic match.
func matchPatterns(e HallOfFameEntry, patterns []Pattern) []string {
	var haystack strings.Builder
	for _, name := range sortedPromptNames(e.Prompts) {
		for _, m := range e.Prompts[name] {
			haystack.WriteString(foldCaser.String(m.Text()))
			haystack.WriteString(" ")
		}
	}
	text := haystack.String()

	var matched []string
	for _, p := range patterns {
		words := strings.Fields(foldCaser.String(p.Pattern))
		if len(words) > patternKeywordWords {
			words = words[:patternKeywordWords]
		}
		for _, w := range words {
			if len(w) > patternKeywordMinLen && strings.Contains(text, w) {
				matched = append(matched, p.Pattern)
				break
			}
		}
	}
	return matched
}

// PatternsForInjection returns the n most promising distinct patterns, scored
// by the mean score of the entries that match them with a decaying weight for
// patterns already injected before. Usage counters are incremented as a side
// effect.
func (h *HallOfFame) PatternsForInjection(n int) []string {
	type scored struct {
		pattern string
		value   float64
	}

	seen := make(map[string]bool)
	var ranked []scored
	for _, p := range h.patterns {
		if seen[p.Pattern] {
			continue
		}
		seen[p.Pattern] = true

		var sum float64
		var count int
		for _, e := range h.entries {
			for _, m := range e.MatchedPatterns {
				if m == p.Pattern {
					sum += e.Score
					count++
					break
				}
			}
		}
		if count == 0 {
			continue
		}
		mean := sum / float64(count)
		ranked = append(ranked, scored{
			pattern: p.Pattern,
			value:   mean / (1 + injectionUsagePenalty*float64(h.usage[p.Pattern])),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].value > ranked[j].value })
	if len(ranked) > n {
		ranked = ranked[:n]
	}

	out := make([]string, len(ranked))
	for i, s := range ranked {
		out[i] = s.pattern
		h.usage[s.pattern]++
	}
	return out
}

func sortedPromptNames(prompts map[string][]core.Message) []string {
	names := make([]string, 0, len(prompts))
	for name := range prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
