// Package optimizers implements the evolutionary prompt-optimization engine:
// genetic operators over chat-prompt genomes, dual selection policies, a
// hall-of-fame meta-learning loop, and the driver that ties them to the
// shared history ledger.
package optimizers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/comet-ml/opik-sub004/pkg/core"
	"github.com/comet-ml/opik-sub004/pkg/errors"
	"github.com/comet-ml/opik-sub004/pkg/logging"
)

// OptimizerState carries run-level context that genetic operators may consult:
// the active tool surface, the evaluation metric, and winning patterns mined
// by the hall of fame.
type OptimizerState struct {
	ToolsEnabled bool
	Tools        []core.Tool
	MetricName   string
	Patterns     []string
}

// errNotEnoughChunks signals that sentence-level crossover is infeasible for a
// text pair. It never escapes the crossover engine.
var errNotEnoughChunks = stderrors.New("not enough chunks")

// CrossoverEngine combines two parent genomes into two children. The primary
// strategy asks an LLM to blend aligned prompts semantically; every failure
// tier degrades toward a deterministic sentence- or word-level splice.
type CrossoverEngine struct {
	llm       core.LLM
	rng       *rand.Rand
	enableLLM bool
}

// NewCrossoverEngine creates a crossover operator. Passing a nil llm or
// enableLLM=false restricts it to the deterministic strategies.
func NewCrossoverEngine(llm core.LLM, rng *rand.Rand, enableLLM bool) *CrossoverEngine {
	return &CrossoverEngine{llm: llm, rng: rng, enableLLM: enableLLM}
}

// Crossover produces two children from two parents. Deterministic given the
// same RNG state when the LLM path is disabled. The children's metadata is the
// union of the parents' (parent1 wins collisions), with tool descriptions
// patched in when tool optimization is active.
func (e *CrossoverEngine) Crossover(ctx context.Context, parent1, parent2 *core.Genome, state *OptimizerState) (*core.Genome, *core.Genome) {
	var child1, child2 *core.Genome
	if e.enableLLM && e.llm != nil {
		child1, child2 = e.semanticCrossover(ctx, parent1, parent2, state)
	} else {
		child1, child2 = e.deterministicCrossover(parent1, parent2)
	}

	for _, child := range []*core.Genome{child1, child2} {
		child.Metadata = core.MergeMetadata(parent1.Metadata, parent2.Metadata)
		applyToolUpdates(child, state)
	}
	return child1, child2
}

// deterministicCrossover splices shared prompts pairwise; prompt names present
// in only one parent are copied unchanged into both children.
func (e *CrossoverEngine) deterministicCrossover(parent1, parent2 *core.Genome) (*core.Genome, *core.Genome) {
	child1 := core.NewGenome(nil)
	child2 := core.NewGenome(nil)

	for _, name := range unionPromptNames(parent1, parent2) {
		msgs1, ok1 := parent1.Prompts[name]
		msgs2, ok2 := parent2.Prompts[name]
		switch {
		case ok1 && ok2:
			c1, c2 := e.crossMessages(msgs1, msgs2)
			child1.Prompts[name] = c1
			child2.Prompts[name] = c2
		case ok1:
			child1.Prompts[name] = core.CloneMessages(msgs1)
			child2.Prompts[name] = core.CloneMessages(msgs1)
		default:
			child1.Prompts[name] = core.CloneMessages(msgs2)
			child2.Prompts[name] = core.CloneMessages(msgs2)
		}
	}
	return child1, child2
}

// crossMessages crosses two message lists pairwise by index. A slot is crossed
// only when both roles match; otherwise it is copied unmodified. Tails beyond
// the shorter list stay with their own child.
func (e *CrossoverEngine) crossMessages(msgs1, msgs2 []core.Message) ([]core.Message, []core.Message) {
	out1 := core.CloneMessages(msgs1)
	out2 := core.CloneMessages(msgs2)

	n := len(msgs1)
	if len(msgs2) < n {
		n = len(msgs2)
	}
	for i := 0; i < n; i++ {
		if msgs1[i].Role != msgs2[i].Role {
			continue
		}
		t1, t2 := e.crossTexts(msgs1[i].Text(), msgs2[i].Text())
		out1[i] = out1[i].WithText(t1)
		out2[i] = out2[i].WithText(t2)
	}
	return out1, out2
}

// crossTexts tries sentence-level crossover first and falls back to the
// word-level variant when either side has too few sentences.
func (e *CrossoverEngine) crossTexts(text1, text2 string) (string, string) {
	c1, c2, err := e.chunkCross(text1, text2)
	if err == nil {
		return c1, c2
	}
	return e.wordCross(text1, text2)
}

// chunkCross splits both texts into trimmed non-empty sentence chunks and
// swaps tails at a point drawn uniformly from [1, min-1].
func (e *CrossoverEngine) chunkCross(text1, text2 string) (string, string, error) {
	chunks1 := splitChunks(text1)
	chunks2 := splitChunks(text2)
	if len(chunks1) < 2 || len(chunks2) < 2 {
		return "", "", errNotEnoughChunks
	}

	min := len(chunks1)
	if len(chunks2) < min {
		min = len(chunks2)
	}
	point := 1 + e.rng.Intn(min-1)

	out1 := make([]string, 0, point+len(chunks2)-point)
	out1 = append(out1, chunks1[:point]...)
	out1 = append(out1, chunks2[point:]...)
	out2 := make([]string, 0, point+len(chunks1)-point)
	out2 = append(out2, chunks2[:point]...)
	out2 = append(out2, chunks1[point:]...)

	return joinChunks(out1), joinChunks(out2), nil
}

// wordCross swaps word tails analogously. If either side has fewer than two
// words both inputs are returned byte-for-byte unchanged.
func (e *CrossoverEngine) wordCross(text1, text2 string) (string, string) {
	words1 := strings.Fields(text1)
	words2 := strings.Fields(text2)
	if len(words1) < 2 || len(words2) < 2 {
		return text1, text2
	}

	min := len(words1)
	if len(words2) < min {
		min = len(words2)
	}
	point := 1 + e.rng.Intn(min-1)

	out1 := append(append([]string{}, words1[:point]...), words2[point:]...)
	out2 := append(append([]string{}, words2[:point]...), words1[point:]...)
	return strings.Join(out1, " "), strings.Join(out2, " ")
}

func splitChunks(text string) []string {
	var chunks []string
	for _, part := range strings.Split(text, ".") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
	}
	return chunks
}

func joinChunks(chunks []string) string {
	if len(chunks) == 0 {
		return ""
	}
	return strings.Join(chunks, ". ") + "."
}

type chatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type crossoverReply struct {
	Children [][]chatTurn `json:"children"`
}

// semanticCrossover asks the LLM to blend each aligned prompt. A structured
// parse failure falls back to deterministic crossover for that prompt only;
// any other LLM failure abandons the semantic path entirely.
func (e *CrossoverEngine) semanticCrossover(ctx context.Context, parent1, parent2 *core.Genome, state *OptimizerState) (*core.Genome, *core.Genome) {
	logger := logging.GetLogger()
	child1 := core.NewGenome(nil)
	child2 := core.NewGenome(nil)

	for _, name := range unionPromptNames(parent1, parent2) {
		msgs1, ok1 := parent1.Prompts[name]
		msgs2, ok2 := parent2.Prompts[name]
		if !ok1 || !ok2 {
			src := msgs1
			if !ok1 {
				src = msgs2
			}
			child1.Prompts[name] = core.CloneMessages(src)
			child2.Prompts[name] = core.CloneMessages(src)
			continue
		}

		c1, c2, err := e.semanticCrossPrompt(ctx, msgs1, msgs2, state)
		if err != nil {
			if errors.HasCode(err, errors.StructuredParseFailed) {
				logger.Warn(ctx, "semantic crossover parse failure for prompt %q, using deterministic splice", name)
				child1.Prompts[name], child2.Prompts[name] = e.crossMessages(msgs1, msgs2)
				continue
			}
			logger.Warn(ctx, "semantic crossover failed (%v), falling back to deterministic crossover", err)
			return e.deterministicCrossover(parent1, parent2)
		}
		child1.Prompts[name] = c1
		child2.Prompts[name] = c2
	}
	return child1, child2
}

func (e *CrossoverEngine) semanticCrossPrompt(ctx context.Context, msgs1, msgs2 []core.Message, state *OptimizerState) ([]core.Message, []core.Message, error) {
	request := []core.Message{
		{Role: core.RoleSystem, Content: semanticCrossoverSystem},
		{Role: core.RoleUser, Content: buildCrossoverUserPrompt(msgs1, msgs2, state)},
	}

	var reply crossoverReply
	if err := core.GenerateStructured(ctx, e.llm, request, &reply, core.WithTemperature(0.7)); err != nil {
		return nil, nil, err
	}
	if len(reply.Children) != 2 {
		return nil, nil, errors.WithFields(
			errors.New(errors.StructuredParseFailed, "crossover reply must contain exactly two children"),
			errors.Fields{"children": len(reply.Children)})
	}

	return rebuildMessages(msgs1, reply.Children[0]), rebuildMessages(msgs2, reply.Children[1]), nil
}

const semanticCrossoverSystem = `You are an expert prompt engineer. Given two parent chat prompts, produce two child prompts that each combine the strongest instructions of both parents. Keep the number of messages and their roles identical to the corresponding parent. Respond with JSON only: {"children": [[{"role": "...", "content": "..."}], [{"role": "...", "content": "..."}]]}`

func buildCrossoverUserPrompt(msgs1, msgs2 []core.Message, state *OptimizerState) string {
	var sb strings.Builder
	sb.WriteString("Parent A:\n")
	sb.WriteString(renderMessagesJSON(msgs1))
	sb.WriteString("\n\nParent B:\n")
	sb.WriteString(renderMessagesJSON(msgs2))
	if state != nil && len(state.Patterns) > 0 {
		sb.WriteString("\n\nPatterns observed in high-scoring prompts, incorporate where natural:\n")
		for _, p := range state.Patterns {
			fmt.Fprintf(&sb, "- %s\n", p)
		}
	}
	if state != nil && state.MetricName != "" {
		fmt.Fprintf(&sb, "\nThe children will be judged on the %q metric.", state.MetricName)
	}
	return sb.String()
}

func renderMessagesJSON(msgs []core.Message) string {
	turns := make([]chatTurn, len(msgs))
	for i, m := range msgs {
		turns[i] = chatTurn{Role: string(m.Role), Content: m.Text()}
	}
	data, err := json.Marshal(turns)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// rebuildMessages maps LLM-produced turns back onto the parent's structure so
// non-text parts and roles survive the semantic rewrite.
func rebuildMessages(parent []core.Message, turns []chatTurn) []core.Message {
	out := core.CloneMessages(parent)
	for i := range out {
		if i < len(turns) && turns[i].Content != "" {
			out[i] = out[i].WithText(turns[i].Content)
		}
	}
	return out
}

func applyToolUpdates(g *core.Genome, state *OptimizerState) {
	if state == nil || !state.ToolsEnabled || len(state.Tools) == 0 {
		return
	}
	if g.Metadata == nil {
		g.Metadata = make(map[string]interface{})
	}
	tools := make([]map[string]interface{}, 0, len(state.Tools))
	for _, t := range state.Tools {
		tools = append(tools, map[string]interface{}{
			"name":        t.Name,
			"description": t.Description,
		})
	}
	g.Metadata["tools"] = tools
	if state.MetricName != "" {
		g.Metadata["metric"] = state.MetricName
	}
}

func unionPromptNames(a, b *core.Genome) []string {
	names := a.PromptNames()
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	for _, n := range b.PromptNames() {
		if !seen[n] {
			names = append(names, n)
		}
	}
	return names
}
