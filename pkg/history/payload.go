package history

import "github.com/comet-ml/opik-sub004/pkg/core"

// CandidatePayload is the tagged variant for the candidate shapes callers
// record against a trial: a single named prompt, a bundle of prompts, or a
// raw value from an algorithm with its own vocabulary. Canonicalize produces
// the one uniform map shape that enters the ledger.
type CandidatePayload interface {
	Canonicalize() map[string]interface{}
}

// SinglePrompt records one named prompt with optional tool and model settings.
type SinglePrompt struct {
	Name        string
	Messages    []core.Message
	Tools       []core.Tool
	ModelKwargs map[string]interface{}
}

func (p SinglePrompt) Canonicalize() map[string]interface{} {
	name := p.Name
	if name == "" {
		name = "prompt"
	}
	out := map[string]interface{}{name: core.CloneMessages(p.Messages)}
	attachExtras(out, p.Tools, p.ModelKwargs)
	return out
}

// PromptBundle records a full prompt-name to message-list mapping.
type PromptBundle struct {
	Prompts     map[string][]core.Message
	Tools       []core.Tool
	ModelKwargs map[string]interface{}
}

func (p PromptBundle) Canonicalize() map[string]interface{} {
	out := make(map[string]interface{}, len(p.Prompts)+2)
	for name, msgs := range p.Prompts {
		out[name] = core.CloneMessages(msgs)
	}
	attachExtras(out, p.Tools, p.ModelKwargs)
	return out
}

// RawPayload wraps an arbitrary candidate value. Map-shaped values pass
// through; anything else is coerced to {value: ...} so a bookkeeping bug never
// aborts an in-flight run.
type RawPayload struct {
	Value interface{}
}

func (p RawPayload) Canonicalize() map[string]interface{} {
	if m, ok := p.Value.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{"value": p.Value}
}

func attachExtras(out map[string]interface{}, tools []core.Tool, kwargs map[string]interface{}) {
	if len(tools) > 0 {
		descs := make([]map[string]string, 0, len(tools))
		for _, t := range tools {
			descs = append(descs, map[string]string{"name": t.Name, "description": t.Description})
		}
		out["tools"] = descs
	}
	if len(kwargs) > 0 {
		out["model_kwargs"] = kwargs
	}
}

// canonicalize tolerates nil and foreign values at the boundary.
func canonicalize(candidate interface{}) map[string]interface{} {
	switch v := candidate.(type) {
	case nil:
		return nil
	case CandidatePayload:
		return v.Canonicalize()
	default:
		return RawPayload{Value: candidate}.Canonicalize()
	}
}
