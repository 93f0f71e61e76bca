package core

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/comet-ml/opik-sub004/pkg/errors"
)

const strictJSONInstruction = "Your previous reply was not valid JSON. " +
	"Respond with a single valid JSON value only: no prose, no markdown, no code fences."

// GenerateStructured runs a completion and decodes the reply into out. When
// the first reply does not parse, the request is retried once with a stricter
// JSON-only instruction appended to the conversation. A second parse failure
// surfaces as a StructuredParseFailed error; transport errors pass through
// unchanged.
func GenerateStructured(ctx context.Context, llm LLM, messages []Message, out interface{}, options ...GenerateOption) error {
	resp, err := llm.Generate(ctx, messages, options...)
	if err != nil {
		return err
	}

	if err := decodeJSONReply(resp.Content, out); err == nil {
		return nil
	}

	retry := append(CloneMessages(messages),
		NewTextMessage(RoleAssistant, resp.Content),
		NewTextMessage(RoleUser, strictJSONInstruction),
	)

	resp, err = llm.Generate(ctx, retry, options...)
	if err != nil {
		return err
	}

	if err := decodeJSONReply(resp.Content, out); err != nil {
		// the raw reply rides along so callers can apply heuristic recovery
		return errors.WithFields(
			errors.Wrap(err, errors.StructuredParseFailed, "completion did not match the requested schema"),
			errors.Fields{"model": llm.ModelID(), "content": resp.Content})
	}
	return nil
}

// decodeJSONReply tolerates completions that wrap JSON in prose or code
// fences by decoding the outermost object or array found in the text.
func decodeJSONReply(content string, out interface{}) error {
	trimmed := strings.TrimSpace(content)
	if fenced, ok := stripCodeFence(trimmed); ok {
		trimmed = fenced
	}

	if err := json.Unmarshal([]byte(trimmed), out); err == nil {
		return nil
	}

	start := strings.IndexAny(trimmed, "{[")
	if start < 0 {
		return errors.New(errors.StructuredParseFailed, "no JSON value found in completion")
	}
	var end int
	if trimmed[start] == '{' {
		end = strings.LastIndex(trimmed, "}")
	} else {
		end = strings.LastIndex(trimmed, "]")
	}
	if end <= start {
		return errors.New(errors.StructuredParseFailed, "unterminated JSON value in completion")
	}

	return json.Unmarshal([]byte(trimmed[start:end+1]), out)
}

func stripCodeFence(s string) (string, bool) {
	if !strings.HasPrefix(s, "```") {
		return "", false
	}
	body := strings.TrimPrefix(s, "```")
	if idx := strings.Index(body, "\n"); idx >= 0 {
		body = body[idx+1:] // drop the language tag line
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body), true
}
