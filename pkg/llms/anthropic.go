// Package llms provides LLM provider adapters for the optimizer framework.
// Every adapter speaks the core.LLM contract: a chat message list in, a text
// reply plus token usage out.
package llms

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/comet-ml/opik-sub004/pkg/core"
	errs "github.com/comet-ml/opik-sub004/pkg/errors"
	"github.com/comet-ml/opik-sub004/pkg/logging"
)

// AnthropicLLM implements core.LLM for Anthropic's models.
type AnthropicLLM struct {
	client  *anthropic.Client
	modelID string
}

// NewAnthropicLLM creates an Anthropic-backed LLM. An empty apiKey falls back
// to the ANTHROPIC_API_KEY environment variable.
func NewAnthropicLLM(apiKey, modelID string, clientOpts ...option.RequestOption) (*AnthropicLLM, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, errs.New(errs.InvalidInput, "API key is required")
	}
	if !isValidAnthropicModel(modelID) {
		return nil, errs.WithFields(
			errs.New(errs.InvalidInput, "unsupported Anthropic model"),
			errs.Fields{"model": modelID})
	}

	opts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, clientOpts...)
	client := anthropic.NewClient(opts...)

	return &AnthropicLLM{
		client:  &client,
		modelID: modelID,
	}, nil
}

// isValidAnthropicModel checks if the model is a valid Anthropic model.
func isValidAnthropicModel(model string) bool {
	validPrefixes := []string{
		"claude-3",
		"claude-4",
		"claude-haiku",
		"claude-sonnet",
		"claude-opus",
	}

	for _, prefix := range validPrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

func (a *AnthropicLLM) ProviderName() string { return "anthropic" }

func (a *AnthropicLLM) ModelID() string { return a.modelID }

// Generate implements the core.LLM interface. When more than one candidate is
// requested the call is repeated, since the Messages API returns a single
// completion per request.
func (a *AnthropicLLM) Generate(ctx context.Context, messages []core.Message, options ...core.GenerateOption) (*core.Response, error) {
	logger := logging.GetLogger()
	opts := core.NewGenerateOptions()
	for _, opt := range options {
		opt(opts)
	}

	system, params := convertMessages(messages)
	if len(params) == 0 {
		return nil, errs.New(errs.InvalidInput, "no messages provided")
	}

	req := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.modelID),
		Messages:    params,
		MaxTokens:   int64(opts.MaxTokens),
		Temperature: anthropic.Float(opts.Temperature),
	}
	if opts.TopP > 0 {
		req.TopP = anthropic.Float(opts.TopP)
	}
	if len(opts.Stop) > 0 {
		req.StopSequences = opts.Stop
	}
	if len(system) > 0 {
		req.System = system
	}

	var (
		first *core.Response
		extra []string
	)
	n := opts.N
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		message, err := a.client.Messages.New(ctx, req)
		if err != nil {
			var apiErr *anthropic.Error
			if errors.As(err, &apiErr) {
				logger.Error(ctx, "Anthropic API error: status code %d", apiErr.StatusCode)
			}
			return nil, errs.WithFields(
				errs.Wrap(err, errs.LLMGenerationFailed, "failed to generate response"),
				errs.Fields{
					"model":      a.modelID,
					"max_tokens": opts.MaxTokens,
				})
		}
		if message == nil || len(message.Content) == 0 {
			return nil, errs.New(errs.LLMGenerationFailed, "received empty content from Anthropic API")
		}

		var responseText string
		if block := message.Content[0]; block.Type == "text" {
			responseText = block.Text
		}

		if first == nil {
			first = &core.Response{
				Content: responseText,
				Usage: &core.TokenInfo{
					PromptTokens:     int(message.Usage.InputTokens),
					CompletionTokens: int(message.Usage.OutputTokens),
					TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
				},
			}
			logger.Debug(ctx, "Anthropic response: %d prompt tokens, %d completion tokens",
				message.Usage.InputTokens, message.Usage.OutputTokens)
		} else {
			extra = append(extra, responseText)
			first.Usage.PromptTokens += int(message.Usage.InputTokens)
			first.Usage.CompletionTokens += int(message.Usage.OutputTokens)
			first.Usage.TotalTokens += int(message.Usage.InputTokens + message.Usage.OutputTokens)
		}
	}

	first.Candidates = append([]string{first.Content}, extra...)
	return first, nil
}

// convertMessages maps framework chat messages onto the Messages API shape.
// System messages become the system prompt; everything else keeps its role.
func convertMessages(messages []core.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	var params []anthropic.MessageParam

	for _, msg := range messages {
		if msg.Role == core.RoleSystem {
			system = append(system, anthropic.TextBlockParam{Text: msg.Text()})
			continue
		}

		blocks := convertParts(msg)
		if len(blocks) == 0 {
			continue
		}

		role := anthropic.MessageParamRoleUser
		if msg.Role == core.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		params = append(params, anthropic.MessageParam{
			Role:    role,
			Content: blocks,
		})
	}
	return system, params
}

func convertParts(msg core.Message) []anthropic.ContentBlockParamUnion {
	if len(msg.Parts) == 0 {
		if msg.Content == "" {
			return nil
		}
		return []anthropic.ContentBlockParamUnion{
			{OfText: &anthropic.TextBlockParam{Text: msg.Content}},
		}
	}

	var blocks []anthropic.ContentBlockParamUnion
	for _, part := range msg.Parts {
		switch part.Kind {
		case core.PartText:
			if part.Text != "" {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfText: &anthropic.TextBlockParam{Text: part.Text},
				})
			}
		case core.PartImage:
			switch {
			case len(part.Data) > 0:
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfImage: &anthropic.ImageBlockParam{
						Source: anthropic.ImageBlockParamSourceUnion{
							OfBase64: &anthropic.Base64ImageSourceParam{
								Data:      base64.StdEncoding.EncodeToString(part.Data),
								MediaType: anthropic.Base64ImageSourceMediaType(part.MimeType),
							},
						},
					},
				})
			case part.URL != "":
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfImage: &anthropic.ImageBlockParam{
						Source: anthropic.ImageBlockParamSourceUnion{
							OfURL: &anthropic.URLImageSourceParam{URL: part.URL},
						},
					},
				})
			}
		case core.PartVideo:
			// Not supported by the Messages API, reference it textually
			blocks = append(blocks, anthropic.ContentBlockParamUnion{
				OfText: &anthropic.TextBlockParam{Text: "[Video: " + part.MimeType + "]"},
			})
		}
	}
	return blocks
}
