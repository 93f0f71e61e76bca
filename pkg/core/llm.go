package core

import "context"

// TokenInfo tracks token usage for a single completion.
type TokenInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the result of one completion request. Candidates holds every
// generated completion when more than one was requested; Content is always
// the first candidate.
type Response struct {
	Content    string
	Candidates []string
	Usage      *TokenInfo
	Metadata   map[string]interface{}
}

// LLM is the completion-service boundary: ordered role/content messages in,
// one or more text completions out. Providers live in pkg/llms.
type LLM interface {
	Generate(ctx context.Context, messages []Message, options ...GenerateOption) (*Response, error)

	ProviderName() string
	ModelID() string
}

// GenerateOption configures a single completion request.
type GenerateOption func(*GenerateOptions)

// GenerateOptions holds configuration for text generation.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	N           int // Number of candidate completions to request
	Stop        []string
}

// NewGenerateOptions creates a new GenerateOptions with default values.
func NewGenerateOptions() *GenerateOptions {
	return &GenerateOptions{
		MaxTokens:   4096,
		Temperature: 0.5,
		N:           1,
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = n
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = t
	}
}

// WithTopP sets the nucleus sampling probability.
func WithTopP(p float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.TopP = p
	}
}

// WithNumCandidates asks the provider for n independent completions.
func WithNumCandidates(n int) GenerateOption {
	return func(o *GenerateOptions) {
		if n > 0 {
			o.N = n
		}
	}
}

// WithStopSequences sets the stop sequences.
func WithStopSequences(sequences ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Stop = sequences
	}
}
