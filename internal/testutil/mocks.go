// Package testutil provides shared test doubles for the LLM boundary.
package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/comet-ml/opik-sub004/pkg/core"
	"github.com/comet-ml/opik-sub004/pkg/errors"
)

// MockLLM is a testify mock for core.LLM.
type MockLLM struct {
	mock.Mock
}

var _ core.LLM = (*MockLLM)(nil)

func (m *MockLLM) Generate(ctx context.Context, messages []core.Message, options ...core.GenerateOption) (*core.Response, error) {
	args := m.Called(ctx, messages, options)
	if resp := args.Get(0); resp != nil {
		return resp.(*core.Response), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLLM) ProviderName() string { return "mock" }

func (m *MockLLM) ModelID() string { return "mock-model" }

// StaticLLM replies with a fixed script, repeating the last reply once the
// script is exhausted. An empty script fails every call.
type StaticLLM struct {
	Replies []string
	Calls   int
}

var _ core.LLM = (*StaticLLM)(nil)

func (s *StaticLLM) Generate(ctx context.Context, messages []core.Message, options ...core.GenerateOption) (*core.Response, error) {
	s.Calls++
	if len(s.Replies) == 0 {
		return nil, errors.New(errors.LLMGenerationFailed, "static LLM has no scripted replies")
	}
	idx := s.Calls - 1
	if idx >= len(s.Replies) {
		idx = len(s.Replies) - 1
	}
	return &core.Response{
		Content: s.Replies[idx],
		Usage:   &core.TokenInfo{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}, nil
}

func (s *StaticLLM) ProviderName() string { return "static" }

func (s *StaticLLM) ModelID() string { return "static-model" }
