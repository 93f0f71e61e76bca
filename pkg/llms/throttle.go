package llms

import (
	"context"
	"time"

	"github.com/comet-ml/opik-sub004/pkg/core"
	errs "github.com/comet-ml/opik-sub004/pkg/errors"
	"github.com/comet-ml/opik-sub004/pkg/logging"
)

// RetryConfig controls how a Throttled LLM reacts to transient failures.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig returns conservative retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Second,
		BackoffFactor:  2.0,
	}
}

// Throttled wraps an LLM with shared rate limiting and retry-with-backoff.
// All optimizers in a run share one budget, so parallel scoring and the
// crossover operator drain the same token bucket.
type Throttled struct {
	inner  core.LLM
	budget *core.SharedBudget
	retry  RetryConfig
}

// NewThrottled wraps inner with the given budget. A nil budget disables rate
// limiting but keeps the retry behavior.
func NewThrottled(inner core.LLM, budget *core.SharedBudget, retry RetryConfig) *Throttled {
	return &Throttled{inner: inner, budget: budget, retry: retry}
}

func (t *Throttled) ProviderName() string { return t.inner.ProviderName() }

func (t *Throttled) ModelID() string { return t.inner.ModelID() }

func (t *Throttled) Generate(ctx context.Context, messages []core.Message, options ...core.GenerateOption) (*core.Response, error) {
	logger := logging.GetLogger()

	backoff := t.retry.InitialBackoff
	var lastErr error
	for attempt := 0; attempt <= t.retry.MaxRetries; attempt++ {
		if err := t.budget.Acquire(ctx); err != nil {
			return nil, errs.Wrap(err, errs.RateLimitExceeded, "budget wait interrupted")
		}

		resp, err := t.inner.Generate(ctx, messages, options...)
		if err == nil {
			t.budget.NoteUsage(resp.Usage)
			return resp, nil
		}
		lastErr = err

		if !isTransient(err) || attempt == t.retry.MaxRetries {
			break
		}
		logger.Warn(ctx, "LLM call failed (attempt %d/%d), retrying in %v: %v",
			attempt+1, t.retry.MaxRetries, backoff, err)

		select {
		case <-ctx.Done():
			return nil, errs.Wrap(ctx.Err(), errs.Canceled, "generation canceled during backoff")
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * t.retry.BackoffFactor)
	}
	return nil, lastErr
}

func isTransient(err error) bool {
	switch errs.CodeOf(err) {
	case errs.RateLimitExceeded, errs.Timeout, errs.LLMGenerationFailed:
		return true
	}
	return false
}
