package core

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// SharedBudget is the process-wide request budget shared by every optimizer
// and every worker in the process. It is passed by handle into the components
// that need it rather than living as a singleton, so tests can substitute a
// deterministic fake. A nil *SharedBudget is valid and imposes no limit.
type SharedBudget struct {
	limiter *rate.Limiter

	mu       sync.Mutex
	requests int64
	tokens   int64
}

// NewSharedBudget allows requestsPerSecond sustained LLM calls with the given
// burst across all goroutines holding this handle.
func NewSharedBudget(requestsPerSecond float64, burst int) *SharedBudget {
	return &SharedBudget{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Acquire blocks until the budget admits one more request or ctx is done.
func (b *SharedBudget) Acquire(ctx context.Context) error {
	if b == nil || b.limiter == nil {
		return nil
	}
	return b.limiter.Wait(ctx)
}

// NoteUsage records usage counters for one completed request.
func (b *SharedBudget) NoteUsage(usage *TokenInfo) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests++
	if usage != nil {
		b.tokens += int64(usage.TotalTokens)
	}
}

// Usage returns the total requests and tokens recorded so far.
func (b *SharedBudget) Usage() (requests, tokens int64) {
	if b == nil {
		return 0, 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests, b.tokens
}
