package core

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// RunContext carries run-wide shared state: the cooperative stop flag and the
// process-wide request budget. The stop flag is polled at the start of each
// trial and each objective evaluation; once set, in-flight work drains but no
// new trials start. A nil *RunContext never stops and imposes no budget.
type RunContext struct {
	ID     string
	Budget *SharedBudget

	stop atomic.Bool
}

// NewRunContext creates a run context with a fresh run identifier.
func NewRunContext(budget *SharedBudget) *RunContext {
	return &RunContext{
		ID:     uuid.NewString(),
		Budget: budget,
	}
}

// Stop requests a cooperative stop of the run.
func (r *RunContext) Stop() {
	if r != nil {
		r.stop.Store(true)
	}
}

// ShouldStop reports whether a stop has been requested.
func (r *RunContext) ShouldStop() bool {
	return r != nil && r.stop.Load()
}
