package port

import "context"

// Instrumentation records application-level metrics.
type Instrumentation interface {
	RecordMaskRecompute(ctx context.Context, ms float64)
	IncrementFilterEdits(ctx context.Context)
	IncrementSelectionReplacements(ctx context.Context)
	IncrementEngineErrors(ctx context.Context)
	RecordToolDuration(ctx context.Context, ms float64)
}

// NoopInstrumentation discards all metrics.
type NoopInstrumentation struct{}

func (NoopInstrumentation) RecordMaskRecompute(context.Context, float64)   {}
func (NoopInstrumentation) IncrementFilterEdits(context.Context)           {}
func (NoopInstrumentation) IncrementSelectionReplacements(context.Context) {}
func (NoopInstrumentation) IncrementEngineErrors(context.Context)          {}
func (NoopInstrumentation) RecordToolDuration(context.Context, float64)    {}
