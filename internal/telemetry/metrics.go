package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/trellisviz/trellis"

// Instruments holds pre-created OTel metric instruments. It satisfies
// port.Instrumentation so the session can record without touching OTel.
type Instruments struct {
	MaskRecomputeDuration metric.Float64Histogram
	FilterEdits           metric.Int64Counter
	SelectionReplacements metric.Int64Counter
	EngineErrors          metric.Int64Counter
	ToolDuration          metric.Float64Histogram
}

// NewInstruments creates metric instruments from the global MeterProvider.
// Returns nil-safe instruments: if creation fails, noop instruments are used.
func NewInstruments() *Instruments {
	return newInstrumentsFromMeter(otel.Meter(meterName))
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	return newInstrumentsFromMeter(noop.NewMeterProvider().Meter(meterName))
}

func newInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// OTel SDK returns noop instruments on error; safe to discard.
	maskRecompute, _ := meter.Float64Histogram("trellis.mask.recompute.duration",
		metric.WithDescription("Row mask recompute duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	filterEdits, _ := meter.Int64Counter("trellis.filter.edits",
		metric.WithDescription("Total number of filter add/update/remove operations"),
	)
	selectionReplacements, _ := meter.Int64Counter("trellis.selection.replacements",
		metric.WithDescription("Total number of selection replacements"),
	)
	engineErrors, _ := meter.Int64Counter("trellis.engine.errors",
		metric.WithDescription("Total number of rejected engine operations"),
	)
	toolDuration, _ := meter.Float64Histogram("trellis.tool.duration",
		metric.WithDescription("Tool call duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return &Instruments{
		MaskRecomputeDuration: maskRecompute,
		FilterEdits:           filterEdits,
		SelectionReplacements: selectionReplacements,
		EngineErrors:          engineErrors,
		ToolDuration:          toolDuration,
	}
}

func (i *Instruments) RecordMaskRecompute(ctx context.Context, ms float64) {
	i.MaskRecomputeDuration.Record(ctx, ms)
}

func (i *Instruments) IncrementFilterEdits(ctx context.Context) {
	i.FilterEdits.Add(ctx, 1)
}

func (i *Instruments) IncrementSelectionReplacements(ctx context.Context) {
	i.SelectionReplacements.Add(ctx, 1)
}

func (i *Instruments) IncrementEngineErrors(ctx context.Context) {
	i.EngineErrors.Add(ctx, 1)
}

func (i *Instruments) RecordToolDuration(ctx context.Context, ms float64) {
	i.ToolDuration.Record(ctx, ms)
}
