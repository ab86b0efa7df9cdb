package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNoopTracer(t *testing.T) {
	tracer := NoopTracer()
	assert.NotNil(t, tracer)

	_, span := tracer.Start(context.Background(), "test")
	assert.NotNil(t, span)
	span.End()
}

func TestNoopInstruments(t *testing.T) {
	inst := NoopInstruments()
	assert.NotNil(t, inst)
	assert.NotNil(t, inst.MaskRecomputeDuration)
	assert.NotNil(t, inst.FilterEdits)
	assert.NotNil(t, inst.SelectionReplacements)
	assert.NotNil(t, inst.EngineErrors)
	assert.NotNil(t, inst.ToolDuration)

	// Should not panic.
	ctx := context.Background()
	inst.RecordMaskRecompute(ctx, 0.4)
	inst.IncrementFilterEdits(ctx)
	inst.IncrementSelectionReplacements(ctx)
	inst.IncrementEngineErrors(ctx)
	inst.RecordToolDuration(ctx, 12.0)
}

func TestProvider_Shutdown_Nil(t *testing.T) {
	var p *Provider
	err := p.Shutdown(context.Background())
	assert.NoError(t, err)
}

func TestSpanRecording(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()
	tracer := tp.Tracer("test")

	ctx := context.Background()
	_, span := tracer.Start(ctx, "Session.AddFilter")
	span.SetAttributes(attribute.String("filter.column", "age"))
	span.End()

	require.NoError(t, tp.ForceFlush(ctx))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "Session.AddFilter", spans[0].Name)
}

func TestInstrumentsRecordUnderTheirNames(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	inst := newInstrumentsFromMeter(mp.Meter(meterName))

	ctx := context.Background()
	inst.RecordMaskRecompute(ctx, 1.5)
	inst.IncrementFilterEdits(ctx)
	inst.IncrementSelectionReplacements(ctx)
	inst.IncrementEngineErrors(ctx)
	inst.RecordToolDuration(ctx, 3.0)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	names := make(map[string]bool)
	for _, m := range rm.ScopeMetrics[0].Metrics {
		names[m.Name] = true
	}
	for _, want := range []string{
		"trellis.mask.recompute.duration",
		"trellis.filter.edits",
		"trellis.selection.replacements",
		"trellis.engine.errors",
		"trellis.tool.duration",
	} {
		assert.True(t, names[want], "missing metric %s", want)
	}
}
