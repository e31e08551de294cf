package application

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/example/scheduling-core/internal/application"

type telemetry struct {
	tracer    trace.Tracer
	writes    metric.Int64Counter
	conflicts metric.Int64Counter
}

func newTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) *telemetry {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)
	fallback := noop.NewMeterProvider().Meter(instrumentationName)

	writes, err := meter.Int64Counter("scheduler.event.writes",
		metric.WithDescription("Committed event mutations by operation."))
	if err != nil {
		writes, _ = fallback.Int64Counter("scheduler.event.writes")
	}
	conflicts, err := meter.Int64Counter("scheduler.event.conflicts",
		metric.WithDescription("Writes rejected because of scheduling conflicts, by conflict type."))
	if err != nil {
		conflicts, _ = fallback.Int64Counter("scheduler.event.conflicts")
	}

	return &telemetry{
		tracer:    tp.Tracer(instrumentationName),
		writes:    writes,
		conflicts: conflicts,
	}
}

func (t *telemetry) start(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "EventService."+operation, trace.WithAttributes(attrs...))
}

// finish records err on the span, if any, and ends it.
func (t *telemetry) finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ErrorKind(err))
	}
	span.End()
}

func (t *telemetry) recordWrite(ctx context.Context, operation string) {
	t.writes.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

func (t *telemetry) recordConflict(ctx context.Context, conflictType string) {
	t.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("conflict.type", conflictType)))
}
