package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// slogExporter logs completed spans through the application logger instead of
// shipping them to a collector. ward does not run an OTLP exporter (see
// DESIGN.md for why the OTLP packages were dropped from the teacher's stack);
// this keeps the tracer wired to something real without fabricating a network
// dependency this deployment doesn't have.
type slogExporter struct {
	logger *slog.Logger
}

func (e *slogExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		e.logger.Debug("span",
			"name", s.Name(),
			"trace_id", s.SpanContext().TraceID().String(),
			"span_id", s.SpanContext().SpanID().String(),
			"duration_ms", s.EndTime().Sub(s.StartTime()).Milliseconds(),
		)
	}
	return nil
}

func (e *slogExporter) Shutdown(context.Context) error { return nil }

// InitTracer installs a process-wide TracerProvider named serviceName and
// returns a shutdown function. Spans are sampled at 100% and logged, not
// exported over the network.
func InitTracer(_ context.Context, serviceName, version string, logger *slog.Logger) (func(context.Context) error, error) {
	exporter := &slogExporter{logger: logger}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	_ = version
	return tp.Shutdown, nil
}

// Tracer returns the ward tracer for the dispatcher's request spans.
func Tracer() trace.Tracer {
	return otel.Tracer("github.com/wardctl/ward")
}
