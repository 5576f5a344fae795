package observe

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope for all spans.
const tracerName = "gistsync"

// StartSpan starts a span on the global tracer provider. Configure
// the provider in main() before starting the server; without one the
// spans are no-ops.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
}

// EndSpan records err on the span and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// GistID is the span attribute for a document id.
func GistID(id string) attribute.KeyValue {
	return attribute.String("gistsync.gist_id", id)
}

// Attempt is the span attribute for a save attempt number.
func Attempt(n int) attribute.KeyValue {
	return attribute.Int("gistsync.attempt", n)
}
