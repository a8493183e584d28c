// Tracing pass-through: an OpenTelemetry span wraps the reply wait and
// is tagged with stream, correlation_id, request_id and timeout. We
// carry the span, not an exporter; wiring an actual OTLP backend is
// the embedding process's concern, but InitTracing below gives the
// orchestrator binary a local TracerProvider so spans started by
// startReplySpan actually have somewhere to be sampled and recorded.
package sagabus

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

var tracer = otel.Tracer("github.com/hyzhak/sagabus")

// InitTracing installs a process-wide TracerProvider tagged with
// serviceName and returns a shutdown func the caller should defer.
// No exporter or span processor is attached here: the provider samples
// every span and gives it a valid span context, which is enough for the
// traceparent pass-through this package relies on, and ended spans are
// not retained. Exporter choice (OTLP, stdout, ...) is left to the
// embedding process.
func InitTracing(serviceName string) func(context.Context) error {
	res, err := sdkresource.Merge(sdkresource.Default(),
		sdkresource.NewSchemaless(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		res = sdkresource.Default()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

// startReplySpan opens the span that wraps a single reply-reader wait.
func startReplySpan(ctx context.Context, stream, correlationID, requestID string, timeout time.Duration) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "read_replies",
		trace.WithAttributes(
			attribute.String("stream", stream),
			attribute.String("correlation_id", correlationID),
			attribute.String("request_id", requestID),
			attribute.Int64("timeout_ms", timeout.Milliseconds()),
		),
	)
	return ctx, span
}

// traceparentFromContext extracts a W3C traceparent-shaped string from
// the current span context, for pass-through on command entries.
// Returns "" if the context carries no valid span context.
func traceparentFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return "00-" + sc.TraceID().String() + "-" + sc.SpanID().String() + "-" + sc.TraceFlags().String()
}
