package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Operation names the kind of cache operation being observed.
type Operation string

const (
	// OpFetch is a read of server state through the fetch coordinator.
	OpFetch Operation = "fetch"
	// OpMutate is a write followed by invalidation.
	OpMutate Operation = "mutate"
)

// QueryMeta describes one observed operation.
type QueryMeta struct {
	Op        Operation // Defaults to OpFetch
	Resource  string    // Resource name, or mutation kind for OpMutate (required)
	Key       string    // Canonical key (optional)
	RequestID uint64    // In-flight request id (optional)
}

// Operation returns Op, defaulting to OpFetch.
func (m QueryMeta) Operation() Operation {
	if m.Op == "" {
		return OpFetch
	}
	return m.Op
}

// SpanName returns the deterministic span name.
// Format: query.<op>.<resource>
func (m QueryMeta) SpanName() string {
	return "query." + string(m.Operation()) + "." + m.Resource
}

// Tracer wraps OpenTelemetry tracing for cache operations.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a span for the operation.
	StartSpan(ctx context.Context, meta QueryMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

// StartSpan starts a client span carrying the query attributes.
func (t *tracerImpl) StartSpan(ctx context.Context, meta QueryMeta) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("query.op", string(meta.Operation())),
		attribute.String("query.resource", meta.Resource),
		attribute.Bool("query.error", false),
	}
	if meta.Key != "" {
		attrs = append(attrs, attribute.String("query.key", meta.Key))
	}
	if meta.RequestID != 0 {
		attrs = append(attrs, attribute.Int64("query.request_id", int64(meta.RequestID)))
	}

	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("query.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

// NewNoopTracer returns a tracer that records nothing.
func NewNoopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta QueryMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
