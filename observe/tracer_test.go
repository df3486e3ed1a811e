package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestQueryMeta_SpanName(t *testing.T) {
	tests := []struct {
		name string
		meta QueryMeta
		want string
	}{
		{"default op", QueryMeta{Resource: "roles"}, "query.fetch.roles"},
		{"fetch", QueryMeta{Op: OpFetch, Resource: "doctors"}, "query.fetch.doctors"},
		{"mutate", QueryMeta{Op: OpMutate, Resource: "appointment.create"}, "query.mutate.appointment.create"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.meta.SpanName(); got != tc.want {
				t.Errorf("SpanName() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTracer_SpanAttributes(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tr := NewTracer(tp.Tracer("test"))

	meta := QueryMeta{Resource: "appointments", Key: `appointments?{"page":1}`, RequestID: 7}
	_, span := tr.StartSpan(context.Background(), meta)
	tr.EndSpan(span, nil)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}

	if v := attrs["query.resource"]; v.AsString() != "appointments" {
		t.Errorf("query.resource = %q", v.AsString())
	}
	if v := attrs["query.key"]; v.AsString() != meta.Key {
		t.Errorf("query.key = %q", v.AsString())
	}
	if v := attrs["query.request_id"]; v.AsInt64() != 7 {
		t.Errorf("query.request_id = %d", v.AsInt64())
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", spans[0].Status().Code)
	}
}

func TestTracer_EndSpanWithError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tr := NewTracer(tp.Tracer("test"))

	_, span := tr.StartSpan(context.Background(), QueryMeta{Resource: "roles"})
	tr.EndSpan(span, errors.New("server error 503"))

	s := recorder.Ended()[0]
	if s.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", s.Status().Code)
	}
	if len(s.Events()) == 0 {
		t.Error("expected a recorded error event")
	}
}

func TestNoopTracer(t *testing.T) {
	tr := NewNoopTracer()
	_, span := tr.StartSpan(context.Background(), QueryMeta{Resource: "roles"})
	tr.EndSpan(span, errors.New("ignored"))
}
