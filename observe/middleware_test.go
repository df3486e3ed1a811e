package observe

import (
	"bytes"
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestMiddleware_SuccessPath(t *testing.T) {
	spanRecorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spanRecorder))

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := newMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatal(err)
	}

	mw := NewMiddleware(NewTracer(tp.Tracer("test")), metrics, nil)
	wrapped := mw.Wrap(func(ctx context.Context, meta QueryMeta) (any, error) {
		return []string{"admin"}, nil
	})

	result, err := wrapped(context.Background(), QueryMeta{Resource: "roles"})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if got := result.([]string); len(got) != 1 || got[0] != "admin" {
		t.Errorf("result = %v", result)
	}

	spans := spanRecorder.Ended()
	if len(spans) != 1 || spans[0].Name() != "query.fetch.roles" {
		t.Fatalf("unexpected spans: %v", spans)
	}
	if got := sumValue(t, collect(t, reader), "query.op.total"); got != 1 {
		t.Errorf("query.op.total = %d, want 1", got)
	}
}

func TestMiddleware_ErrorPath(t *testing.T) {
	var buf bytes.Buffer
	mw := NewMiddleware(nil, nil, NewLoggerWithWriter("info", &buf))

	boom := errors.New("server error 500")
	wrapped := mw.Wrap(func(ctx context.Context, meta QueryMeta) (any, error) {
		return nil, boom
	})

	_, err := wrapped(context.Background(), QueryMeta{Op: OpMutate, Resource: "appointment.create"})
	if err != boom {
		t.Fatalf("error = %v, want unchanged %v", err, boom)
	}

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(entries))
	}
	if entries[0]["msg"] != "query mutate failed" || entries[0]["error"] != boom.Error() {
		t.Errorf("unexpected log entry: %v", entries[0])
	}
}

func TestMiddlewareFromObserver(t *testing.T) {
	if _, err := MiddlewareFromObserver(nil); !errors.Is(err, ErrNilObserver) {
		t.Errorf("expected ErrNilObserver, got %v", err)
	}

	obs, err := NewObserver(context.Background(), Config{ServiceName: "clinic-web"})
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}
	mw, err := MiddlewareFromObserver(obs)
	if err != nil || mw == nil {
		t.Fatalf("MiddlewareFromObserver() = %v, %v", mw, err)
	}
	if mw.Metrics() == nil || mw.Logger() == nil {
		t.Error("middleware components should be set")
	}
}
