package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("failed to parse log output as JSON: %v\nOutput: %s", err, line)
		}
		out = append(out, entry)
	}
	return out
}

func TestLogger_IncludesQueryFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.WithQuery(QueryMeta{Resource: "roles", Key: "roles", RequestID: 3}).
		Info(context.Background(), "fetched")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 line, got %d", len(entries))
	}
	e := entries[0]
	if e["query.resource"] != "roles" || e["query.key"] != "roles" || e["query.op"] != "fetch" {
		t.Errorf("missing query fields: %v", e)
	}
	if e["query.request_id"] != float64(3) {
		t.Errorf("query.request_id = %v", e["query.request_id"])
	}
	if e["msg"] != "fetched" || e["level"] != "info" {
		t.Errorf("unexpected entry: %v", e)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("warn", &buf)
	ctx := context.Background()

	logger.Debug(ctx, "debug")
	logger.Info(ctx, "info")
	logger.Warn(ctx, "warn")
	logger.Error(ctx, "error")

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 lines, got %d: %s", len(entries), buf.String())
	}
	if entries[0]["msg"] != "warn" || entries[1]["msg"] != "error" {
		t.Errorf("unexpected entries: %v", entries)
	}
}

func TestLogger_RedactsSensitiveFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("debug", &buf)

	logger.Info(context.Background(), "signed in",
		Field{Key: "token", Value: "eyJhbGciOi..."},
		Field{Key: "principal", Value: "dr-house"},
	)

	e := decodeLines(t, &buf)[0]
	if e["token"] != "[REDACTED]" {
		t.Errorf("token = %v, want [REDACTED]", e["token"])
	}
	if e["principal"] != "dr-house" {
		t.Errorf("principal = %v", e["principal"])
	}
}

func TestLogger_WithQuerySharesWriterLock(t *testing.T) {
	var buf bytes.Buffer
	base := NewLoggerWithWriter("info", &buf).(*structuredLogger)
	child := base.WithQuery(QueryMeta{Resource: "x"}).(*structuredLogger)

	if base.mu != child.mu {
		t.Error("derived loggers must share the writer lock")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLogLevel(tt.in); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNopLogger(t *testing.T) {
	l := NopLogger()
	l.WithQuery(QueryMeta{}).Error(context.Background(), "dropped")
}

func TestLogger_TraceCorrelationAndErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "query.fetch.doctors")
	defer span.End()

	logger.Warn(ctx, "fetch failed",
		Field{Key: "error", Value: errors.New("503 from /doctors")},
		Field{Key: "Authorization", Value: "Bearer abc"},
	)

	e := decodeLines(t, &buf)[0]
	if e["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("trace_id = %v, want %s", e["trace_id"], span.SpanContext().TraceID())
	}
	if e["span_id"] == nil {
		t.Error("span_id missing")
	}
	if e["error"] != "503 from /doctors" {
		t.Errorf("error = %v, want the error text", e["error"])
	}
	if e["Authorization"] != "[REDACTED]" {
		t.Errorf("Authorization = %v, want [REDACTED]", e["Authorization"])
	}
}

func TestLogger_NoTraceOutsideSpan(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerWithWriter("info", &buf).Info(context.Background(), "ready")

	if _, ok := decodeLines(t, &buf)[0]["trace_id"]; ok {
		t.Error("trace_id set without a span")
	}
}
