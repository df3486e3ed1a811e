package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serve(t *testing.T, agg *Aggregator, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler(agg)(rec, httptest.NewRequest(http.MethodGet, target, nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON %q: %v", rec.Body.String(), err)
	}
	return rec, body
}

func TestHandler_Report(t *testing.T) {
	tests := []struct {
		name   string
		checks []Checker
		code   int
		status string
	}{
		{"no checks", nil, http.StatusOK, "healthy"},
		{"healthy", []Checker{fixed("cache", Healthy("ok"))}, http.StatusOK, "healthy"},
		{"degraded", []Checker{fixed("cache", Degraded("some failing"))}, http.StatusOK, "degraded"},
		{"unhealthy", []Checker{fixed("cache", Unhealthy("closed", ErrCacheClosed))}, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator(AggregatorConfig{})
			for _, c := range tt.checks {
				agg.Register(c)
			}

			rec, body := serve(t, agg, "/health")
			if rec.Code != tt.code {
				t.Errorf("code = %d, want %d", rec.Code, tt.code)
			}
			if body["status"] != tt.status {
				t.Errorf("status = %v, want %s", body["status"], tt.status)
			}
			if body["checked_at"] == "" {
				t.Error("checked_at missing")
			}
		})
	}
}

func TestHandler_ReportIncludesErrors(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{})
	agg.Register(fixed("cache", Unhealthy("closed", ErrCacheClosed)))

	_, body := serve(t, agg, "/health")
	checks, _ := body["checks"].(map[string]any)
	cache, _ := checks["cache"].(map[string]any)
	if cache["error"] != ErrCacheClosed.Error() {
		t.Errorf("checks = %v", body["checks"])
	}
}

func TestHandler_SingleCheck(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{})
	agg.Register(fixed("cache", Degraded("some failing").WithDetails(map[string]any{"error": 2})))

	rec, body := serve(t, agg, "/health?check=cache")
	if rec.Code != http.StatusOK || body["status"] != "degraded" {
		t.Errorf("single check = %d %v", rec.Code, body)
	}
	details, _ := body["details"].(map[string]any)
	if details["error"] != float64(2) {
		t.Errorf("details = %v", body["details"])
	}

	rec, body = serve(t, agg, "/health?check=missing")
	if rec.Code != http.StatusNotFound || body["error"] == nil {
		t.Errorf("missing check = %d %v", rec.Code, body)
	}
}
