package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// ReportResponse is the JSON body served by Handler.
type ReportResponse struct {
	Status    string                   `json:"status"`
	CheckedAt string                   `json:"checked_at"`
	Checks    map[string]CheckResponse `json:"checks,omitempty"`
}

// CheckResponse is the JSON form of a Result.
type CheckResponse struct {
	Status   string         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Duration string         `json:"duration,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func toCheckResponse(r Result) CheckResponse {
	out := CheckResponse{
		Status:   r.Status.String(),
		Message:  r.Message,
		Duration: r.Duration.String(),
		Details:  r.Details,
	}
	if r.Error != nil {
		out.Error = r.Error.Error()
	}
	return out
}

func statusCode(s Status) int {
	if s == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// Handler serves the aggregate report as JSON. A query parameter
// "check" restricts the response to one checker. Unhealthy reports are
// served with 503.
func Handler(agg *Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if name := r.URL.Query().Get("check"); name != "" {
			result, err := agg.Check(r.Context(), name)
			if err != nil {
				w.WriteHeader(http.StatusNotFound)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}
			w.WriteHeader(statusCode(result.Status))
			_ = json.NewEncoder(w).Encode(toCheckResponse(result))
			return
		}

		report, err := agg.CheckAll(r.Context())
		if err != nil && !errors.Is(err, ErrNoCheckers) {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		if report.CheckedAt.IsZero() {
			report.CheckedAt = time.Now()
		}

		resp := ReportResponse{
			Status:    report.Status.String(),
			CheckedAt: report.CheckedAt.UTC().Format(time.RFC3339),
			Checks:    make(map[string]CheckResponse, len(report.Results)),
		}
		for name, result := range report.Results {
			resp.Checks[name] = toCheckResponse(result)
		}
		w.WriteHeader(statusCode(report.Status))
		_ = json.NewEncoder(w).Encode(resp)
	}
}
