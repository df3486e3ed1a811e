package observe

import "errors"

// Configuration errors.
var (
	ErrMissingServiceName     = errors.New("observe: service name is required")
	ErrInvalidSamplePct       = errors.New("observe: sample percentage must be between 0.0 and 1.0")
	ErrInvalidTracingExporter = errors.New("observe: invalid tracing exporter")
	ErrInvalidMetricsExporter = errors.New("observe: invalid metrics exporter")
	ErrInvalidLogLevel        = errors.New("observe: invalid log level")
)

// ErrNilObserver is returned by MiddlewareFromObserver for a nil Observer.
var ErrNilObserver = errors.New("observe: observer is nil")

// RedactedFields lists field keys whose values are replaced in logs.
// Session tokens and patient-identifying inputs must never reach log sinks.
var RedactedFields = []string{
	"input",
	"password",
	"secret",
	"token",
	"authorization",
	"api_key",
	"credential",
}
