package observe

import (
	"context"
	"time"
)

// OperationFunc is the signature of an observed fetch or mutation.
type OperationFunc func(ctx context.Context, meta QueryMeta) (any, error)

// Middleware wraps cache operations with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: Wrap returns a thread-safe OperationFunc.
//   - Errors: errors from the wrapped function are recorded and returned unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a Middleware. Nil components are replaced by no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = NewNoopTracer()
	}
	if metrics == nil {
		metrics = NewNoopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// NopMiddleware returns a middleware that records nothing.
func NopMiddleware() *Middleware {
	return NewMiddleware(nil, nil, nil)
}

// Metrics returns the metrics sink used by the middleware.
func (m *Middleware) Metrics() Metrics { return m.metrics }

// Logger returns the logger used by the middleware.
func (m *Middleware) Logger() Logger { return m.logger }

// Wrap wraps fn with a span, operation metrics and a completion log line.
func (m *Middleware) Wrap(fn OperationFunc) OperationFunc {
	return func(ctx context.Context, meta QueryMeta) (any, error) {
		ctx, span := m.tracer.StartSpan(ctx, meta)
		start := time.Now()

		result, err := fn(ctx, meta)

		duration := time.Since(start)
		m.tracer.EndSpan(span, err)
		m.metrics.RecordOperation(ctx, meta, duration, err)

		logger := m.logger.WithQuery(meta)
		fields := []Field{
			{Key: "duration_ms", Value: float64(duration.Milliseconds())},
		}
		if err != nil {
			fields = append(fields, Field{Key: "error", Value: err.Error()})
			logger.Warn(ctx, "query "+string(meta.Operation())+" failed", fields...)
		} else {
			logger.Debug(ctx, "query "+string(meta.Operation())+" completed", fields...)
		}

		return result, err
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := newMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}
