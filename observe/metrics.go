package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records cache activity.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordOperation records one fetch or mutation with its outcome.
	RecordOperation(ctx context.Context, meta QueryMeta, duration time.Duration, err error)

	// RecordCacheHit records a read served from fresh cached data.
	RecordCacheHit(ctx context.Context, resource string)

	// RecordInvalidation records how many entries a prefix marked stale.
	RecordInvalidation(ctx context.Context, resource string, entries int)
}

type metricsImpl struct {
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
	hitCount     metric.Int64Counter
	invalidated  metric.Int64Counter
}

// NewMetrics creates the cache instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	return newMetrics(meter)
}

func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	totalCount, err := meter.Int64Counter(
		"query.op.total",
		metric.WithDescription("Total number of fetches and mutations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"query.op.errors",
		metric.WithDescription("Total number of failed fetches and mutations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"query.op.duration_ms",
		metric.WithDescription("Fetch and mutation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	hitCount, err := meter.Int64Counter(
		"query.cache.hits",
		metric.WithDescription("Reads served from fresh cached data"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	invalidated, err := meter.Int64Counter(
		"query.invalidations",
		metric.WithDescription("Entries marked stale by invalidation"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		totalCount:   totalCount,
		errorCount:   errorCount,
		durationHist: durationHist,
		hitCount:     hitCount,
		invalidated:  invalidated,
	}, nil
}

func (m *metricsImpl) RecordOperation(ctx context.Context, meta QueryMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(
		attribute.String("query.op", string(meta.Operation())),
		attribute.String("query.resource", meta.Resource),
	)

	m.totalCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordCacheHit(ctx context.Context, resource string) {
	m.hitCount.Add(ctx, 1, metric.WithAttributes(attribute.String("query.resource", resource)))
}

func (m *metricsImpl) RecordInvalidation(ctx context.Context, resource string, entries int) {
	if entries <= 0 {
		return
	}
	m.invalidated.Add(ctx, int64(entries), metric.WithAttributes(attribute.String("query.resource", resource)))
}

type noopMetrics struct{}

// NewNoopMetrics returns metrics that record nothing.
func NewNoopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) RecordOperation(context.Context, QueryMeta, time.Duration, error) {}
func (noopMetrics) RecordCacheHit(context.Context, string)                          {}
func (noopMetrics) RecordInvalidation(context.Context, string, int)                 {}
