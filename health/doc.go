// Package health reports whether the query cache is serving.
//
// A Checker returns a Result with a Status of healthy, degraded or
// unhealthy. CacheChecker derives one from a query.Client's store: the
// share of entries whose last fetch failed, the in-flight count and the
// entry count. An Aggregator runs several checkers concurrently under a
// shared timeout and folds them into a Report, and Handler serves that
// report as JSON for embedding applications.
//
//	agg := health.NewAggregator(health.AggregatorConfig{})
//	agg.Register(health.NewCacheChecker(client, health.CacheConfig{}))
//	report, _ := agg.CheckAll(ctx)
package health
