// Package observe provides observability primitives for the query cache.
//
// It is a pure instrumentation library: structured JSON logging, an
// OpenTelemetry tracer and metric instruments for fetches, mutations,
// cache hits and invalidations, and exporter setup. The query client wires
// a Middleware around every fetch attempt sequence and every mutation.
package observe
