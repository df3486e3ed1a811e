// Package clinic wires the clinic backend into the query cache.
//
// It declares one read resource per list endpoint, their staleness
// policies, and the table of which listings each write invalidates. Roles
// and permissions are reference data; appointments and dashboard counters
// are live data polled while observed.
package clinic
