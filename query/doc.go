// Package query coordinates reads and writes of server state through a
// shared entry store.
//
// A Client owns the store and guarantees:
//
//   - At most one fetch per key is in flight; concurrent readers share it.
//   - A response is applied only if its request is still the newest one
//     issued for the key.
//   - Fetch attempts are retried with exponential backoff and bounded by a
//     per-attempt timeout (see package resilience).
//   - Successful mutations invalidate the keys declared in a static Table;
//     subscribed entries are refetched eagerly.
//
// Resource and Mutation are the typed descriptors most callers use:
//
//	appointments := query.Resource[[]Appointment, Page]{
//		Name:  "appointments",
//		Fetch: api.ListAppointments,
//	}
//	list, err := query.Fetch(ctx, client, appointments, Page{Page: 1})
//
// Observe binds a subscriber to a key for as long as a view is alive and
// reports loading, error and refetching state.
package query
