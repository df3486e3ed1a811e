// Package session binds the cache to the signed-in user.
//
// A Session decodes the bearer token (JWT) for its principal, roles and
// expiry, authorizes outgoing HTTP requests through Transport, refreshes the
// token before it expires, and clears the query cache on sign-out or when
// a different principal signs in.
package session
