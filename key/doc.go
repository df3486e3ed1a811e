// Package key builds deterministic, hierarchical identifiers for cached
// server queries.
//
// A Key is a resource name plus a canonical rendering of its parameters.
// Parameter maps are sorted recursively and nil-valued fields are dropped,
// so the same logical request always produces the same Key regardless of
// how the caller ordered its fields. Keys with fewer parameters act as
// prefixes of keys for the same resource, which lets a single prefix
// address every filtered variant of a resource at once.
package key
