package query

import "errors"

var (
	// ErrClosed is returned by operations on a closed Client.
	ErrClosed = errors.New("query: client closed")

	// ErrUnknownResource is returned when a mutation table names a resource
	// that has no registered policy.
	ErrUnknownResource = errors.New("query: unknown resource")

	// ErrUnknownMutation is returned for a mutation kind with no table entry
	// and no invalidation function.
	ErrUnknownMutation = errors.New("query: unknown mutation kind")

	// ErrCleared is returned to callers of a fetch that Clear abandoned
	// before it began.
	ErrCleared = errors.New("query: cache cleared")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("query: invalid config")

	// ErrNilFetcher is returned when a read is attempted without a fetcher.
	ErrNilFetcher = errors.New("query: nil fetcher")

	// ErrTypeMismatch is returned when a cached value does not have the
	// type the typed accessor expects.
	ErrTypeMismatch = errors.New("query: cached value has unexpected type")
)
