package health

import "errors"

var (
	// ErrCheckFailed is attached to unhealthy aggregate results.
	ErrCheckFailed = errors.New("health: check failed")

	// ErrCheckTimeout is attached to checks that outlived the pass timeout.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCheckerNotFound is returned by Check for an unknown name.
	ErrCheckerNotFound = errors.New("health: checker not found")

	// ErrNoCheckers is returned by CheckAll when nothing is registered.
	ErrNoCheckers = errors.New("health: no checkers registered")

	// ErrCacheClosed is attached to cache checks after the client closed.
	ErrCacheClosed = errors.New("health: cache closed")
)
