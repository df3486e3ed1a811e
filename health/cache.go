package health

import (
	"context"

	"github.com/jonwraymond/querysync/query"
	"github.com/jonwraymond/querysync/store"
)

// CacheConfig sets the thresholds for a cache check.
type CacheConfig struct {
	// Name of the check.
	// Default: "query-cache"
	Name string

	// DegradedRatio is the share of entries in error above which the
	// cache reports degraded.
	// Default: 0.25
	DegradedRatio float64

	// UnhealthyRatio is the share of entries in error above which the
	// cache reports unhealthy.
	// Default: 0.75
	UnhealthyRatio float64

	// MaxEntries reports degraded once the store holds more entries.
	// Zero disables the limit.
	MaxEntries int
}

// CacheChecker reports the state of a query client's store.
type CacheChecker struct {
	client *query.Client
	cfg    CacheConfig
}

// NewCacheChecker creates a checker over client.
func NewCacheChecker(client *query.Client, cfg CacheConfig) *CacheChecker {
	if cfg.Name == "" {
		cfg.Name = "query-cache"
	}
	if cfg.DegradedRatio <= 0 {
		cfg.DegradedRatio = 0.25
	}
	if cfg.UnhealthyRatio <= 0 {
		cfg.UnhealthyRatio = 0.75
	}
	return &CacheChecker{client: client, cfg: cfg}
}

// Name implements Checker.
func (c *CacheChecker) Name() string { return c.cfg.Name }

// Check implements Checker.
func (c *CacheChecker) Check(ctx context.Context) Result {
	if c.client.Closed() {
		return Unhealthy("cache closed", ErrCacheClosed)
	}

	st := c.client.Store().Stats()
	details := map[string]any{
		"entries":    st.Entries,
		"subscribed": st.Subscribed,
		"in_flight":  st.InFlight,
		"idle":       st.ByStatus[store.StatusIdle],
		"loading":    st.ByStatus[store.StatusLoading],
		"success":    st.ByStatus[store.StatusSuccess],
		"error":      st.ByStatus[store.StatusError],
	}

	var ratio float64
	if st.Entries > 0 {
		ratio = float64(st.ByStatus[store.StatusError]) / float64(st.Entries)
	}
	details["error_ratio"] = ratio

	var r Result
	switch {
	case ratio > c.cfg.UnhealthyRatio:
		r = Unhealthy("most queries failing", ErrCheckFailed)
	case ratio > c.cfg.DegradedRatio:
		r = Degraded("some queries failing")
	case c.cfg.MaxEntries > 0 && st.Entries > c.cfg.MaxEntries:
		r = Degraded("entry count above limit")
	default:
		r = Healthy("cache serving")
	}
	return r.WithDetails(details)
}
