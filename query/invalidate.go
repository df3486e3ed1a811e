package query

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/querysync/key"
	"github.com/jonwraymond/querysync/observe"
	"github.com/jonwraymond/querysync/policy"
	"github.com/jonwraymond/querysync/store"
)

// Invalidate marks every entry under any of prefixes stale. Values are
// kept. Entries with subscribers, and entries with a fetch in flight, are
// refetched in the background; the new fetch replaces the one in flight, so
// callers waiting on it or arriving later receive post-invalidation data.
// It returns the number of entries marked.
func (c *Client) Invalidate(ctx context.Context, prefixes ...key.Key) int {
	if len(prefixes) == 0 || c.isClosed() {
		return 0
	}

	perResource := make(map[string]int)
	var eager []key.Key
	for _, k := range c.store.Match(prefixes...) {
		e, ok := c.store.Update(k, func(e *store.Entry) { e.Invalidate() })
		if !ok {
			continue
		}
		perResource[k.Resource()]++
		if e.Subscribers > 0 || e.InFlight() {
			eager = append(eager, k)
		}
	}

	marked := 0
	for resource, n := range perResource {
		c.mw.Metrics().RecordInvalidation(ctx, resource, n)
		marked += n
	}

	for _, k := range eager {
		c.refetch(k, WithSupersede())
	}
	return marked
}

// refetch starts a background fetch of k with the last fetcher used for it.
// It reports whether a fetch now serves k.
func (c *Client) refetch(k key.Key, opts ...FetchOption) bool {
	fetch := c.fetcherFor(k)
	if fetch == nil {
		return false
	}
	var o fetchOptions
	for _, opt := range opts {
		opt(&o)
	}
	f, _, err := c.start(k, fetch, o)
	return err == nil && f != nil
}

// Focus revalidates subscribed entries whose policy sets RefetchOnFocus.
// Fresh entries are left alone. It waits for the fetches and returns the
// first error.
func (c *Client) Focus(ctx context.Context) error {
	return c.revalidate(ctx, func(p policy.Policy) bool { return p.RefetchOnFocus })
}

// Reconnect revalidates subscribed entries whose policy sets
// RefetchOnReconnect.
func (c *Client) Reconnect(ctx context.Context) error {
	return c.revalidate(ctx, func(p policy.Policy) bool { return p.RefetchOnReconnect })
}

func (c *Client) revalidate(ctx context.Context, opted func(policy.Policy) bool) error {
	if c.isClosed() {
		return ErrClosed
	}
	keys := c.store.FindAllMatching(func(e store.Entry) bool {
		return e.Subscribers > 0 && opted(e.Policy)
	})

	var g errgroup.Group
	for _, k := range keys {
		fetch := c.fetcherFor(k)
		if fetch == nil {
			continue
		}
		g.Go(func() error {
			_, err := c.EnsureFresh(ctx, k, fetch)
			return err
		})
	}
	return g.Wait()
}

// Request pairs a key with the fetcher that loads it.
type Request struct {
	Key   key.Key
	Fetch Fetcher
}

// Prefetch warms the cache for reqs concurrently. Fresh entries are not
// refetched. It returns the first error; the remaining waits are cancelled
// but their fetches complete.
func (c *Client) Prefetch(ctx context.Context, reqs ...Request) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.PrefetchConcurrency)
	for _, r := range reqs {
		g.Go(func() error {
			_, err := c.EnsureFresh(gctx, r.Key, r.Fetch)
			return err
		})
	}
	return g.Wait()
}

// Maintain evicts unused entries past their grace period and starts
// interval refetches for subscribed entries that are due. It returns the
// number of evicted entries and started refetches.
func (c *Client) Maintain(ctx context.Context) (evicted, refetched int) {
	if c.isClosed() {
		return 0, 0
	}

	gone := c.store.Sweep()
	if len(gone) > 0 {
		c.mu.Lock()
		for _, k := range gone {
			delete(c.fetchers, k.String())
		}
		c.mu.Unlock()
		c.mw.Logger().Debug(ctx, "evicted unused entries", observe.Field{Key: "count", Value: len(gone)})
	}

	now := c.now()
	due := c.store.FindAllMatching(func(e store.Entry) bool {
		interval := e.Policy.RefetchInterval
		return interval > 0 && e.Subscribers > 0 && !e.InFlight() && now.Sub(e.FetchedAt) >= interval
	})
	for _, k := range due {
		if c.refetch(k, WithForceRefresh()) {
			refetched++
		}
	}
	return len(gone), refetched
}

// Run calls Maintain every SweepInterval until ctx is done or the client
// is closed.
func (c *Client) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.ctx.Done():
			return ErrClosed
		case <-ticker.C:
			c.Maintain(ctx)
		}
	}
}
