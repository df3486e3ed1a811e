package query

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/querysync/key"
	"github.com/jonwraymond/querysync/observe"
	"github.com/jonwraymond/querysync/policy"
	"github.com/jonwraymond/querysync/resilience"
	"github.com/jonwraymond/querysync/store"
)

// Fetcher loads the current server value for one key.
type Fetcher func(ctx context.Context) (any, error)

// Client coordinates fetches, invalidation and subscriptions over a store.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Context: a caller's context bounds only its own wait. Fetches run on
//     the client's context and are cancelled by Close.
//   - Errors: fetch errors are returned unchanged after retries are spent.
type Client struct {
	store    *store.Store
	policies *policy.Registry
	table    Table
	exec     *resilience.Attempts
	mw       *observe.Middleware
	now      func() time.Time
	cfg      Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	flights  map[string]*flight
	fetchers map[string]Fetcher
	nextID   uint64
	closed   bool

	// epoch advances on every Clear; it is written under mu.
	epoch atomic.Uint64
}

// flight is one outstanding fetch for a key. val and err are written once
// before done is closed; next is guarded by Client.mu.
type flight struct {
	id      uint64
	key     key.Key
	epoch   uint64
	done    chan struct{}
	val     any
	err     error
	applied bool
	next    *flight
}

// NewClient creates a Client and its store.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		store: store.New(store.Config{
			Policies: cfg.Policies,
			Clock:    cfg.Clock,
		}),
		policies: cfg.Policies,
		table:    cfg.Table,
		exec:     resilience.NewAttempts(resilience.NewRetry(cfg.Retry), cfg.AttemptTimeout),
		mw:       cfg.Middleware,
		now:      cfg.Clock,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		flights:  make(map[string]*flight),
		fetchers: make(map[string]Fetcher),
	}
	return c, nil
}

// Store returns the underlying entry store.
func (c *Client) Store() *store.Store { return c.store }

// Policies returns the policy registry shared with the store.
func (c *Client) Policies() *policy.Registry { return c.policies }

// Table returns the mutation table.
func (c *Client) Table() Table { return c.table }

// Register binds a staleness policy to a resource. Entries created after
// registration use p; existing entries keep the policy they were created
// with.
func (c *Client) Register(resource string, p policy.Policy) error {
	return c.policies.Register(resource, p)
}

// FetchOption tunes a single EnsureFresh call.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	force     bool
	supersede bool
}

// WithForceRefresh skips the freshness check. A fetch already in flight is
// joined rather than restarted.
func WithForceRefresh() FetchOption {
	return func(o *fetchOptions) { o.force = true }
}

// WithSupersede starts a new fetch even when one is in flight. The older
// fetch's response is discarded and its waiters receive the new outcome.
func WithSupersede() FetchOption {
	return func(o *fetchOptions) {
		o.force = true
		o.supersede = true
	}
}

// EnsureFresh returns the value for k, fetching it when the cached entry is
// missing or stale. Concurrent callers for the same key share one fetch.
func (c *Client) EnsureFresh(ctx context.Context, k key.Key, fetch Fetcher, opts ...FetchOption) (any, error) {
	if fetch == nil {
		return nil, ErrNilFetcher
	}
	var o fetchOptions
	for _, opt := range opts {
		opt(&o)
	}

	f, hit, err := c.start(k, fetch, o)
	if err != nil {
		return nil, err
	}
	if f == nil {
		c.mw.Metrics().RecordCacheHit(ctx, k.Resource())
		return hit.Value, nil
	}
	return c.wait(ctx, f)
}

// start returns the flight serving k, beginning one unless a fetch is
// already in flight or the cached entry is fresh. A nil flight means hit
// may be served as is. The flight is registered before start returns, so
// later callers join it.
func (c *Client) start(k key.Key, fetch Fetcher, o fetchOptions) (*flight, store.Entry, error) {
	id := k.String()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, store.Entry{}, ErrClosed
	}
	c.fetchers[id] = fetch

	cur := c.flights[id]
	if cur != nil && !o.supersede {
		c.mu.Unlock()
		return cur, store.Entry{}, nil
	}
	if cur == nil && !o.force {
		if e, ok := c.store.Get(k); ok && e.IsFresh(c.now()) {
			c.mu.Unlock()
			return nil, e, nil
		}
	}

	c.nextID++
	f := &flight{id: c.nextID, key: k, epoch: c.epoch.Load(), done: make(chan struct{})}
	if cur != nil {
		cur.next = f
	}
	c.flights[id] = f
	c.wg.Add(1)
	c.mu.Unlock()

	if !c.begin(f) {
		f.err = ErrCleared
		c.finish(f)
		c.wg.Done()
		return f, store.Entry{}, nil
	}
	go c.run(f, fetch)
	return f, store.Entry{}, nil
}

// begin marks f's entry loading under f's id. It reports false, leaving
// the store untouched, when Clear ran after f was registered.
func (c *Client) begin(f *flight) bool {
	_, ok := c.store.UpsertIf(f.key,
		func() bool { return c.epoch.Load() == f.epoch },
		func(e *store.Entry) { e.Begin(f.id) },
	)
	return ok
}

// wait blocks until f settles, following superseding flights.
func (c *Client) wait(ctx context.Context, f *flight) (any, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-f.done:
		}

		c.mu.Lock()
		next := f.next
		c.mu.Unlock()
		if f.applied || next == nil {
			return f.val, f.err
		}
		f = next
	}
}

func (c *Client) run(f *flight, fetch Fetcher) {
	defer c.wg.Done()

	c.mu.Lock()
	superseded := f.next != nil
	c.mu.Unlock()
	if superseded {
		f.err = resilience.ErrStaleResponse
		c.finish(f)
		return
	}

	meta := observe.QueryMeta{
		Op:        observe.OpFetch,
		Resource:  f.key.Resource(),
		Key:       f.key.String(),
		RequestID: f.id,
	}
	f.val, f.err = c.mw.Wrap(func(ctx context.Context, _ observe.QueryMeta) (any, error) {
		return c.attempt(ctx, fetch)
	})(c.ctx, meta)

	at := c.now()
	c.store.Update(f.key, func(e *store.Entry) {
		if e.InflightID != f.id {
			return
		}
		f.applied = true
		if f.err != nil {
			e.Fail(f.err)
			return
		}
		e.Resolve(f.val, at)
	})
	if !f.applied {
		c.mw.Logger().WithQuery(meta).Debug(c.ctx, "stale response discarded")
	}
	c.finish(f)
}

// attempt runs fetch under the retry and timeout policy. A result from an
// attempt that was abandoned on timeout is never returned.
func (c *Client) attempt(ctx context.Context, fetch Fetcher) (any, error) {
	var (
		mu     sync.Mutex
		result any
	)
	err := c.exec.Do(ctx, func(ctx context.Context) error {
		v, err := fetch(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		if err := ctx.Err(); err != nil {
			return err
		}
		result = v
		return nil
	})

	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) finish(f *flight) {
	id := f.key.String()
	c.mu.Lock()
	if c.flights[id] == f {
		delete(c.flights, id)
	}
	c.mu.Unlock()
	close(f.done)
}

// Peek returns the cached entry for k without fetching.
func (c *Client) Peek(k key.Key) (store.Entry, bool) {
	return c.store.Get(k)
}

// SetData writes v as the cached value for k, as if just fetched. An
// outstanding fetch for k still applies when it completes.
func (c *Client) SetData(k key.Key, v any) store.Entry {
	at := c.now()
	return c.store.Upsert(k, func(e *store.Entry) { e.Seed(v, at) })
}

// Clear drops every entry's data and forgets outstanding fetches.
// Responses of fetches started before Clear are not written back, and
// observed keys stay attached to their observations. It returns the number
// of entries cleared.
func (c *Client) Clear() int {
	c.mu.Lock()
	c.epoch.Add(1)
	c.flights = make(map[string]*flight)
	fetchers := make(map[string]Fetcher)
	for _, k := range c.store.FindAllMatching(func(e store.Entry) bool { return e.Subscribers > 0 }) {
		if fetch, ok := c.fetchers[k.String()]; ok {
			fetchers[k.String()] = fetch
		}
	}
	c.fetchers = fetchers
	c.mu.Unlock()

	return c.store.Clear()
}

// Close cancels outstanding fetches and waits for them to finish. Further
// calls return ErrClosed; Close itself is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}

// spawn runs fn in a tracked goroutine unless the client is closed.
func (c *Client) spawn(fn func()) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		fn()
	}()
	return true
}

func (c *Client) fetcherFor(k key.Key) Fetcher {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchers[k.String()]
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool { return c.isClosed() }

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
