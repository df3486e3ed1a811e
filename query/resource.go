package query

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/querysync/key"
	"github.com/jonwraymond/querysync/policy"
	"github.com/jonwraymond/querysync/store"
)

// Resource describes one kind of server data: how to key it and how to
// fetch it for a given set of parameters.
type Resource[T, P any] struct {
	// Name is the resource part of every key (required).
	Name string

	// Fetch loads the value for params (required).
	Fetch func(ctx context.Context, params P) (T, error)

	// Policy overrides the registry fallback for this resource.
	Policy *policy.Policy
}

// Key returns the canonical key for params.
func (r Resource[T, P]) Key(params P) (key.Key, error) {
	return key.New(r.Name, params)
}

// Prefix returns the key matching every variant of the resource.
func (r Resource[T, P]) Prefix() key.Key {
	return key.Prefix(r.Name)
}

// Register binds the resource's policy, or the registry fallback when
// Policy is nil, to its name.
func (r Resource[T, P]) Register(reg *policy.Registry) error {
	p, _ := reg.Resolve(r.Name)
	if r.Policy != nil {
		p = *r.Policy
	}
	return reg.Register(r.Name, p)
}

// Request returns a prefetch request for params.
func (r Resource[T, P]) Request(params P) (Request, error) {
	k, err := r.Key(params)
	if err != nil {
		return Request{}, err
	}
	return Request{Key: k, Fetch: r.fetcher(params)}, nil
}

func (r Resource[T, P]) fetcher(params P) Fetcher {
	if r.Fetch == nil {
		return nil
	}
	return func(ctx context.Context) (any, error) {
		return r.Fetch(ctx, params)
	}
}

// Fetch returns the value of r for params, fetching it when stale.
func Fetch[T, P any](ctx context.Context, c *Client, r Resource[T, P], params P, opts ...FetchOption) (T, error) {
	var zero T
	k, err := r.Key(params)
	if err != nil {
		return zero, err
	}
	v, err := c.EnsureFresh(ctx, k, r.fetcher(params), opts...)
	if err != nil {
		return zero, err
	}
	return as[T](k, v)
}

// Peek returns the cached value of r for params without fetching.
func Peek[T, P any](c *Client, r Resource[T, P], params P) (T, bool) {
	var zero T
	k, err := r.Key(params)
	if err != nil {
		return zero, false
	}
	e, ok := c.Peek(k)
	if !ok || !e.HasValue {
		return zero, false
	}
	v, err := as[T](k, e.Value)
	return v, err == nil
}

func as[T any](k key.Key, v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s holds %T", ErrTypeMismatch, k, v)
	}
	return t, nil
}

// State is what a view renders for one observed key.
type State[T any] struct {
	Data    T
	HasData bool
	Status  store.Status
	Err     error

	// IsLoading is true while the first fetch runs and no data exists.
	IsLoading bool
	// IsRefetching is true while a fetch runs over existing data.
	IsRefetching bool
	// IsError is true after retries are spent. Data may still be set.
	IsError bool
	// IsStale is true when the data is no longer fresh.
	IsStale bool

	FetchedAt time.Time
}

func stateOf[T any](e store.Entry, now time.Time) State[T] {
	st := State[T]{
		HasData:   e.HasValue,
		Status:    e.Status,
		Err:       e.Err,
		IsError:   e.Status == store.StatusError,
		IsStale:   !e.IsFresh(now),
		FetchedAt: e.FetchedAt,
	}
	if e.HasValue {
		if v, ok := e.Value.(T); ok {
			st.Data = v
		}
	}
	if e.Status == store.StatusLoading {
		st.IsLoading = !e.HasValue
		st.IsRefetching = e.HasValue
	}
	return st
}

// Observation is a live subscription to one key.
//
// Contract:
//   - Concurrency: safe for concurrent use. The change callback runs on
//     the goroutine that changed the entry and may run concurrently with
//     itself.
//   - Lifecycle: Close releases the subscription; it is idempotent.
type Observation[T any] struct {
	c     *Client
	key   key.Key
	fetch Fetcher
	fn    func(State[T])

	mu    sync.Mutex
	state State[T]
	seq   uint64

	unsubscribe func()
	closed      atomic.Bool
}

// Observe subscribes to r for params and starts a background fetch if the
// entry is not fresh. fn, if non-nil, is called on every visible change.
// Callers must Close the observation when the view goes away.
func Observe[T, P any](ctx context.Context, c *Client, r Resource[T, P], params P, fn func(State[T])) (*Observation[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k, err := r.Key(params)
	if err != nil {
		return nil, err
	}
	fetch := r.fetcher(params)
	if fetch == nil {
		return nil, ErrNilFetcher
	}

	o := &Observation[T]{c: c, key: k, fetch: fetch, fn: fn}
	o.unsubscribe = c.store.Subscribe(k, o.update)
	if e, ok := c.store.Get(k); ok {
		o.update(e)
	}

	c.mu.Lock()
	c.fetchers[k.String()] = fetch
	c.mu.Unlock()

	started := c.spawn(func() {
		_, _ = c.EnsureFresh(c.ctx, k, fetch)
	})
	if !started {
		o.Close()
		return nil, ErrClosed
	}
	return o, nil
}

func (o *Observation[T]) update(e store.Entry) {
	if o.closed.Load() {
		return
	}
	o.mu.Lock()
	if e.Seq <= o.seq {
		o.mu.Unlock()
		return
	}
	o.seq = e.Seq
	o.state = stateOf[T](e, o.c.now())
	st := o.state
	o.mu.Unlock()

	if o.fn != nil {
		o.fn(st)
	}
}

// Key returns the observed key.
func (o *Observation[T]) Key() key.Key { return o.key }

// State returns the latest state.
func (o *Observation[T]) State() State[T] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Refetch forces a fetch of the observed key and waits for it.
func (o *Observation[T]) Refetch(ctx context.Context) error {
	if o.closed.Load() {
		return ErrClosed
	}
	_, err := o.c.EnsureFresh(ctx, o.key, o.fetch, WithForceRefresh())
	return err
}

// Close releases the subscription.
func (o *Observation[T]) Close() {
	if o.closed.CompareAndSwap(false, true) {
		o.unsubscribe()
	}
}
