package query

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/jonwraymond/querysync/key"
	"github.com/jonwraymond/querysync/observe"
)

// Mutation describes one kind of write.
type Mutation[I, O any] struct {
	// Kind names the mutation in the client's Table (required).
	Kind string

	// Do performs the write (required).
	Do func(ctx context.Context, in I) (O, error)

	// Invalidates returns extra prefixes to invalidate after a successful
	// write, on top of the Table entry for Kind.
	Invalidates func(in I, out O) []key.Key
}

// Mutator runs a Mutation and invalidates dependent keys on success.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Errors: failed writes are never retried, invalidate nothing and are
//     returned unchanged.
type Mutator[I, O any] struct {
	c        *Client
	m        Mutation[I, O]
	prefixes []key.Key
	pending  atomic.Int64
}

// NewMutator binds m to c. The kind must be declared in the client's
// Table unless m.Invalidates is set.
func NewMutator[I, O any](c *Client, m Mutation[I, O]) (*Mutator[I, O], error) {
	if m.Kind == "" || m.Do == nil {
		return nil, fmt.Errorf("%w: mutation needs a kind and a write function", ErrInvalidConfig)
	}
	prefixes, ok := c.table.Prefixes(m.Kind)
	if !ok && m.Invalidates == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMutation, m.Kind)
	}
	return &Mutator[I, O]{c: c, m: m, prefixes: prefixes}, nil
}

type mutationIDKey struct{}

// MutationID returns the id of the mutation running under ctx, for use as
// an idempotency key by the write function.
func MutationID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(mutationIDKey{}).(string)
	return id, ok
}

// Mutate performs the write. After it succeeds every key under the
// declared prefixes is invalidated before Mutate returns.
func (m *Mutator[I, O]) Mutate(ctx context.Context, in I) (O, error) {
	var zero O
	if m.c.isClosed() {
		return zero, ErrClosed
	}

	m.pending.Add(1)
	defer m.pending.Add(-1)

	id := uuid.NewString()
	ctx = context.WithValue(ctx, mutationIDKey{}, id)
	meta := observe.QueryMeta{Op: observe.OpMutate, Resource: m.m.Kind}

	res, err := m.c.mw.Wrap(func(ctx context.Context, _ observe.QueryMeta) (any, error) {
		return m.m.Do(ctx, in)
	})(ctx, meta)
	if err != nil {
		return zero, err
	}
	out, _ := res.(O)

	prefixes := m.prefixes
	if m.m.Invalidates != nil {
		prefixes = append(append([]key.Key(nil), prefixes...), m.m.Invalidates(in, out)...)
	}
	n := m.c.Invalidate(ctx, prefixes...)

	m.c.mw.Logger().WithQuery(meta).Debug(ctx, "mutation applied",
		observe.Field{Key: "mutation_id", Value: id},
		observe.Field{Key: "invalidated", Value: n},
	)
	return out, nil
}

// IsPending reports whether a Mutate call is running.
func (m *Mutator[I, O]) IsPending() bool {
	return m.pending.Load() > 0
}

// Kind returns the mutation kind.
func (m *Mutator[I, O]) Kind() string { return m.m.Kind }
