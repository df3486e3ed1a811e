package clinic

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/querysync/health"
	"github.com/jonwraymond/querysync/policy"
	"github.com/jonwraymond/querysync/query"
)

// ErrNilAPI is returned by NewClient without a backend.
var ErrNilAPI = errors.New("clinic: API is required")

// CRUD holds the write bindings of one collection.
type CRUD[T any] struct {
	Create *query.Mutator[T, T]
	Update *query.Mutator[T, T]
	Delete *query.Mutator[string, struct{}]
}

func newCRUD[T any](c *query.Client, entity string, col Collection[T]) (CRUD[T], error) {
	create, err := query.NewMutator(c, query.Mutation[T, T]{Kind: entity + ".create", Do: col.Create})
	if err != nil {
		return CRUD[T]{}, err
	}
	update, err := query.NewMutator(c, query.Mutation[T, T]{Kind: entity + ".update", Do: col.Update})
	if err != nil {
		return CRUD[T]{}, err
	}
	del, err := query.NewMutator(c, query.Mutation[string, struct{}]{
		Kind: entity + ".delete",
		Do: func(ctx context.Context, id string) (struct{}, error) {
			return struct{}{}, col.Delete(ctx, id)
		},
	})
	if err != nil {
		return CRUD[T]{}, err
	}
	return CRUD[T]{Create: create, Update: update, Delete: del}, nil
}

// Mutations holds the write bindings of the clinic backend.
type Mutations struct {
	Appointments CRUD[Appointment]
	Doctors      CRUD[Doctor]
	Medicines    CRUD[Medicine]
	Treatments   CRUD[Treatment]
	Blogs        CRUD[Blog]
	Roles        CRUD[Role]
	Permissions  CRUD[Permission]
	Users        CRUD[User]
}

// Config configures a clinic Client.
type Config struct {
	// API is the backend client (required).
	API API

	// Query configures the underlying cache. Policies and Table are
	// filled in by NewClient when empty.
	Query query.Config
}

// Client is the clinic's server-state cache: typed reads, typed writes
// and the invalidation rules between them.
type Client struct {
	cache     *query.Client
	Resources Resources
	Mutations Mutations
}

// NewClient registers the clinic resources and builds the cache.
func NewClient(cfg Config) (*Client, error) {
	if cfg.API == nil {
		return nil, ErrNilAPI
	}

	resources := NewResources(cfg.API)

	qcfg := cfg.Query
	if qcfg.Policies == nil {
		qcfg.Policies = policy.NewRegistry(policy.Default())
	}
	if err := resources.Register(qcfg.Policies); err != nil {
		return nil, fmt.Errorf("clinic: register resources: %w", err)
	}
	if qcfg.Table == nil {
		qcfg.Table = Table()
	}

	cache, err := query.NewClient(qcfg)
	if err != nil {
		return nil, err
	}

	m, err := newMutations(cache, cfg.API)
	if err != nil {
		_ = cache.Close()
		return nil, err
	}

	return &Client{cache: cache, Resources: resources, Mutations: m}, nil
}

func newMutations(c *query.Client, api API) (Mutations, error) {
	var (
		m   Mutations
		err error
	)
	if m.Appointments, err = newCRUD(c, "appointment", api.Appointments()); err != nil {
		return m, err
	}
	if m.Doctors, err = newCRUD(c, "doctor", api.Doctors()); err != nil {
		return m, err
	}
	if m.Medicines, err = newCRUD(c, "medicine", api.Medicines()); err != nil {
		return m, err
	}
	if m.Treatments, err = newCRUD(c, "treatment", api.Treatments()); err != nil {
		return m, err
	}
	if m.Blogs, err = newCRUD(c, "blog", api.Blogs()); err != nil {
		return m, err
	}
	if m.Roles, err = newCRUD(c, "role", api.Roles()); err != nil {
		return m, err
	}
	if m.Permissions, err = newCRUD(c, "permission", api.Permissions()); err != nil {
		return m, err
	}
	if m.Users, err = newCRUD(c, "user", api.Users()); err != nil {
		return m, err
	}
	return m, nil
}

// Cache returns the underlying query client.
func (c *Client) Cache() *query.Client { return c.cache }

// Dashboard prefetches everything the admin dashboard renders.
func (c *Client) Dashboard(ctx context.Context) error {
	stats, err := c.Resources.DashboardStats.Request(struct{}{})
	if err != nil {
		return err
	}
	appointments, err := c.Resources.Appointments.Request(ListQuery{Page: 1})
	if err != nil {
		return err
	}
	doctors, err := c.Resources.Doctors.Request(ListQuery{Page: 1})
	if err != nil {
		return err
	}
	return c.cache.Prefetch(ctx, stats, appointments, doctors)
}

// HealthChecker reports the cache as "clinic-cache". Readiness turns
// degraded once a quarter of cached queries are failing.
func (c *Client) HealthChecker() health.Checker {
	return health.NewCacheChecker(c.cache, health.CacheConfig{Name: "clinic-cache"})
}

// Close stops the cache.
func (c *Client) Close() error { return c.cache.Close() }
