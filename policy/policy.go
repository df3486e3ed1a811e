// Package policy describes how long cached server data stays fresh and which
// events trigger a revalidation.
package policy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonwraymond/querysync/key"
)

// ErrInvalidPolicy is returned by Validate for negative durations.
var ErrInvalidPolicy = errors.New("policy: invalid staleness policy")

// Policy configures staleness behavior for one resource.
type Policy struct {
	// TTL is how long a successful fetch remains fresh.
	// Zero means data is stale as soon as it arrives.
	TTL time.Duration

	// MaxTTL clamps TTL when set.
	MaxTTL time.Duration

	// RefetchOnFocus revalidates subscribed entries when the application
	// regains the foreground.
	RefetchOnFocus bool

	// RefetchOnReconnect revalidates subscribed entries when the network
	// comes back.
	RefetchOnReconnect bool

	// RefetchInterval forces a refetch of subscribed entries at this
	// period. Zero disables interval polling.
	RefetchInterval time.Duration

	// GCGrace is how long an entry without subscribers is kept before it
	// is evicted.
	// Default: 5 minutes
	GCGrace time.Duration
}

// DefaultGCGrace is the eviction grace period used when a policy leaves
// GCGrace unset.
const DefaultGCGrace = 5 * time.Minute

// Default returns the policy applied to resources without explicit
// configuration: always stale, revalidated on focus and reconnect.
func Default() Policy {
	return Policy{
		TTL:                0,
		RefetchOnFocus:     true,
		RefetchOnReconnect: true,
		GCGrace:            DefaultGCGrace,
	}
}

// Reference returns a policy for slowly changing reference data such as
// roles and permissions.
// TTL: 30 minutes, no focus refetch.
func Reference() Policy {
	return Policy{
		TTL:                30 * time.Minute,
		MaxTTL:             time.Hour,
		RefetchOnFocus:     false,
		RefetchOnReconnect: true,
		GCGrace:            time.Hour,
	}
}

// Live returns a policy for fast-moving data such as appointment counts.
// TTL: 30 seconds, polled every minute while observed.
func Live() Policy {
	return Policy{
		TTL:                30 * time.Second,
		RefetchOnFocus:     true,
		RefetchOnReconnect: true,
		RefetchInterval:    time.Minute,
		GCGrace:            DefaultGCGrace,
	}
}

// EffectiveTTL returns the freshness window after clamping to MaxTTL.
func (p Policy) EffectiveTTL() time.Duration {
	ttl := p.TTL
	if ttl < 0 {
		ttl = 0
	}
	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}
	return ttl
}

// Grace returns the eviction grace period, applying the default.
func (p Policy) Grace() time.Duration {
	if p.GCGrace <= 0 {
		return DefaultGCGrace
	}
	return p.GCGrace
}

// StaleAt returns when data fetched at fetchedAt stops being fresh.
func (p Policy) StaleAt(fetchedAt time.Time) time.Time {
	return fetchedAt.Add(p.EffectiveTTL())
}

// Validate checks the policy for negative durations.
func (p Policy) Validate() error {
	if p.TTL < 0 || p.MaxTTL < 0 || p.RefetchInterval < 0 || p.GCGrace < 0 {
		return ErrInvalidPolicy
	}
	return nil
}

// Registry resolves the policy for each registered resource.
type Registry struct {
	mu        sync.RWMutex
	fallback  Policy
	resources map[string]Policy
}

// NewRegistry creates a registry whose unregistered resources use fallback.
func NewRegistry(fallback Policy) *Registry {
	return &Registry{
		fallback:  fallback,
		resources: make(map[string]Policy),
	}
}

// Register binds a policy to a resource name. Registering the same name
// twice is an error.
func (r *Registry) Register(resource string, p Policy) error {
	if err := key.ValidateResource(resource); err != nil {
		return fmt.Errorf("policy: register %q: %w", resource, err)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("policy: register %q: %w", resource, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.resources[resource]; exists {
		return fmt.Errorf("policy: resource %q already registered", resource)
	}
	r.resources[resource] = p
	return nil
}

// Resolve returns the policy for resource and whether it was registered.
func (r *Registry) Resolve(resource string) (Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.resources[resource]
	if !ok {
		return r.fallback, false
	}
	return p, true
}

// Has reports whether resource is registered.
func (r *Registry) Has(resource string) bool {
	_, ok := r.Resolve(resource)
	return ok
}

// Resources returns registered resource names in sorted order.
func (r *Registry) Resources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.resources))
	for name := range r.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String lists the registered resources, for diagnostics.
func (r *Registry) String() string {
	return "policy.Registry[" + strings.Join(r.Resources(), ",") + "]"
}
