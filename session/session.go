package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/querysync/observe"
	"github.com/jonwraymond/querysync/query"
)

// Sentinel errors for session operations.
var (
	ErrNotSignedIn    = errors.New("session: not signed in")
	ErrTokenMalformed = errors.New("session: token malformed")
	ErrTokenExpired   = errors.New("session: token expired")
	ErrNoRefresher    = errors.New("session: no refresh function configured")
	ErrNilCache       = errors.New("session: cache is required")
)

// Refresher exchanges the current token for a new one.
type Refresher func(ctx context.Context, current string) (string, error)

// Config configures a Session.
type Config struct {
	// Cache is cleared whenever the signed-in principal changes (required).
	Cache *query.Client

	// Keyfunc verifies token signatures. When nil, tokens are decoded
	// without verification and the backend is trusted to reject forgeries.
	Keyfunc jwt.Keyfunc

	// ValidMethods restricts accepted signing algorithms when Keyfunc is set.
	ValidMethods []string

	// PrincipalClaim is the claim naming the user.
	// Default: "sub"
	PrincipalClaim string

	// RolesClaim is the claim containing user roles.
	// Default: "roles"
	RolesClaim string

	// PermissionsClaim is the claim containing explicit permissions.
	// Default: "permissions"
	PermissionsClaim string

	// Refresh obtains a new token before the current one expires.
	Refresh Refresher

	// RefreshBefore is how long before expiry Token refreshes.
	// Default: 1 minute
	RefreshBefore time.Duration

	// Logger receives sign-in and sign-out events.
	// Default: observe.NopLogger()
	Logger observe.Logger

	// Clock returns the current time.
	// Default: time.Now
	Clock func() time.Time
}

// Session holds the bearer token of the signed-in user and keeps the cache
// scoped to that user.
//
// Contract:
//   - Concurrency: safe for concurrent use; concurrent refreshes share one
//     call to the refresher.
//   - Cache: data fetched for one principal is never served to another.
type Session struct {
	cfg Config

	mu       sync.RWMutex
	token    string
	identity *Identity

	refresh singleflight.Group
}

// New creates a signed-out session.
func New(cfg Config) (*Session, error) {
	if cfg.Cache == nil {
		return nil, ErrNilCache
	}
	if cfg.PrincipalClaim == "" {
		cfg.PrincipalClaim = "sub"
	}
	if cfg.RolesClaim == "" {
		cfg.RolesClaim = "roles"
	}
	if cfg.PermissionsClaim == "" {
		cfg.PermissionsClaim = "permissions"
	}
	if cfg.RefreshBefore == 0 {
		cfg.RefreshBefore = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Session{cfg: cfg}, nil
}

// SignIn installs token. If it names a different principal than the
// current session, the cache is cleared first.
func (s *Session) SignIn(ctx context.Context, token string) (*Identity, error) {
	id, err := s.parse(token)
	if err != nil {
		return nil, err
	}
	s.install(ctx, token, id)
	s.cfg.Logger.Info(ctx, "signed in", observe.Field{Key: "principal", Value: id.Principal})
	return id, nil
}

// SignOut forgets the token and clears the cache. It returns the number
// of cache entries dropped.
func (s *Session) SignOut(ctx context.Context) int {
	s.mu.Lock()
	principal := ""
	if s.identity != nil {
		principal = s.identity.Principal
	}
	s.token = ""
	s.identity = nil
	s.mu.Unlock()

	n := s.cfg.Cache.Clear()
	s.cfg.Logger.Info(ctx, "signed out",
		observe.Field{Key: "principal", Value: principal},
		observe.Field{Key: "cleared", Value: n},
	)
	return n
}

// Identity returns the signed-in identity.
func (s *Session) Identity() (*Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, s.identity != nil
}

// Token returns a usable bearer token, refreshing it when it expires
// within RefreshBefore.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	token, id := s.token, s.identity
	s.mu.RUnlock()

	if id == nil {
		return "", ErrNotSignedIn
	}
	if id.ExpiresAt.IsZero() || s.cfg.Clock().Add(s.cfg.RefreshBefore).Before(id.ExpiresAt) {
		return token, nil
	}
	if s.cfg.Refresh == nil {
		if id.Expired(s.cfg.Clock()) {
			return "", ErrTokenExpired
		}
		return token, nil
	}
	return s.Refresh(ctx)
}

// Header returns the Authorization header value for the current token.
func (s *Session) Header(ctx context.Context) (string, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return "", err
	}
	return "Bearer " + token, nil
}

// Refresh exchanges the current token for a new one. Concurrent callers
// share a single exchange.
func (s *Session) Refresh(ctx context.Context) (string, error) {
	if s.cfg.Refresh == nil {
		return "", ErrNoRefresher
	}

	v, err, _ := s.refresh.Do("refresh", func() (any, error) {
		s.mu.RLock()
		current := s.token
		s.mu.RUnlock()
		if current == "" {
			return "", ErrNotSignedIn
		}

		next, err := s.cfg.Refresh(ctx, current)
		if err != nil {
			return "", fmt.Errorf("session: refresh: %w", err)
		}
		id, err := s.parse(next)
		if err != nil {
			return "", err
		}
		s.install(ctx, next, id)
		return next, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Session) install(ctx context.Context, token string, id *Identity) {
	s.mu.Lock()
	switched := s.identity != nil && s.identity.Principal != id.Principal
	s.token = token
	s.identity = id
	s.mu.Unlock()

	if switched {
		n := s.cfg.Cache.Clear()
		s.cfg.Logger.Info(ctx, "principal changed, cache cleared",
			observe.Field{Key: "principal", Value: id.Principal},
			observe.Field{Key: "cleared", Value: n},
		)
	}
}

func (s *Session) parse(token string) (*Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, ErrTokenMalformed
	}

	claims := jwt.MapClaims{}
	if s.cfg.Keyfunc != nil {
		var opts []jwt.ParserOption
		if len(s.cfg.ValidMethods) > 0 {
			opts = append(opts, jwt.WithValidMethods(s.cfg.ValidMethods))
		}
		opts = append(opts, jwt.WithTimeFunc(s.cfg.Clock))
		if _, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, s.cfg.Keyfunc); err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return nil, ErrTokenExpired
			}
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
	} else if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	id, err := identityFromClaims(claims, s.cfg)
	if err != nil {
		return nil, err
	}
	if id.Expired(s.cfg.Clock()) {
		return nil, ErrTokenExpired
	}
	return id, nil
}
