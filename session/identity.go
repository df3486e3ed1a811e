package session

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the principal carried by the session token.
type Identity struct {
	// Principal is the unique user identifier.
	Principal string

	// Roles are the roles assigned to this identity.
	Roles []string

	// Permissions are explicit permissions granted to this identity.
	Permissions []string

	// Claims contains the raw claims from the token.
	Claims map[string]any

	ExpiresAt time.Time
	IssuedAt  time.Time
}

// HasRole checks if the identity has a specific role.
func (id *Identity) HasRole(role string) bool {
	return slices.Contains(id.Roles, role)
}

// HasPermission checks if the identity has a specific permission.
func (id *Identity) HasPermission(perm string) bool {
	return slices.Contains(id.Permissions, perm)
}

// Expired reports whether the token has expired at now. Tokens without
// an exp claim never expire.
func (id *Identity) Expired(now time.Time) bool {
	return !id.ExpiresAt.IsZero() && !now.Before(id.ExpiresAt)
}

func identityFromClaims(claims jwt.MapClaims, cfg Config) (*Identity, error) {
	principal, _ := claims[cfg.PrincipalClaim].(string)
	if principal == "" {
		return nil, fmt.Errorf("%w: missing %q claim", ErrTokenMalformed, cfg.PrincipalClaim)
	}

	id := &Identity{
		Principal:   principal,
		Roles:       stringList(claims[cfg.RolesClaim]),
		Permissions: stringList(claims[cfg.PermissionsClaim]),
		Claims:      claims,
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		id.IssuedAt = iat.Time
	}
	return id, nil
}

// stringList accepts a JSON array of strings or a space-separated string.
func stringList(v any) []string {
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return val
	case string:
		return strings.Fields(val)
	default:
		return nil
	}
}
