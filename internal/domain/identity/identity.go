// Package identity models the authenticated caller as produced by the API key
// security layer. The order and payment services trust this identity verbatim.
package identity

import (
	"context"

	"github.com/go-faster/errors"
)

// Role is a capability attached to a user account.
type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleSupplier Role = "supplier"
	RoleAdmin    Role = "admin"
)

// ErrUnknownKey is returned when no account matches the presented API key.
var ErrUnknownKey = errors.New("unknown api key")

// Identity is the resolved caller: a stable user id plus its role set.
type Identity struct {
	UserID string
	Roles  []Role
}

// Has reports whether the identity carries the given role.
func (i Identity) Has(role Role) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin is shorthand for Has(RoleAdmin).
func (i Identity) IsAdmin() bool { return i.Has(RoleAdmin) }

// Key is a stored API key record. KeyHash is the hex-encoded HMAC-SHA256 of
// the raw key under the service pepper.
type Key struct {
	KeyHash string
	UserID  string
	Roles   []Role
	Label   string
}

// Repository provides lookup of API keys by their peppered hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*Key, error)
}

type ctxKey struct{}

// WithIdentity returns a context carrying the resolved identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the identity stored by the security middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
