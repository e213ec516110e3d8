// Package auth contains the identity types produced by owner identification.
// It is pure and free of framework/adapter concerns.
package auth

import (
	"context"
	"strings"
	"time"
)

// Identity is the verified principal behind a request. Owner is the stable id
// every job and workspace entry is scoped to.
type Identity struct {
	Owner     string
	Email     string
	Name      string
	ExpiresAt time.Time // zero when the verifier does not know
}

// Valid reports whether the identity names an owner.
func (i Identity) Valid() bool {
	return strings.TrimSpace(i.Owner) != ""
}

// Expired reports whether the identity carried an expiry that passed before now.
func (i Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

type identityKey struct{}

// WithIdentity returns a child context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored by WithIdentity.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.Valid()
}
