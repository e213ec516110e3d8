// Package auth contains simple hand-written test doubles for the identity port.
// These are lightweight and suitable for unit tests without codegen.
package auth

import (
	"context"
	"errors"
	"sync"

	domainauth "github.com/target/marketpulse/internal/domain/auth"
	"github.com/target/marketpulse/internal/ports"
)

// ErrUnknownToken is returned by StaticVerifier for tokens it was not seeded with.
var ErrUnknownToken = errors.New("unknown token")

var _ ports.IdentityVerifier = (*StaticVerifier)(nil)

// StaticVerifier maps fixed tokens to identities and records every credential
// it was asked to verify.
type StaticVerifier struct {
	mu     sync.Mutex
	tokens map[string]domainauth.Identity
	seen   []string
}

// NewStaticVerifier returns a verifier that accepts each token in tokens as the given owner.
func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	v := &StaticVerifier{tokens: make(map[string]domainauth.Identity, len(tokens))}
	for token, owner := range tokens {
		v.tokens[token] = domainauth.Identity{Owner: owner}
	}
	return v
}

// Verify looks the token up.
func (v *StaticVerifier) Verify(_ context.Context, token string) (domainauth.Identity, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seen = append(v.seen, token)
	id, ok := v.tokens[token]
	if !ok {
		return domainauth.Identity{}, ErrUnknownToken
	}
	return id, nil
}

// Seen returns the credentials passed to Verify so far.
func (v *StaticVerifier) Seen() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.seen...)
}
