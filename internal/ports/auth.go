// Package ports defines interfaces (hexagonal ports) for owner identification.
// Implementations live in internal/adapters; the HTTP layer consumes them.
package ports

import (
	"context"

	domainauth "github.com/target/marketpulse/internal/domain/auth"
)

// IdentityVerifier turns a presented credential into a verified identity.
// Credential issuance is outside this system; verifiers only check.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (domainauth.Identity, error)
}
