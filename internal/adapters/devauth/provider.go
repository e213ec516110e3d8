// Package devauth provides a fixed-identity verifier for local development.
package devauth

import (
	"context"
	"errors"
	"strings"

	domainauth "github.com/target/marketpulse/internal/domain/auth"
	"github.com/target/marketpulse/internal/ports"
)

// Config controls the dev verifier. Owner is required.
type Config struct {
	Owner string
	Email string
	Name  string
}

// Provider implements ports.IdentityVerifier for development. Every request is
// attributed to the configured owner; the presented credential is ignored.
type Provider struct {
	identity domainauth.Identity
}

var _ ports.IdentityVerifier = (*Provider)(nil)

// NewProvider constructs a dev verifier from Config.
func NewProvider(cfg Config) (*Provider, error) {
	owner := strings.TrimSpace(cfg.Owner)
	if owner == "" {
		return nil, errors.New("dev auth: Owner is required")
	}
	return &Provider{identity: domainauth.Identity{
		Owner: owner,
		Email: cfg.Email,
		Name:  cfg.Name,
	}}, nil
}

// Verify returns the configured identity.
func (p *Provider) Verify(context.Context, string) (domainauth.Identity, error) {
	return p.identity, nil
}
