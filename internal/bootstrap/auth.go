package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/target/marketpulse/config"
	"github.com/target/marketpulse/internal/adapters/devauth"
	"github.com/target/marketpulse/internal/adapters/oidc"
	httpx "github.com/target/marketpulse/internal/http"
)

// AuthConfig contains configuration for owner identification.
type AuthConfig struct {
	Auth   config.AuthConfig
	Logger *slog.Logger
}

// BuildOwnerAuth selects how API requests are attributed to an owner.
// OIDC discovery runs once here, so an unreachable issuer fails startup.
func BuildOwnerAuth(ctx context.Context, cfg AuthConfig) (httpx.OwnerAuthOptions, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts := httpx.OwnerAuthOptions{Logger: logger.With("component", "auth")}

	switch cfg.Auth.Mode {
	case config.AuthModeOIDC:
		verifier, err := oidc.NewVerifier(ctx, oidc.VerifierConfig{
			IssuerURL:  cfg.Auth.OIDC.IssuerURL,
			ClientID:   cfg.Auth.OIDC.ClientID,
			OwnerClaim: cfg.Auth.OIDC.OwnerClaim,
		})
		if err != nil {
			return opts, fmt.Errorf("build oidc verifier: %w", err)
		}
		opts.Mode = httpx.OwnerAuthBearer
		opts.Verifier = verifier

	case config.AuthModeHeader:
		opts.Mode = httpx.OwnerAuthHeader
		opts.Header = cfg.Auth.OwnerHeader
		logger.Warn("owner identification trusts a request header; run behind an authenticating proxy",
			"header", cfg.Auth.OwnerHeader)

	default:
		prov, err := devauth.NewProvider(devauth.Config{Owner: cfg.Auth.DevOwner})
		if err != nil {
			return opts, fmt.Errorf("build dev auth provider: %w", err)
		}
		opts.Mode = httpx.OwnerAuthFixed
		opts.Verifier = prov
		logger.Warn("dev auth enabled; every request is attributed to one owner", "owner", cfg.Auth.DevOwner)
	}

	return opts, nil
}
