package config

import (
	"fmt"
	"strings"
)

// AuthMode selects how the owner of a request is identified.
type AuthMode string

const (
	// AuthModeOIDC verifies bearer ID tokens against an OpenID Connect issuer.
	AuthModeOIDC AuthMode = "oidc"
	// AuthModeHeader trusts an owner header set by an upstream gateway.
	AuthModeHeader AuthMode = "header"
	// AuthModeMock uses a fixed owner (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch AuthMode(v) {
	case AuthModeOIDC, AuthModeHeader, AuthModeMock:
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oidc, header, mock)", v)
	}
}

// OIDCConfig contains OpenID Connect verification settings.
type OIDCConfig struct {
	IssuerURL string `env:"ISSUER_URL"`
	ClientID  string `env:"CLIENT_ID"  envDefault:"marketpulse"`
	// OwnerClaim names the claim used as owner id; the subject is used when empty.
	OwnerClaim string `env:"OWNER_CLAIM"`
}

// AuthConfig groups owner identification configuration.
type AuthConfig struct {
	Mode AuthMode `env:"AUTH_MODE" envDefault:"mock"`

	// OIDC configuration (used when Mode=oidc).
	OIDC OIDCConfig `envPrefix:"OIDC_"`

	// OwnerHeader is read when Mode=header.
	OwnerHeader string `env:"AUTH_OWNER_HEADER" envDefault:"X-Owner-ID"`

	// DevOwner is the owner used when Mode=mock.
	DevOwner string `env:"AUTH_DEV_OWNER" envDefault:"dev-user"`
}
