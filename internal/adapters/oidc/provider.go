// Package oidc verifies OpenID Connect ID tokens presented as bearer credentials.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"

	domainauth "github.com/target/marketpulse/internal/domain/auth"
	"github.com/target/marketpulse/internal/ports"
)

// ErrInvalidToken is returned for credentials that fail verification.
var ErrInvalidToken = errors.New("invalid id token")

// VerifierConfig holds configuration for the OIDC verifier.
type VerifierConfig struct {
	IssuerURL  string       // Required: issuer or its discovery URL
	ClientID   string       // Required: expected audience
	OwnerClaim string       // Optional: claim used as owner, defaults to sub
	HTTPClient *http.Client // Optional, defaults to a client with a 30s timeout
}

// Verifier implements ports.IdentityVerifier using go-oidc.
type Verifier struct {
	verifier   *gooidc.IDTokenVerifier
	ownerClaim string
}

var _ ports.IdentityVerifier = (*Verifier)(nil)

// NewVerifier discovers the issuer and builds a Verifier. Discovery happens once.
func NewVerifier(ctx context.Context, cfg VerifierConfig) (*Verifier, error) {
	if cfg.IssuerURL == "" {
		return nil, errors.New("issuer URL is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	ctx = gooidc.ClientContext(ctx, httpClient)
	issuer := strings.TrimSuffix(cfg.IssuerURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	return newVerifier(op.Verifier(&gooidc.Config{ClientID: cfg.ClientID}), cfg.OwnerClaim), nil
}

func newVerifier(v *gooidc.IDTokenVerifier, ownerClaim string) *Verifier {
	return &Verifier{verifier: v, ownerClaim: strings.TrimSpace(ownerClaim)}
}

// Verify checks signature, issuer, audience and expiry of a raw ID token and
// maps its claims into an identity.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (domainauth.Identity, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return domainauth.Identity{}, fmt.Errorf("%w: token is required", ErrInvalidToken)
	}

	tok, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	var claims map[string]any
	if err := tok.Claims(&claims); err != nil {
		return domainauth.Identity{}, fmt.Errorf("%w: parse claims: %w", ErrInvalidToken, err)
	}

	id := mapClaims(claims, tok.Subject, v.ownerClaim)
	id.ExpiresAt = tok.Expiry
	if !id.Valid() {
		return domainauth.Identity{}, fmt.Errorf("%w: owner claim %q is empty", ErrInvalidToken, v.claimName())
	}
	return id, nil
}

func (v *Verifier) claimName() string {
	if v.ownerClaim == "" {
		return "sub"
	}
	return v.ownerClaim
}

// mapClaims builds the identity from standard claims and the optional owner claim.
func mapClaims(claims map[string]any, subject, ownerClaim string) domainauth.Identity {
	owner := subject
	if ownerClaim != "" {
		owner = stringClaim(claims, ownerClaim)
	}
	name := stringClaim(claims, "name")
	if name == "" {
		name = strings.TrimSpace(stringClaim(claims, "given_name") + " " + stringClaim(claims, "family_name"))
	}
	return domainauth.Identity{
		Owner: strings.TrimSpace(owner),
		Email: firstNonEmpty(stringClaim(claims, "email"), stringClaim(claims, "mail")),
		Name:  name,
	}
}

func stringClaim(claims map[string]any, key string) string {
	if s, ok := claims[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// BearerToken extracts the token of an "Authorization: Bearer" header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
