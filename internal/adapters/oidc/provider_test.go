package oidc

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testIssuer struct {
	server *httptest.Server
	key    *rsa.PrivateKey
}

func newTestIssuer(t *testing.T) *testIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	ti := &testIssuer{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                ti.server.URL,
			"authorization_endpoint":                ti.server.URL + "/auth",
			"token_endpoint":                        ti.server.URL + "/token",
			"jwks_uri":                              ti.server.URL + "/jwks",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("GET /jwks", func(w http.ResponseWriter, _ *http.Request) {
		pub := key.PublicKey
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "test-key",
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		})
	})
	ti.server = httptest.NewServer(mux)
	t.Cleanup(ti.server.Close)
	return ti
}

// sign builds an RS256 JWT over claims.
func (ti *testIssuer) sign(t *testing.T, claims map[string]any) string {
	t.Helper()
	header, err := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT", "kid": "test-key"})
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	signingInput := base64.RawURLEncoding.EncodeToString(header) + "." + base64.RawURLEncoding.EncodeToString(payload)
	digest := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, ti.key, crypto.SHA256, digest[:])
	require.NoError(t, err)
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig)
}

func (ti *testIssuer) claims(overrides map[string]any) map[string]any {
	c := map[string]any{
		"iss":   ti.server.URL,
		"aud":   "marketpulse",
		"sub":   "user-123",
		"email": "alice@example.com",
		"name":  "Alice Analyst",
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range overrides {
		c[k] = v
	}
	return c
}

func TestNewVerifier_ValidationErrors(t *testing.T) {
	_, err := NewVerifier(context.Background(), VerifierConfig{ClientID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "issuer URL is required")

	_, err = NewVerifier(context.Background(), VerifierConfig{IssuerURL: "http://example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client ID is required")
}

func TestNewVerifier_AcceptsDiscoveryURL(t *testing.T) {
	ti := newTestIssuer(t)

	v, err := NewVerifier(context.Background(), VerifierConfig{
		IssuerURL: ti.server.URL + "/.well-known/openid-configuration",
		ClientID:  "marketpulse",
	})

	require.NoError(t, err)
	assert.NotNil(t, v)
}

func TestVerifier_Verify(t *testing.T) {
	ti := newTestIssuer(t)
	ctx := context.Background()
	v, err := NewVerifier(ctx, VerifierConfig{IssuerURL: ti.server.URL, ClientID: "marketpulse"})
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		id, err := v.Verify(ctx, ti.sign(t, ti.claims(nil)))

		require.NoError(t, err)
		assert.Equal(t, "user-123", id.Owner)
		assert.Equal(t, "alice@example.com", id.Email)
		assert.Equal(t, "Alice Analyst", id.Name)
		assert.False(t, id.ExpiresAt.IsZero())
	})

	tests := []struct {
		name   string
		claims map[string]any
	}{
		{name: "wrong audience", claims: map[string]any{"aud": "someone-else"}},
		{name: "wrong issuer", claims: map[string]any{"iss": "https://evil.example.com"}},
		{name: "expired", claims: map[string]any{"exp": time.Now().Add(-time.Hour).Unix()}},
		{name: "empty subject", claims: map[string]any{"sub": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(ctx, ti.sign(t, ti.claims(tt.claims)))
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	t.Run("tampered payload", func(t *testing.T) {
		parts := strings.Split(ti.sign(t, ti.claims(nil)), ".")
		forged, err := json.Marshal(ti.claims(map[string]any{"sub": "mallory"}))
		require.NoError(t, err)
		parts[1] = base64.RawURLEncoding.EncodeToString(forged)

		_, err = v.Verify(ctx, strings.Join(parts, "."))
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := v.Verify(ctx, "  ")
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestVerifier_OwnerClaim(t *testing.T) {
	ti := newTestIssuer(t)
	ctx := context.Background()
	v, err := NewVerifier(ctx, VerifierConfig{IssuerURL: ti.server.URL, ClientID: "marketpulse", OwnerClaim: "preferred_username"})
	require.NoError(t, err)

	id, err := v.Verify(ctx, ti.sign(t, ti.claims(map[string]any{"preferred_username": "alice"})))
	require.NoError(t, err)
	assert.Equal(t, "alice", id.Owner)

	_, err = v.Verify(ctx, ti.sign(t, ti.claims(nil)))
	require.ErrorIs(t, err, ErrInvalidToken, "missing owner claim")
}

func TestMapClaims(t *testing.T) {
	id := mapClaims(map[string]any{
		"mail":        "bob@example.com",
		"given_name":  "Bob",
		"family_name": "Builder",
	}, "bob-1", "")

	assert.Equal(t, "bob-1", id.Owner)
	assert.Equal(t, "bob@example.com", id.Email)
	assert.Equal(t, "Bob Builder", id.Name)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer   token  ", "token", true},
		{"Basic dXNlcjpwYXNz", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}
