package bootstrap

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/marketpulse/config"
	httpx "github.com/target/marketpulse/internal/http"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildOwnerAuth(t *testing.T) {
	ctx := context.Background()

	t.Run("mock mode attributes requests to the dev owner", func(t *testing.T) {
		opts, err := BuildOwnerAuth(ctx, AuthConfig{
			Auth:   config.AuthConfig{Mode: config.AuthModeMock, DevOwner: "dev-user"},
			Logger: discardLogger(),
		})
		require.NoError(t, err)
		assert.Equal(t, httpx.OwnerAuthFixed, opts.Mode)

		id, err := opts.Verifier.Verify(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, "dev-user", id.Owner)
	})

	t.Run("mock mode needs an owner", func(t *testing.T) {
		_, err := BuildOwnerAuth(ctx, AuthConfig{
			Auth:   config.AuthConfig{Mode: config.AuthModeMock},
			Logger: discardLogger(),
		})
		require.Error(t, err)
	})

	t.Run("header mode", func(t *testing.T) {
		opts, err := BuildOwnerAuth(ctx, AuthConfig{
			Auth:   config.AuthConfig{Mode: config.AuthModeHeader, OwnerHeader: "X-Owner-ID"},
			Logger: discardLogger(),
		})
		require.NoError(t, err)
		assert.Equal(t, httpx.OwnerAuthHeader, opts.Mode)
		assert.Equal(t, "X-Owner-ID", opts.Header)
		assert.Nil(t, opts.Verifier)
	})

	t.Run("oidc mode discovers the issuer", func(t *testing.T) {
		var issuer *httptest.Server
		issuer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"issuer":                 issuer.URL,
				"authorization_endpoint": issuer.URL + "/auth",
				"token_endpoint":         issuer.URL + "/token",
				"jwks_uri":               issuer.URL + "/jwks",
			})
		}))
		defer issuer.Close()

		opts, err := BuildOwnerAuth(ctx, AuthConfig{
			Auth: config.AuthConfig{
				Mode: config.AuthModeOIDC,
				OIDC: config.OIDCConfig{IssuerURL: issuer.URL, ClientID: "marketpulse"},
			},
			Logger: discardLogger(),
		})
		require.NoError(t, err)
		assert.Equal(t, httpx.OwnerAuthBearer, opts.Mode)
		assert.NotNil(t, opts.Verifier)
	})

	t.Run("oidc mode fails on unreachable issuer", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		_, err := BuildOwnerAuth(ctx, AuthConfig{
			Auth: config.AuthConfig{
				Mode: config.AuthModeOIDC,
				OIDC: config.OIDCConfig{IssuerURL: srv.URL, ClientID: "marketpulse"},
			},
			Logger: discardLogger(),
		})
		require.Error(t, err)
	})
}
