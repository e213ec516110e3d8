package bootstrap

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/marketpulse/config"
	httpx "github.com/target/marketpulse/internal/http"
)

func TestBuildHTTPHandler_Health(t *testing.T) {
	h := BuildHTTPHandler(httpx.RouterServices{
		Owner:  httpx.OwnerAuthOptions{Mode: httpx.OwnerAuthHeader, Header: "X-Owner-ID"},
		Logger: discardLogger(),
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStartAndShutdownHTTPServer(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.HTTP = config.HTTPConfig{Addr: "127.0.0.1:0"}

	srv := StartHTTPServer(&HTTPServerConfig{
		Config: cfg,
		Owner:  httpx.OwnerAuthOptions{Mode: httpx.OwnerAuthHeader, Header: "X-Owner-ID"},
		Logger: discardLogger(),
	})
	require.NotNil(t, srv)
	assert.Equal(t, 10*time.Second, srv.ReadHeaderTimeout)
	assert.Zero(t, srv.WriteTimeout)

	require.NoError(t, ShutdownHTTPServer(ShutdownConfig{Server: srv, Timeout: time.Second, Logger: discardLogger()}))
	require.NoError(t, ShutdownHTTPServer(ShutdownConfig{}))
}
