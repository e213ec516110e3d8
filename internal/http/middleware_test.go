package httpx

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/marketpulse/internal/adapters/devauth"
	mockauth "github.com/target/marketpulse/internal/mocks/auth"
)

func ownerEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, ok := OwnerFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_, _ = w.Write([]byte(owner))
	})
}

func TestRequireOwner(t *testing.T) {
	verifier := mockauth.NewStaticVerifier(map[string]string{"good-token": "alice"})
	dev, err := devauth.NewProvider(devauth.Config{Owner: "dev-user"})
	require.NoError(t, err)

	tests := []struct {
		name       string
		opts       OwnerAuthOptions
		headers    map[string]string
		wantStatus int
		wantOwner  string
	}{
		{
			name:       "bearer token accepted",
			opts:       OwnerAuthOptions{Mode: OwnerAuthBearer, Verifier: verifier},
			headers:    map[string]string{"Authorization": "Bearer good-token"},
			wantStatus: http.StatusOK,
			wantOwner:  "alice",
		},
		{
			name:       "bearer token rejected",
			opts:       OwnerAuthOptions{Mode: OwnerAuthBearer, Verifier: verifier},
			headers:    map[string]string{"Authorization": "Bearer forged"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing bearer token",
			opts:       OwnerAuthOptions{Mode: OwnerAuthBearer, Verifier: verifier},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "basic auth is not a bearer token",
			opts:       OwnerAuthOptions{Mode: OwnerAuthBearer, Verifier: verifier},
			headers:    map[string]string{"Authorization": "Basic dXNlcjpwYXNz"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "trusted header",
			opts:       OwnerAuthOptions{Mode: OwnerAuthHeader, Header: "X-Owner-ID"},
			headers:    map[string]string{"X-Owner-ID": " bob "},
			wantStatus: http.StatusOK,
			wantOwner:  "bob",
		},
		{
			name:       "blank trusted header",
			opts:       OwnerAuthOptions{Mode: OwnerAuthHeader, Header: "X-Owner-ID"},
			headers:    map[string]string{"X-Owner-ID": "   "},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "fixed identity",
			opts:       OwnerAuthOptions{Mode: OwnerAuthFixed, Verifier: dev},
			wantStatus: http.StatusOK,
			wantOwner:  "dev-user",
		},
		{
			name:       "fixed identity without verifier",
			opts:       OwnerAuthOptions{Mode: OwnerAuthFixed},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()

			RequireOwner(tt.opts)(ownerEcho()).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				var body ErrorBody
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, "authentication_required", body.Error)
				return
			}
			assert.Equal(t, tt.wantOwner, rec.Body.String())
		})
	}

	assert.Equal(t, []string{"good-token", "forged"}, verifier.Seen())
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	t.Run("generates an id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		require.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})

	t.Run("reuses the caller's id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "trace-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "trace-123", seen)
		assert.Equal(t, "trace-123", rec.Header().Get(RequestIDHeader))
	})

	t.Run("replaces oversized ids", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("a", 200))
		h.ServeHTTP(httptest.NewRecorder(), req)

		assert.Len(t, seen, 36)
	})
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := RequestID()(Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("queued"))
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "POST", entry["method"])
	assert.Equal(t, "/api/jobs", entry["path"])
	assert.InDelta(t, 202, entry["status"], 0)
	assert.InDelta(t, 6, entry["bytes"], 0)
	assert.Equal(t, "req-1", entry["request_id"])
}

func TestLogging_PreservesFlush(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("a"))
		assert.NoError(t, http.NewResponseController(w).Flush())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, rec.Flushed)
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Recover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), "boom")
}

func TestRecover_AbortHandlerPropagates(t *testing.T) {
	h := Recover(slog.Default())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestMaxBody(t *testing.T) {
	h := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("small body passes", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("declared length over the limit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(`{"kind":"collection"}`)))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Contains(t, rec.Body.String(), "body_too_large")
	})

	t.Run("unknown length is cut off while reading", func(t *testing.T) {
		body := io.MultiReader(strings.NewReader(`{"kind":"collection"}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs", body))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("zero disables the limit", func(t *testing.T) {
		next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		assert.NotNil(t, MaxBody(0)(next))
	})
}
