package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/marketpulse/internal/domain/model"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL + "/", Owner: "alice"})
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{BaseURL: "ftp://example.com"})
	require.Error(t, err)

	c, err := New(Config{BaseURL: "http://localhost:8080"})
	require.NoError(t, err)
	assert.Equal(t, "X-Owner-ID", c.ownerHeader)
}

func TestClient_Submit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/jobs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "alice", r.Header.Get("X-Owner-ID"))
		var body struct {
			Kind  string          `json:"kind"`
			Input json.RawMessage `json:"input"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "collection", body.Kind)
		assert.JSONEq(t, `{"max_items":10}`, string(body.Input))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"id":"job-1","kind":"collection","status":"initializing","status_url":"/api/jobs/job-1/status"}`))
	})
	c := newTestClient(t, mux)

	acc, err := c.Submit(context.Background(), model.JobKindCollection, json.RawMessage(`{"max_items":10}`))

	require.NoError(t, err)
	assert.Equal(t, "job-1", acc.ID)
	assert.Equal(t, model.JobStatusInitializing, acc.Status)
}

func TestClient_Errors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/jobs/{id}/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"job_not_found","message":"job not found"}`))
	})
	mux.HandleFunc("POST /api/answers/stream", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("X-Error-Code", "missing_precondition")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("No analysis found. Please run an analysis first.\n"))
	})
	c := newTestClient(t, mux)

	_, err := c.Status(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, IsCode(err, "job_not_found"))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)

	var buf bytes.Buffer
	_, err = c.Ask(context.Background(), "Which brand is cheaper?", &buf)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "missing_precondition", apiErr.Code)
	assert.Equal(t, "No analysis found. Please run an analysis first.", apiErr.Message)
	assert.Empty(t, buf.String())
}

func TestClient_History(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/jobs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "week", r.URL.Query().Get("date"))
		assert.Equal(t, "failed", r.URL.Query().Get("status"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Empty(t, r.URL.Query().Get("kind"))
		_ = json.NewEncoder(w).Encode(model.HistoryPage{
			Items:      []model.StatusSummary{{ID: "job-9", Status: model.JobStatusFailed}},
			Total:      11,
			Page:       2,
			PageSize:   10,
			TotalPages: 2,
		})
	})
	c := newTestClient(t, mux)

	page, err := c.History(context.Background(), HistoryQuery{
		Date:   model.DateFilterWeek,
		Status: model.JobStatusFailed,
		Page:   2,
	})

	require.NoError(t, err)
	assert.Equal(t, 11, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "job-9", page.Items[0].ID)
}

func TestClient_Watch(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/jobs/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		view := model.StatusView{ID: r.PathValue("id"), Kind: model.JobKindCollection, Messages: []model.Message{}}
		switch calls.Add(1) {
		case 1, 2:
			view.Status, view.Progress = model.JobStatusScraping, 25
		default:
			view.Status, view.Progress = model.JobStatusCompleted, 100
		}
		_ = json.NewEncoder(w).Encode(view)
	})
	c := newTestClient(t, mux)

	var seen []model.JobStatus
	final, err := c.Watch(context.Background(), "job-1", time.Millisecond, func(v model.StatusView) {
		seen = append(seen, v.Status)
	})

	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, final.Status)
	assert.Equal(t, []model.JobStatus{model.JobStatusScraping, model.JobStatusCompleted}, seen, "unchanged polls are not reported")
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_Result(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/jobs/{id}/download", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="products_job-1.csv"`)
		_, _ = w.Write([]byte("Product,Price,Description,Source\n"))
	})
	c := newTestClient(t, mux)

	art, err := c.Result(context.Background(), "job-1", true)

	require.NoError(t, err)
	assert.Equal(t, "products_job-1.csv", art.FileName)
	assert.Equal(t, "text/csv; charset=utf-8", art.ContentType)
	assert.Equal(t, "Product,Price,Description,Source\n", string(art.Data))
}

func TestClient_Ask(t *testing.T) {
	t.Run("streams fragments", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /api/answers/stream", func(w http.ResponseWriter, r *http.Request) {
			raw, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"question":"Which brand is cheaper?"}`, string(raw))
			rc := http.NewResponseController(w)
			for _, frag := range []string{"Breakout ", "is ", "cheaper."} {
				_, _ = w.Write([]byte(frag))
				_ = rc.Flush()
			}
		})
		c := newTestClient(t, mux)

		var buf bytes.Buffer
		n, err := c.Ask(context.Background(), "Which brand is cheaper?", &buf)

		require.NoError(t, err)
		assert.Equal(t, "Breakout is cheaper.", buf.String())
		assert.Equal(t, int64(len("Breakout is cheaper.")), n)
	})

	t.Run("truncated stream is an error", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /api/answers/stream", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("Breakout "))
			_ = http.NewResponseController(w).Flush()
			panic(http.ErrAbortHandler)
		})
		c := newTestClient(t, mux)

		var buf bytes.Buffer
		_, err := c.Ask(context.Background(), "Which brand is cheaper?", &buf)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "interrupted")
		assert.Equal(t, "Breakout ", buf.String())
	})
}
