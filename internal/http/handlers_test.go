package httpx

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/marketpulse/internal/adapters/jobrunner"
	"github.com/target/marketpulse/internal/core"
	"github.com/target/marketpulse/internal/data"
	"github.com/target/marketpulse/internal/domain/model"
	"github.com/target/marketpulse/internal/service"
	"github.com/target/marketpulse/internal/stages"
)

const testCSV = "Product,Price,Description,Source\nTee,10.00,Cotton,Breakout\n"

type stubWorker struct {
	kind model.JobKind
	run  func(ctx context.Context, req model.StageRequest, p core.ProgressReporter) (*model.Artifact, error)
}

func (w *stubWorker) Kind() model.JobKind { return w.kind }

func (w *stubWorker) Validate(input json.RawMessage) error {
	if w.kind != model.JobKindCollection {
		return nil
	}
	in, err := model.DecodeInput[model.CollectionInput](input)
	if err != nil {
		return err
	}
	return in.Validate()
}

func (w *stubWorker) Run(ctx context.Context, req model.StageRequest, p core.ProgressReporter) (*model.Artifact, error) {
	return w.run(ctx, req, p)
}

// answerFunc adapts a function to core.Answerer.
type answerFunc func(ctx context.Context, owner, question string) (iter.Seq2[string, error], error)

func (f answerFunc) Answer(ctx context.Context, owner, question string) (iter.Seq2[string, error], error) {
	return f(ctx, owner, question)
}

func fragments(frags []string, tail error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, f := range frags {
			if !yield(f, nil) {
				return
			}
		}
		if tail != nil {
			yield("", tail)
		}
	}
}

type apiFixture struct {
	server    *httptest.Server
	runner    *jobrunner.Runner
	workspace *stages.Workspace
	release   chan struct{}
	started   chan struct{}
	collected atomic.Int32
}

func newAPIFixture(t *testing.T, answerer core.Answerer) *apiFixture {
	t.Helper()
	artifacts, err := data.NewFSArtifactStore(t.TempDir())
	require.NoError(t, err)
	store := data.NewMemoryJobStore()

	f := &apiFixture{workspace: stages.NewWorkspace(artifacts), release: make(chan struct{}), started: make(chan struct{}, 8)}
	collector := &stubWorker{kind: model.JobKindCollection, run: func(ctx context.Context, req model.StageRequest, p core.ProgressReporter) (*model.Artifact, error) {
		p.Advance(ctx, model.JobStatusScraping)
		p.Note(ctx, "collector", "Collected 1 products")
		f.collected.Add(1)
		return &model.Artifact{ContentType: "text/csv", FileName: "products.csv", Data: []byte(testCSV)}, nil
	}}
	reporter := &stubWorker{kind: model.JobKindReporting, run: func(ctx context.Context, _ model.StageRequest, p core.ProgressReporter) (*model.Artifact, error) {
		p.Advance(ctx, model.JobStatusGeneratingReport)
		f.started <- struct{}{}
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return nil, model.Precondition("No analysis found. Please run an analysis first.")
	}}

	var seq atomic.Int64
	f.runner, err = jobrunner.NewRunner(jobrunner.RunnerOptions{
		Store:     store,
		Artifacts: artifacts,
		Workers:   []core.StageWorker{collector, reporter},
		NewID:     func() string { return fmt.Sprintf("job-%d", seq.Add(1)) },
	})
	require.NoError(t, err)

	status, err := service.NewStatusReporter(service.StatusReporterOptions{Store: store, Artifacts: artifacts})
	require.NoError(t, err)
	jobs, err := service.NewJobService(service.JobServiceOptions{
		Runner: f.runner, Store: store, Status: status, Workspace: f.workspace,
	})
	require.NoError(t, err)
	if answerer == nil {
		answerer = answerFunc(func(context.Context, string, string) (iter.Seq2[string, error], error) {
			return fragments([]string{"Breakout ", "is ", "cheaper."}, nil), nil
		})
	}
	stream, err := service.NewStreamChannel(service.StreamChannelOptions{Answerer: answerer})
	require.NoError(t, err)

	f.server = httptest.NewServer(NewRouter(RouterServices{
		Jobs:   jobs,
		Stream: stream,
		Owner:  OwnerAuthOptions{Mode: OwnerAuthHeader, Header: "X-Owner-ID"},
		Ready: []HealthCheck{{Name: "store", Check: func(context.Context) error { return nil }}},
	}))
	t.Cleanup(func() {
		f.server.Close()
		select {
		case <-f.release:
		default:
			close(f.release)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = f.runner.Shutdown(ctx)
	})
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, owner string, body any) *http.Response {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.server.URL+path, rdr)
	require.NoError(t, err)
	if owner != "" {
		req.Header.Set("X-Owner-ID", owner)
	}
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestJobsAPI_SubmitPollResult(t *testing.T) {
	f := newAPIFixture(t, nil)

	resp := f.do(t, http.MethodPost, "/api/jobs", "alice", map[string]any{
		"kind": "collection", "input": map[string]int{"max_items": 5},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	accepted := decode[jobAccepted](t, resp)
	assert.Equal(t, model.JobStatusInitializing, accepted.Status)
	assert.Equal(t, "/api/jobs/"+accepted.ID+"/status", resp.Header.Get("Location"))

	_, err := f.runner.Await(context.Background(), accepted.ID)
	require.NoError(t, err)

	resp = f.do(t, http.MethodGet, accepted.StatusURL, "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[model.StatusView](t, resp)
	assert.Equal(t, model.JobStatusCompleted, view.Status)
	assert.Equal(t, 100, view.Progress)
	require.Len(t, view.Messages, 1)
	assert.Equal(t, "Collected 1 products", view.Messages[0].Text)

	resp = f.do(t, http.MethodGet, "/api/jobs/"+accepted.ID+"/result", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Empty(t, resp.Header.Get("Content-Disposition"))
	assert.Equal(t, testCSV, readBody(t, resp))

	resp = f.do(t, http.MethodGet, "/api/jobs/"+accepted.ID+"/download", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename=products_`+accepted.ID+`.csv`, resp.Header.Get("Content-Disposition"))

	resp = f.do(t, http.MethodGet, accepted.StatusURL, "mallory", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "job_not_found", decode[ErrorBody](t, resp).Error)
}

func TestJobsAPI_SubmitErrors(t *testing.T) {
	f := newAPIFixture(t, nil)

	tests := []struct {
		name     string
		owner    string
		body     any
		status   int
		wantCode string
	}{
		{"no owner", "", map[string]any{"kind": "collection"}, http.StatusUnauthorized, "authentication_required"},
		{"unknown kind", "alice", map[string]any{"kind": "mining"}, http.StatusBadRequest, "submission_rejected"},
		{"unsupported kind", "alice", map[string]any{"kind": "analysis"}, http.StatusBadRequest, "submission_rejected"},
		{"out of range", "alice", map[string]any{"kind": "collection", "input": map[string]int{"max_items": 1}}, http.StatusBadRequest, "submission_rejected"},
		{"unknown field", "alice", map[string]any{"kind": "collection", "priority": 1}, http.StatusBadRequest, "invalid_json"},
		{"malformed body", "alice", "{", http.StatusBadRequest, "invalid_json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/api/jobs", tt.owner, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.wantCode, decode[ErrorBody](t, resp).Error)
		})
	}
	assert.Zero(t, f.collected.Load())
}

func TestJobsAPI_ResultStates(t *testing.T) {
	f := newAPIFixture(t, nil)

	resp := f.do(t, http.MethodPost, "/api/jobs", "alice", map[string]any{"kind": "reporting"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	id := decode[jobAccepted](t, resp).ID

	resp = f.do(t, http.MethodGet, "/api/jobs/"+id+"/result", "alice", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "result_not_ready", decode[ErrorBody](t, resp).Error)

	resp = f.do(t, http.MethodPost, "/api/jobs/"+id+"/cancel", "alice", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "reporting jobs are not cancellable")
	assert.Equal(t, "not_cancellable", decode[ErrorBody](t, resp).Error)

	<-f.started
	close(f.release)
	final, err := f.runner.Await(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, model.JobStatusFailed, final.Status)

	resp = f.do(t, http.MethodGet, "/api/jobs/"+id+"/status", "alice", nil)
	view := decode[model.StatusView](t, resp)
	assert.Equal(t, model.FailurePrecondition, view.ErrorCode)
	assert.Equal(t, "No analysis found. Please run an analysis first.", view.Error)
	assert.Equal(t, 75, view.Progress, "progress is kept on failure")

	resp = f.do(t, http.MethodGet, "/api/jobs/"+id+"/result", "alice", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestJobsAPI_CollectNow(t *testing.T) {
	f := newAPIFixture(t, nil)

	t.Run("defaults to 100 items", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/api/collections/immediate", "alice", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		id := resp.Header.Get("X-Job-ID")
		require.NotEmpty(t, id)
		assert.Equal(t, "attachment; filename=products_"+id+".csv", resp.Header.Get("Content-Disposition"))
		assert.Equal(t, testCSV, readBody(t, resp))

		rec, err := f.runner.Await(context.Background(), id)
		require.NoError(t, err)
		assert.JSONEq(t, `{"max_items":100}`, string(rec.Input))
	})

	t.Run("query parameter", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/api/collections/immediate?max_items=10", "alice", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("json body", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/api/collections/immediate", "alice", map[string]int{"max_items": 300})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, decode[ErrorBody](t, resp).Message, "between 2 and 200")
	})

	t.Run("bad query parameter", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/api/collections/immediate?max_items=lots", "alice", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestJobsAPI_History(t *testing.T) {
	f := newAPIFixture(t, nil)
	for range 3 {
		resp := f.do(t, http.MethodPost, "/api/collections/immediate?max_items=5", "alice", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := f.do(t, http.MethodPost, "/api/collections/immediate?max_items=5", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/jobs?page_size=2&date=today&status=completed", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[model.HistoryPage](t, resp)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Items, 2)
	assert.True(t, page.Items[0].HasResult)

	resp = f.do(t, http.MethodGet, "/api/jobs?kind=mining", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJobsAPI_LatestReport(t *testing.T) {
	f := newAPIFixture(t, nil)

	resp := f.do(t, http.MethodGet, "/api/reports/latest", "alice", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decode[ErrorBody](t, resp)
	assert.Equal(t, "missing_precondition", body.Error)
	assert.Equal(t, "No report found. Please generate a report first.", body.Message)

	require.NoError(t, f.workspace.Publish(context.Background(), "alice", stages.SlotReport, &model.Artifact{
		ContentType: "text/markdown; charset=utf-8", FileName: "report.md", Data: []byte("# Market Report"),
	}))

	resp = f.do(t, http.MethodGet, "/api/reports/latest?download=1", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "attachment; filename=report.md", resp.Header.Get("Content-Disposition"))
	assert.Equal(t, "# Market Report", readBody(t, resp))
}

func TestAnswersAPI_Stream(t *testing.T) {
	t.Run("streams fragments uncompressed", func(t *testing.T) {
		f := newAPIFixture(t, nil)
		req, err := http.NewRequest(http.MethodPost, f.server.URL+streamPath,
			strings.NewReader(`{"question":"Which brand is cheaper?"}`))
		require.NoError(t, err)
		req.Header.Set("X-Owner-ID", "alice")
		req.Header.Set("Accept-Encoding", "gzip")

		resp, err := f.server.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
		assert.Empty(t, resp.Header.Get("Content-Encoding"))
		assert.Equal(t, []string{"chunked"}, resp.TransferEncoding)
		assert.Equal(t, "Breakout is cheaper.", readBody(t, resp))
	})

	t.Run("failure before the first fragment", func(t *testing.T) {
		f := newAPIFixture(t, answerFunc(func(context.Context, string, string) (iter.Seq2[string, error], error) {
			return nil, model.Precondition("No analysis found. Please run an analysis first.")
		}))

		resp := f.do(t, http.MethodPost, streamPath, "alice", map[string]string{"question": "Which brand is cheaper?"})

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
		assert.Equal(t, "missing_precondition", resp.Header.Get("X-Error-Code"))
		assert.Equal(t, "No analysis found. Please run an analysis first.\n", readBody(t, resp))
	})

	t.Run("empty question", func(t *testing.T) {
		f := newAPIFixture(t, nil)
		resp := f.do(t, http.MethodPost, streamPath, "alice", map[string]string{"question": "  "})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("mid-stream failure truncates the body", func(t *testing.T) {
		f := newAPIFixture(t, answerFunc(func(context.Context, string, string) (iter.Seq2[string, error], error) {
			return fragments([]string{"Breakout ", "is "}, errors.New("model went away")), nil
		}))

		resp := f.do(t, http.MethodPost, streamPath, "alice", map[string]string{"question": "Which brand is cheaper?"})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		got, err := io.ReadAll(bufio.NewReader(resp.Body))
		require.Error(t, err, "an aborted stream must not look complete")
		assert.Equal(t, "Breakout is ", string(got))
	})
}

func TestAnswersAPI_Answer(t *testing.T) {
	f := newAPIFixture(t, nil)

	resp := f.do(t, http.MethodPost, "/api/answers", "alice", map[string]string{"question": "Which brand is cheaper?"})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[answerResponse](t, resp)
	assert.Equal(t, "Breakout is cheaper.", got.Answer)
}

func TestHealthRoutes(t *testing.T) {
	f := newAPIFixture(t, nil)

	resp := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, healthResponse, readBody(t, resp))
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	resp = f.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
