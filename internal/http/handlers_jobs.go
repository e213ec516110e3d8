package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/target/marketpulse/internal/domain/model"
	"github.com/target/marketpulse/internal/service"
)

// JobHandlers serves the job API.
type JobHandlers struct {
	Svc              *service.JobService
	ImmediateTimeout time.Duration
	Logger           *slog.Logger
}

type createJobRequest struct {
	Kind  string          `json:"kind"`
	Input json.RawMessage `json:"input,omitempty"`
}

type jobAccepted struct {
	ID        string          `json:"id"`
	Kind      model.JobKind   `json:"kind"`
	Status    model.JobStatus `json:"status"`
	StatusURL string          `json:"status_url"`
}

// CreateJob handles POST /api/jobs.
func (h *JobHandlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var req createJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	var kind model.JobKind
	if err := kind.UnmarshalText([]byte(req.Kind)); err != nil {
		writeServiceError(w, r, h.Logger, model.Rejectf("unknown job kind %q", req.Kind))
		return
	}

	view, err := h.Svc.Submit(r.Context(), model.SubmitRequest{Kind: kind, Owner: owner, Input: req.Input})
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	w.Header().Set("Location", "/api/jobs/"+view.ID+"/status")
	WriteJSON(w, http.StatusAccepted, jobAccepted{
		ID:        view.ID,
		Kind:      view.Kind,
		Status:    view.Status,
		StatusURL: "/api/jobs/" + view.ID + "/status",
	})
}

// ListJobs handles GET /api/jobs.
func (h *JobHandlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	q, err := parseHistoryQuery(r, owner)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	page, err := h.Svc.History(r.Context(), q)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, page)
}

// GetStatus handles GET /api/jobs/{id}/status.
func (h *JobHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Describe(r.Context(), r.PathValue("id"), owner)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// GetResult handles GET /api/jobs/{id}/result.
func (h *JobHandlers) GetResult(w http.ResponseWriter, r *http.Request) {
	h.result(w, r, false)
}

// Download handles GET /api/jobs/{id}/download.
func (h *JobHandlers) Download(w http.ResponseWriter, r *http.Request) {
	h.result(w, r, true)
}

func (h *JobHandlers) result(w http.ResponseWriter, r *http.Request, attachment bool) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	art, err := h.Svc.Result(r.Context(), id, owner)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	if attachment {
		cp := *art
		cp.FileName = downloadName(art.FileName, id)
		art = &cp
	}
	writeArtifact(w, art, attachment)
}

// CancelJob handles POST /api/jobs/{id}/cancel.
func (h *JobHandlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Cancel(r.Context(), r.PathValue("id"), owner)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// CollectNow handles POST /api/collections/immediate. It waits for the
// collection to finish and returns the dataset as a CSV attachment. The item
// count comes from the max_items query parameter or JSON body.
func (h *JobHandlers) CollectNow(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	in := model.CollectionInput{MaxItems: model.DefaultCollectionItems}
	if v := strings.TrimSpace(r.URL.Query().Get("max_items")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeServiceError(w, r, h.Logger, model.Rejectf("max_items must be an integer, got %q", v))
			return
		}
		in.MaxItems = n
	} else if !DecodeOptionalJSON(w, r, &in) {
		return
	}
	input, err := json.Marshal(in)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}

	ctx := r.Context()
	if h.ImmediateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.ImmediateTimeout)
		defer cancel()
	}
	rec, art, err := h.Svc.SubmitAndWait(ctx, model.SubmitRequest{
		Kind:  model.JobKindCollection,
		Owner: owner,
		Input: input,
	})
	if rec != nil {
		w.Header().Set("X-Job-ID", rec.ID)
	}
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	cp := *art
	cp.FileName = downloadName(art.FileName, rec.ID)
	writeArtifact(w, &cp, true)
}

// LatestReport handles GET /api/reports/latest. Pass download=1 for an attachment.
func (h *JobHandlers) LatestReport(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	art, err := h.Svc.LatestReport(r.Context(), owner)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	download, _ := strconv.ParseBool(r.URL.Query().Get("download"))
	writeArtifact(w, art, download)
}
