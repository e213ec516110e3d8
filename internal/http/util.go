package httpx

import (
	"fmt"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/target/marketpulse/internal/domain/model"
)

// parseIntQuery returns the integer value of a query param or a default.
// It is tolerant of missing/invalid values.
func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// parseHistoryQuery reads the history filters of an owner from the query string.
// Pagination is clamped by the service.
func parseHistoryQuery(r *http.Request, owner string) (model.HistoryQuery, error) {
	q := r.URL.Query()
	hq := model.HistoryQuery{
		Owner:    owner,
		Date:     model.ParseDateFilter(q.Get("date")),
		Page:     parseIntQuery(r, "page", 1),
		PageSize: parseIntQuery(r, "page_size", 0),
	}
	if v := strings.TrimSpace(q.Get("status")); v != "" && !strings.EqualFold(v, "all") {
		hq.Status = model.JobStatus(strings.ToLower(v))
	}
	if v := strings.TrimSpace(q.Get("kind")); v != "" {
		if err := hq.Kind.UnmarshalText([]byte(v)); err != nil {
			return hq, model.Rejectf("unknown job kind %q", v)
		}
	}
	return hq, nil
}

// writeArtifact writes a stored artifact. Attachments get a Content-Disposition.
func writeArtifact(w http.ResponseWriter, art *model.Artifact, attachment bool) {
	ct := art.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(art.Data)))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if attachment {
		name := art.FileName
		if name == "" {
			name = "result"
		}
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(art.Data)
}

// downloadName suffixes a result file name with its job id: products.csv
// becomes products_<id>.csv.
func downloadName(fileName, id string) string {
	if fileName == "" {
		fileName = "result"
	}
	ext := path.Ext(fileName)
	return fmt.Sprintf("%s_%s%s", strings.TrimSuffix(fileName, ext), id, ext)
}
