// Package client is a Go client for the marketpulse job API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/target/marketpulse/internal/domain/model"
)

const maxErrorBody = 64 << 10

// Config configures a Client.
type Config struct {
	BaseURL string // Required: service root, e.g. http://localhost:8080
	// Token is sent as a bearer token when set.
	Token string
	// Owner is sent in OwnerHeader when set, for services identifying owners by header.
	Owner       string
	OwnerHeader string
	// HTTPClient defaults to a client without a timeout so answers can stream.
	HTTPClient *http.Client
}

// Client calls the job, result and answer endpoints.
type Client struct {
	base        *url.URL
	token       string
	owner       string
	ownerHeader string
	http        *http.Client
}

// Accepted is the response to a job submission.
type Accepted struct {
	ID        string          `json:"id"`
	Kind      model.JobKind   `json:"kind"`
	Status    model.JobStatus `json:"status"`
	StatusURL string          `json:"status_url"`
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
	case e.Message != "":
		return fmt.Sprintf("%s (%d)", e.Message, e.Status)
	default:
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if raw == "" {
		return nil, errors.New("base URL is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http or https, got %q", base.Scheme)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	header := cfg.OwnerHeader
	if header == "" {
		header = "X-Owner-ID"
	}
	return &Client{
		base:        base,
		token:       cfg.Token,
		owner:       cfg.Owner,
		ownerHeader: header,
		http:        hc,
	}, nil
}

// Submit creates a job and returns without waiting for it.
func (c *Client) Submit(ctx context.Context, kind model.JobKind, input json.RawMessage) (Accepted, error) {
	var out Accepted
	body := map[string]any{"kind": kind}
	if len(input) > 0 {
		body["input"] = input
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/jobs", nil, body, &out)
	return out, err
}

// Status returns the polling projection of a job.
func (c *Client) Status(ctx context.Context, id string) (model.StatusView, error) {
	var out model.StatusView
	err := c.doJSON(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id)+"/status", nil, nil, &out)
	return out, err
}

// Cancel stops a running collection or pipeline job.
func (c *Client) Cancel(ctx context.Context, id string) (model.StatusView, error) {
	var out model.StatusView
	err := c.doJSON(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/cancel", nil, nil, &out)
	return out, err
}

// HistoryQuery filters History. Zero values use the service defaults.
type HistoryQuery struct {
	Date     model.DateFilter
	Status   model.JobStatus
	Kind     model.JobKind
	Page     int
	PageSize int
}

// History lists the caller's jobs newest first.
func (c *Client) History(ctx context.Context, q HistoryQuery) (model.HistoryPage, error) {
	params := url.Values{}
	if q.Date != "" {
		params.Set("date", string(q.Date))
	}
	if q.Status != "" {
		params.Set("status", string(q.Status))
	}
	if q.Kind != "" {
		params.Set("kind", string(q.Kind))
	}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		params.Set("page_size", strconv.Itoa(q.PageSize))
	}
	var out model.HistoryPage
	err := c.doJSON(ctx, http.MethodGet, "/api/jobs", params, nil, &out)
	return out, err
}

// Watch polls a job every interval until it is terminal. onChange is called
// whenever the status or the number of messages changes.
func (c *Client) Watch(ctx context.Context, id string, interval time.Duration, onChange func(model.StatusView)) (model.StatusView, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last model.StatusView
	first := true
	for {
		view, err := c.Status(ctx, id)
		if err != nil {
			return last, err
		}
		if onChange != nil && (first || view.Status != last.Status || len(view.Messages) != len(last.Messages)) {
			onChange(view)
		}
		first = false
		last = view
		if view.Status.IsTerminal() {
			return view, nil
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Result fetches a completed job's artifact. download selects the attachment
// endpoint, whose file name carries the job id.
func (c *Client) Result(ctx context.Context, id string, download bool) (*model.Artifact, error) {
	suffix := "/result"
	if download {
		suffix = "/download"
	}
	return c.artifact(ctx, "/api/jobs/"+url.PathEscape(id)+suffix, nil)
}

// LatestReport fetches the caller's most recent report.
func (c *Client) LatestReport(ctx context.Context) (*model.Artifact, error) {
	return c.artifact(ctx, "/api/reports/latest", url.Values{"download": {"1"}})
}

// Ask streams the answer to question into w as fragments arrive and returns
// the number of bytes written. A stream cut short by the service returns an
// error after the partial answer has been written.
func (c *Client) Ask(ctx context.Context, question string, w io.Writer) (int64, error) {
	payload, err := json.Marshal(model.QuestionInput{Question: question})
	if err != nil {
		return 0, err
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/answers/stream", nil, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var n int64
	buf := make([]byte, 4096)
	flusher, _ := w.(interface{ Flush() error })
	for {
		read, rerr := resp.Body.Read(buf)
		if read > 0 {
			written, werr := w.Write(buf[:read])
			n += int64(written)
			if werr != nil {
				return n, werr
			}
			if flusher != nil {
				if ferr := flusher.Flush(); ferr != nil {
					return n, ferr
				}
			}
		}
		if errors.Is(rerr, io.EOF) {
			return n, nil
		}
		if rerr != nil {
			return n, fmt.Errorf("answer stream interrupted: %w", rerr)
		}
	}
}

func (c *Client) artifact(ctx context.Context, path string, params url.Values) (*model.Artifact, error) {
	resp, err := c.do(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	art := &model.Artifact{ContentType: resp.Header.Get("Content-Type"), Data: data}
	if _, params, perr := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); perr == nil {
		art.FileName = params["filename"]
	}
	return art, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, params url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	resp, err := c.do(ctx, method, path, params, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do sends the request and converts non-2xx responses into APIError.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body io.Reader) (*http.Response, error) {
	u := c.base.JoinPath(path)
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.owner != "" {
		req.Header.Set(c.ownerHeader, c.owner)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, decodeAPIError(resp)
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{Status: resp.StatusCode, Code: resp.Header.Get("X-Error-Code")}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &body) == nil {
			apiErr.Code = body.Error
			apiErr.Message = body.Message
			return apiErr
		}
	}
	apiErr.Message = strings.TrimSpace(string(raw))
	return apiErr
}
