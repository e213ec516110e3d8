package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Poster delivers JSON bodies to a webhook with linear backoff between attempts.
type Poster struct {
	Label      string
	Client     *http.Client
	RetryLimit int
	Backoff    time.Duration
}

// NewPoster returns a Poster with the defaults the sinks share.
func NewPoster(label string, client *http.Client, timeout time.Duration, retryLimit int) *Poster {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Poster{
		Label:      label,
		Client:     client,
		RetryLimit: max(retryLimit, 0),
		Backoff:    200 * time.Millisecond,
	}
}

// Post sends body to url, retrying failed attempts up to RetryLimit times.
func (p *Poster) Post(ctx context.Context, url string, body []byte) error {
	attempts := p.RetryLimit + 1
	var lastErr error
	for attempt := range attempts {
		err := p.once(ctx, url, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == attempts-1 {
			break
		}
		timer := time.NewTimer(time.Duration(attempt+1) * p.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func (p *Poster) once(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", p.Label, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", p.Label, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		closeErr := resp.Body.Close()
		if readErr != nil {
			return errors.Join(fmt.Errorf("read %s error response: %w", p.Label, readErr), closeErr)
		}
		return fmt.Errorf("%s %s: %s", p.Label, resp.Status, strings.TrimSpace(string(respBody)))
	}

	_, drainErr := io.Copy(io.Discard, resp.Body)
	closeErr := resp.Body.Close()
	if drainErr != nil {
		return errors.Join(fmt.Errorf("drain %s response body: %w", p.Label, drainErr), closeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close response body: %w", closeErr)
	}
	return nil
}
