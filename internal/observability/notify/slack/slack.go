// Package slack posts job failure notifications to a Slack incoming webhook.
package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/target/marketpulse/internal/observability/notify"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL   string
	Channel      string
	Username     string
	Timeout      time.Duration
	RetryLimit   int
	Client       *http.Client
	JobURLPrefix string
}

// Client delivers job failure notifications to a Slack webhook.
type Client struct {
	webhookURL   string
	channel      string
	username     string
	jobURLPrefix string
	poster       *notify.Poster
}

var _ notify.Sink = (*Client)(nil)

// NewClient builds a Slack webhook client.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	return &Client{
		webhookURL:   webhookURL,
		channel:      strings.TrimSpace(cfg.Channel),
		username:     notify.FallbackString(strings.TrimSpace(cfg.Username), "marketpulse"),
		jobURLPrefix: strings.TrimSpace(cfg.JobURLPrefix),
		poster:       notify.NewPoster("slack webhook", cfg.Client, cfg.Timeout, cfg.RetryLimit),
	}, nil
}

// SendJobFailure posts a formatted message to Slack.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	body, err := json.Marshal(c.formatMessage(payload))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}
	return c.poster.Post(ctx, c.webhookURL, body)
}

func (c *Client) formatMessage(payload notify.JobFailurePayload) map[string]any {
	at := payload.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}

	var text strings.Builder
	text.WriteString("*Job failed*")
	if job := c.jobLink(payload.JobID); job != "" {
		text.WriteString(" ")
		text.WriteString(job)
	}
	if payload.Kind != "" {
		fmt.Fprintf(&text, " (%s)", payload.Kind)
	}
	text.WriteByte('\n')

	for _, f := range [][2]string{
		{"Severity", notify.FallbackString(payload.Severity, notify.SeverityCritical)},
		{"Owner", escape(payload.Owner)},
		{"Reason", payload.Reason},
		{"Error class", payload.ErrorClass},
		{"Error", escape(payload.Error)},
	} {
		if strings.TrimSpace(f[1]) == "" {
			continue
		}
		fmt.Fprintf(&text, "• %s: %s\n", f[0], f[1])
	}

	if len(payload.Metadata) > 0 {
		keys := make([]string, 0, len(payload.Metadata))
		for k := range payload.Metadata {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		text.WriteString("• Metadata:\n")
		for _, k := range keys {
			fmt.Fprintf(&text, "    • %s: %s\n", k, escape(payload.Metadata[k]))
		}
	}
	text.WriteString("• Timestamp: ")
	text.WriteString(at.UTC().Format(time.RFC3339))

	msg := map[string]any{
		"text":     text.String(),
		"username": c.username,
	}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	return msg
}

// jobLink renders the job id, linked to its status page when a prefix is configured.
func (c *Client) jobLink(jobID string) string {
	id := strings.TrimSpace(jobID)
	if id == "" {
		return ""
	}
	code := "`" + escape(id) + "`"
	if c.jobURLPrefix == "" {
		return code
	}
	u, err := url.Parse(c.jobURLPrefix)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return code
	}
	link, err := url.JoinPath(u.String(), id, "status")
	if err != nil {
		return code
	}
	return fmt.Sprintf("<%s|%s>", link, escape(id))
}

func escape(value string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(value)
}
