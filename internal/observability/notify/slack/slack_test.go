package slack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/target/marketpulse/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when webhook url missing")
	}
}

func TestFormatMessageIncludesFields(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
		Channel:    "#alerts",
		Username:   "bot",
		Timeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatMessage(notify.JobFailurePayload{
		JobID:      "123",
		Kind:       "analysis",
		Owner:      "alice",
		Reason:     "precondition",
		Error:      "No product data found. <script>",
		ErrorClass: "stage_precondition",
		Metadata:   map[string]string{"b": "2", "a": "1"},
	})

	if msg["username"] != "bot" {
		t.Fatalf("expected username to be preserved, got %v", msg["username"])
	}
	if msg["channel"] != "#alerts" {
		t.Fatalf("expected channel to be set, got %v", msg["channel"])
	}

	text, ok := msg["text"].(string)
	if !ok {
		t.Fatalf("expected text field")
	}
	for _, want := range []string{"Job failed", "`123`", "analysis", "alice", "precondition", "&lt;script&gt;", "stage_precondition"} {
		if !strings.Contains(text, want) {
			t.Fatalf("message text missing %q: %s", want, text)
		}
	}
	if strings.Index(text, "a: 1") > strings.Index(text, "b: 2") {
		t.Fatalf("metadata should be sorted: %s", text)
	}
}

func TestFormatMessageJobLink(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL:   "https://hooks.slack.com/services/test",
		JobURLPrefix: "https://marketpulse.local/api/jobs",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text, _ := client.formatMessage(notify.JobFailurePayload{JobID: "job-1"})["text"].(string)
	expected := "<https://marketpulse.local/api/jobs/job-1/status|job-1>"
	if !strings.Contains(text, expected) {
		t.Fatalf("expected job link %q in text: %s", expected, text)
	}
}

func TestSendJobFailurePostsJSON(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL, Client: srv.Client()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "j"}); err != nil {
		t.Fatalf("SendJobFailure() error = %v", err)
	}
	if got["username"] != "marketpulse" {
		t.Fatalf("unexpected payload %v", got)
	}
}
