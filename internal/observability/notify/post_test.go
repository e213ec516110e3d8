package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestPosterRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			http.Error(w, "try again", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPoster("webhook", srv.Client(), time.Second, 2)
	p.Backoff = time.Millisecond

	if err := p.Post(context.Background(), srv.URL, []byte(`{}`)); err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestPosterReturnsLastError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewPoster("webhook", srv.Client(), time.Second, 0)
	err := p.Post(context.Background(), srv.URL, []byte(`{}`))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestFallbackString(t *testing.T) {
	if FallbackString("  ", "x") != "x" {
		t.Fatal("blank value should fall back")
	}
	if FallbackString("a", "x") != "a" {
		t.Fatal("value should be kept")
	}
}
