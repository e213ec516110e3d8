package statsd

import (
	"net"
	"strings"
	"testing"
	"time"
)

func TestQualify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		prefix, name, want string
	}{
		{"marketpulse", "job.transition", "marketpulse.job.transition"},
		{"marketpulse", " job/duration ", "marketpulse.job_duration"},
		{"", "foo..bar", "foo.bar"},
		{"marketpulse", "", ""},
		{"marketpulse", "..", "marketpulse"},
	}

	for _, tt := range tests {
		if got := qualify(tt.prefix, tt.name); got != tt.want {
			t.Fatalf("qualify(%q, %q) = %q, want %q", tt.prefix, tt.name, got, tt.want)
		}
	}
}

func TestFormatTags(t *testing.T) {
	t.Parallel()

	global := map[string]string{"env": "prod", " service ": " marketpulse "}
	local := map[string]string{"kind": " collection ", "": "ignored", "env": "stage"}

	got := formatTags(global, local)
	want := "|#env:stage,kind:collection,service:marketpulse"
	if got != want {
		t.Fatalf("formatTags() = %q, want %q", got, want)
	}
	if formatTags(nil, nil) != "" {
		t.Fatal("formatTags(nil, nil) should be empty")
	}
}

func TestClientDisabledDropsMetrics(t *testing.T) {
	t.Parallel()

	c, err := NewClient(Config{Enabled: false, Address: "127.0.0.1:8125"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if c.Enabled() {
		t.Fatal("disabled client reports enabled")
	}
	c.Count("job.transition", 1, nil)
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	var nilClient *Client
	nilClient.Timing("job.duration", time.Second, nil)
}

func TestClientWritesLines(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer pc.Close()

	c, err := NewClient(Config{
		Enabled:    true,
		Address:    pc.LocalAddr().String(),
		Prefix:     "marketpulse.",
		GlobalTags: map[string]string{"env": "test"},
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer c.Close()

	c.Timing("job.duration", 1500*time.Millisecond, map[string]string{"kind": "analysis"})

	buf := make([]byte, 512)
	if err := pc.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("deadline: %v", err)
	}
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got := string(buf[:n])
	want := "marketpulse.job.duration:1500|ms|#env:test,kind:analysis"
	if !strings.EqualFold(got, want) {
		t.Fatalf("line = %q, want %q", got, want)
	}
}
