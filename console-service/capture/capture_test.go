package capture

import (
	"context"
	"testing"
	"time"
)

func TestIsConnectionDescriptor(t *testing.T) {
	tests := []struct {
		name string
		line string
		want bool
	}{
		{"tmate session line", "ssh session: alice@nyc1.tmate.io -p 2200", true},
		{"tmate session line uppercase", "SSH SESSION: alice@nyc1.tmate.io", true},
		{"ssh with at sign", "connect with ssh root@10.0.0.5", true},
		{"ssh with port flag", "run: ssh -p 2222 host", true},
		{"serveo forwarding line", "Forwarding TCP connections from serveo.net:4242", true},
		{"http url line", "https://abc123.serveo.net", true},
		{"tmate banner", "Tip: you can use tmate in a read-only mode", false},
		{"ssh without address or port", "starting ssh daemon", false},
		{"unrelated output", "Connecting to remote server...", false},
		{"empty", "", false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsConnectionDescriptor(test.line); got != test.want {
				t.Errorf("IsConnectionDescriptor(%q) = %v, want %v", test.line, got, test.want)
			}
		})
	}
}

func TestFirstMatchReturnsFirstMatchOnly(t *testing.T) {
	lines := make(chan string, 5)
	lines <- "Tip: you can use tmate in a read-only mode"
	lines <- "   "
	lines <- "ssh session: alice@host -p 2222"
	lines <- "ssh session: second-session-should-not-win"

	got, err := FirstMatch(context.Background(), lines, IsConnectionDescriptor, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if got != "ssh session: alice@host -p 2222" {
		t.Errorf("expected the first matching line, got %q", got)
	}

	// Scraping stops at the first match; the later line is left unread.
	if remaining := len(lines); remaining != 1 {
		t.Errorf("expected 1 unread line after the first match, got %d", remaining)
	}
}

func TestFirstMatchTimesOut(t *testing.T) {
	lines := make(chan string)

	start := time.Now()
	_, err := FirstMatch(context.Background(), lines, IsConnectionDescriptor, 50*time.Millisecond)
	if err != ErrNoMatch {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took too long: %s", elapsed)
	}
}

func TestFirstMatchClosedStream(t *testing.T) {
	lines := make(chan string, 1)
	lines <- "banner output without a session"
	close(lines)

	_, err := FirstMatch(context.Background(), lines, IsConnectionDescriptor, time.Second)
	if err != ErrNoMatch {
		t.Fatalf("expected ErrNoMatch on closed stream, got %v", err)
	}
}

func TestFirstMatchHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lines := make(chan string)
	_, err := FirstMatch(ctx, lines, IsConnectionDescriptor, time.Minute)
	if err != ErrNoMatch {
		t.Fatalf("expected ErrNoMatch on cancelled context, got %v", err)
	}
}
