package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/urlqueue/urlqueue/internal/bus"
	"github.com/urlqueue/urlqueue/internal/job"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{
			name:    "valid public IP",
			url:     "http://93.184.216.34/hook",
			wantErr: false,
		},
		{
			name:    "invalid scheme ftp",
			url:     "ftp://example.com/hook",
			wantErr: true,
		},
		{
			name:    "loopback IP blocked",
			url:     "http://127.0.0.1/hook",
			wantErr: true,
		},
		{
			name:    "private IP blocked",
			url:     "http://192.168.1.1/hook",
			wantErr: true,
		},
		{
			name:    "link-local IP blocked (AWS metadata)",
			url:     "http://169.254.169.254/hook",
			wantErr: true,
		},
		{
			name:    "garbled URL",
			url:     "://not a valid url%%",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestNew_RejectsInternalURL(t *testing.T) {
	if _, err := New("http://127.0.0.1:9/hook"); err == nil {
		t.Fatal("expected error for loopback webhook")
	}
}

// testNotifier bypasses URL validation so it can target an httptest server.
func testNotifier(url string, attempts int) *Notifier {
	return &Notifier{
		url:      url,
		client:   &http.Client{Timeout: time.Second},
		attempts: attempts,
		base:     time.Millisecond,
		cap:      5 * time.Millisecond,
	}
}

func TestPublish_DeliversEvent(t *testing.T) {
	got := make(chan bus.Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var ev bus.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Errorf("decode: %v", err)
		}
		got <- ev
	}))
	defer srv.Close()

	n := testNotifier(srv.URL, 3)
	if err := n.Publish(context.Background(), bus.Event{JobID: 5, Status: job.StatusSuccess}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	n.Close()

	select {
	case ev := <-got:
		if ev.JobID != 5 || ev.Status != job.StatusSuccess {
			t.Errorf("event = %+v", ev)
		}
	default:
		t.Fatal("no event delivered")
	}
}

func TestPublish_RetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := testNotifier(srv.URL, 5)
	_ = n.Publish(context.Background(), bus.Event{JobID: 1})
	n.Close()

	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestPublish_GivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := testNotifier(srv.URL, 2)
	_ = n.Publish(context.Background(), bus.Event{JobID: 1})
	n.Close()

	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestPublish_CancelledContextStops(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n := testNotifier(srv.URL, 3)
	_ = n.Publish(ctx, bus.Event{JobID: 1})
	n.Close()

	if got := calls.Load(); got != 0 {
		t.Errorf("calls = %d, want 0", got)
	}
}

func TestJitter_Bounded(t *testing.T) {
	for attempt := 1; attempt <= 12; attempt++ {
		d := jitter(attempt, time.Second, 5*time.Minute)
		if d < 0 || d >= 5*time.Minute {
			t.Errorf("jitter(%d) = %v out of range", attempt, d)
		}
	}
}
