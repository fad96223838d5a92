package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimit_Disabled(t *testing.T) {
	t.Parallel()
	mw := RateLimit(0)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/urls", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	t.Parallel()
	mw := RateLimit(10)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	// First request should always be allowed (burst=rps=10).
	req := httptest.NewRequest(http.MethodPost, "/urls", nil)
	req.RemoteAddr = "1.2.3.4:5678"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

func TestRateLimit_BlocksOverLimit(t *testing.T) {
	t.Parallel()
	// rps=1, burst=1: second request from same IP should be blocked.
	mw := RateLimit(1)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/urls", nil)
		req.RemoteAddr = "5.6.7.8:1234"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	// First request: allowed (consumes the burst token).
	if code := send(); code != http.StatusOK {
		t.Errorf("first request: status = %d, want 200", code)
	}
	// Second request immediately after: blocked.
	if code := send(); code != http.StatusTooManyRequests {
		t.Errorf("second request: status = %d, want 429", code)
	}
}

func TestRateLimit_SetsRetryAfter(t *testing.T) {
	t.Parallel()
	handler := RateLimit(1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	var rr *httptest.ResponseRecorder
	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/urls", nil)
		req.RemoteAddr = "4.4.4.4:1"
		rr = httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
	}
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want 1", got)
	}
}

func TestSubmitLimiter_SweepsIdleClients(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newSubmitLimiter(1)
	l.now = func() time.Time { return now }

	if ok, _ := l.admit("a"); !ok {
		t.Fatal("first request from a was refused")
	}
	if ok, wait := l.admit("a"); ok || wait <= 0 {
		t.Fatalf("second request from a: ok = %v, wait = %v", ok, wait)
	}

	now = now.Add(clientIdleAfter + time.Second)
	if ok, _ := l.admit("b"); !ok {
		t.Fatal("first request from b was refused")
	}
	if _, found := l.clients["a"]; found {
		t.Error("idle client a was not swept")
	}
	if _, found := l.clients["b"]; !found {
		t.Error("active client b was swept")
	}
}

func TestRateLimit_IgnoresReads(t *testing.T) {
	t.Parallel()
	// rps=1, but GET requests should never be rate limited.
	mw := RateLimit(1)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/urls", nil)
		req.RemoteAddr = "9.9.9.9:9999"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("GET request %d: status = %d, want 200", i+1, rr.Code)
		}
	}
}

func TestRateLimit_AppliesToRetry(t *testing.T) {
	t.Parallel()
	mw := RateLimit(1)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	send := func(path string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = "7.7.7.7:1000"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := send("/urls/3/retry"); code != http.StatusCreated {
		t.Errorf("first retry: status = %d, want 201", code)
	}
	if code := send("/urls"); code != http.StatusTooManyRequests {
		t.Errorf("submit after retry: status = %d, want 429", code)
	}
}

func TestCreatesJob(t *testing.T) {
	t.Parallel()
	tests := []struct {
		method, path string
		want         bool
	}{
		{http.MethodPost, "/urls", true},
		{http.MethodPost, "/urls/12/retry", true},
		{http.MethodGet, "/urls", false},
		{http.MethodDelete, "/urls/12", false},
		{http.MethodGet, "/urls/12/logs", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		if got := createsJob(req); got != tt.want {
			t.Errorf("createsJob(%s %s) = %v, want %v", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:4321"
	if got := clientIP(req); got != "10.0.0.1" {
		t.Errorf("clientIP = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Errorf("clientIP with XFF = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	if got := clientIP(req); got != "2001:db8::1" {
		t.Errorf("clientIP IPv6 = %q", got)
	}
}
