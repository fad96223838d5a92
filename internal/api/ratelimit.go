package api

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientIdleAfter is how long a client may stay quiet before its bucket is dropped.
const clientIdleAfter = 5 * time.Minute

type clientBucket struct {
	tokens *rate.Limiter
	seen   time.Time
}

// submitLimiter throttles job-creating requests per client address. Idle
// buckets are swept on the request path, at most once per clientIdleAfter.
type submitLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	limit   rate.Limit
	burst   int
	swept   time.Time
	now     func() time.Time
}

// newSubmitLimiter allows rps requests per second per client, with a burst of rps.
func newSubmitLimiter(rps int) *submitLimiter {
	return &submitLimiter{
		clients: make(map[string]*clientBucket),
		limit:   rate.Limit(rps),
		burst:   rps,
		now:     time.Now,
	}
}

// admit takes a token for client. When none is available it returns false and
// how long the client should wait.
func (l *submitLimiter) admit(client string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(now)

	b, ok := l.clients[client]
	if !ok {
		b = &clientBucket{tokens: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = b
	}
	b.seen = now

	r := b.tokens.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

func (l *submitLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.swept) < clientIdleAfter {
		return
	}
	l.swept = now
	cutoff := now.Add(-clientIdleAfter)
	for client, b := range l.clients {
		if b.seen.Before(cutoff) {
			delete(l.clients, client)
		}
	}
}

// RateLimit returns a Middleware that limits submit and retry requests to rps
// req/s per client IP. Other requests pass through. If rps is 0 the middleware
// is a no-op.
func RateLimit(rps int) Middleware {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := newSubmitLimiter(rps)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !createsJob(r) {
				next.ServeHTTP(w, r)
				return
			}
			client := clientIP(r)
			if ok, wait := limiter.admit(client); !ok {
				slog.Warn("rate limited",
					"client", client,
					"path", r.URL.Path,
					"retry_after", wait,
					"request_id", RequestIDFromContext(r.Context()),
				)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded, slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// createsJob reports whether r is a submit (POST /urls) or a retry
// (POST /urls/{id}/retry).
func createsJob(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	p := r.URL.Path
	return p == "/urls" || (strings.HasPrefix(p, "/urls/") && strings.HasSuffix(p, "/retry"))
}

// clientIP returns the first X-Forwarded-For hop when present, else the host
// part of RemoteAddr.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
