package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/urlqueue/urlqueue/internal/bus"
)

const (
	retryAttempts = 8
	retryBase     = time.Second
	retryCap      = 5 * time.Minute
)

// Notifier posts job events as JSON to a fixed URL.
type Notifier struct {
	url      string
	client   *http.Client
	attempts int
	base     time.Duration
	cap      time.Duration
	wg       sync.WaitGroup
}

// New returns a Notifier for callbackURL after checking it does not point at
// an internal address.
func New(callbackURL string) (*Notifier, error) {
	if err := validateURL(callbackURL); err != nil {
		return nil, fmt.Errorf("webhook url: %w", err)
	}
	return &Notifier{
		url:      callbackURL,
		client:   &http.Client{Timeout: 30 * time.Second},
		attempts: retryAttempts,
		base:     retryBase,
		cap:      retryCap,
	}, nil
}

// Publish dispatches ev asynchronously with up to 8 attempts and full-jitter
// exponential backoff. Retries stop once ctx is done, so pass a context that
// lives as long as the server rather than one scoped to the job.
func (n *Notifier) Publish(ctx context.Context, ev bus.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.send(ctx, payload)
	}()
	return nil
}

// Close waits for in-flight deliveries. Cancel the context given to Publish
// first to abandon pending retries.
func (n *Notifier) Close() {
	n.wg.Wait()
}

// validateURL blocks non-HTTP schemes and private/internal IP ranges.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	host := u.Hostname()
	ips, err := net.LookupHost(host)
	if err != nil {
		return fmt.Errorf("DNS lookup failed: %w", err)
	}

	for _, ipStr := range ips {
		ip := net.ParseIP(ipStr)
		if ip == nil {
			continue
		}
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return fmt.Errorf("private/internal IP blocked: %s", ipStr)
		}
	}

	return nil
}

func (n *Notifier) send(ctx context.Context, payload []byte) {
	for attempt := 1; attempt <= n.attempts; attempt++ {
		if ctx.Err() != nil {
			return
		}
		err := n.post(ctx, payload)
		if err == nil {
			return
		}
		slog.Warn("webhook attempt failed", "attempt", attempt, "url", n.url, "error", err)
		if attempt < n.attempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(jitter(attempt, n.base, n.cap)):
			}
		}
	}
	slog.Error("webhook: all retries exhausted", "url", n.url)
}

// jitter returns a random duration between 0 and min(cap, base * 2^attempt).
func jitter(attempt int, base, cap time.Duration) time.Duration {
	exp := base * (1 << attempt)
	if exp > cap {
		exp = cap
	}
	if exp <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(exp)))
}

func (n *Notifier) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("non-2xx status: %d", resp.StatusCode)
	}
	return nil
}

var _ bus.Publisher = (*Notifier)(nil)
