// Package client talks to the urlqueue REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/urlqueue/urlqueue/internal/job"
	"github.com/urlqueue/urlqueue/internal/jobsync"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Is makes a 404 match job.ErrNotFound and a 409 match job.ErrNotTerminal.
func (e *StatusError) Is(target error) bool {
	switch target {
	case job.ErrNotFound:
		return e.Code == http.StatusNotFound
	case job.ErrNotTerminal:
		return e.Code == http.StatusConflict
	}
	return false
}

// Client is a Backend for the job synchronizers.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout on a copy of the HTTP client, so a
// client passed to WithHTTPClient is left as it was.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.http
		hc.Timeout = d
		c.http = &hc
	}
}

// WithRateLimit caps the request rate across every caller sharing the client.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// New returns a client for the API rooted at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ListJobs(ctx context.Context, q url.Values) (job.Page, error) {
	path := "/urls"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var page job.Page
	err := c.do(ctx, http.MethodGet, path, nil, &page)
	return page, err
}

func (c *Client) GetJob(ctx context.Context, id int64) (job.Record, error) {
	var rec job.Record
	err := c.do(ctx, http.MethodGet, jobPath(id), nil, &rec)
	return rec, err
}

func (c *Client) CreateJob(ctx context.Context, rawURL string) (job.Record, error) {
	var rec job.Record
	err := c.do(ctx, http.MethodPost, "/urls", job.CreateRequest{URL: rawURL}, &rec)
	return rec, err
}

func (c *Client) DeleteJob(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, jobPath(id), nil, nil)
}

func (c *Client) RetryJob(ctx context.Context, id int64) (job.Record, error) {
	var rec job.Record
	err := c.do(ctx, http.MethodPost, jobPath(id)+"/retry", nil, &rec)
	return rec, err
}

func (c *Client) ListLogs(ctx context.Context, id, cursor int64) (job.LogPage, error) {
	path := jobPath(id) + "/logs"
	if cursor != 0 {
		path += "?cursor=" + strconv.FormatInt(cursor, 10)
	}
	var page job.LogPage
	err := c.do(ctx, http.MethodGet, path, nil, &page)
	return page, err
}

// Health is the server's view of its own state.
type Health struct {
	Status string `json:"status"`
	Queue  string `json:"queue"`
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.do(ctx, http.MethodGet, "/health", nil, &h)
	return h, err
}

func jobPath(id int64) string {
	return "/urls/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %w", method, path, readStatusError(resp))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func readStatusError(resp *http.Response) error {
	se := &StatusError{Code: resp.StatusCode}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return se
	}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &payload) == nil && payload.Error != "" {
		se.Message = payload.Error
	} else {
		se.Message = strings.TrimSpace(string(b))
	}
	return se
}

// IsStatus reports whether err carries an HTTP status error with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

var _ jobsync.Backend = (*Client)(nil)
