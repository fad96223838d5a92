package job

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailure    Status = "failure"
)

var (
	// ErrNotFound is returned when a job does not exist or was deleted.
	ErrNotFound = errors.New("job not found")
	// ErrNotTerminal is returned when retrying a job that has not finished yet.
	ErrNotTerminal = errors.New("job is not in a terminal state")
	// ErrInvalidTransition is returned when a status change would move a job backwards.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// IsTerminal returns true for statuses that represent a final state.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSuccess, StatusFailure:
		return true
	}
	return false
}

// CanTransitionTo reports whether a job may move from s to next.
// Transitions only go forward: pending -> processing -> success|failure.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next.IsTerminal()
	}
	return false
}

// Preview holds display metadata that becomes available after the job was created.
type Preview struct {
	Title        string `json:"title,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// Record is a single submitted URL and its processing state.
type Record struct {
	ID        int64     `json:"id"`
	URL       string    `json:"url"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	File      string    `json:"file,omitempty"`
	Preview   *Preview  `json:"preview,omitempty"`
	Retries   int64     `json:"retries,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Page is one page of the job list. A zero NextCursor means there are no further pages.
type Page struct {
	URLs       []Record `json:"urls"`
	NextCursor int64    `json:"next_cursor"`
}

type Log struct {
	Log string `json:"log"`
}

// LogPage is a slice of log lines starting at the requested cursor.
type LogPage struct {
	Logs       []Log `json:"logs"`
	NextCursor int64 `json:"next_cursor"`
}

// Lines returns the text of every log entry in the page.
func (p LogPage) Lines() []string {
	if len(p.Logs) == 0 {
		return nil
	}
	lines := make([]string, len(p.Logs))
	for i, l := range p.Logs {
		lines[i] = l.Log
	}
	return lines
}

// CreateRequest is the payload used to submit a new URL.
type CreateRequest struct {
	URL string `json:"url"`
}

func (r *CreateRequest) Validate() error {
	r.URL = strings.TrimSpace(r.URL)
	if r.URL == "" {
		return errors.New("url must not be empty")
	}
	if _, err := url.Parse(r.URL); err != nil {
		return errors.New("url is not valid")
	}
	return nil
}
