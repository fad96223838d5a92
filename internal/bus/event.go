// Package bus publishes job status changes to external listeners.
package bus

import (
	"context"
	"errors"
	"time"

	"github.com/urlqueue/urlqueue/internal/job"
)

// Event is emitted each time a job changes status.
type Event struct {
	JobID  int64      `json:"job_id"`
	URL    string     `json:"url"`
	Status job.Status `json:"status"`
	Error  string     `json:"error,omitempty"`
	File   string     `json:"file,omitempty"`
	At     time.Time  `json:"at"`
}

// NewEvent builds the event describing rec's current status.
func NewEvent(rec *job.Record) Event {
	return Event{
		JobID:  rec.ID,
		URL:    rec.URL,
		Status: rec.Status,
		Error:  rec.Error,
		File:   rec.File,
		At:     time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
