package jobsync

import (
	"context"
	"errors"
	"time"

	"github.com/urlqueue/urlqueue/internal/job"
)

// Poller checks the status of single jobs at a fixed interval until they are terminal.
type Poller struct {
	backend JobGetter
	opts    options
}

func NewPoller(backend JobGetter, opts ...Option) *Poller {
	return &Poller{backend: backend, opts: buildOptions(opts)}
}

// Start polls job id once per interval, the first fetch one interval from now.
// onUpdate, if non-nil, receives every record fetched. Polling ends when the
// job is terminal, when the server no longer knows it, when ctx is cancelled
// or when the returned handle is stopped. Fetch errors are skipped and the next
// tick proceeds on schedule.
func (p *Poller) Start(ctx context.Context, id int64, onUpdate func(job.Record)) *Handle {
	return p.start(ctx, id, nil, onUpdate)
}

// Watch is Start for a record already in hand: a terminal record needs no
// polling, so the returned handle is already done.
func (p *Poller) Watch(ctx context.Context, rec job.Record, onUpdate func(job.Record)) *Handle {
	if rec.Status.IsTerminal() {
		return finishedHandle(rec, ReasonTerminal)
	}
	return p.start(ctx, rec.ID, &rec, onUpdate)
}

func (p *Poller) start(ctx context.Context, id int64, initial *job.Record, onUpdate func(job.Record)) *Handle {
	h, ctx := newHandle(ctx)
	if initial != nil {
		h.observe(*initial)
	}
	go p.run(ctx, h, id, onUpdate)
	return h
}

func (p *Poller) run(ctx context.Context, h *Handle, id int64, onUpdate func(job.Record)) {
	reason := ReasonStopped
	defer func() { h.finish(reason) }()

	ticker := time.NewTicker(p.opts.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		rec, err := p.backend.GetJob(ctx, id)
		if ctx.Err() != nil {
			// Stopped while the request was in flight: drop the response.
			return
		}
		if errors.Is(err, job.ErrNotFound) {
			p.opts.logger.Debug("polled job not found", "job_id", id)
			reason = ReasonNotFound
			return
		}
		if err != nil {
			p.opts.logger.Debug("poll job failed", "job_id", id, "error", err)
			continue
		}

		h.observe(rec)
		if onUpdate != nil {
			onUpdate(rec)
		}
		if rec.Status.IsTerminal() {
			reason = ReasonTerminal
			return
		}
	}
}
