package jobsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/urlqueue/urlqueue/internal/job"
)

// LogSynchronizer tails the append-only log of one job. Lines are never
// reordered or removed and the cursor only moves forward.
type LogSynchronizer struct {
	backend LogBackend
	id      int64
	opts    options

	// fetchMu serializes fetches so two responses for the same cursor are
	// never both appended.
	fetchMu sync.Mutex

	mu     sync.Mutex
	lines  []string
	cursor int64
}

func NewLogSynchronizer(backend LogBackend, id int64, opts ...Option) *LogSynchronizer {
	return &LogSynchronizer{backend: backend, id: id, opts: buildOptions(opts)}
}

// Lines returns a copy of every line received so far.
func (s *LogSynchronizer) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lines))
	copy(out, s.lines)
	return out
}

// Cursor is the offset of the next unseen line.
func (s *LogSynchronizer) Cursor() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Fetch requests the lines after the cursor once and appends them. It returns
// the number of lines appended.
func (s *LogSynchronizer) Fetch(ctx context.Context) (int, error) {
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()

	s.mu.Lock()
	cursor := s.cursor
	s.mu.Unlock()

	page, err := s.backend.ListLogs(ctx, s.id, cursor)
	if err != nil {
		return 0, fmt.Errorf("fetch logs of job %d: %w", s.id, err)
	}
	lines := page.Lines()
	if len(lines) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	s.lines = append(s.lines, lines...)
	if page.NextCursor > s.cursor {
		s.cursor = page.NextCursor
	}
	s.mu.Unlock()

	if s.opts.onAppend != nil {
		s.opts.onAppend(lines)
	}
	return len(lines), nil
}

// Start fetches immediately and then once per interval until the handle is
// stopped or ctx is cancelled. With WithFollowUntilTerminal it also ends by
// itself after the job is terminal and its last lines were fetched, or when
// the job no longer exists.
func (s *LogSynchronizer) Start(ctx context.Context) *Handle {
	h, ctx := newHandle(ctx)
	go s.run(ctx, h)
	return h
}

func (s *LogSynchronizer) run(ctx context.Context, h *Handle) {
	reason := ReasonStopped
	defer func() { h.finish(reason) }()

	ticker := time.NewTicker(s.opts.interval)
	defer ticker.Stop()

	for {
		if r, done := s.tick(ctx, h); done {
			reason = r
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *LogSynchronizer) tick(ctx context.Context, h *Handle) (Reason, bool) {
	n, err := s.Fetch(ctx)
	if ctx.Err() != nil {
		return ReasonStopped, true
	}
	if err != nil {
		if s.opts.follow && errors.Is(err, job.ErrNotFound) {
			return ReasonNotFound, true
		}
		s.opts.logger.Debug("log fetch failed", "job_id", s.id, "error", err)
		return ReasonNone, false
	}
	if !s.opts.follow || n > 0 {
		return ReasonNone, false
	}

	rec, err := s.backend.GetJob(ctx, s.id)
	if ctx.Err() != nil {
		return ReasonStopped, true
	}
	if errors.Is(err, job.ErrNotFound) {
		return ReasonNotFound, true
	}
	if err != nil {
		s.opts.logger.Debug("job status check failed", "job_id", s.id, "error", err)
		return ReasonNone, false
	}
	h.observe(rec)
	if !rec.Status.IsTerminal() {
		return ReasonNone, false
	}
	// Lines written between the last fetch and the final status change.
	for {
		n, err := s.Fetch(ctx)
		if err != nil || n == 0 {
			break
		}
	}
	return ReasonTerminal, true
}
