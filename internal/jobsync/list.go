package jobsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/urlqueue/urlqueue/internal/job"
	"github.com/urlqueue/urlqueue/internal/query"
)

var (
	ErrEmptyURL      = errors.New("url must not be empty")
	ErrRetryInFlight = errors.New("retry already in flight for this job")
)

// Outcome tells what happened to the result of a list operation.
type Outcome int

const (
	// Applied means the response was merged into the collection.
	Applied Outcome = iota
	// Superseded means a newer request or a criteria change made the response
	// irrelevant; it was discarded.
	Superseded
	// Skipped means no request was issued.
	Skipped
	// Failed means the request failed; the collection is unchanged.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Superseded:
		return "superseded"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// State is the job collection owned by a ListSynchronizer. A State built by
// the caller may be handed to NewListSynchronizer to start from a known view;
// after that only the synchronizer touches it.
type State struct {
	Criteria query.Criteria
	Jobs     []job.Record
	Cursor   int64
	// Loaded is false until the first refresh for the current criteria landed.
	Loaded bool

	seq      uint64
	inflight uint64
	inserted []stamped
	deleted  map[int64]uint64
	retrying map[int64]struct{}
}

type stamped struct {
	rec job.Record
	seq uint64
}

// token identifies a list request by the state it was issued against.
type token struct {
	seq      uint64
	criteria query.Criteria
	cursor   int64
}

// View is a read-only copy of the collection.
type View struct {
	Criteria query.Criteria
	Jobs     []job.Record
	Cursor   int64
	Loaded   bool
	Loading  bool
}

// HasMore reports whether LoadMore can fetch another page.
func (v View) HasMore() bool { return v.Loaded && v.Cursor != 0 }

// Empty is true only after a completed load returned nothing.
func (v View) Empty() bool { return v.Loaded && len(v.Jobs) == 0 }

// ListSynchronizer maintains a paginated, filtered job collection and merges
// local mutations into it. All methods are safe for concurrent use; the state
// lock is never held while a request is in flight.
type ListSynchronizer struct {
	backend Backend
	opts    options

	mu      sync.Mutex
	state   *State
	version uint64

	// notifyMu orders deliveries to onChange; delivered is the version of the
	// last view handed out.
	notifyMu  sync.Mutex
	delivered uint64
}

// change is a View stamped with the version it was taken at.
type change struct {
	view    View
	version uint64
}

// NewListSynchronizer returns a synchronizer over state, or over an empty
// collection when state is nil. Call Refresh to load the first page.
func NewListSynchronizer(backend Backend, state *State, opts ...Option) *ListSynchronizer {
	if state == nil {
		state = &State{}
	}
	state.Criteria = state.Criteria.Normalize()
	if state.deleted == nil {
		state.deleted = make(map[int64]uint64)
	}
	if state.retrying == nil {
		state.retrying = make(map[int64]struct{})
	}
	return &ListSynchronizer{backend: backend, opts: buildOptions(opts), state: state}
}

// Snapshot returns a copy of the current collection.
func (l *ListSynchronizer) Snapshot() View {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.viewLocked()
}

func (l *ListSynchronizer) viewLocked() View {
	s := l.state
	jobs := make([]job.Record, len(s.Jobs))
	copy(jobs, s.Jobs)
	for i := range jobs {
		if p := jobs[i].Preview; p != nil {
			cp := *p
			jobs[i].Preview = &cp
		}
	}
	return View{
		Criteria: s.Criteria,
		Jobs:     jobs,
		Cursor:   s.Cursor,
		Loaded:   s.Loaded,
		Loading:  s.inflight != 0,
	}
}

// changeLocked stamps the current view with a new version.
func (l *ListSynchronizer) changeLocked() change {
	l.version++
	return change{view: l.viewLocked(), version: l.version}
}

// notify delivers c unless a newer view was already delivered, so the last
// view a subscriber sees is always the latest state.
func (l *ListSynchronizer) notify(c change) {
	if l.opts.onChange == nil {
		return
	}
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()
	if c.version <= l.delivered {
		return
	}
	l.delivered = c.version
	l.opts.onChange(c.view)
}

// issueLocked tags a new list request. Any request issued earlier is
// superseded by it.
func (l *ListSynchronizer) issueLocked(cursor int64) token {
	s := l.state
	s.seq++
	s.inflight = s.seq
	return token{seq: s.seq, criteria: s.Criteria, cursor: cursor}
}

// settleLocked records that the request t completed. Once no list request is
// outstanding, any later request will observe every applied mutation, so the
// bookkeeping of local inserts and deletes is dropped.
func (l *ListSynchronizer) settleLocked(t token) {
	s := l.state
	if s.inflight == t.seq {
		s.inflight = 0
	}
	if s.inflight == 0 {
		s.inserted = nil
		clear(s.deleted)
	}
}

// Refresh reloads the head of the list for the current criteria and replaces
// the collection with it.
func (l *ListSynchronizer) Refresh(ctx context.Context) (Outcome, error) {
	return l.refresh(ctx, nil)
}

// SetCriteria switches to c, invalidating the cursor and the collection, and refreshes.
func (l *ListSynchronizer) SetCriteria(ctx context.Context, c query.Criteria) (Outcome, error) {
	if err := c.Validate(); err != nil {
		return Failed, fmt.Errorf("set criteria: %w", err)
	}
	return l.refresh(ctx, func(s *State) { s.Criteria = c.Normalize() })
}

func (l *ListSynchronizer) SetStatus(ctx context.Context, status query.StatusFilter) (Outcome, error) {
	if err := (query.Criteria{Status: status}).Validate(); err != nil {
		return Failed, fmt.Errorf("set status: %w", err)
	}
	return l.refresh(ctx, func(s *State) {
		s.Criteria.Status = status
		s.Criteria = s.Criteria.Normalize()
	})
}

func (l *ListSynchronizer) SetSearch(ctx context.Context, search string) (Outcome, error) {
	return l.refresh(ctx, func(s *State) {
		s.Criteria.Search = search
		s.Criteria = s.Criteria.Normalize()
	})
}

func (l *ListSynchronizer) refresh(ctx context.Context, mutate func(*State)) (Outcome, error) {
	l.mu.Lock()
	var changed *change
	if mutate != nil {
		s := l.state
		mutate(s)
		s.Jobs = nil
		s.Cursor = 0
		s.Loaded = false
	}
	t := l.issueLocked(0)
	if mutate != nil {
		c := l.changeLocked()
		changed = &c
	}
	l.mu.Unlock()
	if changed != nil {
		l.notify(*changed)
	}

	page, err := l.backend.ListJobs(ctx, query.Build(t.criteria, 0))

	l.mu.Lock()
	s := l.state
	if t.seq != s.seq || t.criteria != s.Criteria {
		l.mu.Unlock()
		l.opts.logger.Debug("discarding superseded refresh", "seq", t.seq)
		return Superseded, nil
	}
	if err != nil {
		l.settleLocked(t)
		c := l.changeLocked()
		l.mu.Unlock()
		l.notify(c)
		return Failed, fmt.Errorf("refresh: %w", err)
	}

	jobs := make([]job.Record, 0, len(page.URLs)+len(s.inserted))
	present := make(map[int64]struct{}, len(page.URLs))
	for _, rec := range page.URLs {
		present[rec.ID] = struct{}{}
	}
	// Records created locally after the request was issued may be missing
	// from the response; keep them at the head, newest first.
	for i := len(s.inserted) - 1; i >= 0; i-- {
		ins := s.inserted[i]
		if ins.seq < t.seq {
			continue
		}
		if _, ok := present[ins.rec.ID]; ok {
			continue
		}
		if _, ok := s.deleted[ins.rec.ID]; ok {
			continue
		}
		present[ins.rec.ID] = struct{}{}
		jobs = append(jobs, ins.rec)
	}
	for _, rec := range page.URLs {
		if _, ok := s.deleted[rec.ID]; ok {
			continue
		}
		jobs = append(jobs, rec)
	}

	s.Jobs = jobs
	s.Cursor = page.NextCursor
	s.Loaded = true
	l.settleLocked(t)
	c := l.changeLocked()
	l.mu.Unlock()

	l.notify(c)
	return Applied, nil
}

// LoadMore fetches the page after the current cursor and appends it. It is
// Skipped when nothing is loaded yet, when the server signaled the last page
// or when a list request is already in flight.
func (l *ListSynchronizer) LoadMore(ctx context.Context) (Outcome, error) {
	l.mu.Lock()
	s := l.state
	if !s.Loaded || s.Cursor == 0 || s.inflight != 0 {
		l.mu.Unlock()
		return Skipped, nil
	}
	t := l.issueLocked(s.Cursor)
	l.mu.Unlock()

	page, err := l.backend.ListJobs(ctx, query.Build(t.criteria, t.cursor))

	l.mu.Lock()
	s = l.state
	if t.seq != s.seq || t.criteria != s.Criteria || t.cursor != s.Cursor {
		l.mu.Unlock()
		l.opts.logger.Debug("discarding superseded page", "seq", t.seq, "cursor", t.cursor)
		return Superseded, nil
	}
	if err != nil {
		l.settleLocked(t)
		c := l.changeLocked()
		l.mu.Unlock()
		l.notify(c)
		return Failed, fmt.Errorf("load more: %w", err)
	}

	present := make(map[int64]struct{}, len(s.Jobs))
	for _, rec := range s.Jobs {
		present[rec.ID] = struct{}{}
	}
	for _, rec := range page.URLs {
		if _, ok := present[rec.ID]; ok {
			continue
		}
		if _, ok := s.deleted[rec.ID]; ok {
			continue
		}
		present[rec.ID] = struct{}{}
		s.Jobs = append(s.Jobs, rec)
	}
	s.Cursor = page.NextCursor
	l.settleLocked(t)
	c := l.changeLocked()
	l.mu.Unlock()

	l.notify(c)
	return Applied, nil
}

// Submit creates a job for rawURL and puts it at the head of the collection.
// On failure the collection is left unchanged.
func (l *ListSynchronizer) Submit(ctx context.Context, rawURL string) (job.Record, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return job.Record{}, ErrEmptyURL
	}
	rec, err := l.backend.CreateJob(ctx, rawURL)
	if err != nil {
		return job.Record{}, fmt.Errorf("submit: %w", err)
	}
	l.prepend(rec)
	return rec, nil
}

// Retry asks the server to run terminal job id again. The new record is put at
// the head; the original one is left as it is.
func (l *ListSynchronizer) Retry(ctx context.Context, id int64) (job.Record, error) {
	l.mu.Lock()
	if _, busy := l.state.retrying[id]; busy {
		l.mu.Unlock()
		return job.Record{}, ErrRetryInFlight
	}
	l.state.retrying[id] = struct{}{}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.state.retrying, id)
		l.mu.Unlock()
	}()

	rec, err := l.backend.RetryJob(ctx, id)
	if err != nil {
		return job.Record{}, fmt.Errorf("retry job %d: %w", id, err)
	}
	l.prepend(rec)
	return rec, nil
}

func (l *ListSynchronizer) prepend(rec job.Record) {
	l.mu.Lock()
	s := l.state
	jobs := make([]job.Record, 0, len(s.Jobs)+1)
	jobs = append(jobs, rec)
	for _, r := range s.Jobs {
		if r.ID != rec.ID {
			jobs = append(jobs, r)
		}
	}
	s.Jobs = jobs
	if s.inflight != 0 {
		s.inserted = append(s.inserted, stamped{rec: rec, seq: s.seq})
	}
	c := l.changeLocked()
	l.mu.Unlock()

	l.notify(c)
}

// Delete removes job id on the server and then from the collection. A job the
// server no longer knows counts as deleted; deleting an id that is not in the
// collection is a no-op.
func (l *ListSynchronizer) Delete(ctx context.Context, id int64) error {
	if err := l.backend.DeleteJob(ctx, id); err != nil && !errors.Is(err, job.ErrNotFound) {
		return fmt.Errorf("delete job %d: %w", id, err)
	}

	l.mu.Lock()
	s := l.state
	removed := false
	for i, r := range s.Jobs {
		if r.ID == id {
			s.Jobs = append(s.Jobs[:i:i], s.Jobs[i+1:]...)
			removed = true
			break
		}
	}
	if s.inflight != 0 {
		s.deleted[id] = s.seq
	}
	c := l.changeLocked()
	l.mu.Unlock()

	if removed {
		l.notify(c)
	}
	return nil
}
