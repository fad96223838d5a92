package jobsync

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/urlqueue/urlqueue/internal/job"
)

var errUnavailable = errors.New("service unavailable")

// fakeBackend routes every call to an optional function and records it.
type fakeBackend struct {
	list   func(ctx context.Context, q url.Values) (job.Page, error)
	get    func(ctx context.Context, id int64) (job.Record, error)
	create func(ctx context.Context, u string) (job.Record, error)
	del    func(ctx context.Context, id int64) error
	retry  func(ctx context.Context, id int64) (job.Record, error)
	logs   func(ctx context.Context, id, cursor int64) (job.LogPage, error)

	mu      sync.Mutex
	queries []url.Values
	creates int
	gets    atomic.Int64
}

func (f *fakeBackend) ListJobs(ctx context.Context, q url.Values) (job.Page, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.list == nil {
		return job.Page{}, nil
	}
	return f.list(ctx, q)
}

func (f *fakeBackend) GetJob(ctx context.Context, id int64) (job.Record, error) {
	f.gets.Add(1)
	if f.get == nil {
		return job.Record{}, job.ErrNotFound
	}
	return f.get(ctx, id)
}

func (f *fakeBackend) CreateJob(ctx context.Context, u string) (job.Record, error) {
	f.mu.Lock()
	f.creates++
	f.mu.Unlock()
	if f.create == nil {
		return job.Record{}, errUnavailable
	}
	return f.create(ctx, u)
}

func (f *fakeBackend) DeleteJob(ctx context.Context, id int64) error {
	if f.del == nil {
		return nil
	}
	return f.del(ctx, id)
}

func (f *fakeBackend) RetryJob(ctx context.Context, id int64) (job.Record, error) {
	if f.retry == nil {
		return job.Record{}, errUnavailable
	}
	return f.retry(ctx, id)
}

func (f *fakeBackend) ListLogs(ctx context.Context, id, cursor int64) (job.LogPage, error) {
	if f.logs == nil {
		return job.LogPage{}, nil
	}
	return f.logs(ctx, id, cursor)
}

func (f *fakeBackend) listQueries() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]url.Values, len(f.queries))
	copy(out, f.queries)
	return out
}

func record(id int64, status job.Status) job.Record {
	return job.Record{ID: id, URL: "https://example.com/" + string(status), Status: status}
}

func ids(records []job.Record) []int64 {
	out := make([]int64, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

// gatedList makes ListJobs announce each query on started and block until a
// page is sent on release.
func gatedList(started chan<- url.Values, release <-chan job.Page) func(context.Context, url.Values) (job.Page, error) {
	return func(ctx context.Context, q url.Values) (job.Page, error) {
		started <- q
		select {
		case p := <-release:
			return p, nil
		case <-ctx.Done():
			return job.Page{}, ctx.Err()
		}
	}
}
