// Package jobsync keeps a local view of remote jobs in sync with the server.
//
// A ListSynchronizer owns the paginated, filtered job collection and merges the
// results of local mutations into it. A Poller follows one job until it reaches
// a terminal status, and a LogSynchronizer tails the log lines of one job.
// Every repeating loop is represented by a Handle that the owner must Stop.
package jobsync

import (
	"context"
	"net/url"

	"github.com/urlqueue/urlqueue/internal/job"
)

// JobGetter fetches the current snapshot of a single job.
// Implementations return job.ErrNotFound for unknown or deleted jobs.
type JobGetter interface {
	GetJob(ctx context.Context, id int64) (job.Record, error)
}

// LogBackend is what a LogSynchronizer needs from the server.
type LogBackend interface {
	JobGetter
	ListLogs(ctx context.Context, id, cursor int64) (job.LogPage, error)
}

// Backend is the request/response surface the synchronizers are built on.
type Backend interface {
	LogBackend
	ListJobs(ctx context.Context, q url.Values) (job.Page, error)
	CreateJob(ctx context.Context, url string) (job.Record, error)
	DeleteJob(ctx context.Context, id int64) error
	RetryJob(ctx context.Context, id int64) (job.Record, error)
}
