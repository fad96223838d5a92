package job

import "context"

// ListFilter selects one page of the job list. Jobs are ordered newest first;
// a non-zero Cursor restricts the page to ids strictly lower than it.
type ListFilter struct {
	Status []Status
	Search string
	Cursor int64
	Limit  int64
}

// Store persists and retrieves jobs and their log lines.
type Store interface {
	Create(ctx context.Context, url string) (*Record, error)
	// Get returns (nil, nil) when the job does not exist or was deleted.
	Get(ctx context.Context, id int64) (*Record, error)
	List(ctx context.Context, f ListFilter) (*Page, error)
	// Delete soft-deletes a job and reports whether it existed.
	Delete(ctx context.Context, id int64) (bool, error)
	MarkProcessing(ctx context.Context, id int64) error
	Finish(ctx context.Context, id int64, status Status, file, errMsg string) error
	SetPreview(ctx context.Context, id int64, p Preview) error
	AppendLog(ctx context.Context, id int64, line string) error
	ListLogs(ctx context.Context, id, cursor int64) (*LogPage, error)
	// Retry creates a new pending job for the same URL as a terminal job.
	Retry(ctx context.Context, id int64) (*Record, error)
	// Recover is called at startup. Jobs interrupted mid-processing are marked
	// failed; the ids of jobs still pending are returned for re-enqueueing.
	Recover(ctx context.Context) ([]int64, error)
}
