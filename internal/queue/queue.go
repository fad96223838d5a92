package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/urlqueue/urlqueue/internal/bus"
	"github.com/urlqueue/urlqueue/internal/config"
	"github.com/urlqueue/urlqueue/internal/job"
	"github.com/urlqueue/urlqueue/internal/worker"
)

// Queue feeds submitted jobs to a fixed pool of download workers.
type Queue struct {
	jobs   chan int64
	store  job.Store
	cfg    *config.Server
	events bus.Publisher
	active atomic.Int64
}

// New creates a new Queue. A nil events publisher drops status events.
func New(cfg *config.Server, store job.Store, events bus.Publisher) *Queue {
	if events == nil {
		events = bus.Nop{}
	}
	return &Queue{
		jobs:   make(chan int64, cfg.QueueSize),
		store:  store,
		cfg:    cfg,
		events: events,
	}
}

// Enqueue adds a job ID to the queue. Returns an error if the queue is full.
func (q *Queue) Enqueue(id int64) error {
	select {
	case q.jobs <- id:
		return nil
	default:
		return fmt.Errorf("queue full: cannot enqueue job %d", id)
	}
}

// Start launches cfg.Concurrency workers as goroutines.
func (q *Queue) Start(ctx context.Context) {
	for range q.cfg.Concurrency {
		go q.runWorker(ctx)
	}
}

// Idle reports whether no job is waiting or running.
func (q *Queue) Idle() bool {
	return len(q.jobs) == 0 && q.active.Load() == 0
}

// Recovery fails jobs interrupted by a previous shutdown and re-enqueues the
// ones that never started.
func (q *Queue) Recovery(ctx context.Context) error {
	ids, err := q.store.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}
	for _, id := range ids {
		if err := q.Enqueue(id); err != nil {
			slog.Warn("recovery: failed to enqueue job", "job_id", id, "error", err)
		}
	}
	if len(ids) > 0 {
		slog.Info("recovery: re-enqueued pending jobs", "count", len(ids))
	}
	return nil
}

func (q *Queue) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-q.jobs:
			q.active.Add(1)
			q.processJob(ctx, id)
			q.active.Add(-1)
		}
	}
}

func (q *Queue) processJob(ctx context.Context, id int64) {
	if err := q.store.MarkProcessing(ctx, id); err != nil {
		// Deleted or already handled since it was enqueued.
		slog.Info("worker: skipping job", "job_id", id, "error", err)
		return
	}

	rec, err := q.store.Get(ctx, id)
	if err != nil || rec == nil {
		slog.Error("worker: load job", "job_id", id, "error", err)
		q.finalizeJob(ctx, id, "", "failed to load job")
		return
	}
	q.publish(ctx, rec)

	runCtx, cancel := context.WithTimeout(ctx, q.cfg.JobTimeout)
	defer cancel()

	file, runErr := worker.Run(runCtx, q.cfg.DownloaderPath, q.cfg.DownloaderArgs, rec.URL, worker.Hooks{
		OnLine: func(line string) {
			if err := q.store.AppendLog(ctx, id, line); err != nil {
				slog.Warn("worker: append log", "job_id", id, "error", err)
			}
		},
		OnPreview: func(p job.Preview) {
			if err := q.store.SetPreview(ctx, id, p); err != nil {
				slog.Warn("worker: set preview", "job_id", id, "error", err)
			}
		},
	})
	if ctx.Err() != nil {
		// Shutting down: leave the job in processing, Recovery fails it on restart.
		return
	}

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		file = ""
	}
	q.finalizeJob(ctx, id, file, errMsg)
}

func (q *Queue) finalizeJob(ctx context.Context, id int64, file, errMsg string) {
	status := job.StatusSuccess
	if errMsg != "" {
		status = job.StatusFailure
	}

	if err := q.store.Finish(ctx, id, status, file, errMsg); err != nil {
		slog.Error("worker: finish job", "job_id", id, "error", err)
		return
	}
	slog.Info("job finished", "job_id", id, "status", status)

	rec, err := q.store.Get(ctx, id)
	if err != nil || rec == nil {
		return
	}
	q.publish(ctx, rec)
}

func (q *Queue) publish(ctx context.Context, rec *job.Record) {
	if err := q.events.Publish(ctx, bus.NewEvent(rec)); err != nil {
		slog.Warn("publish job event", "job_id", rec.ID, "error", err)
	}
}
