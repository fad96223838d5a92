package commands

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/urfave/cli/v3"

	"github.com/urlqueue/urlqueue/internal/job"
	"github.com/urlqueue/urlqueue/internal/jobsync"
)

// SubmitAction submits every URL argument as a new job.
func SubmitAction(ctx context.Context, cmd *cli.Command) error {
	urls := cmd.Args().Slice()
	if len(urls) == 0 {
		return errors.New("at least one URL is required")
	}
	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	list := jobsync.NewListSynchronizer(s.client, nil)
	var errs []error
	for _, u := range urls {
		if _, err := list.Submit(ctx, u); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u, err))
		}
	}
	return finishMutation(ctx, cmd, s, list, errs)
}

// RetryAction resubmits every finished job given by ID.
func RetryAction(ctx context.Context, cmd *cli.Command) error {
	ids, err := parseIDs(cmd.Args().Slice())
	if err != nil {
		return err
	}
	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	list := jobsync.NewListSynchronizer(s.client, nil)
	var errs []error
	for _, id := range ids {
		if _, err := list.Retry(ctx, id); err != nil {
			if errors.Is(err, job.ErrNotTerminal) {
				err = fmt.Errorf("job %d has not finished yet", id)
			}
			errs = append(errs, err)
		}
	}
	return finishMutation(ctx, cmd, s, list, errs)
}

// finishMutation prints the jobs created by submit or retry and, with --wait,
// follows them to the end.
func finishMutation(ctx context.Context, cmd *cli.Command, s *session, list *jobsync.ListSynchronizer, errs []error) error {
	created := list.Snapshot().Jobs
	if len(created) > 0 {
		if err := printJobs(s.out, created); err != nil {
			return err
		}
		if cmd.Bool("wait") {
			errs = append(errs, waitJobs(ctx, s, created))
		}
	}
	return errors.Join(errs...)
}

// waitJobs polls jobs until each one is terminal or gone, printing status
// changes as they are seen. It fails if any job did not succeed.
func waitJobs(ctx context.Context, s *session, jobs []job.Record) error {
	var mu sync.Mutex
	last := make(map[int64]job.Status, len(jobs))
	for _, r := range jobs {
		last[r.ID] = r.Status
	}
	onUpdate := func(r job.Record) {
		mu.Lock()
		defer mu.Unlock()
		if last[r.ID] == r.Status {
			return
		}
		last[r.ID] = r.Status
		fmt.Fprintf(s.out, "job %d: %s\n", r.ID, r.Status)
	}

	poller := jobsync.NewPoller(s.client, jobsync.WithInterval(s.interval()))
	handles := make([]*jobsync.Handle, len(jobs))
	for i, r := range jobs {
		handles[i] = poller.Watch(ctx, r, onUpdate)
	}

	var errs []error
	final := make([]job.Record, 0, len(jobs))
	for i, h := range handles {
		h.Wait()
		switch h.Reason() {
		case jobsync.ReasonStopped:
			return ctx.Err()
		case jobsync.ReasonNotFound:
			errs = append(errs, fmt.Errorf("job %d: %w", jobs[i].ID, job.ErrNotFound))
			continue
		}
		rec, _ := h.Record()
		final = append(final, rec)
		if rec.Status == job.StatusFailure {
			errs = append(errs, fmt.Errorf("job %d failed: %s", rec.ID, firstLine(rec.Error)))
		}
	}

	fmt.Fprintln(s.out)
	if err := printJobs(s.out, final); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// DeleteAction deletes every job given by ID. Jobs that are already gone are
// not an error.
func DeleteAction(ctx context.Context, cmd *cli.Command) error {
	ids, err := parseIDs(cmd.Args().Slice())
	if err != nil {
		return err
	}
	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	list := jobsync.NewListSynchronizer(s.client, nil)
	var errs []error
	for _, id := range ids {
		if err := list.Delete(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(s.out, "deleted %d\n", id)
	}
	return errors.Join(errs...)
}

// GetAction prints one job.
func GetAction(ctx context.Context, cmd *cli.Command) error {
	id, err := parseID(cmd.Args().Slice())
	if err != nil {
		return err
	}
	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	rec, err := s.client.GetJob(ctx, id)
	if err != nil {
		return err
	}
	return printJob(s.out, rec)
}

// WatchAction polls one job, printing each status change, until it finishes.
func WatchAction(ctx context.Context, cmd *cli.Command) error {
	id, err := parseID(cmd.Args().Slice())
	if err != nil {
		return err
	}
	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	var last job.Status
	h := jobsync.NewPoller(s.client, jobsync.WithInterval(s.interval())).Start(ctx, id, func(r job.Record) {
		if r.Status != last {
			last = r.Status
			fmt.Fprintf(s.out, "job %d: %s\n", r.ID, r.Status)
		}
	})
	h.Wait()

	switch h.Reason() {
	case jobsync.ReasonNotFound:
		return fmt.Errorf("job %d: %w", id, job.ErrNotFound)
	case jobsync.ReasonStopped:
		return nil
	}
	rec, _ := h.Record()
	if err := printJob(s.out, rec); err != nil {
		return err
	}
	if rec.Status == job.StatusFailure {
		return fmt.Errorf("job %d failed", id)
	}
	return nil
}
