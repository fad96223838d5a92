package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/urlqueue/urlqueue/internal/job"
	"github.com/urlqueue/urlqueue/internal/jobsync"
	"github.com/urlqueue/urlqueue/internal/query"
)

// ListAction prints the first page of jobs matching the filter flags, plus
// --more extra pages.
func ListAction(ctx context.Context, cmd *cli.Command) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	criteria := query.Criteria{
		Status: query.StatusFilter(cmd.String("status")),
		Search: cmd.String("search"),
		Limit:  int(cmd.Int("limit")),
	}
	if criteria.Limit == 0 {
		criteria.Limit = s.cfg.PageSize
	}
	if err := criteria.Validate(); err != nil {
		return err
	}

	list := jobsync.NewListSynchronizer(s.client, &jobsync.State{Criteria: criteria})
	if _, err := list.Refresh(ctx); err != nil {
		return err
	}
	for range int(cmd.Int("more")) {
		if !list.Snapshot().HasMore() {
			break
		}
		if _, err := list.LoadMore(ctx); err != nil {
			return err
		}
	}

	view := list.Snapshot()
	if err := printView(s.out, view); err != nil {
		return err
	}
	if !cmd.Bool("watch") || view.Empty() {
		return nil
	}
	return watchList(ctx, s, view.Jobs)
}

// watchList polls every listed job that is still running and reprints the
// table on each change until all of them have finished.
func watchList(ctx context.Context, s *session, jobs []job.Record) error {
	changed := make(chan struct{}, 1)
	group := jobsync.NewPollGroup(
		jobsync.NewPoller(s.client, jobsync.WithInterval(s.interval())),
		func(job.Record) {
			select {
			case changed <- struct{}{}:
			default:
			}
		},
	)
	defer group.Close()
	group.Sync(ctx, jobs)

	check := time.NewTicker(s.interval())
	defer check.Stop()

	for group.Len() > 0 {
		select {
		case <-ctx.Done():
			return nil
		case <-check.C:
			continue
		case <-changed:
		}
		fmt.Fprintln(s.out)
		if err := printJobs(s.out, group.Live(jobs)); err != nil {
			return err
		}
	}
	return nil
}
