package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/urlqueue/urlqueue/internal/job"
	"github.com/urlqueue/urlqueue/internal/jobsync"
)

// LogsAction prints the log of one job. With --follow it keeps printing new
// lines until the job has finished.
func LogsAction(ctx context.Context, cmd *cli.Command) error {
	id, err := parseID(cmd.Args().Slice())
	if err != nil {
		return err
	}
	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	opts := []jobsync.Option{
		jobsync.WithInterval(s.interval()),
		jobsync.WithOnAppend(func(lines []string) { writeLines(s.out, lines) }),
	}
	if !cmd.Bool("follow") {
		return dumpLogs(ctx, jobsync.NewLogSynchronizer(s.client, id, opts...))
	}

	opts = append(opts, jobsync.WithFollowUntilTerminal())
	h := jobsync.NewLogSynchronizer(s.client, id, opts...).Start(ctx)
	h.Wait()
	if h.Reason() == jobsync.ReasonNotFound {
		return fmt.Errorf("job %d: %w", id, job.ErrNotFound)
	}
	return nil
}

// dumpLogs fetches until the server has no more lines.
func dumpLogs(ctx context.Context, logs *jobsync.LogSynchronizer) error {
	for {
		n, err := logs.Fetch(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

func writeLines(w io.Writer, lines []string) {
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}
