package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/urfave/cli/v3"

	"github.com/urlqueue/urlqueue/internal/bus"
	"github.com/urlqueue/urlqueue/internal/job"
)

const defaultSubject = "urlqueue.jobs"

// EventsAction prints job status events published by the server on NATS
// until interrupted.
func EventsAction(ctx context.Context, cmd *cli.Command) error {
	natsURL := flagOrEnv(cmd, "nats-url", "URLQUEUE_NATS_URL", "")
	if natsURL == "" {
		return errors.New("--nats-url or URLQUEUE_NATS_URL is required")
	}
	subject, err := eventSubject(
		flagOrEnv(cmd, "subject", "URLQUEUE_NATS_SUBJECT", defaultSubject),
		cmd.String("status"),
	)
	if err != nil {
		return err
	}

	nc, err := bus.Connect(natsURL)
	if err != nil {
		return err
	}
	defer nc.Close()

	out := outWriter(cmd)
	var mu sync.Mutex
	sub, err := nc.SubscribeEvents(subject, func(_ context.Context, ev bus.Event) {
		mu.Lock()
		defer mu.Unlock()
		printEvent(out, ev)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	defer sub.Unsubscribe() //nolint:errcheck

	<-ctx.Done()
	return nil
}

// eventSubject returns the subject matching every event under prefix, or only
// those with status when it is set.
func eventSubject(prefix, status string) (string, error) {
	if status == "" {
		return prefix + ".>", nil
	}
	if !job.Status(status).Valid() {
		return "", fmt.Errorf("unknown status %q", status)
	}
	return bus.Subject(prefix, job.Status(status)), nil
}

func flagOrEnv(cmd *cli.Command, flag, env, fallback string) string {
	if v := cmd.String(flag); v != "" {
		return v
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return fallback
}
