package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/urlqueue/urlqueue/internal/client"
)

// HealthAction prints the server status. With --wait-idle it polls until the
// server has no queued or running job.
func HealthAction(ctx context.Context, cmd *cli.Command) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	h, err := s.client.Health(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("wait-idle") && h.Queue != "idle" {
		h, err = waitIdle(ctx, s)
		if err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(s.out, "status: %s\nqueue: %s\n", h.Status, h.Queue)
	return err
}

func waitIdle(ctx context.Context, s *session) (client.Health, error) {
	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return client.Health{}, ctx.Err()
		case <-ticker.C:
		}
		h, err := s.client.Health(ctx)
		if err != nil {
			slog.Debug("health check failed", "error", err)
			continue
		}
		if h.Queue == "idle" {
			return h, nil
		}
	}
}
