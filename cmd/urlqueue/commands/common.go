package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/urlqueue/urlqueue/internal/client"
	"github.com/urlqueue/urlqueue/internal/config"
)

// setup runs before every command: it installs the logger and loads the
// environment file so that config overrides from it apply.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	level := slog.LevelWarn
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(errWriter(cmd), &slog.HandlerOptions{Level: level})))

	if err := loadEnv(cmd.String("env"), cmd.IsSet("env")); err != nil {
		return ctx, err
	}
	return ctx, nil
}

// loadEnv loads path into the process environment without overriding
// variables that are already set. A missing file is only an error when the
// user asked for it.
func loadEnv(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// session holds what every command talking to the server needs.
type session struct {
	cfg    *config.Client
	client *client.Client
	out    io.Writer
}

func newSession(cmd *cli.Command) (*session, error) {
	cfg, err := config.LoadClient(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if server := cmd.String("server"); server != "" {
		cfg.Server = server
	}

	c := client.New(cfg.Server,
		client.WithTimeout(time.Duration(cfg.Timeout)),
		client.WithRateLimit(cfg.RateLimit, cfg.Burst),
	)
	slog.Debug("using server", "url", cfg.Server)
	return &session{cfg: cfg, client: c, out: outWriter(cmd)}, nil
}

func (s *session) interval() time.Duration {
	return time.Duration(s.cfg.PollInterval)
}

func outWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func errWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}

// parseIDs parses every argument as a job ID.
func parseIDs(args []string) ([]int64, error) {
	if len(args) == 0 {
		return nil, errors.New("at least one job ID is required")
	}
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid job ID %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, errors.New("exactly one job ID is required")
	}
	ids, err := parseIDs(args)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}
