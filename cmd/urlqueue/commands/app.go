// Package commands implements the urlqueue command line client.
package commands

import (
	"github.com/urfave/cli/v3"
)

// NewApp returns the root urlqueue command. Global flags may be given before
// any subcommand.
func NewApp() *cli.Command {
	return &cli.Command{
		Name:  "urlqueue",
		Usage: "submit URLs to a urlqueue server and follow their downloads",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "TOML client config file",
				Sources: cli.EnvVars("URLQUEUE_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "env",
				Usage: "environment file loaded before reading the config",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "server",
				Usage: "server base URL, overrides the config",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log requests and poll errors to stderr",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list jobs, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "pending, processing, success, failure or all",
						Value: "all",
					},
					&cli.StringFlag{
						Name:    "search",
						Aliases: []string{"q"},
						Usage:   "only jobs whose URL or title contains this text",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "page size (default from config)",
					},
					&cli.IntFlag{
						Name:  "more",
						Usage: "number of extra pages to load",
					},
					&cli.BoolFlag{
						Name:    "watch",
						Aliases: []string{"w"},
						Usage:   "keep polling the listed jobs until none is running",
					},
				},
				Action: ListAction,
			},
			{
				Name:      "submit",
				Usage:     "submit one or more URLs",
				ArgsUsage: "URL...",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "wait",
						Usage: "wait until every submitted job has finished",
					},
				},
				Action: SubmitAction,
			},
			{
				Name:      "retry",
				Usage:     "run finished jobs again as new jobs",
				ArgsUsage: "ID...",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "wait",
						Usage: "wait until every new job has finished",
					},
				},
				Action: RetryAction,
			},
			{
				Name:      "delete",
				Usage:     "delete jobs",
				ArgsUsage: "ID...",
				Action:    DeleteAction,
			},
			{
				Name:      "get",
				Usage:     "show one job",
				ArgsUsage: "ID",
				Action:    GetAction,
			},
			{
				Name:      "watch",
				Usage:     "poll a job and print every status change until it finishes",
				ArgsUsage: "ID",
				Action:    WatchAction,
			},
			{
				Name:      "logs",
				Usage:     "print the downloader output of a job",
				ArgsUsage: "ID",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "follow",
						Aliases: []string{"f"},
						Usage:   "keep printing new lines until the job has finished",
					},
				},
				Action: LogsAction,
			},
			{
				Name:  "health",
				Usage: "show server health",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "wait-idle",
						Usage: "wait until the server queue is idle",
					},
				},
				Action: HealthAction,
			},
			{
				Name:  "events",
				Usage: "print job status events published on NATS",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "nats-url",
						Usage: "NATS server URL (default $URLQUEUE_NATS_URL)",
					},
					&cli.StringFlag{
						Name:  "subject",
						Usage: "subject prefix the server publishes on (default $URLQUEUE_NATS_SUBJECT or urlqueue.jobs)",
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "only events with this status",
					},
				},
				Action: EventsAction,
			},
		},
	}
}
