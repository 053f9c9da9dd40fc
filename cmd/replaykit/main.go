// Package main provides the replaykit CLI: validate flows, start runs, and
// inspect run state directly against the store.
package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "replaykit",
		Usage:                 "Validate flows and inspect runs",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "Validate a flow definition file without storing it",
				ArgsUsage: "<flow.json>",
				Action:    validateAction,
			},
			{
				Name:      "load",
				Usage:     "Validate and store a flow definition file",
				ArgsUsage: "<flow.json>",
				Action:    loadAction,
			},
			{
				Name:      "execute",
				Usage:     "Enqueue a run of a flow",
				ArgsUsage: "<flow-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "args",
						Usage: "Run arguments as a JSON object",
						Value: "",
					},
					&cli.IntFlag{
						Name:  "priority",
						Usage: "Queue priority (higher first)",
						Value: 0,
					},
				},
				Action: executeAction,
			},
			{
				Name:      "state",
				Usage:     "Print the run record",
				ArgsUsage: "<run-id>",
				Action:    stateAction,
			},
			{
				Name:      "events",
				Usage:     "Print the run event log",
				ArgsUsage: "<run-id>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "since-seq",
						Usage: "Only events after this sequence number",
						Value: 0,
					},
				},
				Action: eventsAction,
			},
			{
				Name:      "pause",
				Usage:     "Request a pause at the next node boundary",
				ArgsUsage: "<run-id>",
				Action:    pauseAction,
			},
			{
				Name:      "resume",
				Usage:     "Resume a paused run",
				ArgsUsage: "<run-id>",
				Action:    resumeAction,
			},
			{
				Name:      "cancel",
				Usage:     "Request cancellation of a run",
				ArgsUsage: "<run-id>",
				Action:    cancelAction,
			},
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
