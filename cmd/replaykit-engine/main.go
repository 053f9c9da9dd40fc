package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/replaykit/replaykit/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "replaykit-engine",
		Usage:                 "Claim queued runs and execute them",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "engine-id",
				Aliases: []string{"id"},
				Usage:   "Custom engine ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("ENGINE_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.IntFlag{
				Name:    "max-parallel-runs",
				Usage:   "Maximum number of runs executing concurrently",
				Value:   4,
				Sources: cli.EnvVars("MAX_PARALLEL_RUNS"),
			},
			&cli.IntFlag{
				Name:    "lease-ms",
				Usage:   "Queue item lease duration in milliseconds",
				Value:   30000,
				Sources: cli.EnvVars("LEASE_MS"),
			},
			&cli.IntFlag{
				Name:    "poll-ms",
				Usage:   "Queue poll interval in milliseconds",
				Value:   2000,
				Sources: cli.EnvVars("POLL_MS"),
			},
			&cli.IntFlag{
				Name:    "max-reclaims",
				Usage:   "Lease reclaims allowed before a run is failed",
				Value:   3,
				Sources: cli.EnvVars("MAX_RECLAIMS"),
			},
			&cli.StringFlag{
				Name:    "schedules-path",
				Usage:   "Path to a JSON file of cron schedule entries",
				Value:   "",
				Sources: cli.EnvVars("SCHEDULES_PATH"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the queue trigger (disabled when empty)",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-queue-key",
				Usage:   "Redis list key consumed by the queue trigger",
				Value:   "",
				Sources: cli.EnvVars("REDIS_QUEUE_KEY"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OTLP trace export",
				Value:   false,
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			engineID := command.String("engine-id")
			if engineID == "" {
				engineID = "eng-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("replaykit-engine").With("engine_id", engineID)
			logger.InfoContext(ctx, "Initializing ReplayKit Engine")

			engine := NewEngine(engineID, logger, engineOptions{
				databaseURL:     command.String("database-url"),
				eventBusType:    command.String("event-bus"),
				maxParallelRuns: command.Int("max-parallel-runs"),
				leaseDuration:   time.Duration(command.Int("lease-ms")) * time.Millisecond,
				pollInterval:    time.Duration(command.Int("poll-ms")) * time.Millisecond,
				maxReclaims:     command.Int("max-reclaims"),
				schedulesPath:   command.String("schedules-path"),
				redisURL:        command.String("redis-url"),
				redisQueueKey:   command.String("redis-queue-key"),
				tracing:         command.Bool("tracing"),
			})

			return engine.Run(ctx)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
