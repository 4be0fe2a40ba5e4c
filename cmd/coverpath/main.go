// Package main provides the coverpath demo workflow orchestrator server.
package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
)

const (
	defaultAPIPort = 9080
	defaultWSPort  = 9081
)

func main() {
	cmd := &cli.Command{
		Name:                  "coverpath",
		Usage:                 "Demo insurance workflow orchestrator",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the REST API server on",
				Value:   defaultAPIPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.IntFlag{
				Name:    "ws-port",
				Usage:   "Port to run the WebSocket stream server on",
				Value:   defaultWSPort,
				Sources: cli.EnvVars("WS_PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Persistence URL (postgres://..., file://path, or empty for in-memory)",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Optional event relay (gochannel, kafka); empty disables relaying",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "config-file",
				Usage:   "Optional YAML settings file layered over the demo seed",
				Sources: cli.EnvVars("CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Optional Redis URL for the settings read-through cache",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "sweep-schedule",
				Usage:   "Cron schedule for the stale execution sweeper",
				Value:   "*/1 * * * *",
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
			},
			&cli.DurationFlag{
				Name:    "stale-after",
				Usage:   "Age past which a live execution without progress is failed",
				Value:   defaultStaleAfter,
				Sources: cli.EnvVars("STALE_AFTER"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OTLP trace export",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
