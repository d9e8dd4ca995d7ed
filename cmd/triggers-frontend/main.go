package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/triggers-frontend/pkg/sender"
	"github.com/dukex/triggers-frontend/pkg/triggers/amqp"
)

func main() {
	cmd := &cli.Command{
		Name:                  "triggers-frontend",
		Usage:                 "Run message broker triggers and forward their messages to workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Directory with trigger plugins (.so)",
				Sources: cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.StringFlag{
				Name:    "bootstrap-file",
				Usage:   "YAML file with triggers to create at startup",
				Sources: cli.EnvVars("BOOTSTRAP_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:    "run",
				Aliases: []string{"r"},
				Usage:   "Serve the trigger API and run triggers",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "listen",
						Usage:   "Address the API listens on",
						Value:   ":8080",
						Sources: cli.EnvVars("LISTEN_ADDR"),
					},
					&cli.StringFlag{
						Name:    "event-bus",
						Usage:   "Event bus for trigger lifecycle events (gochannel, kafka)",
						Value:   "gochannel",
						Sources: cli.EnvVars("EVENT_BUS"),
					},
					&cli.StringFlag{
						Name:    "kafka-brokers",
						Usage:   "Comma separated Kafka brokers",
						Sources: cli.EnvVars("KAFKA_BROKERS"),
					},
					&cli.BoolFlag{
						Name:    "tracing",
						Usage:   "Export traces over OTLP/HTTP",
						Sources: cli.EnvVars("TRACING_ENABLED"),
					},
					&cli.UintFlag{
						Name:    "retry-max-attempts",
						Usage:   "Broker setup attempts before a trigger fails",
						Value:   amqp.DefaultRetryPolicy().MaxAttempts,
						Sources: cli.EnvVars("RETRY_MAX_ATTEMPTS"),
					},
					&cli.DurationFlag{
						Name:    "retry-initial-interval",
						Usage:   "Delay before the first broker setup retry",
						Value:   amqp.DefaultRetryPolicy().InitialInterval,
						Sources: cli.EnvVars("RETRY_INITIAL_INTERVAL"),
					},
					&cli.DurationFlag{
						Name:    "forward-timeout",
						Usage:   "Timeout of one workflow request",
						Value:   sender.DefaultTimeout,
						Sources: cli.EnvVars("FORWARD_TIMEOUT"),
					},
					&cli.DurationFlag{
						Name:    "shutdown-timeout",
						Usage:   "Time allowed for triggers to stop",
						Value:   10 * time.Second,
						Sources: cli.EnvVars("SHUTDOWN_TIMEOUT"),
					},
				},
				Action: RunFrontend,
			},
			{
				Name:    "validate",
				Aliases: []string{"v"},
				Usage:   "Validate the bootstrap file without connecting to any broker",
				Action:  ValidateBootstrap,
			},
			{
				Name:    "types",
				Aliases: []string{"ls"},
				Usage:   "List registered trigger types",
				Action:  ListTriggerTypes,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
