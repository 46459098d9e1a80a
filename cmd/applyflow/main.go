// Package main provides the applyflow command: the HTTP API, the timer dispatcher and the
// credential sync tools.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dukex/applyflow/pkg/cmd"
	"github.com/dukex/applyflow/pkg/log"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

const serviceName = "applyflow"

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	err := newCommand().Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:                  serviceName,
		Usage:                 "Orchestrate delayed job application workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence (postgres://... or memory://)",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				Value:   "applyflow.yaml",
				Sources: cli.EnvVars("APPLYFLOW_CONFIG"),
			},
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
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
		},
		Commands: []*cli.Command{
			NewAPICommand(),
			NewDispatcherCommand(),
			NewCredentialsCommand(),
		},
	}
}

func setup(command *cli.Command) {
	log.Setup(command.String("log-level"), command.String("log-format"))
}

func runtimeOptions(command *cli.Command, service string) cmd.RuntimeOptions {
	return cmd.RuntimeOptions{
		ServiceName: service,
		DatabaseURL: command.String("database-url"),
		ConfigPath:  command.String("config"),
		Tracing:     command.Bool("tracing"),
	}
}
