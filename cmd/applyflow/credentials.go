package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukex/applyflow/pkg/config"
	"github.com/dukex/applyflow/pkg/log"
	"github.com/dukex/applyflow/pkg/transmission"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

var ErrServiceUnreachable = errors.New("credential sync service is unreachable")

func NewCredentialsCommand() *cli.Command {
	return &cli.Command{
		Name:  "credentials",
		Usage: "Talk to the credential sync service",
		Commands: []*cli.Command{
			{
				Name:  "push",
				Usage: "Push email credentials for a user",
				Flags: []cli.Flag{
					credentialsURLFlag(),
					&cli.StringFlag{Name: "user", Usage: "User ID", Required: true},
					&cli.StringFlag{Name: "provider", Usage: "Email provider (gmail, outlook, imap)", Required: true},
					&cli.StringFlag{Name: "credentials", Usage: "Credentials as a JSON object", Required: true},
				},
				Action: pushCredentials,
			},
			{
				Name:   "ping",
				Usage:  "Check that the credential sync service answers",
				Flags:  []cli.Flag{credentialsURLFlag()},
				Action: pingCredentials,
			},
		},
	}
}

func credentialsURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "credentials-url",
		Usage:   "Base URL of the credential sync service (defaults to the config file)",
		Sources: cli.EnvVars("CREDENTIALS_SERVICE_URL"),
	}
}

func credentialSync(command *cli.Command) (*transmission.CredentialSync, *config.Config, error) {
	setup(command)

	cfg, err := config.Load(command.String("config"))
	if err != nil {
		return nil, nil, err
	}

	url := command.String("credentials-url")
	if url == "" {
		url = cfg.Services.CredentialsURL
	}

	return transmission.NewCredentialSync(url, nil, log.WithModule("credentials")), cfg, nil
}

func pushCredentials(ctx context.Context, command *cli.Command) error {
	client, cfg, err := credentialSync(command)
	if err != nil {
		return err
	}

	payload := transmission.CredentialPayload{
		UserID:   command.String("user"),
		Provider: command.String("provider"),
	}

	err = json.Unmarshal([]byte(command.String("credentials")), &payload.Credentials)
	if err != nil {
		return fmt.Errorf("credentials must be a JSON object: %w", err)
	}

	err = validator.New(validator.WithRequiredStructEnabled()).Struct(payload)
	if err != nil {
		return err
	}

	resp, err := client.Push(ctx, payload, uuid.NewString(), cfg.Transmission)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(command.Root().Writer, "pushed:", resp.Message)

	return err
}

func pingCredentials(ctx context.Context, command *cli.Command) error {
	client, _, err := credentialSync(command)
	if err != nil {
		return err
	}

	if !client.TestConnection(ctx) {
		return ErrServiceUnreachable
	}

	_, err = fmt.Fprintln(command.Root().Writer, "ok")

	return err
}
