// Package config loads the optional YAML configuration file shared by the commands.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/dukex/applyflow/pkg/timers"
	"github.com/dukex/applyflow/pkg/transmission"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the content of applyflow.yaml. Absent sections keep their defaults.
type Config struct {
	Dispatcher    timers.DispatcherConfig   `yaml:"dispatcher"`
	Defaults      models.AutomationSettings `yaml:"defaults"`
	Transmission  transmission.Options      `yaml:"transmission"`
	Idempotency   Idempotency               `yaml:"idempotency"`
	Notifications Notifications             `yaml:"notifications"`
	Services      Services                  `yaml:"services"`
}

// Idempotency configures the HTTP replay cache.
type Idempotency struct {
	// Store is memory, postgres or redis.
	Store    string        `yaml:"store" validate:"oneof=memory postgres redis"`
	RedisURL string        `yaml:"redis_url" validate:"required_if=Store redis"`
	TTL      time.Duration `yaml:"ttl" validate:"gt=0"`
	Wait     time.Duration `yaml:"wait" validate:"gt=0"`
	// PurgeSchedule is the robfig/cron expression of the expired-record purge.
	PurgeSchedule string `yaml:"purge_schedule" validate:"required"`
}

// Notifications selects the notification transport.
type Notifications struct {
	Transport string   `yaml:"transport" validate:"oneof=memory gochannel kafka"`
	Brokers   []string `yaml:"brokers" validate:"required_if=Transport kafka"`
	Topic     string   `yaml:"topic" validate:"required"`
	Buffer    int      `yaml:"buffer" validate:"gte=1"`
}

// Services holds the addresses of the downstream collaborators.
type Services struct {
	GeneratorURL   string `yaml:"generator_url" validate:"required,url"`
	SubmitterURL   string `yaml:"submitter_url" validate:"required,url"`
	CredentialsURL string `yaml:"credentials_url" validate:"required,url"`
	// MailerURL is optional; without it follow-up reminders only notify.
	MailerURL     string `yaml:"mailer_url" validate:"omitempty,url"`
	DocumentsPath string `yaml:"documents_path" validate:"required"`
}

func Default() *Config {
	defaults := models.DefaultAutomationSettings("")

	return &Config{
		Dispatcher:   timers.DefaultDispatcherConfig(),
		Defaults:     *defaults,
		Transmission: transmission.DefaultOptions(),
		Idempotency: Idempotency{
			Store:         "memory",
			TTL:           models.IdempotencyTTL,
			Wait:          5 * time.Second,
			PurgeSchedule: "@hourly",
		},
		Notifications: Notifications{
			Transport: "memory",
			Topic:     "applyflow.notifications",
			Buffer:    16,
		},
		Services: Services{
			GeneratorURL:   "http://localhost:8001",
			SubmitterURL:   "http://localhost:8002",
			CredentialsURL: "http://localhost:8003",
			DocumentsPath:  "./data/documents",
		},
	}
}

// Load reads path over the defaults and validates the result. An empty path or a missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)

		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			err = yaml.Unmarshal(data, config)
			if err != nil {
				return nil, fmt.Errorf("failed to parse YAML config: %w", err)
			}
		}
	}

	err := Validate(config)
	if err != nil {
		return nil, err
	}

	return config, nil
}

func Validate(config *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())

	err := validate.Struct(config)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}

// DefaultSettings returns the configured defaults for a user that never saved settings.
func (c *Config) DefaultSettings(userID string) *models.AutomationSettings {
	settings := c.Defaults
	settings.UserID = userID

	return &settings
}
