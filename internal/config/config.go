// Package config defines the global configuration for the RelayPoint
// dispatch service. Configuration is loaded once at process initialization
// (Lambda cold start) and is immutable thereafter, following 12-Factor App
// principles: values come from the OS environment, with an optional dotenv
// file for local development.
package config

import (
	"time"

	"relaypoint/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Rule source driver identifiers.
const (
	RuleSourcePostgres = "postgres"
	RuleSourceFile     = "file"
	RuleSourceMemory   = "memory"
)

// Config is the top-level configuration struct. Sub-components receive only
// the specific subsets they require.
type Config struct {
	// System metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"relaypoint"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain configurations
	Server   ServerConfig
	Database DatabaseConfig
	AWS      AWSConfig
	Slack    SlackConfig
	Rules    RulesConfig
	Webhook  WebhookConfig
	Ingest   IngestConfig
}

// ServerConfig holds HTTP server settings for the ingest API.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// DatabaseConfig holds connection and pool tuning for the rule store.
// Only consulted when Rules.Driver is "postgres".
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	EventQueue string `envconfig:"SQS_EVENTS" validate:"required,url"`

	// LocalStack support (empty in prod).
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// SlackConfig holds the site-wide delivery defaults and app credentials.
// The webhook URL is the only required delivery default; the rest fall
// back to whatever the destination webhook defines.
type SlackConfig struct {
	WebhookURL SecretString `envconfig:"SLACK_WEBHOOK_URL"`
	Channel    string       `envconfig:"SLACK_DEFAULT_CHANNEL"`
	Username   string       `envconfig:"SLACK_DEFAULT_USERNAME"`
	Icon       string       `envconfig:"SLACK_DEFAULT_ICON"`
	Color      string       `envconfig:"SLACK_DEFAULT_COLOR"`

	// OAuth app credentials, used for the workspace-connect flow and
	// team invites. Optional: sites may paste a webhook URL directly.
	ClientID     string       `envconfig:"SLACK_CLIENT_ID"`
	ClientSecret SecretString `envconfig:"SLACK_CLIENT_SECRET"`
	AdminToken   SecretString `envconfig:"SLACK_ADMIN_TOKEN"`
}

// SiteDefaults converts the configured delivery defaults into the domain
// type the dispatch assembler consumes.
func (c SlackConfig) SiteDefaults() types.SiteDefaults {
	return types.SiteDefaults{
		WebhookURL: c.WebhookURL.Unmask(),
		Channel:    c.Channel,
		Username:   c.Username,
		Icon:       c.Icon,
		Color:      c.Color,
	}
}

// RulesConfig selects the rule store backend.
type RulesConfig struct {
	Driver string `envconfig:"RULES_DRIVER" default:"postgres" validate:"oneof=postgres file memory"`

	// FilePath is the YAML rule file, required when Driver is "file".
	FilePath string `envconfig:"RULES_FILE"`
}

// WebhookConfig holds settings for outbound webhook delivery.
type WebhookConfig struct {
	UserAgent    string        `envconfig:"WEBHOOK_USER_AGENT" default:"RelayPoint-Dispatch/1.0"`
	Timeout      time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"10s"`
	MaxRedirects int           `envconfig:"WEBHOOK_MAX_REDIRECTS" default:"3"`
	MaxRetries   int           `envconfig:"WEBHOOK_MAX_RETRIES" default:"3"`
}

// IngestConfig holds settings for the event ingest API.
type IngestConfig struct {
	MaxBodyBytes int64 `envconfig:"INGEST_MAX_BODY_BYTES" default:"262144"`

	// StripeWebhookSecret enables the Stripe ingest endpoint when set.
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET"`
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure parsing environment values into their
	// target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
