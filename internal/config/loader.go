package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError wraps configuration loading failures with a category so
// callers can distinguish operator mistakes from environment problems.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config error [%s]: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("config error [%s]: %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError creates a categorized configuration error.
func NewConfigError(errType ConfigErrorType, message string, err error) *ConfigError {
	return &ConfigError{Type: errType, Message: message, Err: err}
}

// loaderDeps allows injecting the environment-reading functions in tests.
type loaderDeps struct {
	loadDotenv func() error
	process    func(prefix string, spec any) error
}

func defaultLoaderDeps() loaderDeps {
	return loaderDeps{
		loadDotenv: func() error { return godotenv.Load() },
		process:    envconfig.Process,
	}
}

// LoadConfig reads configuration from the process environment. A .env file
// in the working directory is merged in when present (local development);
// its absence is not an error. All timestamps in the service are UTC, so
// the process-local timezone is pinned here before anything reads a clock.
func LoadConfig() (*Config, error) {
	return loadConfig(defaultLoaderDeps())
}

func loadConfig(deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	// Best effort: absent in deployed environments.
	_ = deps.loadDotenv()

	var cfg Config
	if err := deps.process("", &cfg); err != nil {
		return nil, NewConfigError(ErrParsing, "failed to parse environment variables", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, NewConfigError(ErrValidation, "configuration validation failed", err)
	}

	if err := validateCrossFields(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateCrossFields enforces constraints that span multiple fields and
// cannot be expressed as struct tags.
func validateCrossFields(cfg *Config) error {
	switch cfg.Rules.Driver {
	case RuleSourcePostgres:
		if cfg.Database.URL.Unmask() == "" {
			return NewConfigError(ErrValidation, "DATABASE_URL is required when RULES_DRIVER=postgres", nil)
		}
	case RuleSourceFile:
		if cfg.Rules.FilePath == "" {
			return NewConfigError(ErrValidation, "RULES_FILE is required when RULES_DRIVER=file", nil)
		}
	}

	if cfg.Slack.ClientID != "" && cfg.Slack.ClientSecret.Unmask() == "" {
		return NewConfigError(ErrValidation, "SLACK_CLIENT_SECRET is required when SLACK_CLIENT_ID is set", nil)
	}

	return nil
}
