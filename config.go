package ar24

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/connected-company/ar24-go/internal/totp"
)

// Environment selects the AR24 platform a client talks to.
type Environment string

const (
	EnvDemo Environment = "demo"
	EnvProd Environment = "prod"
)

const (
	DemoAPIURI = "https://test.ar24.fr/api/"
	ProdAPIURI = "https://app.ar24.fr/api/"
)

// DefaultTimeout is used when Config.Timeout is zero.
const DefaultTimeout = 20 * time.Second

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds the client configuration.
type Config struct {
	Environment Environment   `yaml:"environment" validate:"required,oneof=demo prod"`
	Webhook     string        `yaml:"webhook" validate:"omitempty,url"`
	Timeout     time.Duration `yaml:"timeout"`
	Sender      SenderConfig  `yaml:"sender"`
	Logging     LoggingConfig `yaml:"logging"`
}

// SenderConfig describes the default sender. When set, the client registers
// it on first use and DefaultSender returns it.
type SenderConfig struct {
	Email     string `yaml:"email" validate:"omitempty,email"`
	Token     string `yaml:"token" validate:"required_with=Email"`
	OTPSecret string `yaml:"otp_secret"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// LoadConfig loads configuration from AR24_* environment variables over
// defaults. The result is validated by New.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile loads configuration from a YAML file as the base layer,
// then overrides it with environment variables.
func LoadConfigFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Configured reports whether a default sender is set.
func (s SenderConfig) Configured() bool {
	return s.Email != "" && s.Token != ""
}

// BaseURI returns the API root of the configured environment, or an empty
// string when the environment is unknown.
func (c *Config) BaseURI() string {
	switch normalizeEnvironment(c.Environment) {
	case EnvDemo:
		return DemoAPIURI
	case EnvProd:
		return ProdAPIURI
	}
	return ""
}

// Validate normalizes the environment, applies the default timeout and
// checks every field. Errors match ErrConfiguration.
func (c *Config) Validate() error {
	c.Environment = normalizeEnvironment(c.Environment)

	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTimeout, c.Timeout)
	}

	if err := validate.Struct(c); err != nil {
		return validationError(err)
	}

	if c.Sender.OTPSecret != "" {
		if err := totp.ValidateSecret(c.Sender.OTPSecret); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidOTPSecret, err)
		}
	}

	return nil
}

func (c *Config) applyDefaults() {
	c.Environment = EnvDemo
	c.Timeout = DefaultTimeout
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with non-empty environment variables.
func (c *Config) applyEnvVars() error {
	if v := os.Getenv("AR24_ENVIRONMENT"); v != "" {
		c.Environment = normalizeEnvironment(Environment(v))
	}
	if v := os.Getenv("AR24_WEBHOOK"); v != "" {
		c.Webhook = v
	}
	if v := os.Getenv("AR24_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: AR24_TIMEOUT %q", ErrInvalidTimeout, v)
		}
		c.Timeout = d
	}

	if v := os.Getenv("AR24_SENDER_EMAIL"); v != "" {
		c.Sender.Email = v
	}
	if v := os.Getenv("AR24_SENDER_TOKEN"); v != "" {
		c.Sender.Token = v
	}
	if v := os.Getenv("AR24_SENDER_OTP_SECRET"); v != "" {
		c.Sender.OTPSecret = v
	}

	if v := os.Getenv("AR24_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}

	return nil
}

func normalizeEnvironment(env Environment) Environment {
	return Environment(strings.ToLower(strings.TrimSpace(string(env))))
}

// validationError maps the first failing field to its sentinel.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	fe := verrs[0]
	switch fe.StructField() {
	case "Environment":
		return fmt.Errorf("%w: got %q", ErrInvalidEnvironment, fe.Value())
	case "Webhook":
		return fmt.Errorf("%w: got %q", ErrInvalidWebhook, fe.Value())
	case "Email":
		return fmt.Errorf("%w: %s", ErrInvalidEmail, fe.Namespace())
	case "Token":
		return fmt.Errorf("%w: %s", ErrEmptyToken, fe.Namespace())
	}
	return fmt.Errorf("%w: %s failed %s", ErrConfiguration, fe.Namespace(), fe.Tag())
}
