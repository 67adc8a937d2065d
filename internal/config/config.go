// Package config loads bermail configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultSMTPPort    = 587
	defaultSMTPTimeout = 30 * time.Second
	defaultTLSMode     = "auto"
	defaultSiteName    = "BER Marketplace"

	// defaultStdoutSender fills the From header when printing locally
	// without a configured sender.
	defaultStdoutSender = "noreply@localhost"
)

// Provider names accepted in the provider field.
const (
	ProviderSMTP   = "smtp"
	ProviderSES    = "ses"
	ProviderStdout = "stdout"
)

// Config holds the complete application configuration.
type Config struct {
	Provider string        `yaml:"provider"`
	SMTP     SMTPConfig    `yaml:"smtp"`
	SES      SESConfig     `yaml:"ses"`
	Site     SiteConfig    `yaml:"site"`
	Logging  LoggingConfig `yaml:"logging"`
}

// SMTPConfig holds the outbound relay settings.
type SMTPConfig struct {
	Host      string        `yaml:"host"`
	Port      int           `yaml:"port"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	From      string        `yaml:"from"`
	LocalName string        `yaml:"local_name"`
	Timeout   time.Duration `yaml:"timeout"`
	TLSMode   string        `yaml:"tls_mode"`
	CAFile    string        `yaml:"ca_file"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
}

// SiteConfig is the marketplace identity used in subjects and links.
type SiteConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	cfg.normalize()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvVars()
	cfg.normalize()

	return cfg, nil
}

// From returns the sender address for the selected provider. SES falls back
// to its verified sender and stdout to a local placeholder.
func (c *Config) From() string {
	if c.SMTP.From != "" {
		return c.SMTP.From
	}
	switch c.Provider {
	case ProviderSES:
		return c.SES.Sender
	case ProviderStdout:
		return defaultStdoutSender
	}
	return ""
}

// AuthEnabled returns true if both SMTP username and password are set.
func (c *Config) AuthEnabled() bool {
	return c.SMTP.Username != "" && c.SMTP.Password != ""
}

// SESConfigured returns true if the SES region and sender are set.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != "" && c.SES.Sender != ""
}

// Validate reports every missing or malformed setting for the selected
// provider.
func (c *Config) Validate() error {
	var errs []error

	switch c.Provider {
	case ProviderSMTP:
		if c.SMTP.Host == "" {
			errs = append(errs, errors.New("smtp.host is required"))
		}
		if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
			errs = append(errs, fmt.Errorf("smtp.port %d is out of range", c.SMTP.Port))
		}
		if !c.AuthEnabled() {
			errs = append(errs, errors.New("smtp.username and smtp.password are required"))
		}
		if c.SMTP.From == "" {
			errs = append(errs, errors.New("smtp.from is required"))
		}
		switch c.SMTP.TLSMode {
		case "auto", "implicit", "starttls", "none":
		default:
			errs = append(errs, fmt.Errorf("smtp.tls_mode %q is not one of auto, implicit, starttls, none", c.SMTP.TLSMode))
		}
		if c.SMTP.Timeout < 0 {
			errs = append(errs, errors.New("smtp.timeout must not be negative"))
		}
	case ProviderSES:
		if !c.SESConfigured() {
			errs = append(errs, errors.New("ses.region and ses.sender are required"))
		}
	case ProviderStdout:
	case "":
		errs = append(errs, errors.New("provider is required"))
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider))
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not one of json, text", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// normalize lowercases the enumerated settings, which YAML passes through
// verbatim.
func (c *Config) normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.SMTP.TLSMode = strings.ToLower(strings.TrimSpace(c.SMTP.TLSMode))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Provider = ProviderSMTP
	c.SMTP.Port = defaultSMTPPort
	c.SMTP.Timeout = defaultSMTPTimeout
	c.SMTP.TLSMode = defaultTLSMode
	c.Site.Name = defaultSiteName
	c.Logging.Level = "info"
	c.Logging.Format = "json"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("PROVIDER"); v != "" {
		c.Provider = strings.ToLower(v)
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		c.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.SMTP.Port = port
		}
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		c.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		c.SMTP.Password = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		c.SMTP.From = v
	}
	if v := os.Getenv("SMTP_LOCAL_NAME"); v != "" {
		c.SMTP.LocalName = v
	}
	if v := os.Getenv("SMTP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.SMTP.Timeout = d
		}
	}
	if v := os.Getenv("SMTP_TLS_MODE"); v != "" {
		c.SMTP.TLSMode = strings.ToLower(v)
	}
	if v := os.Getenv("SMTP_CA_FILE"); v != "" {
		c.SMTP.CAFile = v
	}

	if v := os.Getenv("SES_REGION"); v != "" {
		c.SES.Region = v
	}
	if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
		c.SES.AccessKeyID = v
	}
	if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
		c.SES.SecretAccessKey = v
	}
	if v := os.Getenv("SES_SENDER"); v != "" {
		c.SES.Sender = v
	}

	if v := os.Getenv("SITE_NAME"); v != "" {
		c.Site.Name = v
	}
	if v := os.Getenv("SITE_BASE_URL"); v != "" {
		c.Site.BaseURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
}
