package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string        `mapstructure:"environment"`
	Server      ServerConfig  `mapstructure:"server"`
	Storage     StorageConfig `mapstructure:"storage"`
	Webhook     WebhookConfig `mapstructure:"webhook"`
	Logging     LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type StorageConfig struct {
	Driver string       `mapstructure:"driver"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// WebhookConfig carries the delivery policy. Per-endpoint timeout and retry
// overrides take precedence over Timeout and MaxRetryAttempts.
type WebhookConfig struct {
	MaxRetryAttempts            int           `mapstructure:"max_retry_attempts"`
	InitialRetryDelay           time.Duration `mapstructure:"initial_retry_delay"`
	MaxRetryDelay               time.Duration `mapstructure:"max_retry_delay"`
	BackoffMultiplier           float64       `mapstructure:"backoff_multiplier"`
	Timeout                     time.Duration `mapstructure:"timeout"`
	BatchSize                   int           `mapstructure:"batch_size"`
	Concurrency                 int           `mapstructure:"concurrency"`
	EnableSignatureVerification bool          `mapstructure:"enable_signature_verification"`
	SignatureHeader             string        `mapstructure:"signature_header"`
	TimestampHeader             string        `mapstructure:"timestamp_header"`
	TimestampTolerance          time.Duration `mapstructure:"timestamp_tolerance"`
	ProcessInterval             time.Duration `mapstructure:"process_interval"`
	RetryInterval               time.Duration `mapstructure:"retry_interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Error reports an invalid configuration value at construction time.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func Load(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("ledgerhooks")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/ledgerhooks")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SARALBOOKS")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Webhook.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *WebhookConfig) Validate() error {
	switch {
	case c.MaxRetryAttempts < 1:
		return &Error{Field: "webhook.max_retry_attempts", Reason: "must be at least 1"}
	case c.InitialRetryDelay <= 0:
		return &Error{Field: "webhook.initial_retry_delay", Reason: "must be positive"}
	case c.MaxRetryDelay < c.InitialRetryDelay:
		return &Error{Field: "webhook.max_retry_delay", Reason: "must be >= initial_retry_delay"}
	case c.BackoffMultiplier < 1:
		return &Error{Field: "webhook.backoff_multiplier", Reason: "must be at least 1"}
	case c.Timeout <= 0:
		return &Error{Field: "webhook.timeout", Reason: "must be positive"}
	case c.BatchSize < 1:
		return &Error{Field: "webhook.batch_size", Reason: "must be at least 1"}
	case c.Concurrency < 1:
		return &Error{Field: "webhook.concurrency", Reason: "must be at least 1"}
	case c.SignatureHeader == "":
		return &Error{Field: "webhook.signature_header", Reason: "must not be empty"}
	case c.TimestampHeader == "":
		return &Error{Field: "webhook.timestamp_header", Reason: "must not be empty"}
	}
	return nil
}

// DefaultWebhook returns the delivery policy used when no overrides are set.
func DefaultWebhook() WebhookConfig {
	return WebhookConfig{
		MaxRetryAttempts:            5,
		InitialRetryDelay:           1 * time.Second,
		MaxRetryDelay:               5 * time.Minute,
		BackoffMultiplier:           2,
		Timeout:                     30 * time.Second,
		BatchSize:                   100,
		Concurrency:                 10,
		EnableSignatureVerification: true,
		SignatureHeader:             "X-Webhook-Signature",
		TimestampHeader:             "X-Webhook-Timestamp",
		TimestampTolerance:          5 * time.Minute,
		ProcessInterval:             1 * time.Second,
		RetryInterval:               30 * time.Second,
	}
}

func setDefaults() {
	viper.SetDefault("environment", "production")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	viper.SetDefault("storage.driver", "sqlite")
	viper.SetDefault("storage.sqlite.path", "./data/ledgerhooks.db")

	def := DefaultWebhook()
	viper.SetDefault("webhook.max_retry_attempts", def.MaxRetryAttempts)
	viper.SetDefault("webhook.initial_retry_delay", def.InitialRetryDelay)
	viper.SetDefault("webhook.max_retry_delay", def.MaxRetryDelay)
	viper.SetDefault("webhook.backoff_multiplier", def.BackoffMultiplier)
	viper.SetDefault("webhook.timeout", def.Timeout)
	viper.SetDefault("webhook.batch_size", def.BatchSize)
	viper.SetDefault("webhook.concurrency", def.Concurrency)
	viper.SetDefault("webhook.enable_signature_verification", def.EnableSignatureVerification)
	viper.SetDefault("webhook.signature_header", def.SignatureHeader)
	viper.SetDefault("webhook.timestamp_header", def.TimestampHeader)
	viper.SetDefault("webhook.timestamp_tolerance", def.TimestampTolerance)
	viper.SetDefault("webhook.process_interval", def.ProcessInterval)
	viper.SetDefault("webhook.retry_interval", def.RetryInterval)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}
