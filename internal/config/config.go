package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flexprice/paypal-ipn/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Server     ServerConfig     `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Postgres   PostgresConfig   `validate:"required"`
	Kafka      KafkaConfig
	Events     EventsConfig
	Cache      CacheConfig
	Sentry     SentryConfig
	PayPal     PayPalConfig `validate:"required"`
	Retry      RetryConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type ServerConfig struct {
	Address string `validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type PostgresConfig struct {
	Host                   string
	Port                   int
	User                   string
	Password               string
	DBName                 string
	SSLMode                string
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `mapstructure:"conn_max_lifetime_minutes"`
}

type KafkaConfig struct {
	Brokers       []string
	ClientID      string `mapstructure:"client_id"`
	ConsumerGroup string `mapstructure:"consumer_group"`
}

// EventsConfig controls where domain events and email triggers are published
type EventsConfig struct {
	Enabled    bool             `mapstructure:"enabled"`
	PubSub     types.PubSubType `mapstructure:"pubsub"`
	Topic      string           `mapstructure:"topic"`
	EmailTopic string           `mapstructure:"email_topic"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// PayPalConfig holds the PayPal Standard gateway settings
type PayPalConfig struct {
	// InvoicePrefix is prepended to order ids sent as the invoice value
	InvoicePrefix string `mapstructure:"invoice_prefix"`
	// IdentityToken enables payment data transfer, the alternate confirmation channel for the first payment
	IdentityToken string `mapstructure:"identity_token"`
	Sandbox       bool   `mapstructure:"sandbox"`
	APIUsername   string `mapstructure:"api_username"`
	APIPassword   string `mapstructure:"api_password"`
	APISignature  string `mapstructure:"api_signature"`
	// HTTPTimeout bounds a single NVP API call
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	RetryMax    int           `mapstructure:"retry_max"`
}

// HasAPICredentials reports whether profile management calls can be made
func (c PayPalConfig) HasAPICredentials() bool {
	return c.APIUsername != "" && c.APIPassword != "" && c.APISignature != ""
}

// NVPEndpoint returns the PayPal NVP API endpoint for the configured environment
func (c PayPalConfig) NVPEndpoint() string {
	if c.Sandbox {
		return "https://api-3t.sandbox.paypal.com/nvp"
	}
	return "https://api-3t.paypal.com/nvp"
}

// RetryConfig describes the failed renewal retry rules owned by the billing side.
// Only the number of configured rules is consumed here.
type RetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Rules   int  `mapstructure:"rules"`
}

func NewConfig() (*Configuration, error) {
	// .env is optional and only used for local development
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/paypal-ipn")

	v.SetEnvPrefix("IPN")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", types.ModeLocal)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", types.LogLevelInfo)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime_minutes", 30)
	v.SetDefault("events.enabled", true)
	v.SetDefault("events.pubsub", types.MemoryPubSub)
	v.SetDefault("events.topic", "ipn_events")
	v.SetDefault("events.email_topic", "ipn_emails")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("paypal.http_timeout", 20*time.Second)
	v.SetDefault("paypal.retry_max", 3)
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a default configuration for local development
// This is useful for running scripts or other non-web applications
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Server:     ServerConfig{Address: ":8080"},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Events: EventsConfig{
			Enabled:    true,
			PubSub:     types.MemoryPubSub,
			Topic:      "ipn_events",
			EmailTopic: "ipn_emails",
		},
		Cache: CacheConfig{Enabled: true, TTL: 10 * time.Minute},
		PayPal: PayPalConfig{
			HTTPTimeout: 20 * time.Second,
			RetryMax:    3,
		},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}
