// Package config provides configuration management for the chatbridge server.
// It loads settings from environment variables with sensible defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
)

// Config holds all configuration for the chatbridge server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Kafka    KafkaConfig
	Bridge   BridgeConfig
	LogLevel string // debug, info, warn, error
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver   string // mysql, postgres, sqlite3
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Prefix   string // Table prefix (default: "chat_")
}

// KafkaConfig holds the durable log settings.
// With no brokers the server runs on the in-process log.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	GroupID  string
	ClientID string
}

// BridgeConfig holds the consumer loop and stream tuning.
type BridgeConfig struct {
	PollTimeout         time.Duration
	BackpressureTimeout time.Duration
	MaxConsecutiveDrops int
	BufferSize          int
	DrainTimeout        time.Duration
	FlushTimeout        time.Duration
	EnableNotifications bool
}

// InMemory reports whether no Kafka brokers are configured.
func (k KafkaConfig) InMemory() bool {
	return len(k.Brokers) == 0
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "30s")

	v.SetDefault("DB_DRIVER", "mysql")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 3306)
	v.SetDefault("DB_USER", "chatbridge")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "chatbridge")
	v.SetDefault("DB_PREFIX", "chat_")

	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "chat-messages")
	v.SetDefault("KAFKA_GROUP_ID", "chatbridge")
	v.SetDefault("KAFKA_CLIENT_ID", "chatbridge-server")

	v.SetDefault("BRIDGE_POLL_TIMEOUT", "1s")
	v.SetDefault("BRIDGE_BACKPRESSURE_TIMEOUT", "250ms")
	v.SetDefault("BRIDGE_MAX_CONSECUTIVE_DROPS", 3)
	v.SetDefault("BRIDGE_BUFFER_SIZE", 16)
	v.SetDefault("BRIDGE_DRAIN_TIMEOUT", "10s")
	v.SetDefault("BRIDGE_FLUSH_TIMEOUT", "5s")
	v.SetDefault("BRIDGE_ENABLE_NOTIFICATIONS", true)

	v.SetDefault("LOG_LEVEL", "info")
}

// Load loads configuration from environment variables.
// Follows 12-factor app principles - configuration via environment.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("SERVER_HOST"),
			Port:            v.GetInt("SERVER_PORT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
		},
		Database: DatabaseConfig{
			Driver:   strings.ToLower(v.GetString("DB_DRIVER")),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Database: v.GetString("DB_NAME"),
			Prefix:   v.GetString("DB_PREFIX"),
		},
		Kafka: KafkaConfig{
			Brokers:  splitList(v.GetString("KAFKA_BROKERS")),
			Topic:    strings.TrimSpace(v.GetString("KAFKA_TOPIC")),
			GroupID:  v.GetString("KAFKA_GROUP_ID"),
			ClientID: v.GetString("KAFKA_CLIENT_ID"),
		},
		Bridge: BridgeConfig{
			PollTimeout:         v.GetDuration("BRIDGE_POLL_TIMEOUT"),
			BackpressureTimeout: v.GetDuration("BRIDGE_BACKPRESSURE_TIMEOUT"),
			MaxConsecutiveDrops: v.GetInt("BRIDGE_MAX_CONSECUTIVE_DROPS"),
			BufferSize:          v.GetInt("BRIDGE_BUFFER_SIZE"),
			DrainTimeout:        v.GetDuration("BRIDGE_DRAIN_TIMEOUT"),
			FlushTimeout:        v.GetDuration("BRIDGE_FLUSH_TIMEOUT"),
			EnableNotifications: v.GetBool("BRIDGE_ENABLE_NOTIFICATIONS"),
		},
		LogLevel: strings.ToLower(v.GetString("LOG_LEVEL")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate implements validation.Validatable.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server),
		validation.Field(&c.Database),
		validation.Field(&c.Kafka),
		validation.Field(&c.Bridge),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
	)
}

// Validate implements validation.Validatable.
func (s ServerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&s.ShutdownTimeout, validation.Required),
	)
}

// Validate implements validation.Validatable.
// DB_PASSWORD is required for every driver except sqlite3.
func (d DatabaseConfig) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In("mysql", "postgres", "sqlite3")),
		validation.Field(&d.Database, validation.Required),
		validation.Field(&d.Password, validation.When(d.Driver != "sqlite3", validation.Required)),
	)
}

// Validate implements validation.Validatable.
func (k KafkaConfig) Validate() error {
	return validation.ValidateStruct(&k,
		validation.Field(&k.Topic, validation.Required),
		validation.Field(&k.GroupID, validation.When(!k.InMemory(), validation.Required)),
	)
}

// Validate implements validation.Validatable.
func (b BridgeConfig) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.PollTimeout, validation.Required),
		validation.Field(&b.BackpressureTimeout, validation.Required),
		validation.Field(&b.MaxConsecutiveDrops, validation.Min(0)),
		validation.Field(&b.BufferSize, validation.Required, validation.Min(1)),
		validation.Field(&b.FlushTimeout, validation.Required),
	)
}

// GetDSN returns the database connection string based on driver.
func (d *DatabaseConfig) GetDSN() string {
	switch d.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Database)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			d.Host, d.Port, d.User, d.Password, d.Database)
	case "sqlite3":
		return d.Database // SQLite uses file path as DSN
	default:
		return ""
	}
}

// Address returns host:port for the HTTP listener.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// splitList parses a comma separated list, dropping empty entries.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
