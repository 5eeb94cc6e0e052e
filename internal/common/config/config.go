// Package config provides configuration management for agentdeck.
// It supports loading configuration from environment variables, config files,
// and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/agentdeck/agentdeck/internal/common/logger"
)

// Config holds all configuration sections for agentdeck.
type Config struct {
	Server   ServerConfig         `mapstructure:"server"`
	Stream   StreamConfig         `mapstructure:"stream"`
	NATS     NATSConfig           `mapstructure:"nats"`
	Storage  StorageConfig        `mapstructure:"storage"`
	Dispatch DispatchConfig       `mapstructure:"dispatch"`
	Logging  logger.LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// Addr returns the host:port address to bind.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StreamConfig holds event-stream connection configuration.
type StreamConfig struct {
	// HeartbeatInterval is how often a heartbeat frame is sent on each
	// connection to keep intermediaries from closing it.
	HeartbeatInterval time.Duration `mapstructure:"heartbeatInterval"`

	// InactivityTimeout force-closes a connection that has seen no client
	// activity and produced no event for this long.
	InactivityTimeout time.Duration `mapstructure:"inactivityTimeout"`

	// SendBufferSize is the per-connection outbound frame buffer. A client
	// that cannot keep up has frames dropped rather than blocking the bus.
	SendBufferSize int `mapstructure:"sendBufferSize"`
}

// NATSConfig holds NATS connection configuration. An empty URL selects the
// in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// StorageConfig holds the client-side persisted state location.
type StorageConfig struct {
	// StatePath is the SQLite database holding pending messages and pending
	// permission changes, shared by every client instance of one origin.
	StatePath string `mapstructure:"statePath"`
}

// DispatchConfig bounds outbound dispatch calls.
type DispatchConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8400)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	v.SetDefault("stream.heartbeatInterval", 30*time.Second)
	v.SetDefault("stream.inactivityTimeout", 5*time.Minute)
	v.SetDefault("stream.sendBufferSize", 256)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "agentdeck")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("storage.statePath", "agentdeck-state.db")

	v.SetDefault("dispatch.timeout", 30*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "")
	v.SetDefault("logging.output_path", "stdout")
}

// Load reads configuration from default locations.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default
// locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("AGENTDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/agentdeck/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if cfg.Stream.HeartbeatInterval <= 0 {
		errs = append(errs, "stream.heartbeatInterval must be positive")
	}
	if cfg.Stream.InactivityTimeout <= 0 {
		errs = append(errs, "stream.inactivityTimeout must be positive")
	}
	if cfg.Stream.InactivityTimeout <= cfg.Stream.HeartbeatInterval {
		errs = append(errs, "stream.inactivityTimeout must be greater than stream.heartbeatInterval")
	}
	if cfg.Stream.SendBufferSize <= 0 {
		errs = append(errs, "stream.sendBufferSize must be positive")
	}
	if cfg.Dispatch.Timeout <= 0 {
		errs = append(errs, "dispatch.timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
