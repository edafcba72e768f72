package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EventLogCapacity is the number of entries the activity trail retains.
const EventLogCapacity = 11

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		RateLimit       struct {
			Burst     float64 `yaml:"burst"`
			PerSecond float64 `yaml:"per_second"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Log struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		Output     string `yaml:"output"`
		TimeFormat string `yaml:"time_format"`
	} `yaml:"log"`
	Telemetry struct {
		WebSocketURL     string        `yaml:"websocket_url"`
		ReconnectDelay   time.Duration `yaml:"reconnect_delay"`
		HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
		ReadLimit        int64         `yaml:"read_limit"`
		SubscriberBuffer int           `yaml:"subscriber_buffer"`
	} `yaml:"telemetry"`
	EventLog struct {
		TimeFormat string `yaml:"time_format"`
	} `yaml:"event_log"`
	Redis struct {
		Enabled         bool          `yaml:"enabled"`
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port"`
		Password        string        `yaml:"password"`
		DB              int           `yaml:"db"`
		Prefix          string        `yaml:"prefix"`
		TTL             time.Duration `yaml:"ttl"`
		MaxWritesPerSec int           `yaml:"max_writes_per_sec"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		LogTopic     string   `yaml:"log_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Async        bool     `yaml:"async"`
	} `yaml:"kafka"`
	Pipeline struct {
		BufferSize int `yaml:"buffer_size"`
	} `yaml:"pipeline"`
	Feed struct {
		Port      int           `yaml:"port"`
		Interval  time.Duration `yaml:"interval"`
		Positions []string      `yaml:"positions"`
	} `yaml:"feed"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, fills defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("NKDASH_WS_URL"); v != "" {
		c.Telemetry.WebSocketURL = v
	}
	if v := getenv("NKDASH_RECONNECT_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("NKDASH_RECONNECT_DELAY: %w", err)
		}
		c.Telemetry.ReconnectDelay = d
	}
	if v := getenv("NKDASH_REDIS_HOST"); v != "" {
		c.Redis.Host = v
		c.Redis.Enabled = true
	}
	if v := getenv("NKDASH_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := getenv("NKDASH_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.RateLimit.Burst == 0 {
		c.Server.RateLimit.Burst = 20
	}
	if c.Server.RateLimit.PerSecond == 0 {
		c.Server.RateLimit.PerSecond = 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Telemetry.ReconnectDelay == 0 {
		c.Telemetry.ReconnectDelay = 3 * time.Second
	}
	if c.Telemetry.HandshakeTimeout == 0 {
		c.Telemetry.HandshakeTimeout = 10 * time.Second
	}
	if c.Telemetry.SubscriberBuffer == 0 {
		c.Telemetry.SubscriberBuffer = 64
	}
	if c.EventLog.TimeFormat == "" {
		c.EventLog.TimeFormat = "3:04:05 PM"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "nkdash"
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = 30 * time.Second
	}
	if c.Redis.MaxWritesPerSec == 0 {
		c.Redis.MaxWritesPerSec = 5
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "nkdash.connection_events"
	}
	if c.Kafka.RequiredAcks == 0 {
		c.Kafka.RequiredAcks = -1
	}
	if c.Pipeline.BufferSize == 0 {
		c.Pipeline.BufferSize = 256
	}
	if c.Feed.Port == 0 {
		c.Feed.Port = 8000
	}
	if c.Feed.Interval == 0 {
		c.Feed.Interval = time.Second
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Telemetry.WebSocketURL == "" {
		return fmt.Errorf("telemetry.websocket_url is required")
	}
	if !strings.HasPrefix(c.Telemetry.WebSocketURL, "ws://") && !strings.HasPrefix(c.Telemetry.WebSocketURL, "wss://") {
		return fmt.Errorf("telemetry.websocket_url must use ws:// or wss://, got '%s'", c.Telemetry.WebSocketURL)
	}
	if c.Telemetry.ReconnectDelay < 0 {
		return fmt.Errorf("telemetry.reconnect_delay cannot be negative")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be 'console' or 'json', got '%s'", c.Log.Format)
	}
	if c.Redis.Enabled && c.Redis.Host == "" {
		return fmt.Errorf("redis.host is required when redis is enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}
