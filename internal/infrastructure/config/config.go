package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the libmqtt bridge driver.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Clients   []ClientSpec    `yaml:"clients"`
}

// ClientSpec describes one client the driver creates through the binding,
// together with the topics it subscribes to once set up.
type ClientSpec struct {
	// Name labels the client in logs. It is not sent to the broker.
	Name string `yaml:"name"`

	ClientConfig `yaml:",inline"`

	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
}

// SubscriptionConfig is a topic filter and the QoS requested for it.
type SubscriptionConfig struct {
	Topic string `yaml:"topic"`
	QoS   int    `yaml:"qos"`
}

// APIConfig contains status server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	Auth     APIAuthConfig    `yaml:"auth"`
}

// APIAuthConfig contains bearer token settings for the status API.
type APIAuthConfig struct {
	// Secret is the HS256 key that tokens and WebSocket tickets are signed
	// with. Empty disables auth, which is only allowed on a loopback host.
	Secret string `yaml:"secret"`
}

// minAuthSecretLength is the shortest accepted api.auth.secret.
const minAuthSecretLength = 32

// Loopback reports whether Host only accepts local connections. An empty
// host binds every interface and is not loopback.
func (a APIConfig) Loopback() bool {
	if a.Host == "localhost" {
		return true
	}
	ip := net.ParseIP(a.Host)
	return ip != nil && ip.IsLoopback()
}

// APITimeoutConfig contains HTTP server timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains event stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for bridge telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LIBMQTT_SECTION_KEY
// For example: LIBMQTT_LOG_LEVEL, LIBMQTT_INFLUXDB_TOKEN
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8088,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/events",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: LIBMQTT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Logging
	if v := os.Getenv("LIBMQTT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// API
	if v := os.Getenv("LIBMQTT_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("LIBMQTT_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("LIBMQTT_API_SECRET"); v != "" {
		cfg.API.Auth.Secret = v
	}

	// InfluxDB
	if v := os.Getenv("LIBMQTT_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("LIBMQTT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// MQTT credentials fill in clients that do not carry their own.
	username := os.Getenv("LIBMQTT_MQTT_USERNAME")
	password := os.Getenv("LIBMQTT_MQTT_PASSWORD")
	if username == "" {
		return
	}
	for i := range cfg.Clients {
		if cfg.Clients[i].Username == "" {
			cfg.Clients[i].Username = username
			cfg.Clients[i].Password = password
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.API.Enabled {
		if c.API.Port < 0 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 0 and 65535")
		}
		if !strings.HasPrefix(c.WebSocket.Path, "/") {
			errs = append(errs, "websocket.path must start with /")
		}
		if c.WebSocket.PingInterval <= 0 || c.WebSocket.PongTimeout <= 0 {
			errs = append(errs, "websocket ping_interval and pong_timeout must be positive")
		}
		switch {
		case c.API.Auth.Secret == "" && !c.API.Loopback():
			errs = append(errs, "api.auth.secret is required when api.host is not loopback (set LIBMQTT_API_SECRET)")
		case c.API.Auth.Secret != "" && len(c.API.Auth.Secret) < minAuthSecretLength:
			errs = append(errs, "api.auth.secret must be at least 32 characters")
		}
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	seen := make(map[string]bool, len(c.Clients))
	for i, client := range c.Clients {
		label := client.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		if client.Name != "" {
			if seen[client.Name] {
				errs = append(errs, fmt.Sprintf("clients[%s]: duplicate name", label))
			}
			seen[client.Name] = true
		}
		for _, problem := range client.problems() {
			errs = append(errs, fmt.Sprintf("clients[%s]: %s", label, problem))
		}
		for _, sub := range client.Subscriptions {
			if sub.Topic == "" {
				errs = append(errs, fmt.Sprintf("clients[%s]: subscription topic is required", label))
			}
			if sub.QoS < 0 || sub.QoS > maxQoS {
				errs = append(errs, fmt.Sprintf("clients[%s]: subscription qos must be 0, 1, or 2", label))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
