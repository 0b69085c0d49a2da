package config

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// maxQoS is the highest MQTT QoS level.
const maxQoS = 2

// maxKeepalive is the largest keepalive the CONNECT packet can carry (seconds).
const maxKeepalive = 65535

// ErrInvalidClientConfig is returned by ClientConfig.Validate.
// Use errors.Is() to check for it in calling code.
var ErrInvalidClientConfig = errors.New("config: invalid client configuration")

// LogLevel is the verbosity of a client's engine logging.
// The numeric values are part of the C ABI and must not change.
type LogLevel int

// Log levels, quietest first.
const (
	LogSilent LogLevel = iota
	LogVerbose
	LogDebug
	LogInfo
	LogWarning
	LogError
)

var logLevelNames = map[LogLevel]string{
	LogSilent:  "silent",
	LogVerbose: "verbose",
	LogDebug:   "debug",
	LogInfo:    "info",
	LogWarning: "warning",
	LogError:   "error",
}

// String returns the YAML name of the level.
func (l LogLevel) String() string {
	if name, ok := logLevelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LogLevel(%d)", int(l))
}

// UnmarshalYAML accepts either a level name or its numeric value.
func (l *LogLevel) UnmarshalYAML(node *yaml.Node) error {
	for level, name := range logLevelNames {
		if strings.EqualFold(node.Value, name) {
			*l = level
			return nil
		}
	}
	var n int
	if err := node.Decode(&n); err != nil {
		return fmt.Errorf("unknown log level %q", node.Value)
	}
	*l = LogLevel(n)
	return nil
}

// PersistKind selects the persistence strategy for unacknowledged messages.
type PersistKind string

// Persistence strategies. Exactly one is active per client.
const (
	PersistNone   PersistKind = "none"
	PersistMemory PersistKind = "memory"
	PersistFile   PersistKind = "file"
	PersistRedis  PersistKind = "redis"
	PersistSQLite PersistKind = "sqlite"
)

// ClientConfig is the per-client configuration the binding accumulates
// through its setters and hands to the engine at setup.
//
// A ClientConfig owned by the binding is a mutable draft until setup; the
// engine only ever receives a Clone, so nothing it holds aliases the draft.
type ClientConfig struct {
	// Server is the broker address, "host:port" or a URL such as
	// "tcp://host:1883" or "ssl://host:8883".
	Server string `yaml:"server"`

	CleanSession bool `yaml:"clean_session"`

	// Keepalive is the keepalive interval in seconds.
	Keepalive int `yaml:"keepalive"`

	// KeepaliveFactor scales Keepalive into the ping response timeout.
	// A factor of 1 or less selects the engine default of 1.2.
	KeepaliveFactor float64 `yaml:"keepalive_factor"`

	// ClientID is the MQTT client identifier sent in CONNECT.
	// Empty lets the engine generate one.
	ClientID string `yaml:"client_id"`

	// DialTimeout is the connection timeout in seconds.
	DialTimeout int `yaml:"dial_timeout"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	LogLevel LogLevel `yaml:"log_level"`

	// SendBuf and RecvBuf size the socket write and read buffers in bytes.
	// Zero leaves the operating system default in place.
	SendBuf int `yaml:"send_buf"`
	RecvBuf int `yaml:"recv_buf"`

	TLS       *TLSConfig      `yaml:"tls,omitempty"`
	Will      *WillConfig     `yaml:"will,omitempty"`
	Persist   PersistConfig   `yaml:"persist"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// TLSConfig contains client certificate settings.
type TLSConfig struct {
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	CAFile     string `yaml:"ca_file"`
	ServerName string `yaml:"server_name"`
	SkipVerify bool   `yaml:"skip_verify"`
}

// WillConfig is the last-will message the broker publishes on unexpected disconnect.
type WillConfig struct {
	Topic   string `yaml:"topic"`
	QoS     int    `yaml:"qos"`
	Retain  bool   `yaml:"retain"`
	Payload []byte `yaml:"payload"`
}

// PersistConfig selects and tunes the persistence strategy.
type PersistConfig struct {
	Kind PersistKind `yaml:"kind"`

	// MaxCount bounds the number of stored packets. Zero means unbounded.
	MaxCount int `yaml:"max_count"`

	// EvictOnExceed drops the oldest packet to make room when MaxCount is
	// reached. When false the new packet is rejected instead.
	EvictOnExceed bool `yaml:"evict_on_exceed"`

	// ReplaceDuplicate overwrites a stored packet with the same key.
	// When false the stored packet is kept.
	ReplaceDuplicate bool `yaml:"replace_duplicate"`

	// Dir is the directory for the file strategy.
	Dir string `yaml:"dir,omitempty"`

	// Addr and Key locate the redis hash for the redis strategy.
	Addr string `yaml:"addr,omitempty"`
	Key  string `yaml:"key,omitempty"`

	// Path is the database file for the sqlite strategy.
	Path string `yaml:"path,omitempty"`
}

// ReconnectConfig controls the engine's reconnect behaviour.
type ReconnectConfig struct {
	Auto bool `yaml:"auto"`

	// FirstDelay and MaxDelay bound the reconnect backoff in milliseconds.
	FirstDelay int `yaml:"first_delay"`
	MaxDelay   int `yaml:"max_delay"`
}

// Clone returns a deep copy that shares no memory with c.
func (c ClientConfig) Clone() ClientConfig {
	out := c
	if c.TLS != nil {
		tlsCfg := *c.TLS
		out.TLS = &tlsCfg
	}
	if c.Will != nil {
		will := *c.Will
		will.Payload = bytes.Clone(c.Will.Payload)
		out.Will = &will
	}
	return out
}

// Validate reports every problem with the configuration at once.
//
// Returns:
//   - error: wrapping ErrInvalidClientConfig, or nil if valid
func (c ClientConfig) Validate() error {
	problems := c.problems()
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidClientConfig, strings.Join(problems, "; "))
}

func (c ClientConfig) problems() []string {
	var errs []string

	if c.Server == "" {
		errs = append(errs, "server is required")
	}
	if c.Keepalive < 0 || c.Keepalive > maxKeepalive {
		errs = append(errs, "keepalive must be between 0 and 65535 seconds")
	}
	if c.DialTimeout < 0 {
		errs = append(errs, "dial timeout cannot be negative")
	}
	if c.SendBuf < 0 || c.RecvBuf < 0 {
		errs = append(errs, "buffer sizes cannot be negative")
	}
	if c.LogLevel < LogSilent || c.LogLevel > LogError {
		errs = append(errs, fmt.Sprintf("unknown log level %d", int(c.LogLevel)))
	}

	if c.TLS != nil {
		if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
			errs = append(errs, "tls cert and key must be set together")
		}
	}

	if c.Will != nil {
		if c.Will.Topic == "" {
			errs = append(errs, "will topic is required")
		}
		if c.Will.QoS < 0 || c.Will.QoS > maxQoS {
			errs = append(errs, "will qos must be 0, 1, or 2")
		}
	}

	if c.Persist.MaxCount < 0 {
		errs = append(errs, "persist max count cannot be negative")
	}
	switch c.Persist.Kind {
	case "", PersistNone, PersistMemory:
	case PersistFile:
		if c.Persist.Dir == "" {
			errs = append(errs, "file persistence requires a directory")
		}
	case PersistRedis:
		if c.Persist.Addr == "" {
			errs = append(errs, "redis persistence requires an address")
		}
	case PersistSQLite:
		if c.Persist.Path == "" {
			errs = append(errs, "sqlite persistence requires a database path")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown persistence kind %q", c.Persist.Kind))
	}

	if c.Reconnect.FirstDelay < 0 || c.Reconnect.MaxDelay < 0 {
		errs = append(errs, "reconnect delays cannot be negative")
	}
	if c.Reconnect.MaxDelay != 0 && c.Reconnect.MaxDelay < c.Reconnect.FirstDelay {
		errs = append(errs, "reconnect max delay must not be below first delay")
	}

	return errs
}
