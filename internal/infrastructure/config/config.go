package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Light Manager.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device       DeviceConfig       `yaml:"device"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	Channels     []ChannelConfig    `yaml:"channels"`
	Output       OutputConfig       `yaml:"output"`
	Provisioning ProvisioningConfig `yaml:"provisioning"`
	Database     DatabaseConfig     `yaml:"database"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	API          APIConfig          `yaml:"api"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// DeviceConfig identifies this controller.
type DeviceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker  MQTTBrokerConfig  `yaml:"broker"`
	Auth    MQTTAuthConfig    `yaml:"auth"`
	QoS     int               `yaml:"qos"`
	Topics  MQTTTopicsConfig  `yaml:"topics"`
	Session MQTTSessionConfig `yaml:"session"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// ClientIDPrefix is prepended to a random 16-bit hex suffix on every
	// connection attempt (e.g. "lightmanager-3fa1").
	ClientIDPrefix string `yaml:"client_id_prefix"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTTopicsConfig contains the addresses used by the command pipeline.
type MQTTTopicsConfig struct {
	// Command is the single subscribed command address.
	Command string `yaml:"command"`

	// AuditPrefix is prepended to the command address to form the audit address.
	AuditPrefix string `yaml:"audit_prefix"`

	// Status is an optional retained online/offline topic (empty disables it).
	Status string `yaml:"status"`
}

// MQTTSessionConfig contains session establishment settings (seconds).
type MQTTSessionConfig struct {
	SocketTimeout int `yaml:"socket_timeout"`
	RetryDelay    int `yaml:"retry_delay"`
	KeepAlive     int `yaml:"keep_alive"`
	InboxSize     int `yaml:"inbox_size"`
}

// ChannelConfig binds a channel id to a hardware output.
type ChannelConfig struct {
	ID      int    `yaml:"id"`
	Pin     string `yaml:"pin"`
	Initial string `yaml:"initial"` // "asserted" or "deasserted" (default)
}

// OutputConfig selects the hardware output driver.
type OutputConfig struct {
	// Driver is "gpio" (periph.io) or "memory" (no hardware, for development).
	Driver string `yaml:"driver"`

	// StatusPin is an optional indicator pin blinked after startup.
	StatusPin string `yaml:"status_pin"`
}

// ProvisioningConfig points at the persisted broker settings document.
type ProvisioningConfig struct {
	Path string `yaml:"path"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP status server settings.
type APIConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	Auth      APIAuthConfig    `yaml:"auth"`
	WebSocket WebSocketConfig  `yaml:"websocket"`
}

// APIAuthConfig contains bearer token settings.
// An empty JWTSecret leaves the API open.
type APIAuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// WebSocketConfig contains live stream settings (seconds, bytes).
type WebSocketConfig struct {
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
	MaxMessageSize int `yaml:"max_message_size"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
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
// Environment variables follow the pattern: LIGHTMANAGER_SECTION_KEY
// For example: LIGHTMANAGER_MQTT_HOST, LIGHTMANAGER_DATABASE_PATH
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
		Device: DeviceConfig{
			ID:   "lightmanager-01",
			Name: "Light Manager",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:           "localhost",
				Port:           1883,
				ClientIDPrefix: "lightmanager-",
			},
			QoS: 0,
			Topics: MQTTTopicsConfig{
				Command:     "/hq/main/lights",
				AuditPrefix: "/audit",
			},
			Session: MQTTSessionConfig{
				SocketTimeout: 60,
				RetryDelay:    5,
				KeepAlive:     15,
				InboxSize:     64,
			},
		},
		Output: OutputConfig{
			Driver: "memory",
		},
		Provisioning: ProvisioningConfig{
			Path: "./data/config.json",
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/lightmanager.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
			WebSocket: WebSocketConfig{
				PingInterval:   30,
				PongTimeout:    10,
				MaxMessageSize: 4096,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: LIGHTMANAGER_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("LIGHTMANAGER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LIGHTMANAGER_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("LIGHTMANAGER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LIGHTMANAGER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("LIGHTMANAGER_MQTT_COMMAND_TOPIC"); v != "" {
		cfg.MQTT.Topics.Command = v
	}

	// Database
	if v := os.Getenv("LIGHTMANAGER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("LIGHTMANAGER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("LIGHTMANAGER_API_JWT_SECRET"); v != "" {
		cfg.API.Auth.JWTSecret = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	}

	// MQTT validation
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Topics.Command == "" {
		errs = append(errs, "mqtt.topics.command is required")
	} else if strings.ContainsAny(c.MQTT.Topics.Command, "+#") {
		errs = append(errs, "mqtt.topics.command must not contain wildcards")
	}
	if c.MQTT.Topics.AuditPrefix == "" {
		errs = append(errs, "mqtt.topics.audit_prefix is required")
	}
	if c.MQTT.Session.SocketTimeout <= 0 {
		errs = append(errs, "mqtt.session.socket_timeout must be positive")
	}
	if c.MQTT.Session.RetryDelay <= 0 {
		errs = append(errs, "mqtt.session.retry_delay must be positive")
	}
	if c.MQTT.Session.InboxSize <= 0 {
		errs = append(errs, "mqtt.session.inbox_size must be positive")
	}

	errs = append(errs, c.validateChannels()...)

	switch strings.ToLower(c.Output.Driver) {
	case "gpio", "memory":
	default:
		errs = append(errs, fmt.Sprintf("output.driver %q must be gpio or memory", c.Output.Driver))
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.Enabled && (c.API.WebSocket.PingInterval <= 0 || c.API.WebSocket.PongTimeout <= 0) {
		errs = append(errs, "api.websocket ping_interval and pong_timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateChannels checks the channel table: at least one entry, positive
// unique ids, a one-to-one id → pin mapping, and no overlap with the
// status pin.
func (c *Config) validateChannels() []string {
	if len(c.Channels) == 0 {
		return []string{"channels: at least one channel is required"}
	}

	var errs []string
	ids := make(map[int]bool, len(c.Channels))
	pins := make(map[string]bool, len(c.Channels))

	for i, ch := range c.Channels {
		if ch.ID <= 0 {
			errs = append(errs, fmt.Sprintf("channels[%d].id must be positive", i))
		} else if ids[ch.ID] {
			errs = append(errs, fmt.Sprintf("channels[%d].id %d is duplicated", i, ch.ID))
		}
		ids[ch.ID] = true

		if ch.Pin == "" {
			errs = append(errs, fmt.Sprintf("channels[%d].pin is required", i))
		} else if pins[ch.Pin] {
			errs = append(errs, fmt.Sprintf("channels[%d].pin %q is duplicated", i, ch.Pin))
		}
		pins[ch.Pin] = true

		switch strings.ToLower(ch.Initial) {
		case "", "asserted", "deasserted":
		default:
			errs = append(errs, fmt.Sprintf("channels[%d].initial %q must be asserted or deasserted", i, ch.Initial))
		}
	}

	// The status indicator is driven outside the command pipeline, so it
	// must never share a pin with a channel.
	if sp := c.Output.StatusPin; sp != "" && pins[sp] {
		errs = append(errs, fmt.Sprintf("output.status_pin %q is already bound to a channel", sp))
	}

	return errs
}

// GetSocketTimeout returns the per-attempt broker I/O timeout.
func (c *Config) GetSocketTimeout() time.Duration {
	return time.Duration(c.MQTT.Session.SocketTimeout) * time.Second
}

// GetRetryDelay returns the fixed delay between connection attempts.
func (c *Config) GetRetryDelay() time.Duration {
	return time.Duration(c.MQTT.Session.RetryDelay) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
