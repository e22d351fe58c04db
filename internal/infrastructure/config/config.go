package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// DefaultBrokerPort is the MQTT-over-TLS port used when none is configured.
const DefaultBrokerPort = 8883

// Config is the root configuration structure for brokerlink.
// All configuration is loaded from YAML or TOML and can be overridden by
// environment variables and command-line arguments.
type Config struct {
	Broker      BrokerConfig      `yaml:"broker" toml:"broker"`
	Credentials CredentialsConfig `yaml:"credentials" toml:"credentials"`
	Liveness    LivenessConfig    `yaml:"liveness" toml:"liveness"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb" toml:"influxdb"`
	Status      StatusConfig      `yaml:"status" toml:"status"`
}

// BrokerConfig contains the broker address and session identity.
type BrokerConfig struct {
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	ClientID string `yaml:"client_id" toml:"client_id"`

	// ProtocolVersion is the MQTT protocol level: 3 (MQTT 3.1) or 4 (MQTT 3.1.1).
	ProtocolVersion uint `yaml:"protocol_version" toml:"protocol_version"`
}

// CredentialsConfig references the TLS material used for the broker connection.
type CredentialsConfig struct {
	CAFile   string `yaml:"ca_file" toml:"ca_file"`
	CertFile string `yaml:"cert_file" toml:"cert_file"`
	KeyFile  string `yaml:"key_file" toml:"key_file"`

	// TLSVersion pins the protocol version: "1.2", "1.3" or "auto" (1.2 minimum).
	TLSVersion string `yaml:"tls_version" toml:"tls_version"`

	// Watch reloads the files when they change on disk.
	Watch bool `yaml:"watch" toml:"watch"`
}

// LivenessConfig contains probe and reconnect timings, all in seconds.
type LivenessConfig struct {
	KeepAliveInterval int `yaml:"keep_alive_interval" toml:"keep_alive_interval"`
	ProbeTimeout      int `yaml:"probe_timeout" toml:"probe_timeout"`
	ConnectWait       int `yaml:"connect_wait" toml:"connect_wait"`
	ReconnectWait     int `yaml:"reconnect_wait" toml:"reconnect_wait"`

	// ProbeTopic is the topic liveness probes are published to. It must be
	// writable by the client identity under the broker's policy.
	// Empty means "brokerlink/<client_id>/liveness".
	ProbeTopic string `yaml:"probe_topic" toml:"probe_topic"`

	ExtendedDiagnostics bool `yaml:"extended_diagnostics" toml:"extended_diagnostics"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	Output string `yaml:"output" toml:"output"`
}

// InfluxDBConfig contains InfluxDB connection settings for liveness telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" toml:"enabled"`
	URL           string `yaml:"url" toml:"url"`
	Token         string `yaml:"token" toml:"token"`
	Org           string `yaml:"org" toml:"org"`
	Bucket        string `yaml:"bucket" toml:"bucket"`
	BatchSize     int    `yaml:"batch_size" toml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval" toml:"flush_interval"`
}

// StatusConfig contains settings for the local status server.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Host    string `yaml:"host" toml:"host"`
	Port    int    `yaml:"port" toml:"port"`
}

// Load reads configuration from a YAML or TOML file and applies environment
// variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. File values (override defaults); the format is chosen by extension
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: BROKERLINK_SECTION_KEY
// For example: BROKERLINK_BROKER_HOST, BROKERLINK_CLIENT_ID
//
// Load does not validate; callers apply command-line overrides first and
// then call Validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)

	return cfg, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Port:            DefaultBrokerPort,
			ProtocolVersion: 4,
		},
		Credentials: CredentialsConfig{
			TLSVersion: "1.2",
		},
		Liveness: LivenessConfig{
			KeepAliveInterval: 20,
			ProbeTimeout:      5,
			ConnectWait:       5,
			ReconnectWait:     3,
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
		Status: StatusConfig{
			Host: "127.0.0.1",
			Port: 8090,
		},
	}
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: BROKERLINK_SECTION_KEY
func ApplyEnvOverrides(cfg *Config) {
	// Broker
	if v := os.Getenv("BROKERLINK_BROKER_HOST"); v != "" {
		cfg.Broker.Host = v
	}
	if v := os.Getenv("BROKERLINK_BROKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Broker.Port = port
		}
	}
	if v := os.Getenv("BROKERLINK_CLIENT_ID"); v != "" {
		cfg.Broker.ClientID = v
	}

	// Credentials
	if v := os.Getenv("BROKERLINK_CA_FILE"); v != "" {
		cfg.Credentials.CAFile = v
	}
	if v := os.Getenv("BROKERLINK_CERT_FILE"); v != "" {
		cfg.Credentials.CertFile = v
	}
	if v := os.Getenv("BROKERLINK_KEY_FILE"); v != "" {
		cfg.Credentials.KeyFile = v
	}

	// Logging
	if v := os.Getenv("BROKERLINK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// InfluxDB
	if v := os.Getenv("BROKERLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Every problem is reported, not just the first one.
func (c *Config) Validate() error {
	var errs *multierror.Error

	// Broker
	if strings.TrimSpace(c.Broker.Host) == "" {
		errs = multierror.Append(errs, fmt.Errorf("broker.host is required"))
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		errs = multierror.Append(errs, fmt.Errorf("broker.port must be between 1 and 65535"))
	}
	if strings.TrimSpace(c.Broker.ClientID) == "" {
		errs = multierror.Append(errs, fmt.Errorf("broker.client_id is required"))
	}
	if c.Broker.ProtocolVersion != 3 && c.Broker.ProtocolVersion != 4 {
		errs = multierror.Append(errs, fmt.Errorf("broker.protocol_version must be 3 or 4"))
	}

	// Credentials
	if c.Credentials.CAFile == "" {
		errs = multierror.Append(errs, fmt.Errorf("credentials.ca_file is required"))
	}
	if c.Credentials.CertFile == "" {
		errs = multierror.Append(errs, fmt.Errorf("credentials.cert_file is required"))
	}
	if c.Credentials.KeyFile == "" {
		errs = multierror.Append(errs, fmt.Errorf("credentials.key_file is required"))
	}
	switch c.Credentials.TLSVersion {
	case "1.2", "1.3", "auto":
	default:
		errs = multierror.Append(errs, fmt.Errorf("credentials.tls_version must be 1.2, 1.3 or auto"))
	}

	// Liveness
	if c.Liveness.KeepAliveInterval < 1 {
		errs = multierror.Append(errs, fmt.Errorf("liveness.keep_alive_interval must be at least 1 second"))
	}
	if c.Liveness.ProbeTimeout < 1 {
		errs = multierror.Append(errs, fmt.Errorf("liveness.probe_timeout must be at least 1 second"))
	} else if c.Liveness.ProbeTimeout >= c.Liveness.KeepAliveInterval {
		// Only one probe may be outstanding at a time.
		errs = multierror.Append(errs, fmt.Errorf("liveness.probe_timeout must be shorter than liveness.keep_alive_interval"))
	}
	if c.Liveness.ConnectWait < 1 {
		errs = multierror.Append(errs, fmt.Errorf("liveness.connect_wait must be at least 1 second"))
	}
	if c.Liveness.ReconnectWait < 1 {
		errs = multierror.Append(errs, fmt.Errorf("liveness.reconnect_wait must be at least 1 second"))
	}

	// InfluxDB
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = multierror.Append(errs, fmt.Errorf("influxdb.url is required when influxdb is enabled"))
	}

	// Status
	if c.Status.Enabled && (c.Status.Port < 1 || c.Status.Port > 65535) {
		errs = multierror.Append(errs, fmt.Errorf("status.port must be between 1 and 65535"))
	}

	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("configuration errors: %w", err)
	}
	return nil
}

// KeepAliveInterval returns the period between liveness probes.
func (c *Config) KeepAliveInterval() time.Duration {
	return time.Duration(c.Liveness.KeepAliveInterval) * time.Second
}

// ProbeTimeout returns how long a probe may stay unanswered.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Liveness.ProbeTimeout) * time.Second
}

// ConnectWait returns the bounded wait for the initial handshake.
func (c *Config) ConnectWait() time.Duration {
	return time.Duration(c.Liveness.ConnectWait) * time.Second
}

// ReconnectWait returns the bounded wait for a recovery handshake.
func (c *Config) ReconnectWait() time.Duration {
	return time.Duration(c.Liveness.ReconnectWait) * time.Second
}

// ProbeTopic returns the configured probe topic or the per-client default.
func (c *Config) ProbeTopic() string {
	if c.Liveness.ProbeTopic != "" {
		return c.Liveness.ProbeTopic
	}
	return fmt.Sprintf("brokerlink/%s/liveness", c.Broker.ClientID)
}

// StatusAddr returns the listen address of the status server.
func (c *Config) StatusAddr() string {
	return fmt.Sprintf("%s:%d", c.Status.Host, c.Status.Port)
}
