// Package config provides the unified configuration for grnrelay.
// It defines a single Config structure covering all client variants,
// organized into logical sections:
//   - Connection: network endpoint for the http protocol
//   - Subprocess: engine binary and database for the command protocol
//   - Buffer: batching behavior of the relay loop
//   - Timeouts: request and connection bounds
//   - Logging: structured log output
//
// Example usage:
//
//	cfg := config.New()
//	cfg.Protocol = "command"
//	cfg.Subprocess.Database = "/var/lib/groonga/db/fluentd.db"
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"time"

	"github.com/grnrelay/grnrelay/pkg/errors"
)

// Default engine endpoint and binary
const (
	DefaultHost   = "localhost"
	DefaultBinary = "groonga"
)

// DefaultHTTPPort is the engine's standard HTTP port
const DefaultHTTPPort = 10041

// Config is the single configuration structure used by every client
// variant and the output layer.
type Config struct {
	// Protocol selects the client implementation ("http" or "command")
	Protocol string `yaml:"protocol" json:"protocol"`

	// Table is the target table for data records; empty disables the
	// store path (control commands still execute)
	Table string `yaml:"table" json:"table"`

	// CommandPrefix is the reserved tag prefix marking control records
	CommandPrefix string `yaml:"command_prefix" json:"command_prefix"`

	// Connection settings for the http protocol
	Connection ConnectionConfig `yaml:"connection" json:"connection"`

	// Subprocess settings for the command protocol
	Subprocess SubprocessConfig `yaml:"subprocess" json:"subprocess"`

	// Buffer settings for the relay loop
	Buffer BufferConfig `yaml:"buffer" json:"buffer"`

	// Timeouts for network operations
	Timeouts TimeoutConfig `yaml:"timeouts" json:"timeouts"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ConnectionConfig contains network endpoint settings.
type ConnectionConfig struct {
	// Host of the remote engine
	Host string `yaml:"host" json:"host"`
	// Port of the remote engine
	Port int `yaml:"port" json:"port"`
}

// SubprocessConfig contains settings for the locally spawned engine.
type SubprocessConfig struct {
	// Binary is the engine executable path or name
	Binary string `yaml:"binary" json:"binary"`
	// Arguments are extra arguments placed before the managed flags
	Arguments []string `yaml:"arguments" json:"arguments"`
	// Database is the engine database path (required for command protocol)
	Database string `yaml:"database" json:"database"`
	// ShutdownTimeout bounds the wait for child exit at shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// BufferConfig contains batching settings for the relay loop.
type BufferConfig struct {
	// BatchSize is the number of records accumulated per emit
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// FlushInterval triggers periodic batch flushes
	FlushInterval time.Duration `yaml:"flush_interval" json:"flush_interval"`
}

// TimeoutConfig contains timeout settings for network operations.
type TimeoutConfig struct {
	// Request timeout for individual commands
	Request time.Duration `yaml:"request" json:"request"`
	// Connection timeout for establishing connections
	Connection time.Duration `yaml:"connection" json:"connection"`
}

// LoggingConfig contains structured logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Encoding string `yaml:"encoding" json:"encoding"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Protocol:      "http",
		CommandPrefix: "groonga.command.",
		Connection: ConnectionConfig{
			Host: DefaultHost,
			Port: DefaultHTTPPort,
		},
		Subprocess: SubprocessConfig{
			Binary:          DefaultBinary,
			ShutdownTimeout: 10 * time.Second,
		},
		Buffer: BufferConfig{
			BatchSize:     1000,
			FlushInterval: 10 * time.Second,
		},
		Timeouts: TimeoutConfig{
			Request:    30 * time.Second,
			Connection: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// Validate checks the configuration for fatal misconfiguration.
// Errors here abort plugin startup.
func (c *Config) Validate() error {
	switch c.Protocol {
	case "http", "gqtp":
		if c.Connection.Host == "" {
			return errors.New(errors.ErrorTypeConfig, c.Protocol+" protocol requires a host")
		}
		if c.Connection.Port <= 0 || c.Connection.Port > 65535 {
			return errors.New(errors.ErrorTypeConfig, c.Protocol+" protocol requires a valid port").
				WithDetail("port", c.Connection.Port)
		}
	case "command":
		if c.Subprocess.Database == "" {
			return errors.New(errors.ErrorTypeConfig, "command protocol requires a database path")
		}
		if c.Subprocess.Binary == "" {
			return errors.New(errors.ErrorTypeConfig, "command protocol requires an engine binary")
		}
	case "":
		return errors.New(errors.ErrorTypeConfig, "protocol must be set")
	default:
		return errors.New(errors.ErrorTypeConfig, "unknown protocol").
			WithDetail("protocol", c.Protocol)
	}

	if c.CommandPrefix == "" {
		return errors.New(errors.ErrorTypeConfig, "command prefix must not be empty")
	}

	if c.Buffer.BatchSize <= 0 {
		return errors.New(errors.ErrorTypeConfig, "batch size must be positive").
			WithDetail("batch_size", c.Buffer.BatchSize)
	}

	return nil
}
