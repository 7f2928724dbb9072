package mqttbus

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultMaxPacketSize is the packet size limit used when none is configured.
const DefaultMaxPacketSize = 256 * 1024

// Config holds file-based settings for a dispatcher and packet ingestion.
type Config struct {
	// LogLevel is one of debug, info, warn, error or none.
	LogLevel string `yaml:"log_level"`

	// MaxPacketSize bounds the remaining length of received packets.
	// 0 disables the limit.
	MaxPacketSize uint32 `yaml:"max_packet_size"`

	// StrictFilters rejects filters where "#" is not the last level.
	StrictFilters bool `yaml:"strict_filters"`

	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
}

// DiagnosticsConfig configures the CBOR failure log.
type DiagnosticsConfig struct {
	// Path of the diagnostics file. Empty disables it.
	Path string `yaml:"path"`
}

// DefaultConfig returns a Config with defaults applied.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:      "info",
		MaxPacketSize: DefaultMaxPacketSize,
	}
}

// LoadConfig reads, parses and validates a YAML config file.
// MQTTBUS_LOG_LEVEL and MQTTBUS_DIAGNOSTICS_PATH override the file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses and validates YAML config data.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MQTTBUS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MQTTBUS_DIAGNOSTICS_PATH"); v != "" {
		cfg.Diagnostics.Path = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err.Error())
	}

	if c.MaxPacketSize > MaxRemainingLength {
		errs = append(errs, fmt.Sprintf("max_packet_size must not exceed %d", MaxRemainingLength))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// NewLogger returns a logrus-backed logger at the configured level.
func (c *Config) NewLogger() Logger {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		level = LogLevelInfo
	}

	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	logger := NewLogrusLogger(l)
	logger.SetLevel(level)
	return logger
}

// DispatcherOptions converts the configuration into dispatcher options.
// A nil logger leaves the dispatcher default in place.
func (c *Config) DispatcherOptions(logger Logger) []DispatcherOption {
	var opts []DispatcherOption
	if logger != nil {
		opts = append(opts, WithLogger(logger))
	}
	if c.StrictFilters {
		opts = append(opts, WithStrictFilters())
	}
	return opts
}

// OpenDiagnostics opens the configured diagnostics file.
// It returns nil when no path is configured.
func (c *Config) OpenDiagnostics() (*DiagnosticWriter, error) {
	if c.Diagnostics.Path == "" {
		return nil, nil
	}
	return OpenDiagnosticFile(c.Diagnostics.Path)
}
