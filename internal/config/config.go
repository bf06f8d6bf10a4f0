package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// LogLevel defines the minimum severity for error logs.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

// Defaults applied by ApplyDefaults when the corresponding field is unset.
const (
	DefaultAddress        = "127.0.0.1:4433"
	DefaultRequestTimeout = 5 * time.Second
)

// Config is the top-level configuration structure shared by the server and
// client binaries. Either file format (TOML or JSON) may be used; the loader
// auto-detects by extension.
type Config struct {
	Server  *ServerConfig  `json:"server,omitempty" toml:"server"`
	Client  *ClientConfig  `json:"client,omitempty" toml:"client"`
	Logging *LoggingConfig `json:"logging,omitempty" toml:"logging"`
}

// ServerConfig holds the responder-side settings.
type ServerConfig struct {
	Address  string `json:"address,omitempty" toml:"address"`
	CertFile string `json:"cert_file,omitempty" toml:"cert_file"`
	KeyFile  string `json:"key_file,omitempty" toml:"key_file"`
}

// ClientConfig holds the initiator-side settings.
type ClientConfig struct {
	Address string `json:"address,omitempty" toml:"address"`
	// Authority is the value sent in the :authority pseudo-header. Defaults
	// to Address.
	Authority string `json:"authority,omitempty" toml:"authority"`
	// RequestTimeout is a duration string (e.g. "5s") bounding how long a
	// single request waits for its complete response.
	RequestTimeout string `json:"request_timeout,omitempty" toml:"request_timeout"`
	// InsecureSkipVerify disables certificate verification, for use against
	// self-signed development certificates.
	InsecureSkipVerify *bool `json:"insecure_skip_verify,omitempty" toml:"insecure_skip_verify"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	LogLevel LogLevel `json:"log_level,omitempty" toml:"log_level"`
	// Format is "json" or "console".
	Format string `json:"format,omitempty" toml:"format"`
	// Target is "stdout", "stderr", or an absolute file path.
	Target string `json:"target,omitempty" toml:"target"`
}

// Load reads, parses, defaults, and validates a configuration file.
// Files ending in ".toml" are parsed as TOML; everything else as JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := &Config{}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config %s: %w", path, err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config %s: %w", path, err)
		}
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a fully-defaulted configuration for use when no config
// file is supplied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills in unset fields in place.
func (c *Config) ApplyDefaults() {
	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.Client == nil {
		c.Client = &ClientConfig{}
	}
	if c.Client.Address == "" {
		c.Client.Address = DefaultAddress
	}
	if c.Client.Authority == "" {
		c.Client.Authority = c.Client.Address
	}
	if c.Client.RequestTimeout == "" {
		c.Client.RequestTimeout = DefaultRequestTimeout.String()
	}
	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	if c.Logging.LogLevel == "" {
		c.Logging.LogLevel = LogLevelInfo
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Target == "" {
		c.Logging.Target = "stderr"
	}
}

// Validate checks a defaulted configuration for invalid values.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Server.Address); err != nil {
		return fmt.Errorf("invalid server address %q: %w", c.Server.Address, err)
	}
	if _, _, err := net.SplitHostPort(c.Client.Address); err != nil {
		return fmt.Errorf("invalid client address %q: %w", c.Client.Address, err)
	}
	if _, err := c.Client.ParsedRequestTimeout(); err != nil {
		return err
	}
	switch c.Logging.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
	default:
		return fmt.Errorf("invalid log_level %q", c.Logging.LogLevel)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format %q (want \"json\" or \"console\")", c.Logging.Format)
	}
	if c.Logging.Target != "stdout" && c.Logging.Target != "stderr" && !IsFilePath(c.Logging.Target) {
		return fmt.Errorf("invalid log target %q", c.Logging.Target)
	}
	return nil
}

// ParsedRequestTimeout parses the client request timeout duration string.
func (cc *ClientConfig) ParsedRequestTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(cc.RequestTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid request_timeout %q: %w", cc.RequestTimeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("request_timeout must be positive, got %q", cc.RequestTimeout)
	}
	return d, nil
}

// IsFilePath reports whether a log target names a file rather than one of
// the standard streams.
func IsFilePath(target string) bool {
	return target != "stdout" && target != "stderr" && filepath.IsAbs(target)
}
