package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[server]
address = "127.0.0.1:9443"
cert_file = "/etc/h3mux/cert.pem"
key_file = "/etc/h3mux/key.pem"

[client]
address = "127.0.0.1:9443"
request_timeout = "2s"

[logging]
log_level = "DEBUG"
format = "console"
target = "stdout"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9443", cfg.Server.Address)
	require.Equal(t, "/etc/h3mux/cert.pem", cfg.Server.CertFile)
	require.Equal(t, LogLevelDebug, cfg.Logging.LogLevel)

	d, err := cfg.Client.ParsedRequestTimeout()
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, d)
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
  "server": {"address": "127.0.0.1:8443"},
  "client": {"address": "127.0.0.1:8443", "insecure_skip_verify": true}
}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8443", cfg.Server.Address)
	require.NotNil(t, cfg.Client.InsecureSkipVerify)
	require.True(t, *cfg.Client.InsecureSkipVerify)
	// Unset sections take defaults.
	require.Equal(t, LogLevelInfo, cfg.Logging.LogLevel)
	require.Equal(t, DefaultRequestTimeout.String(), cfg.Client.RequestTimeout)
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.Equal(t, DefaultAddress, cfg.Server.Address)
	require.Equal(t, cfg.Client.Address, cfg.Client.Authority)
	require.Equal(t, "json", cfg.Logging.Format)
	require.Equal(t, "stderr", cfg.Logging.Target)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad server address", func(c *Config) { c.Server.Address = "no-port" }},
		{"bad client address", func(c *Config) { c.Client.Address = "no-port" }},
		{"bad timeout", func(c *Config) { c.Client.RequestTimeout = "soon" }},
		{"negative timeout", func(c *Config) { c.Client.RequestTimeout = "-1s" }},
		{"bad log level", func(c *Config) { c.Logging.LogLevel = "LOUD" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"relative log file", func(c *Config) { c.Logging.Target = "logs/app.log" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := writeConfig(t, "config.toml", `server = `)
	_, err := Load(path)
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
