// Package daemon holds the server's configuration and process wiring.
package daemon

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config is the on-disk configuration (~/.pointsledger/config.toml).
type Config struct {
	API     APIConfig     `toml:"api"`
	Storage StorageConfig `toml:"storage"`
	Metrics MetricsConfig `toml:"metrics"`
	Log     LogConfig     `toml:"log"`
	Client  ClientConfig  `toml:"client"`
}

// APIConfig controls the HTTP listener.
type APIConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	RequestTimeout string `toml:"request_timeout"`
	// LegacyEmptyBalance answers GET /balance on an empty ledger with
	// {"NO POINTS": -1} instead of 204 No Content.
	LegacyEmptyBalance bool `toml:"legacy_empty_balance"`
}

// StorageConfig selects the record store backend.
type StorageConfig struct {
	Backend string `toml:"backend"` // "memory" or "sqlite"
	Path    string `toml:"path"`    // data directory for sqlite
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// LogConfig controls logrus output.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" or "json"
}

// ClientConfig is used by the CLI's client commands.
type ClientConfig struct {
	Server  string `toml:"server"`
	Timeout string `toml:"timeout"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8000,
			RequestTimeout: "30s",
		},
		Storage: StorageConfig{
			Backend: BackendMemory,
			Path:    filepath.Join(Home(), "data"),
		},
		Metrics: MetricsConfig{Enabled: true},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Client: ClientConfig{
			Server:  "http://127.0.0.1:8000",
			Timeout: "10s",
		},
	}
}

// Home returns the pointsledger home directory.
// POINTSLEDGER_HOME overrides the default ~/.pointsledger.
func Home() string {
	if h := os.Getenv("POINTSLEDGER_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pointsledger"
	}
	return filepath.Join(home, ".pointsledger")
}

// DefaultConfigPath returns the config file path inside Home.
func DefaultConfigPath() string {
	return filepath.Join(Home(), "config.toml")
}

// LoadConfig reads path over the defaults. A missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late at startup.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("invalid api port %d", c.API.Port)
	}
	if _, err := time.ParseDuration(c.API.RequestTimeout); err != nil {
		return fmt.Errorf("invalid api request_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.Client.Timeout); err != nil {
		return fmt.Errorf("invalid client timeout: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// Addr returns the host:port the API listens on.
func (c APIConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Timeout returns the per-request timeout, falling back to 30s.
func (c APIConfig) Timeout() time.Duration {
	return parseDuration(c.RequestTimeout, 30*time.Second)
}

// HTTPTimeout returns the client timeout, falling back to 10s.
func (c ClientConfig) HTTPTimeout() time.Duration {
	return parseDuration(c.Timeout, 10*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
