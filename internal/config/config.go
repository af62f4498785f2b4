// Package config loads navconsole settings from a TOML file and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration written as a string such as "5s" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds all configuration settings for the application
type Config struct {
	// BackendURL is the base URL of the host-management daemon
	BackendURL string `toml:"backend_url"`

	// Token is sent as a bearer token to the daemon
	Token string `toml:"token"`

	// Transport selects how progress channels are opened: websocket or sse
	Transport string `toml:"transport"`

	// StoreDriver selects the pending request store: sqlite or file
	StoreDriver string `toml:"store_driver"`

	// DatabasePath is the path to the SQLite database file
	DatabasePath string `toml:"database_path"`

	// StateDir holds one YAML file per request when StoreDriver is file
	StateDir string `toml:"state_dir"`

	// RefreshInterval is the period of authoritative list refreshes
	RefreshInterval Duration `toml:"refresh_interval"`

	// StallTimeout fails a creation that reports nothing for this long. Zero disables it.
	StallTimeout Duration `toml:"stall_timeout"`

	// StallCheckInterval is how often stalled creations are looked for
	StallCheckInterval Duration `toml:"stall_check_interval"`

	// CompletedRetention bounds how long a completed placeholder waits for its entity to be listed
	CompletedRetention Duration `toml:"completed_retention"`

	DialAttempts   int      `toml:"dial_attempts"`
	DialBackoff    Duration `toml:"dial_backoff"`
	RequestTimeout Duration `toml:"request_timeout"`

	LogDir   string `toml:"log_dir"`
	LogLevel string `toml:"log_level"`
}

// defaultConfig returns the default configuration rooted at the user's data directory
func defaultConfig() *Config {
	base := GetBasePath()
	return &Config{
		BackendURL:         DefaultBackendURL,
		Transport:          TransportWebSocket,
		StoreDriver:        StoreSQLite,
		DatabasePath:       filepath.Join(base, DefaultDatabaseFile),
		StateDir:           filepath.Join(base, DefaultStateDir),
		RefreshInterval:    Duration{DefaultRefreshInterval},
		StallCheckInterval: Duration{DefaultStallCheckInterval},
		CompletedRetention: Duration{DefaultCompletedRetention},
		DialAttempts:       DefaultDialAttempts,
		DialBackoff:        Duration{DefaultDialBackoff},
		RequestTimeout:     Duration{DefaultRequestTimeout},
		LogLevel:           "warn",
	}
}

// GetBasePath returns the directory holding navconsole's local state
func GetBasePath() string {
	if dir := os.Getenv("NAVCONSOLE_HOME"); dir != "" {
		return dir
	}
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "navconsole")
	}
	return ".navconsole"
}

// Load loads the configuration from path (or the default file) and environment variables
func Load(path string) (*Config, error) {
	config := defaultConfig()

	explicit := path != ""
	if !explicit {
		if envPath := os.Getenv("NAVCONSOLE_CONFIG"); envPath != "" {
			path = envPath
			explicit = true
		} else {
			path = DefaultConfigFile
		}
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	for _, p := range []*string{&config.DatabasePath, &config.StateDir, &config.LogDir} {
		if *p == "" || filepath.IsAbs(*p) {
			continue
		}
		absPath, err := filepath.Abs(*p)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for %s: %w", *p, err)
		}
		*p = absPath
	}

	return config, nil
}

func (c *Config) applyEnv() error {
	strings := map[string]*string{
		"NAVCONSOLE_BACKEND_URL":   &c.BackendURL,
		"NAVCONSOLE_TOKEN":         &c.Token,
		"NAVCONSOLE_TRANSPORT":     &c.Transport,
		"NAVCONSOLE_STORE_DRIVER":  &c.StoreDriver,
		"NAVCONSOLE_DATABASE_PATH": &c.DatabasePath,
		"NAVCONSOLE_STATE_DIR":     &c.StateDir,
		"NAVCONSOLE_LOG_DIR":       &c.LogDir,
		"NAVCONSOLE_LOG_LEVEL":     &c.LogLevel,
	}
	for key, target := range strings {
		if value := os.Getenv(key); value != "" {
			*target = value
		}
	}

	durations := map[string]*Duration{
		"NAVCONSOLE_REFRESH_INTERVAL":     &c.RefreshInterval,
		"NAVCONSOLE_STALL_TIMEOUT":        &c.StallTimeout,
		"NAVCONSOLE_STALL_CHECK_INTERVAL": &c.StallCheckInterval,
		"NAVCONSOLE_COMPLETED_RETENTION":  &c.CompletedRetention,
	}
	for key, target := range durations {
		if value := os.Getenv(key); value != "" {
			if err := target.UnmarshalText([]byte(value)); err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
		}
	}

	if value := os.Getenv("NAVCONSOLE_DIAL_ATTEMPTS"); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid NAVCONSOLE_DIAL_ATTEMPTS: %w", err)
		}
		c.DialAttempts = n
	}
	return nil
}

// Validate rejects settings the client cannot run with
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("backend_url is required")
	}
	switch c.Transport {
	case TransportWebSocket, TransportSSE:
	default:
		return fmt.Errorf("unknown transport %q (want %s or %s)", c.Transport, TransportWebSocket, TransportSSE)
	}
	switch c.StoreDriver {
	case StoreSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("database_path is required for the sqlite store")
		}
	case StoreFile:
		if c.StateDir == "" {
			return fmt.Errorf("state_dir is required for the file store")
		}
	default:
		return fmt.Errorf("unknown store_driver %q (want %s or %s)", c.StoreDriver, StoreSQLite, StoreFile)
	}
	if c.RefreshInterval.Duration < time.Second {
		return fmt.Errorf("refresh_interval must be at least 1s, got %s", c.RefreshInterval.Duration)
	}
	if c.StallTimeout.Duration < 0 {
		return fmt.Errorf("stall_timeout must not be negative")
	}
	if c.StallTimeout.Duration > 0 && c.StallCheckInterval.Duration < time.Second {
		return fmt.Errorf("stall_check_interval must be at least 1s when stall_timeout is set")
	}
	if c.DialAttempts < 1 {
		return fmt.Errorf("dial_attempts must be at least 1")
	}
	return nil
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	token := ""
	if c.Token != "" {
		token = "****"
	}
	var parts []string
	parts = append(parts, fmt.Sprintf("BackendURL: %s", c.BackendURL))
	parts = append(parts, fmt.Sprintf("Token: %s", token))
	parts = append(parts, fmt.Sprintf("Transport: %s", c.Transport))
	parts = append(parts, fmt.Sprintf("StoreDriver: %s", c.StoreDriver))
	parts = append(parts, fmt.Sprintf("DatabasePath: %s", c.DatabasePath))
	parts = append(parts, fmt.Sprintf("RefreshInterval: %s", c.RefreshInterval.Duration))
	parts = append(parts, fmt.Sprintf("StallTimeout: %s", c.StallTimeout.Duration))
	return strings.Join(parts, ", ")
}
