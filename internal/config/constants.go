package config

import "time"

// Defaults applied before the config file and environment are read.
const (
	// DefaultBackendURL is where the daemon listens out of the box.
	DefaultBackendURL = "http://localhost:23008"

	// DefaultConfigFile is read from the working directory when present.
	DefaultConfigFile = "navconsole.toml"

	DefaultDatabaseFile = "navconsole.db"
	DefaultStateDir     = "requests"

	DefaultRefreshInterval    = 5 * time.Second
	DefaultStallCheckInterval = 30 * time.Second
	DefaultCompletedRetention = time.Minute
	DefaultDialBackoff        = time.Second
	DefaultRequestTimeout     = 15 * time.Second
	DefaultDialAttempts       = 3
)

// Progress transports.
const (
	TransportWebSocket = "websocket"
	TransportSSE       = "sse"
)

// Request store drivers.
const (
	StoreSQLite = "sqlite"
	StoreFile   = "file"
)
