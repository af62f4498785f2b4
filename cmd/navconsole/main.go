// Package main is the entry point for the navconsole command line client
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"navconsole/internal/backend"
	"navconsole/internal/channel"
	"navconsole/internal/cli"
	"navconsole/internal/config"
	"navconsole/internal/database"
	"navconsole/internal/logging"
	"navconsole/internal/orchestrator"
	"navconsole/internal/requests"
	"navconsole/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// Load .env file if it exists (for development)
	if err := godotenv.Load(); err != nil && os.Getenv("DEBUG") == "true" {
		logging.Debugf("No .env file found or error loading it: %v", err)
	}

	configPath, args, err := splitConfigFlag(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cli.ExitInvalidUsage
	}

	// Help and version need neither configuration nor the daemon
	if !needsSession(args) {
		return cli.Execute(args, nil, os.Stdout, os.Stderr)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return cli.ExitRuntimeError
	}

	if os.Getenv("DEBUG") != "true" {
		logging.SetLevel(logging.ParseLevel(cfg.LogLevel))
	}
	if cfg.LogDir != "" {
		if err := logging.Initialize(cfg.LogDir); err != nil {
			logging.Warnf("Failed to initialize file logging: %v", err)
		} else {
			defer func() { _ = logging.Close() }()
		}
	}
	logging.Debugf("Configuration: %s", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.InitializeFromEnv(ctx)
	if err != nil {
		logging.Warnf("Failed to initialize telemetry: %v", err)
	} else {
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logging.Warnf("Error shutting down telemetry: %v", err)
			}
		}()
	}

	store, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open request store: %v\n", err)
		return cli.ExitRuntimeError
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Warnf("Failed to close request store: %v", err)
		}
	}()

	client, err := backend.NewClient(cfg.BackendURL,
		backend.WithToken(cfg.Token),
		backend.WithTimeout(cfg.RequestTimeout.Duration),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid backend URL: %v\n", err)
		return cli.ExitRuntimeError
	}

	channels := channel.NewManager(newTransport(cfg, client),
		channel.WithDialAttempts(cfg.DialAttempts),
		channel.WithDialBackoff(cfg.DialBackoff.Duration),
	)

	orch, err := orchestrator.New(orchestrator.Options{
		Store:              store,
		Channels:           channels,
		Backend:            backend.NewGateway(client),
		RefreshInterval:    cfg.RefreshInterval.Duration,
		StallTimeout:       cfg.StallTimeout.Duration,
		StallCheckInterval: cfg.StallCheckInterval.Duration,
		CompletedRetention: cfg.CompletedRetention.Duration,
		RequestTimeout:     cfg.RequestTimeout.Duration,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create orchestrator: %v\n", err)
		return cli.ExitRuntimeError
	}
	if err := orch.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resume pending requests: %v\n", err)
		return cli.ExitRuntimeError
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := orch.Stop(stopCtx); err != nil {
			logging.Warnf("Shutdown did not complete cleanly: %v", err)
		}
	}()

	return cli.ExecuteContext(ctx, args, cli.NewManagerAdapter(orch), os.Stdout, os.Stderr)
}

func openStore(cfg *config.Config) (requests.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreFile:
		return requests.NewFileStore(cfg.StateDir)
	default:
		db, err := database.Open(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		return &dbStore{SQLiteStore: requests.NewSQLiteStore(db), close: db.Close}, nil
	}
}

// dbStore closes the database it was opened on.
type dbStore struct {
	*requests.SQLiteStore
	close func() error
}

func (s *dbStore) Close() error {
	return s.close()
}

func newTransport(cfg *config.Config, client *backend.Client) channel.Transport {
	if cfg.Transport == config.TransportSSE {
		return channel.NewSSETransport(client.ProgressStreamURL, channel.WithSSEHeader(client.AuthHeader()))
	}
	return channel.NewWebSocketTransport(client.ProgressURL, channel.WithWebSocketHeader(client.AuthHeader()))
}

// splitConfigFlag removes --config from args and returns its value.
func splitConfigFlag(args []string) (string, []string, error) {
	var path string
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config":
			if i+1 >= len(args) || strings.HasPrefix(args[i+1], "-") {
				return "", nil, fmt.Errorf("--config requires a path")
			}
			path = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			path = strings.TrimPrefix(arg, "--config=")
			if path == "" {
				return "", nil, fmt.Errorf("--config requires a path")
			}
		default:
			rest = append(rest, arg)
		}
	}
	return path, rest, nil
}

// needsSession reports whether the command talks to the daemon or the request store.
func needsSession(args []string) bool {
	if len(args) == 0 {
		return false
	}
	for _, arg := range args {
		switch arg {
		case "-h", "--help", "help", "completion":
			return false
		}
	}
	switch args[0] {
	case "version", "--version", "-version":
		return false
	}
	return true
}
