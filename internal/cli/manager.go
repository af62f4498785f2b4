package cli

import (
	"context"

	"navconsole/internal/progress"
	"navconsole/internal/reconcile"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitRuntimeError = 1
	ExitInvalidUsage = 2
)

// Event types written by the CLI.
const (
	EventAccepted = "accepted"
	EventProgress = "progress"
	EventSuccess  = "success"
	EventError    = "error"
	EventResult   = "result"
)

// ProgressEvent streams progress updates from long-running operations.
type ProgressEvent struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Message   string          `json:"message,omitempty"`
	Code      string          `json:"code,omitempty"`
	Percent   int             `json:"percent,omitempty"`
	ETA       string          `json:"eta,omitempty"`
	Steps     []progress.Step `json:"steps,omitempty"`
	Data      interface{}     `json:"data,omitempty"`
}

// ServerOptions are the parameters of a server creation.
type ServerOptions struct {
	Name    string
	Loader  string
	Version string
	RAM     int
	Detach  bool
}

// BackupOptions are the parameters of a backup creation.
type BackupOptions struct {
	ServerID string
	Name     string
	Detach   bool
}

// Manager abstracts core operations for the CLI.
type Manager interface {
	ServerCreate(ctx context.Context, opts ServerOptions) <-chan ProgressEvent
	BackupCreate(ctx context.Context, opts BackupOptions) <-chan ProgressEvent
	Cancel(ctx context.Context, requestID string) error
	List(ctx context.Context, kind reconcile.Kind) ([]reconcile.Entity, error)
	Watch(ctx context.Context) <-chan ProgressEvent
}
