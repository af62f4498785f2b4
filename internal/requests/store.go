// Package requests persists in-flight creation requests so that tracking can
// resume after the client restarts.
package requests

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"navconsole/internal/progress"
)

// Status is the persisted status of a pending request.
type Status string

const (
	// StatusTracking means progress is still expected on the request's channel.
	StatusTracking Status = "tracking"
	// StatusFailed means the request failed and is kept until the user dismisses it.
	StatusFailed Status = "failed"
)

// ErrNotFound is returned when a request id is unknown to the store.
var ErrNotFound = errors.New("request not found")

// PendingRequest is the durable record of a creation that has not yet been
// superseded by an authoritative entity.
type PendingRequest struct {
	RequestID  string            `yaml:"request_id"`
	Kind       string            `yaml:"kind"`
	Name       string            `yaml:"name"`
	Attributes map[string]string `yaml:"attributes,omitempty"`
	Steps      []progress.Step   `yaml:"steps,omitempty"`
	Status     Status            `yaml:"status"`
	Message    string            `yaml:"message,omitempty"`
	CreatedAt  time.Time         `yaml:"created_at"`
	UpdatedAt  time.Time         `yaml:"updated_at"`
}

// Validate checks the fields every store requires.
func (r PendingRequest) Validate() error {
	if strings.TrimSpace(r.RequestID) == "" {
		return fmt.Errorf("request id is required")
	}
	if r.Kind == "" {
		return fmt.Errorf("request %s: kind is required", r.RequestID)
	}
	switch r.Status {
	case StatusTracking, StatusFailed:
	default:
		return fmt.Errorf("request %s: unknown status %q", r.RequestID, r.Status)
	}
	return nil
}

// Store is a durable map of RequestId to PendingRequest.
type Store interface {
	// Save inserts or replaces the record for r.RequestID.
	Save(ctx context.Context, r PendingRequest) error
	// Remove deletes the record. Removing an unknown id is not an error.
	Remove(ctx context.Context, requestID string) error
	// Get returns the record for requestID, or ErrNotFound.
	Get(ctx context.Context, requestID string) (PendingRequest, error)
	// LoadAll returns every record ordered by creation time.
	LoadAll(ctx context.Context) ([]PendingRequest, error)
	Close() error
}

func normalize(r PendingRequest) PendingRequest {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	r.Steps = progress.Clone(r.Steps)
	if r.Attributes != nil {
		attrs := make(map[string]string, len(r.Attributes))
		for k, v := range r.Attributes {
			attrs[k] = v
		}
		r.Attributes = attrs
	}
	return r
}
