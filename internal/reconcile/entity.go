// Package reconcile merges the backend's authoritative entity lists with
// client-side placeholders for creations that are still in flight.
package reconcile

import (
	"fmt"
	"time"

	"navconsole/internal/progress"
)

// Kind identifies an entity family tracked by the console.
type Kind string

const (
	KindServer Kind = "server"
	KindBackup Kind = "backup"
)

// Kinds lists every supported kind in display order.
var Kinds = []Kind{KindServer, KindBackup}

// ParseKind validates a kind name, accepting plural forms.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "server", "servers":
		return KindServer, nil
	case "backup", "backups":
		return KindBackup, nil
	default:
		return "", fmt.Errorf("unknown kind %q", s)
	}
}

// Placeholder statuses. Real entities carry whatever status the backend reports.
const (
	StatusCreating  = "CREATING"
	StatusFailed    = "FAILED"
	StatusCompleted = "COMPLETED"
)

// Entity is one row of the rendered list: either an authoritative entity
// from a snapshot or a placeholder for an in-flight creation.
type Entity struct {
	ID          string            `json:"id"`
	Kind        Kind              `json:"kind"`
	Name        string            `json:"name"`
	Status      string            `json:"status"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Placeholder bool              `json:"placeholder,omitempty"`

	// Placeholder-only fields.
	ResolvedID string          `json:"resolved_id,omitempty"`
	Steps      []progress.Step `json:"steps,omitempty"`
	Progress   float64         `json:"progress,omitempty"`
	Message    string          `json:"message,omitempty"`
	ETA        string          `json:"eta,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Clone returns a deep copy of e.
func (e Entity) Clone() Entity {
	out := e
	out.Steps = progress.Clone(e.Steps)
	if e.Attributes != nil {
		out.Attributes = make(map[string]string, len(e.Attributes))
		for k, v := range e.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}
