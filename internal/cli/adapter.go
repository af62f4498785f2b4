package cli

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"navconsole/internal/backend"
	"navconsole/internal/orchestrator"
	"navconsole/internal/reconcile"
)

// Orchestrator is the part of *orchestrator.Orchestrator the CLI drives.
type Orchestrator interface {
	Submit(ctx context.Context, intent orchestrator.Intent) (string, error)
	Cancel(ctx context.Context, requestID string) error
	Refresh(ctx context.Context, kind reconcile.Kind) error
	Rendered(kind reconcile.Kind) []reconcile.Entity
	Requests() []orchestrator.Request
	Subscribe() (<-chan orchestrator.Update, func())
}

// NewManagerAdapter wraps an orchestrator for CLI usage.
func NewManagerAdapter(orch Orchestrator) Manager {
	return &managerAdapter{orch: orch}
}

type managerAdapter struct {
	orch Orchestrator
}

func (m *managerAdapter) ServerCreate(ctx context.Context, opts ServerOptions) <-chan ProgressEvent {
	return m.create(ctx, orchestrator.Intent{
		Kind: reconcile.KindServer,
		Name: opts.Name,
		Attributes: map[string]string{
			backend.AttrLoader:  opts.Loader,
			backend.AttrVersion: opts.Version,
			backend.AttrRAM:     strconv.Itoa(opts.RAM),
		},
	}, opts.Detach)
}

func (m *managerAdapter) BackupCreate(ctx context.Context, opts BackupOptions) <-chan ProgressEvent {
	return m.create(ctx, orchestrator.Intent{
		Kind:       reconcile.KindBackup,
		Name:       opts.Name,
		Attributes: map[string]string{backend.AttrServerID: opts.ServerID},
	}, opts.Detach)
}

func (m *managerAdapter) create(ctx context.Context, intent orchestrator.Intent, detach bool) <-chan ProgressEvent {
	out := make(chan ProgressEvent, 16)
	go func() {
		defer close(out)

		updates, unsubscribe := m.orch.Subscribe()
		defer unsubscribe()

		id, err := m.orch.Submit(ctx, intent)
		if err != nil {
			send(ctx, out, ProgressEvent{Type: EventError, Code: "submit_failed", Message: err.Error()})
			return
		}
		message := fmt.Sprintf("%s creation %s accepted", intent.Kind, id)
		if detach {
			message += "; run 'navconsole watch' to follow it"
		}
		if !send(ctx, out, ProgressEvent{Type: EventAccepted, RequestID: id, Message: message}) || detach {
			return
		}
		follow(ctx, updates, map[string]bool{id: true}, out)
	}()
	return out
}

func (m *managerAdapter) Cancel(ctx context.Context, requestID string) error {
	return m.orch.Cancel(ctx, requestID)
}

func (m *managerAdapter) List(ctx context.Context, kind reconcile.Kind) ([]reconcile.Entity, error) {
	if err := m.orch.Refresh(ctx, kind); err != nil {
		return nil, err
	}
	return m.orch.Rendered(kind), nil
}

func (m *managerAdapter) Watch(ctx context.Context) <-chan ProgressEvent {
	out := make(chan ProgressEvent, 16)
	go func() {
		defer close(out)

		updates, unsubscribe := m.orch.Subscribe()
		defer unsubscribe()

		pending := make(map[string]bool)
		for _, r := range m.orch.Requests() {
			event := requestEvent(r)
			if !send(ctx, out, event) {
				return
			}
			if r.State == orchestrator.StateTracking {
				pending[r.ID] = true
			}
		}
		if len(pending) == 0 {
			send(ctx, out, ProgressEvent{Type: EventResult, Message: "no creations in progress"})
			return
		}
		follow(ctx, updates, pending, out)
	}()
	return out
}

// follow forwards updates for the pending ids until each reaches a terminal state.
func follow(ctx context.Context, updates <-chan orchestrator.Update, pending map[string]bool, out chan<- ProgressEvent) {
	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				send(ctx, out, ProgressEvent{Type: EventError, Code: "updates_closed", Message: "lost the update stream before completion"})
				return
			}
			if !pending[u.RequestID] {
				continue
			}
			if !send(ctx, out, updateEvent(u)) {
				return
			}
			if u.State.Terminal() {
				delete(pending, u.RequestID)
			}
		}
	}
}

func send(ctx context.Context, out chan<- ProgressEvent, event ProgressEvent) bool {
	select {
	case out <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func updateEvent(u orchestrator.Update) ProgressEvent {
	event := ProgressEvent{
		Type:      EventProgress,
		RequestID: u.RequestID,
		Message:   u.Message,
		Percent:   int(math.Round(u.Progress)),
		ETA:       u.ETA,
		Steps:     u.Steps,
	}
	switch u.State {
	case orchestrator.StateCompleted:
		event.Type = EventSuccess
		event.Percent = 100
		if u.EntityID != "" {
			event.Data = map[string]string{"entity_id": u.EntityID}
		}
	case orchestrator.StateFailed:
		event.Type = EventError
		event.Code = "creation_failed"
	case orchestrator.StateCancelled:
		event.Type = EventError
		event.Code = "cancelled"
		event.Message = "cancelled"
	}
	return event
}

func requestEvent(r orchestrator.Request) ProgressEvent {
	var pct float64
	if n := len(r.Steps); n > 0 && r.Steps[n-1].Progress != nil {
		pct = *r.Steps[n-1].Progress
	}
	return updateEvent(orchestrator.Update{
		RequestID: r.ID,
		Kind:      r.Kind,
		State:     r.State,
		Steps:     r.Steps,
		Message:   r.Message,
		Progress:  pct,
		EntityID:  r.EntityID,
	})
}
