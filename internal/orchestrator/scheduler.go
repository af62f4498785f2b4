package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/robfig/cron/v3"

	"navconsole/internal/logging"
	"navconsole/internal/progress"
	"navconsole/internal/reconcile"
	"navconsole/internal/requests"
	"navconsole/internal/telemetry"
)

// Start resumes persisted requests, loads the current lists and schedules
// periodic refreshes and stall checks.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return errors.New("orchestrator already started")
	}
	o.started = true
	o.mu.Unlock()

	resumed, err := o.Resume(ctx)
	if err != nil {
		return err
	}
	if resumed > 0 {
		logging.Infof("Resumed %d pending requests", resumed)
	}

	o.RefreshAll(ctx)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if o.opts.RefreshInterval > 0 {
		if _, err := c.AddFunc("@every "+o.opts.RefreshInterval.String(), func() {
			o.RefreshAll(o.ctx)
		}); err != nil {
			return fmt.Errorf("schedule refresh: %w", err)
		}
	}
	if o.opts.StallTimeout > 0 {
		if _, err := c.AddFunc("@every "+o.opts.StallCheckInterval.String(), func() {
			o.failStalled()
		}); err != nil {
			return fmt.Errorf("schedule stall check: %w", err)
		}
	}
	c.Start()

	o.mu.Lock()
	o.cron = c
	o.mu.Unlock()
	return nil
}

// Resume re-tracks every persisted request not already tracked. Requests
// still in progress get their channel re-opened; failed ones are shown
// until cancelled. It returns the number of requests picked up.
func (o *Orchestrator) Resume(ctx context.Context) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "orchestrator.resume")
	records, err := o.store.LoadAll(ctx)
	telemetry.EndSpan(span, err)
	if err != nil {
		return 0, fmt.Errorf("load pending requests: %w", err)
	}

	now := o.opts.Now()
	var updates []Update

	o.mu.Lock()
	for _, rec := range records {
		if _, tracked := o.requests[rec.RequestID]; tracked {
			continue
		}
		kind, err := reconcile.ParseKind(rec.Kind)
		if err != nil {
			logging.Warnf("Skipping persisted request %s: %v", rec.RequestID, err)
			continue
		}

		r := &request{
			id:            rec.RequestID,
			kind:          kind,
			name:          rec.Name,
			attrs:         copyAttrs(rec.Attributes),
			state:         StateTracking,
			steps:         progress.Clone(rec.Steps),
			message:       rec.Message,
			createdAt:     rec.CreatedAt,
			updatedAt:     now,
			stepStartedAt: now,
		}
		if r.message == "" {
			r.message = InitialMessage
		}
		if rec.Status == requests.StatusFailed {
			r.state = StateFailed
		} else {
			r.filter = progress.NewResumeFilter(r.steps)
		}

		if err := o.syncs[kind].Track(r.entity(now)); err != nil {
			logging.Warnf("Skipping persisted request %s: %v", rec.RequestID, err)
			continue
		}
		o.requests[r.id] = r
		if r.state == StateTracking {
			o.channels.Open(r.id, o.handle)
		}
		updates = append(updates, r.update())
	}
	o.mu.Unlock()

	for _, u := range updates {
		o.updates.publish(u)
	}
	return len(updates), nil
}

// failStalled fails every tracked request that has reported nothing for
// longer than the stall timeout and returns how many it failed.
func (o *Orchestrator) failStalled() int {
	if o.opts.StallTimeout <= 0 {
		return 0
	}
	now := o.opts.Now()
	var updates []Update

	o.mu.Lock()
	for _, r := range o.requests {
		if r.state != StateTracking || now.Sub(r.updatedAt) < o.opts.StallTimeout {
			continue
		}
		o.channels.Close(r.id)
		r.steps = progress.Reduce(r.steps, progress.FailureMessage(StallMessage))
		r.state = StateFailed
		r.message = StallMessage
		r.updatedAt = now
		o.persist(r)
		o.syncs[r.kind].Update(r.id, r.apply(now))
		updates = append(updates, r.update())
		logging.Warnf("%s creation %s stalled after %s without progress", r.kind, r.id, o.opts.StallTimeout)
	}
	o.mu.Unlock()

	for _, u := range updates {
		o.updates.publish(u)
	}
	return len(updates)
}

// Stop halts scheduled jobs, closes every channel and ends all subscriptions.
// Persisted requests are left in the store for the next session.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	c := o.cron
	o.cron = nil
	o.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		o.notifying.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		logging.Warnf("Stopping before all cancellations reached the backend")
	}

	o.cancel()
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := o.channels.Shutdown(ctx)
	o.updates.closeAll()
	return err
}

func sortRequests(rs []Request) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.Before(rs[j].CreatedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}
