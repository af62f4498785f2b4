// Package orchestrator drives optimistic creations from submission to
// supersession. It owns the placeholders, the progress channels and the
// persisted records of every request started in or resumed by a session.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"navconsole/internal/channel"
	"navconsole/internal/logging"
	"navconsole/internal/progress"
	"navconsole/internal/reconcile"
	"navconsole/internal/requests"
	"navconsole/internal/telemetry"
)

// InitialMessage is shown on a placeholder until its first progress message.
const InitialMessage = "Initializing..."

// StallMessage fails a request that reported nothing for longer than the stall timeout.
const StallMessage = "Timed out waiting for progress"

// Intent is what the user asked to create.
type Intent struct {
	Kind       reconcile.Kind
	Name       string
	Attributes map[string]string
}

// Backend is the remote side of a creation.
type Backend interface {
	Create(ctx context.Context, kind reconcile.Kind, requestID, name string, attrs map[string]string) error
	Snapshot(ctx context.Context, kind reconcile.Kind) ([]reconcile.Entity, error)
	CancelCreation(ctx context.Context, kind reconcile.Kind, requestID string) error
}

// Channels opens and closes per-request progress channels.
type Channels interface {
	Open(requestID string, handler channel.Handler) bool
	Close(requestID string)
	Shutdown(ctx context.Context) error
}

// Options configures an Orchestrator.
type Options struct {
	Store    requests.Store
	Channels Channels
	Backend  Backend

	// RefreshInterval is the period of the scheduled snapshot refresh. Zero disables it.
	RefreshInterval time.Duration
	// StallTimeout fails tracked requests that report nothing for this long. Zero disables it.
	StallTimeout       time.Duration
	StallCheckInterval time.Duration
	// CompletedRetention is how long a completed placeholder waits to be superseded.
	CompletedRetention time.Duration

	// RequestTimeout bounds backend calls made in the background.
	RequestTimeout time.Duration

	Now   func() time.Time
	NewID func() string
}

// Request is a read-only view of one tracked request.
type Request struct {
	ID         string
	Kind       reconcile.Kind
	Name       string
	State      State
	Steps      []progress.Step
	Message    string
	EntityID   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Attributes map[string]string
}

type request struct {
	id        string
	kind      reconcile.Kind
	name      string
	attrs     map[string]string
	state     State
	steps     []progress.Step
	message   string
	entityID  string
	filter    *progress.ResumeFilter
	createdAt time.Time
	// updatedAt is the time of the last accepted message.
	updatedAt     time.Time
	stepStartedAt time.Time
	completedAt   time.Time
}

// Orchestrator coordinates creations for one session.
type Orchestrator struct {
	opts     Options
	store    requests.Store
	channels Channels
	backend  Backend
	syncs    map[reconcile.Kind]*reconcile.Synchronizer
	updates  *broadcaster

	mu       sync.Mutex
	requests map[string]*request

	ctx     context.Context
	cancel  context.CancelFunc
	cron    *cron.Cron
	started bool

	// notifying tracks in-flight backend cancellations so Stop can drain them.
	notifying sync.WaitGroup
}

// New builds an orchestrator. Start must be called to resume persisted
// requests and begin scheduled refreshes.
func New(opts Options) (*Orchestrator, error) {
	if opts.Store == nil || opts.Channels == nil || opts.Backend == nil {
		return nil, errors.New("orchestrator: store, channels and backend are required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.StallTimeout > 0 && opts.StallCheckInterval <= 0 {
		opts.StallCheckInterval = opts.StallTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		opts:     opts,
		store:    opts.Store,
		channels: opts.Channels,
		backend:  opts.Backend,
		syncs:    make(map[reconcile.Kind]*reconcile.Synchronizer, len(reconcile.Kinds)),
		updates:  newBroadcaster(),
		requests: make(map[string]*request),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, kind := range reconcile.Kinds {
		o.syncs[kind] = reconcile.NewSynchronizer(kind)
	}
	return o, nil
}

// Submit starts a creation and returns its request id. The placeholder is
// visible and its channel open before the backend is called. When the
// backend rejects the call all local state is torn down and the error
// returned.
func (o *Orchestrator) Submit(ctx context.Context, intent Intent) (id string, err error) {
	syncer, ok := o.syncs[intent.Kind]
	if !ok {
		return "", fmt.Errorf("unsupported kind %q", intent.Kind)
	}
	if intent.Kind == reconcile.KindServer && strings.TrimSpace(intent.Name) == "" {
		return "", errors.New("server name is required")
	}

	id = o.opts.NewID()
	ctx, span := telemetry.StartSpan(ctx, "orchestrator.submit", telemetry.RequestAttributes(string(intent.Kind), id))
	defer func() { telemetry.EndSpan(span, err) }()

	now := o.opts.Now()
	r := &request{
		id:            id,
		kind:          intent.Kind,
		name:          intent.Name,
		attrs:         copyAttrs(intent.Attributes),
		state:         StateSubmitted,
		message:       InitialMessage,
		createdAt:     now,
		updatedAt:     now,
		stepStartedAt: now,
	}

	o.mu.Lock()
	if _, exists := o.requests[id]; exists {
		o.mu.Unlock()
		return "", fmt.Errorf("request %s: %w", id, reconcile.ErrAlreadyTracked)
	}
	if err := syncer.Track(r.entity(now)); err != nil {
		o.mu.Unlock()
		return "", fmt.Errorf("track placeholder: %w", err)
	}
	if err := o.store.Save(ctx, r.record()); err != nil {
		syncer.Remove(id)
		o.mu.Unlock()
		return "", fmt.Errorf("persist request: %w", err)
	}
	r.state = StateTracking
	o.requests[id] = r
	o.channels.Open(id, o.handle)
	update := r.update()
	o.mu.Unlock()

	o.updates.publish(update)
	logging.Infof("Submitted %s creation %s (%s)", intent.Kind, id, intent.Name)

	if err := o.backend.Create(ctx, intent.Kind, id, intent.Name, intent.Attributes); err != nil {
		o.abandon(id)
		return "", fmt.Errorf("create %s: %w", intent.Kind, err)
	}
	return id, nil
}

// abandon removes every trace of a request whose creation call failed.
func (o *Orchestrator) abandon(id string) {
	o.channels.Close(id)

	o.mu.Lock()
	r, ok := o.requests[id]
	if ok {
		delete(o.requests, id)
		o.syncs[r.kind].Remove(id)
		if err := o.store.Remove(context.Background(), id); err != nil {
			logging.Warnf("Failed to remove persisted request %s: %v", id, err)
		}
		r.state = StateCancelled
	}
	o.mu.Unlock()

	if ok {
		o.updates.publish(r.update())
	}
}

// Cancel stops tracking a request and removes its placeholder and
// persisted record. The backend is told to abort, but a failure to do so
// is only logged.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	o.mu.Lock()
	r, ok := o.requests[id]
	if !ok {
		o.mu.Unlock()
		return o.cancelStored(ctx, id)
	}
	if err := transition(id, r.state, StateCancelled); err != nil {
		o.mu.Unlock()
		return err
	}
	wasTracking := r.state == StateTracking

	o.channels.Close(id)
	delete(o.requests, id)
	o.syncs[r.kind].Remove(id)
	if err := o.store.Remove(ctx, id); err != nil {
		logging.Warnf("Failed to remove persisted request %s: %v", id, err)
	}
	r.state = StateCancelled
	update := r.update()
	o.mu.Unlock()

	o.updates.publish(update)
	logging.Infof("Cancelled %s creation %s", r.kind, id)

	if wasTracking {
		o.notifying.Add(1)
		go o.notifyCancel(r.kind, id)
	}
	return nil
}

// cancelStored cancels a request persisted by another session after this
// one resumed.
func (o *Orchestrator) cancelStored(ctx context.Context, id string) error {
	rec, err := o.store.Get(ctx, id)
	if errors.Is(err, requests.ErrNotFound) {
		return fmt.Errorf("request %s: %w", id, ErrUnknownRequest)
	}
	if err != nil {
		return fmt.Errorf("load request %s: %w", id, err)
	}
	kind, err := reconcile.ParseKind(rec.Kind)
	if err != nil {
		return fmt.Errorf("request %s: %w", id, err)
	}
	if err := o.store.Remove(ctx, id); err != nil {
		return fmt.Errorf("remove request %s: %w", id, err)
	}

	o.updates.publish(Update{RequestID: id, Kind: kind, State: StateCancelled, Steps: rec.Steps, Message: rec.Message})
	logging.Infof("Cancelled stored %s creation %s", kind, id)

	if rec.Status == requests.StatusTracking {
		o.notifying.Add(1)
		go o.notifyCancel(kind, id)
	}
	return nil
}

func (o *Orchestrator) notifyCancel(kind reconcile.Kind, id string) {
	defer o.notifying.Done()

	ctx, cancel := context.WithTimeout(o.ctx, o.opts.RequestTimeout)
	defer cancel()

	ctx, span := telemetry.StartSpan(ctx, "orchestrator.cancel", telemetry.RequestAttributes(string(kind), id))
	err := o.backend.CancelCreation(ctx, kind, id)
	telemetry.EndSpan(span, err)
	if err != nil {
		logging.Warnf("Backend did not acknowledge cancellation of %s: %v", id, err)
	}
}

// handle folds one channel event into its request.
func (o *Orchestrator) handle(ev channel.Event) {
	o.mu.Lock()
	r, ok := o.requests[ev.RequestID]
	if !ok || r.state != StateTracking {
		o.mu.Unlock()
		return
	}
	msg := ev.Message
	if !r.filter.Accept(msg) {
		o.mu.Unlock()
		logging.Debugf("Skipping replayed progress %q for %s", msg.Label(), r.id)
		return
	}
	if ev.Synthetic {
		logging.Warnf("Progress for %s failed: %v", r.id, ev.Err)
	}

	now := o.opts.Now()
	before := len(r.steps)
	r.steps = progress.Reduce(r.steps, msg)
	if len(r.steps) != before {
		r.stepStartedAt = now
	}
	r.updatedAt = now
	if label := msg.Label(); label != "" {
		r.message = label
	}

	refresh := false
	switch {
	case msg.IsSuccess():
		r.state = StateCompleted
		// Backup frames carry the source server's id.
		if r.kind == reconcile.KindServer {
			r.entityID = msg.EntityID
		}
		r.completedAt = now
		o.channels.Close(r.id)
		if err := o.store.Remove(context.Background(), r.id); err != nil {
			logging.Warnf("Failed to remove persisted request %s: %v", r.id, err)
		}
		refresh = true
		logging.Infof("%s creation %s completed", r.kind, r.id)
	case msg.IsFailure():
		r.state = StateFailed
		o.persist(r)
		logging.Warnf("%s creation %s failed: %s", r.kind, r.id, r.message)
	default:
		o.persist(r)
	}
	o.syncs[r.kind].Update(r.id, r.apply(now))
	update := r.update()
	update.ETA = r.eta(now)
	kind := r.kind
	o.mu.Unlock()

	o.updates.publish(update)
	if refresh {
		o.refreshAfterCompletion(kind)
	}
}

// persist writes r's record. The caller holds o.mu.
func (o *Orchestrator) persist(r *request) {
	if err := o.store.Save(context.Background(), r.record()); err != nil {
		logging.Errorf("Failed to persist request %s: %v", r.id, err)
	}
}

func (o *Orchestrator) refreshAfterCompletion(kind reconcile.Kind) {
	ctx, cancel := context.WithTimeout(o.ctx, o.opts.RequestTimeout)
	defer cancel()
	if err := o.Refresh(ctx, kind); err != nil && o.ctx.Err() == nil {
		logging.Warnf("Failed to refresh %s list: %v", kind, err)
	}
}

// Refresh fetches the authoritative list of kind and drops every
// placeholder the list now contains.
func (o *Orchestrator) Refresh(ctx context.Context, kind reconcile.Kind) (err error) {
	syncer, ok := o.syncs[kind]
	if !ok {
		return fmt.Errorf("unsupported kind %q", kind)
	}

	ctx, span := telemetry.StartSpan(ctx, "orchestrator.refresh", telemetry.RequestAttributes(string(kind), ""))
	defer func() { telemetry.EndSpan(span, err) }()

	snapshot, err := o.backend.Snapshot(ctx, kind)
	if err != nil {
		return fmt.Errorf("list %s: %w", kind, err)
	}

	o.mu.Lock()
	var finished []Update
	for _, id := range syncer.Apply(snapshot) {
		if r, ok := o.requests[id]; ok && r.state == StateTracking {
			finished = append(finished, o.finishListed(r))
		}
		o.channels.Close(id)
		if err := o.store.Remove(ctx, id); err != nil {
			logging.Warnf("Failed to remove persisted request %s: %v", id, err)
		}
		delete(o.requests, id)
		logging.Debugf("Placeholder %s superseded by listed %s", id, kind)
	}
	o.expireCompleted(kind)
	o.mu.Unlock()

	for _, u := range finished {
		o.updates.publish(u)
	}
	o.updates.publish(Update{Kind: kind, Refreshed: true})
	return nil
}

// finishListed completes a tracked request whose entity showed up in the
// list before its success message arrived. The caller holds o.mu.
func (o *Orchestrator) finishListed(r *request) Update {
	if len(r.steps) > 0 {
		r.steps = progress.Reduce(r.steps, progress.Message{Progress: progress.ProgressCompleted})
	}
	r.state = StateCompleted
	r.completedAt = o.opts.Now()
	r.updatedAt = r.completedAt
	if r.kind == reconcile.KindServer && r.entityID == "" {
		r.entityID = r.id
	}
	logging.Infof("%s creation %s completed (listed before its final progress)", r.kind, r.id)
	return r.update()
}

// expireCompleted drops completed placeholders of kind that were never
// superseded within the retention window. The caller holds o.mu.
func (o *Orchestrator) expireCompleted(kind reconcile.Kind) {
	if o.opts.CompletedRetention <= 0 {
		return
	}
	now := o.opts.Now()
	for id, r := range o.requests {
		if r.kind != kind || r.state != StateCompleted {
			continue
		}
		if now.Sub(r.completedAt) >= o.opts.CompletedRetention {
			o.syncs[kind].Remove(id)
			delete(o.requests, id)
			logging.Debugf("Completed placeholder %s expired without appearing in the %s list", id, kind)
		}
	}
}

// RefreshAll refreshes every kind, logging failures.
func (o *Orchestrator) RefreshAll(ctx context.Context) {
	for _, kind := range reconcile.Kinds {
		if err := o.Refresh(ctx, kind); err != nil && ctx.Err() == nil {
			logging.Warnf("Failed to refresh %s list: %v", kind, err)
		}
	}
}

// Rendered returns the merged list of kind: listed entities followed by
// placeholders not yet listed.
func (o *Orchestrator) Rendered(kind reconcile.Kind) []reconcile.Entity {
	syncer, ok := o.syncs[kind]
	if !ok {
		return nil
	}
	return syncer.Rendered()
}

// Request returns a view of the request tracked under id.
func (o *Orchestrator) Request(id string) (Request, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.requests[id]
	if !ok {
		return Request{}, false
	}
	return r.view(), true
}

// Requests returns views of every tracked request, oldest first.
func (o *Orchestrator) Requests() []Request {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Request, 0, len(o.requests))
	for _, r := range o.requests {
		out = append(out, r.view())
	}
	sortRequests(out)
	return out
}

// Subscribe returns a channel of updates and a function that ends the
// subscription. The channel is closed when the subscriber falls behind,
// unsubscribes or the orchestrator stops.
func (o *Orchestrator) Subscribe() (<-chan Update, func()) {
	return o.updates.subscribe()
}

func (r *request) apply(now time.Time) func(*reconcile.Entity) {
	return func(e *reconcile.Entity) {
		e.Steps = progress.Clone(r.steps)
		e.Progress = progress.LastPercent(r.steps)
		e.Message = r.message
		e.ETA = r.eta(now)
		e.ResolvedID = r.entityID
		e.UpdatedAt = r.updatedAt
		switch r.state {
		case StateCompleted:
			e.Status = reconcile.StatusCompleted
			e.Progress = progress.ProgressCompleted
		case StateFailed:
			e.Status = reconcile.StatusFailed
		default:
			e.Status = reconcile.StatusCreating
		}
	}
}

func (r *request) entity(now time.Time) reconcile.Entity {
	e := reconcile.Entity{
		ID:         r.id,
		Kind:       r.kind,
		Name:       r.name,
		Attributes: copyAttrs(r.attrs),
		CreatedAt:  r.createdAt,
	}
	r.apply(now)(&e)
	return e
}

func (r *request) eta(now time.Time) string {
	if r.state != StateTracking {
		return ""
	}
	return progress.EstimateRemaining(r.stepStartedAt, now, progress.LastPercent(r.steps))
}

func (r *request) record() requests.PendingRequest {
	status := requests.StatusTracking
	if r.state == StateFailed {
		status = requests.StatusFailed
	}
	return requests.PendingRequest{
		RequestID:  r.id,
		Kind:       string(r.kind),
		Name:       r.name,
		Attributes: r.attrs,
		Steps:      r.steps,
		Status:     status,
		Message:    r.message,
		CreatedAt:  r.createdAt,
		UpdatedAt:  r.updatedAt,
	}
}

func (r *request) update() Update {
	return Update{
		RequestID: r.id,
		Kind:      r.kind,
		State:     r.state,
		Steps:     progress.Clone(r.steps),
		Message:   r.message,
		Progress:  progress.LastPercent(r.steps),
		EntityID:  r.entityID,
	}
}

func (r *request) view() Request {
	return Request{
		ID:         r.id,
		Kind:       r.kind,
		Name:       r.name,
		State:      r.state,
		Steps:      progress.Clone(r.steps),
		Message:    r.message,
		EntityID:   r.entityID,
		CreatedAt:  r.createdAt,
		UpdatedAt:  r.updatedAt,
		Attributes: copyAttrs(r.attrs),
	}
}

func copyAttrs(attrs map[string]string) map[string]string {
	if attrs == nil {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
