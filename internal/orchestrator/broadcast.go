package orchestrator

import (
	"sync"
	"time"

	"navconsole/internal/logging"
	"navconsole/internal/progress"
	"navconsole/internal/reconcile"
)

// Update describes a change to one request, or a refreshed entity list
// when RequestID is empty.
type Update struct {
	RequestID string          `json:"request_id,omitempty"`
	Kind      reconcile.Kind  `json:"kind"`
	State     State           `json:"state,omitempty"`
	Steps     []progress.Step `json:"steps,omitempty"`
	Message   string          `json:"message,omitempty"`
	Progress  float64         `json:"progress,omitempty"`
	ETA       string          `json:"eta,omitempty"`
	EntityID  string          `json:"entity_id,omitempty"`
	Refreshed bool            `json:"refreshed,omitempty"`
}

const (
	subscriberBuffer = 64
	sendTimeout      = 500 * time.Millisecond
)

type subscriber struct {
	mu      sync.Mutex
	updates chan Update
	closed  bool
}

// send reports false when the subscriber did not take u in time.
func (s *subscriber) send(u Update) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.updates <- u:
		return true
	case <-time.After(sendTimeout):
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.updates)
	}
}

// broadcaster fans updates out to subscribers. Subscribers that stop
// receiving are dropped and their channel closed.
type broadcaster struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subscribers: make(map[*subscriber]bool)}
}

func (b *broadcaster) subscribe() (<-chan Update, func()) {
	sub := &subscriber{updates: make(chan Update, subscriberBuffer)}

	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	return sub.updates, func() {
		b.mu.Lock()
		delete(b.subscribers, sub)
		b.mu.Unlock()
		sub.close()
	}
}

func (b *broadcaster) publish(u Update) {
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subscribers))
	for sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	var stale []*subscriber
	for _, sub := range subs {
		u := u
		u.Steps = progress.Clone(u.Steps)
		if !sub.send(u) {
			stale = append(stale, sub)
		}
	}

	if len(stale) > 0 {
		b.mu.Lock()
		for _, sub := range stale {
			delete(b.subscribers, sub)
		}
		b.mu.Unlock()
		for _, sub := range stale {
			sub.close()
		}
		logging.Warnf("Dropped %d unresponsive update subscribers", len(stale))
	}
}

func (b *broadcaster) closeAll() {
	b.mu.Lock()
	subs := b.subscribers
	b.subscribers = make(map[*subscriber]bool)
	b.mu.Unlock()
	for sub := range subs {
		sub.close()
	}
}
