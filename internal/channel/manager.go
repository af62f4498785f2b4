package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"navconsole/internal/logging"
	"navconsole/internal/progress"
)

// State is the lifecycle state of a progress channel.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event is delivered to a channel's handler for every message. Synthetic
// events are produced locally when the transport fails; Err holds the cause.
type Event struct {
	RequestID string
	Message   progress.Message
	Synthetic bool
	Err       error
}

// Handler receives the events of one channel, sequentially and in order.
type Handler func(Event)

// Option configures a Manager.
type Option func(*Manager)

// WithDialAttempts sets how many times a channel dial is attempted before
// the channel fails. Values below one are treated as one.
func WithDialAttempts(n int) Option {
	return func(m *Manager) {
		if n < 1 {
			n = 1
		}
		m.dialAttempts = n
	}
}

// WithDialBackoff sets the wait between dial attempts.
func WithDialBackoff(d time.Duration) Option {
	return func(m *Manager) {
		m.dialBackoff = d
	}
}

// Manager owns at most one progress channel per request id.
type Manager struct {
	transport    Transport
	dialAttempts int
	dialBackoff  time.Duration

	mu       sync.Mutex
	channels map[string]*channel
	wg       sync.WaitGroup
}

type channel struct {
	id      string
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	state  State
	stream Stream
}

// NewManager creates a channel manager dialing through transport.
func NewManager(transport Transport, opts ...Option) *Manager {
	m := &Manager{
		transport:    transport,
		dialAttempts: 1,
		dialBackoff:  time.Second,
		channels:     make(map[string]*channel),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open starts a channel for requestID delivering to handler. It returns
// false without side effects when a channel for the id is already open.
// Dialing happens in the background; failures reach the handler as a
// synthetic failure event.
func (m *Manager) Open(requestID string, handler Handler) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.channels[requestID]; exists {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch := &channel{
		id:      requestID,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
		state:   StateOpen,
	}
	m.channels[requestID] = ch

	m.wg.Add(1)
	go m.run(ch)
	return true
}

// Close tears down the channel for requestID. Closing an unknown or
// already closed channel is a no-op. A delivery already under way may
// still reach the handler once. Close does not wait for the reader, so a
// handler may close its own channel.
func (m *Manager) Close(requestID string) {
	m.mu.Lock()
	ch, exists := m.channels[requestID]
	if exists {
		delete(m.channels, requestID)
	}
	m.mu.Unlock()

	if exists {
		ch.shutdown()
		logging.Debugf("Closed progress channel %s", requestID)
	}
}

// IsOpen reports whether a channel is registered for requestID.
func (m *Manager) IsOpen(requestID string) bool {
	return m.State(requestID) != StateClosed
}

// State returns the lifecycle state of the channel for requestID.
func (m *Manager) State(requestID string) State {
	m.mu.Lock()
	ch, exists := m.channels[requestID]
	m.mu.Unlock()
	if !exists {
		return StateClosed
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

// Len returns the number of registered channels.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.channels)
}

// Shutdown closes every channel and waits for their readers to exit.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	channels := make([]*channel, 0, len(m.channels))
	for id, ch := range m.channels {
		channels = append(channels, ch)
		delete(m.channels, id)
	}
	m.mu.Unlock()

	for _, ch := range channels {
		ch.shutdown()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) run(ch *channel) {
	defer m.wg.Done()
	defer m.release(ch)

	stream, err := m.dial(ch)
	if err != nil {
		if ch.ctx.Err() == nil {
			logging.Warnf("Progress channel %s failed to connect: %v", ch.id, err)
			m.deliver(ch, connectionError(ch.id, err))
		}
		return
	}
	if !ch.attach(stream) {
		_ = stream.Close()
		return
	}

	for {
		msg, err := stream.Next()
		if ch.ctx.Err() != nil {
			return
		}
		if err != nil {
			if errors.Is(err, progress.ErrInvalidMessage) {
				logging.Warnf("Skipping malformed progress frame on %s: %v", ch.id, err)
				continue
			}
			logging.Warnf("Progress channel %s lost: %v", ch.id, err)
			ch.setState(StateTerminal)
			m.deliver(ch, connectionError(ch.id, err))
			return
		}

		terminal := msg.IsTerminal()
		if terminal {
			ch.setState(StateTerminal)
		}
		m.deliver(ch, Event{RequestID: ch.id, Message: msg})
		if terminal {
			return
		}
	}
}

func (m *Manager) dial(ch *channel) (Stream, error) {
	var lastErr error
	for attempt := 1; attempt <= m.dialAttempts; attempt++ {
		stream, err := m.transport.Dial(ch.ctx, ch.id)
		if err == nil {
			return stream, nil
		}
		lastErr = err
		if ch.ctx.Err() != nil {
			return nil, ch.ctx.Err()
		}
		if attempt < m.dialAttempts {
			logging.Debugf("Dial attempt %d/%d for %s failed: %v", attempt, m.dialAttempts, ch.id, err)
			select {
			case <-ch.ctx.Done():
				return nil, ch.ctx.Err()
			case <-time.After(m.dialBackoff):
			}
		}
	}
	return nil, fmt.Errorf("after %d attempt(s): %w", m.dialAttempts, lastErr)
}

func (m *Manager) deliver(ch *channel, ev Event) {
	if ch.ctx.Err() != nil {
		return
	}
	ch.handler(ev)
}

// release unregisters ch once its reader exits, unless a newer channel
// has taken its id.
func (m *Manager) release(ch *channel) {
	m.mu.Lock()
	if current, ok := m.channels[ch.id]; ok && current == ch {
		delete(m.channels, ch.id)
	}
	m.mu.Unlock()
	ch.shutdown()
}

func (c *channel) attach(stream Stream) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return false
	}
	c.stream = stream
	return true
}

func (c *channel) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateClosed {
		c.state = s
	}
}

func (c *channel) shutdown() {
	c.cancel()
	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	c.state = StateClosed
	c.mu.Unlock()
	if stream != nil {
		_ = stream.Close()
	}
}

func connectionError(requestID string, err error) Event {
	return Event{
		RequestID: requestID,
		Message:   progress.FailureMessage(progress.ConnectionErrorLabel),
		Synthetic: true,
		Err:       err,
	}
}
