package cli

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navconsole/internal/channel"
	"navconsole/internal/orchestrator"
	"navconsole/internal/progress"
	"navconsole/internal/reconcile"
	"navconsole/internal/requests"
)

type pipeStream struct {
	frames chan progress.Message
	done   chan struct{}
	once   sync.Once
}

func (s *pipeStream) Next() (progress.Message, error) {
	select {
	case msg := <-s.frames:
		return msg, nil
	case <-s.done:
		return progress.Message{}, errors.New("stream closed")
	}
}

func (s *pipeStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

type pipeTransport struct {
	mu      sync.Mutex
	streams map[string]*pipeStream
}

func (t *pipeTransport) Dial(_ context.Context, requestID string) (channel.Stream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := &pipeStream{frames: make(chan progress.Message, 8), done: make(chan struct{})}
	t.streams[requestID] = s
	return s, nil
}

func (t *pipeTransport) stream(tb testing.TB, requestID string) *pipeStream {
	tb.Helper()
	var s *pipeStream
	require.Eventually(tb, func() bool {
		t.mu.Lock()
		defer t.mu.Unlock()
		s = t.streams[requestID]
		return s != nil
	}, 2*time.Second, 5*time.Millisecond)
	return s
}

type listBackend struct {
	mu      sync.Mutex
	servers []reconcile.Entity
}

func (b *listBackend) Create(context.Context, reconcile.Kind, string, string, map[string]string) error {
	return nil
}

func (b *listBackend) Snapshot(_ context.Context, kind reconcile.Kind) ([]reconcile.Entity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if kind != reconcile.KindServer {
		return nil, nil
	}
	return append([]reconcile.Entity(nil), b.servers...), nil
}

func (b *listBackend) CancelCreation(context.Context, reconcile.Kind, string) error { return nil }

func (b *listBackend) list(servers ...reconcile.Entity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.servers = servers
}

func TestServerCreateEndsWhenListedBeforeSuccess(t *testing.T) {
	store, err := requests.NewFileStore(t.TempDir())
	require.NoError(t, err)
	transport := &pipeTransport{streams: make(map[string]*pipeStream)}
	backend := &listBackend{}
	orch, err := orchestrator.New(orchestrator.Options{
		Store:    store,
		Channels: channel.NewManager(transport),
		Backend:  backend,
		NewID:    func() string { return "abc" },
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = orch.Stop(ctx)
	})

	events := NewManagerAdapter(orch).ServerCreate(context.Background(), ServerOptions{Name: "survival", Loader: "paper", Version: "1.21.1", RAM: 2048})
	transport.stream(t, "abc").frames <- progress.Message{Message: "Downloading", Progress: 40}

	var seen []ProgressEvent
	timeout := time.After(2 * time.Second)
	for len(seen) == 0 || seen[len(seen)-1].Message != "Downloading" {
		select {
		case event, ok := <-events:
			require.True(t, ok, "stream ended early: %+v", seen)
			seen = append(seen, event)
		case <-timeout:
			t.Fatalf("never saw the download progress, got %+v", seen)
		}
	}

	backend.list(reconcile.Entity{ID: "abc", Name: "survival", Status: "STARTING"})
	require.NoError(t, orch.Refresh(context.Background(), reconcile.KindServer))

	rest := collect(t, events)
	require.NotEmpty(t, rest)
	last := rest[len(rest)-1]
	assert.Equal(t, EventSuccess, last.Type)
	assert.Equal(t, "abc", last.RequestID)
	assert.Equal(t, 100, last.Percent)
}
