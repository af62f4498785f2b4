package channel

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"navconsole/internal/progress"
)

const (
	// Time allowed to write the close frame.
	writeWait = 2 * time.Second

	// Frames larger than this are rejected by the reader.
	maxMessageSize = 64 * 1024
)

// WebSocketTransport dials the backend's websocket progress endpoint.
type WebSocketTransport struct {
	urlFor URLFunc
	dialer *websocket.Dialer
	header http.Header
}

// WebSocketOption configures a WebSocketTransport.
type WebSocketOption func(*WebSocketTransport)

// WithDialer replaces the default websocket dialer.
func WithDialer(d *websocket.Dialer) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.dialer = d
	}
}

// WithWebSocketHeader adds headers sent with the upgrade request.
func WithWebSocketHeader(h http.Header) WebSocketOption {
	return func(t *WebSocketTransport) {
		for k, v := range h {
			t.header[k] = append([]string(nil), v...)
		}
	}
}

// NewWebSocketTransport creates a websocket transport resolving endpoints with urlFor.
func NewWebSocketTransport(urlFor URLFunc, opts ...WebSocketOption) *WebSocketTransport {
	t := &WebSocketTransport{
		urlFor: urlFor,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		header: http.Header{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Dial opens the websocket for requestID.
func (t *WebSocketTransport) Dial(ctx context.Context, requestID string) (Stream, error) {
	target, err := t.urlFor(requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve progress url: %w", err)
	}

	conn, resp, err := t.dialer.DialContext(ctx, target, t.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed (%d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)
	return &wsStream{conn: conn}, nil
}

type wsStream struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func (s *wsStream) Next() (progress.Message, error) {
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return progress.Message{}, ErrStreamEnded
			}
			return progress.Message{}, err
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		return progress.ParseMessage(data)
	}
}

// Close sends a close frame and closes the connection. WriteControl and
// Close may be called concurrently with a blocked ReadMessage.
func (s *wsStream) Close() error {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		// The peer may already be gone.
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
