package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"navconsole/internal/progress"
)

// SSETransport subscribes to a server-sent events progress endpoint.
type SSETransport struct {
	urlFor     URLFunc
	httpClient *http.Client
	header     http.Header
}

// SSEOption configures an SSETransport.
type SSEOption func(*SSETransport)

// WithSSEHTTPClient sets the HTTP client used for subscriptions. The client
// must not set an overall timeout since streams stay open.
func WithSSEHTTPClient(client *http.Client) SSEOption {
	return func(t *SSETransport) {
		t.httpClient = client
	}
}

// WithSSEHeader adds headers sent with every subscription request.
func WithSSEHeader(h http.Header) SSEOption {
	return func(t *SSETransport) {
		for k, v := range h {
			t.header[k] = append([]string(nil), v...)
		}
	}
}

// NewSSETransport creates an SSE transport resolving endpoints with urlFor.
func NewSSETransport(urlFor URLFunc, opts ...SSEOption) *SSETransport {
	t := &SSETransport{
		urlFor:     urlFor,
		httpClient: &http.Client{},
		header:     http.Header{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Dial opens the event stream for requestID.
func (t *SSETransport) Dial(ctx context.Context, requestID string) (Stream, error) {
	target, err := t.urlFor(requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve progress url: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, target, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range t.header {
		req.Header[k] = append([]string(nil), v...)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 4096), maxMessageSize)
	return &sseStream{body: resp.Body, scanner: scanner, cancel: cancel}, nil
}

type sseStream struct {
	body      io.ReadCloser
	scanner   *bufio.Scanner
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// Next reads events until one carries data. Comment lines and events
// named "heartbeat" are skipped.
func (s *sseStream) Next() (progress.Message, error) {
	var (
		dataLines []string
		eventType string
	)
	for s.scanner.Scan() {
		line := s.scanner.Text()

		if line == "" {
			if len(dataLines) == 0 || eventType == "heartbeat" {
				dataLines = dataLines[:0]
				eventType = ""
				continue
			}
			return progress.ParseMessage([]byte(strings.Join(dataLines, "\n")))
		}

		switch {
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		}
	}

	if err := s.scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return progress.Message{}, err
	}
	return progress.Message{}, ErrStreamEnded
}

func (s *sseStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
