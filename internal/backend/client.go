// Package backend is the HTTP client of the host-management daemon.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"navconsole/internal/logging"
)

// ClientHeader identifies this client to the daemon.
const ClientHeader = "X-Naviger-Client"

// APIError is returned for non-success responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("error: %s", e.Message)
	}
	return fmt.Sprintf("API error (%d)", e.StatusCode)
}

// Client talks to the daemon's REST API.
type Client struct {
	baseURL    *url.URL
	token      string
	clientName string
	httpClient *http.Client
	retryMax   int
	retryWait  time.Duration
	retrying   *retryablehttp.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithRetry sets the retry budget for idempotent requests.
func WithRetry(max int, minWait time.Duration) Option {
	return func(c *Client) {
		c.retryMax = max
		c.retryWait = minWait
	}
}

// WithClientName overrides the X-Naviger-Client header value.
func WithClientName(name string) Option {
	return func(c *Client) {
		c.clientName = name
	}
}

// NewClient creates a client for the daemon at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q: missing host", baseURL)
	}

	c := &Client{
		baseURL:    u,
		clientName: "CLI",
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retryMax:   3,
		retryWait:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = c.httpClient
	rc.RetryMax = c.retryMax
	rc.RetryWaitMin = c.retryWait
	rc.RetryWaitMax = 8 * c.retryWait
	rc.Logger = nil
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.retrying = rc

	return c, nil
}

// BaseURL returns the daemon base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}

func (c *Client) decorate(h http.Header, hasBody bool) {
	h.Set(ClientHeader, c.clientName)
	h.Set("Accept", "application/json")
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	if hasBody {
		h.Set("Content-Type", "application/json")
	}
}

// doOnce sends a non-idempotent request exactly once.
func (c *Client) doOnce(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.decorate(req.Header, body != nil)
	return c.httpClient.Do(req)
}

// doRetrying sends an idempotent request with retries.
func (c *Client) doRetrying(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.endpoint(path), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.decorate(req.Header, false)
	return c.retrying.Do(req)
}

func (c *Client) get(ctx context.Context, path string, target interface{}) error {
	resp, err := c.doRetrying(ctx, http.MethodGet, path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Response body

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("GET %s: failed to decode response: %w", path, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}, target interface{}) error {
	resp, err := c.doOnce(ctx, http.MethodPost, path, body)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Response body

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
	default:
		return readAPIError(resp)
	}
	if target == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil && err != io.EOF {
		return fmt.Errorf("POST %s: failed to decode response: %w", path, err)
	}
	return nil
}

func (c *Client) delete(ctx context.Context, path string) error {
	resp, err := c.doRetrying(ctx, http.MethodDelete, path)
	if err != nil {
		return fmt.Errorf("DELETE %s: %w", path, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Response body

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusAccepted:
		return nil
	default:
		return readAPIError(resp)
	}
}

func readAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		logging.Debugf("Failed to read error body: %v", err)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

// ProgressURL returns the websocket endpoint of a request's progress channel.
func (c *Client) ProgressURL(requestID string) (string, error) {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/progress/" + url.PathEscape(requestID)
	if c.token != "" {
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// ProgressStreamURL returns the server-sent events endpoint of a request's progress channel.
func (c *Client) ProgressStreamURL(requestID string) (string, error) {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + "/events/progress/" + url.PathEscape(requestID)
	return u.String(), nil
}

// AuthHeader returns the headers progress transports must send.
func (c *Client) AuthHeader() http.Header {
	h := http.Header{}
	h.Set(ClientHeader, c.clientName)
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}
