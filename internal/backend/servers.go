package backend

import (
	"context"
	"fmt"
	"net/url"
)

// ListServers returns every server known to the daemon.
func (c *Client) ListServers(ctx context.Context) ([]Server, error) {
	var servers []Server
	if err := c.get(ctx, "/servers", &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

// CreateServer starts an asynchronous server creation tracked under req.RequestID.
func (c *Client) CreateServer(ctx context.Context, req CreateServerRequest) (*Accepted, error) {
	if req.RequestID == "" {
		return nil, fmt.Errorf("request id is required")
	}
	var accepted Accepted
	if err := c.post(ctx, "/servers", req, &accepted); err != nil {
		return nil, err
	}
	return &accepted, nil
}

// CancelServerCreation asks the daemon to abandon a server creation.
func (c *Client) CancelServerCreation(ctx context.Context, requestID string) error {
	return c.delete(ctx, "/servers/progress/"+url.PathEscape(requestID))
}
