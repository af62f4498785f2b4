package backend

import (
	"context"
	"fmt"
	"net/url"
)

// ListBackups returns every backup archive.
func (c *Client) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	var backups []BackupInfo
	if err := c.get(ctx, "/backups", &backups); err != nil {
		return nil, err
	}
	return backups, nil
}

// CreateBackup starts an asynchronous backup of serverID tracked under req.RequestID.
func (c *Client) CreateBackup(ctx context.Context, serverID string, req CreateBackupRequest) (*Accepted, error) {
	if serverID == "" {
		return nil, fmt.Errorf("server id is required")
	}
	if req.RequestID == "" {
		return nil, fmt.Errorf("request id is required")
	}
	var accepted Accepted
	if err := c.post(ctx, fmt.Sprintf("/servers/%s/backup", url.PathEscape(serverID)), req, &accepted); err != nil {
		return nil, err
	}
	return &accepted, nil
}

// CancelBackupCreation asks the daemon to abort a running backup.
func (c *Client) CancelBackupCreation(ctx context.Context, requestID string) error {
	return c.delete(ctx, "/backups/progress/"+url.PathEscape(requestID))
}
