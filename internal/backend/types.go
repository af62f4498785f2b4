package backend

import "time"

// Server is a managed server as listed by the daemon.
type Server struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Loader    string    `json:"loader"`
	Port      int       `json:"port"`
	RAM       int       `json:"ram"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// BackupInfo is a backup archive as listed by the daemon. RequestID is only
// present when the daemon echoes the id the backup was requested with.
type BackupInfo struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	RequestID string `json:"requestId,omitempty"`
}

// CreateServerRequest is the body of POST /servers.
type CreateServerRequest struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Loader    string `json:"loader"`
	RAM       int    `json:"ram"`
	RequestID string `json:"requestId"`
}

// CreateBackupRequest is the body of POST /servers/{id}/backup.
type CreateBackupRequest struct {
	Name      string `json:"name,omitempty"`
	RequestID string `json:"requestId"`
}

// Accepted is the daemon's acknowledgement of an asynchronous creation.
type Accepted struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}
