package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"navconsole/internal/logging"
	"navconsole/internal/reconcile"
)

// Attribute keys understood by the gateway.
const (
	AttrLoader   = "loader"
	AttrVersion  = "version"
	AttrRAM      = "ram"
	AttrServerID = "server_id"
	AttrPort     = "port"
	AttrSize     = "size"
)

// Gateway exposes the daemon as uniform per-kind create, list and cancel calls.
type Gateway struct {
	client *Client
}

// NewGateway wraps client.
func NewGateway(client *Client) *Gateway {
	return &Gateway{client: client}
}

// Create issues the creation call for kind.
func (g *Gateway) Create(ctx context.Context, kind reconcile.Kind, requestID, name string, attrs map[string]string) error {
	switch kind {
	case reconcile.KindServer:
		ram, err := strconv.Atoi(attrs[AttrRAM])
		if err != nil || ram <= 0 {
			return fmt.Errorf("invalid ram %q", attrs[AttrRAM])
		}
		_, err = g.client.CreateServer(ctx, CreateServerRequest{
			Name:      name,
			Version:   attrs[AttrVersion],
			Loader:    attrs[AttrLoader],
			RAM:       ram,
			RequestID: requestID,
		})
		return err
	case reconcile.KindBackup:
		_, err := g.client.CreateBackup(ctx, attrs[AttrServerID], CreateBackupRequest{
			Name:      name,
			RequestID: requestID,
		})
		return err
	default:
		return fmt.Errorf("unsupported kind %q", kind)
	}
}

// Snapshot lists the authoritative entities of kind.
func (g *Gateway) Snapshot(ctx context.Context, kind reconcile.Kind) ([]reconcile.Entity, error) {
	switch kind {
	case reconcile.KindServer:
		servers, err := g.client.ListServers(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]reconcile.Entity, 0, len(servers))
		for _, s := range servers {
			out = append(out, ServerEntity(s))
		}
		return out, nil
	case reconcile.KindBackup:
		backups, err := g.client.ListBackups(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]reconcile.Entity, 0, len(backups))
		for _, b := range backups {
			out = append(out, BackupEntity(b))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported kind %q", kind)
	}
}

// CancelCreation notifies the daemon that the user abandoned a creation.
func (g *Gateway) CancelCreation(ctx context.Context, kind reconcile.Kind, requestID string) error {
	switch kind {
	case reconcile.KindServer:
		err := g.client.CancelServerCreation(ctx, requestID)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			// Daemons without a server cancel route answer 404.
			logging.Debugf("Daemon cannot abort server creation %s", requestID)
			return nil
		}
		return err
	case reconcile.KindBackup:
		return g.client.CancelBackupCreation(ctx, requestID)
	default:
		return fmt.Errorf("unsupported kind %q", kind)
	}
}

// ServerEntity converts a listed server into a rendered row.
func ServerEntity(s Server) reconcile.Entity {
	return reconcile.Entity{
		ID:     s.ID,
		Kind:   reconcile.KindServer,
		Name:   s.Name,
		Status: s.Status,
		Attributes: map[string]string{
			AttrLoader:  s.Loader,
			AttrVersion: s.Version,
			AttrRAM:     strconv.Itoa(s.RAM),
			AttrPort:    strconv.Itoa(s.Port),
		},
		CreatedAt: s.CreatedAt,
	}
}

// BackupEntity converts a listed backup into a rendered row. Backups are
// identified by the request id they were created with when the daemon
// reports it, by file name otherwise.
func BackupEntity(b BackupInfo) reconcile.Entity {
	id := b.RequestID
	if id == "" {
		id = b.Name
	}
	return reconcile.Entity{
		ID:         id,
		Kind:       reconcile.KindBackup,
		Name:       b.Name,
		Status:     "AVAILABLE",
		Attributes: map[string]string{AttrSize: strconv.FormatInt(b.Size, 10)},
	}
}
