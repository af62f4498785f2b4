package requests

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"navconsole/internal/progress"
)

// SQLiteStore keeps pending requests in the pending_requests table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps a migrated database handle.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Save upserts a pending request.
func (s *SQLiteStore) Save(ctx context.Context, r PendingRequest) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r = normalize(r)

	attrs, err := json.Marshal(r.Attributes)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}
	steps, err := json.Marshal(r.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode steps: %w", err)
	}
	if r.Attributes == nil {
		attrs = []byte("{}")
	}
	if r.Steps == nil {
		steps = []byte("[]")
	}

	query := `
		INSERT INTO pending_requests (request_id, kind, name, attributes, steps, status, message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id) DO UPDATE SET
			kind = excluded.kind,
			name = excluded.name,
			attributes = excluded.attributes,
			steps = excluded.steps,
			status = excluded.status,
			message = excluded.message,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		r.RequestID, r.Kind, r.Name, string(attrs), string(steps), string(r.Status), r.Message,
		r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save request %s: %w", r.RequestID, err)
	}
	return nil
}

// Remove deletes a pending request.
func (s *SQLiteStore) Remove(ctx context.Context, requestID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_requests WHERE request_id = ?`, requestID); err != nil {
		return fmt.Errorf("failed to remove request %s: %w", requestID, err)
	}
	return nil
}

// Get returns a single pending request.
func (s *SQLiteStore) Get(ctx context.Context, requestID string) (PendingRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT request_id, kind, name, attributes, steps, status, message, created_at, updated_at
		FROM pending_requests WHERE request_id = ?`, requestID)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return PendingRequest{}, fmt.Errorf("%w: %s", ErrNotFound, requestID)
	}
	return r, err
}

// LoadAll returns all pending requests, oldest first.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]PendingRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT request_id, kind, name, attributes, steps, status, message, created_at, updated_at
		FROM pending_requests
		ORDER BY created_at ASC, request_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending requests: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var out []PendingRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending requests: %w", err)
	}
	return out, nil
}

// Close is a no-op; the database handle is owned by the caller.
func (s *SQLiteStore) Close() error {
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (PendingRequest, error) {
	var (
		r         PendingRequest
		attrs     string
		steps     string
		status    string
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&r.RequestID, &r.Kind, &r.Name, &attrs, &steps, &status, &r.Message, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return PendingRequest{}, err
		}
		return PendingRequest{}, fmt.Errorf("failed to scan pending request: %w", err)
	}
	r.Status = Status(status)
	r.CreatedAt = createdAt.UTC()
	r.UpdatedAt = updatedAt.UTC()

	if err := json.Unmarshal([]byte(attrs), &r.Attributes); err != nil {
		return PendingRequest{}, fmt.Errorf("failed to decode attributes of %s: %w", r.RequestID, err)
	}
	if len(r.Attributes) == 0 {
		r.Attributes = nil
	}
	var decoded []progress.Step
	if err := json.Unmarshal([]byte(steps), &decoded); err != nil {
		return PendingRequest{}, fmt.Errorf("failed to decode steps of %s: %w", r.RequestID, err)
	}
	if len(decoded) > 0 {
		r.Steps = decoded
	}
	return r, nil
}
