package requests

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"navconsole/internal/logging"
)

const fileExt = ".yaml"

// FileStore keeps one YAML document per pending request in a directory.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the state directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// requestPath returns the file holding a request.
// Path separators in ids are replaced so every record stays in dir.
func (s *FileStore) requestPath(requestID string) string {
	safe := strings.NewReplacer("/", "-", "\\", "-", "..", "-").Replace(requestID)
	return filepath.Join(s.dir, safe+fileExt)
}

// Save writes the request atomically.
func (s *FileStore) Save(_ context.Context, r PendingRequest) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r = normalize(r)

	data, err := yaml.Marshal(&r)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".request-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write request file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close request file: %w", err)
	}
	if err := os.Rename(tmpName, s.requestPath(r.RequestID)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write request file: %w", err)
	}
	return nil
}

// Remove deletes the request file.
func (s *FileStore) Remove(_ context.Context, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.requestPath(requestID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove request %s: %w", requestID, err)
	}
	return nil
}

// Get reads a single request.
func (s *FileStore) Get(_ context.Context, requestID string) (PendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.requestPath(requestID))
	if err != nil {
		if os.IsNotExist(err) {
			return PendingRequest{}, fmt.Errorf("%w: %s", ErrNotFound, requestID)
		}
		return PendingRequest{}, fmt.Errorf("failed to read request file: %w", err)
	}
	var r PendingRequest
	if err := yaml.Unmarshal(data, &r); err != nil {
		return PendingRequest{}, fmt.Errorf("failed to parse request file: %w", err)
	}
	return r, nil
}

// LoadAll reads every request in the directory, oldest first.
// Unreadable files are skipped with a warning.
func (s *FileStore) LoadAll(_ context.Context) ([]PendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	var out []PendingRequest
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != fileExt || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			logging.Warnf("Skipping unreadable request file %s: %v", path, err)
			continue
		}
		var r PendingRequest
		if err := yaml.Unmarshal(data, &r); err != nil {
			logging.Warnf("Skipping invalid request file %s: %v", path, err)
			continue
		}
		if err := r.Validate(); err != nil {
			logging.Warnf("Skipping invalid request file %s: %v", path, err)
			continue
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].RequestID < out[j].RequestID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}
