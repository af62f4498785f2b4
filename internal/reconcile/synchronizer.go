package reconcile

import (
	"errors"
	"sync"
)

// ErrAlreadyTracked is returned by Track when a placeholder with the same id exists.
var ErrAlreadyTracked = errors.New("placeholder already tracked")

// Synchronizer holds the latest snapshot of one kind together with the
// placeholders of creations not yet visible in it. Every operation shows up
// as exactly one row: its placeholder until a snapshot contains it, the
// real entity afterwards.
type Synchronizer struct {
	kind         Kind
	mu           sync.RWMutex
	snapshot     []Entity
	placeholders []Entity
}

// NewSynchronizer creates an empty synchronizer for kind.
func NewSynchronizer(kind Kind) *Synchronizer {
	return &Synchronizer{kind: kind}
}

// Track adds a placeholder.
func (s *Synchronizer) Track(e Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(e.ID) >= 0 {
		return ErrAlreadyTracked
	}
	e = e.Clone()
	e.Kind = s.kind
	e.Placeholder = true
	if e.Status == "" {
		e.Status = StatusCreating
	}
	s.placeholders = append(s.placeholders, e)
	return nil
}

// Update applies fn to the placeholder with the given id.
// It reports false when no such placeholder exists.
func (s *Synchronizer) Update(id string, fn func(*Entity)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	fn(&s.placeholders[i])
	s.placeholders[i].ID = id
	s.placeholders[i].Kind = s.kind
	s.placeholders[i].Placeholder = true
	return true
}

// Remove drops a placeholder. It reports whether one was removed.
func (s *Synchronizer) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.placeholders = append(s.placeholders[:i], s.placeholders[i+1:]...)
	return true
}

// Placeholder returns a copy of the placeholder with the given id.
func (s *Synchronizer) Placeholder(id string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return Entity{}, false
	}
	return s.placeholders[i].Clone(), true
}

// Placeholders returns copies of all placeholders in creation order.
func (s *Synchronizer) Placeholders() []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entity, 0, len(s.placeholders))
	for _, p := range s.placeholders {
		out = append(out, p.Clone())
	}
	return out
}

// Apply installs a new authoritative snapshot. Placeholders whose entity
// appears in it are discarded and their ids returned so the caller can
// release their channels and persisted records.
func (s *Synchronizer) Apply(snapshot []Entity) []string {
	ids := make(map[string]struct{}, len(snapshot))
	entities := make([]Entity, 0, len(snapshot))
	for _, e := range snapshot {
		e = e.Clone()
		e.Kind = s.kind
		e.Placeholder = false
		entities = append(entities, e)
		ids[e.ID] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = entities

	var superseded []string
	kept := s.placeholders[:0]
	for _, p := range s.placeholders {
		if inSnapshot(p, ids) {
			superseded = append(superseded, p.ID)
			continue
		}
		kept = append(kept, p)
	}
	// Clear the tail so dropped placeholders can be collected.
	for i := len(kept); i < len(s.placeholders); i++ {
		s.placeholders[i] = Entity{}
	}
	s.placeholders = kept
	return superseded
}

// Rendered returns the snapshot followed by every placeholder not present in it.
func (s *Synchronizer) Rendered() []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make(map[string]struct{}, len(s.snapshot))
	out := make([]Entity, 0, len(s.snapshot)+len(s.placeholders))
	for _, e := range s.snapshot {
		ids[e.ID] = struct{}{}
		out = append(out, e.Clone())
	}
	for _, p := range s.placeholders {
		if inSnapshot(p, ids) {
			continue
		}
		out = append(out, p.Clone())
	}
	return out
}

func (s *Synchronizer) indexOf(id string) int {
	for i := range s.placeholders {
		if s.placeholders[i].ID == id {
			return i
		}
	}
	return -1
}

func inSnapshot(p Entity, ids map[string]struct{}) bool {
	if _, ok := ids[p.ID]; ok {
		return true
	}
	if p.ResolvedID != "" {
		if _, ok := ids[p.ResolvedID]; ok {
			return true
		}
	}
	return false
}
