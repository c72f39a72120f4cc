package memory

import (
	"context"
	"sync"

	"github.com/scopehal/triggersync"
	"github.com/scopehal/triggersync/store"
)

// Store is an in-memory implementation of GroupStore for testing and for
// sessions that do not need their layout to outlive the process.
type Store struct {
	mu      sync.RWMutex
	layouts map[triggersync.SessionName][]triggersync.GroupRecord // session -> ordered layout
}

// Compile-time check that Store implements GroupStore.
var _ store.GroupStore = (*Store)(nil)

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		layouts: make(map[triggersync.SessionName][]triggersync.GroupRecord),
	}
}

// SaveGroups replaces the layout of a session.
func (s *Store) SaveGroups(ctx context.Context, session triggersync.SessionName, groups []triggersync.GroupRecord) error {
	if err := store.Validate(groups); err != nil {
		return err
	}

	layout := make([]triggersync.GroupRecord, len(groups))
	for i, g := range groups {
		layout[i] = store.Clone(g)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(layout) == 0 {
		delete(s.layouts, session)
		return nil
	}
	s.layouts[session] = layout
	return nil
}

// ListGroups returns the layout of a session in saved order.
func (s *Store) ListGroups(ctx context.Context, session triggersync.SessionName) ([]triggersync.GroupRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	layout := s.layouts[session]
	out := make([]triggersync.GroupRecord, len(layout))
	for i, g := range layout {
		out[i] = store.Clone(g)
	}
	return out, nil
}

// GetGroup returns one group of a session.
// Returns store.ErrGroupNotFound if the group does not exist.
func (s *Store) GetGroup(ctx context.Context, session triggersync.SessionName, id string) (triggersync.GroupRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, g := range s.layouts[session] {
		if g.ID == id {
			return store.Clone(g), nil
		}
	}
	return triggersync.GroupRecord{}, store.ErrGroupNotFound
}

// DeleteGroup removes one group of a session.
// Returns store.ErrGroupNotFound if the group does not exist.
func (s *Store) DeleteGroup(ctx context.Context, session triggersync.SessionName, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	layout := s.layouts[session]
	for i, g := range layout {
		if g.ID != id {
			continue
		}
		rest := append(layout[:i:i], layout[i+1:]...)
		if len(rest) == 0 {
			delete(s.layouts, session)
		} else {
			s.layouts[session] = rest
		}
		return nil
	}
	return store.ErrGroupNotFound
}
