package store

import (
	"context"
	"sync"

	"github.com/scopehal/triggersync"
)

// MockGroupStore is a configurable mock implementation of GroupStore for use
// in tests. Hooks override the default behaviour; without hooks it keeps
// layouts in memory so that save/load round trips work.
type MockGroupStore struct {
	mu      sync.RWMutex
	layouts map[triggersync.SessionName][]triggersync.GroupRecord

	// SaveGroupsFunc is called by SaveGroups if set.
	SaveGroupsFunc func(ctx context.Context, session triggersync.SessionName, groups []triggersync.GroupRecord) error

	// ListGroupsFunc is called by ListGroups if set.
	ListGroupsFunc func(ctx context.Context, session triggersync.SessionName) ([]triggersync.GroupRecord, error)

	// GetGroupFunc is called by GetGroup if set.
	GetGroupFunc func(ctx context.Context, session triggersync.SessionName, id string) (triggersync.GroupRecord, error)

	// DeleteGroupFunc is called by DeleteGroup if set.
	DeleteGroupFunc func(ctx context.Context, session triggersync.SessionName, id string) error

	// Call tracking
	SaveGroupsCalls  []SaveGroupsCall
	ListGroupsCalls  []ListGroupsCall
	GetGroupCalls    []GetGroupCall
	DeleteGroupCalls []DeleteGroupCall
}

// Call tracking structs
type SaveGroupsCall struct {
	Session triggersync.SessionName
	Groups  []triggersync.GroupRecord
}

type ListGroupsCall struct {
	Session triggersync.SessionName
}

type GetGroupCall struct {
	Session triggersync.SessionName
	ID      string
}

type DeleteGroupCall struct {
	Session triggersync.SessionName
	ID      string
}

// Compile-time check that MockGroupStore implements GroupStore.
var _ GroupStore = (*MockGroupStore)(nil)

// NewMockGroupStore creates a new mock group store.
func NewMockGroupStore() *MockGroupStore {
	return &MockGroupStore{
		layouts: make(map[triggersync.SessionName][]triggersync.GroupRecord),
	}
}

// SaveGroups implements GroupStore.
func (m *MockGroupStore) SaveGroups(ctx context.Context, session triggersync.SessionName, groups []triggersync.GroupRecord) error {
	m.mu.Lock()
	m.SaveGroupsCalls = append(m.SaveGroupsCalls, SaveGroupsCall{
		Session: session,
		Groups:  cloneAll(groups),
	})
	fn := m.SaveGroupsFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, session, groups)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.layouts[session] = cloneAll(groups)
	return nil
}

// ListGroups implements GroupStore.
func (m *MockGroupStore) ListGroups(ctx context.Context, session triggersync.SessionName) ([]triggersync.GroupRecord, error) {
	m.mu.Lock()
	m.ListGroupsCalls = append(m.ListGroupsCalls, ListGroupsCall{Session: session})
	fn := m.ListGroupsFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, session)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := cloneAll(m.layouts[session])
	if out == nil {
		out = []triggersync.GroupRecord{}
	}
	return out, nil
}

// GetGroup implements GroupStore.
func (m *MockGroupStore) GetGroup(ctx context.Context, session triggersync.SessionName, id string) (triggersync.GroupRecord, error) {
	m.mu.Lock()
	m.GetGroupCalls = append(m.GetGroupCalls, GetGroupCall{Session: session, ID: id})
	fn := m.GetGroupFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, session, id)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.layouts[session] {
		if rec.ID == id {
			return Clone(rec), nil
		}
	}
	return triggersync.GroupRecord{}, ErrGroupNotFound
}

// DeleteGroup implements GroupStore.
func (m *MockGroupStore) DeleteGroup(ctx context.Context, session triggersync.SessionName, id string) error {
	m.mu.Lock()
	m.DeleteGroupCalls = append(m.DeleteGroupCalls, DeleteGroupCall{Session: session, ID: id})
	fn := m.DeleteGroupFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, session, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	layout := m.layouts[session]
	for i, rec := range layout {
		if rec.ID == id {
			m.layouts[session] = append(layout[:i:i], layout[i+1:]...)
			return nil
		}
	}
	return ErrGroupNotFound
}

func cloneAll(groups []triggersync.GroupRecord) []triggersync.GroupRecord {
	if groups == nil {
		return nil
	}
	out := make([]triggersync.GroupRecord, len(groups))
	for i, g := range groups {
		out[i] = Clone(g)
	}
	return out
}
