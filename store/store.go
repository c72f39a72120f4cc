// Package store defines persistence for trigger group layouts.
//
// A layout is the ordered list of GroupRecords belonging to one session.
// Only composition is stored: trigger type and acquisition state are runtime
// properties and always start fresh.
package store

import (
	"context"

	"github.com/scopehal/triggersync"
)

// GroupStore provides persistence for trigger group layouts.
// Implementations must be safe for concurrent access.
type GroupStore interface {
	// SaveGroups replaces the stored layout of a session with groups.
	// Record order is preserved by ListGroups.
	SaveGroups(ctx context.Context, session triggersync.SessionName, groups []triggersync.GroupRecord) error

	// ListGroups returns the stored layout of a session in saved order.
	// Returns an empty slice if nothing is stored for the session.
	ListGroups(ctx context.Context, session triggersync.SessionName) ([]triggersync.GroupRecord, error)

	// GetGroup returns one stored group.
	// Returns ErrGroupNotFound if the group does not exist.
	GetGroup(ctx context.Context, session triggersync.SessionName, id string) (triggersync.GroupRecord, error)

	// DeleteGroup removes one stored group, keeping the order of the rest.
	// Returns ErrGroupNotFound if the group does not exist.
	DeleteGroup(ctx context.Context, session triggersync.SessionName, id string) error
}

// Validate checks a layout before it is stored: every group needs an ID, IDs
// are unique within the session, and no instrument appears in two roles.
func Validate(groups []triggersync.GroupRecord) error {
	ids := make(map[string]bool, len(groups))
	instruments := make(map[string]string)

	claim := func(name, groupID string) error {
		if other, ok := instruments[name]; ok {
			return &DuplicateInstrumentError{Instrument: name, Group: groupID, OtherGroup: other}
		}
		instruments[name] = groupID
		return nil
	}

	for _, g := range groups {
		if g.ID == "" {
			return ErrMissingGroupID
		}
		if ids[g.ID] {
			return &DuplicateGroupError{ID: g.ID}
		}
		ids[g.ID] = true

		if g.Primary != "" {
			if err := claim(g.Primary, g.ID); err != nil {
				return err
			}
		}
		for _, s := range g.Secondaries {
			if err := claim(s, g.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// Clone returns a deep copy of a record so stored data cannot be mutated by callers.
func Clone(rec triggersync.GroupRecord) triggersync.GroupRecord {
	out := rec
	if rec.Secondaries != nil {
		out.Secondaries = append([]string(nil), rec.Secondaries...)
	}
	if rec.Filters != nil {
		out.Filters = append([]string(nil), rec.Filters...)
	}
	return out
}
