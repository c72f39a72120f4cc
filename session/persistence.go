package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/scopehal/triggersync"
	"github.com/scopehal/triggersync/instrument"
	"github.com/scopehal/triggersync/triggergroup"
)

// Save writes the current group layout to the configured store.
func (s *Session) Save(ctx context.Context) error {
	if s.config.Store == nil {
		return ErrNoStore
	}

	s.mu.Lock()
	records := make([]triggersync.GroupRecord, len(s.groups))
	for i, e := range s.groups {
		records[i] = e.group.Serialize()
	}
	s.mu.Unlock()

	if err := s.config.Store.SaveGroups(ctx, s.config.Name, records); err != nil {
		return fmt.Errorf("failed to save session %s: %w", s.config.Name, err)
	}

	if s.config.Logger != nil {
		s.config.Logger.Info(ctx, "session saved", "session", s.config.Name, "groups", len(records))
	}
	return nil
}

// Load replaces the current groups with the layout stored for this session.
// Instrument and filter names are resolved against the session, so every
// referenced instrument and filter must be registered first.
//
// Existing groups are stopped and closed before the stored layout is restored.
// If a stored group cannot be restored the groups restored so far are closed
// too and the session is left without groups.
func (s *Session) Load(ctx context.Context) error {
	if s.config.Store == nil {
		return ErrNoStore
	}

	records, err := s.config.Store.ListGroups(ctx, s.config.Name)
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", s.config.Name, err)
	}

	s.mu.Lock()
	old := s.groups
	s.groups = nil
	s.mu.Unlock()

	var errs []error
	for _, e := range old {
		if err := s.closeEntry(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to close current groups: %w", err)
	}

	for _, rec := range records {
		if err := s.restore(ctx, rec); err != nil {
			s.mu.Lock()
			restored := s.groups
			s.groups = nil
			s.mu.Unlock()
			for _, e := range restored {
				_ = s.closeEntry(ctx, e)
			}
			return fmt.Errorf("failed to restore group %s: %w", rec.ID, err)
		}
	}

	if s.config.Logger != nil {
		s.config.Logger.Info(ctx, "session loaded", "session", s.config.Name, "groups", len(records))
	}
	return nil
}

func (s *Session) restore(ctx context.Context, rec triggersync.GroupRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.find(rec.ID) != nil {
		return fmt.Errorf("duplicate group ID %s", rec.ID)
	}

	_, err := s.newEntry(func(cfg triggergroup.Config) (*triggergroup.Group, error) {
		return triggergroup.Restore(ctx, cfg, rec, s.resolver())
	}, rec.ID)
	return err
}

// lockedResolver resolves names while the caller already holds s.mu.
type lockedResolver struct {
	s *Session
}

func (s *Session) resolver() lockedResolver {
	return lockedResolver{s: s}
}

func (r lockedResolver) Instrument(name string) (*instrument.Handle, error) {
	h, ok := r.s.instruments[name]
	if !ok {
		return nil, fmt.Errorf("instrument %q: %w", name, triggersync.ErrInstrumentNotFound)
	}
	return h, nil
}

func (r lockedResolver) Filter(name string) (triggersync.PausableFilter, error) {
	f, err := r.s.filters.Get(name)
	if err != nil {
		return nil, fmt.Errorf("filter %q: %w", name, err)
	}
	return f, nil
}
