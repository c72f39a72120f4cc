package triggergroup

import (
	"context"
	"fmt"

	"github.com/scopehal/triggersync"
	"github.com/scopehal/triggersync/instrument"
)

// Serializable is implemented by objects that persist through a GroupRecord.
type Serializable interface {
	// Serialize captures the persistent state.
	Serialize() triggersync.GroupRecord

	// Deserialize restores the persistent state, resolving names through r.
	Deserialize(ctx context.Context, rec triggersync.GroupRecord, r Resolver) error
}

// Resolver looks up the live objects named in a GroupRecord.
type Resolver interface {
	// Instrument returns the handle registered under name,
	// or triggersync.ErrInstrumentNotFound.
	Instrument(name string) (*instrument.Handle, error)

	// Filter returns the filter registered under name,
	// or triggersync.ErrFilterNotFound.
	Filter(name string) (triggersync.PausableFilter, error)
}

// Compile-time check that Group implements Serializable.
var _ Serializable = (*Group)(nil)

// Serialize returns the persistent form of the group: the primary name, the
// secondary names in order, the filter names and the default flag.
// Trigger type and acquisition state are not included.
func (g *Group) Serialize() triggersync.GroupRecord {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec := triggersync.GroupRecord{
		ID:      g.config.ID,
		Default: g.isDefault,
	}
	if g.primary != nil {
		rec.Primary = g.primary.Name()
	}
	for _, s := range g.secondaries {
		rec.Secondaries = append(rec.Secondaries, s.Name())
	}
	for _, f := range g.filters {
		rec.Filters = append(rec.Filters, f.Name())
	}
	return rec
}

// Deserialize loads rec into an empty group. Every name is resolved before
// any membership changes, so a failed load leaves the group untouched.
func (g *Group) Deserialize(ctx context.Context, rec triggersync.GroupRecord, r Resolver) error {
	if !g.Empty() {
		return fmt.Errorf("failed to load group %s: group is not empty", g.config.ID)
	}

	var primary *instrument.Handle
	if rec.Primary != "" {
		h, err := r.Instrument(rec.Primary)
		if err != nil {
			return fmt.Errorf("failed to resolve primary %q: %w", rec.Primary, err)
		}
		primary = h
	}

	secondaries := make([]*instrument.Handle, 0, len(rec.Secondaries))
	for _, name := range rec.Secondaries {
		h, err := r.Instrument(name)
		if err != nil {
			return fmt.Errorf("failed to resolve secondary %q: %w", name, err)
		}
		secondaries = append(secondaries, h)
	}

	filters := make([]triggersync.PausableFilter, 0, len(rec.Filters))
	for _, name := range rec.Filters {
		f, err := r.Filter(name)
		if err != nil {
			return fmt.Errorf("failed to resolve filter %q: %w", name, err)
		}
		filters = append(filters, f)
	}

	if primary != nil {
		if err := g.MakePrimary(ctx, primary); err != nil {
			return fmt.Errorf("failed to restore primary %q: %w", rec.Primary, err)
		}
	}
	for i, s := range secondaries {
		if err := g.AddSecondary(ctx, s); err != nil {
			_ = g.Close(ctx)
			return fmt.Errorf("failed to restore secondary %q: %w", rec.Secondaries[i], err)
		}
	}
	for _, f := range filters {
		g.AddFilter(f)
	}
	g.SetDefault(rec.Default)
	return nil
}

// Restore creates a group from a record. cfg.ID is replaced by rec.ID.
func Restore(ctx context.Context, cfg Config, rec triggersync.GroupRecord, r Resolver) (*Group, error) {
	cfg.ID = rec.ID
	g, err := New(cfg, nil)
	if err != nil {
		return nil, err
	}
	if err := g.Deserialize(ctx, rec, r); err != nil {
		return nil, err
	}
	return g, nil
}
