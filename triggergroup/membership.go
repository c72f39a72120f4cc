package triggergroup

import (
	"context"

	"github.com/scopehal/triggersync"
	"github.com/scopehal/triggersync/instrument"
)

// MakePrimary makes scope the trigger reference of the group.
//
// scope may already be a secondary, or be new to the group. A previous primary
// is appended to the secondaries. Waveform state on every affected instrument
// is detached, since the roles change what the trigger cabling means.
//
// Returns ErrMemberOfOtherGroup if scope belongs to another group and
// ErrAcquisitionInProgress if the group is not idle.
func (g *Group) MakePrimary(ctx context.Context, scope *instrument.Handle) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if scope == nil {
		return triggersync.ErrNotMember
	}
	if g.state != triggersync.AcquisitionStateIdle {
		return triggersync.ErrAcquisitionInProgress
	}
	if g.primary == scope {
		return nil
	}

	if idx := g.secondaryIndex(scope); idx >= 0 {
		g.secondaries = append(g.secondaries[:idx], g.secondaries[idx+1:]...)
	} else if err := g.join(scope); err != nil {
		return err
	}

	old := g.primary
	g.primary = scope
	g.detachAllWaveforms(scope)
	if old != nil {
		g.detachAllWaveforms(old)
		g.secondaries = append(g.secondaries, old)
	}
	g.updateFreeRun()
	g.config.Collector.SetInstruments(g.instrumentCount())

	if g.config.Logger != nil {
		oldName := ""
		if old != nil {
			oldName = old.Name()
		}
		g.config.Logger.Info(ctx, "primary changed",
			"group", g.config.ID,
			"primary", scope.Name(),
			"previousPrimary", oldName)
	}
	return nil
}

// AddSecondary appends scope to the secondary list.
//
// Returns ErrAlreadyMember if scope already holds a role in this group,
// ErrMemberOfOtherGroup if it belongs to another group, and
// ErrAcquisitionInProgress if the group is not idle.
func (g *Group) AddSecondary(ctx context.Context, scope *instrument.Handle) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if scope == nil {
		return triggersync.ErrNotMember
	}
	if g.primary == scope || g.secondaryIndex(scope) >= 0 {
		return triggersync.ErrAlreadyMember
	}
	if g.state != triggersync.AcquisitionStateIdle {
		return triggersync.ErrAcquisitionInProgress
	}
	if err := g.join(scope); err != nil {
		return err
	}

	g.detachAllWaveforms(scope)
	g.secondaries = append(g.secondaries, scope)
	g.updateFreeRun()
	g.config.Collector.SetInstruments(g.instrumentCount())

	if g.config.Logger != nil {
		g.config.Logger.Info(ctx, "secondary added",
			"group", g.config.ID,
			"secondary", scope.Name(),
			"secondaries", len(g.secondaries))
	}
	return nil
}

// RemoveScope removes scope from whichever role it holds.
//
// Removing the primary leaves the group without one; secondaries are not
// promoted, so the caller must call MakePrimary before arming again.
// If an acquisition is in flight the removed instrument is disarmed; a disarm
// failure is returned as *HardwareErrors after the removal has completed.
//
// Returns ErrNotMember if scope holds no role in the group.
func (g *Group) RemoveScope(ctx context.Context, scope *instrument.Handle) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch idx := g.secondaryIndex(scope); {
	case scope != nil && g.primary == scope:
		g.primary = nil
	case idx >= 0:
		g.secondaries = append(g.secondaries[:idx], g.secondaries[idx+1:]...)
	default:
		return triggersync.ErrNotMember
	}
	g.detachAllWaveforms(scope)

	errs := &triggersync.HardwareErrors{Group: g.config.ID, Op: "disarm"}
	if g.state != triggersync.AcquisitionStateIdle {
		errs.Add(scope.Name(), "disarm", scope.Disarm(ctx))
		if !g.hasScopes() {
			g.resumeFilters()
			g.running = false
			g.transition(ctx, triggersync.AcquisitionStateIdle)
		}
	}

	g.leave(ctx, scope)
	g.updateFreeRun()
	g.config.Collector.SetInstruments(g.instrumentCount())
	g.config.Collector.RecordHardwareErrors(errs)

	if g.config.Logger != nil {
		g.config.Logger.Info(ctx, "instrument removed",
			"group", g.config.ID,
			"instrument", scope.Name(),
			"hasPrimary", g.primary != nil,
			"secondaries", len(g.secondaries))
	}
	return errs.ErrOrNil()
}

// AddFilter associates a pausable filter with the group. The group only
// borrows the filter. Adding a filter twice is a no-op.
func (g *Group) AddFilter(f triggersync.PausableFilter) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if f == nil || g.filterIndex(f) >= 0 {
		return
	}
	g.filters = append(g.filters, f)
	if g.state != triggersync.AcquisitionStateIdle {
		f.Pause()
	}
}

// RemoveFilter drops the group's reference to f. Removing an absent filter is a no-op.
// A filter removed mid-acquisition is resumed so it is not left paused.
func (g *Group) RemoveFilter(f triggersync.PausableFilter) {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx := g.filterIndex(f)
	if idx < 0 {
		return
	}
	g.filters = append(g.filters[:idx], g.filters[idx+1:]...)
	if g.state != triggersync.AcquisitionStateIdle {
		f.Resume()
	}
}

// Close stops the group and drops every reference it holds: instruments are
// unclaimed and released, filters are forgotten. The group is empty afterwards.
// The stop result is returned; teardown happens regardless.
func (g *Group) Close(ctx context.Context) error {
	err := g.Stop(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, scope := range g.members() {
		g.leave(ctx, scope)
	}
	g.primary = nil
	g.secondaries = nil
	g.filters = nil
	g.updateFreeRun()
	g.config.Collector.SetInstruments(0)

	if g.config.Logger != nil {
		g.config.Logger.Info(ctx, "group closed", "group", g.config.ID)
	}
	return err
}

// join claims scope for this group and takes a reference to it.
func (g *Group) join(scope *instrument.Handle) error {
	if err := scope.Claim(g.config.ID); err != nil {
		return err
	}
	scope.Acquire()
	return nil
}

// leave detaches waveform state, gives up the claim and drops the group's reference.
func (g *Group) leave(ctx context.Context, scope *instrument.Handle) {
	g.detachAllWaveforms(scope)
	scope.Unclaim(g.config.ID)
	if err := scope.Release(); err != nil && g.config.Logger != nil {
		g.config.Logger.Error(ctx, "failed to release instrument",
			"group", g.config.ID,
			"instrument", scope.Name(),
			"error", err)
	}
}
