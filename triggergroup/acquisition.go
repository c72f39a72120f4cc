package triggergroup

import (
	"context"
	"time"

	"github.com/scopehal/triggersync"
	"github.com/scopehal/triggersync/instrument"
)

// Arm starts an acquisition cycle with the given trigger type.
//
// Secondaries are armed before the primary so that none of them misses the
// primary's trigger pulse. Every filter is paused until the data has been
// downloaded or the group is stopped. Arming an armed group starts a fresh cycle.
//
// Per-instrument failures do not stop the remaining instruments from being
// armed; they are returned together as *HardwareErrors and the group is left
// armed so the caller can decide whether to Stop.
//
// Returns ErrNoScopes for a group without instruments and ErrNoPrimary for a
// group whose primary was removed; neither changes any state.
func (g *Group) Arm(ctx context.Context, t triggersync.TriggerType) error {
	if !t.Valid() {
		return &triggersync.InvalidTriggerTypeError{Value: string(t)}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.arm(ctx, t)
}

func (g *Group) arm(ctx context.Context, t triggersync.TriggerType) error {
	if !g.hasScopes() {
		return triggersync.ErrNoScopes
	}
	if g.primary == nil {
		return triggersync.ErrNoPrimary
	}

	g.triggerType = t
	g.running = true
	g.updateFreeRun()
	g.pauseFilters()

	errs := &triggersync.HardwareErrors{Group: g.config.ID, Op: "arm"}
	for _, s := range g.secondaries {
		errs.Add(s.Name(), "arm", s.Arm(ctx, triggersync.TriggerTypeSingle))
	}
	errs.Add(g.primary.Name(), "arm", g.primary.Arm(ctx, g.primaryMode()))

	g.armedAt = g.config.Now()
	g.transition(ctx, triggersync.AcquisitionStateArmed)
	g.config.Collector.IncArms(t)
	g.config.Collector.RecordHardwareErrors(errs)

	if g.config.Logger != nil {
		g.config.Logger.Info(ctx, "group armed",
			"group", g.config.ID,
			"triggerType", t,
			"instruments", g.instrumentCount(),
			"multiScopeFreeRun", g.multiScopeFreeRun)
		for _, f := range errs.Failures {
			g.config.Logger.Error(ctx, "failed to arm instrument", "group", g.config.ID, "instrument", f.Instrument, "error", f.Err)
		}
	}
	return errs.ErrOrNil()
}

// primaryMode is the arm mode sent to the primary. With secondaries present the
// group drives free-running itself, so the primary captures one event per cycle.
func (g *Group) primaryMode() triggersync.TriggerType {
	if len(g.secondaries) > 0 && g.triggerType.FreeRunning() {
		return triggersync.TriggerTypeSingle
	}
	return g.triggerType
}

// Stop disarms every member, resumes every filter and returns the group to idle.
// It is safe to call in any state. Disarm failures are returned as *HardwareErrors
// after every member has been visited.
func (g *Group) Stop(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	errs := &triggersync.HardwareErrors{Group: g.config.ID, Op: "stop"}
	for _, m := range g.members() {
		errs.Add(m.Name(), "disarm", m.Disarm(ctx))
	}

	g.resumeFilters()
	g.running = false
	g.updateFreeRun()
	g.armedAt = time.Time{}
	g.transition(ctx, triggersync.AcquisitionStateIdle)
	g.config.Collector.IncStops()
	g.config.Collector.RecordHardwareErrors(errs)

	if g.config.Logger != nil {
		g.config.Logger.Info(ctx, "group stopped", "group", g.config.ID)
		for _, f := range errs.Failures {
			g.config.Logger.Error(ctx, "failed to disarm instrument", "group", g.config.ID, "instrument", f.Instrument, "error", f.Err)
		}
	}
	return errs.ErrOrNil()
}

// CheckForPendingWaveforms polls the members for captured data without blocking.
//
// The primary is asked first since it decides whether the group has triggered
// at all. The result is true only once every member reports data; the group
// then moves to waveform-ready. Poll failures count as not ready and are
// returned as *HardwareErrors. An idle group always reports false.
func (g *Group) CheckForPendingWaveforms(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case triggersync.AcquisitionStateWaveformReady:
		return true, nil
	case triggersync.AcquisitionStateArmed:
	default:
		return false, nil
	}

	errs := &triggersync.HardwareErrors{Group: g.config.ID, Op: "poll"}
	if g.primary != nil {
		ready, err := g.primary.PollTriggerReady(ctx)
		if err != nil {
			errs.Add(g.primary.Name(), "poll", err)
			g.config.Collector.RecordHardwareErrors(errs)
			return false, errs
		}
		if !ready {
			return false, nil
		}
	}

	allReady := true
	for _, s := range g.secondaries {
		ready, err := s.PollTriggerReady(ctx)
		errs.Add(s.Name(), "poll", err)
		if err != nil || !ready {
			allReady = false
		}
	}
	if err := errs.ErrOrNil(); err != nil {
		g.config.Collector.RecordHardwareErrors(errs)
		return false, err
	}
	if !allReady {
		return false, nil
	}

	g.transition(ctx, triggersync.AcquisitionStateWaveformReady)
	if !g.armedAt.IsZero() {
		g.config.Collector.ObserveTriggerWait(g.config.Now().Sub(g.armedAt).Seconds())
	}
	return true, nil
}

// DownloadWaveforms pulls the captured data from every member, primary first,
// and attaches it to each instrument's waveform state. Filters are resumed so
// they can process the new data and the group returns to idle.
//
// A failing instrument does not stop the others from being downloaded; its
// previous waveform state is detached and the failures are returned as
// *HardwareErrors once the pass is complete.
//
// Returns ErrNotReady unless the last CheckForPendingWaveforms returned true.
func (g *Group) DownloadWaveforms(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != triggersync.AcquisitionStateWaveformReady {
		return triggersync.ErrNotReady
	}

	g.transition(ctx, triggersync.AcquisitionStateDownloading)
	start := g.config.Now()

	errs := &triggersync.HardwareErrors{Group: g.config.ID, Op: "download"}
	members := g.members()
	for _, m := range members {
		ws, err := m.Download(ctx)
		if err != nil {
			g.detachAllWaveforms(m)
			errs.Add(m.Name(), "download", err)
			continue
		}
		if ws.Instrument == "" {
			ws.Instrument = m.Name()
		}
		m.AttachWaveform(ws)
	}

	g.resumeFilters()
	g.armedAt = time.Time{}
	g.transition(ctx, triggersync.AcquisitionStateIdle)
	g.config.Collector.IncDownloads()
	g.config.Collector.ObserveDownloadDuration(g.config.Now().Sub(start).Seconds())
	g.config.Collector.RecordHardwareErrors(errs)

	if g.config.Logger != nil {
		g.config.Logger.Info(ctx, "waveforms downloaded",
			"group", g.config.ID,
			"instruments", len(members),
			"failures", len(errs.Failures))
		for _, f := range errs.Failures {
			g.config.Logger.Error(ctx, "failed to download waveform", "group", g.config.ID, "instrument", f.Instrument, "error", f.Err)
		}
	}
	return errs.ErrOrNil()
}

// RearmIfMultiScope starts the next cycle of a free-running group with more
// than one instrument, using the current trigger type. It reports whether a
// rearm was issued. Single-instrument groups are left to the instrument's own
// free-run and this is a no-op for them, as it is for Single and Forced cycles.
//
// A group that lost its primary during the cycle cannot be rearmed: it stays
// idle, ErrNoPrimary (or ErrNoScopes) is returned and no rearm is reported.
func (g *Group) RearmIfMultiScope(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.shouldRearm() {
		return false, nil
	}
	if !g.hasScopes() {
		return false, triggersync.ErrNoScopes
	}
	if g.primary == nil {
		return false, triggersync.ErrNoPrimary
	}

	g.config.Collector.IncRearms()
	if g.config.Logger != nil {
		g.config.Logger.Debug(ctx, "rearming multi-instrument group", "group", g.config.ID, "triggerType", g.triggerType)
	}
	return true, g.arm(ctx, g.triggerType)
}

// AwaitNextTrigger returns a running single-instrument free-run group to armed
// after a download without issuing a hardware arm, since the instrument
// rearms itself. It reports whether the transition was taken.
func (g *Group) AwaitNextTrigger(ctx context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != triggersync.AcquisitionStateIdle || !g.running || !g.triggerType.FreeRunning() {
		return false
	}
	if g.primary == nil || len(g.secondaries) > 0 {
		return false
	}

	g.pauseFilters()
	g.armedAt = g.config.Now()
	g.transition(ctx, triggersync.AcquisitionStateArmed)
	return true
}

// Waveforms returns the waveform sets currently attached to the members, keyed
// by instrument name. The data is left attached.
func (g *Group) Waveforms() map[string]triggersync.WaveformSet {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[string]triggersync.WaveformSet)
	for _, m := range g.members() {
		if ws, ok := m.Waveform(); ok {
			out[m.Name()] = ws
		}
	}
	return out
}

// detachAllWaveforms drops data captured under the previous group arrangement.
func (g *Group) detachAllWaveforms(scope *instrument.Handle) {
	scope.DetachWaveform()
}

func (g *Group) pauseFilters() {
	for _, f := range g.filters {
		f.Pause()
	}
}

func (g *Group) resumeFilters() {
	for _, f := range g.filters {
		f.Resume()
	}
}
