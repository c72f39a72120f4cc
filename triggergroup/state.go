package triggergroup

import (
	"context"

	"github.com/scopehal/triggersync"
)

// transitions lists the acquisition states reachable from each state.
// Stop may return any state to idle.
var transitions = map[triggersync.AcquisitionState][]triggersync.AcquisitionState{
	triggersync.AcquisitionStateIdle: {
		triggersync.AcquisitionStateArmed,
	},
	triggersync.AcquisitionStateArmed: {
		triggersync.AcquisitionStateArmed,
		triggersync.AcquisitionStateWaveformReady,
		triggersync.AcquisitionStateIdle,
	},
	triggersync.AcquisitionStateWaveformReady: {
		triggersync.AcquisitionStateArmed,
		triggersync.AcquisitionStateDownloading,
		triggersync.AcquisitionStateIdle,
	},
	triggersync.AcquisitionStateDownloading: {
		triggersync.AcquisitionStateIdle,
	},
}

func canTransition(from, to triggersync.AcquisitionState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// transition moves the group to state to. Callers hold g.mu.
func (g *Group) transition(ctx context.Context, to triggersync.AcquisitionState) {
	from := g.state
	if from == to && to == triggersync.AcquisitionStateIdle {
		return
	}
	if !canTransition(from, to) && g.config.Logger != nil {
		g.config.Logger.Error(ctx, "unexpected acquisition state transition",
			"group", g.config.ID,
			"from", from,
			"to", to)
	}

	g.state = to
	g.config.Collector.SetState(to)

	if g.config.Logger != nil {
		g.config.Logger.Debug(ctx, "acquisition state changed",
			"group", g.config.ID,
			"from", from,
			"to", to)
	}
}

// updateFreeRun recomputes multiScopeFreeRun. Callers hold g.mu.
func (g *Group) updateFreeRun() {
	g.multiScopeFreeRun = g.running && len(g.secondaries) > 0 && g.triggerType.FreeRunning()
}

// shouldRearm is the guard on the idle -> armed rearm transition taken after a download.
func (g *Group) shouldRearm() bool {
	return g.multiScopeFreeRun && g.state == triggersync.AcquisitionStateIdle
}
