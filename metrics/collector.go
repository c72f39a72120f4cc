package metrics

import "github.com/scopehal/triggersync"

// Collector wraps metrics and provides helper methods with the group label pre-filled.
// A nil *Collector is valid and records nothing.
type Collector struct {
	group string
}

// NewCollector creates a new Collector for the given group.
func NewCollector(group string) *Collector {
	return &Collector{group: group}
}

// Group returns the group label value.
func (c *Collector) Group() string {
	if c == nil {
		return ""
	}
	return c.group
}

// IncArms increments the arms counter.
func (c *Collector) IncArms(t triggersync.TriggerType) {
	if c == nil {
		return
	}
	ArmsTotal.WithLabelValues(c.group, string(t)).Inc()
}

// IncRearms increments the rearms counter.
func (c *Collector) IncRearms() {
	if c == nil {
		return
	}
	RearmsTotal.WithLabelValues(c.group).Inc()
}

// IncStops increments the stops counter.
func (c *Collector) IncStops() {
	if c == nil {
		return
	}
	StopsTotal.WithLabelValues(c.group).Inc()
}

// IncDownloads increments the downloads counter.
func (c *Collector) IncDownloads() {
	if c == nil {
		return
	}
	DownloadsTotal.WithLabelValues(c.group).Inc()
}

// IncTriggerTimeouts increments the trigger timeout counter.
func (c *Collector) IncTriggerTimeouts() {
	if c == nil {
		return
	}
	TriggerTimeoutsTotal.WithLabelValues(c.group).Inc()
}

// RecordHardwareErrors counts every failure in a group-wide pass.
// Download failures are additionally counted per instrument.
func (c *Collector) RecordHardwareErrors(errs *triggersync.HardwareErrors) {
	if c == nil || errs == nil {
		return
	}
	for _, f := range errs.Failures {
		HardwareErrorsTotal.WithLabelValues(c.group, f.Op).Inc()
		if f.Op == "download" {
			DownloadFailuresTotal.WithLabelValues(c.group, f.Instrument).Inc()
		}
	}
}

// SetInstruments sets the group instruments gauge.
func (c *Collector) SetInstruments(count int) {
	if c == nil {
		return
	}
	GroupInstruments.WithLabelValues(c.group).Set(float64(count))
}

// SetState sets the acquisition state gauge. Sets value to 1 for the given state, 0 for others.
func (c *Collector) SetState(state triggersync.AcquisitionState) {
	if c == nil {
		return
	}
	for _, s := range triggersync.AcquisitionStates {
		if s == state {
			AcquisitionState.WithLabelValues(c.group, string(s)).Set(1)
		} else {
			AcquisitionState.WithLabelValues(c.group, string(s)).Set(0)
		}
	}
}

// ObserveTriggerWait records the time from arm to all-members-ready.
func (c *Collector) ObserveTriggerWait(seconds float64) {
	if c == nil {
		return
	}
	TriggerWait.WithLabelValues(c.group).Observe(seconds)
}

// ObserveDownloadDuration records a download pass duration.
func (c *Collector) ObserveDownloadDuration(seconds float64) {
	if c == nil {
		return
	}
	DownloadDuration.WithLabelValues(c.group).Observe(seconds)
}

// Forget drops the gauge series of a deleted group. Counters and histograms are kept.
func (c *Collector) Forget() {
	if c == nil {
		return
	}
	GroupInstruments.DeleteLabelValues(c.group)
	for _, s := range triggersync.AcquisitionStates {
		AcquisitionState.DeleteLabelValues(c.group, string(s))
	}
}

// SetActiveGroups sets the active groups gauge for a session.
func SetActiveGroups(session triggersync.SessionName, count int) {
	ActiveGroups.WithLabelValues(string(session)).Set(float64(count))
}
