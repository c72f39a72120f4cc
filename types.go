package triggersync

import "time"

// SessionName identifies a saved arrangement of trigger groups.
// Different sessions are persisted independently.
type SessionName string

// TriggerType is the arming mode requested for the next acquisition cycle.
type TriggerType string

const (
	// TriggerTypeSingle captures exactly one waveform and then stops.
	TriggerTypeSingle TriggerType = "single"

	// TriggerTypeForced captures one waveform immediately without waiting for a trigger event.
	TriggerTypeForced TriggerType = "forced"

	// TriggerTypeAuto free-runs, triggering automatically if no event arrives in time.
	TriggerTypeAuto TriggerType = "auto"

	// TriggerTypeNormal free-runs, capturing on every trigger event.
	TriggerTypeNormal TriggerType = "normal"
)

// FreeRunning reports whether the trigger type rearms after each completed acquisition.
func (t TriggerType) FreeRunning() bool {
	return t == TriggerTypeAuto || t == TriggerTypeNormal
}

// Valid reports whether t is one of the known trigger types.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerTypeSingle, TriggerTypeForced, TriggerTypeAuto, TriggerTypeNormal:
		return true
	}
	return false
}

// ParseTriggerType converts a user supplied name into a TriggerType.
func ParseTriggerType(s string) (TriggerType, error) {
	t := TriggerType(s)
	if !t.Valid() {
		return "", &InvalidTriggerTypeError{Value: s}
	}
	return t, nil
}

// AcquisitionState represents where a trigger group is in its acquisition cycle.
type AcquisitionState string

const (
	// AcquisitionStateIdle indicates no acquisition is pending.
	AcquisitionStateIdle AcquisitionState = "idle"

	// AcquisitionStateArmed indicates arm was issued and the group is waiting for a hardware trigger.
	AcquisitionStateArmed AcquisitionState = "armed"

	// AcquisitionStateWaveformReady indicates every member reported captured data.
	AcquisitionStateWaveformReady AcquisitionState = "waveform_ready"

	// AcquisitionStateDownloading indicates sample data is being pulled from the members.
	AcquisitionStateDownloading AcquisitionState = "downloading"
)

// AcquisitionStates lists every state, in cycle order.
var AcquisitionStates = []AcquisitionState{
	AcquisitionStateIdle,
	AcquisitionStateArmed,
	AcquisitionStateWaveformReady,
	AcquisitionStateDownloading,
}

// Waveform holds the samples captured on one channel.
type Waveform struct {
	// Channel is the channel name on the instrument (e.g. "CH1").
	Channel string

	// SampleInterval is the time between consecutive samples.
	SampleInterval time.Duration

	// Samples are the captured values in acquisition order.
	Samples []float64
}

// WaveformSet is the data downloaded from one instrument for one trigger event.
type WaveformSet struct {
	// Instrument is the name of the instrument the data came from.
	Instrument string

	// TriggerTime is when the instrument saw its trigger.
	TriggerTime time.Time

	// Waveforms holds one entry per enabled channel.
	Waveforms []Waveform
}

// GroupRecord is the persisted form of a trigger group.
// Trigger type and live acquisition state are runtime-only and not part of it.
type GroupRecord struct {
	// ID is the unique identifier of the group.
	ID string `yaml:"id"`

	// Primary is the name of the primary instrument, empty if the group has none.
	Primary string `yaml:"primary,omitempty"`

	// Secondaries are the names of the secondary instruments in cable-chain order.
	Secondaries []string `yaml:"secondaries,omitempty"`

	// Filters are the names of the pausable filters associated with the group.
	Filters []string `yaml:"filters,omitempty"`

	// Default marks the group as activated by a start/stop request without an explicit target.
	Default bool `yaml:"default"`
}
