package triggersync

import "context"

// Instrument is the driver-facing contract for one physical oscilloscope.
// The trigger group calls these methods and nothing else. Implementations must
// not block waiting for a trigger; PollTriggerReady is called repeatedly instead.
type Instrument interface {
	// Name returns the identifier of the instrument, unique within a session.
	Name() string

	// Arm prepares the instrument to capture on its next trigger event.
	// mode tells the instrument whether to capture once or free-run on its own.
	Arm(ctx context.Context, mode TriggerType) error

	// Disarm cancels any pending capture.
	Disarm(ctx context.Context) error

	// PollTriggerReady reports whether captured data is available for download.
	PollTriggerReady(ctx context.Context) (bool, error)

	// Download pulls the captured data off the instrument.
	Download(ctx context.Context) (WaveformSet, error)
}

// PausableFilter is a downstream processing stage that must not consume data
// while an acquisition is in flight. Pause and Resume must be idempotent.
type PausableFilter interface {
	// Name returns the identifier of the filter, unique within a session.
	Name() string

	// Pause suspends processing.
	Pause()

	// Resume restarts processing.
	Resume()
}
