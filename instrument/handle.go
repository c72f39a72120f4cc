package instrument

import (
	"context"
	"io"
	"sync"

	"github.com/scopehal/triggersync"
)

// Handle is a shared, reference-counted reference to one instrument.
// The session and the trigger group that uses the instrument each hold a
// reference; the driver is closed when the last holder releases it.
//
// Handle also carries the per-instrument waveform state and the ID of the
// group currently claiming the instrument, so that an instrument can belong
// to at most one group at a time.
type Handle struct {
	inst triggersync.Instrument

	mu       sync.Mutex
	refs     int
	owner    string
	waveform *triggersync.WaveformSet
}

// NewHandle wraps inst in a handle holding one reference for the caller.
func NewHandle(inst triggersync.Instrument) *Handle {
	return &Handle{
		inst: inst,
		refs: 1,
	}
}

// Name returns the name of the underlying instrument.
func (h *Handle) Name() string {
	return h.inst.Name()
}

// Instrument returns the underlying driver.
func (h *Handle) Instrument() triggersync.Instrument {
	return h.inst
}

// Acquire adds a reference and returns h for convenience.
func (h *Handle) Acquire() *Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refs++
	return h
}

// Release drops one reference. When the last reference is dropped the driver
// is closed if it implements io.Closer.
// Returns ErrHandleReleased if no references remain.
func (h *Handle) Release() error {
	h.mu.Lock()
	if h.refs == 0 {
		h.mu.Unlock()
		return triggersync.ErrHandleReleased
	}
	h.refs--
	last := h.refs == 0
	if last {
		h.waveform = nil
		h.owner = ""
	}
	h.mu.Unlock()

	if last {
		if c, ok := h.inst.(io.Closer); ok {
			return c.Close()
		}
	}
	return nil
}

// Refs returns the current reference count.
func (h *Handle) Refs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refs
}

// Claim marks the instrument as belonging to the given group.
// Claiming an instrument already owned by the same group is a no-op.
// Returns ErrMemberOfOtherGroup if another group owns it.
func (h *Handle) Claim(groupID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.owner != "" && h.owner != groupID {
		return triggersync.ErrMemberOfOtherGroup
	}
	h.owner = groupID
	return nil
}

// Unclaim clears the ownership mark if it is held by groupID.
func (h *Handle) Unclaim(groupID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.owner == groupID {
		h.owner = ""
	}
}

// Owner returns the ID of the group claiming the instrument, or "" if none.
func (h *Handle) Owner() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.owner
}

// AttachWaveform stores freshly downloaded data, replacing anything not yet consumed.
func (h *Handle) AttachWaveform(ws triggersync.WaveformSet) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.waveform = &ws
}

// Waveform returns the attached waveform set without consuming it.
func (h *Handle) Waveform() (triggersync.WaveformSet, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.waveform == nil {
		return triggersync.WaveformSet{}, false
	}
	return *h.waveform, true
}

// ConsumeWaveform returns the attached waveform set and clears it.
func (h *Handle) ConsumeWaveform() (triggersync.WaveformSet, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.waveform == nil {
		return triggersync.WaveformSet{}, false
	}
	ws := *h.waveform
	h.waveform = nil
	return ws, true
}

// DetachWaveform drops any captured-but-not-yet-consumed data.
func (h *Handle) DetachWaveform() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.waveform = nil
}

// Arm forwards to the driver.
func (h *Handle) Arm(ctx context.Context, mode triggersync.TriggerType) error {
	return h.inst.Arm(ctx, mode)
}

// Disarm forwards to the driver.
func (h *Handle) Disarm(ctx context.Context) error {
	return h.inst.Disarm(ctx)
}

// PollTriggerReady forwards to the driver.
func (h *Handle) PollTriggerReady(ctx context.Context) (bool, error) {
	return h.inst.PollTriggerReady(ctx)
}

// Download forwards to the driver.
func (h *Handle) Download(ctx context.Context) (triggersync.WaveformSet, error) {
	return h.inst.Download(ctx)
}
