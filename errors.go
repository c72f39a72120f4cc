package triggersync

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAlreadyMember indicates the instrument already holds a role in this group.
	ErrAlreadyMember = errors.New("instrument already a member of the group")

	// ErrNotMember indicates the instrument holds no role in this group.
	ErrNotMember = errors.New("instrument not a member of the group")

	// ErrMemberOfOtherGroup indicates the instrument belongs to a different group.
	// The caller must remove it from that group first.
	ErrMemberOfOtherGroup = errors.New("instrument is a member of another group")

	// ErrNoScopes indicates the group has neither a primary nor secondaries.
	ErrNoScopes = errors.New("group has no instruments")

	// ErrNoPrimary indicates the group has secondaries but no primary to time the trigger.
	ErrNoPrimary = errors.New("group has no primary instrument")

	// ErrNotReady indicates a download was requested before all members reported data.
	ErrNotReady = errors.New("waveforms not ready")

	// ErrAcquisitionInProgress indicates the operation is not allowed until the group is idle.
	ErrAcquisitionInProgress = errors.New("acquisition in progress")

	// ErrHandleReleased indicates an instrument handle was released more times than acquired.
	ErrHandleReleased = errors.New("instrument handle already released")

	// ErrGroupNotFound indicates no group exists with the given ID.
	ErrGroupNotFound = errors.New("trigger group not found")

	// ErrInstrumentNotFound indicates no instrument is registered under the given name.
	ErrInstrumentNotFound = errors.New("instrument not found")

	// ErrDuplicateInstrument indicates an instrument with the same name is already registered.
	ErrDuplicateInstrument = errors.New("instrument already registered")

	// ErrFilterNotFound indicates no filter is registered under the given name.
	ErrFilterNotFound = errors.New("filter not found")

	// ErrTriggerTimeout indicates an armed group did not trigger within the configured timeout.
	ErrTriggerTimeout = errors.New("trigger timeout")
)

// InvalidTriggerTypeError is returned when parsing an unknown trigger type name.
type InvalidTriggerTypeError struct {
	Value string
}

func (e *InvalidTriggerTypeError) Error() string {
	return fmt.Sprintf("invalid trigger type %q (expected single, forced, auto or normal)", e.Value)
}

// InstrumentError records a hardware communication failure on one instrument.
type InstrumentError struct {
	// Instrument is the name of the failing instrument.
	Instrument string

	// Op is the operation that failed: arm, disarm, poll or download.
	Op string

	// Err is the driver error.
	Err error
}

func (e *InstrumentError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Instrument, e.Err)
}

func (e *InstrumentError) Unwrap() error {
	return e.Err
}

// HardwareErrors summarises every per-instrument failure seen during one
// group-wide pass. The pass itself ran to completion for the other instruments.
type HardwareErrors struct {
	// Group is the ID of the group the pass ran on.
	Group string

	// Op is the group-wide operation: arm, stop, poll or download.
	Op string

	// Failures holds one entry per failing instrument, in the order they were visited.
	Failures []*InstrumentError
}

func (e *HardwareErrors) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("group %s: %s failed on %d instrument(s): %s", e.Group, e.Op, len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *HardwareErrors) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// Add records a failure. A nil err is ignored.
func (e *HardwareErrors) Add(instrument, op string, err error) {
	if err == nil {
		return
	}
	e.Failures = append(e.Failures, &InstrumentError{Instrument: instrument, Op: op, Err: err})
}

// ErrOrNil returns e if any failure was recorded, nil otherwise.
func (e *HardwareErrors) ErrOrNil() error {
	if e == nil || len(e.Failures) == 0 {
		return nil
	}
	return e
}
