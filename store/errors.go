package store

import (
	"errors"
	"fmt"
)

var (
	// ErrGroupNotFound indicates no group with the given ID is stored for the session.
	ErrGroupNotFound = errors.New("stored group not found")

	// ErrMissingGroupID indicates a record without an ID was passed to SaveGroups.
	ErrMissingGroupID = errors.New("group record has no ID")
)

// DuplicateGroupError is returned when a layout contains the same group ID twice.
type DuplicateGroupError struct {
	ID string
}

func (e *DuplicateGroupError) Error() string {
	return fmt.Sprintf("duplicate group ID %q in layout", e.ID)
}

// DuplicateInstrumentError is returned when a layout places an instrument in two roles.
type DuplicateInstrumentError struct {
	Instrument string
	Group      string
	OtherGroup string
}

func (e *DuplicateInstrumentError) Error() string {
	if e.Group == e.OtherGroup {
		return fmt.Sprintf("instrument %q appears twice in group %s", e.Instrument, e.Group)
	}
	return fmt.Sprintf("instrument %q appears in groups %s and %s", e.Instrument, e.OtherGroup, e.Group)
}
