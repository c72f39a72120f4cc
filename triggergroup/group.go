// Package triggergroup coordinates a set of independently cabled oscilloscopes
// so that they acquire as one unit.
//
// One instrument, the primary, is the trigger reference for the group. Its
// trigger output is cabled to the trigger input of every secondary. There is
// no bus-level synchronisation: the group arms, polls and downloads each member
// in the order that keeps the captures consistent, and never blocks waiting
// for hardware.
package triggergroup

import (
	"sync"
	"time"

	"github.com/getpup/pupsourcing/es"
	"github.com/google/uuid"
	"github.com/scopehal/triggersync"
	"github.com/scopehal/triggersync/instrument"
	"github.com/scopehal/triggersync/metrics"
)

// Config holds configuration for a Group.
type Config struct {
	// ID is the unique identifier of the group (default: random UUID).
	ID string

	// Default marks the group as activated by a start/stop request without an explicit target.
	Default bool

	// Logger is for observability (optional).
	Logger es.Logger

	// Collector records group metrics (optional).
	Collector *metrics.Collector

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Group is a trigger group: an optional primary, an ordered list of
// secondaries and the pausable filters that consume the group's data.
//
// Instruments are shared with the owning session. The group holds one counted
// reference per member and a claim that keeps the instrument out of other groups.
// Filters are borrowed; the group never closes them.
type Group struct {
	config Config

	mu          sync.Mutex
	primary     *instrument.Handle
	secondaries []*instrument.Handle
	filters     []triggersync.PausableFilter
	isDefault   bool

	triggerType       triggersync.TriggerType
	running           bool
	multiScopeFreeRun bool
	state             triggersync.AcquisitionState
	armedAt           time.Time
}

// New creates a group with the given initial primary, which may be nil.
// The group takes its own reference to primary.
// Returns ErrMemberOfOtherGroup if primary already belongs to another group.
func New(cfg Config, primary *instrument.Handle) (*Group, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	g := &Group{
		config:      cfg,
		isDefault:   cfg.Default,
		triggerType: triggersync.TriggerTypeNormal,
		state:       triggersync.AcquisitionStateIdle,
	}

	if primary != nil {
		if err := g.join(primary); err != nil {
			return nil, err
		}
		g.primary = primary
	}

	g.config.Collector.SetState(g.state)
	g.config.Collector.SetInstruments(g.instrumentCount())
	return g, nil
}

// ID returns the unique identifier of the group.
func (g *Group) ID() string {
	return g.config.ID
}

// Primary returns the primary instrument, or nil if the group has none.
func (g *Group) Primary() *instrument.Handle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.primary
}

// Secondaries returns a copy of the secondary list in cable-chain order.
func (g *Group) Secondaries() []*instrument.Handle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*instrument.Handle(nil), g.secondaries...)
}

// Filters returns a copy of the filter list.
func (g *Group) Filters() []triggersync.PausableFilter {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]triggersync.PausableFilter(nil), g.filters...)
}

// Members returns the primary (if any) followed by the secondaries.
func (g *Group) Members() []*instrument.Handle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.members()
}

// IsDefault reports whether the group is activated by an untargeted start/stop request.
func (g *Group) IsDefault() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isDefault
}

// SetDefault sets the default-group flag.
func (g *Group) SetDefault(isDefault bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.isDefault = isDefault
}

// TriggerType returns the trigger type of the current or most recent arm cycle.
func (g *Group) TriggerType() triggersync.TriggerType {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.triggerType
}

// State returns the acquisition state.
func (g *Group) State() triggersync.AcquisitionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// ArmedAt returns when the current arm cycle was issued. Zero when idle.
func (g *Group) ArmedAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.armedAt
}

// MultiScopeFreeRun reports whether the group rearms itself after each download.
func (g *Group) MultiScopeFreeRun() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.multiScopeFreeRun
}

// Empty reports whether the group has no primary, no secondaries and no filters.
func (g *Group) Empty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.secondaries) == 0 && g.primary == nil && len(g.filters) == 0
}

// HasScopes reports whether the group has at least one instrument.
func (g *Group) HasScopes() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hasScopes()
}

// HasSecondaries reports whether the group has at least one secondary.
func (g *Group) HasSecondaries() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.secondaries) > 0
}

// Contains reports whether scope holds any role in the group.
func (g *Group) Contains(scope *instrument.Handle) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.primary == scope || g.secondaryIndex(scope) >= 0
}

func (g *Group) hasScopes() bool {
	return g.primary != nil || len(g.secondaries) > 0
}

func (g *Group) members() []*instrument.Handle {
	out := make([]*instrument.Handle, 0, len(g.secondaries)+1)
	if g.primary != nil {
		out = append(out, g.primary)
	}
	return append(out, g.secondaries...)
}

func (g *Group) instrumentCount() int {
	n := len(g.secondaries)
	if g.primary != nil {
		n++
	}
	return n
}

func (g *Group) secondaryIndex(scope *instrument.Handle) int {
	for i, s := range g.secondaries {
		if s == scope {
			return i
		}
	}
	return -1
}

func (g *Group) filterIndex(f triggersync.PausableFilter) int {
	for i, existing := range g.filters {
		if existing == f {
			return i
		}
	}
	return -1
}
