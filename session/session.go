// Package session owns the instruments, filters and trigger groups of one
// acquisition setup and drives the groups' acquisition cycles.
//
// The session holds one reference to every registered instrument; each group
// holds its own. An instrument can be claimed by at most one group at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/getpup/pupsourcing/es"
	"github.com/google/uuid"
	"github.com/scopehal/triggersync"
	"github.com/scopehal/triggersync/filter"
	"github.com/scopehal/triggersync/instrument"
	"github.com/scopehal/triggersync/lifecycle"
	"github.com/scopehal/triggersync/metrics"
	"github.com/scopehal/triggersync/store"
	"github.com/scopehal/triggersync/triggergroup"
)

// ErrNoStore indicates Save or Load was called on a session without a GroupStore.
var ErrNoStore = errors.New("session has no group store")

// AcquisitionFunc receives the waveforms downloaded by one group, keyed by instrument name.
type AcquisitionFunc func(ctx context.Context, g *triggergroup.Group, waveforms map[string]triggersync.WaveformSet)

// Config holds configuration for a Session.
type Config struct {
	// Name identifies the session in the store and in metrics (default: "default").
	Name triggersync.SessionName

	// Store persists the group layout (optional).
	Store store.GroupStore

	// PollInterval is how often Run polls the active groups (default: 10ms).
	PollInterval time.Duration

	// TriggerTimeout stops a group that stays armed longer than this (default: 0, disabled).
	TriggerTimeout time.Duration

	// MaxConcurrentPolls bounds how many groups are polled at once (default: 0, unbounded).
	MaxConcurrentPolls int

	// OnAcquisition is called after each group download (optional).
	OnAcquisition AcquisitionFunc

	// Logger is for observability (optional).
	Logger es.Logger

	// MetricsEnabled enables Prometheus metrics collection (default: true).
	// Set to false explicitly to disable metrics.
	MetricsEnabled *bool

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// entry is the session's bookkeeping for one group.
type entry struct {
	group     *triggergroup.Group
	collector *metrics.Collector
	active    bool
}

// Session owns a set of instruments and the trigger groups built from them.
// It is safe for concurrent use.
type Session struct {
	config         Config
	metricsEnabled bool
	watchdog       *lifecycle.Watchdog
	filters        *filter.Registry

	mu           sync.Mutex
	instruments  map[string]*instrument.Handle
	order        []string
	groups       []*entry
	acquisitions uint64
}

// Compile-time check that Session resolves names for group deserialization.
var _ triggergroup.Resolver = (*Session)(nil)

// New creates a new Session with the given configuration.
// Applies default values for zero fields.
func New(cfg Config) *Session {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	metricsEnabled := true
	if cfg.MetricsEnabled != nil {
		metricsEnabled = *cfg.MetricsEnabled
	}

	return &Session{
		config:         cfg,
		metricsEnabled: metricsEnabled,
		watchdog: lifecycle.New(lifecycle.Config{
			Timeout: cfg.TriggerTimeout,
			Logger:  cfg.Logger,
			Now:     cfg.Now,
		}),
		filters:     filter.NewRegistry(),
		instruments: make(map[string]*instrument.Handle),
	}
}

// Name returns the session name.
func (s *Session) Name() triggersync.SessionName {
	return s.config.Name
}

// AddInstrument registers an instrument and returns the session's handle to it.
// Returns ErrDuplicateInstrument if the name is taken.
func (s *Session) AddInstrument(inst triggersync.Instrument) (*instrument.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := inst.Name()
	if _, ok := s.instruments[name]; ok {
		return nil, fmt.Errorf("failed to add instrument %q: %w", name, triggersync.ErrDuplicateInstrument)
	}

	h := instrument.NewHandle(inst)
	s.instruments[name] = h
	s.order = append(s.order, name)
	return h, nil
}

// RemoveInstrument takes the instrument out of its group, if any, and drops
// the session's reference. The driver is closed once no group holds it.
func (s *Session) RemoveInstrument(ctx context.Context, name string) error {
	s.mu.Lock()
	h, ok := s.instruments[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("failed to remove instrument %q: %w", name, triggersync.ErrInstrumentNotFound)
	}
	delete(s.instruments, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	var owner *triggergroup.Group
	if e := s.find(h.Owner()); e != nil {
		owner = e.group
	}
	s.mu.Unlock()

	var errs []error
	if owner != nil {
		if err := owner.RemoveScope(ctx, h); err != nil {
			errs = append(errs, err)
		}
	}
	if err := h.Release(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Instrument returns the handle registered under name.
// Returns ErrInstrumentNotFound if no such instrument exists.
func (s *Session) Instrument(name string) (*instrument.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.instruments[name]
	if !ok {
		return nil, triggersync.ErrInstrumentNotFound
	}
	return h, nil
}

// Instruments returns every registered instrument in registration order.
func (s *Session) Instruments() []*instrument.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*instrument.Handle, len(s.order))
	for i, name := range s.order {
		out[i] = s.instruments[name]
	}
	return out
}

// AddFilter registers a filter so that stored layouts can refer to it by name.
func (s *Session) AddFilter(f triggersync.PausableFilter) {
	s.filters.Register(f)
}

// Filter returns the filter registered under name.
// Returns ErrFilterNotFound if no such filter exists.
func (s *Session) Filter(name string) (triggersync.PausableFilter, error) {
	return s.filters.Get(name)
}

// NewGroup creates a group with the given primary, which may be nil.
// The first group of a session becomes its default group.
func (s *Session) NewGroup(primary *instrument.Handle) (*triggergroup.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	e, err := s.newEntry(func(cfg triggergroup.Config) (*triggergroup.Group, error) {
		cfg.ID = id
		cfg.Default = !s.hasDefault()
		return triggergroup.New(cfg, primary)
	}, id)
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	if s.config.Logger != nil {
		s.config.Logger.Info(context.Background(), "group created",
			"session", s.config.Name,
			"group", id,
			"default", e.group.IsDefault())
	}
	return e.group, nil
}

// newEntry builds a group with the session's logger, clock and collector and
// appends it to the session. Callers hold s.mu.
func (s *Session) newEntry(build func(triggergroup.Config) (*triggergroup.Group, error), id string) (*entry, error) {
	var collector *metrics.Collector
	if s.metricsEnabled {
		collector = metrics.NewCollector(id)
	}

	g, err := build(triggergroup.Config{
		Logger:    s.config.Logger,
		Collector: collector,
		Now:       s.config.Now,
	})
	if err != nil {
		collector.Forget()
		return nil, err
	}

	e := &entry{group: g, collector: collector}
	s.groups = append(s.groups, e)
	return e, nil
}

// Group returns the group with the given ID.
// Returns ErrGroupNotFound if no such group exists.
func (s *Session) Group(id string) (*triggergroup.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.find(id)
	if e == nil {
		return nil, triggersync.ErrGroupNotFound
	}
	return e.group, nil
}

// Groups returns every group in creation order.
func (s *Session) Groups() []*triggergroup.Group {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*triggergroup.Group, len(s.groups))
	for i, e := range s.groups {
		out[i] = e.group
	}
	return out
}

// DefaultGroups returns the groups started by an untargeted Start.
func (s *Session) DefaultGroups() []*triggergroup.Group {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*triggergroup.Group
	for _, e := range s.groups {
		if e.group.IsDefault() {
			out = append(out, e.group)
		}
	}
	return out
}

// SetDefaultGroup makes id the only default group.
// Returns ErrGroupNotFound if no such group exists.
func (s *Session) SetDefaultGroup(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.find(id) == nil {
		return triggersync.ErrGroupNotFound
	}
	for _, e := range s.groups {
		e.group.SetDefault(e.group.ID() == id)
	}
	return nil
}

// DeleteGroup stops and closes a group, returning its instruments to the
// session. Returns ErrGroupNotFound if no such group exists.
func (s *Session) DeleteGroup(ctx context.Context, id string) error {
	s.mu.Lock()
	e := s.remove(id)
	s.mu.Unlock()

	if e == nil {
		return triggersync.ErrGroupNotFound
	}
	return s.closeEntry(ctx, e)
}

// PruneEmptyGroups deletes every group without instruments and returns how
// many were deleted. Filters alone do not keep a group alive.
func (s *Session) PruneEmptyGroups(ctx context.Context) (int, error) {
	s.mu.Lock()
	var pruned []*entry
	kept := s.groups[:0]
	for _, e := range s.groups {
		if e.group.HasScopes() {
			kept = append(kept, e)
		} else {
			pruned = append(pruned, e)
		}
	}
	s.groups = kept
	s.mu.Unlock()

	var errs []error
	for _, e := range pruned {
		if err := s.closeEntry(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return len(pruned), errors.Join(errs...)
}

// Close stops and closes every group and drops the session's instrument references.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	groups := s.groups
	s.groups = nil
	handles := make([]*instrument.Handle, 0, len(s.order))
	for _, name := range s.order {
		handles = append(handles, s.instruments[name])
	}
	s.instruments = make(map[string]*instrument.Handle)
	s.order = nil
	s.mu.Unlock()

	var errs []error
	for _, e := range groups {
		if err := s.closeEntry(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	for _, h := range handles {
		if err := h.Release(); err != nil {
			errs = append(errs, fmt.Errorf("failed to release instrument %s: %w", h.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Acquisitions returns how many group downloads the session has completed.
func (s *Session) Acquisitions() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquisitions
}

func (s *Session) closeEntry(ctx context.Context, e *entry) error {
	id := e.group.ID()
	s.watchdog.Cleared(id)
	err := e.group.Close(ctx)
	e.collector.Forget()
	s.updateActiveGauge()

	if s.config.Logger != nil {
		s.config.Logger.Info(ctx, "group deleted", "session", s.config.Name, "group", id)
	}
	if err != nil {
		return fmt.Errorf("failed to close group %s: %w", id, err)
	}
	return nil
}

// find returns the entry for id, or nil. Callers hold s.mu.
func (s *Session) find(id string) *entry {
	if id == "" {
		return nil
	}
	for _, e := range s.groups {
		if e.group.ID() == id {
			return e
		}
	}
	return nil
}

// remove unlinks the entry for id and returns it, or nil. Callers hold s.mu.
func (s *Session) remove(id string) *entry {
	for i, e := range s.groups {
		if e.group.ID() == id {
			s.groups = append(s.groups[:i], s.groups[i+1:]...)
			return e
		}
	}
	return nil
}

// hasDefault reports whether any group is a default group. Callers hold s.mu.
func (s *Session) hasDefault() bool {
	for _, e := range s.groups {
		if e.group.IsDefault() {
			return true
		}
	}
	return false
}

// updateActiveGauge publishes the number of active groups.
func (s *Session) updateActiveGauge() {
	if !s.metricsEnabled {
		return
	}
	s.mu.Lock()
	n := 0
	for _, e := range s.groups {
		if e.active {
			n++
		}
	}
	s.mu.Unlock()
	metrics.SetActiveGroups(s.config.Name, n)
}
