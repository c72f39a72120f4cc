package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scopehal/triggersync"
	"golang.org/x/sync/errgroup"
)

// Start arms the named groups, or the default groups when no IDs are given,
// and marks them active so Poll drives them.
//
// A group that fails to arm for lack of instruments or a primary stays
// inactive. Hardware failures leave the group armed and active; every error
// is returned joined once all targets have been visited.
func (s *Session) Start(ctx context.Context, t triggersync.TriggerType, ids ...string) error {
	if !t.Valid() {
		return &triggersync.InvalidTriggerTypeError{Value: string(t)}
	}

	targets, err := s.targets(ids)
	if err != nil {
		return err
	}

	var errs []error
	for _, e := range targets {
		g := e.group
		err := g.Arm(ctx, t)
		if errors.Is(err, triggersync.ErrNoScopes) || errors.Is(err, triggersync.ErrNoPrimary) {
			errs = append(errs, fmt.Errorf("failed to start group %s: %w", g.ID(), err))
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to start group %s: %w", g.ID(), err))
		}

		s.setActive(e, true)
		s.watchdog.Armed(g.ID(), g.ArmedAt())

		if s.config.Logger != nil {
			s.config.Logger.Info(ctx, "group started",
				"session", s.config.Name,
				"group", g.ID(),
				"triggerType", t,
				"description", g.Description())
		}
	}
	s.updateActiveGauge()
	return errors.Join(errs...)
}

// Stop stops the named groups, or the default groups when no IDs are given.
func (s *Session) Stop(ctx context.Context, ids ...string) error {
	targets, err := s.targets(ids)
	if err != nil {
		return err
	}
	return s.stopEntries(ctx, targets)
}

// StopAll stops every group of the session.
func (s *Session) StopAll(ctx context.Context) error {
	s.mu.Lock()
	targets := append([]*entry(nil), s.groups...)
	s.mu.Unlock()
	return s.stopEntries(ctx, targets)
}

func (s *Session) stopEntries(ctx context.Context, targets []*entry) error {
	var errs []error
	for _, e := range targets {
		s.setActive(e, false)
		s.watchdog.Cleared(e.group.ID())
		if err := e.group.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop group %s: %w", e.group.ID(), err))
		}
	}
	s.updateActiveGauge()
	return errors.Join(errs...)
}

// Poll runs one iteration of the acquisition loop over the active groups.
// Independent groups are polled concurrently.
//
// For each group that has triggered, the waveforms are downloaded and handed
// to OnAcquisition. Single and Forced groups are then deactivated; free-running
// groups are rearmed. A group armed for longer than TriggerTimeout is stopped
// and reported with ErrTriggerTimeout. Per-group errors are joined.
func (s *Session) Poll(ctx context.Context) error {
	expired := make(map[string]bool)
	for _, id := range s.watchdog.Expired(ctx) {
		expired[id] = true
	}

	s.mu.Lock()
	var active []*entry
	for _, e := range s.groups {
		if e.active {
			active = append(active, e)
		}
	}
	s.mu.Unlock()

	var eg errgroup.Group
	if s.config.MaxConcurrentPolls > 0 {
		eg.SetLimit(s.config.MaxConcurrentPolls)
	}

	errs := make([]error, len(active))
	for i, e := range active {
		eg.Go(func() error {
			if expired[e.group.ID()] {
				errs[i] = s.timeout(ctx, e)
				return nil
			}
			errs[i] = s.pollGroup(ctx, e)
			return nil
		})
	}
	_ = eg.Wait()

	return errors.Join(errs...)
}

// pollGroup drives one group through one poll step.
func (s *Session) pollGroup(ctx context.Context, e *entry) error {
	g := e.group

	ready, err := g.CheckForPendingWaveforms(ctx)
	if err != nil {
		return fmt.Errorf("failed to poll group %s: %w", g.ID(), err)
	}
	if !ready {
		return nil
	}
	return s.complete(ctx, e)
}

// complete downloads a group that reported ready, delivers the acquisition and
// starts the next cycle.
func (s *Session) complete(ctx context.Context, e *entry) error {
	g := e.group

	s.watchdog.Cleared(g.ID())
	var errs []error
	if err := g.DownloadWaveforms(ctx); err != nil {
		// A Stop landed after the readiness check; there is nothing to deliver.
		if errors.Is(err, triggersync.ErrNotReady) {
			return nil
		}
		errs = append(errs, fmt.Errorf("failed to download group %s: %w", g.ID(), err))
	}

	s.mu.Lock()
	s.acquisitions++
	s.mu.Unlock()

	if s.config.OnAcquisition != nil {
		s.config.OnAcquisition(ctx, g, g.Waveforms())
	}

	if !g.TriggerType().FreeRunning() {
		s.setActive(e, false)
		s.updateActiveGauge()
		return errors.Join(errs...)
	}

	rearmed, err := g.RearmIfMultiScope(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to rearm group %s: %w", g.ID(), err))
	}
	if errors.Is(err, triggersync.ErrNoPrimary) || errors.Is(err, triggersync.ErrNoScopes) {
		s.setActive(e, false)
		s.updateActiveGauge()
		return errors.Join(errs...)
	}
	if rearmed || g.AwaitNextTrigger(ctx) {
		s.watchdog.Armed(g.ID(), g.ArmedAt())
	}
	return errors.Join(errs...)
}

// timeout stops a group that waited too long for its trigger.
func (s *Session) timeout(ctx context.Context, e *entry) error {
	g := e.group
	e.collector.IncTriggerTimeouts()
	s.setActive(e, false)
	stopErr := g.Stop(ctx)
	s.updateActiveGauge()

	if s.config.Logger != nil {
		s.config.Logger.Error(ctx, "group did not trigger in time",
			"session", s.config.Name,
			"group", g.ID(),
			"timeout", s.config.TriggerTimeout)
	}

	err := fmt.Errorf("group %s: %w after %s", g.ID(), triggersync.ErrTriggerTimeout, s.config.TriggerTimeout)
	if stopErr != nil {
		return errors.Join(err, stopErr)
	}
	return err
}

// Run polls the active groups every PollInterval until ctx is cancelled,
// then stops every group. Poll errors are logged and do not end the loop.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	if s.config.Logger != nil {
		s.config.Logger.Info(ctx, "session running",
			"session", s.config.Name,
			"pollInterval", s.config.PollInterval)
	}

	for {
		select {
		case <-ctx.Done():
			stopCtx := context.WithoutCancel(ctx)
			if err := s.StopAll(stopCtx); err != nil {
				if s.config.Logger != nil {
					s.config.Logger.Error(stopCtx, "failed to stop groups", "session", s.config.Name, "error", err)
				}
				return errors.Join(ctx.Err(), err)
			}
			return ctx.Err()
		case <-ticker.C:
			if err := s.Poll(ctx); err != nil && s.config.Logger != nil {
				s.config.Logger.Error(ctx, "poll failed", "session", s.config.Name, "error", err)
			}
		}
	}
}

// Active reports whether the group with the given ID is being driven by Poll.
func (s *Session) Active(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.find(id)
	return e != nil && e.active
}

// targets resolves group IDs, or the default groups when none are given.
func (s *Session) targets(ids []string) ([]*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ids) == 0 {
		var out []*entry
		for _, e := range s.groups {
			if e.group.IsDefault() {
				out = append(out, e)
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("no default group: %w", triggersync.ErrGroupNotFound)
		}
		return out, nil
	}

	out := make([]*entry, 0, len(ids))
	for _, id := range ids {
		e := s.find(id)
		if e == nil {
			return nil, fmt.Errorf("group %s: %w", id, triggersync.ErrGroupNotFound)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Session) setActive(e *entry, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.active = active
}
