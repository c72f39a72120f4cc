// Package lifecycle tracks how long armed trigger groups have been waiting
// for a hardware trigger.
package lifecycle

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/getpup/pupsourcing/es"
)

// Config holds configuration for a Watchdog.
type Config struct {
	// Timeout is how long a group may stay armed without triggering.
	// Zero disables the watchdog.
	Timeout time.Duration

	// Logger is for observability (optional).
	Logger es.Logger

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Watchdog records when each group was armed and reports groups that have
// waited longer than the configured timeout. Each expiry is reported once.
type Watchdog struct {
	config Config

	mu      sync.Mutex
	armedAt map[string]time.Time
}

// New creates a new Watchdog with the given configuration.
func New(cfg Config) *Watchdog {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Watchdog{
		config:  cfg,
		armedAt: make(map[string]time.Time),
	}
}

// Enabled reports whether a timeout is configured.
func (w *Watchdog) Enabled() bool {
	return w.config.Timeout > 0
}

// Armed starts or restarts the wait for groupID. A zero time means now.
func (w *Watchdog) Armed(groupID string, at time.Time) {
	if at.IsZero() {
		at = w.config.Now()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.armedAt[groupID] = at
}

// Cleared stops tracking groupID, typically once it triggered or was stopped.
func (w *Watchdog) Cleared(groupID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.armedAt, groupID)
}

// Tracking reports whether groupID is being watched.
func (w *Watchdog) Tracking(groupID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.armedAt[groupID]
	return ok
}

// Expired returns the IDs of groups armed for longer than the timeout, sorted,
// and stops tracking them. Returns nil when the watchdog is disabled.
func (w *Watchdog) Expired(ctx context.Context) []string {
	if !w.Enabled() {
		return nil
	}

	now := w.config.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	var expired []string
	for id, at := range w.armedAt {
		if now.Sub(at) > w.config.Timeout {
			expired = append(expired, id)
		}
	}
	sort.Strings(expired)

	for _, id := range expired {
		if w.config.Logger != nil {
			w.config.Logger.Info(ctx, "trigger timeout",
				"group", id,
				"waited", now.Sub(w.armedAt[id]),
				"timeout", w.config.Timeout)
		}
		delete(w.armedAt, id)
	}
	return expired
}
