package filter

import (
	"sync"

	"github.com/scopehal/triggersync"
)

// Gate is a pausable processing node. Pause and Resume are idempotent:
// pausing twice or resuming without a pause has no effect.
type Gate struct {
	name string

	mu      sync.Mutex
	paused  bool
	pauses  int
	resumes int

	// OnResume, if set, is called each time the gate goes from paused to running.
	OnResume func()
}

// Compile-time check that Gate implements PausableFilter.
var _ triggersync.PausableFilter = (*Gate)(nil)

// NewGate creates a running gate.
func NewGate(name string) *Gate {
	return &Gate{name: name}
}

// Name implements PausableFilter.
func (g *Gate) Name() string {
	return g.name
}

// Pause implements PausableFilter.
func (g *Gate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.paused {
		return
	}
	g.paused = true
	g.pauses++
}

// Resume implements PausableFilter.
func (g *Gate) Resume() {
	g.mu.Lock()
	if !g.paused {
		g.mu.Unlock()
		return
	}
	g.paused = false
	g.resumes++
	cb := g.OnResume
	g.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// Paused reports whether the gate is currently paused.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Transitions returns how many times the gate actually paused and resumed.
func (g *Gate) Transitions() (pauses, resumes int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pauses, g.resumes
}
