package instrument

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/scopehal/triggersync"
)

// ErrNotArmed is returned by a simulated instrument asked for data it never captured.
var ErrNotArmed = errors.New("instrument not armed")

// SimulatedConfig configures a Simulated instrument.
type SimulatedConfig struct {
	// Name is the instrument name (required).
	Name string

	// Channels lists the channel names to capture (default: CH1).
	Channels []string

	// Depth is the number of samples per channel (default: 1000).
	Depth int

	// SampleInterval is the time between samples (default: 1ns).
	SampleInterval time.Duration

	// Frequency is the frequency of the generated sine wave in Hz (default: 1MHz).
	Frequency float64

	// TriggerAfterPolls is the number of polls after arming before the trigger fires (default: 3).
	TriggerAfterPolls int

	// FailDownloadEvery makes every Nth download fail. Zero disables failures.
	FailDownloadEvery int
}

// Simulated is an in-process oscilloscope that triggers after a fixed number of
// polls. In free-running modes it rearms itself after each download, like a
// real instrument in Auto or Normal mode.
type Simulated struct {
	config SimulatedConfig

	mu        sync.Mutex
	armed     bool
	freeRun   bool
	polls     int
	triggered bool
	triggerAt time.Time
	downloads int
}

// Compile-time check that Simulated implements Instrument.
var _ triggersync.Instrument = (*Simulated)(nil)

// NewSimulated creates a simulated instrument, applying defaults for zero or negative values.
func NewSimulated(cfg SimulatedConfig) *Simulated {
	if len(cfg.Channels) == 0 {
		cfg.Channels = []string{"CH1"}
	}
	if cfg.Depth <= 0 {
		cfg.Depth = 1000
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = time.Nanosecond
	}
	if cfg.Frequency <= 0 {
		cfg.Frequency = 1e6
	}
	if cfg.TriggerAfterPolls <= 0 {
		cfg.TriggerAfterPolls = 3
	}
	if cfg.FailDownloadEvery < 0 {
		cfg.FailDownloadEvery = 0
	}

	return &Simulated{config: cfg}
}

// Name implements Instrument.
func (s *Simulated) Name() string {
	return s.config.Name
}

// Arm implements Instrument.
func (s *Simulated) Arm(ctx context.Context, mode triggersync.TriggerType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.armed = true
	s.freeRun = mode.FreeRunning()
	s.polls = 0
	s.triggered = mode == triggersync.TriggerTypeForced
	if s.triggered {
		s.triggerAt = time.Now()
	}
	return nil
}

// Disarm implements Instrument.
func (s *Simulated) Disarm(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.armed = false
	s.freeRun = false
	s.triggered = false
	return nil
}

// PollTriggerReady implements Instrument.
func (s *Simulated) PollTriggerReady(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.armed {
		return false, nil
	}
	if !s.triggered {
		s.polls++
		if s.polls >= s.config.TriggerAfterPolls {
			s.triggered = true
			s.triggerAt = time.Now()
		}
	}
	return s.triggered, nil
}

// Download implements Instrument.
func (s *Simulated) Download(ctx context.Context) (triggersync.WaveformSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.triggered {
		return triggersync.WaveformSet{}, ErrNotArmed
	}

	s.downloads++
	s.triggered = false
	s.polls = 0
	s.armed = s.freeRun

	if s.config.FailDownloadEvery > 0 && s.downloads%s.config.FailDownloadEvery == 0 {
		return triggersync.WaveformSet{}, fmt.Errorf("simulated transfer error on download %d", s.downloads)
	}

	ws := triggersync.WaveformSet{
		Instrument:  s.config.Name,
		TriggerTime: s.triggerAt,
		Waveforms:   make([]triggersync.Waveform, len(s.config.Channels)),
	}
	omega := 2 * math.Pi * s.config.Frequency * s.config.SampleInterval.Seconds()
	for i, ch := range s.config.Channels {
		samples := make([]float64, s.config.Depth)
		phase := float64(i) * math.Pi / 4
		for n := range samples {
			samples[n] = math.Sin(omega*float64(n) + phase)
		}
		ws.Waveforms[i] = triggersync.Waveform{
			Channel:        ch,
			SampleInterval: s.config.SampleInterval,
			Samples:        samples,
		}
	}
	return ws, nil
}

// Downloads returns the number of downloads served so far.
func (s *Simulated) Downloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloads
}
