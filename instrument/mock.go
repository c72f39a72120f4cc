package instrument

import (
	"context"
	"sync"

	"github.com/scopehal/triggersync"
)

// CallLog records calls across several mock instruments so tests can assert
// on the relative ordering of operations within a group.
type CallLog struct {
	mu      sync.Mutex
	entries []Call
}

// Call is one recorded driver call.
type Call struct {
	Instrument string
	Op         string
	Mode       triggersync.TriggerType
}

// NewCallLog creates an empty call log.
func NewCallLog() *CallLog {
	return &CallLog{}
}

func (l *CallLog) record(c Call) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, c)
}

// Calls returns a copy of the recorded calls.
func (l *CallLog) Calls() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Call(nil), l.entries...)
}

// Ops returns "op:instrument" strings for calls matching op, or all calls if op is empty.
func (l *CallLog) Ops(op string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []string
	for _, c := range l.entries {
		if op == "" || c.Op == op {
			out = append(out, c.Op+":"+c.Instrument)
		}
	}
	return out
}

// Reset clears the log.
func (l *CallLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// MockInstrument is a configurable mock implementation of triggersync.Instrument
// for use in tests. Hooks override the default behaviour; every call is recorded.
//
// Default behaviour: Arm and Disarm succeed, PollTriggerReady reports Ready,
// Download returns a single-channel waveform set named after the instrument.
type MockInstrument struct {
	mu   sync.Mutex
	name string
	log  *CallLog

	// Ready is returned by PollTriggerReady when PollFunc is nil.
	Ready bool

	// Closed is set once Close has been called.
	Closed bool

	ArmFunc      func(ctx context.Context, mode triggersync.TriggerType) error
	DisarmFunc   func(ctx context.Context) error
	PollFunc     func(ctx context.Context) (bool, error)
	DownloadFunc func(ctx context.Context) (triggersync.WaveformSet, error)

	// Call tracking
	ArmCalls      []triggersync.TriggerType
	DisarmCalls   int
	PollCalls     int
	DownloadCalls int
}

// Compile-time check that MockInstrument implements Instrument.
var _ triggersync.Instrument = (*MockInstrument)(nil)

// NewMockInstrument creates a mock instrument. log may be nil.
func NewMockInstrument(name string, log *CallLog) *MockInstrument {
	return &MockInstrument{
		name: name,
		log:  log,
	}
}

// Name implements Instrument.
func (m *MockInstrument) Name() string {
	return m.name
}

// Arm implements Instrument.
func (m *MockInstrument) Arm(ctx context.Context, mode triggersync.TriggerType) error {
	m.mu.Lock()
	m.ArmCalls = append(m.ArmCalls, mode)
	fn := m.ArmFunc
	m.mu.Unlock()
	m.log.record(Call{Instrument: m.name, Op: "arm", Mode: mode})

	if fn != nil {
		return fn(ctx, mode)
	}
	return nil
}

// Disarm implements Instrument.
func (m *MockInstrument) Disarm(ctx context.Context) error {
	m.mu.Lock()
	m.DisarmCalls++
	fn := m.DisarmFunc
	m.mu.Unlock()
	m.log.record(Call{Instrument: m.name, Op: "disarm"})

	if fn != nil {
		return fn(ctx)
	}
	return nil
}

// PollTriggerReady implements Instrument.
func (m *MockInstrument) PollTriggerReady(ctx context.Context) (bool, error) {
	m.mu.Lock()
	m.PollCalls++
	fn := m.PollFunc
	ready := m.Ready
	m.mu.Unlock()
	m.log.record(Call{Instrument: m.name, Op: "poll"})

	if fn != nil {
		return fn(ctx)
	}
	return ready, nil
}

// Download implements Instrument.
func (m *MockInstrument) Download(ctx context.Context) (triggersync.WaveformSet, error) {
	m.mu.Lock()
	m.DownloadCalls++
	fn := m.DownloadFunc
	m.mu.Unlock()
	m.log.record(Call{Instrument: m.name, Op: "download"})

	if fn != nil {
		return fn(ctx)
	}
	return triggersync.WaveformSet{
		Instrument: m.name,
		Waveforms:  []triggersync.Waveform{{Channel: "CH1", Samples: []float64{0, 1, 0}}},
	}, nil
}

// SetReady changes the value reported by PollTriggerReady.
func (m *MockInstrument) SetReady(ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Ready = ready
}

// Close records that the last handle reference was released.
func (m *MockInstrument) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Reset clears the call history.
func (m *MockInstrument) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ArmCalls = nil
	m.DisarmCalls = 0
	m.PollCalls = 0
	m.DownloadCalls = 0
}
