package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/scopehal/triggersync"
	"github.com/scopehal/triggersync/filter"
	"github.com/scopehal/triggersync/instrument"
	"github.com/scopehal/triggersync/metrics"
	"github.com/scopehal/triggersync/triggergroup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(groups []*triggergroup.Group) []string {
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.ID()
	}
	return out
}

type acquisitionRecorder struct {
	mu    sync.Mutex
	calls []map[string]triggersync.WaveformSet
	group []string
}

func (r *acquisitionRecorder) record(ctx context.Context, g *triggergroup.Group, waveforms map[string]triggersync.WaveformSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, waveforms)
	r.group = append(r.group, g.ID())
}

func (r *acquisitionRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestStart_ArmsDefaultGroup(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, Config{})
	mp, p := addScope(t, s, "p", nil)
	g, err := s.NewGroup(p)
	require.NoError(t, err)
	other, err := s.NewGroup(nil)
	require.NoError(t, err)

	require.NoError(t, s.Start(ctx, triggersync.TriggerTypeSingle))

	assert.Equal(t, triggersync.AcquisitionStateArmed, g.State())
	assert.True(t, s.Active(g.ID()))
	assert.False(t, s.Active(other.ID()))
	assert.Len(t, mp.ArmCalls, 1)
}

func TestStart_NamedGroups(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, Config{})
	_, a := addScope(t, s, "a", nil)
	_, b := addScope(t, s, "b", nil)
	g1, err := s.NewGroup(a)
	require.NoError(t, err)
	g2, err := s.NewGroup(b)
	require.NoError(t, err)

	require.NoError(t, s.Start(ctx, triggersync.TriggerTypeNormal, g2.ID()))

	assert.Equal(t, triggersync.AcquisitionStateIdle, g1.State())
	assert.Equal(t, triggersync.AcquisitionStateArmed, g2.State())

	err = s.Start(ctx, triggersync.TriggerTypeNormal, "missing")
	assert.ErrorIs(t, err, triggersync.ErrGroupNotFound)
}

func TestStart_NoDefaultGroup(t *testing.T) {
	s := newTestSession(t, Config{})

	err := s.Start(context.Background(), triggersync.TriggerTypeSingle)

	assert.ErrorIs(t, err, triggersync.ErrGroupNotFound)
}

func TestStart_InvalidTriggerType(t *testing.T) {
	s := newTestSession(t, Config{})

	err := s.Start(context.Background(), triggersync.TriggerType("bogus"))

	var typeErr *triggersync.InvalidTriggerTypeError
	assert.ErrorAs(t, err, &typeErr)
}

func TestStart_GroupWithoutInstrumentsStaysInactive(t *testing.T) {
	s := newTestSession(t, Config{})
	g, err := s.NewGroup(nil)
	require.NoError(t, err)

	err = s.Start(context.Background(), triggersync.TriggerTypeSingle)

	assert.ErrorIs(t, err, triggersync.ErrNoScopes)
	assert.False(t, s.Active(g.ID()))
}

func TestStart_HardwareErrorKeepsGroupActive(t *testing.T) {
	s := newTestSession(t, Config{})
	mp, p := addScope(t, s, "p", nil)
	mp.ArmFunc = func(ctx context.Context, mode triggersync.TriggerType) error {
		return errors.New("timeout")
	}
	g, err := s.NewGroup(p)
	require.NoError(t, err)

	err = s.Start(context.Background(), triggersync.TriggerTypeSingle)

	var hwErrs *triggersync.HardwareErrors
	require.ErrorAs(t, err, &hwErrs)
	assert.True(t, s.Active(g.ID()))
}

func TestPoll_SingleShotDownloadsAndDeactivates(t *testing.T) {
	ctx := context.Background()
	rec := &acquisitionRecorder{}
	s := newTestSession(t, Config{OnAcquisition: rec.record})
	mp, p := addScope(t, s, "p", nil)
	ms, sec := addScope(t, s, "s", nil)
	g, err := s.NewGroup(p)
	require.NoError(t, err)
	require.NoError(t, g.AddSecondary(ctx, sec))
	require.NoError(t, s.Start(ctx, triggersync.TriggerTypeSingle))

	require.NoError(t, s.Poll(ctx))
	assert.Zero(t, rec.count(), "nothing triggered yet")

	mp.SetReady(true)
	ms.SetReady(true)
	require.NoError(t, s.Poll(ctx))

	require.Equal(t, 1, rec.count())
	assert.Len(t, rec.calls[0], 2)
	assert.Equal(t, g.ID(), rec.group[0])
	assert.False(t, s.Active(g.ID()))
	assert.Equal(t, triggersync.AcquisitionStateIdle, g.State())
	assert.Equal(t, uint64(1), s.Acquisitions())

	require.NoError(t, s.Poll(ctx))
	assert.Equal(t, 1, rec.count(), "inactive groups are not polled")
}

func TestPoll_MultiScopeNormalRearms(t *testing.T) {
	ctx := context.Background()
	log := instrument.NewCallLog()
	rec := &acquisitionRecorder{}
	s := newTestSession(t, Config{OnAcquisition: rec.record})
	mp, p := addScope(t, s, "p", log)
	ms, sec := addScope(t, s, "s", log)
	mp.Ready = true
	ms.Ready = true
	gate := filter.NewGate("fft")
	g, err := s.NewGroup(p)
	require.NoError(t, err)
	require.NoError(t, g.AddSecondary(ctx, sec))
	g.AddFilter(gate)
	require.NoError(t, s.Start(ctx, triggersync.TriggerTypeNormal))

	require.NoError(t, s.Poll(ctx))
	require.NoError(t, s.Poll(ctx))

	assert.Equal(t, 2, rec.count())
	assert.True(t, s.Active(g.ID()))
	assert.Equal(t, triggersync.AcquisitionStateArmed, g.State())
	assert.Equal(t, []string{"arm:s", "arm:p", "arm:s", "arm:p", "arm:s", "arm:p"}, log.Ops("arm"))
	assert.True(t, gate.Paused())
}

func TestPoll_SingleInstrumentFreeRunKeepsPolling(t *testing.T) {
	ctx := context.Background()
	rec := &acquisitionRecorder{}
	s := newTestSession(t, Config{OnAcquisition: rec.record})
	mp, p := addScope(t, s, "p", nil)
	mp.Ready = true
	g, err := s.NewGroup(p)
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx, triggersync.TriggerTypeAuto))

	require.NoError(t, s.Poll(ctx))
	require.NoError(t, s.Poll(ctx))
	require.NoError(t, s.Poll(ctx))

	assert.Equal(t, 3, rec.count())
	assert.Len(t, mp.ArmCalls, 1, "the instrument free-runs on its own")
	assert.Equal(t, 3, mp.DownloadCalls)
	assert.Equal(t, triggersync.AcquisitionStateArmed, g.State())
}

func TestPoll_DownloadFailureReportedAndCycleContinues(t *testing.T) {
	ctx := context.Background()
	rec := &acquisitionRecorder{}
	s := newTestSession(t, Config{OnAcquisition: rec.record})
	mp, p := addScope(t, s, "p", nil)
	ms, sec := addScope(t, s, "s", nil)
	mp.Ready = true
	ms.Ready = true
	ms.DownloadFunc = func(ctx context.Context) (triggersync.WaveformSet, error) {
		return triggersync.WaveformSet{}, errors.New("crc mismatch")
	}
	g, err := s.NewGroup(p)
	require.NoError(t, err)
	require.NoError(t, g.AddSecondary(ctx, sec))
	require.NoError(t, s.Start(ctx, triggersync.TriggerTypeNormal))

	err = s.Poll(ctx)

	var hwErrs *triggersync.HardwareErrors
	require.ErrorAs(t, err, &hwErrs)
	assert.Equal(t, "s", hwErrs.Failures[0].Instrument)
	require.Equal(t, 1, rec.count())
	assert.Contains(t, rec.calls[0], "p")
	assert.NotContains(t, rec.calls[0], "s")
	assert.Equal(t, triggersync.AcquisitionStateArmed, g.State())
}

func TestPoll_GroupsPolledIndependently(t *testing.T) {
	ctx := context.Background()
	rec := &acquisitionRecorder{}
	s := newTestSession(t, Config{OnAcquisition: rec.record, MaxConcurrentPolls: 2})
	var groups []*triggergroup.Group
	for _, name := range []string{"a", "b", "c"} {
		m, h := addScope(t, s, name, nil)
		m.Ready = name != "b"
		g, err := s.NewGroup(h)
		require.NoError(t, err)
		groups = append(groups, g)
	}
	require.NoError(t, s.Start(ctx, triggersync.TriggerTypeSingle, ids(groups)...))

	require.NoError(t, s.Poll(ctx))

	assert.Equal(t, 2, rec.count())
	assert.ElementsMatch(t, []string{groups[0].ID(), groups[2].ID()}, rec.group)
	assert.True(t, s.Active(groups[1].ID()))
}

func TestPoll_TriggerTimeoutStopsGroup(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	s := newTestSession(t, Config{TriggerTimeout: time.Second, Now: clock.Now})
	mp, p := addScope(t, s, "p", nil)
	gate := filter.NewGate("fft")
	g, err := s.NewGroup(p)
	require.NoError(t, err)
	g.AddFilter(gate)
	require.NoError(t, s.Start(ctx, triggersync.TriggerTypeNormal))

	clock.Advance(500 * time.Millisecond)
	require.NoError(t, s.Poll(ctx))

	clock.Advance(time.Second)
	err = s.Poll(ctx)

	assert.ErrorIs(t, err, triggersync.ErrTriggerTimeout)
	assert.False(t, s.Active(g.ID()))
	assert.Equal(t, triggersync.AcquisitionStateIdle, g.State())
	assert.False(t, gate.Paused())
	assert.Equal(t, 1, mp.DisarmCalls)

	assert.NoError(t, s.Poll(ctx), "timeout is reported once")
}

func TestPoll_TriggerResetsTimeout(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	s := newTestSession(t, Config{TriggerTimeout: time.Second, Now: clock.Now})
	mp, p := addScope(t, s, "p", nil)
	ms, sec := addScope(t, s, "s", nil)
	g, err := s.NewGroup(p)
	require.NoError(t, err)
	require.NoError(t, g.AddSecondary(ctx, sec))
	require.NoError(t, s.Start(ctx, triggersync.TriggerTypeNormal))

	clock.Advance(900 * time.Millisecond)
	mp.SetReady(true)
	ms.SetReady(true)
	require.NoError(t, s.Poll(ctx))
	mp.SetReady(false)

	clock.Advance(900 * time.Millisecond)
	require.NoError(t, s.Poll(ctx))

	assert.True(t, s.Active(g.ID()))
}

func TestStop_DefaultAndAll(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, Config{})
	_, a := addScope(t, s, "a", nil)
	_, b := addScope(t, s, "b", nil)
	g1, err := s.NewGroup(a)
	require.NoError(t, err)
	g2, err := s.NewGroup(b)
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx, triggersync.TriggerTypeNormal, g1.ID(), g2.ID()))

	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.Active(g1.ID()))
	assert.True(t, s.Active(g2.ID()))

	require.NoError(t, s.StopAll(ctx))
	assert.False(t, s.Active(g2.ID()))
	assert.Equal(t, triggersync.AcquisitionStateIdle, g2.State())
}

func TestRun_PollsUntilCancelledThenStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	var once sync.Once
	rec := &acquisitionRecorder{}
	s := newTestSession(t, Config{
		PollInterval: time.Millisecond,
		OnAcquisition: func(ctx context.Context, g *triggergroup.Group, w map[string]triggersync.WaveformSet) {
			rec.record(ctx, g, w)
			if rec.count() >= 3 {
				once.Do(func() { close(done) })
			}
		},
	})
	mp, p := addScope(t, s, "p", nil)
	ms, sec := addScope(t, s, "s", nil)
	mp.SetReady(true)
	ms.SetReady(true)
	g, err := s.NewGroup(p)
	require.NoError(t, err)
	require.NoError(t, g.AddSecondary(ctx, sec))
	require.NoError(t, s.Start(ctx, triggersync.TriggerTypeNormal))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run(ctx)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("no acquisitions within timeout")
	}
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Equal(t, triggersync.AcquisitionStateIdle, g.State())
	assert.False(t, s.Active(g.ID()))
}

func TestPoll_PrimaryRemovedDeactivatesFreeRunningGroup(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	rec := &acquisitionRecorder{}
	s := newTestSession(t, Config{
		Name:           "primary-removed",
		OnAcquisition:  rec.record,
		TriggerTimeout: time.Second,
		Now:            clock.Now,
		MetricsEnabled: boolPtr(true),
	})
	_, p := addScope(t, s, "p", nil)
	ms1, s1 := addScope(t, s, "s1", nil)
	ms2, s2 := addScope(t, s, "s2", nil)
	ms1.Ready = true
	ms2.Ready = true
	g, err := s.NewGroup(p)
	require.NoError(t, err)
	require.NoError(t, g.AddSecondary(ctx, s1))
	require.NoError(t, g.AddSecondary(ctx, s2))
	require.NoError(t, s.Start(ctx, triggersync.TriggerTypeNormal))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ActiveGroups.WithLabelValues("primary-removed")))

	require.NoError(t, g.RemoveScope(ctx, p))

	err = s.Poll(ctx)
	assert.ErrorIs(t, err, triggersync.ErrNoPrimary)
	assert.Equal(t, 1, rec.count())
	assert.False(t, s.Active(g.ID()))
	assert.Equal(t, triggersync.AcquisitionStateIdle, g.State())
	assert.False(t, s.watchdog.Tracking(g.ID()))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.ActiveGroups.WithLabelValues("primary-removed")))

	clock.Advance(2 * time.Second)
	assert.NoError(t, s.Poll(ctx), "no timeout for a cycle that was never armed")
	assert.Equal(t, 1, rec.count())
}

func TestComplete_StoppedAfterReadyCheckDeliversNothing(t *testing.T) {
	ctx := context.Background()
	rec := &acquisitionRecorder{}
	s := newTestSession(t, Config{OnAcquisition: rec.record})
	mp, p := addScope(t, s, "p", nil)
	mp.Ready = true
	g, err := s.NewGroup(p)
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx, triggersync.TriggerTypeSingle))
	ready, err := g.CheckForPendingWaveforms(ctx)
	require.NoError(t, err)
	require.True(t, ready)

	// The group is stopped between the readiness check and the download.
	require.NoError(t, g.Stop(ctx))

	s.mu.Lock()
	e := s.find(g.ID())
	s.mu.Unlock()
	require.NotNil(t, e)

	assert.NoError(t, s.complete(ctx, e))
	assert.Zero(t, rec.count())
	assert.Zero(t, s.Acquisitions())
	assert.Zero(t, mp.DownloadCalls)
}
