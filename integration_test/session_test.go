//go:build integration

package integration_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scopehal/triggersync"
	"github.com/scopehal/triggersync/filter"
	"github.com/scopehal/triggersync/instrument"
	"github.com/scopehal/triggersync/session"
	"github.com/scopehal/triggersync/store"
	"github.com/scopehal/triggersync/triggergroup"
)

// newSession creates a session on st with simulated instruments and one gate filter.
func newSession(t *testing.T, st store.GroupStore, name triggersync.SessionName, onAcquisition session.AcquisitionFunc, scopes ...string) *session.Session {
	t.Helper()

	disabled := false
	sess := session.New(session.Config{
		Name:           name,
		Store:          st,
		PollInterval:   5 * time.Millisecond,
		OnAcquisition:  onAcquisition,
		MetricsEnabled: &disabled,
	})
	t.Cleanup(func() {
		_ = sess.Close(context.Background())
	})

	for _, scope := range scopes {
		_, err := sess.AddInstrument(instrument.NewSimulated(instrument.SimulatedConfig{Name: scope, TriggerAfterPolls: 2}))
		require.NoError(t, err)
	}
	sess.AddFilter(filter.NewGate("fft"))
	return sess
}

func buildChain(t *testing.T, ctx context.Context, sess *session.Session, primary string, secondaries ...string) *triggergroup.Group {
	t.Helper()

	p, err := sess.Instrument(primary)
	require.NoError(t, err)
	g, err := sess.NewGroup(p)
	require.NoError(t, err)

	for _, name := range secondaries {
		h, err := sess.Instrument(name)
		require.NoError(t, err)
		require.NoError(t, g.AddSecondary(ctx, h))
	}
	f, err := sess.Filter("fft")
	require.NoError(t, err)
	g.AddFilter(f)
	return g
}

// waitForCondition polls condition until it returns true or timeout elapses.
func waitForCondition(t *testing.T, timeout time.Duration, condition func() bool, message string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for condition: %s", message)
}

func TestRecoveryAfterRestart(t *testing.T) {
	st := setupTestEnvironment(t)
	ctx := t.Context()

	first := newSession(t, st, "lab", nil, "scope1", "scope2", "scope3")
	g := buildChain(t, ctx, first, "scope1", "scope2", "scope3")
	require.NoError(t, first.Save(ctx))
	require.NoError(t, first.Close(ctx))

	var acquisitions atomic.Int64
	second := newSession(t, st, "lab", func(ctx context.Context, g *triggergroup.Group, waveforms map[string]triggersync.WaveformSet) {
		if len(waveforms) == 3 {
			acquisitions.Add(1)
		}
	}, "scope1", "scope2", "scope3")
	require.NoError(t, second.Load(ctx))

	restored, err := second.Group(g.ID())
	require.NoError(t, err)
	assert.Equal(t, "scope1", restored.Primary().Name())
	require.Len(t, restored.Secondaries(), 2)
	assert.Equal(t, "scope2", restored.Secondaries()[0].Name())
	assert.Equal(t, "scope3", restored.Secondaries()[1].Name())
	assert.True(t, restored.IsDefault())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	require.NoError(t, second.Start(runCtx, triggersync.TriggerTypeNormal))

	done := make(chan error, 1)
	go func() { done <- second.Run(runCtx) }()

	waitForCondition(t, 5*time.Second, func() bool { return acquisitions.Load() >= 3 }, "three synchronized acquisitions")
	cancel()
	assert.True(t, errors.Is(<-done, context.Canceled))
	assert.Equal(t, triggersync.AcquisitionStateIdle, restored.State())
}

func TestMultipleSessionsIndependent(t *testing.T) {
	st := setupTestEnvironment(t)
	ctx := t.Context()

	bench := newSession(t, st, "bench", nil, "scope1", "scope2")
	buildChain(t, ctx, bench, "scope1", "scope2")
	require.NoError(t, bench.Save(ctx))

	probe := newSession(t, st, "probe", nil, "scope9")
	buildChain(t, ctx, probe, "scope9")
	require.NoError(t, probe.Save(ctx))

	benchLayout, err := st.ListGroups(ctx, "bench")
	require.NoError(t, err)
	require.Len(t, benchLayout, 1)
	assert.Equal(t, "scope1", benchLayout[0].Primary)

	probeLayout, err := st.ListGroups(ctx, "probe")
	require.NoError(t, err)
	require.Len(t, probeLayout, 1)
	assert.Equal(t, "scope9", probeLayout[0].Primary)
	assert.Empty(t, probeLayout[0].Secondaries)
}

func TestDeletedGroupIsNotRestored(t *testing.T) {
	st := setupTestEnvironment(t)
	ctx := t.Context()

	sess := newSession(t, st, "lab", nil, "scope1", "scope2")
	keep := buildChain(t, ctx, sess, "scope1")
	drop := buildChain(t, ctx, sess, "scope2")
	require.NoError(t, sess.Save(ctx))

	require.NoError(t, st.DeleteGroup(ctx, "lab", drop.ID()))
	require.NoError(t, sess.Load(ctx))

	groups := sess.Groups()
	require.Len(t, groups, 1)
	assert.Equal(t, keep.ID(), groups[0].ID())
}

func TestGracefulShutdownDuringAcquisition(t *testing.T) {
	st := setupTestEnvironment(t)
	ctx := t.Context()

	sess := newSession(t, st, "lab", nil, "scope1", "scope2")
	g := buildChain(t, ctx, sess, "scope1", "scope2")
	gate, err := sess.Filter("fft")
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	require.NoError(t, sess.Start(runCtx, triggersync.TriggerTypeNormal))
	assert.True(t, gate.(*filter.Gate).Paused())

	done := make(chan error, 1)
	go func() { done <- sess.Run(runCtx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop")
	}

	assert.False(t, sess.Active(g.ID()))
	assert.Equal(t, triggersync.AcquisitionStateIdle, g.State())
	assert.False(t, gate.(*filter.Gate).Paused())
}
