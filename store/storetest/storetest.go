// Package storetest provides a behavioural test suite shared by every
// GroupStore implementation.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/scopehal/triggersync"
	"github.com/scopehal/triggersync/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.GroupStore

// Layout returns a representative two-group layout.
func Layout() []triggersync.GroupRecord {
	return []triggersync.GroupRecord{
		{
			ID:          "bench",
			Primary:     "scope1",
			Secondaries: []string{"scope2", "scope3"},
			Filters:     []string{"fft", "eye"},
			Default:     true,
		},
		{
			ID:      "probe",
			Primary: "scope4",
		},
	}
}

// Run exercises the GroupStore contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("SaveAndList", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SaveGroups(ctx, "lab", Layout()))

		groups, err := s.ListGroups(ctx, "lab")
		require.NoError(t, err)
		assertLayout(t, Layout(), groups)
	})

	t.Run("ListUnknownSessionIsEmpty", func(t *testing.T) {
		s := newStore(t)

		groups, err := s.ListGroups(context.Background(), "nothing-here")

		require.NoError(t, err)
		assert.Empty(t, groups)
	})

	t.Run("SaveReplacesLayout", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SaveGroups(ctx, "lab", Layout()))

		replacement := []triggersync.GroupRecord{{ID: "solo", Primary: "scope9"}}
		require.NoError(t, s.SaveGroups(ctx, "lab", replacement))

		groups, err := s.ListGroups(ctx, "lab")
		require.NoError(t, err)
		assertLayout(t, replacement, groups)

		_, err = s.GetGroup(ctx, "lab", "bench")
		assert.ErrorIs(t, err, store.ErrGroupNotFound)
	})

	t.Run("SaveEmptyClearsLayout", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SaveGroups(ctx, "lab", Layout()))

		require.NoError(t, s.SaveGroups(ctx, "lab", nil))

		groups, err := s.ListGroups(ctx, "lab")
		require.NoError(t, err)
		assert.Empty(t, groups)
	})

	t.Run("SessionsAreIndependent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SaveGroups(ctx, "lab", Layout()))
		require.NoError(t, s.SaveGroups(ctx, "field", []triggersync.GroupRecord{{ID: "bench", Primary: "handheld"}}))

		lab, err := s.GetGroup(ctx, "lab", "bench")
		require.NoError(t, err)
		assert.Equal(t, "scope1", lab.Primary)

		field, err := s.GetGroup(ctx, "field", "bench")
		require.NoError(t, err)
		assert.Equal(t, "handheld", field.Primary)
	})

	t.Run("GetGroup", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SaveGroups(ctx, "lab", Layout()))

		rec, err := s.GetGroup(ctx, "lab", "bench")
		require.NoError(t, err)
		assertRecord(t, Layout()[0], rec)

		_, err = s.GetGroup(ctx, "lab", "missing")
		assert.ErrorIs(t, err, store.ErrGroupNotFound)
	})

	t.Run("DeleteGroupKeepsOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		layout := append(Layout(), triggersync.GroupRecord{ID: "spare", Secondaries: []string{"scope5"}})
		require.NoError(t, s.SaveGroups(ctx, "lab", layout))

		require.NoError(t, s.DeleteGroup(ctx, "lab", "probe"))

		groups, err := s.ListGroups(ctx, "lab")
		require.NoError(t, err)
		assertLayout(t, []triggersync.GroupRecord{layout[0], layout[2]}, groups)

		assert.ErrorIs(t, s.DeleteGroup(ctx, "lab", "probe"), store.ErrGroupNotFound)
	})

	t.Run("RejectsInvalidLayout", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SaveGroups(ctx, "lab", Layout()))

		err := s.SaveGroups(ctx, "lab", []triggersync.GroupRecord{
			{ID: "a", Primary: "scope1"},
			{ID: "b", Primary: "scope1"},
		})

		var dupErr *store.DuplicateInstrumentError
		require.ErrorAs(t, err, &dupErr)
		assert.Equal(t, "scope1", dupErr.Instrument)

		groups, err := s.ListGroups(ctx, "lab")
		require.NoError(t, err)
		assertLayout(t, Layout(), groups)
	})

	t.Run("ReturnedRecordsAreCopies", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SaveGroups(ctx, "lab", Layout()))

		rec, err := s.GetGroup(ctx, "lab", "bench")
		require.NoError(t, err)
		rec.Secondaries[0] = "mutated"

		again, err := s.GetGroup(ctx, "lab", "bench")
		require.NoError(t, err)
		assert.Equal(t, "scope2", again.Secondaries[0])
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SaveGroups(ctx, "lab", Layout()))

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.ListGroups(ctx, "lab")
				assert.NoError(t, err)
				assert.NoError(t, s.SaveGroups(ctx, "lab", Layout()))
			}()
		}
		wg.Wait()

		groups, err := s.ListGroups(ctx, "lab")
		require.NoError(t, err)
		assertLayout(t, Layout(), groups)
	})
}

// assertLayout compares layouts treating nil and empty lists as equal,
// since not every backend can tell them apart.
func assertLayout(t *testing.T, expected, actual []triggersync.GroupRecord) {
	t.Helper()
	require.Len(t, actual, len(expected))
	for i := range expected {
		assertRecord(t, expected[i], actual[i])
	}
}

func assertRecord(t *testing.T, expected, actual triggersync.GroupRecord) {
	t.Helper()
	assert.Equal(t, expected.ID, actual.ID)
	assert.Equal(t, expected.Primary, actual.Primary)
	assert.Equal(t, expected.Default, actual.Default)
	assert.ElementsMatch(t, expected.Secondaries, actual.Secondaries)
	assert.Equal(t, len(expected.Secondaries), len(actual.Secondaries))
	if len(expected.Secondaries) > 0 {
		assert.Equal(t, expected.Secondaries, actual.Secondaries, "secondary order is the cable-chain order")
	}
	if len(expected.Filters) > 0 {
		assert.Equal(t, expected.Filters, actual.Filters)
	} else {
		assert.Empty(t, actual.Filters)
	}
}
