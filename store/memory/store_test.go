package memory

import (
	"context"
	"testing"

	"github.com/scopehal/triggersync"
	"github.com/scopehal/triggersync/store"
	"github.com/scopehal/triggersync/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.GroupStore {
		return New()
	})
}

func TestSaveGroups_CallerMutationDoesNotLeak(t *testing.T) {
	s := New()
	ctx := context.Background()
	layout := storetest.Layout()

	require.NoError(t, s.SaveGroups(ctx, "lab", layout))
	layout[0].Secondaries[0] = "mutated"

	rec, err := s.GetGroup(ctx, "lab", "bench")
	require.NoError(t, err)
	assert.Equal(t, "scope2", rec.Secondaries[0])
}

func TestSaveGroups_MissingID(t *testing.T) {
	s := New()

	err := s.SaveGroups(context.Background(), "lab", []triggersync.GroupRecord{{Primary: "scope1"}})

	assert.ErrorIs(t, err, store.ErrMissingGroupID)
}
