package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistryForTest(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(func(groupID string) *Engine {
		recs, sets := setupRepos(t)
		return New(Config{
			GroupID:  groupID,
			Node:     &fakeNode{},
			Records:  recs,
			Settings: sets,
			Interval: 5 * time.Millisecond,
		})
	})
}

func TestRegistry_StartIsIdempotentPerGroup(t *testing.T) {
	r := newRegistryForTest(t)
	ctx := context.Background()

	e1 := r.Start(ctx, "g1")
	e2 := r.Start(ctx, "g1")
	assert.Same(t, e1, e2)

	other := r.Start(ctx, "g2")
	assert.NotSame(t, e1, other)

	require.NoError(t, r.StopAll())
}

func TestRegistry_StopRemovesEngine(t *testing.T) {
	r := newRegistryForTest(t)
	ctx := context.Background()

	r.Start(ctx, "g1")
	require.NotNil(t, r.Get("g1"))

	r.Stop("g1")
	require.Eventually(t, func() bool {
		return r.Get("g1") == nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, r.StopAll())
}

func TestRegistry_StopAllWaits(t *testing.T) {
	r := newRegistryForTest(t)
	ctx := context.Background()

	r.Start(ctx, "g1")
	r.Start(ctx, "g2")
	r.Start(ctx, "g3")

	require.NoError(t, r.StopAll())
	assert.Nil(t, r.Get("g1"))
	assert.Nil(t, r.Get("g2"))
	assert.Nil(t, r.Get("g3"))
}
