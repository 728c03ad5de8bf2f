package blobcache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_BuildsOncePerResidency(t *testing.T) {
	c := New()
	var builds atomic.Int32
	build := func() ([]byte, error) {
		builds.Add(1)
		return []byte("blob"), nil
	}

	h1, err := c.Acquire("k", build)
	require.NoError(t, err)
	h2, err := c.Acquire("k", build)
	require.NoError(t, err)

	assert.Equal(t, int32(1), builds.Load())
	assert.Equal(t, "blob", string(h1.Bytes()))
	assert.Equal(t, "blob", string(h2.Bytes()))
	assert.Equal(t, 1, c.Len())

	h1.Release()
	assert.Equal(t, 1, c.Len(), "still referenced")
	h2.Release()
	assert.Equal(t, 0, c.Len(), "evicted at zero refs")

	// Re-acquiring after eviction rebuilds.
	h3, err := c.Acquire("k", build)
	require.NoError(t, err)
	assert.Equal(t, int32(2), builds.Load())
	h3.Release()
}

func TestAcquire_FailedBuildIsNotCached(t *testing.T) {
	c := New()
	boom := errors.New("boom")

	_, err := c.Acquire("k", func() ([]byte, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	h, err := c.Acquire("k", func() ([]byte, error) { return []byte("ok"), nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", string(h.Bytes()))
	h.Release()
}

func TestAcquire_ConcurrentSharesOneBuild(t *testing.T) {
	c := New()
	var builds atomic.Int32

	var wg sync.WaitGroup
	handles := make([]*Handle, 16)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := c.Acquire("k", func() ([]byte, error) {
				builds.Add(1)
				return []byte("shared"), nil
			})
			require.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	for _, h := range handles {
		assert.Equal(t, "shared", string(h.Bytes()))
		h.Release()
	}
	assert.Equal(t, 0, c.Len())
}
