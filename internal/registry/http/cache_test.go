package registryhttp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeboard/tradeboard/internal/testutil"
)

func TestCacheGenerations(t *testing.T) {
	client, _ := testutil.Redis(t)
	ctx := context.Background()
	c := NewCache(client, time.Minute)

	key, err := c.BuildKey(ctx, "registry", "view", "admin")
	require.NoError(t, err)
	assert.Equal(t, "registry:view:admin:0", key)

	require.NoError(t, c.Bump(ctx))
	key, err = c.BuildKey(ctx, "registry", "view", "admin")
	require.NoError(t, err)
	assert.Equal(t, "registry:view:admin:1", key)
}

func TestCacheFollowsBumpsFromOtherProcesses(t *testing.T) {
	client, _ := testutil.Redis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := NewCache(client, time.Minute)
	require.NoError(t, listener.Bump(ctx))
	require.NoError(t, listener.ListenForInvalidation(ctx))
	gen, err := listener.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)

	other := NewCache(client, time.Minute)
	require.NoError(t, other.Bump(ctx))
	assert.Eventually(t, func() bool {
		gen, _ := listener.Generation(ctx)
		return gen == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFetchStoresLoaderResult(t *testing.T) {
	client, mr := testutil.Redis(t)
	ctx := context.Background()
	c := NewCache(client, time.Minute)

	calls := 0
	load := func() ([]string, error) {
		calls++
		return []string{"S1", "S2"}, nil
	}
	for i := 0; i < 2; i++ {
		got, err := fetch(ctx, c, "k", load)
		require.NoError(t, err)
		assert.Equal(t, []string{"S1", "S2"}, got)
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, time.Minute, mr.TTL("k"))

	got, err := fetch(ctx, (*Cache)(nil), "k", load)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 2, calls)
}
