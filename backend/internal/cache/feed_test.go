package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed_CachesUntilInvalidated(t *testing.T) {
	client, _, _ := setupTestClient(t)
	ctx := context.Background()
	feed := NewFeed[string](client, "jobs", time.Minute)

	loads := 0
	load := func(context.Context) ([]string, error) {
		loads++
		return []string{"a", "b"}, nil
	}

	for i := 0; i < 3; i++ {
		items, err := feed.Get(ctx, map[string]string{"q": "go"}, load)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, items)
	}
	assert.Equal(t, 1, loads)

	_, err := feed.Get(ctx, map[string]string{"q": "rust"}, load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)

	feed.Invalidate(ctx)
	_, err = feed.Get(ctx, map[string]string{"q": "go"}, load)
	require.NoError(t, err)
	assert.Equal(t, 3, loads)
}

func TestFeed_Expires(t *testing.T) {
	client, mr, _ := setupTestClient(t)
	ctx := context.Background()
	feed := NewFeed[int](client, "svc", time.Minute)

	loads := 0
	load := func(context.Context) ([]int, error) {
		loads++
		return []int{loads}, nil
	}

	_, err := feed.Get(ctx, "f", load)
	require.NoError(t, err)
	mr.FastForward(61 * time.Second)
	items, err := feed.Get(ctx, "f", load)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, items)
}

func TestFeed_FallsBackWhenRedisDown(t *testing.T) {
	client, mr, _ := setupTestClient(t)
	feed := NewFeed[string](client, "jobs", time.Minute)
	mr.Close()

	items, err := feed.Get(context.Background(), "f", func(context.Context) ([]string, error) {
		return []string{"fresh"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, items)
}

func TestFeed_NilClientAndLoadError(t *testing.T) {
	feed := NewFeed[string](nil, "jobs", time.Minute)
	boom := errors.New("boom")

	_, err := feed.Get(context.Background(), "f", func(context.Context) ([]string, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	feed.Invalidate(context.Background())

	var none *Feed[string]
	items, err := none.Get(context.Background(), "f", func(context.Context) ([]string, error) { return []string{"x"}, nil })
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, items)
}
