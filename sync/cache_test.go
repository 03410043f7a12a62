// go test github.com/homemade/crmsync/sync -v
package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()
	calls := 0
	producer := func(context.Context) ([]CustomField, error) {
		calls++
		return testCustomFields, nil
	}

	first, err := Wrap(ctx, cache, "fields", producer)
	require.NoError(t, err)
	second, err := Wrap(ctx, cache, "fields", producer)
	require.NoError(t, err)

	assert.Equal(t, testCustomFields, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestWrap_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()
	fail := true
	producer := func(context.Context) (string, error) {
		if fail {
			return "", errors.New("unavailable")
		}
		return "ok", nil
	}

	_, err := Wrap(ctx, cache, "k", producer)
	require.Error(t, err)
	_, found, _ := cache.Get(ctx, "k")
	assert.False(t, found)

	fail = false
	value, err := Wrap(ctx, cache, "k", producer)
	require.NoError(t, err)
	assert.Equal(t, "ok", value)
}

func TestRemoteIDCacheKey(t *testing.T) {
	assert.Equal(t, "lead:acc1", RemoteIDCacheKey(ResourceLead, "acc1"))
	assert.Equal(t, "contact:usr1", RemoteIDCacheKey(ResourceContact, "usr1"))
}

func TestMemoryStateStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStateStore()
	value, err := store.Get(ctx, StateKeyLastSyncAt)
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, store.Set(ctx, StateKeyLastSyncAt, "2024-01-01T00:00:00Z"))
	value, _ = store.Get(ctx, StateKeyLastSyncAt)
	assert.Equal(t, "2024-01-01T00:00:00Z", value)
}
