package storage

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// both implementations must satisfy the same behavioral contract
func runStoreContract(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		var out record
		found, err := store.Get(ctx, "orders", "nope", &out)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("set then get", func(t *testing.T) {
		in := record{Name: "a", Count: 1}
		require.NoError(t, store.Set(ctx, "orders", "k1", in))

		var out record
		found, err := store.Get(ctx, "orders", "k1", &out)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, in, out)
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "orders", "k1", record{Name: "b", Count: 2}))
		var out record
		_, err := store.Get(ctx, "orders", "k1", &out)
		require.NoError(t, err)
		assert.Equal(t, "b", out.Name)
	})

	t.Run("groups are disjoint", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "trades", "k1", record{Name: "t"}))
		var out record
		found, err := store.Get(ctx, "orders", "k1", &out)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "b", out.Name)
	})

	t.Run("scan group", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "positions", "p1", record{Name: "x"}))
		require.NoError(t, store.Set(ctx, "positions", "p2", record{Name: "y"}))

		var keys []string
		err := store.ScanGroup(ctx, "positions", func(key string, _ []byte) error {
			keys = append(keys, key)
			return nil
		})
		require.NoError(t, err)
		sort.Strings(keys)
		assert.Equal(t, []string{"p1", "p2"}, keys)
	})

	t.Run("scan empty group", func(t *testing.T) {
		calls := 0
		err := store.ScanGroup(ctx, "nothing-here", func(string, []byte) error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Zero(t, calls)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "orders", "k1"))
		var out record
		found, err := store.Get(ctx, "orders", "k1", &out)
		require.NoError(t, err)
		assert.False(t, found)

		// deleting an absent key is a no-op
		require.NoError(t, store.Delete(ctx, "orders", "k1"))
	})
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestPebbleStoreContract(t *testing.T) {
	store, err := NewPebbleStore(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer store.Close()

	runStoreContract(t, store)
}

func TestPebbleStoreScanStopsAtGroupBoundary(t *testing.T) {
	store, err := NewPebbleStore(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	// "orders" and "orders2" share a byte prefix but are distinct groups
	require.NoError(t, store.Set(ctx, "orders", "a", record{Name: "in"}))
	require.NoError(t, store.Set(ctx, "orders2", "b", record{Name: "out"}))

	var keys []string
	err = store.ScanGroup(ctx, "orders", func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)
}

func TestMemoryStoreFailNextSet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.FailNextSet = assert.AnError
	err := store.Set(ctx, "orders", "k", record{})
	assert.ErrorIs(t, err, assert.AnError)

	// one-shot: the next write succeeds
	assert.NoError(t, store.Set(ctx, "orders", "k", record{}))
}
