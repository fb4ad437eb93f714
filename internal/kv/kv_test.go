package kv

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blob struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// storeCases runs the contract tests against every backend.
func storeCases(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestRoundTrip(t *testing.T) {
	for name, store := range storeCases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var got blob
			found, err := store.GetJSON(ctx, "missing", &got)
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, store.SetJSON(ctx, "k", blob{Name: "a", Count: 1}, 0))
			found, err = store.GetJSON(ctx, "k", &got)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, blob{Name: "a", Count: 1}, got)

			// Overwrite replaces the whole value.
			require.NoError(t, store.SetJSON(ctx, "k", blob{Name: "b", Count: 2}, 0))
			found, err = store.GetJSON(ctx, "k", &got)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "b", got.Name)
		})
	}
}

func TestDelete(t *testing.T) {
	for name, store := range storeCases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.SetJSON(ctx, "k", blob{Name: "a"}, 0))
			require.NoError(t, store.Delete(ctx, "k"))

			var got blob
			found, err := store.GetJSON(ctx, "k", &got)
			require.NoError(t, err)
			assert.False(t, found)

			// Deleting a missing key is not an error.
			require.NoError(t, store.Delete(ctx, "k"))
		})
	}
}

func TestPing(t *testing.T) {
	for name, store := range storeCases(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Ping(context.Background()))
		})
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.SetJSON(ctx, "short", blob{Name: "a"}, 10*time.Millisecond))
	require.NoError(t, store.SetJSON(ctx, "forever", blob{Name: "b"}, 0))

	var got blob
	found, err := store.GetJSON(ctx, "short", &got)
	require.NoError(t, err)
	assert.True(t, found)

	require.Eventually(t, func() bool {
		found, err := store.GetJSON(ctx, "short", &got)
		return err == nil && !found
	}, time.Second, 5*time.Millisecond)

	found, err = store.GetJSON(ctx, "forever", &got)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestSQLiteTTLExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out a one-second ttl")
	}
	ctx := context.Background()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	defer store.Close()

	// Expiry granularity is one second.
	require.NoError(t, store.SetJSON(ctx, "short", blob{Name: "a"}, time.Second))

	var got blob
	require.Eventually(t, func() bool {
		found, err := store.GetJSON(ctx, "short", &got)
		return err == nil && !found
	}, 3*time.Second, 100*time.Millisecond)
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")

	store, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, store.SetJSON(ctx, "k", blob{Name: "a", Count: 7}, 0))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	var got blob
	found, err := reopened.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 7, got.Count)
}
