// Package storetest provides a conformance suite for ragchat.Store
// implementations.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/fwojciec/ragchat"
	ragjson "github.com/fwojciec/ragchat/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises the Store contract against stores returned by newStore.
// Each subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) ragchat.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing key", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "missing")
		require.ErrorIs(t, err, ragchat.ErrNotFound)
	})

	t.Run("put then get", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "k", []byte("v1")))
		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), got)
	})

	t.Run("put overwrites", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "k", []byte("v1")))
		require.NoError(t, s.Put(ctx, "k", []byte("v2")))
		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), got)
	})

	t.Run("returned value is a copy", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "k", []byte("abc")))
		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		got[0] = 'x'
		again, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), again)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "k", []byte("v")))
		require.NoError(t, s.Delete(ctx, "k"))
		_, err := s.Get(ctx, "k")
		require.ErrorIs(t, err, ragchat.ErrNotFound)
	})

	t.Run("delete missing key", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Delete(ctx, "missing"))
	})

	t.Run("concurrent puts", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.Put(ctx, fmt.Sprintf("k%d", i), []byte{byte(i)}))
			}()
		}
		wg.Wait()
		for i := range 8 {
			got, err := s.Get(ctx, fmt.Sprintf("k%d", i))
			require.NoError(t, err)
			assert.Equal(t, []byte{byte(i)}, got)
		}
	})

	t.Run("session store round trip", func(t *testing.T) {
		s := newStore(t)
		sessions := ragchat.NewSessionStore(s, ragjson.Codec{})
		first, err := sessions.GetOrCreate(ctx)
		require.NoError(t, err)
		assert.True(t, first.Created)

		again, err := sessions.GetOrCreate(ctx)
		require.NoError(t, err)
		assert.False(t, again.Created)
		assert.Equal(t, first.ID, again.ID)

		history := []ragchat.Message{{Role: ragchat.RoleUser, Content: "hi"}}
		require.NoError(t, sessions.SaveHistory(ctx, first.ID, history))
		got, err := sessions.LoadHistory(ctx, first.ID)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "hi", got[0].Content)
	})
}
