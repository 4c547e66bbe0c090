package hotstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryListTrimBounds(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for i := 0; i < 150; i++ {
		require.NoError(t, m.ListAppend(ctx, "chat:1:2", "msg"))
	}
	require.NoError(t, m.ListTrim(ctx, "chat:1:2", -100, -1))

	n, err := m.ListLength(ctx, "chat:1:2")
	require.NoError(t, err)
	assert.EqualValues(t, 100, n)
}

func TestMemorySetWithTTLExpires(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.SetWithTTL(ctx, "user:5:online", "1", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	ok, err := m.Exists(ctx, "user:5:online")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryKeysMatching(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Set(ctx, "chat:1:2", "a"))
	require.NoError(t, m.Set(ctx, "chat:1:3", "b"))
	require.NoError(t, m.Set(ctx, "group:9:messages", "c"))

	keys, err := m.KeysMatching(ctx, "chat:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"chat:1:2", "chat:1:3"}, keys)
}

func TestMemorySetOperations(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.SetAdd(ctx, "user:1:friends", "2", "3"))
	ok, err := m.SetContains(ctx, "user:1:friends", "2")
	require.NoError(t, err)
	assert.True(t, ok)

	card, err := m.SetCardinality(ctx, "user:1:friends")
	require.NoError(t, err)
	assert.EqualValues(t, 2, card)

	require.NoError(t, m.SetRemove(ctx, "user:1:friends", "2"))
	ok, err = m.SetContains(ctx, "user:1:friends", "2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryListSetRewritesEntry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.ListAppend(ctx, "chat:1:2", "a", "b", "c"))
	require.NoError(t, m.ListSet(ctx, "chat:1:2", 1, "B"))

	vals, err := m.ListRange(ctx, "chat:1:2", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "B", "c"}, vals)
}
