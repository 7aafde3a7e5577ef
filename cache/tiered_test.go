package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTieredSimple(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewTiered(NewInMemory(ctx), NewInMemory(ctx))
	assert.NoError(t, c.Close())
}

func TestTieredPanicOnEmpty(t *testing.T) {
	assert.Panics(t, func() {
		NewTiered()
	})
}

func TestTieredGetOrder(t *testing.T) {
	ctx := context.Background()
	l1 := NewInMemory(ctx)
	l2 := NewInMemory(ctx)
	c := NewTiered(l1, l2)
	defer c.Close()

	assert.NoError(t, l1.Set(ctx, "key", []byte("from-l1"), Expiration{}))
	assert.NoError(t, l2.Set(ctx, "key", []byte("from-l2"), Expiration{}))
	assert.NoError(t, l2.Set(ctx, "only-l2", []byte("from-l2"), Expiration{}))

	found, val, err := c.Get(ctx, "key")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("from-l1"), val)

	found, val, err = c.Get(ctx, "only-l2")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("from-l2"), val)
}

func TestTieredSetAndRemoveAll(t *testing.T) {
	ctx := context.Background()
	l1 := NewInMemory(ctx)
	l2 := NewInMemory(ctx)
	c := NewTiered(l1, l2)
	defer c.Close()

	assert.NoError(t, c.Set(ctx, "key", []byte("value"), Expiration{Absolute: time.Minute}))
	for _, l := range []Store{l1, l2} {
		found, _, err := l.Get(ctx, "key")
		assert.NoError(t, err)
		assert.True(t, found)
	}

	removed, err := c.Remove(ctx, "key")
	assert.NoError(t, err)
	assert.True(t, removed)
	for _, l := range []Store{l1, l2} {
		found, _, err := l.Get(ctx, "key")
		assert.NoError(t, err)
		assert.False(t, found)
	}
}

func TestTieredNoExpirationSkipsFrontTiers(t *testing.T) {
	ctx := context.Background()
	l1 := NewInMemory(ctx)
	l2 := NewInMemory(ctx)
	c := NewTiered(l1, l2)
	defer c.Close()

	assert.NoError(t, c.Set(ctx, "index", []byte("v1"), Expiration{}))
	found, _, err := l1.Get(ctx, "index")
	assert.NoError(t, err)
	assert.False(t, found)

	// Another process rewrites the shared tier; reads must see it.
	assert.NoError(t, l2.Set(ctx, "index", []byte("v2"), Expiration{}))
	found, val, err := c.Get(ctx, "index")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v2"), val)
}

func TestTieredSetStoreUsesLastTier(t *testing.T) {
	ctx := context.Background()
	l1 := NewInMemory(ctx)
	l2 := NewInMemory(ctx)
	c := NewTiered(l1, l2)
	defer c.Close()

	sets, ok := c.(SetStore)
	require.True(t, ok)
	assert.NoError(t, sets.AddMember(ctx, "index", "a"))
	assert.NoError(t, l2.AddMember(ctx, "index", "b"))

	members, err := sets.Members(ctx, "index")
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, members)
	members, err = l1.Members(ctx, "index")
	assert.NoError(t, err)
	assert.Empty(t, members)

	_, ok = NewTiered(l1, plainStore{l2}).(SetStore)
	assert.False(t, ok)
}

// plainStore hides the SetStore methods of the wrapped store.
type plainStore struct{ Store }

func TestTieredPropagatesErrors(t *testing.T) {
	ctx := context.Background()
	l1 := NewInMemory(ctx)
	l2 := NewInMemory(ctx)
	c := NewTiered(l1, l2)
	assert.NoError(t, l2.Close())

	assert.ErrorIs(t, c.Set(ctx, "key", []byte("value"), Expiration{}), ErrStoreClosed)
	_, _, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.NoError(t, l1.Close())
}
