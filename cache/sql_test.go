package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQL(t *testing.T, opts ...Option) Store {
	t.Helper()
	c, err := OpenSQL(context.Background(), DriverSQLite, ":memory:", "cache_entries", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSQLSimpleStore(t *testing.T) {
	c, err := OpenSQL(context.Background(), DriverSQLite, "", "cache_entries", WithExpiryCheck(time.Second))
	assert.NoError(t, err)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestSQLSetGetStore(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := newTestSQL(t, WithClock(clock.Now))

	found, val, err := c.Get(ctx, "key")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)

	assert.NoError(t, c.Set(ctx, "key", []byte("value"), Expiration{Absolute: time.Minute}))
	found, val, err = c.Get(ctx, "key")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("value"), val)

	// Overwrite.
	assert.NoError(t, c.Set(ctx, "key", []byte("other"), Expiration{Absolute: time.Minute}))
	_, val, err = c.Get(ctx, "key")
	assert.NoError(t, err)
	assert.Equal(t, []byte("other"), val)

	clock.Advance(2 * time.Minute)
	found, _, err = c.Get(ctx, "key")
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestSQLStoreSliding(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := newTestSQL(t, WithClock(clock.Now))

	assert.NoError(t, c.Set(ctx, "key", []byte("value"), Expiration{Absolute: time.Minute, Sliding: 30 * time.Second}))
	clock.Advance(25 * time.Second)
	found, _, err := c.Get(ctx, "key")
	assert.NoError(t, err)
	assert.True(t, found)
	clock.Advance(25 * time.Second)
	found, _, err = c.Get(ctx, "key")
	assert.NoError(t, err)
	assert.True(t, found)
	clock.Advance(11 * time.Second)
	found, _, err = c.Get(ctx, "key")
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestSQLStoreRemove(t *testing.T) {
	ctx := context.Background()
	c := newTestSQL(t)

	assert.NoError(t, c.Set(ctx, "key", []byte("value"), Expiration{}))
	removed, err := c.Remove(ctx, "key")
	assert.NoError(t, err)
	assert.True(t, removed)
	removed, err = c.Remove(ctx, "key")
	assert.NoError(t, err)
	assert.False(t, removed)
}

func TestSQLStoreEmptyPayload(t *testing.T) {
	ctx := context.Background()
	c := newTestSQL(t)

	assert.NoError(t, c.Set(ctx, "key", nil, Expiration{}))
	found, val, err := c.Get(ctx, "key")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, val)
}

func TestSQLStorePersistence(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "cache.db")

	c, err := OpenSQL(ctx, DriverSQLite, dbPath, "cache_entries")
	require.NoError(t, err)
	assert.NoError(t, c.Set(ctx, "key", []byte("persisted"), Expiration{}))
	assert.NoError(t, c.Close())

	c, err = OpenSQL(ctx, DriverSQLite, dbPath, "cache_entries")
	require.NoError(t, err)
	defer c.Close()
	found, val, err := c.Get(ctx, "key")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("persisted"), val)
}

func TestSQLCallerOwnedDB(t *testing.T) {
	ctx := context.Background()
	db, err := sqlx.Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	require.NoError(t, EnsureTable(ctx, db, "entries"))
	require.NoError(t, EnsureTable(ctx, db, "entries"))
	c, err := NewSQL(ctx, db, "entries")
	require.NoError(t, err)
	assert.NoError(t, c.Set(ctx, "key", []byte("value"), Expiration{}))
	assert.NoError(t, c.Close())
	assert.NoError(t, db.PingContext(ctx))
}

func TestSQLInvalidTable(t *testing.T) {
	_, err := OpenSQL(context.Background(), DriverSQLite, ":memory:", "cache; DROP TABLE x")
	assert.Error(t, err)
}
