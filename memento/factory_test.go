package memento

import (
	"context"
	"fmt"
	"testing"

	"github.com/Matozap/DistributedCache/cache"
	"github.com/Matozap/DistributedCache/logger"
	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreRequiresConnection(t *testing.T) {
	for _, typ := range []CacheType{TypeRedis, TypeSQLite, TypePostgres, TypeTiered} {
		_, err := NewStore(context.Background(), NewOptions().Configure(typ, "", ""))
		require.Error(t, err, typ)
		assert.True(t, errors.Is(err, ErrConfiguration), typ)
	}
}

func TestNewStoreInMemory(t *testing.T) {
	store, err := NewStore(context.Background(), nil)
	require.NoError(t, err)
	defer store.Close()
	_, ok := store.(cache.SetStore)
	assert.True(t, ok)
}

func TestNewStoreInvalidRedisURL(t *testing.T) {
	_, err := NewStore(context.Background(), NewOptions().Configure(TypeRedis, "redis://localhost:6379/notanumber", ""))
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestOpenRedis(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx := context.Background()
	o := NewOptions().
		Configure(TypeRedis, srv.Addr(), "orders").
		SetPrefix("svc").
		SetNativeKeyIndex(true)

	c, err := Open(ctx, o, logger.NewTestLogger())
	require.NoError(t, err)
	defer c.Close()
	assert.True(t, c.index.native())

	Set(ctx, c, "u1", user{Name: "Ada"})
	got, ok := Get[user](ctx, c, "u1")
	assert.True(t, ok)
	assert.Equal(t, "Ada", got.Name)
	assert.True(t, srv.Exists("orders:svc:u1"))

	c.Wait()
	assert.Equal(t, []string{"svc:u1"}, c.Keys(ctx))
	members, err := srv.Members("orders:" + IndexKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"svc:u1"}, members)

	assert.Equal(t, 1, c.Clear(ctx))
	assert.False(t, srv.Exists("orders:svc:u1"))
}

func TestOpenRedisUnreachableDegrades(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx := context.Background()
	o := NewOptions().Configure(TypeRedis, srv.Addr(), "").ConfigureHealthCheck(true, 2, 5)
	c, err := Open(ctx, o, logger.NewTestLogger())
	require.NoError(t, err)
	defer c.Close()

	srv.Close()
	c.SetString(ctx, "a", "x")
	_, ok := c.GetString(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, "DISABLED_AUTO", c.Health().State.String())
}

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	o := NewOptions().Configure(TypeSQLite, ":memory:", "entries").SetPrefix("svc")

	c, err := Open(ctx, o, logger.NewTestLogger())
	require.NoError(t, err)
	assert.False(t, c.index.native())

	c.SetString(ctx, "u1", "a")
	c.SetString(ctx, "u2", "b")
	c.Wait()
	assert.ElementsMatch(t, []string{"svc:u1", "svc:u2"}, c.Keys(ctx))
	assert.Equal(t, 2, c.Clear(ctx))
	_, ok := c.GetString(ctx, "u1")
	assert.False(t, ok)

	require.NoError(t, c.Close())
	_, _, err = c.store.Get(ctx, "svc:u1")
	assert.Error(t, err, "store is closed with the cache")
}

func TestOpenSQLiteInvalidTable(t *testing.T) {
	_, err := Open(context.Background(), NewOptions().Configure(TypeSQLite, ":memory:", "bad-table"), nil)
	assert.Error(t, err)
}

func TestOpenTiered(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx := context.Background()
	o := NewOptions().Configure(TypeTiered, "redis://"+srv.Addr(), "orders").SetPrefix("svc")

	c, err := Open(ctx, o, logger.NewTestLogger())
	require.NoError(t, err)
	defer c.Close()

	c.SetString(ctx, "a", "x")
	assert.True(t, srv.Exists("orders:svc:a"))
	v, ok := c.GetString(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	c.Wait()
	assert.Equal(t, []string{"svc:a"}, c.Keys(ctx))
}

func TestOpenTieredReplicasShareIndex(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx := context.Background()
	open := func() *Cache {
		o := NewOptions().Configure(TypeTiered, "redis://"+srv.Addr(), "orders").SetPrefix("svc")
		c, err := Open(ctx, o, logger.NewTestLogger())
		require.NoError(t, err)
		t.Cleanup(func() { c.Close() })
		return c
	}
	a, b := open(), open()

	a.SetString(ctx, "k1", "1")
	a.Wait()
	b.SetString(ctx, "k2", "2")
	b.Wait()
	a.SetString(ctx, "k3", "3")
	a.Wait()

	fresh := open()
	assert.ElementsMatch(t, []string{"svc:k1", "svc:k2", "svc:k3"}, fresh.Keys(ctx))
	assert.ElementsMatch(t, []string{"svc:k1", "svc:k2", "svc:k3"}, a.Keys(ctx))

	assert.Equal(t, 3, fresh.Clear(ctx))
	assert.False(t, srv.Exists("orders:svc:k2"))
	_, ok := fresh.GetString(ctx, "k2")
	assert.False(t, ok)
	// the index itself is never copied into the in-memory tier
	assert.True(t, srv.Exists("orders:"+IndexKey))
	assert.ElementsMatch(t, []string{"svc:k1", "svc:k2", "svc:k3"}, b.Keys(ctx))
}

func TestOpenLogsMaskedConnection(t *testing.T) {
	srv := miniredis.RunT(t)
	srv.RequireAuth("s3cr3tpass")
	ctx := context.Background()
	log := logger.NewTestLogger()

	c, err := Open(ctx, NewOptions().Configure(TypeRedis, "redis://:s3cr3tpass@"+srv.Addr()+"/0", ""), log)
	require.NoError(t, err)
	defer c.Close()

	c.SetString(ctx, "a", "x")
	v, ok := c.GetString(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	debug := log.Find("DEBUG")
	require.NotEmpty(t, debug)
	msg := fmt.Sprintf(debug[0].Message, debug[0].Arguments...)
	assert.Contains(t, msg, srv.Addr())
	assert.NotContains(t, msg, "s3cr3tpass")
}
