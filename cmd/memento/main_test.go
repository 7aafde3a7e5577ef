package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/Matozap/DistributedCache/memento"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandsAgainstSQLite(t *testing.T) {
	t.Setenv(memento.EnvServiceName, "")
	db := filepath.Join(t.TempDir(), "cache.db")
	base := []string{"--type", "sqlite", "--connection", db, "--instance", "entries", "--prefix", "cli", "--log-level", "error"}
	cmd := func(args ...string) []string { return append(args, base...) }

	_, err := run(t, cmd("init-table")...)
	require.NoError(t, err)

	_, err = run(t, cmd("set", "greeting", "hello", "--ttl", "1h")...)
	require.NoError(t, err)
	_, err = run(t, cmd("set", "user:1", "ada", "--ttl", "", "--sliding", "10m")...)
	require.NoError(t, err)

	out, err := run(t, cmd("get", "greeting")...)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)

	out, err = run(t, cmd("keys")...)
	require.NoError(t, err)
	assert.Equal(t, "cli:greeting\ncli:user:1\n", out)

	out, err = run(t, cmd("clear", "--key-prefix", "user:")...)
	require.NoError(t, err)
	assert.Equal(t, "1 keys removed\n", out)

	_, err = run(t, cmd("get", "user:1")...)
	assert.True(t, errors.Is(err, errNotFound))

	_, err = run(t, cmd("remove", "greeting")...)
	require.NoError(t, err)
	_, err = run(t, cmd("get", "greeting")...)
	assert.True(t, errors.Is(err, errNotFound))

	// only entries still present are counted
	_, err = run(t, cmd("set", "fresh", "v")...)
	require.NoError(t, err)
	out, err = run(t, cmd("clear", "--key-prefix", "", "--reset-index")...)
	require.NoError(t, err)
	assert.Equal(t, "1 keys removed\n", out)
	out, err = run(t, cmd("keys")...)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestInitTableRejectsOtherTypes(t *testing.T) {
	_, err := run(t, "init-table", "--type", "inmemory", "--connection", "", "--instance", "x", "--prefix", "cli")
	assert.Error(t, err)
}

func TestInvalidFlags(t *testing.T) {
	_, err := run(t, "get", "a", "--type", "memcached")
	assert.True(t, errors.Is(err, memento.ErrConfiguration))

	_, err = run(t, "set", "a", "b", "--type", "inmemory", "--ttl", "soon")
	assert.Error(t, err)

	_, err = run(t, "get", "a", "--type", "redis", "--connection", "")
	assert.True(t, errors.Is(err, memento.ErrConfiguration))
}
