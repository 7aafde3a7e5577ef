package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpirationDeadlines(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	absolute, expires, err := Expiration{}.Deadlines(now)
	require.NoError(t, err)
	assert.True(t, absolute.IsZero())
	assert.True(t, expires.IsZero())

	absolute, expires, err = Expiration{Absolute: time.Minute}.Deadlines(now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), absolute)
	assert.Equal(t, absolute, expires)

	absolute, expires, err = Expiration{Absolute: time.Minute, Sliding: 30 * time.Second}.Deadlines(now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), absolute)
	assert.Equal(t, now.Add(30*time.Second), expires)

	absolute, expires, err = Expiration{Absolute: 10 * time.Second, Sliding: 30 * time.Second}.Deadlines(now)
	require.NoError(t, err)
	assert.Equal(t, absolute, expires)

	deadline := now.Add(20 * time.Second)
	absolute, _, err = Expiration{Absolute: time.Minute, AbsoluteAt: deadline}.Deadlines(now)
	require.NoError(t, err)
	assert.Equal(t, deadline, absolute)
}

func TestExpirationInPast(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	_, _, err := Expiration{AbsoluteAt: now.Add(-time.Second)}.Deadlines(now)
	assert.ErrorIs(t, err, ErrAlreadyExpired)
}

func TestExpirationIsZero(t *testing.T) {
	assert.True(t, Expiration{}.IsZero())
	assert.False(t, Expiration{Sliding: time.Second}.IsZero())
	assert.False(t, Expiration{AbsoluteAt: time.Now()}.IsZero())
}
