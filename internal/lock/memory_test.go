package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemLockerExclusive(t *testing.T) {
	ctx := context.Background()
	m := NewMemLocker()

	l, ok, err := m.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = m.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = m.TryLock(ctx, "other", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Unlock(ctx))
	_, ok, err = m.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemLockerExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemLocker()
	m.now = func() time.Time { return now }

	stale, ok, err := m.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, err = m.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// The expired holder must not release the new hold.
	require.NoError(t, stale.Unlock(ctx))
	_, ok, err = m.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	require.False(t, ok)
}
