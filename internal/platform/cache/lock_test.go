package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client, time.Second), mr
}

func TestWithLockReleasesAfterRun(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	called := false
	err := locker.WithLock(ctx, "finance:period:1:lock", func(context.Context) error {
		called = true
		require.True(t, mr.Exists("finance:period:1:lock"))
		return nil
	})
	require.NoError(t, err)
	require.True(t, called)
	require.False(t, mr.Exists("finance:period:1:lock"))
}

func TestWithLockPropagatesError(t *testing.T) {
	locker, mr := newTestLocker(t)
	boom := errors.New("boom")

	err := locker.WithLock(context.Background(), "k", func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists("k"))
}

func TestWithLockNotObtained(t *testing.T) {
	locker, mr := newTestLocker(t)
	locker.retry = nil
	require.NoError(t, mr.Set("busy", "someone-else"))

	err := locker.WithLock(context.Background(), "busy", func(context.Context) error {
		t.Fatal("must not run")
		return nil
	})
	require.ErrorIs(t, err, ErrLockNotObtained)
}

func TestNilLockerRunsDirectly(t *testing.T) {
	var locker *Locker
	called := false
	require.NoError(t, locker.WithLock(context.Background(), "k", func(context.Context) error {
		called = true
		return nil
	}))
	require.True(t, called)
}
