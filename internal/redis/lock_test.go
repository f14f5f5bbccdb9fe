package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockKeys(t *testing.T) {
	id := uuid.MustParse("7b1d1f0e-8a39-4a4e-9d7e-3c1b1b2f5a10")

	assert.Equal(t, "lock:slot:7b1d1f0e-8a39-4a4e-9d7e-3c1b1b2f5a10", SlotLockKey(id))
	assert.Equal(t, "lock:doctor-slots:7b1d1f0e-8a39-4a4e-9d7e-3c1b1b2f5a10", DoctorLockKey(id))
	assert.NotEqual(t, SlotLockKey(id), DoctorLockKey(id))
}

func TestNoopLocker_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	called := false

	err := NoopLocker{}.WithLock(context.Background(), "k", func(ctx context.Context) error {
		called = true
		return boom
	})

	assert.True(t, called)
	assert.ErrorIs(t, err, boom)
}

func newTestLocker(t *testing.T) (*miniredis.Miniredis, Locker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisLocker(client, 5*time.Second)
}

func TestRedisLocker_ReleasesAfterRun(t *testing.T) {
	mr, locker := newTestLocker(t)
	key := SlotLockKey(uuid.New())

	err := locker.WithLock(context.Background(), key, func(ctx context.Context) error {
		assert.True(t, mr.Exists(key))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists(key))
}

func TestRedisLocker_Contended(t *testing.T) {
	_, locker := newTestLocker(t)
	key := SlotLockKey(uuid.New())

	err := locker.WithLock(context.Background(), key, func(ctx context.Context) error {
		inner := locker.WithLock(ctx, key, func(context.Context) error {
			t.Fatal("second holder must not run")
			return nil
		})
		assert.ErrorIs(t, inner, ErrLockNotAcquired)
		return nil
	})
	require.NoError(t, err)
}

func TestRedisLocker_DoesNotReleaseForeignToken(t *testing.T) {
	mr, locker := newTestLocker(t)
	key := DoctorLockKey(uuid.New())

	err := locker.WithLock(context.Background(), key, func(ctx context.Context) error {
		// simulate expiry and takeover by another holder
		require.NoError(t, mr.Set(key, "someone-else"))
		return nil
	})
	require.NoError(t, err)

	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}
