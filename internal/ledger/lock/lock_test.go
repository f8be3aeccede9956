package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/bookkeeping/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client), mr
}

func TestTryLockAndRelease(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "k", "someone-else"))
	assert.True(t, mr.Exists("k"))

	require.NoError(t, locker.Release(ctx, "k", token))
	assert.False(t, mr.Exists("k"))
}

func TestLockAccountsTakesEveryKeyOnce(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()
	tenantID := snowflake.ID(7)

	held, err := locker.LockAccounts(ctx, tenantID, []snowflake.ID{30, 10, 30, 20}, time.Second, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, held.keys, 3)
	assert.Equal(t, "ledger:lock:7:10", held.keys[0].key)
	assert.Equal(t, "ledger:lock:7:20", held.keys[1].key)
	assert.Equal(t, "ledger:lock:7:30", held.keys[2].key)

	require.NoError(t, held.Release(ctx))
	assert.Empty(t, mr.Keys())
}

func TestLockAccountsTimesOutAndReleasesPartialSet(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()
	tenantID := snowflake.ID(7)

	require.NoError(t, mr.Set("ledger:lock:7:20", "other"))

	_, err := locker.LockAccounts(ctx, tenantID, []snowflake.ID{10, 20}, time.Second, 30*time.Millisecond)
	require.ErrorIs(t, err, ErrLockNotAcquired)
	assert.False(t, mr.Exists("ledger:lock:7:10"))
	assert.True(t, mr.Exists("ledger:lock:7:20"))
}

func TestNilLockerIsNoop(t *testing.T) {
	var locker *Locker
	held, err := locker.LockAccounts(context.Background(), 1, []snowflake.ID{1}, time.Second, time.Second)
	require.NoError(t, err)
	assert.Nil(t, held)
	assert.NoError(t, held.Release(context.Background()))
}

func TestNewRedisClientWithoutAddr(t *testing.T) {
	assert.Nil(t, NewRedisClient(config.Config{}))
	assert.Nil(t, NewLocker(nil))
}
