package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/skein/pkg/adapters/redis"
	"github.com/stretchr/testify/assert"
)

func TestRedisLocker_LockUnlock(t *testing.T) {
	mr, client := newTestClient(t)
	locker := redis.NewLocker(client, "test:fp:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "fp-abc", 5*time.Second)
	assert.NoError(t, err)
	assert.NotNil(t, unlock)

	assert.True(t, mr.Exists("test:fp:lock:fp-abc"), "lock key should be set in Redis")

	err = unlock(ctx)
	assert.NoError(t, err)

	assert.False(t, mr.Exists("test:fp:lock:fp-abc"), "lock key should be removed after unlock")
}

func TestRedisLocker_Contention(t *testing.T) {
	mr, client := newTestClient(t)
	locker1 := redis.NewLocker(client, "test:fp:")
	locker2 := redis.NewLocker(client, "test:fp:") // same prefix -> contention
	ctx := context.Background()
	key := "shared-fingerprint"

	unlock1, err := locker1.Lock(ctx, key, 5*time.Second)
	assert.NoError(t, err)

	// Holder 2 polls until its context times out.
	ctxTimeout, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = locker2.Lock(ctxTimeout, key, 5*time.Second)
	assert.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.WithinDuration(t, start.Add(500*time.Millisecond), time.Now(), 100*time.Millisecond, "should block until timeout")

	// After release the second holder succeeds.
	assert.NoError(t, unlock1(ctx))

	unlock2, err := locker2.Lock(ctx, key, 5*time.Second)
	assert.NoError(t, err)
	defer unlock2(ctx)

	assert.True(t, mr.Exists("test:fp:lock:shared-fingerprint"))
}
