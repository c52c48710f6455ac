package lease

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	values   map[string]any
	setErr   error
	released []string
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	if f.values[keys[0]] == args[0] {
		delete(f.values, keys[0])
		f.released = append(f.released, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestRedisAcquireRelease(t *testing.T) {
	fake := &fakeRedis{values: map[string]any{}}
	l := &Redis{client: fake, prefix: "invest:"}

	release, err := l.Acquire(context.Background(), "roi-batch", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(context.Background(), "roi-batch", time.Minute)
	assert.ErrorIs(t, err, ErrHeld)

	require.NoError(t, release(context.Background()))
	assert.Equal(t, []string{"invest:roi-batch"}, fake.released)

	_, err = l.Acquire(context.Background(), "roi-batch", time.Minute)
	assert.NoError(t, err)
}

func TestRedisAcquireError(t *testing.T) {
	boom := errors.New("dial tcp: connection refused")
	l := &Redis{client: &fakeRedis{values: map[string]any{}, setErr: boom}}

	_, err := l.Acquire(context.Background(), "roi-batch", time.Minute)
	assert.ErrorIs(t, err, boom)
}

func TestLocalExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLocal()
	l.now = func() time.Time { return now }

	release, err := l.Acquire(context.Background(), "k", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(context.Background(), "k", time.Minute)
	assert.ErrorIs(t, err, ErrHeld)

	now = now.Add(2 * time.Minute)
	second, err := l.Acquire(context.Background(), "k", time.Minute)
	require.NoError(t, err)

	// Освобождение просроченной аренды не снимает новую.
	require.NoError(t, release(context.Background()))
	_, err = l.Acquire(context.Background(), "k", time.Minute)
	assert.ErrorIs(t, err, ErrHeld)

	require.NoError(t, second(context.Background()))
	_, err = l.Acquire(context.Background(), "k", time.Minute)
	assert.NoError(t, err)
}
