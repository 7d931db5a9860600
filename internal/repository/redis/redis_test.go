package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tripavail/internal/domain"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, rdb
}

func TestCache_GetOrSetJSON_LoadsOnceAndInvalidates(t *testing.T) {
	ctx := context.Background()
	_, rdb := newClient(t)
	c := New(rdb)

	var loads atomic.Int32
	loader := func(context.Context) (domain.Availability, error) {
		loads.Add(1)
		return domain.Availability{InventoryUnitID: 7, Capacity: 3, Available: 2}, nil
	}

	key := KeyUnitAvailability(7)

	v, err := GetOrSetJSON(ctx, c, key, time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Available)

	v, err = GetOrSetJSON(ctx, c, key, time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Available)
	assert.Equal(t, int32(1), loads.Load())

	require.NoError(t, c.InvalidateUnit(ctx, 7))

	_, err = GetOrSetJSON(ctx, c, key, time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, int32(2), loads.Load())
}

func TestCache_GetOrSetJSON_LoaderErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	_, rdb := newClient(t)
	c := New(rdb)

	boom := errors.New("db down")
	_, err := GetOrSetJSON(ctx, c, "k", time.Minute, func(context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)

	_, ok, err := c.GetString(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_BreakerOpensAndLoaderStillServes(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newClient(t)
	c := New(rdb)
	mr.Close()

	for i := 0; i < 5; i++ {
		_, _, err := c.GetString(ctx, "k")
		require.Error(t, err)
	}

	_, _, err := c.GetString(ctx, "k")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)

	v, err := GetOrSetJSON(ctx, c, "k", time.Minute, func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestCache_TTLExpires(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newClient(t)
	c := New(rdb)

	require.NoError(t, SetJSON(ctx, c, "k", 1, 5*time.Second))
	mr.FastForward(6 * time.Second)

	_, ok, err := GetJSON[int](ctx, c, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIdempotencyStore_LockThenResult(t *testing.T) {
	ctx := context.Background()
	_, rdb := newClient(t)
	s := NewIdempotencyStore(rdb, time.Hour)
	key := KeyIdemHold(1, "holder-a", "abc")
	fp := Fingerprint("holder-a", "1")

	ok, err := s.AcquireLock(ctx, key, 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireLock(ctx, key, 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, found, err := s.GetResult(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SaveResult(ctx, key, fp, `{"id":"x|y"}`))

	gotFP, payload, found, err := s.GetResult(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, fp, gotFP)
	assert.Equal(t, `{"id":"x|y"}`, payload)

	// a stored result survives Release
	require.NoError(t, s.Release(ctx, key))
	_, _, found, err = s.GetResult(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestKeyIdemHold_ScopedByHolder(t *testing.T) {
	assert.NotEqual(t, KeyIdemHold(1, "holder-a", "k1"), KeyIdemHold(1, "holder-b", "k1"))
	assert.NotEqual(t, Fingerprint("holder-a", "1"), Fingerprint("holder-a", "5"))
}

func TestIdempotencyStore_ReleaseDropsLock(t *testing.T) {
	ctx := context.Background()
	_, rdb := newClient(t)
	s := NewIdempotencyStore(rdb, time.Hour)
	key := KeyIdemHold(1, "holder-a", "retry")

	ok, err := s.AcquireLock(ctx, key, 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Release(ctx, key))

	ok, err = s.AcquireLock(ctx, key, 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSlidingWindowLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	_, rdb := newClient(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewSlidingWindowLimiter(rdb, "holds", 2, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		allowed, _, err := l.Allow(ctx, "holder-1")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, retry, err := l.Allow(ctx, "holder-1")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, time.Minute, retry)

	allowed, _, err = l.Allow(ctx, "holder-2")
	require.NoError(t, err)
	assert.True(t, allowed)

	now = now.Add(61 * time.Second)
	allowed, _, err = l.Allow(ctx, "holder-1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestHoldEventsPubSub_RoundTrip(t *testing.T) {
	_, rdb := newClient(t)
	ps := NewHoldEventsPubSub(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan domain.Transition, 16)
	go func() {
		_ = ps.Subscribe(ctx, func(_ context.Context, tr domain.Transition) {
			got <- tr
		})
	}()

	want := domain.Transition{
		HoldID:          uuid.New(),
		InventoryUnitID: 9,
		Kind:            domain.KindTour,
		From:            domain.HoldPending,
		To:              domain.HoldExpired,
		At:              time.Date(2026, 3, 1, 12, 11, 0, 0, time.UTC),
	}

	// publish until the subscriber is attached
	var received domain.Transition
	require.Eventually(t, func() bool {
		_ = ps.PublishTransition(ctx, want)
		select {
		case received = <-got:
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, want.HoldID, received.HoldID)
	assert.Equal(t, domain.HoldExpired, received.To)
	assert.True(t, want.At.Equal(received.At))
}
