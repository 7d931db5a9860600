package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"
)

// Cache is a read-through JSON cache for availability snapshots. Nothing
// read from it feeds an admission decision.
//
// Calls go through a circuit breaker: after consecutive Redis failures the
// cache reports gobreaker.ErrOpenState immediately and readers fall through
// to the store.
type Cache struct {
	rdb     *redis.Client
	sf      singleflight.Group
	breaker *gobreaker.CircuitBreaker[string]
}

func New(client *redis.Client) *Cache {
	return &Cache{
		rdb: client,
		breaker: gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name:        "redis-cache",
			MaxRequests: 1,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

func (c *Cache) GetString(ctx context.Context, key string) (string, bool, error) {
	var found bool

	s, err := c.breaker.Execute(func() (string, error) {
		s, err := c.rdb.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		found = err == nil
		return s, err
	})
	if err != nil {
		return "", false, err
	}

	return s, found, nil
}

func (c *Cache) SetString(
	ctx context.Context,
	key string,
	val string,
	ttl time.Duration,
) error {
	_, err := c.breaker.Execute(func() (string, error) {
		return "", c.rdb.Set(ctx, key, val, ttl).Err()
	})
	return err
}

func (c *Cache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	_, err := c.breaker.Execute(func() (string, error) {
		return "", c.rdb.Del(ctx, keys...).Err()
	})
	return err
}

func GetJSON[T any](ctx context.Context, c *Cache, key string) (T, bool, error) {
	var zero T

	s, ok, err := c.GetString(ctx, key)
	if err != nil || !ok {
		return zero, ok, err
	}

	var out T
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return zero, false, err
	}

	return out, true, nil
}

func SetJSON(
	ctx context.Context,
	c *Cache,
	key string,
	val any,
	ttl time.Duration,
) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return c.SetString(ctx, key, string(b), ttl)
}

// GetOrSetJSON returns the cached value under key or loads, stores and
// returns it. Concurrent misses on the same key share one loader call.
func GetOrSetJSON[T any](
	ctx context.Context,
	c *Cache,
	key string,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	if v, ok, err := GetJSON[T](ctx, c, key); err == nil && ok {
		return v, nil
	}

	vAny, err, _ := c.sf.Do(key, func() (any, error) {
		v, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		_ = SetJSON(ctx, c, key, v, ttl)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	v, ok := vAny.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache: unexpected type %T for key %s", vAny, key)
	}

	return v, nil
}

// InvalidateUnit drops every cached view of an inventory unit.
func (c *Cache) InvalidateUnit(ctx context.Context, unitID int64) error {
	return c.Del(ctx, KeyUnitAvailability(unitID))
}
