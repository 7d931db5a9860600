package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lockValue    = "LOCK"
	resultPrefix = "RES:"
)

// IdempotencyStore remembers the response of a hold request per
// Idempotency-Key so a client retry gets the original hold back instead of
// a second one.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

// Fingerprint hashes the request fields a replay must match.
func Fingerprint(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// AcquireLock marks key as in flight. It reports false when another request
// holds the lock or already stored a result.
func (s *IdempotencyStore) AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, lockValue, lockTTL).Result()
}

// SaveResult stores the response under key together with the fingerprint of
// the request that produced it.
func (s *IdempotencyStore) SaveResult(ctx context.Context, key, fingerprint, jsonPayload string) error {
	return s.rdb.Set(ctx, key, resultPrefix+fingerprint+"|"+jsonPayload, s.ttl).Err()
}

// GetResult returns the stored fingerprint and payload for key. found is
// false while the key is unset or still locked.
func (s *IdempotencyStore) GetResult(ctx context.Context, key string) (fingerprint, payload string, found bool, err error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}

	rest, ok := strings.CutPrefix(v, resultPrefix)
	if !ok {
		return "", "", false, nil
	}

	fingerprint, payload, _ = strings.Cut(rest, "|")
	return fingerprint, payload, true, nil
}

// Release drops an in-flight lock so the client may retry after a failure.
// A stored result is left in place.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if v != lockValue {
		return nil
	}

	return s.rdb.Del(ctx, key).Err()
}
