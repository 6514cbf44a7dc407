package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore remembers which snapshots have already been loaded, so a
// re-run of the load stage skips work instead of re-upserting every
// offer.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisStore{client: rdb}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// MarkProcessed records that every pair of a snapshot was committed.
func (s *RedisStore) MarkProcessed(ctx context.Context, snapshotPath string, ttl time.Duration) error {
	return s.client.Set(ctx, processedKey(snapshotPath), "1", ttl).Err()
}

// IsProcessed reports whether the snapshot was fully loaded within the
// marker TTL.
func (s *RedisStore) IsProcessed(ctx context.Context, snapshotPath string) (bool, error) {
	val, err := s.client.Exists(ctx, processedKey(snapshotPath)).Result()
	if err != nil {
		return false, err
	}
	return val == 1, nil
}

// processedKey hashes the path so the key stays flat and safe whatever
// the pages directory is called.
func processedKey(snapshotPath string) string {
	sum := sha256.Sum256([]byte(snapshotPath))
	return fmt.Sprintf("processed:%s", hex.EncodeToString(sum[:]))
}
