package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	domain "glamour/internal/domain/session"
)

const keyPrefix = "glamour:session:"

// redisClient is the subset of *redis.Client the store needs.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps snapshots as JSON values with a sliding TTL.
// Redis failures behave like a cache miss: the session stays in memory
// for this process and is simply not persisted.
type RedisStore struct {
	client redisClient
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisClient opens a go-redis client for addr.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redisClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Load returns the stored snapshot; missing keys and Redis errors are misses.
func (s *RedisStore) Load(ctx context.Context, clientID string) (domain.Snapshot, bool, error) {
	data, err := s.client.Get(ctx, keyPrefix+clientID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Snapshot{}, false, nil
	}
	if err != nil {
		slog.Warn("session_store_unavailable", "op", "load", "error", err)
		return domain.Snapshot{}, false, nil
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("session_store_corrupt", "client_id", clientID, "error", err)
		return domain.Snapshot{}, false, nil
	}
	return snap, true, nil
}

// Save stores the snapshot with the configured TTL.
func (s *RedisStore) Save(ctx context.Context, clientID string, snap domain.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, keyPrefix+clientID, payload, s.ttl).Err(); err != nil {
		slog.Warn("session_store_unavailable", "op", "save", "error", err)
	}
	return nil
}

// Delete removes the snapshot.
func (s *RedisStore) Delete(ctx context.Context, clientID string) error {
	if err := s.client.Del(ctx, keyPrefix+clientID).Err(); err != nil {
		slog.Warn("session_store_unavailable", "op", "delete", "error", err)
	}
	return nil
}
