package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"salom/internal/models"
)

// sessionKeyPrefix namespaces session hashes in a shared Redis instance.
const sessionKeyPrefix = "salom:session:"

// casScript performs the version check and write atomically on the server.
// Returns the new version, or -1 on a version mismatch.
var casScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if current == false then
  current = '0'
end
if current ~= ARGV[1] then
  return -1
end
local next = tonumber(ARGV[1]) + 1
redis.call('HSET', KEYS[1], 'version', next, 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return next
`)

// RedisStore persists sessions as Redis hashes with native TTL expiry.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis session store. The DSN is a redis:// URL.
func NewRedisStore(opts ...Option) (*RedisStore, error) {
	cfg := applyOptions(opts)
	slog.Debug("NewRedisStore invoked", "DSN_set", cfg.DSN != "", "ttl", cfg.TTL)

	if cfg.DSN == "" {
		slog.Error("RedisStore DSN not set")
		return nil, fmt.Errorf("redis DSN not set")
	}

	redisOpts, err := redis.ParseURL(cfg.DSN)
	if err != nil {
		slog.Error("Failed to parse Redis DSN", "error", err)
		return nil, fmt.Errorf("failed to parse redis DSN: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		slog.Error("Redis ping failed", "error", err)
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	slog.Debug("Redis connection established", "addr", redisOpts.Addr)

	return &RedisStore{client: client, ttl: cfg.TTL}, nil
}

func (s *RedisStore) Get(ctx context.Context, userID string) (models.Session, int64, error) {
	vals, err := s.client.HMGet(ctx, sessionKeyPrefix+userID, "version", "data").Result()
	if err != nil {
		slog.Error("RedisStore Get failed", "error", err, "userID", userID)
		return models.Session{}, 0, fmt.Errorf("failed to read session for %s: %w", userID, err)
	}
	if vals[0] == nil || vals[1] == nil {
		return models.Session{}, 0, ErrSessionNotFound
	}

	version, err := strconv.ParseInt(vals[0].(string), 10, 64)
	if err != nil {
		return models.Session{}, 0, fmt.Errorf("corrupt session version for %s: %w", userID, err)
	}
	session, err := decodeSession([]byte(vals[1].(string)))
	if err != nil {
		return models.Session{}, 0, err
	}
	return session, version, nil
}

func (s *RedisStore) CompareAndSet(ctx context.Context, session models.Session, expectedVersion int64) (int64, error) {
	data, err := encodeSession(session)
	if err != nil {
		return 0, err
	}

	result, err := casScript.Run(ctx, s.client,
		[]string{sessionKeyPrefix + session.UserID},
		strconv.FormatInt(expectedVersion, 10),
		string(data),
		s.ttl.Milliseconds(),
	).Int64()
	if err != nil {
		slog.Error("RedisStore CompareAndSet failed", "error", err, "userID", session.UserID)
		return 0, fmt.Errorf("failed to write session for %s: %w", session.UserID, err)
	}
	if result < 0 {
		slog.Debug("RedisStore CompareAndSet conflict", "userID", session.UserID, "expected", expectedVersion)
		return 0, ErrSessionConflict
	}
	return result, nil
}

func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+userID).Err(); err != nil {
		slog.Error("RedisStore Delete failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete session for %s: %w", userID, err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	slog.Debug("Closing Redis connection")
	return s.client.Close()
}
