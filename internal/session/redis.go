package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	errx "github.com/questor-agent/server/internal/core/error"
	logx "github.com/questor-agent/server/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RedisBackend stores each session as one JSON value. A zero ttl never expires.
type RedisBackend struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisBackend(rdb redis.Cmdable, ttl time.Duration) *RedisBackend {
	return &RedisBackend{rdb: rdb, ttl: ttl}
}

func (r *RedisBackend) Name() string { return BackendRedis }

func (r *RedisBackend) sessionKey(id string) string {
	return fmt.Sprintf("quest:session:%s", id)
}

func (r *RedisBackend) Get(ctx context.Context, id string) (*Record, error) {
	key := r.sessionKey(id)
	raw, err := r.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load session from redis")
		return nil, errx.WrapRedis(err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to unmarshal session")
		return nil, fmt.Errorf("unmarshal session %s: %w", id, err)
	}
	return &rec, nil
}

func (r *RedisBackend) Create(ctx context.Context, rec *Record) (bool, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshal session: %w", err)
	}
	key := r.sessionKey(rec.SessionID)
	ok, err := r.rdb.SetNX(ctx, key, b, r.ttl).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to create session in redis")
		return false, errx.WrapRedis(err)
	}
	return ok, nil
}

func (r *RedisBackend) Upsert(ctx context.Context, rec *Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	key := r.sessionKey(rec.SessionID)
	if err := r.rdb.Set(ctx, key, b, r.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save session to redis")
		return errx.WrapRedis(err)
	}
	return nil
}
