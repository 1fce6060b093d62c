package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	logx "github.com/questor-agent/server/pkg/logger"
	"github.com/questor-agent/server/pkg/supabase"
	"github.com/redis/go-redis/v9"
)

// Backend is a durable session datastore.
type Backend interface {
	Name() string
	// Get returns ErrNotFound when the id is unknown.
	Get(ctx context.Context, id string) (*Record, error)
	// Create inserts rec only if no record exists and reports whether it did.
	Create(ctx context.Context, rec *Record) (bool, error)
	Upsert(ctx context.Context, rec *Record) error
}

const (
	BackendSupabase = "supabase"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

type Config struct {
	Backend    string        `envconfig:"SESSION_BACKEND" default:"supabase"`
	Table      string        `envconfig:"SESSION_TABLE" default:"quest_sessions"`
	TTL        time.Duration `envconfig:"SESSION_TTL" default:"0s"`
	SQLitePath string        `envconfig:"SESSION_SQLITE_PATH" default:"data/sessions.db"`
	Timeout    time.Duration `envconfig:"SESSION_TIMEOUT" default:"5s"`
}

// Deps carries the optional clients a backend may need.
type Deps struct {
	Supabase *supabase.Client
	Redis    redis.Cmdable
}

// NewBackend builds the configured backend. A backend whose client is missing
// degrades to the memory backend over cache with a warning.
func NewBackend(cfg Config, deps Deps, cache *MemoryCache) (Backend, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Backend))
	switch kind {
	case "", BackendSupabase:
		if deps.Supabase == nil {
			logx.Warn().Str("backend", BackendSupabase).Msg("supabase not configured; sessions kept in memory")
			return NewMemoryBackend(cache), nil
		}
		return NewSupabaseBackend(deps.Supabase, cfg.Table), nil
	case BackendRedis:
		if deps.Redis == nil {
			logx.Warn().Str("backend", BackendRedis).Msg("redis not configured; sessions kept in memory")
			return NewMemoryBackend(cache), nil
		}
		return NewRedisBackend(deps.Redis, cfg.TTL), nil
	case BackendSQLite:
		b, err := NewSQLiteBackend(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendMemory:
		return NewMemoryBackend(cache), nil
	}
	return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
}
