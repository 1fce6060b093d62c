package session

import (
	"context"
	"errors"
	"strings"
	"time"

	errx "github.com/questor-agent/server/internal/core/error"
	"github.com/questor-agent/server/internal/quest"
	logx "github.com/questor-agent/server/pkg/logger"
)

// Store loads and saves sessions through a Backend and falls back to the
// in-process cache when the backend fails. It does not lock across processes:
// two concurrent writers to one session id race and the last save wins.
type Store struct {
	backend Backend
	cache   *MemoryCache
	timeout time.Duration
	now     func() time.Time
}

// NewStore wires a store. A nil backend keeps sessions in the cache only.
func NewStore(backend Backend, cache *MemoryCache, timeout time.Duration) *Store {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if backend == nil {
		backend = NewMemoryBackend(cache)
	}
	return &Store{
		backend: backend,
		cache:   cache,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Backend() string { return s.backend.Name() }

func (s *Store) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Load returns the session for id, creating an empty one on first reference.
// Backend failures are logged and served from the cache; only an empty id is an error.
func (s *Store) Load(ctx context.Context, id string) (*Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errx.Validation("session id is required")
	}

	cctx, cancel := s.callCtx(ctx)
	defer cancel()

	rec, err := s.backend.Get(cctx, id)
	if errors.Is(err, ErrNotFound) {
		return s.create(cctx, id), nil
	}
	if err != nil {
		logx.Error().Err(errx.Persistence(err)).Str("session_id", id).Str("backend", s.backend.Name()).Msg("session load failed; using cache")
		return s.fromCache(id), nil
	}

	rec = rec.Clone()
	if cached, ok := s.cache.Get(id); ok && cached.LastUpdated.After(rec.LastUpdated) {
		logx.Warn().Str("session_id", id).Msg("cached session is newer than stored session")
		return cached, nil
	}
	s.cache.Put(rec)
	return rec, nil
}

func (s *Store) create(ctx context.Context, id string) *Record {
	fresh := newRecord(id, s.now())
	created, err := s.backend.Create(ctx, fresh)
	if err != nil {
		logx.Error().Err(errx.Persistence(err)).Str("session_id", id).Str("backend", s.backend.Name()).Msg("session create failed; using cache")
		return s.fromCache(id)
	}
	if !created {
		// someone else created it between our read and insert
		rec, err := s.backend.Get(ctx, id)
		if err == nil {
			rec = rec.Clone()
			s.cache.Put(rec)
			return rec
		}
		logx.Warn().Err(err).Str("session_id", id).Msg("session vanished after concurrent create")
	}
	s.cache.Put(fresh)
	return fresh.Clone()
}

func (s *Store) fromCache(id string) *Record {
	if cached, ok := s.cache.Get(id); ok {
		return cached
	}
	fresh := newRecord(id, s.now())
	s.cache.Put(fresh)
	return fresh
}

// Save upserts the session with ui stripped and last_updated stamped. A backend
// failure is logged and the write is kept in the cache; the returned Ack says so.
func (s *Store) Save(ctx context.Context, id string, state quest.State, history []quest.ChatMessage) (Ack, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Ack{}, errx.Validation("session id is required")
	}

	rec := (&Record{
		SessionID:   id,
		QuestState:  state,
		ChatHistory: history,
		LastUpdated: s.now(),
	}).Clone()
	s.cache.Put(rec)

	ack := Ack{SessionID: id, LastUpdated: rec.LastUpdated}

	cctx, cancel := s.callCtx(ctx)
	defer cancel()

	if err := s.backend.Upsert(cctx, rec); err != nil {
		logx.Error().Err(errx.Persistence(err)).Str("session_id", id).Str("backend", s.backend.Name()).Msg("session save failed; kept in cache")
		return ack, nil
	}
	_, memoryOnly := s.backend.(*MemoryBackend)
	ack.Durable = !memoryOnly
	return ack, nil
}
