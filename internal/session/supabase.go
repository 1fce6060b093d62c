package session

import (
	"context"
	"fmt"

	errx "github.com/questor-agent/server/internal/core/error"
	logx "github.com/questor-agent/server/pkg/logger"
	"github.com/questor-agent/server/pkg/supabase"
)

// SupabaseBackend stores one row per session in a PostgREST table keyed by quest_id.
type SupabaseBackend struct {
	client *supabase.Client
	table  string
}

func NewSupabaseBackend(client *supabase.Client, table string) *SupabaseBackend {
	if table == "" {
		table = "quest_sessions"
	}
	return &SupabaseBackend{client: client, table: table}
}

func (s *SupabaseBackend) Name() string { return BackendSupabase }

func (s *SupabaseBackend) Get(ctx context.Context, id string) (*Record, error) {
	var rows []Record
	if err := s.client.Select(ctx, s.table, supabase.Filter{"quest_id": id}, &rows); err != nil {
		logx.Error().Err(err).Str("table", s.table).Str("session_id", id).Msg("failed to load session row")
		return nil, errx.WrapSupabase(fmt.Errorf("select session: %w", err))
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// Create inserts rec; a duplicate quest_id means another request created it first.
func (s *SupabaseBackend) Create(ctx context.Context, rec *Record) (bool, error) {
	var rows []Record
	err := s.client.Insert(ctx, s.table, rec, &rows)
	if supabase.IsConflict(err) {
		return false, nil
	}
	if err != nil {
		logx.Error().Err(err).Str("table", s.table).Str("session_id", rec.SessionID).Msg("failed to create session row")
		return false, errx.WrapSupabase(fmt.Errorf("create session: %w", err))
	}
	return len(rows) > 0, nil
}

func (s *SupabaseBackend) Upsert(ctx context.Context, rec *Record) error {
	if err := s.client.Upsert(ctx, s.table, rec, "quest_id"); err != nil {
		logx.Error().Err(err).Str("table", s.table).Str("session_id", rec.SessionID).Msg("failed to upsert session row")
		return errx.WrapSupabase(fmt.Errorf("upsert session: %w", err))
	}
	return nil
}
