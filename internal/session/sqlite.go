package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/questor-agent/server/internal/quest"
	_ "modernc.org/sqlite"
)

// SQLiteBackend keeps sessions in a local SQLite file, for development
// without a hosted datastore.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteBackend{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteBackend) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS quest_sessions (
		quest_id TEXT PRIMARY KEY,
		quest_state TEXT NOT NULL,
		chat_history TEXT NOT NULL,
		last_updated TEXT NOT NULL
	);`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Name() string { return BackendSQLite }

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

func (s *SQLiteBackend) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT quest_id, quest_state, chat_history, last_updated FROM quest_sessions WHERE quest_id = ?`, id)

	var rec Record
	var state, history, ts string
	if err := row.Scan(&rec.SessionID, &state, &history, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	if err := json.Unmarshal([]byte(state), &rec.QuestState); err != nil {
		return nil, fmt.Errorf("decode quest_state: %w", err)
	}
	if err := json.Unmarshal([]byte(history), &rec.ChatHistory); err != nil {
		return nil, fmt.Errorf("decode chat_history: %w", err)
	}
	updated, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("parse last_updated: %w", err)
	}
	rec.LastUpdated = updated
	return &rec, nil
}

func (s *SQLiteBackend) Create(ctx context.Context, rec *Record) (bool, error) {
	args, err := rowArgs(rec)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `
	INSERT INTO quest_sessions (quest_id, quest_state, chat_history, last_updated)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(quest_id) DO NOTHING`, args...)
	if err != nil {
		return false, fmt.Errorf("insert session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteBackend) Upsert(ctx context.Context, rec *Record) error {
	args, err := rowArgs(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
	INSERT INTO quest_sessions (quest_id, quest_state, chat_history, last_updated)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(quest_id) DO UPDATE SET
		quest_state = excluded.quest_state,
		chat_history = excluded.chat_history,
		last_updated = excluded.last_updated`, args...)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func rowArgs(rec *Record) ([]any, error) {
	state, err := json.Marshal(rec.QuestState)
	if err != nil {
		return nil, fmt.Errorf("encode quest_state: %w", err)
	}
	history := rec.ChatHistory
	if history == nil {
		history = []quest.ChatMessage{}
	}
	hist, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("encode chat_history: %w", err)
	}
	return []any{rec.SessionID, string(state), string(hist), rec.LastUpdated.UTC().Format(time.RFC3339Nano)}, nil
}
