package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	errx "github.com/questor-agent/server/internal/core/error"
	"github.com/questor-agent/server/internal/quest"
	logx "github.com/questor-agent/server/pkg/logger"
	"github.com/questor-agent/server/pkg/supabase"
)

const DefaultTable = "quests"

// CreateRequest is a finished quest submitted for publishing.
type CreateRequest struct {
	quest.State
	UserID string `json:"user_id"`
}

type UpdateRequest struct {
	Updates map[string]any `json:"updates"`
}

// Publisher writes finished quests to the quests table.
type Publisher struct {
	client *supabase.Client
	table  string
}

// NewPublisher returns a publisher; a nil client makes every call unavailable.
func NewPublisher(client *supabase.Client, table string) *Publisher {
	if table == "" {
		table = DefaultTable
	}
	return &Publisher{client: client, table: table}
}

func (p *Publisher) Enabled() bool {
	return p != nil && p.client != nil
}

// Save inserts one quest and returns the stored row.
func (p *Publisher) Save(ctx context.Context, req CreateRequest) (map[string]any, error) {
	if !p.Enabled() {
		return nil, errx.Unavailable("quest publishing is not configured")
	}
	if blank(req.WantOrHave) || blank(req.Description) || strings.TrimSpace(req.UserID) == "" {
		return nil, errx.Validation("Missing required fields")
	}

	row := CreateRequest{State: req.State.WithoutUI(), UserID: strings.TrimSpace(req.UserID)}
	var rows []map[string]any
	if err := p.client.Insert(ctx, p.table, []CreateRequest{row}, &rows); err != nil {
		logx.Error().Err(err).Str("table", p.table).Msg("quest save failed")
		return nil, errx.WrapSupabase(err)
	}
	if len(rows) == 0 {
		return nil, errx.Persistence(errors.New("quest insert returned no rows"))
	}
	return rows[0], nil
}

// Update patches the quest with id and returns the updated row.
func (p *Publisher) Update(ctx context.Context, id string, updates map[string]any) (map[string]any, error) {
	if !p.Enabled() {
		return nil, errx.Unavailable("quest publishing is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errx.Validation("quest id is required")
	}
	patch, err := questPatch(updates)
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	if err := p.client.Update(ctx, p.table, supabase.Filter{"id": id}, patch, &rows); err != nil {
		logx.Error().Err(err).Str("table", p.table).Str("quest_id", id).Msg("quest update failed")
		return nil, errx.WrapSupabase(err)
	}
	if len(rows) == 0 {
		return nil, errx.NotFound("Quest not found or not updated")
	}
	return rows[0], nil
}

// questPatch keeps known quest columns, coerced to their kinds. ui and
// unknown keys (including id and user_id) are dropped.
func questPatch(updates map[string]any) (map[string]any, error) {
	patch := make(map[string]any, len(updates))
	var dropped []string
	for k, v := range updates {
		kind, ok := quest.FieldKind(k)
		if !ok || k == "ui" {
			dropped = append(dropped, k)
			continue
		}
		cv, err := quest.Coerce(kind, v)
		if err != nil {
			return nil, errx.Validation(fmt.Sprintf("Invalid value for %s", k))
		}
		patch[k] = cv
	}
	if len(dropped) > 0 {
		logx.Warn().Strs("fields", dropped).Msg("quest update fields dropped")
	}
	if len(patch) == 0 {
		return nil, errx.Validation("No update fields provided")
	}
	return patch, nil
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}
