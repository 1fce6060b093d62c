// Package session persists quest state and chat history per session id.
package session

import (
	"errors"
	"time"

	"github.com/questor-agent/server/internal/quest"
)

// ErrNotFound is returned by a Backend when no record exists for the id.
var ErrNotFound = errors.New("session not found")

// Record is one persisted session row.
type Record struct {
	SessionID   string              `json:"quest_id"`
	QuestState  quest.State         `json:"quest_state"`
	ChatHistory []quest.ChatMessage `json:"chat_history"`
	LastUpdated time.Time           `json:"last_updated"`
}

func newRecord(id string, now time.Time) *Record {
	return &Record{
		SessionID:   id,
		QuestState:  quest.State{},
		ChatHistory: []quest.ChatMessage{},
		LastUpdated: now,
	}
}

// Clone returns a deep copy with ui stripped and a non-nil history.
func (r *Record) Clone() *Record {
	history := make([]quest.ChatMessage, len(r.ChatHistory))
	copy(history, r.ChatHistory)
	return &Record{
		SessionID:   r.SessionID,
		QuestState:  r.QuestState.WithoutUI(),
		ChatHistory: history,
		LastUpdated: r.LastUpdated,
	}
}

// Ack confirms a save. Durable is false when only the in-process cache holds the write.
type Ack struct {
	SessionID   string
	LastUpdated time.Time
	Durable     bool
}
