package conversations

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"github.com/questor-agent/server/internal/agent/model"
	"github.com/questor-agent/server/internal/quest"
)

func history(n int) []quest.ChatMessage {
	var h []quest.ChatMessage
	for i := 0; i < n; i++ {
		h = quest.AppendTurn(h, "u", "a")
	}
	return h
}

func TestBuildAgentContext(t *testing.T) {
	mm := NewMessagesManager(model.ConversationConfig{HistoryTurns: 3})

	msgs := mm.BuildAgentContext("sys", history(4), "hello")
	require.Len(t, msgs, 5)
	require.Equal(t, schema.System, msgs[0].Role)
	require.Equal(t, schema.Assistant, msgs[1].Role)
	require.Equal(t, schema.User, msgs[2].Role)
	require.Equal(t, schema.User, msgs[4].Role)
	require.Equal(t, "hello", msgs[4].Content)
}

func TestBuildAgentContext_NoHistory(t *testing.T) {
	mm := NewMessagesManager(model.ConversationConfig{HistoryTurns: 10})

	msgs := mm.BuildAgentContext("sys", nil, "hello")
	require.Len(t, msgs, 2)
}

func TestBuildFollowUpContext(t *testing.T) {
	mm := NewMessagesManager(model.ConversationConfig{})
	h := append(history(3), quest.ChatMessage{Role: quest.RoleUser, Content: "price is 50"})

	msgs := mm.BuildFollowUpContext("sys", h, 2)
	require.Len(t, msgs, 3)
	require.Equal(t, "price is 50", msgs[2].Content)
}

func TestToSchemaMessages_SkipsUnknownAndEmpty(t *testing.T) {
	msgs := ToSchemaMessages([]quest.ChatMessage{
		{Role: quest.RoleUser, Content: "hi"},
		{Role: "system", Content: "ignored"},
		{Role: quest.RoleAssistant, Content: "  "},
	})
	require.Len(t, msgs, 1)
}

func TestTrimTail_ZeroKeepsAll(t *testing.T) {
	in := ToSchemaMessages(history(2))
	require.Len(t, trimTail(in, 0), 4)
}
