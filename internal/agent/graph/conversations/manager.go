package conversations

import (
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/questor-agent/server/internal/agent/model"
	"github.com/questor-agent/server/internal/quest"
)

// MessagesManager turns a stored quest chat history into model context.
type MessagesManager struct {
	historyTurns int
}

func NewMessagesManager(config model.ConversationConfig) *MessagesManager {
	return &MessagesManager{
		historyTurns: config.HistoryTurns,
	}
}

// BuildAgentContext returns the system prompt, the recent history and the
// current user message, in that order.
func (mm *MessagesManager) BuildAgentContext(systemPrompt string, history []quest.ChatMessage, message string) []*schema.Message {
	recent := trimTail(ToSchemaMessages(history), mm.historyTurns)

	messages := make([]*schema.Message, 0, len(recent)+2)
	messages = append(messages, schema.SystemMessage(systemPrompt))
	messages = append(messages, recent...)
	messages = append(messages, schema.UserMessage(message))
	return messages
}

// BuildFollowUpContext returns the system prompt followed by at most turns
// recent messages. The history is expected to end with the user message.
func (mm *MessagesManager) BuildFollowUpContext(systemPrompt string, history []quest.ChatMessage, turns int) []*schema.Message {
	recent := trimTail(ToSchemaMessages(history), turns)

	messages := make([]*schema.Message, 0, len(recent)+1)
	messages = append(messages, schema.SystemMessage(systemPrompt))
	return append(messages, recent...)
}

// ToSchemaMessages converts stored turns. Unknown roles and empty content are skipped.
func ToSchemaMessages(history []quest.ChatMessage) []*schema.Message {
	out := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch m.Role {
		case quest.RoleUser:
			out = append(out, schema.UserMessage(m.Content))
		case quest.RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		}
	}
	return out
}

// ====================== Helper function ======================
func trimTail(messages []*schema.Message, maxTurns int) []*schema.Message {
	if maxTurns <= 0 || len(messages) <= maxTurns {
		result := make([]*schema.Message, len(messages))
		copy(result, messages)
		return result
	}
	source := messages[len(messages)-maxTurns:]
	result := make([]*schema.Message, len(source))
	copy(result, source)
	return result
}
