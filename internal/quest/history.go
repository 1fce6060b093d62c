package quest

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one replayable conversation turn.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AppendTurn returns a new history with the user message followed by the assistant reply.
func AppendTurn(history []ChatMessage, userMessage, reply string) []ChatMessage {
	out := make([]ChatMessage, 0, len(history)+2)
	out = append(out, history...)
	out = append(out,
		ChatMessage{Role: RoleUser, Content: userMessage},
		ChatMessage{Role: RoleAssistant, Content: reply},
	)
	return out
}

// Recent returns at most the last n messages. n <= 0 returns everything.
func Recent(history []ChatMessage, n int) []ChatMessage {
	if n <= 0 || len(history) <= n {
		out := make([]ChatMessage, len(history))
		copy(out, history)
		return out
	}
	out := make([]ChatMessage, n)
	copy(out, history[len(history)-n:])
	return out
}
