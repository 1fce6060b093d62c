package nodes

import (
	"github.com/questor-agent/server/internal/agent/model"
)

const (
	NodeInputConverter = "input_converter"
	NodeQuestChatModel = "quest_chat_model"
	NodeToolExecutor   = "tool_executor"
)

const DefaultMaxToolCalls = 6

// ===== Small helpers to keep handlers simple/readable =====
// normalizeMaxToolCalls returns a sane default when the provided value is invalid.
func normalizeMaxToolCalls(n int) int {
	if n <= 0 {
		return DefaultMaxToolCalls
	}
	return n
}

// checkAndMarkToolLimit marks the state once the call count reaches the limit.
// Returns true only on the call that marks it.
func checkAndMarkToolLimit(state *model.AppState, max int) bool {
	max = normalizeMaxToolCalls(max)
	if !state.ToolCallLimitReached && state.ToolCallCount >= max {
		state.ToolCallLimitReached = true
		return true
	}
	return false
}

// incrementToolCallAndCheck counts one tool round and reports whether it went
// past the limit.
func incrementToolCallAndCheck(state *model.AppState, max int) bool {
	max = normalizeMaxToolCalls(max)
	state.ToolCallCount++
	if state.ToolCallCount > max {
		state.ToolCallLimitReached = true
		return true
	}
	return false
}
