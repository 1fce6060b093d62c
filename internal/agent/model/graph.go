package model

import (
	"github.com/cloudwego/eino/schema"

	"github.com/questor-agent/server/internal/quest"
	"github.com/questor-agent/server/internal/reconcile"
)

// AppState stores per-invocation state for the Eino Graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//   - Eino serializes access to state within these handlers, so no additional
//     mutex/atomic is required as long as you never touch it outside handlers.
type AppState struct {
	SessionID            string
	Category             string
	History              []*schema.Message // model context for this turn, including tool rounds
	ToolCallCount        int
	ToolCallLimitReached bool
	ToolCallIDSeq        int // local sequence to synthesize tool_call_id when provider omits

	// Accumulated total LLM cost (USD) across model invocations for this turn
	TotalCostUSD float64
}

// TurnInput is everything the agent sees for one user message.
type TurnInput struct {
	SessionID   string              `json:"session_id"`
	Message     string              `json:"message"`
	Category    string              `json:"category"`
	SubCategory string              `json:"sub_category"`
	State       quest.State         `json:"quest_state"`
	History     []quest.ChatMessage `json:"chat_history"`
}

// TurnOutput is the raw agent text plus the tool effects recorded while producing it.
type TurnOutput struct {
	Raw     string
	Effects []reconcile.Effect
	CostUSD float64
}
