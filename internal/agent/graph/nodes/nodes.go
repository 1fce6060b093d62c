package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/questor-agent/server/internal/agent/graph/conversations"
	"github.com/questor-agent/server/internal/agent/graph/prompts"
	"github.com/questor-agent/server/internal/agent/model"
	logx "github.com/questor-agent/server/pkg/logger"
)

// NewInputConverterPreHandler resets the per-turn counters of the graph state.
func NewInputConverterPreHandler() func(context.Context, model.TurnInput, *model.AppState) (model.TurnInput, error) {
	return func(ctx context.Context, in model.TurnInput, s *model.AppState) (model.TurnInput, error) {
		s.SessionID = in.SessionID
		s.Category = in.Category
		s.History = nil
		s.ToolCallCount = 0
		s.ToolCallLimitReached = false
		s.ToolCallIDSeq = 0
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewInputConverterNode renders the category system prompt and assembles the
// agent context from the stored history and the new message.
func NewInputConverterNode(mm *conversations.MessagesManager, toolNames []string) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.TurnInput) ([]*schema.Message, error) {
		systemPrompt, err := prompts.RenderQuestSystem(ctx, prompts.QuestPromptInput{
			Category:    input.Category,
			SubCategory: input.SubCategory,
			State:       input.State,
			ToolNames:   toolNames,
		})
		if err != nil {
			return nil, fmt.Errorf("render quest system prompt: %w", err)
		}
		return mm.BuildAgentContext(systemPrompt, input.History, input.Message), nil
	})
}

// NewQuestChatModelPreHandler accumulates the model context across tool rounds.
func NewQuestChatModelPreHandler(maxToolCalls int) func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		// Tool results must carry the id of the call they answer.
		if len(in) > 0 {
			last := in[len(in)-1]
			if last != nil && last.Role == schema.Tool && strings.TrimSpace(last.ToolCallID) == "" {
				for i := len(state.History) - 1; i >= 0; i-- {
					msg := state.History[i]
					if msg == nil || msg.Role != schema.Assistant || len(msg.ToolCalls) == 0 {
						continue
					}
					id := msg.ToolCalls[0].ID
					if strings.TrimSpace(id) != "" {
						last.ToolCallID = id
					}
					break
				}
			}
		}

		state.History = append(state.History, in...)

		if checkAndMarkToolLimit(state, maxToolCalls) {
			maxToolCalls = normalizeMaxToolCalls(maxToolCalls)
			wrapUp := &schema.Message{
				Role: schema.System,
				Content: fmt.Sprintf(
					"SYSTEM NOTICE: You have reached the maximum tool call limit (%d). "+
						"Do not call any more tools. Reply to the user now and end with the JSON block as instructed.",
					maxToolCalls,
				),
			}
			state.History = append(state.History, wrapUp)
		}

		logx.Debug().Str("session_id", state.SessionID).Int("messages", len(state.History)).Msg("Agent thinking")

		return state.History, nil
	}
}

// NewQuestChatModelPostHandler records usage cost and normalizes tool call ids.
func NewQuestChatModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		if out == nil {
			return nil, fmt.Errorf("agent model returned no message")
		}

		if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
			usage := out.ResponseMeta.Usage
			cost, totalC := model.UsageCost(modelName, usage)
			if out.Extra == nil {
				out.Extra = map[string]any{}
			}
			out.Extra["usage_cost"] = cost
			logx.Debug().
				Str("session_id", state.SessionID).
				Str("node", NodeQuestChatModel).
				Str("model", modelName).
				Int("prompt_tokens", usage.PromptTokens).
				Int("completion_tokens", usage.CompletionTokens).
				Int("total_tokens", usage.TotalTokens).
				Float64("total_cost_usd", totalC).
				Msg("LLM usage")

			state.TotalCostUSD += totalC
			out.Extra["usage_cost_total_usd"] = state.TotalCostUSD
		}

		// Some providers omit tool call ids.
		for i := range out.ToolCalls {
			if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
				state.ToolCallIDSeq++
				out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
			}
		}

		state.History = append(state.History, out)

		if len(out.ToolCalls) > 0 {
			logx.Debug().Str("session_id", state.SessionID).Int("tool_count", len(out.ToolCalls)).Msg("Calling tools")
		} else {
			logx.Debug().Str("session_id", state.SessionID).Msg("Agent response ready")
		}
		return out, nil
	}
}

// NewToolExecutorCondition routes to the tools node while the model asks for
// tools and the limit is not reached.
func NewToolExecutorCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		var limitReached bool
		_ = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			limitReached = state.ToolCallLimitReached
			return nil
		})

		if limitReached {
			logx.Debug().Msg("Tool limit reached previously - routing to end")
			return compose.END, nil
		}

		if len(input.ToolCalls) > 0 {
			return NodeToolExecutor, nil
		}
		return compose.END, nil
	}
}

// NewToolExecutorPreHandler counts tool rounds against the limit.
func NewToolExecutorPreHandler(maxToolCalls int) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *model.AppState) (*schema.Message, error) {
		exceeded := incrementToolCallAndCheck(state, maxToolCalls)

		logx.Debug().
			Int("tool_call_count", state.ToolCallCount).
			Str("session_id", state.SessionID).
			Msg("Tool execution attempt")

		if exceeded {
			logx.Warn().
				Int("tool_call_count", state.ToolCallCount).
				Int("max_tool_calls", normalizeMaxToolCalls(maxToolCalls)).
				Str("session_id", state.SessionID).
				Msg("Tool call limit exceeded - flagging and continuing")
		}
		return in, nil
	}
}
