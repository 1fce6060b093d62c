package graph

import (
	"context"
	"errors"
	"sync"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"github.com/questor-agent/server/internal/agent/graph/tools"
	"github.com/questor-agent/server/internal/agent/model"
	errx "github.com/questor-agent/server/internal/core/error"
	"github.com/questor-agent/server/internal/quest"
	"github.com/questor-agent/server/internal/reconcile"
)

type script struct {
	mu      sync.Mutex
	replies []*schema.Message
	inputs  [][]*schema.Message
	err     error
}

// fakeChatModel replays scripted replies. Models derived through WithTools
// share the script.
type fakeChatModel struct {
	s     *script
	tools []*schema.ToolInfo
}

func newFakeChatModel(replies ...*schema.Message) *fakeChatModel {
	return &fakeChatModel{s: &script{replies: replies}}
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.inputs = append(f.s.inputs, append([]*schema.Message(nil), input...))
	if f.s.err != nil {
		return nil, f.s.err
	}
	if len(f.s.replies) == 0 {
		return schema.AssistantMessage("done", nil), nil
	}
	r := f.s.replies[0]
	f.s.replies = f.s.replies[1:]
	return r, nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (f *fakeChatModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return &fakeChatModel{s: f.s, tools: tools}, nil
}

func (f *fakeChatModel) inputs() [][]*schema.Message {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.s.inputs
}

func toolCall(id, name, args string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       id,
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}})
}

func newRunner(t *testing.T, cm einomodel.ToolCallingChatModel, maxCalls int) Runner {
	t.Helper()
	cfg := Config{ChatModel: cm, ModelName: "gemini-2.5-flash"}
	cfg.Conversation.HistoryTurns = 20
	cfg.Conversation.Tools.MaxCalls = maxCalls
	r, err := BuildAgentRunner(context.Background(), cfg)
	require.NoError(t, err)
	return r
}

func TestRunner_ToolRoundThenReply(t *testing.T) {
	final := "What is your budget?\n###JSON###{\"action\":\"ask_for_price\"}"
	cm := newFakeChatModel(
		toolCall("c1", tools.ToolUpdateQuestState, `{"field":" Service_Type ","value":" plumbing "}`),
		schema.AssistantMessage(final, nil),
	)
	r := newRunner(t, cm, 6)

	out, err := r.Run(context.Background(), model.TurnInput{
		SessionID: "s1",
		Message:   "I need a plumber",
		Category:  "services",
		State:     quest.State{Category: quest.Ptr("services")},
		History:   quest.AppendTurn(nil, "hi", "hello"),
	})
	require.NoError(t, err)
	require.Equal(t, final, out.Raw)
	require.Equal(t, []reconcile.Effect{
		reconcile.UpdateFieldEffect{Field: "service_type", Value: "plumbing"},
	}, out.Effects)

	inputs := cm.inputs()
	require.Len(t, inputs, 2)
	first := inputs[0]
	require.Equal(t, schema.System, first[0].Role)
	require.Contains(t, first[0].Content, `"services" quest`)
	require.Equal(t, "hi", first[1].Content)
	require.Equal(t, "I need a plumber", first[len(first)-1].Content)

	second := inputs[1]
	require.Equal(t, schema.Tool, second[len(second)-1].Role)
	require.Equal(t, "c1", second[len(second)-1].ToolCallID)
}

func TestRunner_UnknownCategoryUsesGenericGraph(t *testing.T) {
	cm := newFakeChatModel(schema.AssistantMessage("Tell me more.", nil))
	r := newRunner(t, cm, 6)

	out, err := r.Run(context.Background(), model.TurnInput{SessionID: "s1", Message: "hello", Category: "general"})
	require.NoError(t, err)
	require.Equal(t, "Tell me more.", out.Raw)
	require.Empty(t, out.Effects)
	require.Contains(t, cm.inputs()[0][0].Content, "still unclear")
}

func TestRunner_ToolLimitEndsTurn(t *testing.T) {
	cm := newFakeChatModel(
		toolCall("c1", tools.ToolUpdateQuestState, `{"field":"title","value":"Desk"}`),
		&schema.Message{
			Role:      schema.Assistant,
			Content:   "Noted the desk.",
			ToolCalls: []schema.ToolCall{{ID: "c2", Function: schema.FunctionCall{Name: tools.ToolUpdateQuestState, Arguments: `{"field":"price","value":5}`}}},
		},
	)
	r := newRunner(t, cm, 1)

	out, err := r.Run(context.Background(), model.TurnInput{SessionID: "s1", Message: "selling a desk", Category: "for_sale"})
	require.NoError(t, err)
	require.Equal(t, "Noted the desk.", out.Raw)
	require.Len(t, out.Effects, 1)

	second := cm.inputs()[1]
	notice := second[len(second)-1]
	require.Equal(t, schema.System, notice.Role)
	require.Contains(t, notice.Content, "maximum tool call limit (1)")
}

func TestRunner_ModelErrorIsUpstreamUnavailable(t *testing.T) {
	cm := newFakeChatModel()
	cm.s.err = errors.New("quota exceeded")
	r := newRunner(t, cm, 6)

	_, err := r.Run(context.Background(), model.TurnInput{SessionID: "s1", Message: "hi", Category: "jobs"})
	require.Error(t, err)
	require.True(t, errx.IsUpstreamUnavailable(err))
}

func TestUnavailableRunner(t *testing.T) {
	_, err := NewUnavailableRunner().Run(context.Background(), model.TurnInput{})
	require.ErrorIs(t, err, ErrNotConfigured)
	require.True(t, errx.IsUpstreamUnavailable(err))
}

func TestBuildAgentRunner_NilModel(t *testing.T) {
	_, err := BuildAgentRunner(context.Background(), Config{})
	require.Error(t, err)
}

func TestSanitizeToolArguments(t *testing.T) {
	ctx := context.Background()

	out, err := sanitizeToolArguments(ctx, tools.ToolGeocodeLocation, `{"location":"  Oakland, CA "}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"location":"Oakland, CA"}`, out)

	out, err = sanitizeToolArguments(ctx, tools.ToolUpdateQuestState, `{"field":" Price ","value":100}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"field":"price","value":100}`, out)

	out, err = sanitizeToolArguments(ctx, tools.ToolConfirmLocation, `{}`)
	require.NoError(t, err)
	require.Equal(t, `{}`, out)

	out, err = sanitizeToolArguments(ctx, tools.ToolUpdateQuestState, `not json`)
	require.NoError(t, err)
	require.Equal(t, `not json`, out)
}

func TestFollowUpResponder(t *testing.T) {
	cm := newFakeChatModel(schema.AssistantMessage("Great! What's your price?\n###JSON###{}", nil))
	f := NewFollowUpResponder(cm, model.FollowUpModelConfig{Model: "gemini-2.5-flash-lite", HistoryTurns: 2})

	history := append(quest.AppendTurn(nil, "a", "b"), quest.ChatMessage{Role: quest.RoleUser, Content: "it's a bike"})
	reply, err := f.FollowUp(context.Background(), quest.State{Category: quest.Ptr("for_sale")}, history)
	require.NoError(t, err)
	require.Equal(t, "Great! What's your price?", reply)

	in := cm.inputs()[0]
	require.Len(t, in, 3)
	require.Equal(t, "it's a bike", in[2].Content)
}

func TestFollowUpResponder_NotConfigured(t *testing.T) {
	var f *FollowUpResponder
	_, err := f.FollowUp(context.Background(), quest.State{}, nil)
	require.ErrorIs(t, err, ErrNotConfigured)
}
