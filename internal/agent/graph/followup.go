package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"

	"github.com/questor-agent/server/internal/agent/graph/conversations"
	"github.com/questor-agent/server/internal/agent/graph/prompts"
	"github.com/questor-agent/server/internal/agent/model"
	"github.com/questor-agent/server/internal/quest"
	"github.com/questor-agent/server/internal/reconcile"
	logx "github.com/questor-agent/server/pkg/logger"
)

// FollowUpResponder writes a reply from the updated quest state when the
// agent produced a fragment but no text for the user.
type FollowUpResponder struct {
	chatModel einomodel.BaseChatModel
	modelName string
	mm        *conversations.MessagesManager
	turns     int
	timeout   time.Duration
}

func NewFollowUpResponder(chatModel einomodel.BaseChatModel, cfg model.FollowUpModelConfig) *FollowUpResponder {
	return &FollowUpResponder{
		chatModel: chatModel,
		modelName: cfg.Model,
		mm:        conversations.NewMessagesManager(model.ConversationConfig{}),
		turns:     cfg.HistoryTurns,
		timeout:   cfg.Timeout,
	}
}

func (f *FollowUpResponder) FollowUp(ctx context.Context, state quest.State, history []quest.ChatMessage) (string, error) {
	if f == nil || f.chatModel == nil {
		return "", ErrNotConfigured
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	systemPrompt, err := prompts.RenderFollowUpSystem(ctx, state)
	if err != nil {
		return "", err
	}

	out, err := f.chatModel.Generate(ctx, f.mm.BuildFollowUpContext(systemPrompt, history, f.turns))
	if err != nil {
		return "", fmt.Errorf("follow-up generate: %w", err)
	}
	if out == nil {
		return "", fmt.Errorf("follow-up generate: empty message")
	}

	if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		_, total := model.UsageCost(f.modelName, out.ResponseMeta.Usage)
		logx.Debug().Str("model", f.modelName).Float64("total_cost_usd", total).Msg("Follow-up usage")
	}

	text := out.Content
	if i := strings.Index(text, reconcile.Marker); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text), nil
}
