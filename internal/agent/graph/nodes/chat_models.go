package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/questor-agent/server/internal/agent/model"
	logx "github.com/questor-agent/server/pkg/logger"
)

const BackendVertex = "vertex"

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	Provider   model.ProviderConfig
	Agent      *model.AgentModelConfig
	Classifier *model.ClassifierModelConfig
	FollowUp   *model.FollowUpModelConfig
}

// ChatModels holds the agent, classifier and follow-up chat models
type ChatModels struct {
	Agent               einomodel.ToolCallingChatModel
	Classifier          einomodel.BaseChatModel
	FollowUp            einomodel.BaseChatModel
	AgentModelName      string
	ClassifierModelName string
	FollowUpModelName   string
}

func newClient(ctx context.Context, p model.ProviderConfig) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  p.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if p.Backend == BackendVertex {
		clientCfg = &genai.ClientConfig{
			Project:  p.Project,
			Location: p.Location,
			Backend:  genai.BackendVertexAI,
		}
	}
	if p.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = p.BaseURL
	}
	return genai.NewClient(ctx, clientCfg)
}

// NewChatModels creates the three Gemini chat models over one shared client
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	if config.Agent == nil || config.Classifier == nil || config.FollowUp == nil {
		return nil, fmt.Errorf("chat model configs are nil")
	}

	client, err := newClient(ctx, config.Provider)
	if err != nil {
		logx.Error().Err(err).Str("backend", config.Provider.Backend).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	agentCfg := &gemini.Config{
		Client:      client,
		Model:       config.Agent.Model,
		Temperature: &config.Agent.Temperature,
		MaxTokens:   &config.Agent.MaxTokens,
	}
	if config.Agent.ThinkingBudget > 0 {
		agentCfg.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(config.Agent.ThinkingBudget),
		}
	}
	chatModelAgent, err := gemini.NewChatModel(ctx, agentCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating agent model")
		return nil, fmt.Errorf("error creating agent model: %w", err)
	}

	chatModelClassifier, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.Classifier.Model,
		Temperature: &config.Classifier.Temperature,
		MaxTokens:   &config.Classifier.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating classifier model")
		return nil, fmt.Errorf("error creating classifier model: %w", err)
	}

	chatModelFollowUp, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.FollowUp.Model,
		Temperature: &config.FollowUp.Temperature,
		MaxTokens:   &config.FollowUp.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating follow-up model")
		return nil, fmt.Errorf("error creating follow-up model: %w", err)
	}

	return &ChatModels{
		Agent:               chatModelAgent,
		Classifier:          chatModelClassifier,
		FollowUp:            chatModelFollowUp,
		AgentModelName:      config.Agent.Model,
		ClassifierModelName: config.Classifier.Model,
		FollowUpModelName:   config.FollowUp.Model,
	}, nil
}

// BindTools returns a copy of the agent model with tools bound. The shared
// agent model is left untouched so each category can bind its own set.
func BindTools(ctx context.Context, cm einomodel.ToolCallingChatModel, tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	bound, err := cm.WithTools(tools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools")
		return nil, fmt.Errorf("failed to bind tools: %w", err)
	}

	logx.Debug().Int("tool_count", len(tools)).Msg("Successfully bound tools to agent model")
	return bound, nil
}
