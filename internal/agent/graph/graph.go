package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/questor-agent/server/internal/agent/graph/conversations"
	"github.com/questor-agent/server/internal/agent/graph/nodes"
	"github.com/questor-agent/server/internal/agent/graph/observers"
	"github.com/questor-agent/server/internal/agent/graph/tools"
	"github.com/questor-agent/server/internal/agent/model"
	errx "github.com/questor-agent/server/internal/core/error"
	logx "github.com/questor-agent/server/pkg/logger"
)

// GenericCategory serves every category without a dedicated graph.
const GenericCategory = "generic"

// ErrNotConfigured is returned by the unavailable runner.
var ErrNotConfigured = errors.New("model provider not configured")

// Runner executes one agent turn.
type Runner interface {
	Run(ctx context.Context, in model.TurnInput) (*model.TurnOutput, error)
}

// Config holds everything needed to build the per-category graphs.
type Config struct {
	ChatModel    einomodel.ToolCallingChatModel
	ModelName    string
	Conversation model.ConversationConfig
	Tools        tools.Deps
	// Timeout bounds one whole turn, tool rounds included.
	Timeout time.Duration
}

// GraphConfig holds all configuration needed to build one category graph
type GraphConfig struct {
	ChatModel       einomodel.ToolCallingChatModel
	ModelName       string
	MessagesManager *conversations.MessagesManager
	Category        string
	Tools           tools.Deps
	ToolMaxCalls    int
}

// GraphBuilder handles the construction of the agent conversation graph
type GraphBuilder struct {
	config    *GraphConfig
	graph     *compose.Graph[model.TurnInput, *schema.Message]
	chatModel einomodel.ToolCallingChatModel
	toolNames []string
}

type graphRunner struct {
	graphs  map[string]compose.Runnable[model.TurnInput, *schema.Message]
	timeout time.Duration
}

func (r *graphRunner) Run(ctx context.Context, in model.TurnInput) (*model.TurnOutput, error) {
	runnable, ok := r.graphs[in.Category]
	if !ok {
		runnable = r.graphs[GenericCategory]
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	rec := tools.NewRecorder()
	ctx = tools.WithRecorder(ctx, rec)

	out, err := runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		logx.Error().Err(err).Str("session_id", in.SessionID).Str("category", in.Category).Msg("Agent turn failed")
		return nil, errx.UpstreamUnavailable(err)
	}

	res := &model.TurnOutput{Effects: rec.Effects()}
	if out != nil {
		res.Raw = out.Content
		if total, ok := out.Extra["usage_cost_total_usd"].(float64); ok {
			res.CostUSD = total
		}
	}
	logx.Debug().
		Str("session_id", in.SessionID).
		Int("effects", len(res.Effects)).
		Float64("total_cost_usd", res.CostUSD).
		Msg("Agent turn complete")
	return res, nil
}

type unavailableRunner struct{}

func (unavailableRunner) Run(context.Context, model.TurnInput) (*model.TurnOutput, error) {
	return nil, errx.UpstreamUnavailable(ErrNotConfigured)
}

// NewUnavailableRunner returns a Runner that always fails as upstream unavailable.
func NewUnavailableRunner() Runner {
	return unavailableRunner{}
}

// BuildAgentRunner compiles one graph per category plus the generic graph.
func BuildAgentRunner(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("chat model is nil")
	}

	mm := conversations.NewMessagesManager(cfg.Conversation)
	categories := append(tools.Categories(), GenericCategory)

	graphs := make(map[string]compose.Runnable[model.TurnInput, *schema.Message], len(categories))
	for _, category := range categories {
		runnable, err := BuildGraph(ctx, &GraphConfig{
			ChatModel:       cfg.ChatModel,
			ModelName:       cfg.ModelName,
			MessagesManager: mm,
			Category:        category,
			Tools:           cfg.Tools,
			ToolMaxCalls:    cfg.Conversation.Tools.MaxCalls,
		})
		if err != nil {
			return nil, fmt.Errorf("build %s graph: %w", category, err)
		}
		graphs[category] = runnable
	}

	logx.Debug().Int("graphs", len(graphs)).Msg("Agent graphs built successfully")
	return &graphRunner{graphs: graphs, timeout: cfg.Timeout}, nil
}

// BuildGraph constructs and returns the compiled agent graph for one category
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.TurnInput, *schema.Message], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.ChatModel == nil {
		return nil, fmt.Errorf("chat model is not initialized")
	}
	if config.MessagesManager == nil {
		return nil, fmt.Errorf("messages manager is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.TurnInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	if err := builder.setupTools(ctx); err != nil {
		return nil, err
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// setupTools binds the category tools to the agent model and adds the tools node
func (b *GraphBuilder) setupTools(ctx context.Context) error {
	questTools := tools.GetQuestTools(b.config.Category, b.config.Tools)
	toolInfos, err := tools.GetToolInfos(ctx, questTools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to get tool infos")
		return fmt.Errorf("failed to get tool infos: %w", err)
	}
	for _, info := range toolInfos {
		b.toolNames = append(b.toolNames, info.Name)
	}

	b.chatModel, err = nodes.BindTools(ctx, b.config.ChatModel, toolInfos)
	if err != nil {
		return err
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               questTools,
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Str("category", b.config.Category).
				Msg("Unknown or invalid tool call; returning fallback result")
			return fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q,\"note\":\"ignored\"}", name), nil
		},
		ToolArgumentsHandler: sanitizeToolArguments,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return fmt.Errorf("failed to create tools node: %w", err)
	}

	return b.graph.AddToolsNode(nodes.NodeToolExecutor, toolsNode,
		compose.WithStatePreHandler(nodes.NewToolExecutorPreHandler(b.config.ToolMaxCalls)),
	)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	if err := b.graph.AddLambdaNode(nodes.NodeInputConverter,
		nodes.NewInputConverterNode(b.config.MessagesManager, b.toolNames),
		compose.WithStatePreHandler(nodes.NewInputConverterPreHandler()),
	); err != nil {
		return fmt.Errorf("add input converter: %w", err)
	}

	if err := b.graph.AddChatModelNode(nodes.NodeQuestChatModel,
		b.chatModel,
		compose.WithStatePreHandler(nodes.NewQuestChatModelPreHandler(b.config.ToolMaxCalls)),
		compose.WithStatePostHandler(nodes.NewQuestChatModelPostHandler(b.config.ModelName)),
	); err != nil {
		return fmt.Errorf("add quest chat model: %w", err)
	}
	return nil
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeInputConverter},
		{nodes.NodeInputConverter, nodes.NodeQuestChatModel},
		{nodes.NodeToolExecutor, nodes.NodeQuestChatModel},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			return fmt.Errorf("add edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	decisionBranch := compose.NewGraphBranch(
		nodes.NewToolExecutorCondition(),
		map[string]bool{
			nodes.NodeToolExecutor: true,
			compose.END:            true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeQuestChatModel, decisionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding decision branch")
		return fmt.Errorf("error adding decision branch: %w", err)
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.TurnInput, *schema.Message], error) {
	// Limit total run steps to avoid infinite tool loops
	maxSteps := 10 + b.config.ToolMaxCalls*2
	if maxSteps < 20 {
		maxSteps = 20
	}

	runnable, err := b.graph.Compile(ctx,
		compose.WithGraphName("quest_"+b.config.Category),
		compose.WithMaxRunSteps(maxSteps),
	)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}
	return runnable, nil
}

// sanitizeToolArguments trims string arguments the model tends to pad. It never
// fails; malformed input is passed through for the tool to reject.
func sanitizeToolArguments(ctx context.Context, name, arguments string) (string, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil {
		return arguments, nil
	}

	switch name {
	case tools.ToolGeocodeLocation:
		if v, ok := m["location"]; ok {
			m["location"] = strings.TrimSpace(fmt.Sprint(v))
		}
	case tools.ToolUpdateQuestState:
		if v, ok := m["field"].(string); ok {
			m["field"] = strings.ToLower(strings.TrimSpace(v))
		}
		if v, ok := m["value"].(string); ok {
			m["value"] = strings.TrimSpace(v)
		}
	default:
		return arguments, nil
	}

	out, err := json.Marshal(m)
	if err != nil {
		return arguments, nil
	}
	return string(out), nil
}
