package prompts

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/questor-agent/server/internal/agent/graph/tools"
	"github.com/questor-agent/server/internal/quest"
	"github.com/questor-agent/server/internal/reconcile"
)

//go:embed template/*.txt template/categories/*.txt
var templates embed.FS

const genericCategory = "generic"

func mustTemplate(name string) string {
	b, err := templates.ReadFile("template/" + name)
	if err != nil {
		panic(fmt.Sprintf("missing prompt template %s: %v", name, err))
	}
	return string(b)
}

var (
	questSystemPrompt = mustTemplate("quest_system.txt")
	classifierPrompt  = mustTemplate("classifier.txt")
	followUpPrompt    = mustTemplate("followup.txt")
)

// CategoryInstructions returns the category specific brief, or the generic one.
func CategoryInstructions(category string) string {
	b, err := templates.ReadFile("template/categories/" + category + ".txt")
	if err != nil {
		b, _ = templates.ReadFile("template/categories/" + genericCategory + ".txt")
	}
	return strings.TrimSpace(string(b))
}

// QuestPromptInput feeds the agent system prompt.
type QuestPromptInput struct {
	Category    string
	SubCategory string
	State       quest.State
	// ToolNames are the tools bound for this category.
	ToolNames []string
}

// RenderQuestSystem renders the agent system prompt via the Eino prompt component.
func RenderQuestSystem(ctx context.Context, in QuestPromptInput) (string, error) {
	stateJSON, err := json.Marshal(in.State.WithoutUI())
	if err != nil {
		return "", fmt.Errorf("quest prompt state: %w", err)
	}

	has := map[string]bool{}
	for _, n := range in.ToolNames {
		has[n] = true
	}
	toolIf := func(name string) string {
		if has[name] {
			return name
		}
		return ""
	}

	category := in.Category
	if category == "" {
		category = genericCategory
	}

	tpl := prompt.FromMessages(schema.GoTemplate, schema.SystemMessage(questSystemPrompt))
	vars := map[string]any{
		"Category":     category,
		"SubCategory":  in.SubCategory,
		"Instructions": CategoryInstructions(in.Category),
		"Fields":       strings.Join(fieldsFor(in.Category), ", "),
		"Actions":      joinActions(),
		"Marker":       reconcile.Marker,
		"StateJSON":    string(stateJSON),
		"UpdateTool":   toolIf(tools.ToolUpdateQuestState),
		"GeocodeTool":  toolIf(tools.ToolGeocodeLocation),
		"ConfirmTool":  toolIf(tools.ToolConfirmLocation),
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("quest prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("quest prompt render: empty result")
	}
	return msgs[0].Content, nil
}

// RenderClassifierMessages renders the system and user messages for classification.
func RenderClassifierMessages(ctx context.Context, taxonomyJSON, request string) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(schema.GoTemplate,
		schema.SystemMessage(classifierPrompt),
		schema.UserMessage("User request: {{.Request}}"),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"Taxonomy": taxonomyJSON,
		"Request":  request,
	})
	if err != nil {
		return nil, fmt.Errorf("classifier prompt render: %w", err)
	}
	return msgs, nil
}

// RenderFollowUpSystem renders the system prompt of the secondary completion.
func RenderFollowUpSystem(ctx context.Context, state quest.State) (string, error) {
	stateJSON, err := json.Marshal(state.WithoutUI())
	if err != nil {
		return "", fmt.Errorf("follow-up prompt state: %w", err)
	}
	category := state.CategoryName()
	if category == "" {
		category = genericCategory
	}
	tpl := prompt.FromMessages(schema.GoTemplate, schema.SystemMessage(followUpPrompt))
	msgs, err := tpl.Format(ctx, map[string]any{
		"Category":  category,
		"Action":    string(state.ActionName()),
		"StateJSON": string(stateJSON),
	})
	if err != nil {
		return "", fmt.Errorf("follow-up prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("follow-up prompt render: empty result")
	}
	return msgs[0].Content, nil
}

func fieldsFor(category string) []string {
	fields := append([]string{}, quest.CommonFields...)
	return append(fields, quest.CategoryFields[category]...)
}

func joinActions() string {
	actions := quest.KnownActions()
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = fmt.Sprintf("%q", string(a))
	}
	return strings.Join(out, ", ")
}
