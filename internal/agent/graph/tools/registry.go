package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/questor-agent/server/internal/geocode"
)

const (
	ToolGeocodeLocation  = "geocode_location"
	ToolConfirmLocation  = "confirm_location"
	ToolUpdateQuestState = "update_quest_state"
)

// Deps are the collaborators tools call out to.
type Deps struct {
	Geocoder geocode.Geocoder
}

// categoryTools lists the tools each category agent may call. Categories not
// listed get only update_quest_state.
var categoryTools = map[string][]string{
	"for_sale":  {ToolUpdateQuestState, ToolGeocodeLocation, ToolConfirmLocation},
	"housing":   {ToolUpdateQuestState, ToolGeocodeLocation, ToolConfirmLocation},
	"community": {ToolUpdateQuestState, ToolGeocodeLocation, ToolConfirmLocation},
	"jobs":      {ToolUpdateQuestState, ToolConfirmLocation},
	"services":  {ToolUpdateQuestState},
	"gigs":      {ToolUpdateQuestState},
}

// ToolNamesFor returns the tool names available to a category.
func ToolNamesFor(category string) []string {
	if names, ok := categoryTools[category]; ok {
		return names
	}
	return []string{ToolUpdateQuestState}
}

// Categories returns the categories with a dedicated tool set, sorted.
func Categories() []string {
	out := make([]string, 0, len(categoryTools))
	for c := range categoryTools {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// GetQuestTools builds the tools for a category. The geocode tool is left out
// when no geocoder is configured.
func GetQuestTools(category string, deps Deps) []tool.BaseTool {
	var out []tool.BaseTool
	for _, name := range ToolNamesFor(category) {
		switch name {
		case ToolUpdateQuestState:
			out = append(out, createUpdateQuestStateTool())
		case ToolGeocodeLocation:
			if deps.Geocoder != nil {
				out = append(out, createGeocodeLocationTool(deps.Geocoder))
			}
		case ToolConfirmLocation:
			out = append(out, createConfirmLocationTool())
		}
	}
	return out
}

// GetToolInfos collects the ToolInfo of every tool for model binding.
func GetToolInfos(ctx context.Context, tools []tool.BaseTool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}
