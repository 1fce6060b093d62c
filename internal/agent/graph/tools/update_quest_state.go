package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/questor-agent/server/internal/agent/model"
	"github.com/questor-agent/server/internal/quest"
	"github.com/questor-agent/server/internal/reconcile"
)

func createUpdateQuestStateTool() tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolUpdateQuestState,
			Desc: "Save one piece of information about the quest as soon as the user provides it.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"field": {
					Type:     "string",
					Desc:     "Quest field name, e.g. title, price, condition, budget, job_role.",
					Required: true,
				},
				"value": {
					Type:     "string",
					Desc:     "Value to store. Numbers may be written plainly, e.g. 120 or 1,200.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *model.UpdateQuestStateInput) (*model.UpdateQuestStateOutput, error) {
			field := strings.TrimSpace(in.Field)
			kind, ok := quest.FieldKind(field)
			if !ok {
				return &model.UpdateQuestStateOutput{Message: fmt.Sprintf("Unknown field %q; nothing saved.", field)}, nil
			}
			if reconcile.ProtectedFields[field] {
				return &model.UpdateQuestStateOutput{Message: fmt.Sprintf("%s cannot be set directly.", field)}, nil
			}
			if _, err := quest.Coerce(kind, in.Value); err != nil {
				return &model.UpdateQuestStateOutput{Message: fmt.Sprintf("Could not save %s: expected a %s.", field, kind)}, nil
			}
			RecorderFrom(ctx).Record(reconcile.UpdateFieldEffect{Field: field, Value: in.Value})
			return &model.UpdateQuestStateOutput{Message: fmt.Sprintf("Saved `%s`.", field), Saved: true}, nil
		},
	)
}
