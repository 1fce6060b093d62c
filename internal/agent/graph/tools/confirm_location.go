package tools

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/questor-agent/server/internal/agent/model"
	"github.com/questor-agent/server/internal/reconcile"
)

type confirmLocationInput struct{}

func createConfirmLocationTool() tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name:        ToolConfirmLocation,
			Desc:        "Mark the proposed location as confirmed. Call this only after the user explicitly agrees that the location shown is correct.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		func(ctx context.Context, _ *confirmLocationInput) (*model.ConfirmLocationOutput, error) {
			RecorderFrom(ctx).Record(reconcile.ConfirmLocationEffect{})
			return &model.ConfirmLocationOutput{Message: "Location confirmed."}, nil
		},
	)
}
