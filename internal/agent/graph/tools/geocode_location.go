package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/questor-agent/server/internal/agent/model"
	"github.com/questor-agent/server/internal/geocode"
	"github.com/questor-agent/server/internal/quest"
	"github.com/questor-agent/server/internal/reconcile"
)

func createGeocodeLocationTool(g geocode.Geocoder) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolGeocodeLocation,
			Desc: "Look up a place the user mentioned and get its coordinates and a map link. Call this whenever the user gives or changes a location, then ask the user to confirm the result.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"location": {
					Type:     "string",
					Desc:     "Free-text location exactly as the user described it, e.g. 'Oakland, CA' or 'near Lake Merritt'.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *model.GeocodeLocationInput) (*model.GeocodeLocationOutput, error) {
			location := strings.TrimSpace(in.Location)
			if location == "" {
				return &model.GeocodeLocationOutput{
					Message: "No location given. Ask the user where the quest takes place.",
					Action:  quest.ActionError,
				}, nil
			}

			rec := RecorderFrom(ctx)
			res, err := g.Geocode(ctx, location)
			if err != nil {
				// failures become conversation text, never a failed turn
				rec.Record(reconcile.GeocodeEffect{Query: location, Err: err})
				return &model.GeocodeLocationOutput{
					Message:         geocode.UserMessage(location, err),
					GeneralLocation: location,
					Action:          quest.ActionError,
				}, nil
			}

			rec.Record(reconcile.GeocodeEffect{Query: location, Result: &res})
			return &model.GeocodeLocationOutput{
				Message:         fmt.Sprintf("Found %s. Show the map link %s and ask the user to confirm this location.", res.FormattedAddress, res.MapURL),
				GeneralLocation: location,
				GeocodedLocation: &quest.GeocodedLocation{
					Input:            location,
					Lat:              res.Lat,
					Lon:              res.Lon,
					MapURL:           res.MapURL,
					FormattedAddress: res.FormattedAddress,
				},
				Action: quest.ActionValidateLocation,
			}, nil
		},
	)
}
