package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cloudwego/eino/components/tool"
	"github.com/stretchr/testify/require"

	"github.com/questor-agent/server/internal/geocode"
	"github.com/questor-agent/server/internal/quest"
	"github.com/questor-agent/server/internal/reconcile"
)

type fakeGeocoder struct {
	res geocode.Result
	err error
}

func (f fakeGeocoder) Geocode(context.Context, string) (geocode.Result, error) {
	return f.res, f.err
}

func invoke(t *testing.T, ctx context.Context, tools []tool.BaseTool, name, args string) map[string]any {
	t.Helper()
	for _, bt := range tools {
		info, err := bt.Info(ctx)
		require.NoError(t, err)
		if info.Name != name {
			continue
		}
		it, ok := bt.(tool.InvokableTool)
		require.True(t, ok)
		out, err := it.InvokableRun(ctx, args)
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &m))
		return m
	}
	t.Fatalf("tool %s not found", name)
	return nil
}

func TestToolSetsPerCategory(t *testing.T) {
	deps := Deps{Geocoder: fakeGeocoder{}}
	names := func(category string, deps Deps) []string {
		infos, err := GetToolInfos(context.Background(), GetQuestTools(category, deps))
		require.NoError(t, err)
		out := make([]string, 0, len(infos))
		for _, info := range infos {
			out = append(out, info.Name)
		}
		return out
	}

	require.Equal(t, []string{ToolUpdateQuestState, ToolGeocodeLocation, ToolConfirmLocation}, names("for_sale", deps))
	require.Equal(t, []string{ToolUpdateQuestState, ToolConfirmLocation}, names("for_sale", Deps{}))
	require.Equal(t, []string{ToolUpdateQuestState}, names("services", deps))
	require.Equal(t, []string{ToolUpdateQuestState}, names("general", deps))
}

func TestGeocodeLocationTool_RecordsEffects(t *testing.T) {
	ok := GetQuestTools("for_sale", Deps{Geocoder: fakeGeocoder{res: geocode.Result{Lat: 37.8, Lon: -122.27, MapURL: "https://map", FormattedAddress: "Oakland, CA"}}})
	rec := NewRecorder()
	ctx := WithRecorder(context.Background(), rec)

	out := invoke(t, ctx, ok, ToolGeocodeLocation, `{"location":" Oakland "}`)
	require.Equal(t, string(quest.ActionValidateLocation), out["action"])
	require.Equal(t, false, out["location_confirmed"])

	effects := rec.Effects()
	require.Len(t, effects, 1)
	eff, isGeo := effects[0].(reconcile.GeocodeEffect)
	require.True(t, isGeo)
	require.Equal(t, "Oakland", eff.Query)
	require.NotNil(t, eff.Result)

	failing := GetQuestTools("for_sale", Deps{Geocoder: fakeGeocoder{err: &geocode.Error{Kind: geocode.KindNotFound, Query: "Atlantis"}}})
	out = invoke(t, ctx, failing, ToolGeocodeLocation, `{"location":"Atlantis"}`)
	require.Equal(t, string(quest.ActionError), out["action"])
	require.Contains(t, out["message"], "couldn't find 'Atlantis'")
	require.Len(t, rec.Effects(), 2)
}

func TestConfirmAndUpdateTools(t *testing.T) {
	tools := GetQuestTools("for_sale", Deps{})
	rec := NewRecorder()
	ctx := WithRecorder(context.Background(), rec)

	out := invoke(t, ctx, tools, ToolConfirmLocation, `{}`)
	require.Equal(t, "Location confirmed.", out["message"])

	out = invoke(t, ctx, tools, ToolUpdateQuestState, `{"field":"price","value":"1,200"}`)
	require.Equal(t, true, out["saved"])

	out = invoke(t, ctx, tools, ToolUpdateQuestState, `{"field":"price","value":"cheap"}`)
	require.Equal(t, false, out["saved"])

	out = invoke(t, ctx, tools, ToolUpdateQuestState, `{"field":"location_confirmed","value":"true"}`)
	require.Equal(t, false, out["saved"])

	out = invoke(t, ctx, tools, ToolUpdateQuestState, `{"field":"favourite_colour","value":"blue"}`)
	require.Equal(t, false, out["saved"])

	effects := rec.Effects()
	require.Len(t, effects, 2)
	require.IsType(t, reconcile.ConfirmLocationEffect{}, effects[0])
	require.Equal(t, reconcile.UpdateFieldEffect{Field: "price", Value: "1,200"}, effects[1])
}

func TestRecorder_NilIsSafe(t *testing.T) {
	var rec *Recorder
	rec.Record(reconcile.ConfirmLocationEffect{})
	require.Nil(t, rec.Effects())
	require.Nil(t, RecorderFrom(context.Background()))
}

func TestCategories(t *testing.T) {
	require.Equal(t, []string{"community", "for_sale", "gigs", "housing", "jobs", "services"}, Categories())
}
