package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/questor-agent/server/internal/geocode"
	"github.com/questor-agent/server/internal/quest"
	"github.com/stretchr/testify/require"
)

type stubFollowUp struct {
	reply string
	err   error
	calls int
	last  []quest.ChatMessage
}

func (s *stubFollowUp) FollowUp(_ context.Context, _ quest.State, history []quest.ChatMessage) (string, error) {
	s.calls++
	s.last = history
	return s.reply, s.err
}

func TestReconcile_LocationValidationTurn(t *testing.T) {
	raw := "Is this correct?\n###JSON###\n{\"general_location\":\"Oakland, CA\",\"location_confirmed\":false,\"action\":\"validate_location\"}"

	res := New(nil, nil).Reconcile(context.Background(), Input{
		Prior:   quest.State{Category: quest.Ptr("for_sale")},
		Message: "I'm in Oakland",
		Raw:     raw,
	})

	require.Equal(t, "Is this correct?", res.Reply)
	require.Equal(t, quest.ActionValidateLocation, res.Action)
	require.NotNil(t, res.State.LocationConfirmed)
	require.False(t, *res.State.LocationConfirmed)
	require.Equal(t, "Oakland, CA", *res.State.GeneralLocation)
	require.Equal(t, "for_sale", *res.State.Category)
	require.True(t, res.Extracted)
	require.Equal(t, []quest.ChatMessage{
		{Role: quest.RoleUser, Content: "I'm in Oakland"},
		{Role: quest.RoleAssistant, Content: "Is this correct?"},
	}, res.History)
}

func TestReconcile_NewGeocodedLocationResetsConfirmation(t *testing.T) {
	prior := quest.State{
		LocationConfirmed: quest.Ptr(true),
		GeocodedLocation:  &quest.GeocodedLocation{Input: "Berkeley", Lat: 37.87, Lon: -122.27},
	}
	geo := map[string]any{"input": "Oakland", "lat": 37.8, "lon": -122.27}

	res := New(nil, nil).Reconcile(context.Background(), Input{
		Prior: prior,
		Raw:   "Moved.\n###JSON###" + mustJSON(t, map[string]any{"geocoded_location": geo}),
	})
	require.False(t, *res.State.LocationConfirmed)

	confirmed := New(nil, nil).Reconcile(context.Background(), Input{
		Prior: prior,
		Raw:   "Moved.\n###JSON###" + mustJSON(t, map[string]any{"geocoded_location": geo, "location_confirmed": true}),
	})
	require.True(t, *confirmed.State.LocationConfirmed)

	same := New(nil, nil).Reconcile(context.Background(), Input{
		Prior: prior,
		Raw:   "Same.\n###JSON###{\"geocoded_location\":{\"input\":\"Berkeley\",\"lat\":37.87,\"lon\":-122.27,\"map_url\":\"\"}}",
	})
	require.True(t, *same.State.LocationConfirmed)
}

func TestReconcile_ParseFailureKeepsStateAndUsesRawReply(t *testing.T) {
	prior := quest.State{Title: quest.Ptr("desk")}
	history := []quest.ChatMessage{{Role: quest.RoleUser, Content: "hi"}, {Role: quest.RoleAssistant, Content: "hello"}}

	res := New(nil, nil).Reconcile(context.Background(), Input{
		Prior:   prior,
		History: history,
		Message: "how much?",
		Raw:     "  I can help with that.  ",
	})

	require.False(t, res.Extracted)
	require.Equal(t, "I can help with that.", res.Reply)
	require.Equal(t, prior, res.State)
	require.Len(t, res.History, 4)
	require.Len(t, history, 2)
}

func TestReconcile_GeocodeNotFoundBecomesReply(t *testing.T) {
	prior := quest.State{LocationConfirmed: quest.Ptr(true), GeneralLocation: quest.Ptr("Berkeley")}

	res := New(nil, nil).Reconcile(context.Background(), Input{
		Prior:   prior,
		Message: "I'm in Atlantis",
		Raw:     "###JSON###{}",
		Effects: []Effect{GeocodeEffect{Query: "Atlantis", Err: &geocode.Error{Kind: geocode.KindNotFound, Query: "Atlantis"}}},
	})

	require.Contains(t, res.Reply, "Sorry, I couldn't find 'Atlantis'.")
	require.True(t, *res.State.LocationConfirmed)
	require.Equal(t, "Berkeley", *res.State.GeneralLocation)
}

func TestReconcile_GeocodeSuccessEffect(t *testing.T) {
	res := New(nil, nil).Reconcile(context.Background(), Input{
		Prior:   quest.State{LocationConfirmed: quest.Ptr(true)},
		Message: "Oakland",
		Raw:     "I found Oakland, is that right?",
		Effects: []Effect{GeocodeEffect{
			Query:  "Oakland",
			Result: &geocode.Result{Lat: 37.8, Lon: -122.27, MapURL: quest.MapURL(37.8, -122.27), FormattedAddress: "Oakland, CA"},
		}},
	})

	require.Equal(t, "I found Oakland, is that right?", res.Reply)
	require.False(t, *res.State.LocationConfirmed)
	require.Equal(t, "Oakland", res.State.GeocodedLocation.Input)
	require.Equal(t, quest.ActionValidateLocation, res.Action)
	require.Equal(t, "location_confirm", res.State.UI["trigger"])
	require.Nil(t, res.State.WithoutUI().UI)
}

func TestReconcile_ConfirmLocationEffect(t *testing.T) {
	res := New(nil, nil).Reconcile(context.Background(), Input{
		Prior:   quest.State{LocationConfirmed: quest.Ptr(false), GeneralLocation: quest.Ptr("Oakland")},
		Raw:     "Great, how far are you willing to travel?\n###JSON###{\"action\":\"ask_for_distance\"}",
		Effects: []Effect{ConfirmLocationEffect{}},
	})
	require.True(t, *res.State.LocationConfirmed)
	require.Equal(t, quest.ActionAskForDistance, res.Action)
}

func TestReconcile_ConfirmSurvivesRepeatedLocationWithoutAddress(t *testing.T) {
	prior := quest.State{
		LocationConfirmed: quest.Ptr(false),
		GeocodedLocation: &quest.GeocodedLocation{
			Input:            "Oakland, CA",
			Lat:              37.8,
			Lon:              -122.27,
			MapURL:           quest.MapURL(37.8, -122.27),
			FormattedAddress: "Oakland, Alameda County, California",
		},
	}
	raw := "Great, how far are you willing to travel?\n###JSON###" +
		`{"geocoded_location":{"input":"Oakland, CA","lat":37.8,"lon":-122.27},"action":"ask_for_distance"}`

	res := New(nil, nil).Reconcile(context.Background(), Input{
		Prior:   prior,
		Raw:     raw,
		Effects: []Effect{ConfirmLocationEffect{}},
	})

	require.True(t, *res.State.LocationConfirmed)
	require.Equal(t, quest.ActionAskForDistance, res.Action)
	require.Equal(t, "Oakland, Alameda County, California", res.State.GeocodedLocation.FormattedAddress)
}

func TestReconcile_ConfirmKeptWhenOnlyInputWordingChanges(t *testing.T) {
	prior := quest.State{
		GeocodedLocation: &quest.GeocodedLocation{Input: "Oakland, CA", Lat: 37.8, Lon: -122.27},
	}
	raw := "Noted.\n###JSON###" + `{"geocoded_location":{"input":"oakland","lat":37.8000001,"lon":-122.27}}`

	res := New(nil, nil).Reconcile(context.Background(), Input{
		Prior:   prior,
		Raw:     raw,
		Effects: []Effect{ConfirmLocationEffect{}},
	})
	require.True(t, *res.State.LocationConfirmed)
}

func TestReconcile_ConfirmEffectDoesNotCoverDifferentCoordinates(t *testing.T) {
	prior := quest.State{
		GeocodedLocation: &quest.GeocodedLocation{Input: "Oakland, CA", Lat: 37.8, Lon: -122.27},
	}
	raw := "Moved.\n###JSON###" + `{"geocoded_location":{"input":"Berkeley","lat":37.87,"lon":-122.27}}`

	res := New(nil, nil).Reconcile(context.Background(), Input{
		Prior:   prior,
		Raw:     raw,
		Effects: []Effect{ConfirmLocationEffect{}},
	})
	require.False(t, *res.State.LocationConfirmed)
}

func TestReconcile_EmptyPrefixUsesFollowUpThenContinue(t *testing.T) {
	fu := &stubFollowUp{reply: "What price are you asking?"}
	res := New(nil, fu).Reconcile(context.Background(), Input{
		Message: "it's a bike",
		Raw:     "###JSON###{\"title\":\"bike\",\"action\":\"ask_for_price\"}",
	})
	require.Equal(t, "What price are you asking?", res.Reply)
	require.Equal(t, 1, fu.calls)
	require.Equal(t, quest.ChatMessage{Role: quest.RoleUser, Content: "it's a bike"}, fu.last[len(fu.last)-1])

	failing := &stubFollowUp{err: errors.New("boom")}
	res = New(nil, failing).Reconcile(context.Background(), Input{Raw: "```json\n{\"title\":\"bike\"}\n```"})
	require.Equal(t, ContinueMessage, res.Reply)

	res = New(nil, nil).Reconcile(context.Background(), Input{Raw: "   "})
	require.Equal(t, ContinueMessage, res.Reply)
}

func TestReconcile_UnknownActionKeptAndPhotosReplaced(t *testing.T) {
	res := New(nil, nil).Reconcile(context.Background(), Input{
		Prior: quest.State{Photos: []string{"/uploads/a.png", "/uploads/b.png"}},
		Raw:   "Done\n###JSON###{\"action\":\"celebrate\",\"photos\":[\"/uploads/c.png\"],\"price\":\"1,2\",\"mood\":\"happy\"}",
	})
	require.Equal(t, quest.Action("celebrate"), res.Action)
	require.Equal(t, []string{"/uploads/c.png"}, res.State.Photos)
	require.Nil(t, res.State.Price)
	require.Len(t, res.Report.Rejected, 2)
}

func TestReconcile_PriorUIIsNotCarriedForward(t *testing.T) {
	res := New(nil, nil).Reconcile(context.Background(), Input{
		Prior: quest.State{UI: map[string]any{"trigger": "location_confirm"}},
		Raw:   "ok",
	})
	require.Nil(t, res.State.UI)
}

func TestReconcile_UpdateFieldEffects(t *testing.T) {
	res := New(nil, nil).Reconcile(context.Background(), Input{
		Prior: quest.State{LocationConfirmed: quest.Ptr(false)},
		Raw:   "Noted.\n###JSON###{\"condition\":\"like new\"}",
		Effects: []Effect{
			UpdateFieldEffect{Field: "price", Value: "$85"},
			UpdateFieldEffect{Field: "title", Value: "Road bike"},
			UpdateFieldEffect{Field: "condition", Value: "used"},
			UpdateFieldEffect{Field: "location_confirmed", Value: true},
			UpdateFieldEffect{Field: "shoe_size", Value: "9"},
		},
	})
	require.Equal(t, 85.0, *res.State.Price)
	require.Equal(t, "Road bike", *res.State.Title)
	require.Equal(t, "like new", *res.State.Condition, "fragment is merged after tool effects")
	require.False(t, *res.State.LocationConfirmed)
}
