package reconcile

import (
	"github.com/questor-agent/server/internal/geocode"
	"github.com/questor-agent/server/internal/quest"
	logx "github.com/questor-agent/server/pkg/logger"
)

// Effect is a state change produced by a tool call during the agent turn.
// Effects are applied in order before the model's fragment is merged.
type Effect interface {
	apply(s *quest.State, out *turnNotes)
}

type turnNotes struct {
	geocodeFailure string
	// confirmed is set when confirm_location ran after the last successful lookup.
	confirmed bool
}

// GeocodeEffect records one geocode_location tool call.
type GeocodeEffect struct {
	Query  string
	Result *geocode.Result
	Err    error
}

func (e GeocodeEffect) apply(s *quest.State, notes *turnNotes) {
	if e.Err != nil || e.Result == nil {
		// a failed lookup leaves the location fields untouched
		notes.geocodeFailure = geocode.UserMessage(e.Query, e.Err)
		logx.Info().Str("component", "reconciler").Str("query", e.Query).Err(e.Err).Msg("geocode failed")
		return
	}
	s.GeneralLocation = quest.Ptr(e.Query)
	s.GeocodedLocation = &quest.GeocodedLocation{
		Input:            e.Query,
		Lat:              e.Result.Lat,
		Lon:              e.Result.Lon,
		MapURL:           e.Result.MapURL,
		FormattedAddress: e.Result.FormattedAddress,
	}
	s.LocationConfirmed = quest.Ptr(false)
	s.Action = quest.Ptr(quest.ActionValidateLocation)
	s.UI = map[string]any{
		"trigger": "location_confirm",
		"buttons": []string{"Yes", "No"},
	}
	notes.geocodeFailure = ""
	notes.confirmed = false
}

// ConfirmLocationEffect records the user accepting the proposed location.
type ConfirmLocationEffect struct{}

func (ConfirmLocationEffect) apply(s *quest.State, notes *turnNotes) {
	s.LocationConfirmed = quest.Ptr(true)
	notes.confirmed = true
	if s.UI != nil && s.UI["trigger"] == "location_confirm" {
		s.UI = nil
	}
}

// UpdateFieldEffect records one update_quest_state tool call. It goes through
// the same whitelist and coercion as fragment keys.
type UpdateFieldEffect struct {
	Field string
	Value any
}

// ProtectedFields can only change through their dedicated tools.
var ProtectedFields = map[string]bool{
	"location_confirmed": true,
	"geocoded_location":  true,
	"ui":                 true,
}

func (e UpdateFieldEffect) apply(s *quest.State, _ *turnNotes) {
	if ProtectedFields[e.Field] {
		logx.Warn().Str("component", "reconciler").Str("field", e.Field).Msg("protected field update ignored")
		return
	}
	next, report, err := quest.Merge(*s, map[string]any{e.Field: e.Value})
	if err != nil {
		logx.Error().Str("component", "reconciler").Err(err).Str("field", e.Field).Msg("field update failed")
		return
	}
	for _, rej := range report.Rejected {
		logx.Warn().Str("component", "reconciler").Str("field", rej.Field).Str("reason", rej.Reason).Msg("field update dropped")
	}
	*s = next
}
