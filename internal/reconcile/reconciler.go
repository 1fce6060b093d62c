// Package reconcile turns one agent turn into an updated quest: it extracts the
// structured fragment from the model output, merges it into the prior state,
// enforces the location invariants and never produces an empty reply.
package reconcile

import (
	"context"
	"math"
	"strings"

	"github.com/questor-agent/server/internal/quest"
	logx "github.com/questor-agent/server/pkg/logger"
)

// ContinueMessage is the reply of last resort.
const ContinueMessage = "Got it. What else can you tell me about your quest?"

// FollowUp produces a reply from the updated state when the model gave none.
type FollowUp interface {
	FollowUp(ctx context.Context, state quest.State, history []quest.ChatMessage) (string, error)
}

// Input is one agent turn to reconcile.
type Input struct {
	Prior   quest.State
	History []quest.ChatMessage
	Message string
	Raw     string
	Effects []Effect
}

// Result is the reconciled turn. State still carries the transient ui hint.
type Result struct {
	Reply     string
	State     quest.State
	Action    quest.Action
	History   []quest.ChatMessage
	Strategy  string
	Extracted bool
	Report    quest.MergeReport
}

type Reconciler struct {
	extractor *Extractor
	followUp  FollowUp
}

// New builds a reconciler. A nil extractor uses the default chain; followUp may be nil.
func New(extractor *Extractor, followUp FollowUp) *Reconciler {
	if extractor == nil {
		extractor = NewExtractor()
	}
	return &Reconciler{extractor: extractor, followUp: followUp}
}

// Reconcile never fails: parse, merge and follow-up problems degrade the turn
// and are logged.
func (r *Reconciler) Reconcile(ctx context.Context, in Input) Result {
	state := in.Prior.Clone()
	state.UI = nil

	var notes turnNotes
	for _, eff := range in.Effects {
		if eff != nil {
			eff.apply(&state, &notes)
		}
	}

	res := Result{}
	reply := ""

	ext, err := r.extractor.Extract(in.Raw)
	if err != nil {
		logx.Warn().Str("component", "reconciler").Err(err).Msg("no fragment; using raw output as reply")
		reply = strings.TrimSpace(in.Raw)
	} else {
		res.Extracted = true
		res.Strategy = ext.Strategy
		reply = ext.Prefix
		state, res.Report = r.merge(state, ext.Fragment, notes)
	}

	if a := state.ActionName(); a != "" && !a.Known() {
		logx.Warn().Str("component", "reconciler").Str("action", string(a)).Msg("unknown action kept")
	}

	if reply == "" && notes.geocodeFailure != "" {
		reply = notes.geocodeFailure
	}
	if reply == "" && r.followUp != nil {
		history := append(quest.Recent(in.History, 0), quest.ChatMessage{Role: quest.RoleUser, Content: in.Message})
		text, ferr := r.followUp.FollowUp(ctx, state.WithoutUI(), history)
		if ferr != nil {
			logx.Warn().Str("component", "reconciler").Err(ferr).Msg("follow-up reply failed")
		}
		reply = strings.TrimSpace(text)
	}
	if reply == "" {
		reply = ContinueMessage
	}

	res.Reply = reply
	res.State = state
	res.Action = state.ActionName()
	res.History = quest.AppendTurn(in.History, in.Message, reply)
	return res
}

func (r *Reconciler) merge(state quest.State, fragment map[string]any, notes turnNotes) (quest.State, quest.MergeReport) {
	next, report, err := quest.Merge(state, fragment)
	if err != nil {
		logx.Error().Str("component", "reconciler").Err(err).Msg("merge failed; keeping prior state")
		return state, report
	}
	for _, rej := range report.Rejected {
		logx.Warn().Str("component", "reconciler").Str("field", rej.Field).Str("reason", rej.Reason).Msg("fragment field dropped")
	}

	if applied(report, "geocoded_location") {
		prev, cur := state.GeocodedLocation, next.GeocodedLocation
		switch {
		case sameLocation(prev, cur):
			// a repeated location keeps the details the fragment left out
			next.GeocodedLocation = fillLocation(cur, prev)
		case notes.confirmed && sameCoordinates(prev, cur):
			// confirm_location already settled this place for the turn
			next.GeocodedLocation = fillLocation(cur, prev)
		case !applied(report, "location_confirmed") || !next.IsLocationConfirmed():
			// a new geocoded location needs fresh confirmation unless the fragment confirms it
			next.LocationConfirmed = quest.Ptr(false)
		}
	}
	return next, report
}

// coordTolerance absorbs rounding when the model echoes coordinates back.
const coordTolerance = 1e-6

func sameCoordinates(a, b *quest.GeocodedLocation) bool {
	if a == nil || b == nil {
		return a == b
	}
	return math.Abs(a.Lat-b.Lat) <= coordTolerance && math.Abs(a.Lon-b.Lon) <= coordTolerance
}

// sameLocation compares the identifying fields only; map_url and
// formatted_address are derived and often omitted by the model.
func sameLocation(a, b *quest.GeocodedLocation) bool {
	if a == nil || b == nil {
		return a == b
	}
	return strings.EqualFold(strings.TrimSpace(a.Input), strings.TrimSpace(b.Input)) && sameCoordinates(a, b)
}

func fillLocation(cur, prev *quest.GeocodedLocation) *quest.GeocodedLocation {
	if cur == nil || prev == nil {
		return cur
	}
	out := *cur
	if out.Input == "" {
		out.Input = prev.Input
	}
	if out.MapURL == "" {
		out.MapURL = prev.MapURL
	}
	if out.FormattedAddress == "" {
		out.FormattedAddress = prev.FormattedAddress
	}
	return &out
}

func applied(report quest.MergeReport, field string) bool {
	for _, f := range report.Applied {
		if f == field {
			return true
		}
	}
	return false
}
