package quest

// Action is the next-step token the model attaches to a fragment.
type Action string

const (
	ActionValidateLocation Action = "validate_location"
	ActionAskForDistance   Action = "ask_for_distance"
	ActionAskForPrice      Action = "ask_for_price"
	ActionOfferPhotos      Action = "offer_photos"
	ActionReady            Action = "ready"
	ActionSummarize        Action = "summarize"
	ActionError            Action = "error"
)

var knownActions = map[Action]struct{}{
	ActionValidateLocation: {},
	ActionAskForDistance:   {},
	ActionAskForPrice:      {},
	ActionOfferPhotos:      {},
	ActionReady:            {},
	ActionSummarize:        {},
	ActionError:            {},
}

// Known reports whether a belongs to the closed action set.
func (a Action) Known() bool {
	_, ok := knownActions[a]
	return ok
}

// KnownActions lists the closed action set in a stable order, for prompts.
func KnownActions() []Action {
	return []Action{
		ActionValidateLocation,
		ActionAskForDistance,
		ActionAskForPrice,
		ActionOfferPhotos,
		ActionReady,
		ActionSummarize,
		ActionError,
	}
}
