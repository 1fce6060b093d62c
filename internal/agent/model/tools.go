package model

import "github.com/questor-agent/server/internal/quest"

type GeocodeLocationInput struct {
	Location string `json:"location"`
}

type GeocodeLocationOutput struct {
	Message           string                  `json:"message"`
	GeneralLocation   string                  `json:"general_location"`
	LocationConfirmed bool                    `json:"location_confirmed"`
	GeocodedLocation  *quest.GeocodedLocation `json:"geocoded_location,omitempty"`
	Action            quest.Action            `json:"action"`
}

type ConfirmLocationOutput struct {
	Message string `json:"message"`
}

type UpdateQuestStateInput struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

type UpdateQuestStateOutput struct {
	Message string `json:"message"`
	Saved   bool   `json:"saved"`
}
