// Package quest defines the partially-filled listing record that a conversation
// slot-fills turn by turn, and the rules for merging model-produced fragments into it.
package quest

// GeocodedLocation is the normalized result of a location lookup stored on the quest.
type GeocodedLocation struct {
	Input            string  `json:"input"`
	Lat              float64 `json:"lat"`
	Lon              float64 `json:"lon"`
	MapURL           string  `json:"map_url"`
	FormattedAddress string  `json:"formatted_address,omitempty"`
}

// State is the canonical quest record. Every field is optional; the category
// specific groups overlap only partially, so they all live on one record.
type State struct {
	Category    *string `json:"category,omitempty"`
	SubCategory *string `json:"sub_category,omitempty"`

	WantOrHave        *string           `json:"want_or_have,omitempty"`
	Description       *string           `json:"description,omitempty"`
	Title             *string           `json:"title,omitempty"`
	Condition         *string           `json:"condition,omitempty"`
	GeneralLocation   *string           `json:"general_location,omitempty"`
	LocationConfirmed *bool             `json:"location_confirmed,omitempty"`
	GeocodedLocation  *GeocodedLocation `json:"geocoded_location,omitempty"`
	Distance          *float64          `json:"distance,omitempty"`
	DistanceUnit      *string           `json:"distance_unit,omitempty"`
	Price             *float64          `json:"price,omitempty"`
	Photos            []string          `json:"photos,omitempty"`
	Action            *Action           `json:"action,omitempty"`
	Text              *string           `json:"text,omitempty"`

	// UI is a per-turn display hint. It is returned to the caller and never persisted.
	UI map[string]any `json:"ui,omitempty"`

	// housing
	PropertyType *string  `json:"property_type,omitempty"`
	Budget       *float64 `json:"budget,omitempty"`
	MoveInDate   *string  `json:"move_in_date,omitempty"`

	// jobs
	JobRole         *string `json:"job_role,omitempty"`
	EmploymentType  *string `json:"employment_type,omitempty"`
	Industry        *string `json:"industry,omitempty"`
	ExperienceLevel *string `json:"experience_level,omitempty"`
	WorkLocation    *string `json:"work_location,omitempty"`
	ResumeUploaded  *bool   `json:"resume_uploaded,omitempty"`

	// services
	ServiceType    *string `json:"service_type,omitempty"`
	Timeframe      *string `json:"timeframe,omitempty"`
	Qualifications *string `json:"qualifications,omitempty"`

	// community
	Activity       *string  `json:"activity,omitempty"`
	DateTime       *string  `json:"date_time,omitempty"`
	MeetupLocation *string  `json:"meetup_location,omitempty"`
	GroupSize      *int     `json:"group_size,omitempty"`
	Cost           *float64 `json:"cost,omitempty"`

	// gigs
	GigType   *string  `json:"gig_type,omitempty"`
	Duration  *string  `json:"duration,omitempty"`
	PayRate   *float64 `json:"pay_rate,omitempty"`
	Portfolio []string `json:"portfolio,omitempty"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Clone returns a copy that shares no mutable slices or maps with s.
// Pointer fields are shared; they are always replaced, never written through.
func (s State) Clone() State {
	out := s
	if s.Photos != nil {
		out.Photos = append([]string(nil), s.Photos...)
	}
	if s.Portfolio != nil {
		out.Portfolio = append([]string(nil), s.Portfolio...)
	}
	if s.GeocodedLocation != nil {
		g := *s.GeocodedLocation
		out.GeocodedLocation = &g
	}
	if s.UI != nil {
		out.UI = make(map[string]any, len(s.UI))
		for k, v := range s.UI {
			out.UI[k] = v
		}
	}
	return out
}

// WithoutUI returns the persistable form of s.
func (s State) WithoutUI() State {
	out := s.Clone()
	out.UI = nil
	return out
}

// HasCategory reports whether the quest has been classified.
func (s State) HasCategory() bool {
	return s.Category != nil && *s.Category != ""
}

// CategoryName returns the category or "" when unclassified.
func (s State) CategoryName() string {
	if s.Category == nil {
		return ""
	}
	return *s.Category
}

// IsLocationConfirmed reports whether location_confirmed is explicitly true.
func (s State) IsLocationConfirmed() bool {
	return s.LocationConfirmed != nil && *s.LocationConfirmed
}

// ActionName returns the next action token or "".
func (s State) ActionName() Action {
	if s.Action == nil {
		return ""
	}
	return *s.Action
}
