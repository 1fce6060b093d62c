package quest

import "sort"

// Kind is the declared value type of a quest field.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindInteger
	KindBool
	KindStringList
	KindAction
	KindGeocode
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindInteger:
		return "integer"
	case KindBool:
		return "boolean"
	case KindStringList:
		return "string list"
	case KindAction:
		return "action"
	case KindGeocode:
		return "geocoded location"
	case KindObject:
		return "object"
	}
	return "unknown"
}

// registry maps the wire name of every quest field to its declared kind.
var registry = map[string]Kind{
	"category":           KindString,
	"sub_category":       KindString,
	"want_or_have":       KindString,
	"description":        KindString,
	"title":              KindString,
	"condition":          KindString,
	"general_location":   KindString,
	"location_confirmed": KindBool,
	"geocoded_location":  KindGeocode,
	"distance":           KindNumber,
	"distance_unit":      KindString,
	"price":              KindNumber,
	"photos":             KindStringList,
	"action":             KindAction,
	"text":               KindString,
	"ui":                 KindObject,

	"property_type": KindString,
	"budget":        KindNumber,
	"move_in_date":  KindString,

	"job_role":         KindString,
	"employment_type":  KindString,
	"industry":         KindString,
	"experience_level": KindString,
	"work_location":    KindString,
	"resume_uploaded":  KindBool,

	"service_type":   KindString,
	"timeframe":      KindString,
	"qualifications": KindString,

	"activity":        KindString,
	"date_time":       KindString,
	"meetup_location": KindString,
	"group_size":      KindInteger,
	"cost":            KindNumber,

	"gig_type":  KindString,
	"duration":  KindString,
	"pay_rate":  KindNumber,
	"portfolio": KindStringList,
}

// FieldKind returns the declared kind of a field and whether the field exists.
func FieldKind(name string) (Kind, bool) {
	k, ok := registry[name]
	return k, ok
}

// FieldNames returns every known field name, sorted.
func FieldNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CategoryFields lists the fields a category prompt should try to collect,
// beyond the shared ones.
var CategoryFields = map[string][]string{
	"for_sale":  {"condition", "price", "photos"},
	"housing":   {"property_type", "budget", "move_in_date", "photos"},
	"jobs":      {"job_role", "employment_type", "industry", "experience_level", "work_location", "resume_uploaded"},
	"services":  {"service_type", "timeframe", "qualifications", "price"},
	"community": {"activity", "date_time", "meetup_location", "group_size", "cost"},
	"gigs":      {"gig_type", "duration", "pay_rate", "portfolio"},
}

// CommonFields are collected for every category.
var CommonFields = []string{"want_or_have", "title", "description", "general_location", "distance", "distance_unit"}
