package quest

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrUncoercible is returned when a value cannot be converted to its field kind
// without guessing.
var ErrUncoercible = errors.New("value cannot be coerced")

var thousandsPattern = regexp.MustCompile(`^\d{1,3}(,\d{3})+(\.\d+)?$`)

// Coerce converts a decoded JSON value to the representation used for kind.
// A nil value is returned unchanged and means "clear this field".
func Coerce(kind Kind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch kind {
	case KindString:
		return coerceString(v)
	case KindNumber:
		return coerceNumber(v)
	case KindInteger:
		f, err := coerceNumber(v)
		if err != nil {
			return nil, err
		}
		if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
			return nil, fmt.Errorf("%w: %v is not a whole number", ErrUncoercible, v)
		}
		return int64(f), nil
	case KindBool:
		return coerceBool(v)
	case KindStringList:
		return coerceStringList(v)
	case KindAction:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: action must be a string", ErrUncoercible)
		}
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			return nil, nil
		}
		return s, nil
	case KindGeocode:
		return coerceGeocode(v)
	case KindObject:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: expected an object", ErrUncoercible)
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: unknown kind %d", ErrUncoercible, kind)
}

func coerceString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	}
	return "", fmt.Errorf("%w: expected a string, got %T", ErrUncoercible, v)
}

func coerceNumber(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, fmt.Errorf("%w: non-finite number", ErrUncoercible)
		}
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		return ParseNumber(t)
	}
	return 0, fmt.Errorf("%w: expected a number, got %T", ErrUncoercible, v)
}

// ParseNumber accepts plain numerals with an optional currency symbol and
// thousands separators ("$1,200.50", "45", " 3.5 "). Anything else, such as
// "about 50" or "1,2", is rejected.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	for _, sym := range []string{"$", "€", "£", "¥"} {
		s = strings.TrimPrefix(s, sym)
	}
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		if !thousandsPattern.MatchString(s) {
			return 0, fmt.Errorf("%w: ambiguous number %q", ErrUncoercible, s)
		}
		s = strings.ReplaceAll(s, ",", "")
	}
	if s == "" {
		return 0, fmt.Errorf("%w: empty number", ErrUncoercible)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q is not a number", ErrUncoercible, s)
	}
	return f, nil
}

func coerceBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes":
			return true, nil
		case "false", "no":
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: expected a boolean, got %v", ErrUncoercible, v)
}

func coerceStringList(v any) ([]string, error) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return []string{}, nil
		}
		return []string{s}, nil
	case []string:
		return append([]string{}, t...), nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: list item %v is not a string", ErrUncoercible, item)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: expected a list of strings, got %T", ErrUncoercible, v)
}

func coerceGeocode(v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: geocoded_location must be an object", ErrUncoercible)
	}
	lat, err := coerceNumber(m["lat"])
	if err != nil {
		return nil, fmt.Errorf("geocoded_location.lat: %w", err)
	}
	lon, err := coerceNumber(m["lon"])
	if err != nil {
		return nil, fmt.Errorf("geocoded_location.lon: %w", err)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("%w: coordinates out of range", ErrUncoercible)
	}
	out := map[string]any{"lat": lat, "lon": lon}
	for _, key := range []string{"input", "map_url", "formatted_address"} {
		if raw, ok := m[key]; ok && raw != nil {
			s, err := coerceString(raw)
			if err != nil {
				return nil, fmt.Errorf("geocoded_location.%s: %w", key, err)
			}
			out[key] = s
		}
	}
	if _, ok := out["map_url"]; !ok {
		out["map_url"] = MapURL(lat, lon)
	}
	return out, nil
}

// MapURL builds the OpenStreetMap link stored with a geocoded location.
func MapURL(lat, lon float64) string {
	la := strconv.FormatFloat(lat, 'f', -1, 64)
	lo := strconv.FormatFloat(lon, 'f', -1, 64)
	return fmt.Sprintf("https://www.openstreetmap.org/?mlat=%s&mlon=%s#map=12/%s/%s", la, lo, la, lo)
}
