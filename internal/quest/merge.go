package quest

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Rejection records a fragment key that was not applied.
type Rejection struct {
	Field  string
	Reason string
}

// MergeReport describes what a merge did with each fragment key.
type MergeReport struct {
	Applied  []string
	Cleared  []string
	Rejected []Rejection
}

// Merge overlays fragment onto prior and returns the new state. Keys present in
// the fragment win, absent keys keep their prior value, null clears a field.
// Unknown keys and values that cannot be coerced to the field's kind are
// rejected and reported; they never abort the merge. prior is not modified.
func Merge(prior State, fragment map[string]any) (State, MergeReport, error) {
	var report MergeReport

	base, err := toMap(prior)
	if err != nil {
		return prior.Clone(), report, err
	}

	keys := make([]string, 0, len(fragment))
	for k := range fragment {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		kind, ok := registry[key]
		if !ok {
			report.Rejected = append(report.Rejected, Rejection{Field: key, Reason: "unknown field"})
			continue
		}
		val, err := Coerce(kind, fragment[key])
		if err != nil {
			report.Rejected = append(report.Rejected, Rejection{Field: key, Reason: err.Error()})
			continue
		}
		if val == nil {
			delete(base, key)
			report.Cleared = append(report.Cleared, key)
			continue
		}
		base[key] = val
		report.Applied = append(report.Applied, key)
	}

	next, err := fromMap(base)
	if err != nil {
		return prior.Clone(), report, err
	}
	return next, report, nil
}

func toMap(s State) (map[string]any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode quest state: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode quest state: %w", err)
	}
	return out, nil
}

func fromMap(m map[string]any) (State, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return State{}, fmt.Errorf("encode merged state: %w", err)
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return State{}, fmt.Errorf("decode merged state: %w", err)
	}
	return s, nil
}
