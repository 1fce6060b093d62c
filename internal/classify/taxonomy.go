package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	logx "github.com/questor-agent/server/pkg/logger"
)

// Taxonomy maps a general category to its sub categories.
type Taxonomy map[string][]string

// DefaultTaxonomy is used when no taxonomy file is available.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		"for_sale":  {"electronics", "furniture", "vehicles", "clothing", "appliances", "bikes", "free_stuff", "general"},
		"housing":   {"apartments", "rooms_shared", "sublets", "houses", "office_commercial", "parking_storage"},
		"jobs":      {"tech", "healthcare", "retail", "food_service", "trades", "admin_office", "education"},
		"services":  {"plumbing", "electrical", "cleaning", "moving", "tutoring", "beauty", "legal", "automotive"},
		"community": {"activities", "events", "groups", "volunteers", "classes", "lost_found"},
		"gigs":      {"labor", "creative", "computer", "event", "writing", "domestic"},
	}
}

// LoadTaxonomy reads a taxonomy JSON file. An empty path or a missing file
// yields DefaultTaxonomy; a malformed or empty file is an error.
func LoadTaxonomy(path string) (Taxonomy, error) {
	if path == "" {
		return DefaultTaxonomy(), nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logx.Warn().Str("path", path).Msg("Taxonomy file not found, using built-in taxonomy")
		return DefaultTaxonomy(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}

	var t Taxonomy
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("parse taxonomy %s: %w", path, err)
	}
	if len(t) == 0 {
		return nil, fmt.Errorf("taxonomy %s is empty", path)
	}
	return t, nil
}

// Categories returns the general categories, sorted.
func (t Taxonomy) Categories() []string {
	out := make([]string, 0, len(t))
	for k := range t {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Resolve matches a general and sub category case-insensitively. An unknown
// sub category resolves to "".
func (t Taxonomy) Resolve(general, sub string) (string, string, bool) {
	general = normalize(general)
	sub = normalize(sub)
	for g, subs := range t {
		if normalize(g) != general {
			continue
		}
		for _, s := range subs {
			if normalize(s) == sub {
				return g, s, true
			}
		}
		return g, "", true
	}
	return "", "", false
}

func (t Taxonomy) JSON() string {
	b, err := json.Marshal(t)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}
