// Package supabase wraps postgrest-go with the project URL, service key and
// per-call timeout of a Supabase project.
package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"
)

// ErrNotConfigured is returned by Config.New when the URL or key is missing.
var ErrNotConfigured = errors.New("supabase is not configured")

// CodeUniqueViolation is the Postgres error code PostgREST reports for a duplicate key.
const CodeUniqueViolation = "23505"

type Config struct {
	URL         string        `envconfig:"SUPABASE_URL"`
	ServiceRole string        `envconfig:"SUPABASE_SERVICE_ROLE"`
	Timeout     time.Duration `envconfig:"SUPABASE_TIMEOUT" default:"10s"`
}

// Enabled reports whether both the project URL and key are set.
func (c *Config) Enabled() bool {
	return strings.TrimSpace(c.URL) != "" && strings.TrimSpace(c.ServiceRole) != ""
}

// New builds a client. A non-nil httpClient contributes its transport and timeout.
func (c *Config) New(httpClient *http.Client) (*Client, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}
	restURL := strings.TrimRight(c.URL, "/") + "/rest/v1"
	rest, err := postgrest.NewClientWithError(restURL, "", map[string]string{
		"apikey":        c.ServiceRole,
		"Authorization": "Bearer " + c.ServiceRole,
	})
	if err != nil {
		return nil, fmt.Errorf("supabase url: %w", err)
	}

	timeout := c.Timeout
	if httpClient != nil {
		if httpClient.Transport != nil {
			rest.Transport.Parent = httpClient.Transport
		}
		if httpClient.Timeout > 0 {
			timeout = httpClient.Timeout
		}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{rest: rest, timeout: timeout}, nil
}

type Client struct {
	rest    *postgrest.Client
	timeout time.Duration
}

// Error is a PostgREST error response.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("supabase: %s: %s", e.Code, e.Message)
}

// postgrest-go flattens error bodies to "(code) message".
var errPattern = regexp.MustCompile(`^\(([^)]*)\) (.*)$`)

func wrapError(op, table string, err error) error {
	if m := errPattern.FindStringSubmatch(err.Error()); m != nil {
		return fmt.Errorf("%s %s: %w", op, table, &Error{Code: m[1], Message: m[2]})
	}
	return fmt.Errorf("%s %s: %w", op, table, err)
}

// IsConflict reports whether err is a duplicate key rejection.
func IsConflict(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == CodeUniqueViolation
}

// Filter is a set of column equality filters, e.g. Filter{"quest_id": id}.
type Filter map[string]string

func (f Filter) apply(b *postgrest.FilterBuilder) *postgrest.FilterBuilder {
	for col, v := range f {
		b = b.Eq(col, v)
	}
	return b
}

// Select fetches rows matching filter into out (a pointer to a slice).
func (c *Client) Select(ctx context.Context, table string, filter Filter, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := filter.apply(c.rest.From(table).Select("*", "", false))
	body, _, err := q.ExecuteWithContext(ctx)
	if err != nil {
		return wrapError("select", table, err)
	}
	return decode(table, body, out)
}

// Insert writes rows and decodes the stored representation into out when out is non-nil.
// A duplicate key surfaces as an error satisfying IsConflict.
func (c *Client) Insert(ctx context.Context, table string, rows any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, _, err := c.rest.From(table).Insert(rows, false, "", returning(out), "").ExecuteWithContext(ctx)
	if err != nil {
		return wrapError("insert", table, err)
	}
	return decode(table, body, out)
}

// Upsert inserts rows, merging into existing ones that collide on onConflict.
func (c *Client) Upsert(ctx context.Context, table string, rows any, onConflict string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, _, err := c.rest.From(table).Upsert(rows, onConflict, "minimal", "").ExecuteWithContext(ctx); err != nil {
		return wrapError("upsert", table, err)
	}
	return nil
}

// Update patches rows matching filter and decodes the updated rows into out.
func (c *Client) Update(ctx context.Context, table string, filter Filter, patch any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := filter.apply(c.rest.From(table).Update(patch, returning(out), ""))
	body, _, err := q.ExecuteWithContext(ctx)
	if err != nil {
		return wrapError("update", table, err)
	}
	return decode(table, body, out)
}

func returning(out any) string {
	if out == nil {
		return "minimal"
	}
	return "representation"
}

func decode(table string, body []byte, out any) error {
	if out == nil || len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", table, err)
	}
	return nil
}
