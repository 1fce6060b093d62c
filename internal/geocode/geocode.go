// Package geocode resolves free-text locations to coordinates through an
// external address lookup service.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Result is a normalized lookup hit.
type Result struct {
	Lat              float64 `json:"lat"`
	Lon              float64 `json:"lon"`
	FormattedAddress string  `json:"formatted_address"`
	MapURL           string  `json:"map_url"`
}

// Geocoder looks up a single free-text location.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (Result, error)
}

const (
	ProviderNominatim = "nominatim"
	ProviderGoogle    = "google"

	DefaultUserAgent = "Questor-Agent/1.0"
)

type Config struct {
	Provider      string        `envconfig:"GEOCODER_PROVIDER" default:"nominatim"`
	BaseURL       string        `envconfig:"GEOCODER_BASE_URL"`
	APIKey        string        `envconfig:"GEOCODER_API_KEY"`
	UserAgent     string        `envconfig:"GEOCODER_USER_AGENT" default:"Questor-Agent/1.0"`
	Timeout       time.Duration `envconfig:"GEOCODER_TIMEOUT" default:"10s"`
	RatePerSecond float64       `envconfig:"GEOCODER_RATE_PER_SECOND" default:"1"`
}

// New builds the configured provider. A nil client gets a default one.
func New(cfg Config, client *http.Client) (Geocoder, error) {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderNominatim:
		base := cfg.BaseURL
		if base == "" {
			base = nominatimBaseURL
		}
		return &Nominatim{
			baseURL:   strings.TrimRight(base, "/"),
			userAgent: cfg.UserAgent,
			timeout:   cfg.Timeout,
			client:    client,
			limiter:   limiter,
		}, nil
	case ProviderGoogle:
		return newGoogle(cfg, client, limiter)
	}
	return nil, fmt.Errorf("unknown geocoder provider %q", cfg.Provider)
}

// Kind classifies a failed lookup.
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindProviderDenied Kind = "provider_denied"
	KindTimeout        Kind = "timeout"
	KindUnexpected     Kind = "unexpected"
)

// Error is returned by every provider for a failed lookup.
type Error struct {
	Kind  Kind
	Query string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("geocode %q: %s", e.Query, e.Kind)
	}
	return fmt.Sprintf("geocode %q: %s: %v", e.Query, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage is the conversational text shown instead of a location.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("Sorry, I couldn't find '%s'. Could you give me a nearby city or a more specific address?", e.Query)
	case KindProviderDenied:
		return "Sorry, location lookup isn't available right now. Could you describe the area in words instead?"
	case KindTimeout:
		return fmt.Sprintf("Sorry, looking up '%s' took too long. Could you try again?", e.Query)
	}
	return fmt.Sprintf("Sorry, something went wrong while looking up '%s'.", e.Query)
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr, true
	}
	return nil, false
}

// UserMessage returns a conversational message for any lookup error.
func UserMessage(query string, err error) string {
	if gerr, ok := AsError(err); ok {
		return gerr.UserMessage()
	}
	return (&Error{Kind: KindUnexpected, Query: query}).UserMessage()
}

func classifyTransportErr(ctx context.Context, query string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Query: query, Err: err}
	}
	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		return &Error{Kind: KindTimeout, Query: query, Err: err}
	}
	return &Error{Kind: KindUnexpected, Query: query, Err: err}
}

func wait(ctx context.Context, limiter *rate.Limiter, query string) error {
	if limiter == nil {
		return nil
	}
	err := limiter.Wait(ctx)
	if err == nil {
		return nil
	}
	// rate reports "would exceed context deadline" before the deadline passes
	if _, ok := ctx.Deadline(); ok && !errors.Is(ctx.Err(), context.Canceled) {
		return &Error{Kind: KindTimeout, Query: query, Err: err}
	}
	return classifyTransportErr(ctx, query, err)
}
