package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"googlemaps.github.io/maps"

	"github.com/questor-agent/server/internal/quest"
	logx "github.com/questor-agent/server/pkg/logger"
)

// Google queries the Google Geocoding API. It needs an API key.
type Google struct {
	api     *maps.Client
	timeout time.Duration
	limiter *rate.Limiter
}

// newGoogle builds the provider. cfg.BaseURL, when set, replaces the API host.
// Without a key every lookup reports KindProviderDenied.
func newGoogle(cfg Config, client *http.Client, limiter *rate.Limiter) (*Google, error) {
	g := &Google{timeout: cfg.Timeout, limiter: limiter}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return g, nil
	}

	// maps.WithHTTPClient wraps the transport in place.
	hc := *client
	opts := []maps.ClientOption{
		maps.WithAPIKey(cfg.APIKey),
		maps.WithHTTPClient(&hc),
		maps.WithRateLimit(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, maps.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}
	mc, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("google geocoder: %w", err)
	}
	g.api = mc
	return g, nil
}

func (g *Google) Geocode(ctx context.Context, query string) (Result, error) {
	query = strings.TrimSpace(query)
	if g.api == nil {
		return Result{}, &Error{Kind: KindProviderDenied, Query: query, Err: errors.New("missing api key")}
	}
	if query == "" {
		return Result{}, &Error{Kind: KindNotFound, Query: query}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := wait(ctx, g.limiter, query); err != nil {
		return Result{}, err
	}

	results, err := g.api.Geocode(ctx, &maps.GeocodingRequest{Address: query})
	if err != nil {
		return Result{}, classifyGoogleErr(ctx, query, err)
	}
	// ZERO_RESULTS is not an error for the maps client
	if len(results) == 0 {
		return Result{}, &Error{Kind: KindNotFound, Query: query}
	}

	hit := results[0]
	lat, lon := hit.Geometry.Location.Lat, hit.Geometry.Location.Lng

	logx.Debug().Str("component", "geocode").Str("provider", ProviderGoogle).Str("query", query).Msg("location resolved")

	return Result{
		Lat:              lat,
		Lon:              lon,
		FormattedAddress: hit.FormattedAddress,
		MapURL:           quest.MapURL(lat, lon),
	}, nil
}

// The maps client reports API statuses as "maps: STATUS - message".
func classifyGoogleErr(ctx context.Context, query string, err error) *Error {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, "maps: "); ok {
		status, _, _ := strings.Cut(rest, " - ")
		switch status {
		case "REQUEST_DENIED", "OVER_DAILY_LIMIT", "OVER_QUERY_LIMIT":
			return &Error{Kind: KindProviderDenied, Query: query, Err: err}
		case "ZERO_RESULTS":
			return &Error{Kind: KindNotFound, Query: query, Err: err}
		case "INVALID_REQUEST", "UNKNOWN_ERROR":
			return &Error{Kind: KindUnexpected, Query: query, Err: err}
		}
	}
	return classifyTransportErr(ctx, query, err)
}
