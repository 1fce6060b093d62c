package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/questor-agent/server/internal/quest"
	logx "github.com/questor-agent/server/pkg/logger"
	"golang.org/x/time/rate"
)

const nominatimBaseURL = "https://nominatim.openstreetmap.org"

// Nominatim queries the OpenStreetMap search API. Its usage policy requires an
// identifying User-Agent and at most one request per second.
type Nominatim struct {
	baseURL   string
	userAgent string
	timeout   time.Duration
	client    *http.Client
	limiter   *rate.Limiter
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (n *Nominatim) Geocode(ctx context.Context, query string) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, &Error{Kind: KindNotFound, Query: query}
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if err := wait(ctx, n.limiter, query); err != nil {
		return Result{}, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return Result{}, &Error{Kind: KindUnexpected, Query: query, Err: err}
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return Result{}, classifyTransportErr(ctx, query, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusTooManyRequests:
		return Result{}, &Error{Kind: KindProviderDenied, Query: query, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return Result{}, &Error{Kind: KindUnexpected, Query: query, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var places []nominatimPlace
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&places); err != nil {
		return Result{}, classifyTransportErr(ctx, query, fmt.Errorf("decode response: %w", err))
	}
	if len(places) == 0 {
		return Result{}, &Error{Kind: KindNotFound, Query: query}
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return Result{}, &Error{Kind: KindUnexpected, Query: query, Err: fmt.Errorf("parse lat: %w", err)}
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return Result{}, &Error{Kind: KindUnexpected, Query: query, Err: fmt.Errorf("parse lon: %w", err)}
	}

	logx.Debug().Str("component", "geocode").Str("provider", ProviderNominatim).Str("query", query).Msg("location resolved")

	return Result{
		Lat:              lat,
		Lon:              lon,
		FormattedAddress: places[0].DisplayName,
		MapURL:           quest.MapURL(lat, lon),
	}, nil
}
