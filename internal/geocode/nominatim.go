// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/relabs-tech/blockpath/internal/geo"
	"github.com/relabs-tech/blockpath/internal/logging"
)

// NominatimConfig configures a NominatimClient.
type NominatimConfig struct {
	BaseURL    string        // e.g. https://nominatim.openstreetmap.org
	UserAgent  string        // required by the public instance's usage policy
	Timeout    time.Duration // per request
	RatePerSec float64       // the public instance allows at most 1
	MaxResults int
}

// NominatimClient is a Geocoder backed by a Nominatim /search endpoint.
type NominatimClient struct {
	baseURL    string
	userAgent  string
	maxResults int
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// nominatimPlace is the subset of a jsonv2 search result we read.
// Coordinates arrive as strings.
type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// NewNominatimClient creates a new Nominatim search client
func NewNominatimClient(cfg NominatimConfig, logger *slog.Logger) *NominatimClient {
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}

	return &NominatimClient{
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		maxResults: cfg.MaxResults,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

// Lookup searches for address and returns the candidates in the order the
// service ranked them. Results with unparsable coordinates are skipped.
func (c *NominatimClient) Lookup(ctx context.Context, address string) ([]geo.Point, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for geocoder rate limit: %w", err)
	}

	params := url.Values{}
	params.Add("q", address)
	params.Add("format", "jsonv2")
	params.Add("limit", strconv.Itoa(c.maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build geocoder request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call geocoder: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, c.logger, "geocoder_response_body")

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("geocoder error (status %d): %s", resp.StatusCode, string(body))
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, fmt.Errorf("failed to parse geocoder response: %w", err)
	}

	points := make([]geo.Point, 0, len(places))
	for _, place := range places {
		lat, latErr := strconv.ParseFloat(place.Lat, 64)
		lon, lonErr := strconv.ParseFloat(place.Lon, 64)
		p := geo.Point{Latitude: lat, Longitude: lon}
		if latErr != nil || lonErr != nil || !p.Valid() {
			c.logger.Warn("skipping geocoder result with bad coordinates",
				"display_name", place.DisplayName, "lat", place.Lat, "lon", place.Lon)
			continue
		}
		points = append(points, p)
	}

	c.logger.Debug("geocoder results", "address", address, "count", len(points))
	return points, nil
}
