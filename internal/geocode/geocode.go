// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package geocode turns a typed destination into coordinates.
//
// The Resolver owns the empty-input and first-result policy; the actual
// address search is delegated to a Geocoder such as the Nominatim client.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/relabs-tech/blockpath/internal/geo"
	"github.com/relabs-tech/blockpath/internal/logging"
)

// ErrLookupFailed is matched by every *Error returned from Resolve.
var ErrLookupFailed = errors.New("geocode lookup failed")

// Geocoder searches free text and returns candidate coordinates, best first.
type Geocoder interface {
	Lookup(ctx context.Context, address string) ([]geo.Point, error)
}

// GeocoderFunc adapts a plain function to the Geocoder interface.
type GeocoderFunc func(ctx context.Context, address string) ([]geo.Point, error)

func (f GeocoderFunc) Lookup(ctx context.Context, address string) ([]geo.Point, error) {
	return f(ctx, address)
}

// Error reports that the geocoding service itself failed. A caller should
// keep its previous target rather than clearing it.
type Error struct {
	Address string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("geocode %q: %v", e.Address, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrLookupFailed }

// Resolver applies the lookup policy on top of a Geocoder.
type Resolver struct {
	geocoder Geocoder
	logger   *slog.Logger
}

// NewResolver wraps g. A nil logger discards log output.
func NewResolver(g Geocoder, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Resolver{geocoder: g, logger: logger}
}

// Resolve returns the first candidate for text.
//
// Blank text returns (nil, nil) without calling the geocoder. No candidates
// also returns (nil, nil). A geocoder failure returns an *Error.
func (r *Resolver) Resolve(ctx context.Context, text string) (*geo.Point, error) {
	address := strings.TrimSpace(text)
	if address == "" {
		return nil, nil
	}

	start := time.Now()
	candidates, err := r.geocoder.Lookup(ctx, address)
	if err != nil {
		logging.LogError(r.logger, "geocode lookup failed", err,
			slog.String("address", address),
			slog.String("component", "geocode"))
		return nil, &Error{Address: address, Err: err}
	}

	logging.LogOperation(r.logger, "geocode_lookup",
		slog.String("address", address),
		slog.Int("candidates", len(candidates)),
		slog.Duration("duration", time.Since(start)))

	if len(candidates) == 0 {
		return nil, nil
	}

	first := candidates[0]
	return &first, nil
}
