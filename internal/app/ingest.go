// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/relabs-tech/blockpath/internal/gps"
	"github.com/relabs-tech/blockpath/internal/heading"
	"github.com/relabs-tech/blockpath/internal/logging"
	"github.com/relabs-tech/blockpath/internal/navigation"
)

// ingest turns bus payloads into navigation state updates. Bad payloads are
// logged and dropped.
type ingest struct {
	state  *navigation.State
	logger *slog.Logger
}

func (in *ingest) handleFix(payload []byte) {
	var fix gps.Fix
	if err := json.Unmarshal(payload, &fix); err != nil {
		in.logger.Warn("dropping malformed GPS payload", "error", err)
		return
	}
	if !fix.Valid() {
		in.logger.Warn("dropping invalid GPS fix",
			"validity", fix.Validity, "lat", fix.Latitude, "lon", fix.Longitude)
		return
	}
	snap := in.state.SetCurrentLocation(fix.Point())
	in.logger.Debug("position updated", "position", fix.Point().String(), "seq", snap.Seq)
}

func (in *ingest) handleSample(payload []byte) {
	var sample heading.Sample
	if err := json.Unmarshal(payload, &sample); err != nil {
		in.logger.Warn("dropping malformed magnetometer payload", "error", err)
		return
	}
	if !sample.Valid() {
		in.logger.Warn("dropping non-finite magnetometer sample")
		return
	}
	in.state.SetHeading(heading.FromSample(sample))
}

// handleDestination submits raw destination text. It blocks for the
// geocoder round trip.
func (in *ingest) handleDestination(ctx context.Context, payload []byte) {
	address := strings.TrimSpace(string(payload))
	_, err := in.state.SubmitAddress(ctx, address)
	switch {
	case err == nil:
	case errors.Is(err, navigation.ErrSuperseded):
		in.logger.Info("destination replaced before lookup finished", "address", address)
	default:
		logging.LogError(in.logger, "destination lookup failed", err,
			slog.String("address", address),
			slog.String("source", "mqtt"))
	}
}
