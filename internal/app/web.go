// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/klauspost/compress/gzhttp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/relabs-tech/blockpath/internal/geo"
	"github.com/relabs-tech/blockpath/internal/geocode"
	"github.com/relabs-tech/blockpath/internal/logging"
	"github.com/relabs-tech/blockpath/internal/navigation"
)

const maxDestinationBody = 4096

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// destinationRequest is the body of POST /api/destination and the websocket
// "destination" action.
type destinationRequest struct {
	Action  string `json:"action,omitempty"`
	Address string `json:"address"`
}

// WebServer serves the navigation state over HTTP and websocket.
type WebServer struct {
	state     *navigation.State
	hub       *Hub
	staticDir string
	logger    *slog.Logger
}

func NewWebServer(state *navigation.State, hub *Hub, staticDir string, logger *slog.Logger) *WebServer {
	return &WebServer{state: state, hub: hub, staticDir: staticDir, logger: logger}
}

// Handler returns the routed handler. JSON and static responses are gzip
// compressed; the websocket endpoint is left unwrapped so it can hijack the
// connection.
func (s *WebServer) Handler() http.Handler {
	router := httprouter.New()

	router.Handler(http.MethodGet, "/api/navigation", gzhttp.GzipHandler(http.HandlerFunc(s.handleNavigation)))
	router.Handler(http.MethodGet, "/api/navigation/geojson", gzhttp.GzipHandler(http.HandlerFunc(s.handleGeoJSON)))
	router.Handler(http.MethodPost, "/api/destination", gzhttp.GzipHandler(http.HandlerFunc(s.handleDestination)))
	router.HandlerFunc(http.MethodGet, "/ws", s.handleWS)

	if s.staticDir != "" {
		router.NotFound = gzhttp.GzipHandler(http.FileServer(http.Dir(s.staticDir)))
	}
	return router
}

func (s *WebServer) handleNavigation(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.state.Snapshot())
}

func (s *WebServer) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/geo+json")
	data, err := snapshotGeoJSON(s.state.Snapshot()).MarshalJSON()
	if err != nil {
		logging.LogError(s.logger, "geojson encode failed", err)
		http.Error(w, "encode error", http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(data)
}

func (s *WebServer) handleDestination(w http.ResponseWriter, r *http.Request) {
	var req destinationRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxDestinationBody)).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorMessage{Type: "error", Message: "invalid JSON body"})
		return
	}

	snap, err := s.state.SubmitAddress(r.Context(), req.Address)
	if err != nil {
		status, msg := destinationErrorStatus(err)
		s.writeJSON(w, status, errorMessage{Type: "error", Message: msg})
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// destinationErrorStatus maps a SubmitAddress error to an HTTP status.
func destinationErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, navigation.ErrSuperseded):
		return http.StatusConflict, err.Error()
	case errors.Is(err, geocode.ErrLookupFailed):
		return http.StatusBadGateway, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *WebServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(maxDestinationBody)

	id := s.hub.Add(conn)
	defer s.hub.Remove(id)

	if err := s.hub.Send(id, snapshotMessage{Type: "snapshot", Snapshot: s.state.Snapshot()}); err != nil {
		s.logger.Warn("ws_send_failed", "id", id, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		var msg destinationRequest
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("ws_unexpected_close", "id", id, "error", err)
			}
			return
		}

		switch msg.Action {
		case "destination":
			go s.submitFromWS(ctx, id, msg.Address)
		default:
			_ = s.hub.Send(id, errorMessage{Type: "error", Message: "unknown action"})
		}
	}
}

// submitFromWS runs one lookup for a websocket client. Success reaches every
// client through the state listener; failures go back to the requester only.
func (s *WebServer) submitFromWS(ctx context.Context, id, address string) {
	_, err := s.state.SubmitAddress(ctx, address)
	if err == nil {
		return
	}
	if !errors.Is(err, navigation.ErrSuperseded) {
		logging.LogError(s.logger, "destination lookup failed", err,
			slog.String("address", address),
			slog.String("source", "websocket"))
	}
	_, msg := destinationErrorStatus(err)
	_ = s.hub.Send(id, errorMessage{Type: "error", Message: msg})
}

func (s *WebServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("json encode error", "error", err)
	}
}

// snapshotGeoJSON renders the current position, the target and the line
// between them as a feature collection.
func snapshotGeoJSON(snap navigation.Snapshot) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	if snap.Current != nil {
		f := geojson.NewFeature(toOrb(*snap.Current))
		f.Properties["role"] = "current"
		f.Properties["heading"] = snap.Heading
		fc.Append(f)
	}
	if snap.Target != nil {
		f := geojson.NewFeature(toOrb(*snap.Target))
		f.Properties["role"] = "target"
		fc.Append(f)
	}
	if snap.Current != nil && snap.Target != nil {
		f := geojson.NewFeature(orb.LineString{toOrb(*snap.Current), toOrb(*snap.Target)})
		f.Properties["role"] = "route"
		if snap.Bearing != nil {
			f.Properties["bearing"] = *snap.Bearing
			f.Properties["compass"] = snap.Compass
		}
		if snap.DistanceKm != nil {
			f.Properties["distance_km"] = *snap.DistanceKm
		}
		f.Properties["rotation"] = snap.Rotation
		fc.Append(f)
	}
	return fc
}

// toOrb converts to orb's [lon, lat] order.
func toOrb(p geo.Point) orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}
