// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package navigation holds the single navigation aggregate: where the device
// is, where it should go, which way it faces, and the bearing, distance and
// needle rotation derived from those three.
package navigation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/relabs-tech/blockpath/internal/geo"
	"github.com/relabs-tech/blockpath/internal/heading"
	"github.com/relabs-tech/blockpath/internal/logging"
)

// ErrSuperseded is returned by SubmitAddress when a newer submission started
// before this one finished. Its result was discarded.
var ErrSuperseded = errors.New("destination lookup superseded by a newer request")

// AddressResolver turns destination text into a point. A nil point with a
// nil error means "no destination".
type AddressResolver interface {
	Resolve(ctx context.Context, text string) (*geo.Point, error)
}

// Snapshot is a consistent copy of the navigation state.
//
// Bearing and DistanceKm are set exactly when both Current and Target are.
// Rotation is 0 while Bearing is nil.
type Snapshot struct {
	Current    *geo.Point `json:"current"`
	Target     *geo.Point `json:"target"`
	Heading    float64    `json:"heading"`
	Bearing    *float64   `json:"bearing"`
	DistanceKm *float64   `json:"distance_km"`
	Rotation   float64    `json:"rotation"`
	Compass    string     `json:"compass,omitempty"`
	Seq        uint64     `json:"seq"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Listener receives every snapshot produced by a mutation. Calls may arrive
// concurrently; use Seq to discard older snapshots.
type Listener func(Snapshot)

// Option configures a State.
type Option func(*State)

// WithListener registers fn to be called after every recompute.
func WithListener(fn Listener) Option {
	return func(s *State) { s.listener = fn }
}

// WithLogger sets the logger used for destination changes and lookup errors.
func WithLogger(logger *slog.Logger) Option {
	return func(s *State) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock used for Snapshot.UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

// State is safe for concurrent use. Every mutator stores its input and
// recomputes the derived values under one lock.
type State struct {
	resolver AddressResolver
	listener Listener
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	current   *geo.Point
	target    *geo.Point
	heading   heading.Heading
	bearing   *float64
	distance  *float64
	rotation  float64
	seq       uint64
	updatedAt time.Time

	// generation identifies the newest SubmitAddress call
	generation   uint64
	cancelLookup context.CancelFunc
}

// New creates an empty State. resolver is used by SubmitAddress.
func New(resolver AddressResolver, opts ...Option) *State {
	s := &State{
		resolver: resolver,
		logger:   logging.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.updatedAt = s.now()
	return s
}

// SetCurrentLocation records a new device position.
func (s *State) SetCurrentLocation(p geo.Point) Snapshot {
	s.mu.Lock()
	s.current = &p
	snap := s.recomputeLocked()
	s.mu.Unlock()

	s.notify(snap)
	return snap
}

// SetTargetLocation sets the destination, or clears it when p is nil.
func (s *State) SetTargetLocation(p *geo.Point) Snapshot {
	s.mu.Lock()
	s.setTargetLocked(p)
	snap := s.recomputeLocked()
	s.mu.Unlock()

	s.notify(snap)
	return snap
}

// SetHeading records the latest device heading.
func (s *State) SetHeading(h heading.Heading) Snapshot {
	s.mu.Lock()
	s.heading = h
	snap := s.recomputeLocked()
	s.mu.Unlock()

	s.notify(snap)
	return snap
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// SubmitAddress resolves text and applies the result to the target.
//
// A found point becomes the target; blank text or no match clears it. When
// the resolver fails the target is left alone and the error is returned.
// Starting a new submission cancels the previous one, which then returns
// ErrSuperseded without touching the state.
func (s *State) SubmitAddress(ctx context.Context, text string) (Snapshot, error) {
	lookupCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.generation++
	gen := s.generation
	if s.cancelLookup != nil {
		s.cancelLookup()
	}
	s.cancelLookup = cancel
	s.mu.Unlock()

	point, err := s.resolver.Resolve(lookupCtx, text)

	s.mu.Lock()
	if gen != s.generation {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.logger.Debug("discarding superseded destination lookup", "address", text)
		return snap, ErrSuperseded
	}
	s.cancelLookup = nil

	if err != nil {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		logging.LogError(s.logger, "destination lookup failed, keeping previous target", err,
			slog.String("address", text))
		return snap, err
	}

	s.setTargetLocked(point)
	snap := s.recomputeLocked()
	s.mu.Unlock()

	if point != nil {
		s.logger.Info("destination set", "address", text, "target", point.String())
	} else {
		s.logger.Info("destination cleared", "address", text)
	}

	s.notify(snap)
	return snap, nil
}

func (s *State) setTargetLocked(p *geo.Point) {
	if p == nil {
		s.target = nil
		return
	}
	t := *p
	s.target = &t
}

// recomputeLocked refreshes bearing, distance and rotation, bumps Seq and
// returns the new snapshot. s.mu must be held.
func (s *State) recomputeLocked() Snapshot {
	if s.current != nil && s.target != nil {
		bearing := geo.Bearing(*s.current, *s.target)
		distance := geo.Distance(*s.current, *s.target)
		s.bearing = &bearing
		s.distance = &distance
		s.rotation = geo.RelativeAngle(bearing, s.heading.Degrees())
	} else {
		s.bearing = nil
		s.distance = nil
		s.rotation = 0
	}

	s.seq++
	s.updatedAt = s.now()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	snap := Snapshot{
		Current:    copyPoint(s.current),
		Target:     copyPoint(s.target),
		Heading:    s.heading.Degrees(),
		Bearing:    copyFloat(s.bearing),
		DistanceKm: copyFloat(s.distance),
		Rotation:   s.rotation,
		Seq:        s.seq,
		UpdatedAt:  s.updatedAt,
	}
	if snap.Bearing != nil {
		snap.Compass = geo.BearingToCompass(*snap.Bearing)
	}
	return snap
}

func (s *State) notify(snap Snapshot) {
	if s.listener != nil {
		s.listener(snap)
	}
}

func copyPoint(p *geo.Point) *geo.Point {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}
