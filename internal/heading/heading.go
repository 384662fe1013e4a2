// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package heading

import (
	"math"
)

// Sample is one raw horizontal magnetometer reading. Units do not matter,
// only the ratio between the two axes.
type Sample struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Time string  `json:"time,omitempty"` // RFC3339, informational only
}

// Valid reports whether both components are finite.
func (s Sample) Valid() bool {
	return !math.IsNaN(s.X) && !math.IsInf(s.X, 0) &&
		!math.IsNaN(s.Y) && !math.IsInf(s.Y, 0)
}

// Heading is the direction the device faces, in degrees [0,360).
type Heading float64

// Degrees returns h as a plain float64.
func (h Heading) Degrees() float64 {
	return float64(h)
}

// FromSample converts a raw sample into a compass heading:
//
//	heading = atan2(y, x) in degrees, +360 when negative
//
// No smoothing is applied; every sample stands on its own.
func FromSample(s Sample) Heading {
	angle := math.Atan2(s.Y, s.X) * 180 / math.Pi
	if angle < 0 {
		angle += 360
	}
	// atan2 returning -tiny rounds up to 360 above
	if angle >= 360 {
		angle = 0
	}
	return Heading(angle)
}

// Source is anything that can provide magnetometer samples over time:
// the I2C sensor, the mock source, or a replay.
type Source interface {
	Next() (Sample, error)
}
