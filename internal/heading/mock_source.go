// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package heading

import (
	"math"
	"time"
)

type mockSource struct {
	start     time.Time
	now       func() time.Time
	degPerSec float64
}

// NewMockSource creates a mock magnetometer whose field vector turns
// slowly, so the derived heading sweeps through the full circle.
func NewMockSource(degPerSec float64) Source {
	return &mockSource{start: time.Now(), now: time.Now, degPerSec: degPerSec}
}

func (m *mockSource) Next() (Sample, error) {
	elapsed := m.now().Sub(m.start).Seconds()
	rad := math.Mod(elapsed*m.degPerSec, 360) * math.Pi / 180

	return Sample{
		X:    30 * math.Cos(rad),
		Y:    30 * math.Sin(rad),
		Time: m.now().UTC().Format(time.RFC3339),
	}, nil
}
