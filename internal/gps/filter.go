// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import "github.com/relabs-tech/blockpath/internal/geo"

// DistanceFilter drops positions closer than MinMeters to the last accepted
// one. The first position is always accepted. Not safe for concurrent use.
type DistanceFilter struct {
	MinMeters float64

	last *geo.Point
}

// Accept reports whether p moved far enough to be forwarded, and if so
// remembers it as the new reference.
func (f *DistanceFilter) Accept(p geo.Point) bool {
	if f.last != nil && geo.Distance(*f.last, p)*1000 < f.MinMeters {
		return false
	}
	f.last = &p
	return true
}

// Reset forgets the reference position.
func (f *DistanceFilter) Reset() {
	f.last = nil
}
