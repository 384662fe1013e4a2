// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package geo holds the spherical-earth math used to point the needle:
// initial great-circle bearing, haversine distance and the angle between
// a bearing and the device heading.
package geo

import (
	"fmt"
	"math"
)

// EarthRadiusKm is the mean Earth radius used by Distance.
const EarthRadiusKm = 6371.0

// Point is a geographic coordinate in decimal degrees.
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Valid reports whether p is finite and inside the WGS84 degree ranges.
func (p Point) Valid() bool {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

func (p Point) String() string {
	return fmt.Sprintf("%.4f, %.4f", p.Latitude, p.Longitude)
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }
func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }

// Bearing returns the initial compass bearing in [0,360) along the great
// circle from -> to. Identical points have no defined bearing and yield 0.
func Bearing(from, to Point) float64 {
	if from == to {
		return 0
	}

	phi1 := toRadians(from.Latitude)
	phi2 := toRadians(to.Latitude)
	deltaLon := toRadians(to.Longitude - from.Longitude)

	y := math.Sin(deltaLon) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(deltaLon)

	bearing := toDegrees(math.Atan2(y, x))
	if math.IsNaN(bearing) {
		return 0
	}
	return normalize360(bearing)
}

// Distance returns the haversine great-circle distance in kilometers.
func Distance(from, to Point) float64 {
	dLat := toRadians(to.Latitude - from.Latitude)
	dLon := toRadians(to.Longitude - from.Longitude)
	lat1 := toRadians(from.Latitude)
	lat2 := toRadians(to.Latitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// rounding can push h a hair outside [0,1] for antipodal points
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Destination returns the point reached by travelling distanceKm from start
// along the great circle with the given initial bearing.
func Destination(start Point, bearing, distanceKm float64) Point {
	delta := distanceKm / EarthRadiusKm
	theta := toRadians(bearing)
	phi1 := toRadians(start.Latitude)
	lambda1 := toRadians(start.Longitude)

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) +
		math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2))

	lon := math.Mod(toDegrees(lambda2)+540, 360) - 180
	return Point{Latitude: toDegrees(phi2), Longitude: lon}
}

// RelativeAngle returns bearing - heading as the signed shortest turn in
// (-180, 180]. Positive values mean the target is clockwise of the heading.
func RelativeAngle(bearing, heading float64) float64 {
	d := math.Mod(bearing-heading, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return d
}

// BearingToCompass converts a bearing to an 8-point compass label.
func BearingToCompass(bearing float64) string {
	directions := []string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}
	index := int((normalize360(bearing)+22.5)/45.0) % 8
	return directions[index]
}

func normalize360(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	// -1e-15 + 360 rounds to exactly 360
	if deg >= 360 {
		deg -= 360
	}
	return deg
}
