// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"fmt"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/relabs-tech/blockpath/internal/geo"
)

// Validity values carried by RMC sentences.
const (
	StatusValid = "A"
	StatusVoid  = "V"
)

// Fix represents a single GPS fix suitable for JSON and MQTT.
type Fix struct {
	Time       string  `json:"time"`        // e.g. "12:34:56"
	Date       string  `json:"date"`        // e.g. "2025-12-06"
	Latitude   float64 `json:"lat"`         // decimal degrees
	Longitude  float64 `json:"lon"`         // decimal degrees
	SpeedKnots float64 `json:"speed_knots"` // speed over ground
	CourseDeg  float64 `json:"course_deg"`  // course over ground
	Validity   string  `json:"validity"`    // "A" (valid) / "V" (void)
}

// Point returns the fix position.
func (f Fix) Point() geo.Point {
	return geo.Point{Latitude: f.Latitude, Longitude: f.Longitude}
}

// Valid reports whether the receiver had a lock and the position is usable.
func (f Fix) Valid() bool {
	return f.Validity == StatusValid && f.Point().Valid()
}

// Decode parses one NMEA line. ok is false for lines that are not RMC
// sentences; those are not errors since a receiver emits many sentence types.
func Decode(line string) (fix Fix, ok bool, err error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return Fix{}, false, nil
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		return Fix{}, false, fmt.Errorf("parse NMEA sentence: %w", err)
	}
	if sentence.DataType() != nmea.TypeRMC {
		return Fix{}, false, nil
	}

	m := sentence.(nmea.RMC)
	fix = Fix{
		Latitude:   m.Latitude,
		Longitude:  m.Longitude,
		SpeedKnots: m.Speed,
		CourseDeg:  m.Course,
		Validity:   m.Validity,
	}
	if m.Time.Valid {
		fix.Time = fmt.Sprintf("%02d:%02d:%02d", m.Time.Hour, m.Time.Minute, m.Time.Second)
	}
	if m.Date.Valid {
		fix.Date = time.Date(rmcYear(m.Date.YY), time.Month(m.Date.MM), m.Date.DD, 0, 0, 0, 0, time.UTC).
			Format(time.DateOnly)
	}
	return fix, true, nil
}

// rmcYear expands the two-digit RMC year. 80-99 are read as 19xx.
func rmcYear(yy int) int {
	if yy < 80 {
		return 2000 + yy
	}
	return 1900 + yy
}
