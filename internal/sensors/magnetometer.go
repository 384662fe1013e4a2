// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"

	"github.com/relabs-tech/blockpath/internal/heading"
)

// HMC5883L register map.
const (
	regConfigA  = 0x00
	regConfigB  = 0x01
	regMode     = 0x02
	regDataXMSB = 0x03
	regIDA      = 0x0A

	// 8 samples averaged, 15 Hz, normal measurement
	configA = 0x70
	// gain 1, +/-1.3 Ga, 1090 LSB/Gauss
	configB   = 0x20
	gainLSBGa = 1090.0
	// continuous measurement mode
	modeContinuous = 0x00

	// ADC overflow marker on any axis
	overflow = -4096
)

var (
	// ErrUnknownDevice is returned when the identification registers do not
	// read "H43".
	ErrUnknownDevice = errors.New("magnetometer: unexpected device id")
	// ErrOverflow is returned when an axis saturated during a measurement.
	ErrOverflow = errors.New("magnetometer: measurement overflow")
)

// Magnetometer drives an HMC5883L-class three-axis magnetometer over I2C and
// implements heading.Source with its horizontal X/Y components.
type Magnetometer struct {
	dev *i2c.Dev
	now func() time.Time
}

// NewMagnetometer checks the device id at addr and puts it into continuous
// measurement mode.
func NewMagnetometer(bus i2c.Bus, addr uint16) (*Magnetometer, error) {
	m := &Magnetometer{dev: &i2c.Dev{Addr: addr, Bus: bus}, now: time.Now}

	id := make([]byte, 3)
	if err := m.dev.Tx([]byte{regIDA}, id); err != nil {
		return nil, fmt.Errorf("magnetometer: read id at 0x%02X: %w", addr, err)
	}
	if string(id) != "H43" {
		return nil, fmt.Errorf("%w: %q at 0x%02X", ErrUnknownDevice, id, addr)
	}

	for _, reg := range [][2]byte{
		{regConfigA, configA},
		{regConfigB, configB},
		{regMode, modeContinuous},
	} {
		if err := m.dev.Tx(reg[:], nil); err != nil {
			return nil, fmt.Errorf("magnetometer: write register 0x%02X: %w", reg[0], err)
		}
	}
	return m, nil
}

// ReadRaw returns the latest raw axis counts.
func (m *Magnetometer) ReadRaw() (x, y, z int16, err error) {
	buf := make([]byte, 6)
	if err := m.dev.Tx([]byte{regDataXMSB}, buf); err != nil {
		return 0, 0, 0, fmt.Errorf("magnetometer: read data: %w", err)
	}

	// output registers are ordered X, Z, Y
	x = int16(binary.BigEndian.Uint16(buf[0:2]))
	z = int16(binary.BigEndian.Uint16(buf[2:4]))
	y = int16(binary.BigEndian.Uint16(buf[4:6]))
	if x == overflow || y == overflow || z == overflow {
		return x, y, z, ErrOverflow
	}
	return x, y, z, nil
}

// Next reads one measurement and returns its horizontal components in Gauss.
func (m *Magnetometer) Next() (heading.Sample, error) {
	x, y, _, err := m.ReadRaw()
	if err != nil {
		return heading.Sample{}, err
	}
	return heading.Sample{
		X:    float64(x) / gainLSBGa,
		Y:    float64(y) / gainLSBGa,
		Time: m.now().UTC().Format(time.RFC3339),
	}, nil
}
