// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/blockpath/internal/config"
	"github.com/relabs-tech/blockpath/internal/logging"
	"github.com/relabs-tech/blockpath/internal/navigation"
)

const (
	oledWidth  = 128
	oledHeight = 64

	// needle occupies the left square of the panel
	arrowCenterX = 32
	arrowCenterY = 32
	arrowLength  = 26
	arrowHeadLen = 9
)

// DisplayData holds the latest snapshot for the display loop.
type DisplayData struct {
	mu       sync.RWMutex
	snapshot navigation.Snapshot
	haveData bool
}

// update stores snap unless a newer one is already held.
func (d *DisplayData) update(snap navigation.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.haveData && snap.Seq <= d.snapshot.Seq {
		return
	}
	d.snapshot = snap
	d.haveData = true
}

func (d *DisplayData) latest() (navigation.Snapshot, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot, d.haveData
}

// addrBus sends every transaction to addr, overriding the fixed 0x3C
// address the ssd1306 driver uses.
type addrBus struct {
	i2c.Bus
	addr uint16
}

func (b *addrBus) Tx(_ uint16, w, r []byte) error {
	return b.Bus.Tx(b.addr, w, r)
}

// RunDisplay renders navigation snapshots from MQTT on an SSD1306 OLED.
func RunDisplay(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer logging.SafeCloseWithLogging(bus, logger, "display_i2c_bus")

	dev, err := ssd1306.NewI2C(&addrBus{Bus: bus, addr: cfg.DisplayI2CAddr}, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	logger.Info("display initialized", "addr", fmt.Sprintf("0x%02X", cfg.DisplayI2CAddr))

	if err := dev.Draw(dev.Bounds(), renderSplash(), image.Point{}); err != nil {
		logger.Warn("error showing splash", "error", err)
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDisplay, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(disconnectQuiesceMS)

	data := &DisplayData{}
	err = subscribe(client, cfg.TopicNavigation, func(payload []byte) {
		var snap navigation.Snapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			logger.Warn("display: snapshot unmarshal error", "error", err)
			return
		}
		data.update(snap)
	}, logger)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	logger.Info("display: starting update loop")
	for {
		select {
		case <-ctx.Done():
			_ = dev.Halt()
			return nil
		case <-ticker.C:
		}

		snap, ok := data.latest()
		if err := dev.Draw(dev.Bounds(), renderNavigation(snap, ok), image.Point{}); err != nil {
			logger.Warn("display: error updating display", "error", err)
		}
	}
}

func newFrame() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, oledWidth, oledHeight))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

func drawText(d *font.Drawer, x, y int, s string) {
	d.Dot = fixed.P(x, y)
	d.DrawString(s)
}

// renderNavigation draws the needle on the left and distance, compass label
// and heading on the right.
func renderNavigation(snap navigation.Snapshot, haveData bool) *image1bit.VerticalLSB {
	img, drawer := newFrame()

	if !haveData {
		drawText(drawer, 0, 26, "Navigator")
		drawText(drawer, 0, 39, "Waiting...")
		return img
	}

	switch {
	case snap.Current == nil:
		drawText(drawer, 0, 26, "No GPS fix")
		drawText(drawer, 0, 39, fmt.Sprintf("HDG %3.0f", snap.Heading))
	case snap.Bearing == nil || snap.DistanceKm == nil:
		drawText(drawer, 0, 26, "No target")
		drawText(drawer, 0, 39, fmt.Sprintf("HDG %3.0f", snap.Heading))
	default:
		drawArrow(img, snap.Rotation)
		drawText(drawer, 68, 13, formatDistance(*snap.DistanceKm))
		drawText(drawer, 68, 30, fmt.Sprintf("%s %3.0f", snap.Compass, *snap.Bearing))
		drawText(drawer, 68, 47, fmt.Sprintf("HDG %3.0f", snap.Heading))
	}
	return img
}

func renderSplash() *image1bit.VerticalLSB {
	img, drawer := newFrame()
	drawText(drawer, 20, 26, "blockpath")
	drawText(drawer, 5, 43, "Looking for")
	drawText(drawer, 40, 56, "sats")
	return img
}

// drawArrow draws a needle rotated clockwise from straight up by deg.
func drawArrow(img *image1bit.VerticalLSB, deg float64) {
	rad := deg * math.Pi / 180
	tipX := arrowCenterX + arrowLength*math.Sin(rad)
	tipY := arrowCenterY - arrowLength*math.Cos(rad)

	drawLine(img, arrowCenterX, arrowCenterY, tipX, tipY)
	for _, side := range []float64{-1, 1} {
		a := rad + math.Pi + side*math.Pi/6
		drawLine(img, tipX, tipY, tipX+arrowHeadLen*math.Sin(a), tipY-arrowHeadLen*math.Cos(a))
	}
	// pivot
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			img.SetBit(arrowCenterX+dx, arrowCenterY+dy, image1bit.On)
		}
	}
}

func drawLine(img *image1bit.VerticalLSB, x0, y0, x1, y1 float64) {
	steps := int(math.Ceil(math.Max(math.Abs(x1-x0), math.Abs(y1-y0)) * 2))
	if steps == 0 {
		steps = 1
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := int(math.Round(x0 + (x1-x0)*t))
		y := int(math.Round(y0 + (y1-y0)*t))
		if image.Pt(x, y).In(img.Rect) {
			img.SetBit(x, y, image1bit.On)
		}
	}
}

// formatDistance picks a unit and precision that fit the panel.
func formatDistance(km float64) string {
	switch {
	case km < 1:
		return fmt.Sprintf("%.0f m", km*1000)
	case km < 100:
		return fmt.Sprintf("%.2f km", km)
	default:
		return fmt.Sprintf("%.0f km", km)
	}
}
