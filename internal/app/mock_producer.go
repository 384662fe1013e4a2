// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/relabs-tech/blockpath/internal/config"
	"github.com/relabs-tech/blockpath/internal/geo"
	"github.com/relabs-tech/blockpath/internal/gps"
	"github.com/relabs-tech/blockpath/internal/heading"
	"github.com/relabs-tech/blockpath/internal/logging"
)

const (
	mockFixInterval   = time.Second
	mockWalkSpeedKmh  = 5.0
	mockTurnDegPerFix = 3.0
	mockHeadingDegSec = 10.0
)

// mockWalkStart is where the synthetic walk begins.
var mockWalkStart = geo.Point{Latitude: 52.5200, Longitude: 13.4050}

// mockWalk produces fixes along a slowly curving path at walking speed.
type mockWalk struct {
	position geo.Point
	course   float64
	stepKm   float64
	turnDeg  float64
}

func newMockWalk(start geo.Point, speedKmh float64, interval time.Duration, turnDeg float64) *mockWalk {
	return &mockWalk{
		position: start,
		stepKm:   speedKmh * interval.Hours(),
		turnDeg:  turnDeg,
	}
}

// next advances one step and returns the fix for the new position.
func (w *mockWalk) next(now time.Time) gps.Fix {
	w.position = geo.Destination(w.position, w.course, w.stepKm)
	fix := gps.Fix{
		Time:       now.UTC().Format(time.TimeOnly),
		Date:       now.UTC().Format(time.DateOnly),
		Latitude:   w.position.Latitude,
		Longitude:  w.position.Longitude,
		SpeedKnots: w.stepKm / mockFixInterval.Hours() / 1.852,
		CourseDeg:  w.course,
		Validity:   gps.StatusValid,
	}
	w.course = math.Mod(w.course+w.turnDeg, 360)
	return fix
}

// RunMockProducer publishes a synthetic walk and a rotating magnetometer
// field so the navigator can run without GPS or sensor hardware.
func RunMockProducer(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDMock, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(disconnectQuiesceMS)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		interval := time.Duration(cfg.MagSampleInterval) * time.Millisecond
		streamSamples(ctx, heading.NewMockSource(mockHeadingDegSec), interval, func(s heading.Sample) error {
			return publishJSON(client, cfg.TopicMag, false, s)
		})
	}()

	go func() {
		defer wg.Done()
		walk := newMockWalk(mockWalkStart, mockWalkSpeedKmh, mockFixInterval, mockTurnDegPerFix)
		ticker := time.NewTicker(mockFixInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				fix := walk.next(now)
				if err := publishJSON(client, cfg.TopicGPS, true, fix); err != nil {
					logger.Warn("mock fix publish error", "error", err)
					continue
				}
				logger.Debug("published mock fix", "position", fix.Point().String())
			}
		}
	}()

	logger.Info("mock producer started", "start", mockWalkStart.String())
	wg.Wait()
	logger.Info("mock producer shutting down")
	return nil
}
