// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/blockpath/internal/config"
	"github.com/relabs-tech/blockpath/internal/heading"
	"github.com/relabs-tech/blockpath/internal/logging"
	"github.com/relabs-tech/blockpath/internal/sensors"
)

// RunMagProducer reads the I2C magnetometer at the configured interval and
// publishes each sample as JSON on the magnetometer topic.
func RunMagProducer(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph host init: %w", err)
	}

	bus, err := i2creg.Open(cfg.MagI2CBus)
	if err != nil {
		return fmt.Errorf("open I2C bus %q: %w", cfg.MagI2CBus, err)
	}
	defer logging.SafeCloseWithLogging(bus, logger, "mag_i2c_bus")

	mag, err := sensors.NewMagnetometer(bus, cfg.MagI2CAddr)
	if err != nil {
		return err
	}
	logger.Info("magnetometer initialized", "bus", cfg.MagI2CBus, "addr", fmt.Sprintf("0x%02X", cfg.MagI2CAddr))

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDMag, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(disconnectQuiesceMS)

	interval := time.Duration(cfg.MagSampleInterval) * time.Millisecond
	streamSamples(ctx, mag, interval, func(s heading.Sample) error {
		return publishJSON(client, cfg.TopicMag, false, s)
	})
	logger.Info("magnetometer producer shutting down")
	return nil
}

// streamSamples polls src every interval until ctx ends. Read and publish
// errors are logged and the loop continues.
func streamSamples(ctx context.Context, src heading.Source, interval time.Duration, publish func(heading.Sample) error) {
	logger := logging.FromContext(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sample, err := src.Next()
		if err != nil {
			logger.Warn("magnetometer read error", "error", err)
			continue
		}
		if err := publish(sample); err != nil {
			logger.Warn("magnetometer publish error", "error", err)
			continue
		}
		logger.Debug("published magnetometer sample",
			"x", sample.X, "y", sample.Y, "heading", heading.FromSample(sample).Degrees())
	}
}
