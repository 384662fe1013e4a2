// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/blockpath/internal/config"
	"github.com/relabs-tech/blockpath/internal/gps"
	"github.com/relabs-tech/blockpath/internal/logging"
)

// RunGPSProducer opens the GPS serial port, parses NMEA sentences, and
// publishes valid fixes that moved far enough as JSON on the GPS topic.
func RunGPSProducer(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDGPS, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(disconnectQuiesceMS)

	serialOpts := serial.OpenOptions{
		PortName:              cfg.GPSSerialPort,
		BaudRate:              uint(cfg.GPSBaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		return fmt.Errorf("open GPS serial port %s: %w", serialOpts.PortName, err)
	}
	logger.Info("GPS serial port opened", "port", serialOpts.PortName, "baud", serialOpts.BaudRate)

	// closing the port unblocks the reader on shutdown
	go func() {
		<-ctx.Done()
		logging.SafeCloseWithLogging(port, logger, "gps_serial_port")
	}()

	filter := &gps.DistanceFilter{MinMeters: cfg.GPSMinDistanceM}
	err = forwardFixes(ctx, port, filter, func(fix gps.Fix) error {
		return publishJSON(client, cfg.TopicGPS, true, fix)
	})
	if ctx.Err() != nil {
		logger.Info("GPS producer shutting down")
		return nil
	}
	return err
}

// forwardFixes reads NMEA lines from r until EOF or ctx ends and hands every
// valid, sufficiently distant RMC fix to publish.
func forwardFixes(ctx context.Context, r io.Reader, filter *gps.DistanceFilter, publish func(gps.Fix) error) error {
	logger := logging.FromContext(ctx)
	reader := bufio.NewReader(r)

	for ctx.Err() == nil {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			forwardLine(line, filter, publish, logger)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("GPS read: %w", err)
		}
	}
	return ctx.Err()
}

func forwardLine(line string, filter *gps.DistanceFilter, publish func(gps.Fix) error, logger *slog.Logger) {
	fix, ok, err := gps.Decode(line)
	if err != nil {
		// noisy receivers emit partial sentences
		logger.Debug("NMEA parse error", "error", err)
		return
	}
	if !ok {
		return
	}
	if !fix.Valid() {
		logger.Debug("skipping GPS fix without lock", "validity", fix.Validity)
		return
	}
	if !filter.Accept(fix.Point()) {
		return
	}
	if err := publish(fix); err != nil {
		logger.Warn("GPS publish error", "error", err)
		return
	}
	logger.Info("published GPS fix", "position", fix.Point().String(), "time", fix.Time)
}
