// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/relabs-tech/blockpath/internal/config"
	"github.com/relabs-tech/blockpath/internal/geo"
	"github.com/relabs-tech/blockpath/internal/gps"
	"github.com/relabs-tech/blockpath/internal/heading"
	"github.com/relabs-tech/blockpath/internal/navigation"
)

// RunConsole prints navigation snapshots, fixes and magnetometer samples
// from MQTT to stdout until interrupted.
func RunConsole(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(disconnectQuiesceMS)

	p := &consolePrinter{out: os.Stdout, logger: logger}
	if err := subscribe(client, cfg.TopicNavigation, p.printSnapshot, logger); err != nil {
		return err
	}
	if err := subscribe(client, cfg.TopicGPS, p.printFix, logger); err != nil {
		return err
	}
	if err := subscribe(client, cfg.TopicMag, p.printSample, logger); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("console: shutting down")
	return nil
}

// consolePrinter writes one line per message; callbacks may run concurrently.
type consolePrinter struct {
	mu     sync.Mutex
	out    io.Writer
	logger *slog.Logger
}

func (p *consolePrinter) println(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

func (p *consolePrinter) printSnapshot(payload []byte) {
	var snap navigation.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		p.logger.Warn("console: snapshot unmarshal error", "error", err)
		return
	}
	p.println(formatSnapshot(snap))
}

func (p *consolePrinter) printFix(payload []byte) {
	var f gps.Fix
	if err := json.Unmarshal(payload, &f); err != nil {
		p.logger.Warn("console: gps unmarshal error", "error", err)
		return
	}
	p.println(fmt.Sprintf(
		"[GPS ] time=%s date=%s lat=%.6f lon=%.6f speed=%.1fkn course=%.1f° validity=%s",
		f.Time, f.Date, f.Latitude, f.Longitude, f.SpeedKnots, f.CourseDeg, f.Validity,
	))
}

func (p *consolePrinter) printSample(payload []byte) {
	var s heading.Sample
	if err := json.Unmarshal(payload, &s); err != nil {
		p.logger.Warn("console: mag unmarshal error", "error", err)
		return
	}
	p.println(fmt.Sprintf("[MAG ] x=%8.4f y=%8.4f heading=%6.2f", s.X, s.Y, heading.FromSample(s).Degrees()))
}

func formatPoint(p *geo.Point) string {
	if p == nil {
		return "--"
	}
	return p.String()
}

// formatSnapshot renders one snapshot as a single console line.
func formatSnapshot(snap navigation.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[NAV #%d] here=%s dest=%s hdg=%6.2f",
		snap.Seq, formatPoint(snap.Current), formatPoint(snap.Target), snap.Heading)

	if snap.Bearing != nil && snap.DistanceKm != nil {
		fmt.Fprintf(&b, " brg=%6.2f (%s) dist=%s turn=%+7.2f",
			*snap.Bearing, snap.Compass, formatDistance(*snap.DistanceKm), snap.Rotation)
	} else {
		b.WriteString(" brg=-- dist=--")
	}
	return b.String()
}
