// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/blockpath/internal/config"
	"github.com/relabs-tech/blockpath/internal/geocode"
	"github.com/relabs-tech/blockpath/internal/navigation"
)

// snapshotPublisher publishes snapshots on the navigation topic, skipping
// any that arrive after a newer one.
type snapshotPublisher struct {
	publish func(navigation.Snapshot) error
	logger  *slog.Logger

	mu      sync.Mutex
	lastSeq uint64
}

func (p *snapshotPublisher) Publish(snap navigation.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if snap.Seq <= p.lastSeq {
		return
	}
	p.lastSeq = snap.Seq
	if err := p.publish(snap); err != nil {
		p.logger.Warn("snapshot publish failed", "seq", snap.Seq, "error", err)
	}
}

// RunNavigator runs the navigation daemon: it consumes fixes, magnetometer
// samples and destinations from MQTT, keeps the navigation state, and serves
// it over MQTT, HTTP and websocket until interrupted.
func RunNavigator(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDNavigator, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(disconnectQuiesceMS)

	nominatim := geocode.NewNominatimClient(geocode.NominatimConfig{
		BaseURL:    cfg.GeocoderURL,
		UserAgent:  cfg.GeocoderUserAgent,
		Timeout:    cfg.GeocoderTimeout(),
		RatePerSec: cfg.GeocoderRatePerSec,
		MaxResults: cfg.GeocoderMaxResults,
	}, logger.With("component", "nominatim"))
	resolver := geocode.NewResolver(nominatim, logger)

	hub := NewHub(logger.With("component", "ws"))
	defer hub.CloseAll()

	publisher := &snapshotPublisher{
		publish: func(snap navigation.Snapshot) error {
			return publishJSON(client, cfg.TopicNavigation, true, snap)
		},
		logger: logger,
	}

	state := navigation.New(resolver,
		navigation.WithLogger(logger.With("component", "navigation")),
		navigation.WithListener(func(snap navigation.Snapshot) {
			hub.BroadcastSnapshot(snap)
			publisher.Publish(snap)
		}))

	in := &ingest{state: state, logger: logger.With("component", "ingest")}
	if err := subscribeIngest(ctx, client, cfg, in, logger); err != nil {
		return err
	}

	web := NewWebServer(state, hub, cfg.WebStaticDir, logger.With("component", "web"))
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           web.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("web server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("navigator shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("web server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("web server shutdown", "error", err)
	}
	return nil
}

func subscribeIngest(ctx context.Context, client mqtt.Client, cfg *config.Config, in *ingest, logger *slog.Logger) error {
	if err := subscribe(client, cfg.TopicGPS, in.handleFix, logger); err != nil {
		return err
	}
	if err := subscribe(client, cfg.TopicMag, in.handleSample, logger); err != nil {
		return err
	}
	// lookups block on the network; keep the MQTT callback free
	return subscribe(client, cfg.TopicDestination, func(payload []byte) {
		go in.handleDestination(ctx, payload)
	}, logger)
}
