// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"
	"os"

	"github.com/relabs-tech/blockpath/internal/app"
	"github.com/relabs-tech/blockpath/internal/config"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the KEY=VALUE config file")
	flag.Parse()

	cfg, logger, err := app.LoadRuntime(*configPath, "gps_producer")
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	logger.Info("starting blockpath GPS producer (NMEA → MQTT)")

	if err := app.RunGPSProducer(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}
