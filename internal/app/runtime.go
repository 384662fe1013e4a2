// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/relabs-tech/blockpath/internal/config"
	"github.com/relabs-tech/blockpath/internal/logging"
)

// LoadRuntime loads the process configuration and builds the logger every
// binary uses. The logger is also installed as the slog default.
func LoadRuntime(configPath, component string) (*config.Config, *slog.Logger, error) {
	if err := config.InitGlobal(configPath); err != nil {
		return nil, nil, fmt.Errorf("failed to load config %s: %w", configPath, err)
	}
	cfg := config.Get()

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewLogger(os.Stderr, cfg.LogFormat, level)
	if err != nil {
		return nil, nil, err
	}
	logger = logger.With("app", component)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
