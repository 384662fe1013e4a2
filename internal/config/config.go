// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultPath is the config file every binary reads unless -config is given.
const DefaultPath = "blockpath_config.txt"

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker            string
	MQTTClientIDNavigator string
	MQTTClientIDGPS       string
	MQTTClientIDMag       string
	MQTTClientIDConsole   string
	MQTTClientIDDisplay   string
	MQTTClientIDMock      string

	// Topics
	TopicGPS         string
	TopicMag         string
	TopicNavigation  string
	TopicDestination string

	// GPS
	GPSSerialPort   string
	GPSBaudRate     int
	GPSMinDistanceM float64 // fixes closer than this to the last published one are dropped

	// Magnetometer
	MagI2CBus         string
	MagI2CAddr        uint16
	MagSampleInterval int // milliseconds

	// Geocoder (Nominatim-compatible search API)
	GeocoderURL        string
	GeocoderUserAgent  string
	GeocoderTimeoutMS  int
	GeocoderRatePerSec float64
	GeocoderMaxResults int

	// Web Server
	WebServerPort int
	WebStaticDir  string

	// Display
	DisplayI2CBus         string
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds

	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // text or json
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal() and Get().
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a Config with every optional value filled in. Load starts
// from it, so a config file only needs the keys it wants to change.
func Default() *Config {
	return &Config{
		MQTTBroker:            "tcp://localhost:1883",
		MQTTClientIDNavigator: "blockpath-navigator",
		MQTTClientIDGPS:       "blockpath-gps-producer",
		MQTTClientIDMag:       "blockpath-mag-producer",
		MQTTClientIDConsole:   "blockpath-console",
		MQTTClientIDDisplay:   "blockpath-display",
		MQTTClientIDMock:      "blockpath-mock-producer",

		TopicGPS:         "blockpath/gps",
		TopicMag:         "blockpath/mag",
		TopicNavigation:  "blockpath/navigation",
		TopicDestination: "blockpath/destination",

		GPSSerialPort:   "/dev/serial0",
		GPSBaudRate:     9600,
		GPSMinDistanceM: 5,

		MagI2CBus:         "1",
		MagI2CAddr:        0x1E,
		MagSampleInterval: 100,

		GeocoderURL:        "https://nominatim.openstreetmap.org",
		GeocoderUserAgent:  "blockpath/1.0",
		GeocoderTimeoutMS:  10000,
		GeocoderRatePerSec: 1,
		GeocoderMaxResults: 5,

		WebServerPort: 8080,
		WebStaticDir:  "web",

		DisplayI2CBus:         "1",
		DisplayI2CAddr:        0x3C,
		DisplayUpdateInterval: 200,

		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_NAVIGATOR":
		c.MQTTClientIDNavigator = value
	case "MQTT_CLIENT_ID_GPS":
		c.MQTTClientIDGPS = value
	case "MQTT_CLIENT_ID_MAG":
		c.MQTTClientIDMag = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value
	case "MQTT_CLIENT_ID_MOCK":
		c.MQTTClientIDMock = value

	// Topics
	case "TOPIC_GPS":
		c.TopicGPS = value
	case "TOPIC_MAG":
		c.TopicMag = value
	case "TOPIC_NAVIGATION":
		c.TopicNavigation = value
	case "TOPIC_DESTINATION":
		c.TopicDestination = value

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GPS_BAUD_RATE %q: %w", value, err)
		}
		c.GPSBaudRate = rate
	case "GPS_MIN_DISTANCE_M":
		meters, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid GPS_MIN_DISTANCE_M %q: %w", value, err)
		}
		if meters < 0 {
			return fmt.Errorf("GPS_MIN_DISTANCE_M must be >= 0, got %v", meters)
		}
		c.GPSMinDistanceM = meters

	// Magnetometer
	case "MAG_I2C_BUS":
		c.MagI2CBus = value
	case "MAG_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid MAG_I2C_ADDR %q: %w", value, err)
		}
		c.MagI2CAddr = uint16(addr)
	case "MAG_SAMPLE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MAG_SAMPLE_INTERVAL %q: %w", value, err)
		}
		c.MagSampleInterval = interval

	// Geocoder
	case "GEOCODER_URL":
		c.GeocoderURL = strings.TrimRight(value, "/")
	case "GEOCODER_USER_AGENT":
		c.GeocoderUserAgent = value
	case "GEOCODER_TIMEOUT_MS":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GEOCODER_TIMEOUT_MS %q: %w", value, err)
		}
		c.GeocoderTimeoutMS = ms
	case "GEOCODER_RATE_PER_SEC":
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid GEOCODER_RATE_PER_SEC %q: %w", value, err)
		}
		c.GeocoderRatePerSec = rate
	case "GEOCODER_MAX_RESULTS":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GEOCODER_MAX_RESULTS %q: %w", value, err)
		}
		if n < 1 || n > 50 {
			return fmt.Errorf("GEOCODER_MAX_RESULTS must be 1-50, got %d", n)
		}
		c.GeocoderMaxResults = n

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port
	case "WEB_STATIC_DIR":
		c.WebStaticDir = value

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	// Logging
	case "LOG_LEVEL":
		c.LogLevel = value
	case "LOG_FORMAT":
		c.LogFormat = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.TopicGPS == "" || c.TopicMag == "" || c.TopicNavigation == "" || c.TopicDestination == "" {
		return fmt.Errorf("TOPIC_GPS, TOPIC_MAG, TOPIC_NAVIGATION and TOPIC_DESTINATION are required")
	}
	if c.GPSBaudRate <= 0 {
		return fmt.Errorf("GPS_BAUD_RATE must be positive")
	}
	if c.MagSampleInterval <= 0 {
		return fmt.Errorf("MAG_SAMPLE_INTERVAL must be positive")
	}
	if c.GeocoderURL == "" {
		return fmt.Errorf("GEOCODER_URL is required")
	}
	if c.GeocoderRatePerSec <= 0 {
		return fmt.Errorf("GEOCODER_RATE_PER_SEC must be positive")
	}
	if c.WebServerPort <= 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT must be 1-65535, got %d", c.WebServerPort)
	}
	if c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be positive")
	}
	return nil
}

// GeocoderTimeout returns the geocoder HTTP timeout as a duration.
func (c *Config) GeocoderTimeout() time.Duration {
	return time.Duration(c.GeocoderTimeoutMS) * time.Millisecond
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
