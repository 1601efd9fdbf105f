// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// DefaultFileName is looked up in the working directory, then in
// DefaultHomeDir.
const (
	DefaultFileName = "nrf_config.txt"
	DefaultHomeDir  = "~/.nrf_orientation"
	EnvPrefix       = "NRF"
)

// Sample sources.
const (
	SourceMQTT   = "mqtt"
	SourceSerial = "serial"
	SourceSim    = "sim"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker            string
	MQTTClientIDFusion    string
	MQTTClientIDConsole   string
	MQTTClientIDWeb       string
	MQTTClientIDDisplay   string
	MQTTClientIDSimulator string

	// Topics
	TopicNotifyRoot string // notifications arrive on <root>/<device>/notify/<characteristic>
	TopicPoseFused  string
	TopicTilt       string

	// Sample source: "mqtt", "serial" or "sim"
	Source string

	// Serial bridge
	SerialPort     string
	SerialBaudRate int

	// Characteristic identifiers (substring match, case-insensitive)
	GyroCharacteristic  string
	AccelCharacteristic string

	// Complementary filter
	FilterAlpha                 float64
	FilterSkipIntegrationOnSeed bool
	UpsideDownThreshold         float64 // degrees, inclusive

	// Significance gate: a sample is fused only if some |axis| exceeds this
	SignificanceThreshold float64

	// Degrees-of-tilt reporting
	TiltScale         float64 // raw reading multiplier before integer mapping
	TiltPositiveInMax int64   // positive readings map [0, max] -> [0, TiltOutMax]
	TiltNegativeInMax int64   // negative readings map [0, max] -> [0, TiltOutMax]
	TiltOutMax        int64

	// Ingestion
	IngestQueueSize    int
	SessionIdleTimeout int // milliseconds
	StatsLogInterval   int // milliseconds

	// Simulator
	SimDevice         string
	IMUSampleInterval int // milliseconds

	// Last-snapshot store
	StorePath string

	// Web Server
	WebServerPort int
	WebStaticDir  string

	// Display
	DisplayI2CBus         string
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int    // milliseconds
	DisplayDevice         string // device whose snapshot is shown; empty shows the latest of any

	// Logging
	LogLevel  string
	LogFormat string // "text" or "json"
}

// defaults cover every known key. A key present in the file but absent here
// is rejected as unknown.
var defaults = map[string]any{
	"MQTT_BROKER":              "tcp://localhost:1883",
	"MQTT_CLIENT_ID_FUSION":    "nrf-fusion",
	"MQTT_CLIENT_ID_CONSOLE":   "nrf-console",
	"MQTT_CLIENT_ID_WEB":       "nrf-web",
	"MQTT_CLIENT_ID_DISPLAY":   "nrf-display",
	"MQTT_CLIENT_ID_SIMULATOR": "nrf-simulator",

	"TOPIC_NOTIFY_ROOT": "nrf",
	"TOPIC_POSE_FUSED":  "nrf/pose/fused",
	"TOPIC_TILT":        "nrf/tilt",

	"SOURCE": SourceMQTT,

	"SERIAL_PORT":      "/dev/ttyACM0",
	"SERIAL_BAUD_RATE": 115200,

	"GYRO_CHARACTERISTIC":  "19b10001",
	"ACCEL_CHARACTERISTIC": "19b10002",

	"FILTER_ALPHA":                    0.98,
	"FILTER_SKIP_INTEGRATION_ON_SEED": false,
	"UPSIDE_DOWN_THRESHOLD":           150.0,

	"SIGNIFICANCE_THRESHOLD": 0.1,

	"TILT_SCALE":           100.0,
	"TILT_POSITIVE_IN_MAX": 97,
	"TILT_NEGATIVE_IN_MAX": -100,
	"TILT_OUT_MAX":         90,

	"INGEST_QUEUE_SIZE":    256,
	"SESSION_IDLE_TIMEOUT": 10000,
	"STATS_LOG_INTERVAL":   10000,

	"SIM_DEVICE":          "sim-nrf",
	"IMU_SAMPLE_INTERVAL": 20,

	"STORE_PATH": "nrf_state.db",

	"WEB_SERVER_PORT": 8080,
	"WEB_STATIC_DIR":  "web",

	"DISPLAY_I2C_BUS":         "",
	"DISPLAY_I2C_ADDR":        "0x3C",
	"DISPLAY_UPDATE_INTERVAL": 200,
	"DISPLAY_DEVICE":          "",

	"LOG_LEVEL":  "info",
	"LOG_FORMAT": "text",
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: set once by InitGlobal, read through Get.
//   - configOnce: ensures InitGlobal() only runs once.
//   - configMu: RWMutex; write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file (KEY=VALUE lines, # comments) and
// returns a Config. Every key may be overridden from the environment as
// NRF_<KEY>. An empty configPath loads defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	cfg := &Config{}
	for _, key := range v.AllKeys() {
		name := strings.ToUpper(key)
		value := strings.TrimSpace(v.GetString(key))
		if err := cfg.setValue(name, value); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ResolvePath picks the config file to load: an explicit path wins, then
// ./nrf_config.txt, then ~/.nrf_orientation/nrf_config.txt. It returns ""
// when none exists, which loads defaults only.
func ResolvePath(explicit string) (string, error) {
	if explicit != "" {
		return homedir.Expand(explicit)
	}
	if _, err := os.Stat(DefaultFileName); err == nil {
		return DefaultFileName, nil
	}
	home, err := homedir.Expand(DefaultHomeDir + "/" + DefaultFileName)
	if err != nil {
		return "", fmt.Errorf("expand home config path: %w", err)
	}
	if _, err := os.Stat(home); err == nil {
		return home, nil
	}
	return "", nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_FUSION":
		c.MQTTClientIDFusion = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value
	case "MQTT_CLIENT_ID_SIMULATOR":
		c.MQTTClientIDSimulator = value

	// Topics
	case "TOPIC_NOTIFY_ROOT":
		c.TopicNotifyRoot = strings.Trim(value, "/")
	case "TOPIC_POSE_FUSED":
		c.TopicPoseFused = value
	case "TOPIC_TILT":
		c.TopicTilt = value

	case "SOURCE":
		switch value {
		case SourceMQTT, SourceSerial, SourceSim:
			c.Source = value
		default:
			return fmt.Errorf("SOURCE must be one of mqtt, serial, sim, got %q", value)
		}

	// Serial bridge
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		c.SerialBaudRate, err = parsePositiveInt(key, value)

	// Characteristics
	case "GYRO_CHARACTERISTIC":
		c.GyroCharacteristic = strings.ToLower(value)
	case "ACCEL_CHARACTERISTIC":
		c.AccelCharacteristic = strings.ToLower(value)

	// Filter
	case "FILTER_ALPHA":
		c.FilterAlpha, err = parseFloatIn(key, value, 0, 1)
	case "FILTER_SKIP_INTEGRATION_ON_SEED":
		c.FilterSkipIntegrationOnSeed, err = strconv.ParseBool(value)
		if err != nil {
			err = fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
	case "UPSIDE_DOWN_THRESHOLD":
		c.UpsideDownThreshold, err = parseFloatIn(key, value, 0, 180)

	case "SIGNIFICANCE_THRESHOLD":
		c.SignificanceThreshold, err = parseFloatIn(key, value, 0, 1e9)

	// Tilt reporting
	case "TILT_SCALE":
		c.TiltScale, err = parseFloatIn(key, value, 1e-9, 1e9)
	case "TILT_POSITIVE_IN_MAX":
		c.TiltPositiveInMax, err = parseNonZeroInt64(key, value)
	case "TILT_NEGATIVE_IN_MAX":
		c.TiltNegativeInMax, err = parseNonZeroInt64(key, value)
	case "TILT_OUT_MAX":
		c.TiltOutMax, err = parseNonZeroInt64(key, value)

	// Ingestion
	case "INGEST_QUEUE_SIZE":
		c.IngestQueueSize, err = parsePositiveInt(key, value)
	case "SESSION_IDLE_TIMEOUT":
		c.SessionIdleTimeout, err = parsePositiveInt(key, value)
	case "STATS_LOG_INTERVAL":
		c.StatsLogInterval, err = parsePositiveInt(key, value)

	// Simulator
	case "SIM_DEVICE":
		c.SimDevice = value
	case "IMU_SAMPLE_INTERVAL":
		c.IMUSampleInterval, err = parsePositiveInt(key, value)

	case "STORE_PATH":
		c.StorePath = value

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parsePositiveInt(key, value)
		if err == nil && c.WebServerPort > 65535 {
			err = fmt.Errorf("%s must be 1-65535, got %d", key, c.WebServerPort)
		}
	case "WEB_STATIC_DIR":
		c.WebStaticDir = value

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_I2C_ADDR":
		addr, perr := strconv.ParseUint(value, 0, 16)
		if perr != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, perr)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parsePositiveInt(key, value)
	case "DISPLAY_DEVICE":
		c.DisplayDevice = value

	// Logging
	case "LOG_LEVEL":
		switch strings.ToLower(value) {
		case "debug", "info", "warn", "error":
			c.LogLevel = strings.ToLower(value)
		default:
			return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", value)
		}
	case "LOG_FORMAT":
		switch value {
		case "text", "json":
			c.LogFormat = value
		default:
			return fmt.Errorf("LOG_FORMAT must be text or json, got %q", value)
		}

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

func parsePositiveInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}

func parseNonZeroInt64(key, value string) (int64, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%s must not be 0 (empty mapping range)", key)
	}
	return n, nil
}

func parseFloatIn(key, value string, lo, hi float64) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if f < lo || f > hi {
		return 0, fmt.Errorf("%s must be within [%g, %g], got %g", key, lo, hi, f)
	}
	return f, nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" && c.Source == SourceMQTT {
		return fmt.Errorf("MQTT_BROKER is required when SOURCE=mqtt")
	}
	if c.Source == SourceSerial && c.SerialPort == "" {
		return fmt.Errorf("SERIAL_PORT is required when SOURCE=serial")
	}
	if c.GyroCharacteristic == "" || c.AccelCharacteristic == "" {
		return fmt.Errorf("GYRO_CHARACTERISTIC and ACCEL_CHARACTERISTIC are required")
	}
	if c.GyroCharacteristic == c.AccelCharacteristic {
		return fmt.Errorf("GYRO_CHARACTERISTIC and ACCEL_CHARACTERISTIC must differ")
	}
	if c.TiltPositiveInMax < 0 {
		return fmt.Errorf("TILT_POSITIVE_IN_MAX must be positive, got %d", c.TiltPositiveInMax)
	}
	if c.TiltNegativeInMax > 0 {
		return fmt.Errorf("TILT_NEGATIVE_IN_MAX must be negative, got %d", c.TiltNegativeInMax)
	}
	return nil
}

// SessionIdle is SessionIdleTimeout as a duration.
func (c *Config) SessionIdle() time.Duration {
	return time.Duration(c.SessionIdleTimeout) * time.Millisecond
}

// StatsInterval is StatsLogInterval as a duration.
func (c *Config) StatsInterval() time.Duration {
	return time.Duration(c.StatsLogInterval) * time.Millisecond
}

// SampleInterval is IMUSampleInterval as a duration.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.IMUSampleInterval) * time.Millisecond
}

// DisplayInterval is DisplayUpdateInterval as a duration.
func (c *Config) DisplayInterval() time.Duration {
	return time.Duration(c.DisplayUpdateInterval) * time.Millisecond
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
