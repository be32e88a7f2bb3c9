package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// DefaultEnvFilename is the dotenv file looked up next to the settings file.
const DefaultEnvFilename = ".env"

// Environment variables that override file settings. Secrets are expected here
// rather than in the YAML file.
const (
	EnvDetectorAddress = "DRIVER_GUARD_DETECTOR_ADDRESS"
	EnvWeights         = "DRIVER_GUARD_WEIGHTS"
	EnvSource          = "DRIVER_GUARD_SOURCE"
	EnvThreshold       = "DRIVER_GUARD_THRESHOLD"
	EnvLogLevel        = "DRIVER_GUARD_LOG_LEVEL"
	EnvMQTTUsername    = "DRIVER_GUARD_MQTT_USERNAME"
	EnvMQTTPassword    = "DRIVER_GUARD_MQTT_PASSWORD"
	EnvRedisPassword   = "DRIVER_GUARD_REDIS_PASSWORD"
	EnvPostgresDSN     = "DRIVER_GUARD_POSTGRES_DSN"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// loadDotEnv loads variables from a dotenv file when it exists.
// Variables already present in the environment win.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("stat env file: %w", err)
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}

	return nil
}

// ApplyEnv overrides settings with values found through lookup.
// Malformed numeric values are ignored and the file value is kept.
func ApplyEnv(cfg *Config, lookup LookupFunc) {
	if lookup == nil {
		return
	}

	textual := map[string]*string{
		EnvDetectorAddress: &cfg.Detector.Address,
		EnvWeights:         &cfg.Detector.Weights,
		EnvSource:          &cfg.Source.Path,
		EnvLogLevel:        &cfg.Log.Level,
		EnvMQTTUsername:    &cfg.Sinks.MQTT.Username,
		EnvMQTTPassword:    &cfg.Sinks.MQTT.Password,
		EnvRedisPassword:   &cfg.Sinks.Redis.Password,
		EnvPostgresDSN:     &cfg.Sinks.Postgres.DSN,
	}

	for key, target := range textual {
		if value, ok := lookup(key); ok && value != "" {
			*target = value
		}
	}

	if value, ok := lookup(EnvThreshold); ok {
		if threshold, err := strconv.ParseFloat(value, 64); err == nil {
			cfg.Policy.Threshold = &threshold
		}
	}
}
