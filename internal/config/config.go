// Package config loads the provisioner configuration: transport endpoints,
// the user-storage mount root, and the timing knobs for the waiter
// primitives. Configuration is a single YAML file layered over defaults; a
// missing file just means defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"studioprov/internal/waiter"
	"studioprov/pkg/logging"
)

const configFileName = "config.yaml"

// Config is the top-level provisioner configuration.
type Config struct {
	// ListenAddr is the bind address of the HTTP ingest server.
	ListenAddr string `yaml:"listenAddr"`

	// SpoolDir, when set, is watched for envelope JSON files to dispatch.
	SpoolDir string `yaml:"spoolDir"`

	// MountRoot is where the user storage file system is mounted; each
	// user's home is <mountRoot>/<uid>.
	MountRoot string `yaml:"mountRoot"`

	// LogLevel filters log output: debug, info, warn or error.
	LogLevel string `yaml:"logLevel"`

	Wait WaitConfig `yaml:"wait"`
}

// WaitConfig holds the waiter timing knobs, in seconds. Zero values fall
// back to the waiter defaults.
type WaitConfig struct {
	PollIntervalSeconds       int `yaml:"pollIntervalSeconds"`
	ConflictRetryDelaySeconds int `yaml:"conflictRetryDelaySeconds"`
	SettleDelaySeconds        int `yaml:"settleDelaySeconds"`
	MaxWaitSeconds            int `yaml:"maxWaitSeconds"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr: "localhost:8090",
		MountRoot:  "/mnt/efs",
		LogLevel:   "info",
	}
}

// Load reads config.yaml from configPath, layered over Default. A missing
// file is not an error.
func Load(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := Default()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			return config, nil
		}
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}
	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}

// WaiterConfig converts the configured timings into a waiter.Config.
func (w WaitConfig) WaiterConfig() waiter.Config {
	return waiter.Config{
		Interval:           time.Duration(w.PollIntervalSeconds) * time.Second,
		ConflictRetryDelay: time.Duration(w.ConflictRetryDelaySeconds) * time.Second,
		SettleDelay:        time.Duration(w.SettleDelaySeconds) * time.Second,
		MaxWait:            time.Duration(w.MaxWaitSeconds) * time.Second,
	}
}
