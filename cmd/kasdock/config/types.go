// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
)

type KasdockConfig struct {
	// Stack: where compose files and runtime data live
	Stack StackConfig `yaml:"stack"`

	// Thresholds: sizing limits for validation warnings
	Thresholds ThresholdConfig `yaml:"thresholds"`

	// Checker: external dependency probe tuning
	Checker CheckerConfig `yaml:"checker"`

	// State: installation state storage
	State StateConfig `yaml:"state"`

	// History: optional event recording to InfluxDB
	History HistoryConfig `yaml:"history"`

	// Backup: optional config backup to Google Cloud Storage
	Backup BackupConfig `yaml:"backup"`

	// Features: toggle for optional subsystems
	Features FeatureConfig `yaml:"features"`

	// Network selects the Kaspa network for new installs
	Network string `yaml:"network"`
}

type StackConfig struct {
	Dir                 string `yaml:"dir"`                   // e.g. ~/.kasdock
	ProjectName         string `yaml:"project_name"`          // compose -p value
	ComposeFile         string `yaml:"compose_file"`          // e.g. docker-compose.yml
	OverrideFile        string `yaml:"override_file"`         // optional user overrides
	EnvFile             string `yaml:"env_file"`              // e.g. .env
	ContainerNamePrefix string `yaml:"container_name_prefix"` // e.g. kasdock-
	DataDir             string `yaml:"data_dir"`              // node and indexer volumes
}

type ThresholdConfig struct {
	// MemoryHighWaterGB triggers a sizing warning when the aggregate
	// minimum memory of a selection exceeds it.
	MemoryHighWaterGB int `yaml:"memory_high_water_gb"`
}

type CheckerConfig struct {
	TimeoutSeconds int     `yaml:"timeout_seconds"` // per-probe deadline, clamped to 5..10
	MaxConcurrent  int     `yaml:"max_concurrent"`  // probe fan-out width
	RatePerSecond  float64 `yaml:"rate_per_second"` // probe rate limit
}

type StateConfig struct {
	Dir      string `yaml:"dir"`       // badger directory
	InMemory bool   `yaml:"in_memory"` // for tests and dry runs
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token,omitempty"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

type BackupConfig struct {
	Enabled         bool   `yaml:"enabled"`
	GCSProject      string `yaml:"gcs_project"`
	GCSBucket       string `yaml:"gcs_bucket"`
	CredentialsFile string `yaml:"credentials_file,omitempty"`
	KeepLocal       int    `yaml:"keep_local"` // local backups retained per file
}

type FeatureConfig struct {
	Telemetry  bool `yaml:"telemetry"`
	DriftWatch bool `yaml:"drift_watch"`
}

// stackHome returns the kasdock home directory, honoring KASDOCK_HOME.
func stackHome() string {
	if home := os.Getenv("KASDOCK_HOME"); home != "" {
		return home
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return ".kasdock"
	}
	return filepath.Join(userHome, ".kasdock")
}

func DefaultConfig() KasdockConfig {
	home := stackHome()
	return KasdockConfig{
		Stack: StackConfig{
			Dir:                 home,
			ProjectName:         "kasdock",
			ComposeFile:         "docker-compose.yml",
			OverrideFile:        "docker-compose.override.yml",
			EnvFile:             ".env",
			ContainerNamePrefix: "kasdock-",
			DataDir:             filepath.Join(home, "data"),
		},
		Thresholds: ThresholdConfig{
			MemoryHighWaterGB: 32,
		},
		Checker: CheckerConfig{
			TimeoutSeconds: 8,
			MaxConcurrent:  4,
			RatePerSecond:  2,
		},
		State: StateConfig{
			Dir: filepath.Join(home, "state"),
		},
		History: HistoryConfig{
			Enabled: false,
			URL:     "http://localhost:8086",
			Org:     "kasdock",
			Bucket:  "kasdock-events",
		},
		Backup: BackupConfig{
			Enabled:   false,
			KeepLocal: 5,
		},
		Features: FeatureConfig{
			Telemetry:  false,
			DriftWatch: true,
		},
		Network: "mainnet",
	}
}
