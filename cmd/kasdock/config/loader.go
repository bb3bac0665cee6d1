// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Global holds the effective configuration. The root command loads it
// before any subcommand runs; everything after that reads it directly.
var (
	Global   KasdockConfig
	loadOnce sync.Once
)

// fileHeader tops the generated config so a first-time operator knows
// what they are looking at.
const fileHeader = `# kasdock.yaml - kasdock configuration.
# Values here override the built-in defaults; delete a line to fall
# back to the default. KASDOCK_CONFIG points kasdock at a different
# file, KASDOCK_HOME moves the whole kasdock home.

`

// Path returns the config file location: $KASDOCK_CONFIG when set,
// otherwise kasdock.yaml in the kasdock home.
func Path() string {
	if p := os.Getenv("KASDOCK_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(stackHome(), "kasdock.yaml")
}

// Load reads the config into Global, generating a commented default
// file on first run. Subsequent calls are no-ops.
func Load() error {
	var err error
	loadOnce.Do(func() {
		err = load(Path())
	})
	return err
}

func load(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		fmt.Printf(" First run detected, creating the config at %s\n", path)
		if err := writeDefault(path); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}

	// Start from defaults so configs written by older versions keep sane
	// values for fields they predate.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(cfg); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}

	Global = cfg
	return nil
}

// validate rejects configs kasdock cannot operate with.
func validate(cfg KasdockConfig) error {
	if cfg.Stack.Dir == "" {
		return errors.New("stack.dir must not be empty")
	}
	if cfg.Stack.ProjectName == "" {
		return errors.New("stack.project_name must not be empty")
	}
	return nil
}

// writeDefault writes the commented default config at path, creating
// parent directories as needed.
func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, append([]byte(fileHeader), data...), 0o644)
}
