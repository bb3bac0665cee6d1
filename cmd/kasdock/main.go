// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kasdock/kasdock/cmd/kasdock/config"
	"github.com/kasdock/kasdock/pkg/logging"
	"github.com/kasdock/kasdock/pkg/ux"
)

// Version is the CLI version, overridable at build time with
// -ldflags "-X main.Version=...".
var Version = "0.3.0"

func main() {
	// Execute the root command. Cobra handles parsing the arguments.
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if err := config.Load(); err != nil {
			log.Fatalf("Error loading configuration: %v", err)
		}

		levelName := logLevelFlag
		if levelName == "" {
			levelName = os.Getenv("KASDOCK_LOG_LEVEL")
		}
		level, err := logging.ParseLevel(levelName)
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
		logger := logging.New(logging.Config{Level: level, Service: "cli"})
		logging.SetDefault(logger)
		slog.SetDefault(logger.Slog())

		// Initialize UX personality from flag or environment
		if personalityLevel != "" {
			ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
		} else {
			ux.InitPersonality()
		}
	}
}
