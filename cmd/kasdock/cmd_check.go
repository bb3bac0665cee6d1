// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kasdock/kasdock/cmd/kasdock/config"
	"github.com/kasdock/kasdock/pkg/stack"
	"github.com/kasdock/kasdock/pkg/ux"
)

func runCheck(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	services := args
	if len(services) == 0 {
		services = installedServices(ctx)
	}
	if len(services) == 0 {
		log.Fatalf("No services given and nothing installed. Usage: kasdock check kaspa-rest-server")
	}

	checker := stack.NewDefaultExternalChecker()
	opts := stack.CheckOptions{
		Timeout:       time.Duration(config.Global.Checker.TimeoutSeconds) * time.Second,
		Concurrency:   config.Global.Checker.MaxConcurrent,
		RatePerSecond: config.Global.Checker.RatePerSecond,
	}
	if checkTimeout > 0 {
		opts.Timeout = time.Duration(checkTimeout) * time.Second
	}

	spin := ux.NewSpinner("Probing external dependencies")
	spin.Start()

	reports := []*stack.CheckReport{}
	criticalFailed := false
	for _, svc := range services {
		// Services with no declarations are fine, not a failure.
		if len(checker.DependenciesFor(svc)) == 0 {
			continue
		}

		spin.UpdateMessage(fmt.Sprintf("Probing dependencies of %s", svc))
		report, err := checker.CheckServiceDependencies(ctx, svc, opts)
		if err != nil {
			if errors.Is(err, stack.ErrUnknownService) {
				continue
			}
			spin.Stop()
			log.Fatalf("Check failed for %s: %v", svc, err)
		}
		reports = append(reports, report)
		if !report.Valid {
			criticalFailed = true
		}
	}
	spin.Stop()

	if outputJSON {
		printJSON(reports)
		if criticalFailed {
			os.Exit(1)
		}
		return
	}

	if len(reports) == 0 {
		ux.Info("None of the requested services declare external dependencies.")
		return
	}

	for _, report := range reports {
		fmt.Println()
		ux.Title(report.Service)
		for _, dep := range report.Dependencies {
			printProbeResult(dep)
		}
		ux.Muted(fmt.Sprintf("  %d reachable, %d unreachable (%d critical)",
			report.Summary.Reachable, report.Summary.Unreachable, report.Summary.CriticalFailed))
	}

	fmt.Println()
	if criticalFailed {
		ux.Error("Critical dependencies are unreachable. Affected services will not work correctly.")
		os.Exit(1)
	}
	ux.Success("All critical dependencies are reachable.")
}

// printProbeResult renders one probe outcome with its guidance.
func printProbeResult(dep stack.DependencyResult) {
	if dep.Reachable {
		ux.ServiceStatus(dep.Dependency.Name, ux.IconSuccess,
			fmt.Sprintf("%s  %dms", dep.Dependency.Target, dep.LatencyMs))
		return
	}

	icon := ux.IconWarning
	if dep.Dependency.Critical {
		icon = ux.IconError
	}
	ux.ServiceStatus(dep.Dependency.Name, icon, dep.Dependency.Target)
	ux.Muted("    " + dep.Error)
	if dep.Guidance != nil {
		ux.Muted("    impact: " + dep.Guidance.Impact)
		for _, suggestion := range dep.Guidance.Suggestions {
			ux.Muted("    - " + suggestion)
		}
	}
}

// installedServices flattens the installed profiles into their services.
func installedServices(ctx context.Context) []string {
	catalog := mustCatalog()

	services := []string{}
	seen := map[string]bool{}
	for _, id := range installedProfiles(ctx) {
		profile, err := catalog.Get(id)
		if err != nil {
			continue
		}
		for _, name := range profile.ServiceNames() {
			if seen[name] {
				continue
			}
			seen[name] = true
			services = append(services, name)
		}
	}
	return services
}
