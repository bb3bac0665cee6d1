// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kasdock/kasdock/cmd/kasdock/config"
	"github.com/kasdock/kasdock/pkg/stack"
	"github.com/kasdock/kasdock/pkg/ux"
)

// mustValidator wires catalog, resolver, and aggregator into a validator.
func mustValidator(catalog *stack.Catalog) stack.DependencyValidator {
	resolver, err := stack.NewDefaultDependencyResolver(catalog)
	if err != nil {
		log.Fatalf("Failed to create dependency resolver: %v", err)
	}
	aggregator, err := stack.NewDefaultResourceAggregator(catalog)
	if err != nil {
		log.Fatalf("Failed to create resource aggregator: %v", err)
	}
	validator, err := stack.NewDefaultDependencyValidator(catalog, resolver, aggregator, stack.ValidatorConfig{
		MemoryHighWaterGB: config.Global.Thresholds.MemoryHighWaterGB,
	})
	if err != nil {
		log.Fatalf("Failed to create dependency validator: %v", err)
	}
	return validator
}

// loadInstallationState opens the state store briefly and returns the
// current installation state. A host with no saved state yields the
// empty state.
func loadInstallationState(ctx context.Context) *InstallationState {
	storeConfig := DefaultStateStoreConfig(config.Global.State.Dir)
	storeConfig.InMemory = config.Global.State.InMemory
	store, err := NewBadgerStateStore(storeConfig)
	if err != nil {
		log.Fatalf("Failed to open state store: %v", err)
	}
	defer store.Close()

	state, err := store.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load installation state: %v", err)
	}
	return state
}

// installedProfiles reads the installed profile set from the state store.
func installedProfiles(ctx context.Context) []string {
	return loadInstallationState(ctx).InstalledProfiles
}

func runValidate(cmd *cobra.Command, args []string) {
	if validateAdd != "" && validateRemove != "" {
		log.Fatalf("--add and --remove are mutually exclusive")
	}

	ctx := context.Background()
	validator := mustValidator(mustCatalog())

	switch {
	case validateAdd != "":
		current := installedProfiles(ctx)
		result, err := validator.ValidateAddition(validateAdd, current)
		if err != nil {
			log.Fatalf("Validation failed: %v", err)
		}
		if outputJSON {
			printJSON(result)
			return
		}
		ux.Title(fmt.Sprintf("Adding %s to [%s]", validateAdd, strings.Join(current, ", ")))
		printValidationResult(&result.ValidationResult)
		printSuggestions(result.Suggestions)
		if result.CanAdd {
			ux.Success("This profile can be added.")
		} else {
			ux.Error("This profile cannot be added as-is.")
			os.Exit(1)
		}

	case validateRemove != "":
		current := installedProfiles(ctx)
		result, err := validator.ValidateRemoval(validateRemove, current)
		if err != nil {
			log.Fatalf("Validation failed: %v", err)
		}
		if outputJSON {
			printJSON(result)
			return
		}
		ux.Title(fmt.Sprintf("Removing %s from [%s]", validateRemove, strings.Join(current, ", ")))
		printValidationResult(&result.ValidationResult)
		for _, shared := range result.SharedServices {
			ux.Warning(fmt.Sprintf("%s stays running: still used by %s",
				shared.Service, strings.Join(shared.RetainedBy, ", ")))
		}
		if result.CanRemove {
			ux.Success("This profile can be removed.")
		} else {
			ux.Error("This profile cannot be removed.")
			os.Exit(1)
		}

	default:
		if len(args) == 0 {
			log.Fatalf("No profiles specified. Usage: kasdock validate core monitoring, or --add/--remove.")
		}
		result, err := validator.ValidateSelection(args)
		if err != nil {
			log.Fatalf("Validation failed: %v", err)
		}
		if outputJSON {
			printJSON(result)
			return
		}
		ux.Title(fmt.Sprintf("Selection: %s", strings.Join(args, ", ")))
		printValidationResult(result)
		if result.Valid {
			ux.Success("The selection is valid.")
		} else {
			ux.Error("The selection is invalid.")
			os.Exit(1)
		}
	}
}

// printValidationResult renders errors, warnings, and recommendations.
func printValidationResult(result *stack.ValidationResult) {
	for _, e := range result.Errors {
		ux.Error(e.Message)
		if len(e.Cycle) > 0 {
			ux.Muted("  cycle: " + strings.Join(e.Cycle, " -> "))
		}
	}
	for _, issue := range result.DependencyIssues {
		ux.Warning(fmt.Sprintf("%s: %s (%s)", issue.Profile, issue.Kind, strings.Join(issue.Details, ", ")))
	}
	for _, w := range result.Warnings {
		ux.Warning(w.Message)
	}
	for _, rec := range result.Recommendations {
		ux.Info(fmt.Sprintf("[%s] %s", rec.Priority, rec.Title))
		ux.Muted("  " + rec.Message)
		for _, action := range rec.Actions {
			ux.Muted("    - " + action)
		}
	}
}

// printSuggestions renders integration options for a validated addition.
func printSuggestions(suggestions []stack.IntegrationSuggestion) {
	for _, s := range suggestions {
		fmt.Println()
		ux.Info(s.Title)
		ux.Muted("  " + s.Message)
		for _, opt := range s.Options {
			marker := " "
			if opt.Recommended {
				marker = "*"
			}
			ux.Muted(fmt.Sprintf("  %s %s: %s", marker, opt.Label, opt.Description))
			for key, value := range opt.Config {
				ux.Muted(fmt.Sprintf("      %s=%s", key, value))
			}
		}
	}
}

func runResources(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	profiles := args
	if len(profiles) == 0 {
		profiles = installedProfiles(ctx)
	}
	if len(profiles) == 0 {
		log.Fatalf("No profiles given and nothing installed. Usage: kasdock resources core indexer-services")
	}

	catalog := mustCatalog()
	resolver, err := stack.NewDefaultDependencyResolver(catalog)
	if err != nil {
		log.Fatalf("Failed to create dependency resolver: %v", err)
	}
	aggregator, err := stack.NewDefaultResourceAggregator(catalog)
	if err != nil {
		log.Fatalf("Failed to create resource aggregator: %v", err)
	}

	// Resource math covers the transitive closure, not just the request.
	resolved, err := resolver.Resolve(profiles)
	if err != nil {
		log.Fatalf("Failed to resolve profiles: %v", err)
	}

	requirement, err := aggregator.Aggregate(resolved.StartupOrder())
	if err != nil {
		log.Fatalf("Failed to aggregate resources: %v", err)
	}

	probe := stack.NewDefaultSystemProbe()
	system, err := probe.Detect(config.Global.Stack.DataDir)
	if err != nil {
		ux.Warning(fmt.Sprintf("Could not detect host resources: %v", err))
	}

	report := aggregator.CheckSufficiency(requirement, system)

	if outputJSON {
		printJSON(struct {
			Profiles    []string                  `json:"profiles"`
			Requirement stack.ResourceRequirement `json:"requirement"`
			System      stack.SystemResources     `json:"system"`
			Report      stack.SufficiencyReport   `json:"report"`
		}{resolved.StartupOrder(), requirement, system, report})
		return
	}

	ux.Title("Resource envelope")
	ux.Info("profiles:    " + strings.Join(resolved.StartupOrder(), ", "))
	ux.Info(fmt.Sprintf("minimum:     %d CPU, %d GB memory, %d GB disk",
		requirement.MinCPU, requirement.MinMemoryGB, requirement.MinDiskGB))
	ux.Info(fmt.Sprintf("recommended: %d CPU, %d GB memory, %d GB disk",
		requirement.RecommendedCPU, requirement.RecommendedMemGB, requirement.RecommendedDiskGB))
	ux.Info(fmt.Sprintf("this host:   %d CPU, %d GB memory, %d GB disk free",
		system.CPUCores, system.MemoryGB, system.DiskGB))

	fmt.Println()
	if report.Sufficient && len(report.Shortfalls) == 0 {
		ux.Success("This host meets the recommended envelope.")
		return
	}
	for _, shortfall := range report.Shortfalls {
		if shortfall.Severity == stack.ShortfallHard {
			ux.Error(shortfall.Message)
		} else {
			ux.Warning(shortfall.Message)
		}
	}
	if !report.Sufficient {
		ux.Muted("Installs will be refused unless --ignore-resources is passed.")
		os.Exit(1)
	}
}
