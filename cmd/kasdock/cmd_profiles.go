// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kasdock/kasdock/cmd/kasdock/config"
	"github.com/kasdock/kasdock/pkg/stack"
	"github.com/kasdock/kasdock/pkg/ux"
)

// mustCatalog loads the profile catalog the same way the stack factory
// does: a profiles.yaml in the stack directory overrides the built-ins.
func mustCatalog() *stack.Catalog {
	override := filepath.Join(config.Global.Stack.Dir, "profiles.yaml")
	if _, err := os.Stat(override); err == nil {
		catalog, err := stack.LoadCatalog(override)
		if err != nil {
			log.Fatalf("Failed to load profile catalog %s: %v", override, err)
		}
		return catalog
	}
	return stack.DefaultCatalog()
}

func runListProfiles(cmd *cobra.Command, args []string) {
	catalog := mustCatalog()

	if outputJSON {
		printJSON(catalog.Profiles())
		return
	}

	ux.Title("Kaspa deployment profiles")
	for _, profile := range catalog.Profiles() {
		fmt.Println()
		ux.Info(fmt.Sprintf("%s %s", ux.Styles.Bold.Render(profile.ID),
			ux.Styles.Muted.Render("("+string(profile.Category)+")")))
		ux.Muted("  " + profile.Description)
		ux.Muted("  services: " + strings.Join(profile.ServiceNames(), ", "))
		if len(profile.Dependencies) > 0 {
			ux.Muted("  requires: " + strings.Join(profile.Dependencies, ", "))
		}
		if len(profile.Prerequisites) > 0 {
			ux.Muted("  needs one of: " + strings.Join(profile.Prerequisites, ", "))
		}
		if len(profile.Conflicts) > 0 {
			ux.Muted("  conflicts with: " + strings.Join(profile.Conflicts, ", "))
		}
	}
	fmt.Println()
	ux.Muted(fmt.Sprintf("%d profiles. 'kasdock profiles show <id>' for details.", catalog.Len()))
}

func runShowProfile(cmd *cobra.Command, args []string) {
	catalog := mustCatalog()

	profile, err := catalog.Get(args[0])
	if err != nil {
		log.Fatalf("Unknown profile %q. Run 'kasdock profiles list' to see the catalog.", args[0])
	}

	if outputJSON {
		printJSON(profile)
		return
	}

	ux.Title(profile.Name)
	ux.Info("id:        " + profile.ID)
	ux.Info("category:  " + string(profile.Category))
	ux.Info("about:     " + profile.Description)

	fmt.Println()
	ux.Info("Services")
	for _, svc := range profile.Services {
		detail := ""
		if len(svc.Ports) > 0 {
			detail = "ports " + joinInts(svc.Ports)
		}
		ux.ServiceStatus(svc.Name, ux.IconBullet, detail)
	}

	if len(profile.Dependencies) > 0 || len(profile.Prerequisites) > 0 || len(profile.Conflicts) > 0 {
		fmt.Println()
		ux.Info("Relationships")
		if len(profile.Dependencies) > 0 {
			ux.Muted("  auto-installs: " + strings.Join(profile.Dependencies, ", "))
		}
		if len(profile.Prerequisites) > 0 {
			ux.Muted("  needs one of:  " + strings.Join(profile.Prerequisites, ", "))
		}
		if len(profile.Conflicts) > 0 {
			ux.Muted("  conflicts:     " + strings.Join(profile.Conflicts, ", "))
		}
	}

	fmt.Println()
	ux.Info("Resources")
	ux.Muted(fmt.Sprintf("  minimum:     %d CPU, %d GB memory, %d GB disk",
		profile.Resources.MinCPU, profile.Resources.MinMemoryGB, profile.Resources.MinDiskGB))
	ux.Muted(fmt.Sprintf("  recommended: %d CPU, %d GB memory, %d GB disk",
		profile.Resources.RecommendedCPU, profile.Resources.RecommendedMemGB, profile.Resources.RecommendedDiskGB))
}

// joinInts renders a port list as "16110, 16111".
func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}
