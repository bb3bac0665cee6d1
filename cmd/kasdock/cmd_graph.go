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
	"strings"

	"github.com/spf13/cobra"

	"github.com/kasdock/kasdock/cmd/kasdock/config"
	"github.com/kasdock/kasdock/pkg/graph"
	"github.com/kasdock/kasdock/pkg/ux"
)

// catalogSpecs maps catalog profiles into the graph builder's input shape.
func catalogSpecs() []graph.ProfileSpec {
	profiles := mustCatalog().Profiles()
	specs := make([]graph.ProfileSpec, 0, len(profiles))
	for _, p := range profiles {
		specs = append(specs, graph.ProfileSpec{
			ID:            p.ID,
			Name:          p.Name,
			Category:      string(p.Category),
			Services:      p.ServiceNames(),
			Dependencies:  p.Dependencies,
			Prerequisites: p.Prerequisites,
			Conflicts:     p.Conflicts,
		})
	}
	return specs
}

func mustBuilder() *graph.Builder {
	builder, err := graph.NewBuilder(catalogSpecs())
	if err != nil {
		log.Fatalf("Failed to build dependency graph: %v", err)
	}
	return builder
}

func mustQuerier() *graph.Querier {
	querier, err := graph.NewQuerier(mustBuilder())
	if err != nil {
		log.Fatalf("Failed to build graph querier: %v", err)
	}
	return querier
}

func runGraphShow(cmd *cobra.Command, args []string) {
	state := loadInstallationState(context.Background())

	opts := graph.DefaultBuildOptions()
	opts.Installed = state.InstalledProfiles
	opts.Network = state.Network
	if opts.Network == "" {
		opts.Network = config.Global.Network
	}

	printJSON(mustBuilder().Build(opts))
}

func runGraphDependents(cmd *cobra.Command, args []string) {
	querier := mustQuerier()

	cfg := graph.DefaultQueryConfig()
	cfg.IncludePrerequisites = true

	result, err := querier.FindDependents(context.Background(), args[0], cfg)
	if err != nil {
		log.Fatalf("Dependents query failed: %v", err)
	}

	if len(result.Results) == 0 {
		ux.Success(fmt.Sprintf("Nothing depends on %s. It can be removed freely.", args[0]))
		return
	}

	ux.Title(fmt.Sprintf("Profiles Depending On %s", args[0]))
	printProfileRefs(result.Results)
	fmt.Println()
	ux.Muted(fmt.Sprintf("%d direct, %d transitive", result.DirectCount, result.TransitiveCount))
	printGraphWarnings(result.Warnings)
}

func runGraphRequirements(cmd *cobra.Command, args []string) {
	querier := mustQuerier()

	cfg := graph.DefaultQueryConfig()
	cfg.IncludePrerequisites = true

	result, err := querier.FindRequirements(context.Background(), args[0], cfg)
	if err != nil {
		log.Fatalf("Requirements query failed: %v", err)
	}

	if len(result.Results) == 0 {
		ux.Success(fmt.Sprintf("%s stands alone. It requires no other profiles.", args[0]))
		return
	}

	ux.Title(fmt.Sprintf("Requirements Of %s", args[0]))
	printProfileRefs(result.Results)
	fmt.Println()
	ux.Muted(fmt.Sprintf("%d direct, %d transitive", result.DirectCount, result.TransitiveCount))
	printGraphWarnings(result.Warnings)
}

func runGraphExplain(cmd *cobra.Command, args []string) {
	querier := mustQuerier()

	cfg := graph.DefaultQueryConfig()
	cfg.IncludePrerequisites = true

	result, err := querier.ExplainRequirement(context.Background(), args[0], args[1], cfg)
	if err != nil {
		log.Fatalf("Explain query failed: %v", err)
	}

	if !result.PathFound {
		ux.Info(fmt.Sprintf("%s does not require %s, directly or transitively.", args[0], args[1]))
		return
	}

	ux.Title(fmt.Sprintf("Why %s Requires %s", args[0], args[1]))
	for _, path := range result.Paths {
		ids := make([]string, 0, len(path.Profiles))
		for _, node := range path.Profiles {
			ids = append(ids, node.ID)
		}
		ux.ServiceStatus(strings.Join(ids, " -> "), ux.IconArrow,
			fmt.Sprintf("%d hops", path.Length))
	}
	printGraphWarnings(result.Warnings)
}

// printProfileRefs renders query results indented by depth.
func printProfileRefs(refs []graph.ProfileRef) {
	for _, ref := range refs {
		indent := strings.Repeat("  ", ref.Depth-1)
		detail := ref.Category
		if ref.Depth > 1 {
			detail = fmt.Sprintf("%s, via %s", ref.Category, strings.Join(ref.Path, " -> "))
		}
		ux.ServiceStatus(indent+ref.ID, ux.IconBullet, detail)
	}
}

func printGraphWarnings(warnings []string) {
	for _, warning := range warnings {
		ux.Warning(warning)
	}
}
