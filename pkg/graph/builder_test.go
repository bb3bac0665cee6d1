// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"errors"
	"testing"
)

// testSpecs creates profile specs with known relationships.
// Chain: apps -> indexers -> core; mining has prerequisites on either node.
func testSpecs() []ProfileSpec {
	return []ProfileSpec{
		{ID: "core", Name: "Core Node", Category: "core",
			Services:  []string{"kaspad"},
			Conflicts: []string{"archive"}},
		{ID: "archive", Name: "Archive Node", Category: "archive",
			Services:  []string{"kaspad-archive"},
			Conflicts: []string{"core"}},
		{ID: "indexers", Name: "Indexer Services", Category: "indexers",
			Services:     []string{"postgresql", "kaspa-rest-server"},
			Dependencies: []string{"core"}},
		{ID: "apps", Name: "User Applications", Category: "applications",
			Services:     []string{"kaspa-explorer"},
			Dependencies: []string{"indexers"}},
		{ID: "mining", Name: "Mining Bridge", Category: "mining",
			Services:      []string{"kaspa-stratum-bridge"},
			Prerequisites: []string{"core", "archive"}},
	}
}

// TestNewBuilder_Empty tests that an empty catalog is rejected.
func TestNewBuilder_Empty(t *testing.T) {
	_, err := NewBuilder(nil)
	if !errors.Is(err, ErrEmptyCatalog) {
		t.Errorf("err = %v, want ErrEmptyCatalog", err)
	}
}

// TestNewBuilder_DuplicateID tests that duplicate ids are rejected.
func TestNewBuilder_DuplicateID(t *testing.T) {
	specs := []ProfileSpec{
		{ID: "core", Name: "Core"},
		{ID: "core", Name: "Core Again"},
	}
	_, err := NewBuilder(specs)
	if !errors.Is(err, ErrDuplicateProfile) {
		t.Errorf("err = %v, want ErrDuplicateProfile", err)
	}
}

// TestBuilder_Build_Nodes tests node rendering with marks.
func TestBuilder_Build_Nodes(t *testing.T) {
	builder, err := NewBuilder(testSpecs())
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}

	opts := DefaultBuildOptions()
	opts.Requested = []string{"apps"}
	opts.Required = []string{"indexers", "core"}
	opts.Installed = []string{"core"}
	opts.Network = "mainnet"

	g := builder.Build(opts)

	if g.APIVersion != APIVersion {
		t.Errorf("APIVersion = %q, want %q", g.APIVersion, APIVersion)
	}
	if g.Network != "mainnet" {
		t.Errorf("Network = %q, want mainnet", g.Network)
	}
	if len(g.Nodes) != 5 {
		t.Fatalf("len(Nodes) = %d, want 5", len(g.Nodes))
	}

	byID := make(map[string]Node)
	for _, n := range g.Nodes {
		byID[n.ID] = n
	}

	if !byID["apps"].Requested {
		t.Errorf("apps should be marked requested")
	}
	if !byID["indexers"].Required || !byID["core"].Required {
		t.Errorf("indexers and core should be marked required")
	}
	if !byID["core"].Installed {
		t.Errorf("core should be marked installed")
	}
	if byID["mining"].Requested || byID["mining"].Required || byID["mining"].Installed {
		t.Errorf("mining should carry no marks")
	}
}

// TestBuilder_Build_EdgeKinds tests that each relationship type renders
// with its kind.
func TestBuilder_Build_EdgeKinds(t *testing.T) {
	builder, err := NewBuilder(testSpecs())
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}

	g := builder.Build(DefaultBuildOptions())

	counts := map[EdgeKind]int{}
	for _, e := range g.Edges {
		counts[e.Kind]++
	}

	// apps->indexers, indexers->core
	if counts[EdgeDependency] != 2 {
		t.Errorf("dependency edges = %d, want 2", counts[EdgeDependency])
	}
	// mining->core, mining->archive
	if counts[EdgePrerequisite] != 2 {
		t.Errorf("prerequisite edges = %d, want 2", counts[EdgePrerequisite])
	}
	// core<->archive declared on both sides, rendered once
	if counts[EdgeConflict] != 1 {
		t.Errorf("conflict edges = %d, want 1 (deduplicated)", counts[EdgeConflict])
	}
}

// TestBuilder_Build_ConflictsExcluded tests the IncludeConflicts filter.
func TestBuilder_Build_ConflictsExcluded(t *testing.T) {
	builder, err := NewBuilder(testSpecs())
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}

	opts := DefaultBuildOptions()
	opts.IncludeConflicts = false
	g := builder.Build(opts)

	for _, e := range g.Edges {
		if e.Kind == EdgeConflict {
			t.Errorf("found conflict edge %s -> %s with IncludeConflicts=false", e.From, e.To)
		}
	}
}

// TestBuilder_Build_DanglingReference tests that unknown targets become
// warnings, not edges.
func TestBuilder_Build_DanglingReference(t *testing.T) {
	specs := []ProfileSpec{
		{ID: "core", Name: "Core"},
		{ID: "apps", Name: "Apps", Dependencies: []string{"ghost"}},
	}
	builder, err := NewBuilder(specs)
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}

	g := builder.Build(DefaultBuildOptions())

	if len(g.Edges) != 0 {
		t.Errorf("len(Edges) = %d, want 0", len(g.Edges))
	}
	if len(g.Warnings) != 1 {
		t.Fatalf("len(Warnings) = %d, want 1", len(g.Warnings))
	}
}

// TestBuilder_Build_SelfEdge tests that self-references become warnings.
func TestBuilder_Build_SelfEdge(t *testing.T) {
	specs := []ProfileSpec{
		{ID: "core", Name: "Core", Dependencies: []string{"core"}},
	}
	builder, err := NewBuilder(specs)
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}

	g := builder.Build(DefaultBuildOptions())

	if len(g.Edges) != 0 {
		t.Errorf("len(Edges) = %d, want 0", len(g.Edges))
	}
	if len(g.Warnings) != 1 {
		t.Fatalf("len(Warnings) = %d, want 1", len(g.Warnings))
	}
}
