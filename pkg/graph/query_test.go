// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"context"
	"errors"
	"testing"
)

// createTestQuerier builds a querier over the shared test specs.
func createTestQuerier(t *testing.T) *Querier {
	t.Helper()

	builder, err := NewBuilder(testSpecs())
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	querier, err := NewQuerier(builder)
	if err != nil {
		t.Fatalf("NewQuerier failed: %v", err)
	}
	return querier
}

// TestQuerier_FindDependents_Direct tests finding direct dependents.
func TestQuerier_FindDependents_Direct(t *testing.T) {
	querier := createTestQuerier(t)

	ctx := context.Background()
	cfg := DefaultQueryConfig()
	cfg.MaxDepth = 1

	result, err := querier.FindDependents(ctx, "indexers", cfg)
	if err != nil {
		t.Fatalf("FindDependents failed: %v", err)
	}

	// Only apps depends directly on indexers
	if result.DirectCount != 1 {
		t.Errorf("DirectCount = %d, want 1", result.DirectCount)
	}
	if result.Query != "dependents" {
		t.Errorf("Query = %q, want 'dependents'", result.Query)
	}
}

// TestQuerier_FindDependents_Transitive tests dependents through a chain.
func TestQuerier_FindDependents_Transitive(t *testing.T) {
	querier := createTestQuerier(t)

	ctx := context.Background()
	cfg := DefaultQueryConfig()

	result, err := querier.FindDependents(ctx, "core", cfg)
	if err != nil {
		t.Fatalf("FindDependents failed: %v", err)
	}

	// indexers -> core directly, apps through indexers
	if result.TotalCount != 2 {
		t.Errorf("TotalCount = %d, want 2", result.TotalCount)
	}
	if result.TransitiveCount != 1 {
		t.Errorf("TransitiveCount = %d, want 1", result.TransitiveCount)
	}
}

// TestQuerier_FindDependents_Prerequisites tests the prerequisite edge
// toggle.
func TestQuerier_FindDependents_Prerequisites(t *testing.T) {
	querier := createTestQuerier(t)
	ctx := context.Background()

	// Without prerequisite edges, mining never shows as a dependent.
	cfg := DefaultQueryConfig()
	result, err := querier.FindDependents(ctx, "archive", cfg)
	if err != nil {
		t.Fatalf("FindDependents failed: %v", err)
	}
	if result.TotalCount != 0 {
		t.Errorf("TotalCount = %d, want 0 without prerequisites", result.TotalCount)
	}

	cfg.IncludePrerequisites = true
	result, err = querier.FindDependents(ctx, "archive", cfg)
	if err != nil {
		t.Fatalf("FindDependents with prerequisites failed: %v", err)
	}
	if result.TotalCount != 1 {
		t.Errorf("TotalCount = %d, want 1 with prerequisites", result.TotalCount)
	}
}

// TestQuerier_FindRequirements_Transitive tests requirement expansion.
func TestQuerier_FindRequirements_Transitive(t *testing.T) {
	querier := createTestQuerier(t)

	ctx := context.Background()
	cfg := DefaultQueryConfig()

	result, err := querier.FindRequirements(ctx, "apps", cfg)
	if err != nil {
		t.Fatalf("FindRequirements failed: %v", err)
	}

	// apps -> indexers -> core
	if result.TotalCount != 2 {
		t.Errorf("TotalCount = %d, want 2", result.TotalCount)
	}
	if result.DirectCount != 1 {
		t.Errorf("DirectCount = %d, want 1", result.DirectCount)
	}

	// Depths should reflect chain position
	for _, ref := range result.Results {
		switch ref.ID {
		case "indexers":
			if ref.Depth != 1 {
				t.Errorf("indexers depth = %d, want 1", ref.Depth)
			}
		case "core":
			if ref.Depth != 2 {
				t.Errorf("core depth = %d, want 2", ref.Depth)
			}
		default:
			t.Errorf("unexpected result %q", ref.ID)
		}
	}
}

// TestQuerier_FindRequirements_MaxDepth tests the depth limit.
func TestQuerier_FindRequirements_MaxDepth(t *testing.T) {
	querier := createTestQuerier(t)

	ctx := context.Background()
	cfg := DefaultQueryConfig()
	cfg.MaxDepth = 1

	result, err := querier.FindRequirements(ctx, "apps", cfg)
	if err != nil {
		t.Fatalf("FindRequirements failed: %v", err)
	}

	// Depth 1 stops before core
	if result.TotalCount != 1 {
		t.Errorf("TotalCount = %d, want 1", result.TotalCount)
	}
}

// TestQuerier_UnknownProfile tests error reporting for unknown ids.
func TestQuerier_UnknownProfile(t *testing.T) {
	querier := createTestQuerier(t)
	ctx := context.Background()

	_, err := querier.FindDependents(ctx, "ghost", DefaultQueryConfig())
	if !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("err = %v, want ErrProfileNotFound", err)
	}

	var notFound *ProfileNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("err should be *ProfileNotFoundError, got %T", err)
	}
	if notFound.Input != "ghost" {
		t.Errorf("Input = %q, want ghost", notFound.Input)
	}
}

// TestQuerier_FailIfEmpty tests the FailIfEmpty flag.
func TestQuerier_FailIfEmpty(t *testing.T) {
	querier := createTestQuerier(t)
	ctx := context.Background()

	cfg := DefaultQueryConfig()
	cfg.FailIfEmpty = true

	// core has no requirements
	_, err := querier.FindRequirements(ctx, "core", cfg)
	if !errors.Is(err, ErrNoResults) {
		t.Errorf("err = %v, want ErrNoResults", err)
	}
}

// TestQuerier_ExplainRequirement_Chain tests the why-chain query.
func TestQuerier_ExplainRequirement_Chain(t *testing.T) {
	querier := createTestQuerier(t)

	ctx := context.Background()
	result, err := querier.ExplainRequirement(ctx, "apps", "core", DefaultQueryConfig())
	if err != nil {
		t.Fatalf("ExplainRequirement failed: %v", err)
	}

	if !result.PathFound {
		t.Fatal("PathFound = false, want true")
	}
	if result.PathCount != 1 {
		t.Errorf("PathCount = %d, want 1", result.PathCount)
	}

	path := result.Paths[0]
	if path.Length != 2 {
		t.Errorf("Length = %d, want 2", path.Length)
	}

	want := []string{"apps", "indexers", "core"}
	if len(path.Profiles) != len(want) {
		t.Fatalf("len(Profiles) = %d, want %d", len(path.Profiles), len(want))
	}
	for i, node := range path.Profiles {
		if node.ID != want[i] {
			t.Errorf("Profiles[%d] = %q, want %q", i, node.ID, want[i])
		}
	}
}

// TestQuerier_ExplainRequirement_Trivial tests the same-profile case.
func TestQuerier_ExplainRequirement_Trivial(t *testing.T) {
	querier := createTestQuerier(t)

	ctx := context.Background()
	result, err := querier.ExplainRequirement(ctx, "core", "core", DefaultQueryConfig())
	if err != nil {
		t.Fatalf("ExplainRequirement failed: %v", err)
	}

	if !result.PathFound {
		t.Fatal("PathFound = false, want true")
	}
	if result.Paths[0].Length != 0 {
		t.Errorf("Length = %d, want 0", result.Paths[0].Length)
	}
}

// TestQuerier_ExplainRequirement_NoPath tests that an absent chain is a
// result, not an error.
func TestQuerier_ExplainRequirement_NoPath(t *testing.T) {
	querier := createTestQuerier(t)

	ctx := context.Background()
	result, err := querier.ExplainRequirement(ctx, "core", "apps", DefaultQueryConfig())
	if err != nil {
		t.Fatalf("ExplainRequirement failed: %v", err)
	}

	if result.PathFound {
		t.Error("PathFound = true, want false (dependencies point the other way)")
	}
	if result.PathCount != 0 {
		t.Errorf("PathCount = %d, want 0", result.PathCount)
	}
}
