// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"fmt"
	"sort"
)

// Builder constructs Graph documents from profile declarations.
//
// # Description
//
// The builder indexes profile specs once at construction and renders
// graphs with different marks (requested/required/installed) per call.
// Dangling references in the declarations become warnings on the
// rendered graph, never errors: a visualization of a slightly
// inconsistent catalog is more useful than no visualization.
//
// # Thread Safety
//
// Safe for concurrent use after construction.
type Builder struct {
	specs []ProfileSpec
	index map[string]int
}

// NewBuilder creates a Builder over the given profile specs.
//
// # Inputs
//
//   - specs: Profile declarations in catalog order. Must be non-empty
//     with unique ids.
//
// # Outputs
//
//   - *Builder: Ready-to-use builder.
//   - error: ErrEmptyCatalog or ErrDuplicateProfile.
func NewBuilder(specs []ProfileSpec) (*Builder, error) {
	if len(specs) == 0 {
		return nil, ErrEmptyCatalog
	}

	index := make(map[string]int, len(specs))
	for i, spec := range specs {
		if _, exists := index[spec.ID]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateProfile, spec.ID)
		}
		index[spec.ID] = i
	}

	return &Builder{specs: specs, index: index}, nil
}

// Build renders the graph document with the given marks.
//
// # Description
//
// Nodes appear in spec order. Dependency and prerequisite edges point
// from the declaring profile to the referenced one. Conflict edges are
// undirected and deduplicated: each pair appears once regardless of
// which side (or both) declared it.
//
// # Inputs
//
//   - opts: Marks and edge filters. DefaultBuildOptions() for a plain
//     catalog view.
//
// # Outputs
//
//   - *Graph: The rendered document. Never nil.
func (b *Builder) Build(opts BuildOptions) *Graph {
	g := NewGraph()
	g.Network = opts.Network

	requested := toSet(opts.Requested)
	required := toSet(opts.Required)
	installed := toSet(opts.Installed)

	for _, spec := range b.specs {
		g.Nodes = append(g.Nodes, Node{
			ID:        spec.ID,
			Name:      spec.Name,
			Category:  spec.Category,
			Services:  spec.Services,
			Requested: requested[spec.ID],
			Required:  required[spec.ID],
			Installed: installed[spec.ID],
		})
	}

	seenConflict := make(map[string]bool)

	for _, spec := range b.specs {
		for _, dep := range spec.Dependencies {
			if !b.edgeTargetOK(g, spec.ID, dep, EdgeDependency) {
				continue
			}
			g.Edges = append(g.Edges, Edge{From: spec.ID, To: dep, Kind: EdgeDependency})
		}

		for _, prereq := range spec.Prerequisites {
			if !b.edgeTargetOK(g, spec.ID, prereq, EdgePrerequisite) {
				continue
			}
			g.Edges = append(g.Edges, Edge{From: spec.ID, To: prereq, Kind: EdgePrerequisite})
		}

		if !opts.IncludeConflicts {
			continue
		}
		for _, conflict := range spec.Conflicts {
			if !b.edgeTargetOK(g, spec.ID, conflict, EdgeConflict) {
				continue
			}
			key := conflictKey(spec.ID, conflict)
			if seenConflict[key] {
				continue
			}
			seenConflict[key] = true
			from, to := orderPair(spec.ID, conflict)
			g.Edges = append(g.Edges, Edge{From: from, To: to, Kind: EdgeConflict})
		}
	}

	return g
}

// edgeTargetOK validates one edge endpoint, recording a warning for
// self-edges and dangling references.
func (b *Builder) edgeTargetOK(g *Graph, from, to string, kind EdgeKind) bool {
	if from == to {
		g.Warnings = append(g.Warnings,
			fmt.Sprintf("profile %q declares a %s on itself", from, kind))
		return false
	}
	if _, ok := b.index[to]; !ok {
		g.Warnings = append(g.Warnings,
			fmt.Sprintf("profile %q declares a %s on unknown profile %q", from, kind, to))
		return false
	}
	return true
}

// Spec returns the spec for a profile id.
func (b *Builder) Spec(id string) (ProfileSpec, bool) {
	i, ok := b.index[id]
	if !ok {
		return ProfileSpec{}, false
	}
	return b.specs[i], true
}

// IDs returns all profile ids in spec order.
func (b *Builder) IDs() []string {
	ids := make([]string, len(b.specs))
	for i, spec := range b.specs {
		ids[i] = spec.ID
	}
	return ids
}

// toSet converts a slice to a membership map.
func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

// conflictKey produces an order-independent key for a conflict pair.
func conflictKey(a, b string) string {
	lo, hi := orderPair(a, b)
	return lo + "\x00" + hi
}

// orderPair returns the two ids in sorted order.
func orderPair(a, b string) (string, string) {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0], pair[1]
}
