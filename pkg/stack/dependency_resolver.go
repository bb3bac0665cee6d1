// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stack

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CircularDependencyError reports a dependency cycle found during resolution.
//
// Resolution fails closed: no partial resolved set accompanies this error.
type CircularDependencyError struct {
	// Cycle is the dependency path forming the loop, first id repeated last
	// (e.g. ["a", "b", "a"]).
	Cycle []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency: %s", strings.Join(e.Cycle, " -> "))
}

// ConflictPair names two profiles that cannot coexist. The pair is reported
// once regardless of which side declared the conflict, with A preceding B in
// catalog declaration order.
type ConflictPair struct {
	ProfileA string `json:"profile_a"`
	ProfileB string `json:"profile_b"`
}

func (p ConflictPair) String() string {
	return fmt.Sprintf("%s <-> %s", p.ProfileA, p.ProfileB)
}

// =============================================================================
// STRUCTS
// =============================================================================

// ResolvedSet is the outcome of dependency resolution: the transitive closure
// of a requested profile set, in deterministic startup order.
type ResolvedSet struct {
	// Requested holds the normalized request (duplicates removed, input order
	// preserved).
	Requested []string

	// Profiles is the resolved set in startup order: a profile's hard
	// dependencies and satisfied prerequisites always precede it. The order
	// is strict and deterministic for a given catalog.
	Profiles []string

	// Required marks profiles that entered the set as transitive
	// dependencies rather than by request.
	Required map[string]bool

	// Conflicts lists every conflicting pair inside the resolved set.
	// Conflicts do not prevent order computation; callers decide whether
	// they block the operation.
	Conflicts []ConflictPair

	services []string
}

// Contains reports whether id is part of the resolved set.
func (rs *ResolvedSet) Contains(id string) bool {
	return containsString(rs.Profiles, id)
}

// StartupOrder returns a copy of the resolved profile startup sequence.
func (rs *ResolvedSet) StartupOrder() []string {
	out := make([]string, len(rs.Profiles))
	copy(out, rs.Profiles)
	return out
}

// ServiceStartupOrder returns the flattened service start sequence: services
// follow their profile's position, keep their in-profile declaration order,
// and a service shared by several profiles appears only once (first
// occurrence wins).
func (rs *ResolvedSet) ServiceStartupOrder() []string {
	out := make([]string, len(rs.services))
	copy(out, rs.services)
	return out
}

// HasConflicts reports whether the resolved set contains conflicting pairs.
func (rs *ResolvedSet) HasConflicts() bool {
	return len(rs.Conflicts) > 0
}

// =============================================================================
// INTERFACES
// =============================================================================

// DependencyResolver expands a requested profile set into a conflict-checked,
// dependency-ordered resolved set.
//
// # Description
//
// Resolution is pure computation over the catalog: no I/O, no shared mutable
// state, idempotent for a given catalog and request. Resolving an
// already-resolved set returns the same set in the same order.
//
// # Examples
//
//	resolver, err := NewDefaultDependencyResolver(catalog)
//	if err != nil {
//	    return err
//	}
//	resolved, err := resolver.Resolve([]string{"kaspa-user-applications"})
//	if err != nil {
//	    return err // cycle or unknown id
//	}
//	for _, id := range resolved.StartupOrder() {
//	    fmt.Println(id) // indexer-services before kaspa-user-applications
//	}
//
// # Limitations
//
//   - Conflicts are collected on the ResolvedSet, not returned as errors;
//     the validator layer decides whether they block.
//
// # Assumptions
//
//   - The catalog passed at construction is immutable.
type DependencyResolver interface {
	// Resolve expands requested into its transitive dependency closure and
	// computes the startup order.
	//
	// # Inputs
	//
	//   - requested: profile ids to resolve. Empty resolves to an empty set
	//     with no error.
	//
	// # Outputs
	//
	//   - *ResolvedSet: the resolved set in startup order.
	//   - error: *CircularDependencyError for dependency cycles (fails
	//     closed), or a wrapped ErrProfileNotFound for unknown ids.
	Resolve(requested []string) (*ResolvedSet, error)
}

// =============================================================================
// DEFAULT IMPLEMENTATION
// =============================================================================

// DefaultDependencyResolver resolves against an explicit catalog handle.
type DefaultDependencyResolver struct {
	catalog *Catalog
}

// NewDefaultDependencyResolver creates a resolver bound to a catalog.
//
// # Outputs
//
//   - *DefaultDependencyResolver: ready-to-use resolver.
//   - error: ErrNilDependency if catalog is nil.
func NewDefaultDependencyResolver(catalog *Catalog) (*DefaultDependencyResolver, error) {
	if catalog == nil {
		return nil, fmt.Errorf("%w: catalog", ErrNilDependency)
	}
	return &DefaultDependencyResolver{catalog: catalog}, nil
}

// Resolve implements DependencyResolver.
func (r *DefaultDependencyResolver) Resolve(requested []string) (*ResolvedSet, error) {
	normalized := dedupeStrings(requested)

	resolved := &ResolvedSet{
		Requested: normalized,
		Profiles:  []string{},
		Required:  map[string]bool{},
	}
	if len(normalized) == 0 {
		return resolved, nil
	}

	closure, err := r.expand(normalized)
	if err != nil {
		return nil, err
	}

	for id := range closure {
		if !containsString(normalized, id) {
			resolved.Required[id] = true
		}
	}

	resolved.Conflicts = r.collectConflicts(closure)

	order, err := r.startupOrder(closure)
	if err != nil {
		return nil, err
	}
	resolved.Profiles = order
	resolved.services = r.flattenServices(order)

	return resolved, nil
}

// expand computes the transitive dependency closure of the request.
//
// Depth-first with an explicit visiting stack: a profile reappearing on the
// current path is a cycle, reported with the full path. Unknown ids are
// programmer errors and propagate immediately.
func (r *DefaultDependencyResolver) expand(requested []string) (map[string]bool, error) {
	closure := make(map[string]bool)
	visiting := make(map[string]bool)
	var stack []string

	var visit func(id string) error
	visit = func(id string) error {
		if visiting[id] {
			return &CircularDependencyError{Cycle: cyclePath(stack, id)}
		}
		if closure[id] {
			return nil
		}

		profile, err := r.catalog.Get(id)
		if err != nil {
			return err
		}

		visiting[id] = true
		stack = append(stack, id)
		defer func() {
			delete(visiting, id)
			stack = stack[:len(stack)-1]
		}()

		for _, dep := range profile.Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}

		closure[id] = true
		return nil
	}

	for _, id := range requested {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return closure, nil
}

// collectConflicts finds every conflicting pair in the closure. The check is
// symmetric: one-sided declarations count for both directions. Pairs are
// ordered by catalog declaration index for deterministic output.
func (r *DefaultDependencyResolver) collectConflicts(closure map[string]bool) []ConflictPair {
	ids := r.sortByDeclaration(closure)

	var pairs []ConflictPair
	for i := 0; i < len(ids); i++ {
		a, _ := r.catalog.Get(ids[i])
		for j := i + 1; j < len(ids); j++ {
			b, _ := r.catalog.Get(ids[j])
			if a.DeclaresConflictWith(b.ID) || b.DeclaresConflictWith(a.ID) {
				pairs = append(pairs, ConflictPair{ProfileA: a.ID, ProfileB: b.ID})
			}
		}
	}
	return pairs
}

// startupOrder topologically sorts the closure.
//
// Edges: a depends on b => b before a; a's prerequisite p, when p is inside
// the closure, => p before a. Among ready profiles the one declared earliest
// in the catalog starts first, making the order strict and repeatable.
func (r *DefaultDependencyResolver) startupOrder(closure map[string]bool) ([]string, error) {
	ids := r.sortByDeclaration(closure)

	inDegree := make(map[string]int, len(ids))
	successors := make(map[string][]string, len(ids))
	for _, id := range ids {
		inDegree[id] = 0
	}

	addEdge := func(before, after string) {
		successors[before] = append(successors[before], after)
		inDegree[after]++
	}

	for _, id := range ids {
		profile, _ := r.catalog.Get(id)
		for _, dep := range profile.Dependencies {
			if closure[dep] {
				addEdge(dep, id)
			}
		}
		for _, pre := range profile.Prerequisites {
			if closure[pre] {
				addEdge(pre, id)
			}
		}
	}

	order := make([]string, 0, len(ids))
	placed := make(map[string]bool, len(ids))

	for len(order) < len(ids) {
		next := ""
		for _, id := range ids {
			if !placed[id] && inDegree[id] == 0 {
				next = id
				break
			}
		}
		if next == "" {
			// Only prerequisite edges can close a loop here; pure dependency
			// cycles were caught during expansion.
			return nil, &CircularDependencyError{Cycle: residualCycle(ids, placed, successors)}
		}

		placed[next] = true
		order = append(order, next)
		for _, succ := range successors[next] {
			inDegree[succ]--
		}
	}

	return order, nil
}

// flattenServices expands the profile order into a service start sequence,
// deduplicating shared services on first occurrence.
func (r *DefaultDependencyResolver) flattenServices(order []string) []string {
	seen := make(map[string]bool)
	var services []string
	for _, id := range order {
		profile, _ := r.catalog.Get(id)
		for _, svc := range profile.Services {
			if seen[svc.Name] {
				continue
			}
			seen[svc.Name] = true
			services = append(services, svc.Name)
		}
	}
	return services
}

// sortByDeclaration orders closure members by catalog declaration index.
func (r *DefaultDependencyResolver) sortByDeclaration(closure map[string]bool) []string {
	ids := make([]string, 0, len(closure))
	for id := range closure {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return r.catalog.DeclarationIndex(ids[i]) < r.catalog.DeclarationIndex(ids[j])
	})
	return ids
}

// =============================================================================
// MOCK IMPLEMENTATION
// =============================================================================

// MockDependencyResolver implements DependencyResolver for testing.
type MockDependencyResolver struct {
	// ResolveFunc overrides Resolve behavior.
	ResolveFunc func(requested []string) (*ResolvedSet, error)

	// Calls records every Resolve invocation.
	Calls [][]string
}

// Resolve implements DependencyResolver.
func (m *MockDependencyResolver) Resolve(requested []string) (*ResolvedSet, error) {
	m.Calls = append(m.Calls, append([]string(nil), requested...))
	if m.ResolveFunc != nil {
		return m.ResolveFunc(requested)
	}
	return &ResolvedSet{
		Requested: append([]string(nil), requested...),
		Profiles:  append([]string(nil), requested...),
		Required:  map[string]bool{},
	}, nil
}

// =============================================================================
// PRIVATE HELPER FUNCTIONS
// =============================================================================

// residualCycle recovers a concrete loop from the ids Kahn's algorithm could
// not place. Every unplaced id retains an unplaced predecessor, so a
// predecessor walk must revisit some id; the stretch between the two visits,
// reversed into edge direction, is the cycle, first id repeated last.
// Unplaced ids that merely sit downstream of the loop are excluded.
func residualCycle(ids []string, placed map[string]bool, successors map[string][]string) []string {
	predecessor := make(map[string]string)
	for _, before := range ids {
		if placed[before] {
			continue
		}
		for _, after := range successors[before] {
			if !placed[after] {
				if _, ok := predecessor[after]; !ok {
					predecessor[after] = before
				}
			}
		}
	}

	var node string
	for _, id := range ids {
		if !placed[id] {
			node = id
			break
		}
	}

	visitedAt := make(map[string]int)
	var walk []string
	for {
		if at, ok := visitedAt[node]; ok {
			loop := walk[at:]
			cycle := make([]string, 0, len(loop)+1)
			for i := len(loop) - 1; i >= 0; i-- {
				cycle = append(cycle, loop[i])
			}
			return append(cycle, cycle[0])
		}
		visitedAt[node] = len(walk)
		walk = append(walk, node)
		node = predecessor[node]
	}
}

// cyclePath extracts the loop portion of the visiting stack, closing it with
// the repeated id.
func cyclePath(stack []string, repeated string) []string {
	start := 0
	for i, id := range stack {
		if id == repeated {
			start = i
			break
		}
	}
	cycle := append([]string(nil), stack[start:]...)
	return append(cycle, repeated)
}

// dedupeStrings removes duplicates preserving first-occurrence order.
func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// =============================================================================
// COMPILE-TIME CHECKS
// =============================================================================

var (
	_ DependencyResolver = (*DefaultDependencyResolver)(nil)
	_ DependencyResolver = (*MockDependencyResolver)(nil)
)
