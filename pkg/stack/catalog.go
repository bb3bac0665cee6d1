// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stack

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// ERROR VARIABLES
// =============================================================================

var (
	// ErrProfileNotFound indicates a profile id is not present in the catalog.
	ErrProfileNotFound = errors.New("profile not found in catalog")

	// ErrInvalidCatalog indicates the catalog failed structural validation.
	ErrInvalidCatalog = errors.New("catalog failed validation")

	// ErrCatalogUnreadable indicates the catalog file could not be read or parsed.
	ErrCatalogUnreadable = errors.New("catalog file unreadable")

	// ErrNilDependency indicates a constructor received a nil collaborator.
	ErrNilDependency = errors.New("required dependency is nil")
)

// =============================================================================
// CONSTANTS AND ENUMS
// =============================================================================

// ProfileCategory classifies a profile by its role in the stack.
type ProfileCategory string

const (
	// CategoryCore is the base Kaspa node (kaspad) profile group.
	CategoryCore ProfileCategory = "core"

	// CategoryApplications covers user-facing web applications.
	CategoryApplications ProfileCategory = "applications"

	// CategoryIndexers covers database fillers and API servers.
	CategoryIndexers ProfileCategory = "indexers"

	// CategoryArchive covers non-pruning archival node deployments.
	CategoryArchive ProfileCategory = "archive"

	// CategoryMining covers mining bridge deployments.
	CategoryMining ProfileCategory = "mining"

	// CategoryDevelopment covers developer tooling (faucet, test helpers).
	CategoryDevelopment ProfileCategory = "development"
)

// validCategories is the closed set accepted by catalog validation.
var validCategories = map[ProfileCategory]bool{
	CategoryCore:         true,
	CategoryApplications: true,
	CategoryIndexers:     true,
	CategoryArchive:      true,
	CategoryMining:       true,
	CategoryDevelopment:  true,
}

// IsNodeProviding reports whether profiles in this category run a Kaspa node.
//
// Core and archive profiles both run kaspad; every other category assumes a
// node is reachable somewhere (local or public).
func (c ProfileCategory) IsNodeProviding() bool {
	return c == CategoryCore || c == CategoryArchive
}

// =============================================================================
// STRUCTS
// =============================================================================

// ServiceRef identifies one container-backed service inside a profile.
type ServiceRef struct {
	// Name is the Compose service name (e.g. "kaspad", "kaspa-rest-server").
	Name string `yaml:"name" json:"name"`

	// Ports are the host ports the service claims. Two different services
	// claiming the same port can never be deployed together.
	Ports []int `yaml:"ports,omitempty" json:"ports,omitempty"`
}

// ResourceSpec declares a profile's resource envelope in whole units
// (CPU cores, memory GB, disk GB).
type ResourceSpec struct {
	MinCPU            int `yaml:"min_cpu" json:"min_cpu"`
	MinMemoryGB       int `yaml:"min_memory_gb" json:"min_memory_gb"`
	MinDiskGB         int `yaml:"min_disk_gb" json:"min_disk_gb"`
	RecommendedCPU    int `yaml:"recommended_cpu" json:"recommended_cpu"`
	RecommendedMemGB  int `yaml:"recommended_memory_gb" json:"recommended_memory_gb"`
	RecommendedDiskGB int `yaml:"recommended_disk_gb" json:"recommended_disk_gb"`
}

// Profile is the unit of deployability: a named bundle of services with
// declared relationships to other profiles.
//
// # Description
//
// Profiles are static catalog data. Relation sets have distinct semantics:
//
//   - Dependencies: hard requirements, auto-included transitively whenever
//     this profile is active.
//   - Prerequisites: disjunctive requirement — at least one listed profile
//     must already be installed; never auto-included.
//   - Conflicts: profiles that cannot coexist with this one. Conflict
//     declarations may be one-sided; all checks treat them as symmetric.
//
// # Assumptions
//
//   - Relation sets contain catalog profile ids only (validated on load).
//   - Dependencies and Conflicts are disjoint, and no profile references
//     itself (validated on load).
type Profile struct {
	ID            string          `yaml:"id" json:"id"`
	Name          string          `yaml:"name" json:"name"`
	Description   string          `yaml:"description" json:"description"`
	Category      ProfileCategory `yaml:"category" json:"category"`
	Services      []ServiceRef    `yaml:"services" json:"services"`
	Dependencies  []string        `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	Prerequisites []string        `yaml:"prerequisites,omitempty" json:"prerequisites,omitempty"`
	Conflicts     []string        `yaml:"conflicts,omitempty" json:"conflicts,omitempty"`
	Resources     ResourceSpec    `yaml:"resources" json:"resources"`
}

// DeclaresConflictWith reports whether this profile lists other in Conflicts.
// Callers needing the symmetric check must test both directions.
func (p Profile) DeclaresConflictWith(other string) bool {
	return containsString(p.Conflicts, other)
}

// DependsOn reports whether this profile lists other in Dependencies.
func (p Profile) DependsOn(other string) bool {
	return containsString(p.Dependencies, other)
}

// ServiceNames returns the profile's service names in declaration order.
func (p Profile) ServiceNames() []string {
	names := make([]string, 0, len(p.Services))
	for _, svc := range p.Services {
		names = append(names, svc.Name)
	}
	return names
}

// Catalog is an immutable, ordered registry of profiles.
//
// # Description
//
// The catalog is constructed once (built-in defaults or a YAML file) and
// passed explicitly into the resolver, aggregator, and validator. Declaration
// order is significant: it is the deterministic tie-breaker for startup
// ordering, so two catalogs with the same profiles in a different order are
// different catalogs.
//
// # Thread Safety
//
// Catalog is read-only after construction and safe for concurrent use.
type Catalog struct {
	profiles []Profile
	index    map[string]int
}

// catalogFile is the on-disk YAML shape for catalog overlays.
type catalogFile struct {
	Version  int       `yaml:"version"`
	Profiles []Profile `yaml:"profiles"`
}

// =============================================================================
// CONSTRUCTOR FUNCTIONS
// =============================================================================

// NewCatalog builds a catalog from profiles in declaration order.
//
// # Description
//
// Validates structural invariants before accepting the data: unique ids, a
// known category per profile, relation sets referencing existing ids only,
// no self-references, and disjoint Dependencies/Conflicts sets. Any violation
// is a fatal configuration error — no partially valid catalog is returned.
//
// # Inputs
//
//   - profiles: profile definitions in declaration order.
//
// # Outputs
//
//   - *Catalog: the validated catalog.
//   - error: wraps ErrInvalidCatalog naming every violation found.
func NewCatalog(profiles []Profile) (*Catalog, error) {
	index := make(map[string]int, len(profiles))
	var violations []string

	for i, p := range profiles {
		if p.ID == "" {
			violations = append(violations, fmt.Sprintf("profile at position %d has empty id", i))
			continue
		}
		if _, dup := index[p.ID]; dup {
			violations = append(violations, fmt.Sprintf("duplicate profile id %q", p.ID))
			continue
		}
		index[p.ID] = i
	}

	for _, p := range profiles {
		if !validCategories[p.Category] {
			violations = append(violations, fmt.Sprintf("profile %q has unknown category %q", p.ID, p.Category))
		}
		violations = append(violations, validateRelationSet(index, p.ID, "dependencies", p.Dependencies)...)
		violations = append(violations, validateRelationSet(index, p.ID, "prerequisites", p.Prerequisites)...)
		violations = append(violations, validateRelationSet(index, p.ID, "conflicts", p.Conflicts)...)

		for _, dep := range p.Dependencies {
			if containsString(p.Conflicts, dep) {
				violations = append(violations,
					fmt.Sprintf("profile %q lists %q as both dependency and conflict", p.ID, dep))
			}
		}
	}

	if len(violations) > 0 {
		sort.Strings(violations)
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, violations)
	}

	owned := make([]Profile, len(profiles))
	copy(owned, profiles)
	return &Catalog{profiles: owned, index: index}, nil
}

// LoadCatalog reads a YAML catalog file and validates it.
//
// # Inputs
//
//   - path: catalog file location.
//
// # Outputs
//
//   - *Catalog: validated catalog from the file.
//   - error: wraps ErrCatalogUnreadable for I/O or parse failures, or the
//     validation error from NewCatalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCatalogUnreadable, path, err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCatalogUnreadable, path, err)
	}

	return NewCatalog(file.Profiles)
}

// DefaultCatalog returns the built-in production catalog.
//
// Declaration order matters: it is the startup-order tie-breaker. Core and
// archival node profiles come first, then data services, then applications.
func DefaultCatalog() *Catalog {
	catalog, err := NewCatalog(defaultProfiles())
	if err != nil {
		// The built-in catalog is compile-time data; failing validation is a
		// programming error, not a runtime condition.
		panic(fmt.Sprintf("built-in catalog invalid: %v", err))
	}
	return catalog
}

// defaultProfiles declares the built-in catalog data.
func defaultProfiles() []Profile {
	return []Profile{
		{
			ID:          "core",
			Name:        "Kaspa Core Node",
			Description: "Pruning kaspad node with public RPC and P2P endpoints",
			Category:    CategoryCore,
			Services: []ServiceRef{
				{Name: "kaspad", Ports: []int{16110, 16111}},
			},
			Resources: ResourceSpec{
				MinCPU: 2, MinMemoryGB: 4, MinDiskGB: 100,
				RecommendedCPU: 4, RecommendedMemGB: 8, RecommendedDiskGB: 200,
			},
		},
		{
			ID:          "archive-node",
			Name:        "Kaspa Archive Node",
			Description: "Non-pruning kaspad retaining full chain history",
			Category:    CategoryArchive,
			Services: []ServiceRef{
				{Name: "kaspad-archive", Ports: []int{16110, 16111}},
			},
			// One node per host: both nodes claim the standard RPC/P2P ports.
			Conflicts: []string{"core"},
			Resources: ResourceSpec{
				MinCPU: 2, MinMemoryGB: 8, MinDiskGB: 500,
				RecommendedCPU: 4, RecommendedMemGB: 16, RecommendedDiskGB: 1000,
			},
		},
		{
			ID:          "indexer-services",
			Name:        "Indexer Services",
			Description: "Block/transaction indexing into PostgreSQL with REST API",
			Category:    CategoryIndexers,
			Services: []ServiceRef{
				{Name: "postgresql", Ports: []int{5432}},
				{Name: "kaspa-db-filler"},
				{Name: "kaspa-rest-server", Ports: []int{8000}},
			},
			Resources: ResourceSpec{
				MinCPU: 2, MinMemoryGB: 4, MinDiskGB: 100,
				RecommendedCPU: 4, RecommendedMemGB: 8, RecommendedDiskGB: 250,
			},
		},
		{
			ID:          "kaspa-user-applications",
			Name:        "User Applications",
			Description: "Block explorer and graph inspector web frontends",
			Category:    CategoryApplications,
			Services: []ServiceRef{
				{Name: "kaspa-explorer", Ports: []int{3000}},
				{Name: "kaspa-graph-inspector", Ports: []int{3001}},
				// Shared with indexer-services; the explorer cannot run
				// without the REST API.
				{Name: "kaspa-rest-server", Ports: []int{8000}},
			},
			Dependencies: []string{"indexer-services"},
			Resources: ResourceSpec{
				MinCPU: 1, MinMemoryGB: 2, MinDiskGB: 10,
				RecommendedCPU: 2, RecommendedMemGB: 4, RecommendedDiskGB: 20,
			},
		},
		{
			ID:          "monitoring",
			Name:        "Monitoring",
			Description: "Prometheus metrics collection with Grafana dashboards",
			Category:    CategoryApplications,
			Services: []ServiceRef{
				{Name: "prometheus", Ports: []int{9090}},
				{Name: "grafana", Ports: []int{3300}},
			},
			Resources: ResourceSpec{
				MinCPU: 1, MinMemoryGB: 2, MinDiskGB: 20,
				RecommendedCPU: 2, RecommendedMemGB: 4, RecommendedDiskGB: 50,
			},
		},
		{
			ID:          "mining",
			Name:        "Mining Bridge",
			Description: "Stratum bridge translating miner connections to node RPC",
			Category:    CategoryMining,
			Services: []ServiceRef{
				{Name: "kaspa-stratum-bridge", Ports: []int{5555}},
			},
			// Any local node satisfies the bridge; neither is auto-installed.
			Prerequisites: []string{"core", "archive-node"},
			Resources: ResourceSpec{
				MinCPU: 1, MinMemoryGB: 1, MinDiskGB: 5,
				RecommendedCPU: 2, RecommendedMemGB: 2, RecommendedDiskGB: 10,
			},
		},
		{
			ID:          "developer-tools",
			Name:        "Developer Tools",
			Description: "Testnet faucet and development helpers",
			Category:    CategoryDevelopment,
			Services: []ServiceRef{
				{Name: "kaspa-faucet", Ports: []int{8083}},
			},
			Prerequisites: []string{"core", "archive-node"},
			Resources: ResourceSpec{
				MinCPU: 1, MinMemoryGB: 1, MinDiskGB: 5,
				RecommendedCPU: 1, RecommendedMemGB: 2, RecommendedDiskGB: 10,
			},
		},
	}
}

// =============================================================================
// PUBLIC METHODS
// =============================================================================

// Get returns the profile with the given id.
//
// # Outputs
//
//   - Profile: a copy of the profile. Callers must not rely on mutating it.
//   - error: wraps ErrProfileNotFound for unknown ids.
func (c *Catalog) Get(id string) (Profile, error) {
	i, ok := c.index[id]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrProfileNotFound, id)
	}
	return c.profiles[i], nil
}

// Has reports whether the catalog contains the given profile id.
func (c *Catalog) Has(id string) bool {
	_, ok := c.index[id]
	return ok
}

// DeclarationIndex returns the declaration position of a profile id, or -1
// when the id is unknown. Used as the deterministic ordering tie-breaker.
func (c *Catalog) DeclarationIndex(id string) int {
	i, ok := c.index[id]
	if !ok {
		return -1
	}
	return i
}

// IDs returns all profile ids in declaration order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.profiles))
	for _, p := range c.profiles {
		ids = append(ids, p.ID)
	}
	return ids
}

// Profiles returns a copy of all profiles in declaration order.
func (c *Catalog) Profiles() []Profile {
	out := make([]Profile, len(c.profiles))
	copy(out, c.profiles)
	return out
}

// Len returns the number of profiles in the catalog.
func (c *Catalog) Len() int {
	return len(c.profiles)
}

// NodeProviders returns the ids of node-providing profiles in declaration
// order (core and archive categories).
func (c *Catalog) NodeProviders() []string {
	var ids []string
	for _, p := range c.profiles {
		if p.Category.IsNodeProviding() {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// =============================================================================
// PRIVATE HELPER FUNCTIONS
// =============================================================================

// validateRelationSet checks one relation set for unknown ids and
// self-references.
func validateRelationSet(index map[string]int, owner, relation string, ids []string) []string {
	var violations []string
	for _, id := range ids {
		if id == owner {
			violations = append(violations,
				fmt.Sprintf("profile %q lists itself in %s", owner, relation))
			continue
		}
		if _, ok := index[id]; !ok {
			violations = append(violations,
				fmt.Sprintf("profile %q references unknown id %q in %s", owner, id, relation))
		}
	}
	return violations
}

// containsString reports whether s is present in list.
func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
