// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

// API version for JSON output.
const APIVersion = "1.0"

// Default limits.
const (
	DefaultMaxDepth   = 16
	DefaultMaxResults = 200
)

// EdgeKind classifies a relationship between two profiles.
type EdgeKind string

const (
	// EdgeDependency is a hard requirement: the target is auto-installed.
	EdgeDependency EdgeKind = "dependency"

	// EdgePrerequisite is a capability requirement satisfiable by any
	// provider (e.g. "a node must exist"), never auto-installed.
	EdgePrerequisite EdgeKind = "prerequisite"

	// EdgeConflict marks two profiles that can never coexist. Conflict
	// edges are undirected; each pair appears once.
	EdgeConflict EdgeKind = "conflict"
)

// ProfileSpec is the builder's input: one profile's declarations.
//
// The caller maps its catalog entries into this shape. Referenced ids
// that have no corresponding spec produce warnings, not errors.
type ProfileSpec struct {
	ID            string
	Name          string
	Category      string
	Services      []string
	Dependencies  []string
	Prerequisites []string
	Conflicts     []string
}

// Node is one profile in the rendered graph.
type Node struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Services []string `json:"services,omitempty"`

	// Requested means the user named this profile directly.
	Requested bool `json:"requested,omitempty"`

	// Required means dependency resolution pulled this profile in.
	Required bool `json:"required,omitempty"`

	// Installed means the installation state lists this profile.
	Installed bool `json:"installed,omitempty"`
}

// Edge is one typed relationship in the rendered graph.
type Edge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind"`
}

// Graph is the JSON document consumed by visualization frontends.
type Graph struct {
	APIVersion string `json:"api_version"`

	// Network is the configured Kaspa network, when known.
	Network string `json:"network,omitempty"`

	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`

	// Warnings lists non-fatal construction findings (dangling
	// references, self-edges).
	Warnings []string `json:"warnings,omitempty"`
}

// NewGraph creates an empty Graph with the API version set.
func NewGraph() *Graph {
	return &Graph{
		APIVersion: APIVersion,
		Nodes:      make([]Node, 0),
		Edges:      make([]Edge, 0),
	}
}

// BuildOptions controls which marks and edges the builder emits.
type BuildOptions struct {
	// Requested profiles get the requested mark.
	Requested []string

	// Required profiles get the required mark (resolver additions).
	Required []string

	// Installed profiles get the installed mark.
	Installed []string

	// IncludeConflicts emits conflict edges. Visualizations that only
	// draw the dependency tree turn this off.
	IncludeConflicts bool

	// Network stamps the graph with the configured Kaspa network.
	Network string
}

// DefaultBuildOptions returns options with conflict edges enabled.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		IncludeConflicts: true,
	}
}

// QueryConfig holds configuration for graph queries.
type QueryConfig struct {
	// MaxDepth limits traversal depth. 0 = unlimited (up to DefaultMaxDepth).
	MaxDepth int

	// MaxResults limits number of results. 0 = unlimited (up to DefaultMaxResults).
	MaxResults int

	// IncludePrerequisites traverses prerequisite edges in addition to
	// dependency edges.
	IncludePrerequisites bool

	// FailIfEmpty returns error if no results found.
	FailIfEmpty bool
}

// DefaultQueryConfig returns configuration with sensible defaults.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		MaxDepth:             DefaultMaxDepth,
		MaxResults:           DefaultMaxResults,
		IncludePrerequisites: false,
		FailIfEmpty:          false,
	}
}

// ProfileRef is a single dependent or requirement result.
type ProfileRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`

	// Depth from the query target (1 = direct).
	Depth int `json:"depth"`

	// Path from the query target to this profile.
	Path []string `json:"path,omitempty"`
}

// QueryResult holds the results of a dependents or requirements query.
type QueryResult struct {
	APIVersion string `json:"api_version"`
	Query      string `json:"query"`
	Profile    string `json:"profile"`

	// Results
	Results []ProfileRef `json:"results"`

	// Counts
	DirectCount     int `json:"direct_count"`
	TransitiveCount int `json:"transitive_count"`
	TotalCount      int `json:"total_count"`

	// Query info
	MaxDepthUsed int  `json:"max_depth_used"`
	Truncated    bool `json:"truncated,omitempty"`

	// Errors/warnings
	Warnings []string `json:"warnings,omitempty"`
}

// NewQueryResult creates a new QueryResult with defaults.
func NewQueryResult(query, profile string) *QueryResult {
	return &QueryResult{
		APIVersion: APIVersion,
		Query:      query,
		Profile:    profile,
		Results:    make([]ProfileRef, 0),
		Warnings:   make([]string, 0),
	}
}

// PathNode is one profile in a why-chain.
type PathNode struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PathResult is one chain from source to target.
type PathResult struct {
	// Profiles in the chain, from source to target.
	Profiles []PathNode `json:"profiles"`

	// Length of the chain (number of hops).
	Length int `json:"length"`
}

// PathQueryResult holds the result of a why-chain query.
type PathQueryResult struct {
	APIVersion string `json:"api_version"`
	Query      string `json:"query"`
	From       string `json:"from"`
	To         string `json:"to"`

	// Paths holds the shortest chain found (empty when none exists).
	Paths []PathResult `json:"paths"`

	// Stats
	PathFound bool `json:"path_found"`
	PathCount int  `json:"path_count"`
	MaxDepth  int  `json:"max_depth"`

	// Errors/warnings
	Warnings []string `json:"warnings,omitempty"`
}

// NewPathQueryResult creates a new PathQueryResult with defaults.
func NewPathQueryResult(from, to string) *PathQueryResult {
	return &PathQueryResult{
		APIVersion: APIVersion,
		Query:      "why",
		From:       from,
		To:         to,
		Paths:      make([]PathResult, 0),
		Warnings:   make([]string, 0),
	}
}
