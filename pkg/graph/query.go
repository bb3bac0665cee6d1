// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"context"
	"fmt"
)

// edgeRef is one adjacency entry with its kind.
type edgeRef struct {
	id   string
	kind EdgeKind
}

// Querier provides profile graph query operations.
//
// # Description
//
// Querier precomputes forward and reverse adjacency over a Builder's
// specs and answers dependents, requirements, and why-chain queries
// using BFS traversal with depth limits and cycle detection.
//
// # Thread Safety
//
// Querier is safe for concurrent use.
type Querier struct {
	builder *Builder

	// forward maps a profile to what it depends on.
	forward map[string][]edgeRef

	// reverse maps a profile to what depends on it.
	reverse map[string][]edgeRef
}

// NewQuerier creates a new Querier over the given builder.
//
// # Inputs
//
//   - builder: The Builder to query. Must not be nil.
//
// # Outputs
//
//   - *Querier: The querier instance.
//   - error: Non-nil if builder is nil.
func NewQuerier(builder *Builder) (*Querier, error) {
	if builder == nil {
		return nil, fmt.Errorf("builder must not be nil")
	}

	q := &Querier{
		builder: builder,
		forward: make(map[string][]edgeRef),
		reverse: make(map[string][]edgeRef),
	}

	for _, spec := range builder.specs {
		for _, dep := range spec.Dependencies {
			if _, ok := builder.index[dep]; !ok {
				continue
			}
			q.forward[spec.ID] = append(q.forward[spec.ID], edgeRef{id: dep, kind: EdgeDependency})
			q.reverse[dep] = append(q.reverse[dep], edgeRef{id: spec.ID, kind: EdgeDependency})
		}
		for _, prereq := range spec.Prerequisites {
			if _, ok := builder.index[prereq]; !ok {
				continue
			}
			q.forward[spec.ID] = append(q.forward[spec.ID], edgeRef{id: prereq, kind: EdgePrerequisite})
			q.reverse[prereq] = append(q.reverse[prereq], edgeRef{id: spec.ID, kind: EdgePrerequisite})
		}
	}

	return q, nil
}

// FindDependents finds all profiles that depend on the target.
//
// # Description
//
// Uses BFS traversal over reverse dependency edges to find dependents
// up to the specified depth. Direct dependents are at depth 1, their
// dependents at depth 2, etc. This is the question "what breaks if I
// remove this profile".
//
// # Inputs
//
//   - ctx: Context for cancellation. Must not be nil.
//   - profileID: Profile id to find dependents for.
//   - cfg: Query configuration.
//
// # Outputs
//
//   - *QueryResult: Query results with dependents.
//   - error: Non-nil if the profile is unknown.
//
// # Thread Safety
//
// Safe for concurrent use.
func (q *Querier) FindDependents(ctx context.Context, profileID string, cfg QueryConfig) (*QueryResult, error) {
	return q.traverse(ctx, "dependents", profileID, cfg, q.reverse)
}

// FindRequirements finds all profiles the target depends on.
//
// # Description
//
// Uses BFS traversal over forward dependency edges to find requirements
// up to the specified depth. This is the question "what does installing
// this profile pull in".
//
// # Inputs
//
//   - ctx: Context for cancellation. Must not be nil.
//   - profileID: Profile id to find requirements for.
//   - cfg: Query configuration.
//
// # Outputs
//
//   - *QueryResult: Query results with requirements.
//   - error: Non-nil if the profile is unknown.
//
// # Thread Safety
//
// Safe for concurrent use.
func (q *Querier) FindRequirements(ctx context.Context, profileID string, cfg QueryConfig) (*QueryResult, error) {
	return q.traverse(ctx, "requirements", profileID, cfg, q.forward)
}

// traverse runs one BFS over the given adjacency.
func (q *Querier) traverse(ctx context.Context, query, profileID string, cfg QueryConfig, adjacency map[string][]edgeRef) (*QueryResult, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}

	start, ok := q.builder.Spec(profileID)
	if !ok {
		return nil, &ProfileNotFoundError{Input: profileID, Known: q.builder.IDs()}
	}

	result := NewQueryResult(query, profileID)

	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	result.MaxDepthUsed = maxDepth

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	// BFS using slice-based queue
	visited := make(map[string]bool)
	visited[start.ID] = true

	type queueItem struct {
		id    string
		depth int
		path  []string
	}

	queue := []queueItem{{id: start.ID, depth: 0, path: []string{start.ID}}}
	directCount := 0

	for len(queue) > 0 && len(result.Results) < maxResults {
		select {
		case <-ctx.Done():
			result.Warnings = append(result.Warnings, "query cancelled")
			result.Truncated = true
			return result, nil
		default:
		}

		// Dequeue
		item := queue[0]
		queue = queue[1:]

		if item.depth >= maxDepth {
			continue
		}

		for _, edge := range adjacency[item.id] {
			if edge.kind == EdgePrerequisite && !cfg.IncludePrerequisites {
				continue
			}
			if visited[edge.id] {
				continue
			}
			visited[edge.id] = true

			spec, ok := q.builder.Spec(edge.id)
			if !ok {
				continue
			}

			newPath := append(append([]string{}, item.path...), spec.ID)
			depth := item.depth + 1

			result.Results = append(result.Results, ProfileRef{
				ID:       spec.ID,
				Name:     spec.Name,
				Category: spec.Category,
				Depth:    depth,
				Path:     newPath,
			})

			if depth == 1 {
				directCount++
			}

			// Add to queue for further traversal
			if depth < maxDepth && len(result.Results) < maxResults {
				queue = append(queue, queueItem{id: spec.ID, depth: depth, path: newPath})
			}
		}
	}

	result.DirectCount = directCount
	result.TransitiveCount = len(result.Results) - directCount
	result.TotalCount = len(result.Results)
	result.Truncated = len(result.Results) >= maxResults

	if cfg.FailIfEmpty && result.TotalCount == 0 {
		return result, ErrNoResults
	}

	return result, nil
}

// ExplainRequirement finds the shortest dependency chain from one
// profile to another.
//
// # Description
//
// Answers "why did installing X pull in Y": a BFS over forward
// dependency edges from the source yields the shortest chain to the
// target. A missing chain is a valid answer (PathFound=false), not an
// error.
//
// # Inputs
//
//   - ctx: Context for cancellation. Must not be nil.
//   - fromID: The profile the user asked for.
//   - toID: The profile that appeared in the resolved set.
//   - cfg: Query configuration.
//
// # Outputs
//
//   - *PathQueryResult: The shortest chain, when one exists.
//   - error: Non-nil if either profile is unknown.
//
// # Thread Safety
//
// Safe for concurrent use.
func (q *Querier) ExplainRequirement(ctx context.Context, fromID, toID string, cfg QueryConfig) (*PathQueryResult, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}

	from, ok := q.builder.Spec(fromID)
	if !ok {
		return nil, &ProfileNotFoundError{Input: fromID, Known: q.builder.IDs()}
	}
	to, ok := q.builder.Spec(toID)
	if !ok {
		return nil, &ProfileNotFoundError{Input: toID, Known: q.builder.IDs()}
	}

	result := NewPathQueryResult(fromID, toID)

	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	result.MaxDepth = maxDepth

	// Same profile = trivial chain
	if from.ID == to.ID {
		result.PathFound = true
		result.PathCount = 1
		result.Paths = []PathResult{{
			Profiles: []PathNode{{ID: from.ID, Name: from.Name}},
			Length:   0,
		}}
		return result, nil
	}

	// BFS for the shortest chain
	visited := make(map[string]bool)
	visited[from.ID] = true

	type queueItem struct {
		id   string
		path []string
	}

	queue := []queueItem{{id: from.ID, path: []string{from.ID}}}

	for len(queue) > 0 {
		select {
		case <-ctx.Done():
			result.Warnings = append(result.Warnings, "query cancelled")
			return result, nil
		default:
		}

		item := queue[0]
		queue = queue[1:]

		if len(item.path)-1 >= maxDepth {
			continue
		}

		for _, edge := range q.forward[item.id] {
			if edge.kind == EdgePrerequisite && !cfg.IncludePrerequisites {
				continue
			}
			if visited[edge.id] {
				continue
			}
			visited[edge.id] = true

			newPath := append(append([]string{}, item.path...), edge.id)

			if edge.id == to.ID {
				result.Paths = append(result.Paths, q.toPathResult(newPath))
				result.PathFound = true
				result.PathCount = 1
				return result, nil
			}

			queue = append(queue, queueItem{id: edge.id, path: newPath})
		}
	}

	return result, nil
}

// toPathResult converts an id chain to a PathResult.
func (q *Querier) toPathResult(ids []string) PathResult {
	pathResult := PathResult{
		Profiles: make([]PathNode, 0, len(ids)),
		Length:   len(ids) - 1,
	}
	for _, id := range ids {
		spec, ok := q.builder.Spec(id)
		if !ok {
			continue
		}
		pathResult.Profiles = append(pathResult.Profiles, PathNode{ID: spec.ID, Name: spec.Name})
	}
	return pathResult
}
