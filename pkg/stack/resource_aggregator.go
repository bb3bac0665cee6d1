// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stack

import (
	"fmt"
)

// =============================================================================
// STRUCTS
// =============================================================================

// ResourceRequirement is the summed resource envelope of a profile set.
type ResourceRequirement struct {
	MinCPU            int `json:"min_cpu"`
	MinMemoryGB       int `json:"min_memory_gb"`
	MinDiskGB         int `json:"min_disk_gb"`
	RecommendedCPU    int `json:"recommended_cpu"`
	RecommendedMemGB  int `json:"recommended_memory_gb"`
	RecommendedDiskGB int `json:"recommended_disk_gb"`
}

// add accumulates one profile's resource spec into the requirement.
func (r *ResourceRequirement) add(spec ResourceSpec) {
	r.MinCPU += spec.MinCPU
	r.MinMemoryGB += spec.MinMemoryGB
	r.MinDiskGB += spec.MinDiskGB
	r.RecommendedCPU += spec.RecommendedCPU
	r.RecommendedMemGB += spec.RecommendedMemGB
	r.RecommendedDiskGB += spec.RecommendedDiskGB
}

// SystemResources is a point-in-time snapshot of host capacity, supplied by
// the system probe or the caller.
type SystemResources struct {
	CPUCores int `json:"cpu_cores"`
	MemoryGB int `json:"memory_gb"`
	DiskGB   int `json:"disk_gb"`
}

// ShortfallSeverity distinguishes hard (below minimum) from soft (below
// recommended) resource gaps.
type ShortfallSeverity string

const (
	// ShortfallHard means the host is below the summed minimum.
	ShortfallHard ShortfallSeverity = "hard"

	// ShortfallSoft means the host meets the minimum but not the
	// recommendation.
	ShortfallSoft ShortfallSeverity = "soft"
)

// Shortfall describes one resource metric falling short of the requirement.
type Shortfall struct {
	Resource    string            `json:"resource"` // cpu, memory, disk
	Severity    ShortfallSeverity `json:"severity"`
	Required    int               `json:"required"`
	Recommended int               `json:"recommended"`
	Available   int               `json:"available"`
	Message     string            `json:"message"`
}

// SufficiencyReport is the outcome of comparing a requirement against a
// system snapshot. Sufficient is false only when a hard shortfall exists;
// soft shortfalls are sizing guidance.
type SufficiencyReport struct {
	Sufficient bool        `json:"sufficient"`
	Shortfalls []Shortfall `json:"shortfalls,omitempty"`
}

// HardShortfalls returns only the shortfalls below minimum.
func (r SufficiencyReport) HardShortfalls() []Shortfall {
	var hard []Shortfall
	for _, s := range r.Shortfalls {
		if s.Severity == ShortfallHard {
			hard = append(hard, s)
		}
	}
	return hard
}

// =============================================================================
// INTERFACES
// =============================================================================

// ResourceAggregator sums profile resource envelopes and checks them against
// host capacity.
//
// # Description
//
// Aggregation is deliberately conservative: resource costs are summed across
// every profile in the set with no deduplication for shared services. A
// service counted by two profiles inflates the estimate; the installer never
// runs it twice, so the estimate errs toward safety margin.
//
// Both operations are pure functions of their inputs.
type ResourceAggregator interface {
	// Aggregate sums min and recommended resources across profile ids.
	//
	// # Outputs
	//
	//   - ResourceRequirement: independent min and recommended sums.
	//   - error: wrapped ErrProfileNotFound for unknown ids.
	Aggregate(profiles []string) (ResourceRequirement, error)

	// CheckSufficiency compares a requirement against a host snapshot.
	// Metrics below minimum are hard shortfalls; between minimum and
	// recommended are soft shortfalls.
	CheckSufficiency(req ResourceRequirement, system SystemResources) SufficiencyReport
}

// =============================================================================
// DEFAULT IMPLEMENTATION
// =============================================================================

// DefaultResourceAggregator aggregates against an explicit catalog handle.
type DefaultResourceAggregator struct {
	catalog *Catalog
}

// NewDefaultResourceAggregator creates an aggregator bound to a catalog.
func NewDefaultResourceAggregator(catalog *Catalog) (*DefaultResourceAggregator, error) {
	if catalog == nil {
		return nil, fmt.Errorf("%w: catalog", ErrNilDependency)
	}
	return &DefaultResourceAggregator{catalog: catalog}, nil
}

// Aggregate implements ResourceAggregator.
func (a *DefaultResourceAggregator) Aggregate(profiles []string) (ResourceRequirement, error) {
	var req ResourceRequirement
	for _, id := range dedupeStrings(profiles) {
		profile, err := a.catalog.Get(id)
		if err != nil {
			return ResourceRequirement{}, err
		}
		req.add(profile.Resources)
	}
	return req, nil
}

// CheckSufficiency implements ResourceAggregator.
func (a *DefaultResourceAggregator) CheckSufficiency(req ResourceRequirement, system SystemResources) SufficiencyReport {
	report := SufficiencyReport{Sufficient: true}

	metrics := []struct {
		name        string
		unit        string
		min         int
		recommended int
		available   int
	}{
		{"cpu", "cores", req.MinCPU, req.RecommendedCPU, system.CPUCores},
		{"memory", "GB", req.MinMemoryGB, req.RecommendedMemGB, system.MemoryGB},
		{"disk", "GB", req.MinDiskGB, req.RecommendedDiskGB, system.DiskGB},
	}

	for _, m := range metrics {
		switch {
		case m.available < m.min:
			report.Sufficient = false
			report.Shortfalls = append(report.Shortfalls, Shortfall{
				Resource:    m.name,
				Severity:    ShortfallHard,
				Required:    m.min,
				Recommended: m.recommended,
				Available:   m.available,
				Message: fmt.Sprintf("%s below minimum: %d %s available, %d %s required",
					m.name, m.available, m.unit, m.min, m.unit),
			})
		case m.available < m.recommended:
			report.Shortfalls = append(report.Shortfalls, Shortfall{
				Resource:    m.name,
				Severity:    ShortfallSoft,
				Required:    m.min,
				Recommended: m.recommended,
				Available:   m.available,
				Message: fmt.Sprintf("%s below recommended: %d %s available, %d %s recommended",
					m.name, m.available, m.unit, m.recommended, m.unit),
			})
		}
	}

	return report
}

// =============================================================================
// MOCK IMPLEMENTATION
// =============================================================================

// MockResourceAggregator implements ResourceAggregator for testing.
type MockResourceAggregator struct {
	AggregateFunc        func(profiles []string) (ResourceRequirement, error)
	CheckSufficiencyFunc func(req ResourceRequirement, system SystemResources) SufficiencyReport

	AggregateCalls [][]string
}

// Aggregate implements ResourceAggregator.
func (m *MockResourceAggregator) Aggregate(profiles []string) (ResourceRequirement, error) {
	m.AggregateCalls = append(m.AggregateCalls, append([]string(nil), profiles...))
	if m.AggregateFunc != nil {
		return m.AggregateFunc(profiles)
	}
	return ResourceRequirement{}, nil
}

// CheckSufficiency implements ResourceAggregator.
func (m *MockResourceAggregator) CheckSufficiency(req ResourceRequirement, system SystemResources) SufficiencyReport {
	if m.CheckSufficiencyFunc != nil {
		return m.CheckSufficiencyFunc(req, system)
	}
	return SufficiencyReport{Sufficient: true}
}

// =============================================================================
// COMPILE-TIME CHECKS
// =============================================================================

var (
	_ ResourceAggregator = (*DefaultResourceAggregator)(nil)
	_ ResourceAggregator = (*MockResourceAggregator)(nil)
)
