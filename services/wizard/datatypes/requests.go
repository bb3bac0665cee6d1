// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the wizard API request and response shapes.
package datatypes

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/kasdock/kasdock/pkg/stack"
	"github.com/kasdock/kasdock/pkg/validation"
)

// profileID validates a profile id against the shared naming rules, so
// malformed ids fail at binding instead of deep inside the catalog.
func profileID(fl validator.FieldLevel) bool {
	return validation.ValidateProfileID(fl.Field().String()) == nil
}

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		// Registration only fails for an empty tag name.
		_ = v.RegisterValidation("profileid", profileID)
	}
}

// =============================================================================
// Requests
// =============================================================================

// SelectionRequest validates a full profile selection.
type SelectionRequest struct {
	Profiles []string `json:"profiles" binding:"required,min=1,dive,profileid"`
}

// AdditionRequest validates adding one profile to an installed set.
type AdditionRequest struct {
	Profile string   `json:"profile" binding:"required,profileid"`
	Current []string `json:"current" binding:"omitempty,dive,profileid"`
}

// RemovalRequest validates removing one profile from an installed set.
type RemovalRequest struct {
	Profile string   `json:"profile" binding:"required,profileid"`
	Current []string `json:"current" binding:"required,min=1,dive,profileid"`
}

// ResourcesRequest sizes a selection, against the supplied host snapshot
// or the probed one when System is absent.
type ResourcesRequest struct {
	Profiles []string               `json:"profiles" binding:"required,min=1,dive,profileid"`
	System   *stack.SystemResources `json:"system,omitempty"`
}

// PreviewRequest renders the config changes a template would apply.
type PreviewRequest struct {
	Template  string            `json:"template" binding:"required"`
	Overrides map[string]string `json:"overrides,omitempty"`
}

// ChecksRequest probes the external dependencies of a selection.
type ChecksRequest struct {
	Profiles []string `json:"profiles" binding:"required,min=1,dive,profileid"`
}

// =============================================================================
// Responses
// =============================================================================

// GraphNode is one profile in the dependency graph.
type GraphNode struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// GraphEdge is one relationship between two profiles.
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"` // dependency, prerequisite, conflict
}

// GraphResponse is the full catalog relationship graph.
type GraphResponse struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// ResolutionView augments a validation result with the resolved startup
// order, so the UI can show what would actually be installed.
type ResolutionView struct {
	StartupOrder []string `json:"startup_order,omitempty"`
	Required     []string `json:"required,omitempty"`
	Services     []string `json:"services,omitempty"`
}

// ResourcesResponse reports the aggregate envelope and host fit.
type ResourcesResponse struct {
	Requirement stack.ResourceRequirement `json:"requirement"`
	System      stack.SystemResources     `json:"system"`
	Report      stack.SufficiencyReport   `json:"report"`
}

// ChecksResponse bundles per-service dependency reports.
type ChecksResponse struct {
	Valid   bool                 `json:"valid"`
	Reports []*stack.CheckReport `json:"reports"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
