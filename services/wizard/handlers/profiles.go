// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the wizard API endpoints.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kasdock/kasdock/pkg/stack"
	"github.com/kasdock/kasdock/pkg/validation"
	"github.com/kasdock/kasdock/services/wizard/datatypes"
)

// HandleListProfiles returns every catalog profile in declaration order.
func HandleListProfiles(catalog *stack.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"profiles": catalog.Profiles()})
	}
}

// HandleGetProfile returns a single profile by id.
func HandleGetProfile(catalog *stack.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := validation.ValidateProfileID(id); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		profile, err := catalog.Get(id)
		if err != nil {
			if errors.Is(err, stack.ErrProfileNotFound) {
				c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		c.JSON(http.StatusOK, profile)
	}
}

// HandleGetGraph returns the full profile relationship graph: one node
// per profile, edges for dependencies, prerequisites, and conflicts.
// Conflict edges are emitted once per pair, from the profile that
// declares them.
func HandleGetGraph(catalog *stack.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		profiles := catalog.Profiles()

		resp := datatypes.GraphResponse{
			Nodes: make([]datatypes.GraphNode, 0, len(profiles)),
			Edges: make([]datatypes.GraphEdge, 0),
		}
		for _, p := range profiles {
			resp.Nodes = append(resp.Nodes, datatypes.GraphNode{
				ID:       p.ID,
				Name:     p.Name,
				Category: string(p.Category),
			})
			for _, dep := range p.Dependencies {
				resp.Edges = append(resp.Edges, datatypes.GraphEdge{
					From: p.ID, To: dep, Kind: "dependency",
				})
			}
			for _, pre := range p.Prerequisites {
				resp.Edges = append(resp.Edges, datatypes.GraphEdge{
					From: p.ID, To: pre, Kind: "prerequisite",
				})
			}
			for _, conflict := range p.Conflicts {
				resp.Edges = append(resp.Edges, datatypes.GraphEdge{
					From: p.ID, To: conflict, Kind: "conflict",
				})
			}
		}

		c.JSON(http.StatusOK, resp)
	}
}
