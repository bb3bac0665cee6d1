// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kasdock/kasdock/pkg/stack"
	"github.com/kasdock/kasdock/services/wizard/datatypes"
)

// HandleValidateSelection validates a full profile selection and, when
// it resolves cleanly, includes the resolved startup order so the UI can
// show what an install would actually start.
func HandleValidateSelection(validator stack.DependencyValidator, resolver stack.DependencyResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.SelectionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		result, err := validator.ValidateSelection(req.Profiles)
		if err != nil {
			respondValidatorError(c, err)
			return
		}

		resp := gin.H{"result": result}
		if result.Valid {
			resolved, err := resolver.Resolve(req.Profiles)
			if err == nil {
				required := make([]string, 0)
				for _, id := range resolved.Profiles {
					if resolved.Required[id] {
						required = append(required, id)
					}
				}
				resp["resolution"] = datatypes.ResolutionView{
					StartupOrder: resolved.StartupOrder(),
					Required:     required,
					Services:     resolved.ServiceStartupOrder(),
				}
			}
		}

		c.JSON(http.StatusOK, resp)
	}
}

// HandleValidateAddition validates adding one profile to an installed set.
func HandleValidateAddition(validator stack.DependencyValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.AdditionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		result, err := validator.ValidateAddition(req.Profile, req.Current)
		if err != nil {
			respondValidatorError(c, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// HandleValidateRemoval validates removing one profile from an
// installed set, reporting dependents and shared services.
func HandleValidateRemoval(validator stack.DependencyValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.RemovalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		result, err := validator.ValidateRemoval(req.Profile, req.Current)
		if err != nil {
			respondValidatorError(c, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// respondValidatorError maps validator errors onto HTTP statuses. Unknown
// profiles are a client problem; everything else is ours.
func respondValidatorError(c *gin.Context, err error) {
	if errors.Is(err, stack.ErrProfileNotFound) {
		c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: err.Error()})
		return
	}
	slog.Error("Validation failed", "error", err)
	c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: err.Error()})
}
