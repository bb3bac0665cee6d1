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

// HandleListTemplates returns the template registry in display order.
func HandleListTemplates(sync stack.ConfigSynchronizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"templates": sync.Templates()})
	}
}

// HandlePreviewTemplate renders the changes a template would apply to
// the current stack configuration. Pure: nothing is written.
func HandlePreviewTemplate(sync stack.ConfigSynchronizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.PreviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		current, err := sync.LoadStackEnv()
		if err != nil {
			slog.Error("Failed to load stack env", "error", err)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		result, err := sync.ApplyTemplate(req.Template, current, req.Overrides)
		if err != nil {
			if errors.Is(err, stack.ErrUnknownTemplate) {
				c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: err.Error()})
				return
			}
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		c.JSON(http.StatusOK, result)
	}
}
