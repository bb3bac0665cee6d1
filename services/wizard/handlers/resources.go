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

// HandleResources aggregates the resource envelope of a selection and
// checks it against the host. The client may supply its own host
// snapshot; otherwise the server probes the machine it runs on.
func HandleResources(aggregator stack.ResourceAggregator, probe stack.SystemProbe, dataDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ResourcesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		requirement, err := aggregator.Aggregate(req.Profiles)
		if err != nil {
			if errors.Is(err, stack.ErrProfileNotFound) {
				c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		var system stack.SystemResources
		if req.System != nil {
			system = *req.System
		} else {
			system, err = probe.Detect(dataDir)
			if err != nil {
				slog.Error("System probe failed", "error", err)
				c.JSON(http.StatusServiceUnavailable, datatypes.ErrorResponse{Error: err.Error()})
				return
			}
		}

		report := aggregator.CheckSufficiency(requirement, system)

		c.JSON(http.StatusOK, datatypes.ResourcesResponse{
			Requirement: requirement,
			System:      system,
			Report:      report,
		})
	}
}
