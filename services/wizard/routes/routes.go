// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the wizard API endpoints onto a gin router.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kasdock/kasdock/services/wizard"
	"github.com/kasdock/kasdock/services/wizard/handlers"
)

// RequestID attaches a request id to every response, generating one when
// the client did not supply X-Request-ID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// SetupRoutes registers every wizard endpoint.
func SetupRoutes(router *gin.Engine, deps *wizard.Deps) {
	router.GET("/health", handlers.HealthCheck)

	v1 := router.Group("/v1")
	{
		profiles := v1.Group("/profiles")
		{
			profiles.GET("", handlers.HandleListProfiles(deps.Catalog))
			profiles.GET("/graph", handlers.HandleGetGraph(deps.Catalog))
			profiles.GET("/:id", handlers.HandleGetProfile(deps.Catalog))
		}

		validate := v1.Group("/validate")
		{
			validate.POST("/selection", handlers.HandleValidateSelection(deps.Validator, deps.Resolver))
			validate.POST("/addition", handlers.HandleValidateAddition(deps.Validator))
			validate.POST("/removal", handlers.HandleValidateRemoval(deps.Validator))
		}

		v1.POST("/resources", handlers.HandleResources(deps.Aggregator, deps.Probe, deps.DataDir))

		config := v1.Group("/config")
		{
			config.GET("/templates", handlers.HandleListTemplates(deps.Synchronizer))
			config.POST("/preview", handlers.HandlePreviewTemplate(deps.Synchronizer))
		}

		checks := v1.Group("/checks")
		{
			checks.POST("", handlers.HandleRunChecks(deps.Resolver, deps.Checker))
			checks.GET("/ws", handlers.HandleChecksWebSocket(deps.Resolver, deps.Checker))
		}
	}
}
