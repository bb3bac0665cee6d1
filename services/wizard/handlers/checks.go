// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kasdock/kasdock/pkg/stack"
	"github.com/kasdock/kasdock/pkg/validation"
	"github.com/kasdock/kasdock/services/wizard/datatypes"
	"github.com/kasdock/kasdock/services/wizard/telemetry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// checkServices resolves a profile selection down to the services that
// declare external dependencies, in startup order.
func checkServices(resolver stack.DependencyResolver, checker stack.ExternalChecker, profiles []string) ([]string, error) {
	resolved, err := resolver.Resolve(profiles)
	if err != nil {
		return nil, err
	}

	services := make([]string, 0)
	for _, service := range resolved.ServiceStartupOrder() {
		if len(checker.DependenciesFor(service)) > 0 {
			services = append(services, service)
		}
	}
	return services, nil
}

// HandleRunChecks probes the external dependencies of a selection and
// returns every per-service report in one response.
func HandleRunChecks(resolver stack.DependencyResolver, checker stack.ExternalChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ChecksRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		services, err := checkServices(resolver, checker, req.Profiles)
		if err != nil {
			if errors.Is(err, stack.ErrProfileNotFound) {
				c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		ctx, span := telemetry.StartSpan(c.Request.Context(), "wizard.checks", "RunChecks",
			trace.WithAttributes(attribute.StringSlice("profiles", req.Profiles)))
		defer span.End()

		resp := datatypes.ChecksResponse{
			Valid:   true,
			Reports: make([]*stack.CheckReport, 0, len(services)),
		}
		for _, service := range services {
			report, err := checker.CheckServiceDependencies(ctx, service, stack.CheckOptions{})
			if err != nil {
				slog.Error("Dependency check failed", "service", service, "error", err)
				telemetry.RecordError(span, err, attribute.String("service", service))
				c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: err.Error()})
				return
			}
			if !report.Valid {
				resp.Valid = false
			}
			resp.Reports = append(resp.Reports, report)
		}

		c.JSON(http.StatusOK, resp)
	}
}

// wsCheckRequest is one client message on the checks stream.
type wsCheckRequest struct {
	Action   string   `json:"action"`
	Profiles []string `json:"profiles,omitempty"`
}

// HandleChecksWebSocket streams dependency check reports service by
// service, so the UI can render progress instead of waiting for the
// whole batch. The client sends {"action":"check","profiles":[...]}
// and receives one check_report message per service, then a
// check_complete summary.
func HandleChecksWebSocket(resolver stack.DependencyResolver, checker stack.ExternalChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		sessionID := uuid.New().String()
		slog.Info("Checks websocket session started", "sessionID", sessionID)

		if err := sendJSON(ws, map[string]interface{}{
			"action":    "session_created",
			"sessionId": sessionID,
		}); err != nil {
			return
		}

		for {
			var req wsCheckRequest
			if err := ws.ReadJSON(&req); err != nil {
				slog.Info("Checks websocket client disconnected", "error", err.Error())
				break
			}
			if req.Action != "check" {
				if err := sendJSON(ws, map[string]interface{}{
					"action": "error",
					"error":  "unknown action: " + req.Action,
				}); err != nil {
					return
				}
				continue
			}
			if err := validation.ValidateProfileIDs(req.Profiles); err != nil {
				if err := sendJSON(ws, map[string]interface{}{
					"action": "error",
					"error":  err.Error(),
				}); err != nil {
					return
				}
				continue
			}

			if !streamChecks(c.Request.Context(), ws, resolver, checker, req.Profiles) {
				return
			}
		}
	}
}

// streamChecks runs one check batch over the socket. Returns false when
// the socket is gone and the handler should stop.
func streamChecks(ctx context.Context, ws *websocket.Conn, resolver stack.DependencyResolver, checker stack.ExternalChecker, profiles []string) bool {
	services, err := checkServices(resolver, checker, profiles)
	if err != nil {
		return sendJSON(ws, map[string]interface{}{
			"action": "error",
			"error":  err.Error(),
		}) == nil
	}

	if err := sendJSON(ws, map[string]interface{}{
		"action":   "check_started",
		"services": services,
	}); err != nil {
		return false
	}

	valid := true
	for _, service := range services {
		report, err := checker.CheckServiceDependencies(ctx, service, stack.CheckOptions{})
		if err != nil {
			slog.Error("Dependency check failed", "service", service, "error", err)
			if err := sendJSON(ws, map[string]interface{}{
				"action":  "error",
				"service": service,
				"error":   err.Error(),
			}); err != nil {
				return false
			}
			continue
		}
		if !report.Valid {
			valid = false
		}
		if err := sendJSON(ws, map[string]interface{}{
			"action": "check_report",
			"report": report,
		}); err != nil {
			return false
		}
	}

	return sendJSON(ws, map[string]interface{}{
		"action": "check_complete",
		"valid":  valid,
	}) == nil
}
