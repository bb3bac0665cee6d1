// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics contains pre-defined metrics for the wizard service.
//
// # Thread Safety
//
// Safe for concurrent use after creation.
type Metrics struct {
	// HTTPRequestsTotal counts total HTTP requests by method, route, and status.
	HTTPRequestsTotal metric.Int64Counter

	// HTTPRequestDuration records HTTP request duration in seconds.
	HTTPRequestDuration metric.Float64Histogram

	// ValidationsTotal counts validation requests by kind (selection,
	// addition, removal).
	ValidationsTotal metric.Int64Counter

	// DependencyChecksTotal counts external dependency check batches by
	// outcome.
	DependencyChecksTotal metric.Int64Counter

	// CheckSessionsActive tracks open check websocket sessions.
	CheckSessionsActive metric.Int64UpDownCounter
}

// NewMetrics registers all wizard metrics with the provided meter.
//
// # Inputs
//
//   - meter: The OTel meter to register against.
//
// # Outputs
//
//   - *Metrics: Instance with every instrument initialized.
//   - error: Non-nil if an instrument registration fails.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"wizard_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_requests_total: %w", err)
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"wizard_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_request_duration: %w", err)
	}

	m.ValidationsTotal, err = meter.Int64Counter(
		"wizard_validations_total",
		metric.WithDescription("Total validation requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create validations_total: %w", err)
	}

	m.DependencyChecksTotal, err = meter.Int64Counter(
		"wizard_dependency_checks_total",
		metric.WithDescription("Total external dependency check batches"),
		metric.WithUnit("{batch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create dependency_checks_total: %w", err)
	}

	m.CheckSessionsActive, err = meter.Int64UpDownCounter(
		"wizard_check_sessions_active",
		metric.WithDescription("Open check websocket sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create check_sessions_active: %w", err)
	}

	return m, nil
}

// GinMiddleware records request count and duration per route.
//
// The route template is used instead of the raw path so profile ids do
// not explode metric cardinality.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", route),
			attribute.Int("status", c.Writer.Status()),
		)
		m.HTTPRequestsTotal.Add(c.Request.Context(), 1, attrs)
		m.HTTPRequestDuration.Record(c.Request.Context(), time.Since(start).Seconds(), attrs)
	}
}
