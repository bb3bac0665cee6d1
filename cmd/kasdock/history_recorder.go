// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kasdock/kasdock/cmd/kasdock/config"
	"github.com/kasdock/kasdock/pkg/stack"
)

// =============================================================================
// Error Definitions
// =============================================================================

var (
	// ErrHistoryDisabled is returned when constructing a recorder from a
	// config with history turned off.
	ErrHistoryDisabled = errors.New("history recording is disabled")

	// ErrHistoryUnreachable is returned when the InfluxDB endpoint does
	// not pass its health check.
	ErrHistoryUnreachable = errors.New("history backend is unreachable")
)

// Measurement names in the history bucket.
const (
	measurementLifecycle = "lifecycle"
	measurementProbe     = "dependency_probe"
)

// =============================================================================
// Types
// =============================================================================

// HistoryEntry is one lifecycle record read back from the history bucket.
type HistoryEntry struct {
	Time     time.Time `json:"time"`
	Type     string    `json:"type"`
	Message  string    `json:"message,omitempty"`
	Profiles []string  `json:"profiles,omitempty"`
}

// =============================================================================
// Interface Definition
// =============================================================================

// HistoryRecorder persists lifecycle events and probe outcomes to a
// time-series backend. Recording is opt-in; the stack manager treats a
// nil recorder as "recording off" and recorder failures as non-fatal.
type HistoryRecorder interface {
	// RecordLifecycle writes one lifecycle event.
	RecordLifecycle(ctx context.Context, event StateEvent) error

	// RecordProbes writes one point per dependency probe in the report.
	RecordProbes(ctx context.Context, report *stack.CheckReport) error

	// RecentEvents returns lifecycle events within the window,
	// newest first.
	RecentEvents(ctx context.Context, window time.Duration) ([]HistoryEntry, error)

	// Close flushes and releases the client.
	Close()
}

// =============================================================================
// InfluxDB Implementation
// =============================================================================

// InfluxHistoryRecorder implements HistoryRecorder against InfluxDB 2.x.
type InfluxHistoryRecorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	bucket   string
}

// NewInfluxHistoryRecorder connects to the configured InfluxDB and
// verifies it is healthy.
//
// # Description
//
// One health probe, no retry loop: a CLI invocation should fail fast
// and let the user decide whether to drop --record.
//
// # Inputs
//
//   - ctx: Bounds the health probe
//   - cfg: History section of the kasdock config
//
// # Outputs
//
//   - *InfluxHistoryRecorder: Connected recorder. Caller must Close.
//   - error: ErrHistoryDisabled, ErrHistoryUnreachable, or config errors
func NewInfluxHistoryRecorder(ctx context.Context, cfg config.HistoryConfig) (*InfluxHistoryRecorder, error) {
	if !cfg.Enabled {
		return nil, ErrHistoryDisabled
	}
	if cfg.URL == "" {
		return nil, errors.New("history.url is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("history.token is required")
	}
	if cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.New("history.org and history.bucket are required")
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := client.Health(healthCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrHistoryUnreachable, err)
	}
	if health.Status != "pass" {
		client.Close()
		msg := "status " + string(health.Status)
		if health.Message != nil {
			msg = *health.Message
		}
		return nil, fmt.Errorf("%w: %s", ErrHistoryUnreachable, msg)
	}

	return &InfluxHistoryRecorder{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		queryAPI: client.QueryAPI(cfg.Org),
		bucket:   cfg.Bucket,
	}, nil
}

// RecordLifecycle implements HistoryRecorder.
func (r *InfluxHistoryRecorder) RecordLifecycle(ctx context.Context, event StateEvent) error {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	p := influxdb2.NewPoint(
		measurementLifecycle,
		map[string]string{
			"type": string(event.Type),
		},
		map[string]interface{}{
			"id":       event.ID,
			"message":  event.Message,
			"profiles": strings.Join(event.Profiles, ","),
		},
		ts,
	)

	if err := r.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("record lifecycle event: %w", err)
	}
	return nil
}

// RecordProbes implements HistoryRecorder.
func (r *InfluxHistoryRecorder) RecordProbes(ctx context.Context, report *stack.CheckReport) error {
	if report == nil || len(report.Dependencies) == 0 {
		return nil
	}

	now := time.Now().UTC()
	points := make([]*write.Point, 0, len(report.Dependencies))
	for _, dep := range report.Dependencies {
		points = append(points, influxdb2.NewPoint(
			measurementProbe,
			map[string]string{
				"service":    report.Service,
				"dependency": dep.Dependency.Name,
				"kind":       string(dep.Dependency.Kind),
				"critical":   fmt.Sprintf("%t", dep.Dependency.Critical),
			},
			map[string]interface{}{
				"reachable":  dep.Reachable,
				"latency_ms": dep.LatencyMs,
				"error":      dep.Error,
			},
			now,
		))
	}

	if err := r.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("record probe results: %w", err)
	}
	return nil
}

// RecentEvents implements HistoryRecorder.
func (r *InfluxHistoryRecorder) RecentEvents(ctx context.Context, window time.Duration) ([]HistoryEntry, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}

	query := fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: -%ds)
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
		  |> sort(columns: ["_time"], desc: true)
	`, r.bucket, int(window.Seconds()), measurementLifecycle)

	result, err := r.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	if result == nil {
		return []HistoryEntry{}, nil
	}

	entries := []HistoryEntry{}
	for result.Next() {
		record := result.Record()
		entry := HistoryEntry{Time: record.Time()}

		if t, ok := record.ValueByKey("type").(string); ok {
			entry.Type = t
		}
		if m, ok := record.ValueByKey("message").(string); ok {
			entry.Message = m
		}
		if p, ok := record.ValueByKey("profiles").(string); ok && p != "" {
			entry.Profiles = strings.Split(p, ",")
		}
		entries = append(entries, entry)
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("read history result: %w", result.Err())
	}

	return entries, nil
}

// Close implements HistoryRecorder.
func (r *InfluxHistoryRecorder) Close() {
	r.client.Close()
}

// =============================================================================
// Mock Implementation
// =============================================================================

// MockHistoryRecorder is a test double for HistoryRecorder.
type MockHistoryRecorder struct {
	RecordLifecycleFunc func(context.Context, StateEvent) error
	RecordProbesFunc    func(context.Context, *stack.CheckReport) error
	RecentEventsFunc    func(context.Context, time.Duration) ([]HistoryEntry, error)

	LifecycleEvents []StateEvent
	ProbeReports    []*stack.CheckReport
	mu              sync.Mutex
}

// RecordLifecycle implements HistoryRecorder.
func (m *MockHistoryRecorder) RecordLifecycle(ctx context.Context, event StateEvent) error {
	m.mu.Lock()
	m.LifecycleEvents = append(m.LifecycleEvents, event)
	m.mu.Unlock()

	if m.RecordLifecycleFunc != nil {
		return m.RecordLifecycleFunc(ctx, event)
	}
	return nil
}

// RecordProbes implements HistoryRecorder.
func (m *MockHistoryRecorder) RecordProbes(ctx context.Context, report *stack.CheckReport) error {
	m.mu.Lock()
	m.ProbeReports = append(m.ProbeReports, report)
	m.mu.Unlock()

	if m.RecordProbesFunc != nil {
		return m.RecordProbesFunc(ctx, report)
	}
	return nil
}

// RecentEvents implements HistoryRecorder.
func (m *MockHistoryRecorder) RecentEvents(ctx context.Context, window time.Duration) ([]HistoryEntry, error) {
	if m.RecentEventsFunc != nil {
		return m.RecentEventsFunc(ctx, window)
	}
	return []HistoryEntry{}, nil
}

// Close implements HistoryRecorder.
func (m *MockHistoryRecorder) Close() {}

// =============================================================================
// Compile-Time Checks
// =============================================================================

var (
	_ HistoryRecorder = (*InfluxHistoryRecorder)(nil)
	_ HistoryRecorder = (*MockHistoryRecorder)(nil)
)
