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
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kasdock/kasdock/cmd/kasdock/config"
	"github.com/kasdock/kasdock/pkg/stack"
)

// =============================================================================
// Test Helpers
// =============================================================================

// fakeInflux is a minimal InfluxDB 2.x endpoint: health plus line-protocol
// capture.
type fakeInflux struct {
	healthStatus string

	mu     sync.Mutex
	writes []string
}

func (f *fakeInflux) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"influxdb","status":"` + f.healthStatus + `","checks":[]}`))
	})
	mux.HandleFunc("/api/v2/write", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.writes = append(f.writes, string(body))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (f *fakeInflux) captured() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.writes, "\n")
}

func historyConfig(url string) config.HistoryConfig {
	return config.HistoryConfig{
		Enabled: true,
		URL:     url,
		Token:   "test-token",
		Org:     "kasdock",
		Bucket:  "kasdock-events",
	}
}

// =============================================================================
// Constructor Tests
// =============================================================================

// TestNewInfluxHistoryRecorder_Validation verifies config guards.
func TestNewInfluxHistoryRecorder_Validation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()

		cfg := historyConfig("http://localhost:8086")
		cfg.Enabled = false

		if _, err := NewInfluxHistoryRecorder(ctx, cfg); !errors.Is(err, ErrHistoryDisabled) {
			t.Errorf("expected ErrHistoryDisabled, got: %v", err)
		}
	})

	t.Run("missing url", func(t *testing.T) {
		t.Parallel()

		cfg := historyConfig("")
		if _, err := NewInfluxHistoryRecorder(ctx, cfg); err == nil {
			t.Error("expected error for missing url")
		}
	})

	t.Run("missing token", func(t *testing.T) {
		t.Parallel()

		cfg := historyConfig("http://localhost:8086")
		cfg.Token = ""
		if _, err := NewInfluxHistoryRecorder(ctx, cfg); err == nil {
			t.Error("expected error for missing token")
		}
	})

	t.Run("missing org and bucket", func(t *testing.T) {
		t.Parallel()

		cfg := historyConfig("http://localhost:8086")
		cfg.Org = ""
		if _, err := NewInfluxHistoryRecorder(ctx, cfg); err == nil {
			t.Error("expected error for missing org")
		}
	})
}

// TestNewInfluxHistoryRecorder_UnhealthyBackend verifies the health gate.
func TestNewInfluxHistoryRecorder_UnhealthyBackend(t *testing.T) {
	t.Parallel()

	fake := &fakeInflux{healthStatus: "fail"}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	_, err := NewInfluxHistoryRecorder(context.Background(), historyConfig(server.URL))
	if !errors.Is(err, ErrHistoryUnreachable) {
		t.Errorf("expected ErrHistoryUnreachable, got: %v", err)
	}
}

// =============================================================================
// Recording Tests
// =============================================================================

// TestInfluxHistoryRecorder_RecordLifecycle verifies the lifecycle write.
func TestInfluxHistoryRecorder_RecordLifecycle(t *testing.T) {
	t.Parallel()

	fake := &fakeInflux{healthStatus: "pass"}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	recorder, err := NewInfluxHistoryRecorder(context.Background(), historyConfig(server.URL))
	if err != nil {
		t.Fatalf("expected healthy backend, got: %v", err)
	}
	defer recorder.Close()

	event := StateEvent{
		ID:        "evt-1",
		Type:      EventInstall,
		Profiles:  []string{"core", "monitoring"},
		Message:   "installed profiles",
		Timestamp: time.Now().UTC(),
	}
	if err := recorder.RecordLifecycle(context.Background(), event); err != nil {
		t.Fatalf("record: %v", err)
	}

	captured := fake.captured()
	if !strings.Contains(captured, "lifecycle") {
		t.Errorf("expected lifecycle measurement, got: %s", captured)
	}
	if !strings.Contains(captured, "type=install") {
		t.Errorf("expected type tag, got: %s", captured)
	}
	if !strings.Contains(captured, `core\,monitoring`) && !strings.Contains(captured, "core,monitoring") {
		t.Errorf("expected joined profiles field, got: %s", captured)
	}
}

// TestInfluxHistoryRecorder_RecordProbes verifies per-dependency points.
func TestInfluxHistoryRecorder_RecordProbes(t *testing.T) {
	t.Parallel()

	fake := &fakeInflux{healthStatus: "pass"}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	recorder, err := NewInfluxHistoryRecorder(context.Background(), historyConfig(server.URL))
	if err != nil {
		t.Fatal(err)
	}
	defer recorder.Close()

	report := &stack.CheckReport{
		Service: "kaspa-explorer",
		Valid:   false,
		Dependencies: []stack.DependencyResult{
			{
				Dependency: stack.ExternalDependency{Name: "kaspa-rest-api", Kind: stack.KindHTTPAPI, Critical: true},
				Reachable:  true,
				LatencyMs:  12,
			},
			{
				Dependency: stack.ExternalDependency{Name: "market-data", Kind: stack.KindHTTPAPI},
				Reachable:  false,
				Error:      "no such host",
			},
		},
	}
	if err := recorder.RecordProbes(context.Background(), report); err != nil {
		t.Fatalf("record: %v", err)
	}

	captured := fake.captured()
	if !strings.Contains(captured, "dependency_probe") {
		t.Errorf("expected probe measurement, got: %s", captured)
	}
	if !strings.Contains(captured, "dependency=kaspa-rest-api") || !strings.Contains(captured, "dependency=market-data") {
		t.Errorf("expected one point per dependency, got: %s", captured)
	}

	// Nil and empty reports are no-ops.
	if err := recorder.RecordProbes(context.Background(), nil); err != nil {
		t.Errorf("expected nil report no-op, got: %v", err)
	}
	if err := recorder.RecordProbes(context.Background(), &stack.CheckReport{Service: "x"}); err != nil {
		t.Errorf("expected empty report no-op, got: %v", err)
	}
}

// =============================================================================
// Mock Tests
// =============================================================================

// TestMockHistoryRecorder verifies recording and defaults.
func TestMockHistoryRecorder(t *testing.T) {
	t.Parallel()

	mock := &MockHistoryRecorder{}
	ctx := context.Background()

	if err := mock.RecordLifecycle(ctx, StateEvent{Type: EventRemove}); err != nil {
		t.Fatal(err)
	}
	if err := mock.RecordProbes(ctx, &stack.CheckReport{Service: "grafana"}); err != nil {
		t.Fatal(err)
	}

	if len(mock.LifecycleEvents) != 1 || mock.LifecycleEvents[0].Type != EventRemove {
		t.Errorf("unexpected lifecycle recording: %+v", mock.LifecycleEvents)
	}
	if len(mock.ProbeReports) != 1 || mock.ProbeReports[0].Service != "grafana" {
		t.Errorf("unexpected probe recording: %+v", mock.ProbeReports)
	}

	entries, err := mock.RecentEvents(ctx, time.Hour)
	if err != nil || entries == nil {
		t.Errorf("expected empty slice default, got: %+v, %v", entries, err)
	}
}
