// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package stack tests for the external dependency checker.

These tests verify:
  - Option normalization and timeout clamping
  - Concurrent fan-out with per-dependency results
  - Critical-failure aggregation
  - Error-signature guidance classification
  - Target safety guard
*/
package stack

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// testChecker builds a checker over a custom dependency table.
func testChecker(deps map[string][]ExternalDependency) *DefaultExternalChecker {
	checker := NewDefaultExternalChecker()
	checker.deps = deps
	return checker
}

// =============================================================================
// Option Tests
// =============================================================================

// TestCheckOptions_Normalized verifies defaults and timeout clamping.
func TestCheckOptions_Normalized(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   CheckOptions
		want CheckOptions
	}{
		{
			name: "zero values take defaults",
			in:   CheckOptions{},
			want: CheckOptions{Timeout: 8 * time.Second, Concurrency: 4, RatePerSecond: 8},
		},
		{
			name: "timeout clamped up",
			in:   CheckOptions{Timeout: time.Second, Concurrency: 2, RatePerSecond: 1},
			want: CheckOptions{Timeout: 5 * time.Second, Concurrency: 2, RatePerSecond: 1},
		},
		{
			name: "timeout clamped down",
			in:   CheckOptions{Timeout: time.Minute, Concurrency: 2, RatePerSecond: 1},
			want: CheckOptions{Timeout: 10 * time.Second, Concurrency: 2, RatePerSecond: 1},
		},
		{
			name: "in-window timeout kept",
			in:   CheckOptions{Timeout: 6 * time.Second, Concurrency: 1, RatePerSecond: 2},
			want: CheckOptions{Timeout: 6 * time.Second, Concurrency: 1, RatePerSecond: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.in.normalized(); got != tt.want {
				t.Errorf("expected %+v, got: %+v", tt.want, got)
			}
		})
	}
}

// =============================================================================
// Declaration Tests
// =============================================================================

// TestDependenciesFor verifies declaration lookup and copy semantics.
func TestDependenciesFor(t *testing.T) {
	t.Parallel()

	checker := NewDefaultExternalChecker()

	deps := checker.DependenciesFor("kaspa-explorer")
	if len(deps) != 2 {
		t.Fatalf("expected 2 declarations, got: %+v", deps)
	}
	deps[0].Name = "mutated"
	if checker.DependenciesFor("kaspa-explorer")[0].Name == "mutated" {
		t.Error("DependenciesFor leaked internal slice")
	}

	if got := checker.DependenciesFor("unknown"); len(got) != 0 {
		t.Errorf("expected empty slice for unknown service, got: %+v", got)
	}
}

// TestCheckServiceDependencies_UnknownService verifies the guard.
func TestCheckServiceDependencies_UnknownService(t *testing.T) {
	t.Parallel()

	checker := NewDefaultExternalChecker()

	_, err := checker.CheckServiceDependencies(context.Background(), "nope", DefaultCheckOptions())
	if !errors.Is(err, ErrUnknownService) {
		t.Errorf("expected ErrUnknownService, got: %v", err)
	}
}

// =============================================================================
// Probe Tests
// =============================================================================

// TestCheckServiceDependencies_AllReachable verifies the happy path against
// a live test server.
func TestCheckServiceDependencies_AllReachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := testChecker(map[string][]ExternalDependency{
		"svc": {
			{Name: "api", Kind: KindHTTPAPI, Target: server.URL, Critical: true},
			{Name: "docs", Kind: KindHTTPAPI, Target: server.URL, Critical: false},
		},
	})

	report, err := checker.CheckServiceDependencies(context.Background(), "svc", CheckOptions{})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !report.Valid {
		t.Errorf("expected Valid=true, got: %+v", report)
	}
	if report.Summary.Total != 2 || report.Summary.Reachable != 2 {
		t.Errorf("unexpected summary: %+v", report.Summary)
	}
	for _, r := range report.Dependencies {
		if !r.Reachable || r.Guidance != nil {
			t.Errorf("unexpected result: %+v", r)
		}
	}
}

// TestCheckServiceDependencies_CriticalFailure verifies Valid=false only for
// failing critical dependencies.
func TestCheckServiceDependencies_CriticalFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	t.Run("critical fails check", func(t *testing.T) {
		t.Parallel()

		checker := testChecker(map[string][]ExternalDependency{
			"svc": {{Name: "api", Kind: KindHTTPAPI, Target: server.URL, Critical: true}},
		})
		report, err := checker.CheckServiceDependencies(context.Background(), "svc", CheckOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if report.Valid {
			t.Error("expected Valid=false for failed critical dependency")
		}
		if report.Summary.CriticalFailed != 1 {
			t.Errorf("unexpected summary: %+v", report.Summary)
		}
		if report.Dependencies[0].Guidance == nil {
			t.Fatal("expected guidance on failure")
		}
		if report.Dependencies[0].Guidance.Severity != SeverityCritical {
			t.Errorf("expected critical severity, got: %s", report.Dependencies[0].Guidance.Severity)
		}
	})

	t.Run("non-critical is advisory", func(t *testing.T) {
		t.Parallel()

		checker := testChecker(map[string][]ExternalDependency{
			"svc": {{Name: "ticker", Kind: KindHTTPAPI, Target: server.URL, Critical: false}},
		})
		report, err := checker.CheckServiceDependencies(context.Background(), "svc", CheckOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if !report.Valid {
			t.Error("non-critical failures must not invalidate the check")
		}
		if report.Dependencies[0].Guidance.Severity != SeverityWarning {
			t.Errorf("expected warning severity, got: %s", report.Dependencies[0].Guidance.Severity)
		}
	})
}

// TestCheckServiceDependencies_CancelledContext verifies caller cancellation.
func TestCheckServiceDependencies_CancelledContext(t *testing.T) {
	t.Parallel()

	checker := testChecker(map[string][]ExternalDependency{
		"svc": {{Name: "api", Kind: KindHTTPAPI, Target: "http://example.invalid", Critical: true}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := checker.CheckServiceDependencies(ctx, "svc", CheckOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
}

// =============================================================================
// Safety Guard Tests
// =============================================================================

// TestCheckTargetSafety verifies metadata and link-local targets are refused.
func TestCheckTargetSafety(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		dep     ExternalDependency
		wantErr bool
	}{
		{
			name: "normal https target",
			dep:  ExternalDependency{Kind: KindHTTPAPI, Target: "https://api.kaspa.org/ping"},
		},
		{
			name: "normal rpc target",
			dep:  ExternalDependency{Kind: KindNodeRPC, Target: "kaspad:16110"},
		},
		{
			name:    "gcp metadata hostname",
			dep:     ExternalDependency{Kind: KindHTTPAPI, Target: "http://metadata.google.internal/computeMetadata"},
			wantErr: true,
		},
		{
			name:    "bare metadata hostname",
			dep:     ExternalDependency{Kind: KindHTTPAPI, Target: "http://metadata/latest"},
			wantErr: true,
		},
		{
			name:    "link-local address",
			dep:     ExternalDependency{Kind: KindHTTPAPI, Target: "http://169.254.169.254/latest"},
			wantErr: true,
		},
		{
			name:    "link-local rpc",
			dep:     ExternalDependency{Kind: KindNodeRPC, Target: "169.254.0.1:16110"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := checkTargetSafety(tt.dep)
			if tt.wantErr && !errors.Is(err, ErrUnsafeTarget) {
				t.Errorf("expected ErrUnsafeTarget, got: %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got: %v", err)
			}
		})
	}
}

// =============================================================================
// Guidance Classification Tests
// =============================================================================

// TestClassifyFailure verifies the error-signature to guidance table.
//
// # Description
//
// Each failure signature maps to a fixed remediation family: 5xx to
// try-later, 401/403 to auth, timeouts to connectivity, DNS failures to
// DNS guidance, plus dependency-kind fallback advice appended last.
func TestClassifyFailure(t *testing.T) {
	t.Parallel()

	httpDep := ExternalDependency{Name: "api", Kind: KindHTTPAPI,
		Target: "https://api.kaspa.org/ping", Critical: true, Description: "chain data"}

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"server error", &httpStatusError{Code: 503}, "transient"},
		{"unauthorized", &httpStatusError{Code: 401}, "unauthorized"},
		{"forbidden", &httpStatusError{Code: 403}, "unauthorized"},
		{"timeout", errors.New("context deadline exceeded"), "internet connection"},
		{"dns failure", errors.New("lookup api.kaspa.org: no such host"), "DNS"},
		{"refused", errors.New("dial tcp: connection refused"), "nothing is listening"},
		{"unknown", errors.New("wire snapped"), "internet connection"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			guidance := classifyFailure(httpDep, tt.err)
			if guidance.Severity != SeverityCritical {
				t.Errorf("expected critical severity, got: %s", guidance.Severity)
			}
			if guidance.Impact == "" {
				t.Error("expected non-empty impact")
			}

			joined := strings.Join(guidance.Suggestions, " | ")
			if !strings.Contains(joined, tt.want) {
				t.Errorf("expected suggestion containing %q, got: %s", tt.want, joined)
			}
		})
	}
}

// TestClassifyFailure_FallbackAdvice verifies dependency-kind advice.
func TestClassifyFailure_FallbackAdvice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		dep  ExternalDependency
		want string
	}{
		{
			name: "public http suggests local indexers",
			dep:  ExternalDependency{Kind: KindHTTPAPI, Target: "https://api.kaspa.org"},
			want: "indexer-services profile to serve this data locally",
		},
		{
			name: "internal http suggests profile health",
			dep:  ExternalDependency{Kind: KindHTTPAPI, Target: "http://kaspa-rest-server:8000"},
			want: "installed and healthy",
		},
		{
			name: "websocket suggests firewall",
			dep:  ExternalDependency{Kind: KindWebSocket, Target: "ws://host:8000/ws"},
			want: "outbound websocket",
		},
		{
			name: "node rpc suggests stack status",
			dep:  ExternalDependency{Kind: KindNodeRPC, Target: "kaspad:16110"},
			want: "kasdock stack status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			guidance := classifyFailure(tt.dep, errors.New("boom"))
			joined := strings.Join(guidance.Suggestions, " | ")
			if !strings.Contains(joined, tt.want) {
				t.Errorf("expected fallback containing %q, got: %s", tt.want, joined)
			}
		})
	}
}

// =============================================================================
// Mock Tests
// =============================================================================

// TestMockExternalChecker verifies defaults and concurrent-safe recording.
func TestMockExternalChecker(t *testing.T) {
	t.Parallel()

	mock := &MockExternalChecker{}

	report, err := mock.CheckServiceDependencies(context.Background(), "svc", CheckOptions{})
	if err != nil || !report.Valid {
		t.Errorf("expected valid default, got: %+v, %v", report, err)
	}
	if len(mock.CheckCalls) != 1 || mock.CheckCalls[0] != "svc" {
		t.Errorf("expected recorded call, got: %v", mock.CheckCalls)
	}
}
