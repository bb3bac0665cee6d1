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
	"testing"
	"time"

	"github.com/kasdock/kasdock/cmd/kasdock/internal/infra/compose"
)

// =============================================================================
// Test Helpers
// =============================================================================

// fastWaitOptions returns options tuned so tests finish in milliseconds.
func fastWaitOptions() WaitOptions {
	return WaitOptions{
		Timeout:         200 * time.Millisecond,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
		FailFast:        true,
	}
}

// newTestWaiter builds a waiter over a mock executor with a no-op sleep.
func newTestWaiter(t *testing.T, executor compose.Executor) *DefaultServiceWaiter {
	t.Helper()
	waiter, err := NewDefaultServiceWaiter(executor)
	if err != nil {
		t.Fatalf("NewDefaultServiceWaiter: %v", err)
	}
	return waiter
}

func statusWith(states map[string]string) *compose.Status {
	status := &compose.Status{Services: []compose.ServiceState{}}
	for name, state := range states {
		status.Services = append(status.Services, compose.ServiceState{
			Name:  name,
			State: state,
		})
		if state == "running" {
			status.Running++
		}
	}
	return status
}

// =============================================================================
// Constructor Tests
// =============================================================================

// TestNewDefaultServiceWaiter_NilExecutor verifies the guard.
func TestNewDefaultServiceWaiter_NilExecutor(t *testing.T) {
	t.Parallel()

	if _, err := NewDefaultServiceWaiter(nil); !errors.Is(err, ErrNilDependency) {
		t.Errorf("expected ErrNilDependency, got: %v", err)
	}
}

// =============================================================================
// Wait Tests
// =============================================================================

// TestWaitForRunning_AllReady verifies the happy path.
func TestWaitForRunning_AllReady(t *testing.T) {
	t.Parallel()

	mock := &compose.MockExecutor{
		StatusFunc: func(ctx context.Context) (*compose.Status, error) {
			return statusWith(map[string]string{
				"kaspad":     "running",
				"postgresql": "running",
			}), nil
		},
	}
	waiter := newTestWaiter(t, mock)

	result, err := waiter.WaitForRunning(context.Background(), []string{"kaspad", "postgresql"}, fastWaitOptions())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !result.Success {
		t.Errorf("expected success, got: %+v", result)
	}
	if len(result.Ready) != 2 || len(result.NotReady) != 0 || len(result.Failed) != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.Attempts < 1 {
		t.Errorf("expected at least one poll, got: %d", result.Attempts)
	}
}

// TestWaitForRunning_EventuallyReady verifies polling until services come up.
func TestWaitForRunning_EventuallyReady(t *testing.T) {
	t.Parallel()

	polls := 0
	mock := &compose.MockExecutor{
		StatusFunc: func(ctx context.Context) (*compose.Status, error) {
			polls++
			if polls < 3 {
				return statusWith(map[string]string{"kaspad": "created"}), nil
			}
			return statusWith(map[string]string{"kaspad": "running"}), nil
		},
	}
	waiter := newTestWaiter(t, mock)

	result, err := waiter.WaitForRunning(context.Background(), []string{"kaspad"}, fastWaitOptions())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !result.Success || result.Attempts < 3 {
		t.Errorf("expected success after 3 polls, got: %+v", result)
	}
}

// TestWaitForRunning_EmptyServices verifies the no-op case.
func TestWaitForRunning_EmptyServices(t *testing.T) {
	t.Parallel()

	waiter := newTestWaiter(t, &compose.MockExecutor{})

	result, err := waiter.WaitForRunning(context.Background(), nil, fastWaitOptions())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !result.Success || result.Attempts != 0 {
		t.Errorf("expected immediate success without polling, got: %+v", result)
	}
}

// TestWaitForRunning_FailFast verifies exited services abort the wait.
func TestWaitForRunning_FailFast(t *testing.T) {
	t.Parallel()

	mock := &compose.MockExecutor{
		StatusFunc: func(ctx context.Context) (*compose.Status, error) {
			return statusWith(map[string]string{
				"kaspad":       "running",
				"kaspa-faucet": "exited",
			}), nil
		},
	}
	waiter := newTestWaiter(t, mock)

	result, err := waiter.WaitForRunning(context.Background(), []string{"kaspad", "kaspa-faucet"}, fastWaitOptions())
	if !errors.Is(err, ErrServiceFailed) {
		t.Fatalf("expected ErrServiceFailed, got: %v", err)
	}
	if result.Success {
		t.Error("expected failure result")
	}
	if len(result.Failed) != 1 || result.Failed[0] != "kaspa-faucet" {
		t.Errorf("expected kaspa-faucet in Failed, got: %+v", result.Failed)
	}
	if len(result.Ready) != 1 || result.Ready[0] != "kaspad" {
		t.Errorf("expected kaspad in Ready, got: %+v", result.Ready)
	}
}

// TestWaitForRunning_Timeout verifies the timeout path splits services.
func TestWaitForRunning_Timeout(t *testing.T) {
	t.Parallel()

	mock := &compose.MockExecutor{
		StatusFunc: func(ctx context.Context) (*compose.Status, error) {
			return statusWith(map[string]string{
				"kaspad":     "running",
				"postgresql": "created",
			}), nil
		},
	}
	waiter := newTestWaiter(t, mock)

	opts := fastWaitOptions()
	opts.Timeout = 20 * time.Millisecond

	result, err := waiter.WaitForRunning(context.Background(), []string{"kaspad", "postgresql"}, opts)
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("expected ErrWaitTimeout, got: %v", err)
	}
	if len(result.Ready) != 1 || result.Ready[0] != "kaspad" {
		t.Errorf("expected kaspad ready, got: %+v", result.Ready)
	}
	if len(result.NotReady) != 1 || result.NotReady[0] != "postgresql" {
		t.Errorf("expected postgresql not ready, got: %+v", result.NotReady)
	}
}

// TestWaitForRunning_StatusErrorsAreRetried verifies transient status
// failures don't abort the wait.
func TestWaitForRunning_StatusErrorsAreRetried(t *testing.T) {
	t.Parallel()

	polls := 0
	mock := &compose.MockExecutor{
		StatusFunc: func(ctx context.Context) (*compose.Status, error) {
			polls++
			if polls == 1 {
				return nil, errors.New("docker daemon busy")
			}
			return statusWith(map[string]string{"kaspad": "running"}), nil
		},
	}
	waiter := newTestWaiter(t, mock)

	result, err := waiter.WaitForRunning(context.Background(), []string{"kaspad"}, fastWaitOptions())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !result.Success || result.Attempts < 2 {
		t.Errorf("expected success after retry, got: %+v", result)
	}
}

// TestWaitForRunning_RecoveredService verifies a restart after an exit
// still counts as running.
func TestWaitForRunning_RecoveredService(t *testing.T) {
	t.Parallel()

	polls := 0
	mock := &compose.MockExecutor{
		StatusFunc: func(ctx context.Context) (*compose.Status, error) {
			polls++
			if polls == 1 {
				return statusWith(map[string]string{"kaspad": "exited"}), nil
			}
			return statusWith(map[string]string{"kaspad": "running"}), nil
		},
	}
	waiter := newTestWaiter(t, mock)

	opts := fastWaitOptions()
	opts.FailFast = false

	result, err := waiter.WaitForRunning(context.Background(), []string{"kaspad"}, opts)
	if err != nil {
		t.Fatalf("expected recovery, got: %v", err)
	}
	if !result.Success {
		t.Errorf("expected success, got: %+v", result)
	}
}

// =============================================================================
// Backoff Helper Tests
// =============================================================================

// TestNextInterval verifies exponential growth with a cap.
func TestNextInterval(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		current    time.Duration
		max        time.Duration
		multiplier float64
		want       time.Duration
	}{
		{"doubles", time.Second, 8 * time.Second, 2.0, 2 * time.Second},
		{"caps at max", 6 * time.Second, 8 * time.Second, 2.0, 8 * time.Second},
		{"bad multiplier falls back", time.Second, 8 * time.Second, 0.5, 2 * time.Second},
		{"no cap", 4 * time.Second, 0, 2.0, 8 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextInterval(tt.current, tt.max, tt.multiplier); got != tt.want {
				t.Errorf("nextInterval() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestApplyJitter verifies the jitter window.
func TestApplyJitter(t *testing.T) {
	t.Parallel()

	base := time.Second

	if got := applyJitter(base, 0); got != base {
		t.Errorf("zero jitter must return the interval, got: %v", got)
	}

	for range 50 {
		got := applyJitter(base, 0.1)
		if got < 900*time.Millisecond || got > 1100*time.Millisecond {
			t.Fatalf("jittered interval %v outside [0.9s, 1.1s]", got)
		}
	}
}

// TestMockServiceWaiter verifies the default mock behavior.
func TestMockServiceWaiter(t *testing.T) {
	t.Parallel()

	mock := &MockServiceWaiter{}

	result, err := mock.WaitForRunning(context.Background(), []string{"kaspad"}, DefaultWaitOptions())
	if err != nil || !result.Success {
		t.Errorf("expected default success, got: %+v, %v", result, err)
	}
	if len(mock.WaitCalls) != 1 {
		t.Errorf("expected recorded call, got: %v", mock.WaitCalls)
	}
}
