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
	"math/rand"
	"time"

	"github.com/kasdock/kasdock/cmd/kasdock/internal/infra/compose"
)

// =============================================================================
// Error Definitions
// =============================================================================

var (
	// ErrWaitTimeout is returned when services don't reach running state in time.
	ErrWaitTimeout = errors.New("timed out waiting for services")

	// ErrServiceFailed is returned when a service exits during the wait.
	ErrServiceFailed = errors.New("service failed during startup")
)

// =============================================================================
// Supporting Types
// =============================================================================

// WaitOptions configures the service readiness wait.
//
// # Description
//
// Controls timeout and polling behavior for waiting on containers to
// reach running state. Uses exponential backoff with jitter so repeated
// status polls don't hammer the docker daemon during heavy startup.
//
// # Assumptions
//
//   - Timeout > InitialInterval
//   - Jitter in range [0, 1] for meaningful randomization
type WaitOptions struct {
	// Timeout is the total time to wait for all services.
	// Default: 2 minutes
	Timeout time.Duration

	// InitialInterval is the first poll interval.
	// Default: 1 second
	InitialInterval time.Duration

	// MaxInterval caps the backoff interval.
	// Default: 8 seconds
	MaxInterval time.Duration

	// Multiplier is the backoff multiplier.
	// Default: 2.0
	Multiplier float64

	// Jitter adds randomness to prevent thundering herd.
	// Range: [interval * (1-Jitter), interval * (1+Jitter)]
	// Default: 0.1
	Jitter float64

	// FailFast aborts the wait as soon as a service exits.
	FailFast bool
}

// DefaultWaitOptions returns sensible defaults with exponential backoff.
//
// Backoff sequence: 1s -> 2s -> 4s -> 8s -> 8s... with 10% jitter.
func DefaultWaitOptions() WaitOptions {
	return WaitOptions{
		Timeout:         2 * time.Minute,
		InitialInterval: 1 * time.Second,
		MaxInterval:     8 * time.Second,
		Multiplier:      2.0,
		Jitter:          0.1,
		FailFast:        true,
	}
}

// WaitResult contains the outcome of a readiness wait.
type WaitResult struct {
	// Success is true if all requested services reached running state.
	Success bool

	// Ready lists services that reached running state.
	Ready []string

	// NotReady lists services still pending when the wait ended.
	NotReady []string

	// Failed lists services that exited during the wait.
	Failed []string

	// Attempts is the number of status polls performed.
	Attempts int

	// Duration is the total wait time.
	Duration time.Duration
}

// =============================================================================
// Interface Definition
// =============================================================================

// ServiceWaiter blocks until containers reach running state.
//
// # Description
//
// After compose up returns, containers may still be in created or
// restarting state. ServiceWaiter polls container status until every
// requested service is running, a service fails, or the timeout expires.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type ServiceWaiter interface {
	// WaitForRunning blocks until all services are running or timeout.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation
	//   - services: Compose service names to wait for, in startup order
	//   - opts: Timeout and backoff configuration
	//
	// # Outputs
	//
	//   - *WaitResult: Always non-nil, even on error
	//   - error: ErrWaitTimeout or ErrServiceFailed with service names
	WaitForRunning(ctx context.Context, services []string, opts WaitOptions) (*WaitResult, error)
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultServiceWaiter implements ServiceWaiter by polling compose status.
type DefaultServiceWaiter struct {
	compose compose.Executor

	// sleepFunc allows tests to replace the backoff sleep.
	sleepFunc func(context.Context, time.Duration)
}

// NewDefaultServiceWaiter creates a waiter backed by the compose executor.
//
// # Outputs
//
//   - *DefaultServiceWaiter: Ready-to-use waiter
//   - error: ErrNilDependency if executor is nil
func NewDefaultServiceWaiter(executor compose.Executor) (*DefaultServiceWaiter, error) {
	if executor == nil {
		return nil, fmt.Errorf("%w: compose.Executor", ErrNilDependency)
	}
	return &DefaultServiceWaiter{
		compose:   executor,
		sleepFunc: sleepWithContext,
	}, nil
}

// WaitForRunning blocks until all services are running or timeout.
//
// See interface documentation for full details.
func (w *DefaultServiceWaiter) WaitForRunning(ctx context.Context, services []string, opts WaitOptions) (*WaitResult, error) {
	startTime := time.Now()
	result := &WaitResult{
		Ready:    []string{},
		NotReady: []string{},
		Failed:   []string{},
	}

	if len(services) == 0 {
		result.Success = true
		result.Duration = time.Since(startTime)
		return result, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	running := make(map[string]bool, len(services))
	failed := make(map[string]bool)
	interval := opts.InitialInterval

	for {
		if timeoutCtx.Err() != nil {
			return w.buildTimeoutResult(result, services, running, failed, startTime)
		}

		result.Attempts++

		status, err := w.compose.Status(timeoutCtx)
		if err != nil {
			w.sleepFunc(timeoutCtx, applyJitter(interval, opts.Jitter))
			interval = nextInterval(interval, opts.MaxInterval, opts.Multiplier)
			continue
		}

		w.updateServiceStates(status, services, running, failed)

		if opts.FailFast && len(failed) > 0 {
			return w.buildFailedResult(result, services, running, failed, startTime)
		}

		if allRunning(services, running) {
			result.Success = true
			result.Ready = append(result.Ready, services...)
			result.Duration = time.Since(startTime)
			return result, nil
		}

		w.sleepFunc(timeoutCtx, applyJitter(interval, opts.Jitter))
		interval = nextInterval(interval, opts.MaxInterval, opts.Multiplier)
	}
}

// updateServiceStates records which requested services are running or dead.
func (w *DefaultServiceWaiter) updateServiceStates(status *compose.Status, services []string, running, failed map[string]bool) {
	requested := make(map[string]bool, len(services))
	for _, svc := range services {
		requested[svc] = true
	}

	for _, svc := range status.Services {
		if !requested[svc.Name] {
			continue
		}
		switch svc.State {
		case "running":
			running[svc.Name] = true
			delete(failed, svc.Name)
		case "exited", "dead":
			if !running[svc.Name] {
				failed[svc.Name] = true
			}
		}
	}
}

func (w *DefaultServiceWaiter) buildTimeoutResult(result *WaitResult, services []string, running, failed map[string]bool, startTime time.Time) (*WaitResult, error) {
	w.splitServices(result, services, running, failed)
	result.Duration = time.Since(startTime)
	return result, fmt.Errorf("%w after %v: not ready: %v", ErrWaitTimeout, result.Duration.Round(time.Second), result.NotReady)
}

func (w *DefaultServiceWaiter) buildFailedResult(result *WaitResult, services []string, running, failed map[string]bool, startTime time.Time) (*WaitResult, error) {
	w.splitServices(result, services, running, failed)
	result.Duration = time.Since(startTime)
	return result, fmt.Errorf("%w: %v", ErrServiceFailed, result.Failed)
}

func (w *DefaultServiceWaiter) splitServices(result *WaitResult, services []string, running, failed map[string]bool) {
	for _, svc := range services {
		switch {
		case running[svc]:
			result.Ready = append(result.Ready, svc)
		case failed[svc]:
			result.Failed = append(result.Failed, svc)
		default:
			result.NotReady = append(result.NotReady, svc)
		}
	}
}

// =============================================================================
// Backoff Helpers
// =============================================================================

func allRunning(services []string, running map[string]bool) bool {
	for _, svc := range services {
		if !running[svc] {
			return false
		}
	}
	return true
}

// applyJitter multiplies interval by a factor in range [1-jitter, 1+jitter].
func applyJitter(interval time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return interval
	}
	factor := 1.0 + (rand.Float64()*2-1)*jitter
	return time.Duration(float64(interval) * factor)
}

// nextInterval computes the next backoff interval, capped at max.
func nextInterval(current, max time.Duration, multiplier float64) time.Duration {
	if multiplier <= 1.0 {
		multiplier = 2.0
	}
	next := time.Duration(float64(current) * multiplier)
	if max > 0 && next > max {
		return max
	}
	return next
}

// sleepWithContext sleeps for the duration but wakes on context cancellation.
func sleepWithContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// =============================================================================
// Mock Implementation
// =============================================================================

// MockServiceWaiter is a test double for ServiceWaiter.
type MockServiceWaiter struct {
	WaitForRunningFunc func(context.Context, []string, WaitOptions) (*WaitResult, error)

	WaitCalls [][]string
}

// WaitForRunning implements ServiceWaiter.
func (m *MockServiceWaiter) WaitForRunning(ctx context.Context, services []string, opts WaitOptions) (*WaitResult, error) {
	m.WaitCalls = append(m.WaitCalls, services)

	if m.WaitForRunningFunc != nil {
		return m.WaitForRunningFunc(ctx, services, opts)
	}
	return &WaitResult{Success: true, Ready: services, NotReady: []string{}, Failed: []string{}}, nil
}

// =============================================================================
// Compile-Time Checks
// =============================================================================

var (
	_ ServiceWaiter = (*DefaultServiceWaiter)(nil)
	_ ServiceWaiter = (*MockServiceWaiter)(nil)
)
