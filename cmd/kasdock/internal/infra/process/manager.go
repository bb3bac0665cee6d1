// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// =============================================================================
// INTERFACES
// =============================================================================

// Manager handles external process operations.
//
// # Description
//
// Abstracts all interaction with the operating system's process management,
// enabling testable code that doesn't require real process execution.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple goroutines.
//
// # Context Handling
//
// All methods accept a context.Context for cancellation and timeout support.
// Long-running processes must respect context cancellation.
type Manager interface {
	// Run executes a command synchronously and returns its stdout.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout
	//   - name: The executable name or path
	//   - args: Command arguments
	//
	// # Outputs
	//
	//   - []byte: Stdout output
	//   - error: Non-nil if the command fails; stderr is folded into the error
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// RunWithInput executes a command with data piped to stdin.
	RunWithInput(ctx context.Context, name string, input []byte, args ...string) ([]byte, error)

	// RunInDir executes a command in a working directory with extra env.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout
	//   - dir: Working directory; empty uses the current directory
	//   - env: Extra KEY=VALUE entries appended to the parent environment
	//   - name: The executable name or path
	//   - args: Command arguments
	//
	// # Outputs
	//
	//   - string: Stdout
	//   - string: Stderr
	//   - int: Exit code (-1 if the process never ran)
	//   - error: Non-nil on start failure or non-zero exit
	RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error)

	// RunStreaming executes a command and streams combined output to w.
	// Blocks until the process exits or ctx is cancelled.
	RunStreaming(ctx context.Context, dir string, w io.Writer, name string, args ...string) error

	// Start launches a background process and returns its PID.
	// Context cancellation does not kill the started process.
	Start(ctx context.Context, name string, args ...string) (int, error)

	// IsRunning checks if a process matching the pattern exists via pgrep.
	IsRunning(ctx context.Context, pattern string) (bool, int, error)
}

// =============================================================================
// DEFAULT IMPLEMENTATION
// =============================================================================

// DefaultManager implements Manager using os/exec.
//
// This is the production implementation that executes real processes.
// Use MockManager in tests instead.
type DefaultManager struct{}

// NewDefaultManager creates a Manager that executes real processes.
func NewDefaultManager() *DefaultManager {
	return &DefaultManager{}
}

// Run executes a command synchronously and returns its stdout.
func (m *DefaultManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// Include stderr in error for debugging
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}

	return stdout.Bytes(), nil
}

// RunWithInput executes a command with data piped to stdin.
func (m *DefaultManager) RunWithInput(ctx context.Context, name string, input []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}

	return stdout.Bytes(), nil
}

// RunInDir executes a command in a working directory with extra env.
func (m *DefaultManager) RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	if len(env) > 0 {
		cmd.Env = append(cmd.Environ(), env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	} else if err != nil {
		exitCode = -1
	}

	return stdout.String(), stderr.String(), exitCode, err
}

// RunStreaming executes a command and streams combined output to w.
func (m *DefaultManager) RunStreaming(ctx context.Context, dir string, w io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Stdout = w
	cmd.Stderr = w

	return cmd.Run()
}

// Start launches a background process and returns its PID.
func (m *DefaultManager) Start(ctx context.Context, name string, args ...string) (int, error) {
	cmd := exec.Command(name, args...)

	if err := cmd.Start(); err != nil {
		return 0, err
	}

	pid := cmd.Process.Pid

	// Reap the child in the background so it doesn't become a zombie.
	go func() {
		_ = cmd.Wait()
	}()

	return pid, nil
}

// IsRunning checks if a process matching the pattern exists via pgrep.
func (m *DefaultManager) IsRunning(ctx context.Context, pattern string) (bool, int, error) {
	output, err := m.Run(ctx, "pgrep", "-f", pattern)
	if err != nil {
		// pgrep exits 1 when nothing matches; that's not an error here.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return false, 0, nil
		}
		return false, 0, err
	}

	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return false, 0, nil
	}

	pid, convErr := strconv.Atoi(strings.TrimSpace(lines[0]))
	if convErr != nil {
		return true, 0, nil
	}

	return true, pid, nil
}

// =============================================================================
// MOCK IMPLEMENTATION
// =============================================================================

// MockManager implements Manager for testing.
//
// Set the Func fields to control behavior; calls are recorded for
// verification. Safe for concurrent use.
type MockManager struct {
	RunFunc          func(ctx context.Context, name string, args ...string) ([]byte, error)
	RunWithInputFunc func(ctx context.Context, name string, input []byte, args ...string) ([]byte, error)
	RunInDirFunc     func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error)
	RunStreamingFunc func(ctx context.Context, dir string, w io.Writer, name string, args ...string) error
	StartFunc        func(ctx context.Context, name string, args ...string) (int, error)
	IsRunningFunc    func(ctx context.Context, pattern string) (bool, int, error)

	mu    sync.Mutex
	Calls []MockCall
}

// MockCall records one invocation of a MockManager method.
type MockCall struct {
	Method string
	Name   string
	Args   []string
	Dir    string
}

func (m *MockManager) record(method, name, dir string, args []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{
		Method: method,
		Name:   name,
		Dir:    dir,
		Args:   append([]string(nil), args...),
	})
}

// CallCount returns the number of recorded calls for a method.
func (m *MockManager) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.Calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// Run implements Manager.
func (m *MockManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.record("Run", name, "", args)
	if m.RunFunc != nil {
		return m.RunFunc(ctx, name, args...)
	}
	return []byte{}, nil
}

// RunWithInput implements Manager.
func (m *MockManager) RunWithInput(ctx context.Context, name string, input []byte, args ...string) ([]byte, error) {
	m.record("RunWithInput", name, "", args)
	if m.RunWithInputFunc != nil {
		return m.RunWithInputFunc(ctx, name, input, args...)
	}
	return []byte{}, nil
}

// RunInDir implements Manager.
func (m *MockManager) RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
	m.record("RunInDir", name, dir, args)
	if m.RunInDirFunc != nil {
		return m.RunInDirFunc(ctx, dir, env, name, args...)
	}
	return "", "", 0, nil
}

// RunStreaming implements Manager.
func (m *MockManager) RunStreaming(ctx context.Context, dir string, w io.Writer, name string, args ...string) error {
	m.record("RunStreaming", name, dir, args)
	if m.RunStreamingFunc != nil {
		return m.RunStreamingFunc(ctx, dir, w, name, args...)
	}
	return nil
}

// Start implements Manager.
func (m *MockManager) Start(ctx context.Context, name string, args ...string) (int, error) {
	m.record("Start", name, "", args)
	if m.StartFunc != nil {
		return m.StartFunc(ctx, name, args...)
	}
	return 0, nil
}

// IsRunning implements Manager.
func (m *MockManager) IsRunning(ctx context.Context, pattern string) (bool, int, error) {
	m.record("IsRunning", pattern, "", nil)
	if m.IsRunningFunc != nil {
		return m.IsRunningFunc(ctx, pattern)
	}
	return false, 0, nil
}

// =============================================================================
// COMPILE-TIME CHECKS
// =============================================================================

var (
	_ Manager = (*DefaultManager)(nil)
	_ Manager = (*MockManager)(nil)
)
