// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package compose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/mod/semver"

	"github.com/kasdock/kasdock/cmd/kasdock/internal/infra/process"
)

// =============================================================================
// ERROR VARIABLES
// =============================================================================

var (
	// ErrComposeNotFound is returned when the docker compose plugin is not available.
	ErrComposeNotFound = errors.New("docker compose not found")

	// ErrComposeTooOld is returned when the installed compose version predates
	// profile support.
	ErrComposeTooOld = errors.New("docker compose version too old")

	// ErrComposeFileMissing is returned when a required compose file doesn't exist.
	ErrComposeFileMissing = errors.New("compose file not found")

	// ErrServiceNotFound is returned when a specified service doesn't exist.
	ErrServiceNotFound = errors.New("service not found")

	// ErrContainerNotRunning is returned for exec on a stopped container.
	ErrContainerNotRunning = errors.New("container not running")

	// ErrCleanupPartial is returned when cleanup completes with some errors.
	ErrCleanupPartial = errors.New("cleanup completed with errors")

	// ErrInvalidConfig is returned when Config is invalid.
	ErrInvalidConfig = errors.New("invalid compose configuration")

	// ErrInvalidEnvVar is returned when an environment variable key is invalid.
	// This prevents config injection attacks through malformed env var names.
	ErrInvalidEnvVar = errors.New("invalid environment variable")

	// ErrInvalidProfile is returned when a compose profile name is malformed.
	ErrInvalidProfile = errors.New("invalid compose profile")
)

// MinComposeVersion is the oldest docker compose release with stable
// profile activation semantics.
const MinComposeVersion = "v2.20.0"

// envVarKeyRegex validates environment variable key names.
// Keys must start with a letter or underscore and contain only
// alphanumerics and underscores. This prevents shell metacharacter
// injection through the env map.
var envVarKeyRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// profileNameRegex validates compose profile names per the compose spec.
var profileNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// sensitiveEnvKeys are env var name fragments whose values are redacted
// from logged commands.
var sensitiveEnvKeys = []string{"TOKEN", "SECRET", "KEY", "PASSWORD", "MNEMONIC"}

// =============================================================================
// INTERFACES
// =============================================================================

// Executor manages docker compose operations for the Kasdock stack.
//
// # Description
//
// Abstracts all interaction with the docker compose plugin, enabling
// testable orchestration of the Kaspa services. Profile activation is the
// central mechanism: every Up and Down call names the set of compose
// profiles being operated on, and compose starts or stops exactly the
// services those profiles cover.
//
// # Security
//
//   - Validates compose file paths against the configured stack directory
//   - Sanitizes environment variable keys before injection
//   - Does not log sensitive environment values (tokens, secrets)
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Operations that modify
// container state (Up, Down, ForceCleanup) are serialized.
type Executor interface {
	// EnsureVersion verifies the docker compose plugin exists and is at
	// least MinComposeVersion. Returns ErrComposeNotFound or
	// ErrComposeTooOld.
	EnsureVersion(ctx context.Context) (string, error)

	// Up starts services for the given profiles.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation and timeout
	//   - opts: Profiles to activate, env to inject, build flags
	//
	// # Outputs
	//
	//   - *Result: Execution result with stdout/stderr
	//   - error: If the compose command fails
	Up(ctx context.Context, opts UpOptions) (*Result, error)

	// Down stops and removes containers for the given profiles.
	// With no profiles, tears down the whole project.
	Down(ctx context.Context, opts DownOptions) (*Result, error)

	// Stop stops containers without removing them, with SIGTERM then
	// SIGKILL escalation.
	Stop(ctx context.Context, opts StopOptions) (*StopResult, error)

	// Logs streams container logs to the provided writer until ctx ends.
	Logs(ctx context.Context, opts LogsOptions, w io.Writer) error

	// Status returns the current state of project containers.
	Status(ctx context.Context) (*Status, error)

	// ForceCleanup removes all project containers regardless of compose
	// state. Nuclear option when Down fails.
	ForceCleanup(ctx context.Context) (*CleanupResult, error)

	// Exec runs a command inside a running service container.
	Exec(ctx context.Context, opts ExecOptions) (*ExecResult, error)

	// ComposeFiles returns the ordered list of compose files in use.
	ComposeFiles() []string
}

// =============================================================================
// STRUCTS
// =============================================================================

// Config provides configuration for compose operations.
type Config struct {
	// StackDir is the directory containing compose files.
	StackDir string

	// ProjectName is the compose project name.
	// Default: "kasdock"
	ProjectName string

	// BaseFile is the primary compose file name.
	// Default: "docker-compose.yml"
	BaseFile string

	// OverrideFile is the user override file name, used only if present.
	// Default: "docker-compose.override.yml"
	OverrideFile string

	// EnvFile is the env file passed via --env-file when it exists.
	// Default: ".env"
	EnvFile string

	// ContainerNamePrefix filters containers in Status and ForceCleanup.
	// Default: "kasdock-"
	ContainerNamePrefix string

	// DefaultTimeout bounds compose operations.
	// Default: 5 minutes
	DefaultTimeout time.Duration
}

// UpOptions configures the Up operation.
type UpOptions struct {
	// Profiles are the compose profiles to activate.
	// Every profile is passed as a --profile flag.
	Profiles []string

	// Services limits which services to start. Empty means all services
	// of the activated profiles.
	Services []string

	// Env contains environment variables to inject.
	Env map[string]string

	// ForceBuild rebuilds images even if they exist.
	ForceBuild bool

	// RemoveOrphans removes containers for services no longer defined.
	RemoveOrphans bool

	// Timeout overrides the default operation timeout.
	Timeout time.Duration
}

// DownOptions configures the Down operation.
type DownOptions struct {
	// Profiles limits teardown to services of these profiles.
	// Empty tears down the whole project.
	Profiles []string

	// RemoveOrphans removes containers for services not in compose files.
	RemoveOrphans bool

	// RemoveVolumes removes named volumes. Irreversible.
	RemoveVolumes bool

	// Timeout for graceful container shutdown.
	Timeout time.Duration
}

// StopOptions configures the Stop operation.
type StopOptions struct {
	// GracefulTimeout is the SIGTERM wait before SIGKILL escalation.
	// Default: 10 seconds
	GracefulTimeout time.Duration

	// Services limits which services to stop. Empty means all project
	// containers.
	Services []string

	// SkipForceStop disables the SIGKILL escalation.
	SkipForceStop bool
}

// StopResult contains the result of a Stop operation.
type StopResult struct {
	TotalStopped    int
	GracefulStopped int
	ForceStopped    int
	ContainerNames  []string
	Errors          []string
}

// LogsOptions configures the Logs operation.
type LogsOptions struct {
	Follow     bool
	Services   []string
	Tail       int
	Timestamps bool
	Since      time.Time
}

// ExecOptions configures the Exec operation.
type ExecOptions struct {
	// Service is the compose service name. Required.
	Service string

	// Command is the command and arguments to execute. Required.
	Command []string

	// User overrides the user to run as.
	User string

	// WorkDir overrides the working directory.
	WorkDir string
}

// Result contains the result of a compose operation.
type Result struct {
	Success  bool
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	Command  string
}

// Status contains the current state of project containers.
type Status struct {
	Services  []ServiceState
	Running   int
	Stopped   int
	Unhealthy int
}

// ServiceState contains the status of a single service container.
type ServiceState struct {
	// Name is the compose service name.
	Name string

	// ContainerName is the actual container name.
	ContainerName string

	// State is the container state (running, exited, etc.).
	State string

	// Healthy is the health check status; nil means no health check.
	Healthy *bool

	// Ports lists published port mappings.
	Ports []PortMapping

	// Image is the container image.
	Image string
}

// PortMapping represents a port binding.
type PortMapping struct {
	HostIP        string
	HostPort      int
	ContainerPort int
	Protocol      string
}

// CleanupResult contains details of a ForceCleanup operation.
type CleanupResult struct {
	ContainersStopped int
	ContainersRemoved int
	ContainerNames    []string
	Errors            []string
}

// ExecResult contains the result of an Exec operation.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// =============================================================================
// DEFAULT IMPLEMENTATION
// =============================================================================

// DockerComposeExecutor implements Executor using the docker compose plugin.
type DockerComposeExecutor struct {
	config     Config
	proc       process.Manager
	osStatFunc func(string) (os.FileInfo, error)
	mu         sync.Mutex
}

// NewDockerComposeExecutor creates an executor for docker compose operations.
//
// # Inputs
//
//   - cfg: Compose configuration (StackDir required)
//   - proc: process.Manager for command execution
//
// # Outputs
//
//   - *DockerComposeExecutor: Configured executor
//   - error: ErrInvalidConfig if StackDir is empty or proc is nil
//
// # Defaults Applied
//
//   - ProjectName: "kasdock"
//   - BaseFile: "docker-compose.yml"
//   - OverrideFile: "docker-compose.override.yml"
//   - EnvFile: ".env"
//   - ContainerNamePrefix: "kasdock-"
//   - DefaultTimeout: 5 minutes
func NewDockerComposeExecutor(cfg Config, proc process.Manager) (*DockerComposeExecutor, error) {
	if cfg.StackDir == "" {
		return nil, fmt.Errorf("%w: StackDir is required", ErrInvalidConfig)
	}
	if proc == nil {
		return nil, fmt.Errorf("%w: process manager is required", ErrInvalidConfig)
	}

	applyConfigDefaults(&cfg)

	return &DockerComposeExecutor{
		config:     cfg,
		proc:       proc,
		osStatFunc: os.Stat,
	}, nil
}

func applyConfigDefaults(cfg *Config) {
	if cfg.ProjectName == "" {
		cfg.ProjectName = "kasdock"
	}
	if cfg.BaseFile == "" {
		cfg.BaseFile = "docker-compose.yml"
	}
	if cfg.OverrideFile == "" {
		cfg.OverrideFile = "docker-compose.override.yml"
	}
	if cfg.EnvFile == "" {
		cfg.EnvFile = ".env"
	}
	if cfg.ContainerNamePrefix == "" {
		cfg.ContainerNamePrefix = "kasdock-"
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 5 * time.Minute
	}
}

// EnsureVersion verifies the docker compose plugin meets MinComposeVersion.
//
// # Description
//
// Runs `docker compose version --short` and compares the reported version
// against MinComposeVersion using semantic version ordering. Profile
// activation behaves inconsistently on older releases, so installs are
// refused rather than half-started.
//
// # Outputs
//
//   - string: The detected version (normalized, e.g. "v2.24.5")
//   - error: ErrComposeNotFound if the plugin is missing,
//     ErrComposeTooOld if the version predates MinComposeVersion
func (e *DockerComposeExecutor) EnsureVersion(ctx context.Context) (string, error) {
	output, err := e.proc.Run(ctx, "docker", "compose", "version", "--short")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrComposeNotFound, err)
	}

	version := normalizeComposeVersion(string(output))
	if !semver.IsValid(version) {
		return version, fmt.Errorf("%w: cannot parse version %q", ErrComposeNotFound, strings.TrimSpace(string(output)))
	}

	if semver.Compare(version, MinComposeVersion) < 0 {
		return version, fmt.Errorf("%w: have %s, need %s or newer", ErrComposeTooOld, version, MinComposeVersion)
	}

	return version, nil
}

// normalizeComposeVersion turns compose version output into a semver string.
// Accepts "2.24.5", "v2.24.5", and "Docker Compose version v2.24.5".
func normalizeComposeVersion(raw string) string {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) == 0 {
		return ""
	}
	candidate := fields[len(fields)-1]
	if !strings.HasPrefix(candidate, "v") {
		candidate = "v" + candidate
	}
	// Strip build metadata like v2.24.5-desktop.1
	if idx := strings.IndexAny(candidate[1:], "-+"); idx >= 0 {
		candidate = candidate[:idx+1]
	}
	return candidate
}

// Up starts services for the given profiles.
func (e *DockerComposeExecutor) Up(ctx context.Context, opts UpOptions) (*Result, error) {
	if err := validateEnvVars(opts.Env); err != nil {
		return nil, err
	}
	if err := validateProfiles(opts.Profiles); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	args := e.buildBaseArgs(opts.Profiles)
	args = append(args, "up", "-d")

	if opts.ForceBuild {
		args = append(args, "--build")
	}
	if opts.RemoveOrphans {
		args = append(args, "--remove-orphans")
	}
	if len(opts.Services) > 0 {
		args = append(args, opts.Services...)
	}

	return e.runCompose(ctx, args, opts.Env, e.resolveTimeout(opts.Timeout))
}

// Down stops and removes containers for the given profiles.
func (e *DockerComposeExecutor) Down(ctx context.Context, opts DownOptions) (*Result, error) {
	if err := validateProfiles(opts.Profiles); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	args := e.buildBaseArgs(opts.Profiles)
	args = append(args, "down")

	if opts.RemoveOrphans {
		args = append(args, "--remove-orphans")
	}
	if opts.RemoveVolumes {
		args = append(args, "-v")
	}
	if opts.Timeout > 0 {
		args = append(args, "-t", fmt.Sprintf("%d", int(opts.Timeout.Seconds())))
	}

	return e.runCompose(ctx, args, nil, e.resolveTimeout(opts.Timeout))
}

// Stop stops containers with SIGTERM then SIGKILL escalation.
func (e *DockerComposeExecutor) Stop(ctx context.Context, opts StopOptions) (*StopResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := &StopResult{
		ContainerNames: []string{},
		Errors:         []string{},
	}

	gracefulTimeout := opts.GracefulTimeout
	if gracefulTimeout == 0 {
		gracefulTimeout = 10 * time.Second
	}

	runningBefore, err := e.listRunningContainers(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to list containers: %v", err))
	}
	result.ContainerNames = append(result.ContainerNames, runningBefore...)

	if err := e.dockerStop(ctx, int(gracefulTimeout.Seconds()), opts.Services); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("graceful stop: %v", err))
	}

	runningAfterGraceful, _ := e.listRunningContainers(ctx)
	result.GracefulStopped = len(runningBefore) - len(runningAfterGraceful)

	if !opts.SkipForceStop && len(runningAfterGraceful) > 0 {
		if err := e.dockerStop(ctx, 0, opts.Services); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("force stop: %v", err))
		}
		runningAfterForce, _ := e.listRunningContainers(ctx)
		result.ForceStopped = len(runningAfterGraceful) - len(runningAfterForce)
	}

	result.TotalStopped = result.GracefulStopped + result.ForceStopped

	if len(result.Errors) > 0 {
		return result, fmt.Errorf("stop completed with errors: %v", result.Errors)
	}
	return result, nil
}

// Logs streams container logs to the provided writer.
func (e *DockerComposeExecutor) Logs(ctx context.Context, opts LogsOptions, w io.Writer) error {
	args := e.buildBaseArgs(nil)
	args = append(args, "logs")

	if opts.Follow {
		args = append(args, "-f")
	}
	if opts.Tail > 0 {
		args = append(args, "--tail", fmt.Sprintf("%d", opts.Tail))
	}
	if opts.Timestamps {
		args = append(args, "--timestamps")
	}
	if !opts.Since.IsZero() {
		args = append(args, "--since", opts.Since.Format(time.RFC3339))
	}
	if len(opts.Services) > 0 {
		args = append(args, opts.Services...)
	}

	return e.proc.RunStreaming(ctx, e.config.StackDir, w, "docker", append([]string{"compose"}, args...)...)
}

// Status returns the current state of project containers.
func (e *DockerComposeExecutor) Status(ctx context.Context) (*Status, error) {
	args := []string{
		"ps", "-a",
		"--filter", fmt.Sprintf("name=%s", e.config.ContainerNamePrefix),
		"--format", "json",
	}

	output, err := e.runDocker(ctx, args, 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to get container status: %w", err)
	}

	return e.parseContainerStatus(output.Stdout)
}

// ForceCleanup removes all project containers regardless of compose state.
//
// # Description
//
// Executes in order: force stop by name filter, remove by name filter,
// remove by compose project label. Each step continues even if previous
// steps fail, collecting all errors.
func (e *DockerComposeExecutor) ForceCleanup(ctx context.Context) (*CleanupResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := &CleanupResult{
		ContainerNames: []string{},
		Errors:         []string{},
	}

	names, err := e.listAllContainers(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list containers: %v", err))
	}
	result.ContainerNames = names

	if len(names) > 0 {
		if _, err := e.runDocker(ctx, append([]string{"stop", "-t", "0"}, names...), e.config.DefaultTimeout); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("force stop: %v", err))
		} else {
			result.ContainersStopped = len(names)
		}

		if _, err := e.runDocker(ctx, append([]string{"rm", "-f"}, names...), e.config.DefaultTimeout); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("remove by name: %v", err))
		} else {
			result.ContainersRemoved = len(names)
		}
	}

	// Also sweep by compose project label for anything not name-prefixed.
	labelArgs := []string{
		"ps", "-a", "-q",
		"--filter", fmt.Sprintf("label=com.docker.compose.project=%s", e.config.ProjectName),
	}
	labelOut, err := e.runDocker(ctx, labelArgs, 30*time.Second)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list by label: %v", err))
	} else {
		ids := parseLines(labelOut.Stdout)
		if len(ids) > 0 {
			if _, err := e.runDocker(ctx, append([]string{"rm", "-f"}, ids...), e.config.DefaultTimeout); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("remove by label: %v", err))
			} else {
				result.ContainersRemoved += len(ids)
			}
		}
	}

	if len(result.Errors) > 0 {
		return result, ErrCleanupPartial
	}
	return result, nil
}

// Exec runs a command inside a running service container.
func (e *DockerComposeExecutor) Exec(ctx context.Context, opts ExecOptions) (*ExecResult, error) {
	if opts.Service == "" {
		return nil, fmt.Errorf("%w: service is required", ErrServiceNotFound)
	}
	if len(opts.Command) == 0 {
		return nil, errors.New("exec requires a command")
	}

	args := e.buildBaseArgs(nil)
	args = append(args, "exec", "-T")
	if opts.User != "" {
		args = append(args, "--user", opts.User)
	}
	if opts.WorkDir != "" {
		args = append(args, "--workdir", opts.WorkDir)
	}
	args = append(args, opts.Service)
	args = append(args, opts.Command...)

	result, err := e.runCompose(ctx, args, nil, e.config.DefaultTimeout)
	if err != nil {
		if result != nil && isNotRunningStderr(result.Stderr) {
			return nil, ErrContainerNotRunning
		}
		return nil, err
	}

	return &ExecResult{
		ExitCode: result.ExitCode,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
	}, nil
}

// ComposeFiles returns the ordered list of compose files in use.
func (e *DockerComposeExecutor) ComposeFiles() []string {
	files := []string{filepath.Join(e.config.StackDir, e.config.BaseFile)}

	overridePath := filepath.Join(e.config.StackDir, e.config.OverrideFile)
	if e.fileExists(overridePath) {
		files = append(files, overridePath)
	}

	return files
}

// =============================================================================
// PRIVATE HELPER METHODS
// =============================================================================

// buildBaseArgs constructs the shared argument prefix: project name,
// file flags, env file, and one --profile flag per profile.
func (e *DockerComposeExecutor) buildBaseArgs(profiles []string) []string {
	args := []string{"-p", e.config.ProjectName}

	for _, file := range e.ComposeFiles() {
		args = append(args, "-f", file)
	}

	envPath := filepath.Join(e.config.StackDir, e.config.EnvFile)
	if e.fileExists(envPath) {
		args = append(args, "--env-file", envPath)
	}

	for _, profile := range profiles {
		args = append(args, "--profile", profile)
	}

	return args
}

// runCompose executes a docker compose command with env injection.
func (e *DockerComposeExecutor) runCompose(ctx context.Context, args []string, env map[string]string, timeout time.Duration) (*Result, error) {
	start := time.Now()

	fullArgs := append([]string{"compose"}, args...)
	cmdStr := fmt.Sprintf("docker %s", strings.Join(fullArgs, " "))

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, stderr, exitCode, err := e.proc.RunInDir(execCtx, e.config.StackDir, flattenEnv(env), "docker", fullArgs...)

	result := &Result{
		Success:  exitCode == 0 && err == nil,
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
		Duration: time.Since(start),
		Command:  cmdStr,
	}

	if err != nil {
		return result, newCommandError(cmdStr, exitCode, stderr, err)
	}
	if exitCode != 0 {
		return result, newCommandError(cmdStr, exitCode, stderr, nil)
	}

	return result, nil
}

// runDocker executes a direct docker command (ps, stop, rm).
func (e *DockerComposeExecutor) runDocker(ctx context.Context, args []string, timeout time.Duration) (*Result, error) {
	start := time.Now()

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, stderr, exitCode, err := e.proc.RunInDir(execCtx, "", nil, "docker", args...)

	result := &Result{
		Success:  exitCode == 0 && err == nil,
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
		Duration: time.Since(start),
		Command:  fmt.Sprintf("docker %s", strings.Join(args, " ")),
	}

	if err != nil {
		return result, newCommandError(result.Command, exitCode, stderr, err)
	}
	if exitCode != 0 {
		return result, newCommandError(result.Command, exitCode, stderr, nil)
	}

	return result, nil
}

func (e *DockerComposeExecutor) dockerStop(ctx context.Context, timeoutSeconds int, services []string) error {
	if len(services) > 0 {
		names := make([]string, 0, len(services))
		for _, svc := range services {
			names = append(names, e.config.ContainerNamePrefix+svc)
		}
		_, err := e.runDocker(ctx, append([]string{"stop", "-t", fmt.Sprintf("%d", timeoutSeconds)}, names...), e.config.DefaultTimeout)
		return err
	}

	running, err := e.listRunningContainers(ctx)
	if err != nil {
		return err
	}
	if len(running) == 0 {
		return nil
	}
	_, err = e.runDocker(ctx, append([]string{"stop", "-t", fmt.Sprintf("%d", timeoutSeconds)}, running...), e.config.DefaultTimeout)
	return err
}

func (e *DockerComposeExecutor) listRunningContainers(ctx context.Context) ([]string, error) {
	args := []string{
		"ps", "-q",
		"--filter", fmt.Sprintf("name=%s", e.config.ContainerNamePrefix),
		"--filter", "status=running",
	}

	output, err := e.runDocker(ctx, args, 30*time.Second)
	if err != nil {
		return nil, err
	}

	return parseLines(output.Stdout), nil
}

func (e *DockerComposeExecutor) listAllContainers(ctx context.Context) ([]string, error) {
	args := []string{
		"ps", "-a", "-q",
		"--filter", fmt.Sprintf("name=%s", e.config.ContainerNamePrefix),
	}

	output, err := e.runDocker(ctx, args, 30*time.Second)
	if err != nil {
		return nil, err
	}

	return parseLines(output.Stdout), nil
}

// parseContainerStatus parses docker ps JSON output into Status.
//
// Docker emits one JSON object per line (JSONL), unlike podman's array
// output, so each line is decoded independently.
func (e *DockerComposeExecutor) parseContainerStatus(jsonOutput string) (*Status, error) {
	status := &Status{
		Services: []ServiceState{},
	}

	type psLine struct {
		Names  string `json:"Names"`
		State  string `json:"State"`
		Status string `json:"Status"`
		Image  string `json:"Image"`
		Ports  string `json:"Ports"`
	}

	for _, line := range parseLines(jsonOutput) {
		var c psLine
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			return nil, fmt.Errorf("failed to parse container JSON: %w", err)
		}

		svc := ServiceState{
			Name:          e.extractServiceName(c.Names),
			ContainerName: c.Names,
			State:         c.State,
			Image:         c.Image,
			Ports:         parsePortString(c.Ports),
			Healthy:       parseHealthStatus(c.Status),
		}
		status.Services = append(status.Services, svc)

		switch c.State {
		case "running":
			status.Running++
		case "exited", "created", "dead":
			status.Stopped++
		}
		if svc.Healthy != nil && !*svc.Healthy {
			status.Unhealthy++
		}
	}

	return status, nil
}

// extractServiceName derives the compose service name from a container
// name like "kasdock-kaspad-1".
func (e *DockerComposeExecutor) extractServiceName(containerName string) string {
	name := strings.TrimPrefix(containerName, e.config.ContainerNamePrefix)

	parts := strings.Split(name, "-")
	if len(parts) > 1 {
		lastPart := parts[len(parts)-1]
		if _, err := fmt.Sscanf(lastPart, "%d", new(int)); err == nil {
			parts = parts[:len(parts)-1]
		}
	}

	return strings.Join(parts, "-")
}

func (e *DockerComposeExecutor) resolveTimeout(override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	return e.config.DefaultTimeout
}

func (e *DockerComposeExecutor) fileExists(path string) bool {
	_, err := e.osStatFunc(path)
	return err == nil
}

// =============================================================================
// PRIVATE HELPER FUNCTIONS
// =============================================================================

// validateEnvVars rejects malformed environment variable keys.
func validateEnvVars(env map[string]string) error {
	for key := range env {
		if !envVarKeyRegex.MatchString(key) {
			return fmt.Errorf("%w: %q", ErrInvalidEnvVar, key)
		}
	}
	return nil
}

// validateProfiles rejects malformed compose profile names.
func validateProfiles(profiles []string) error {
	for _, p := range profiles {
		if !profileNameRegex.MatchString(p) {
			return fmt.Errorf("%w: %q", ErrInvalidProfile, p)
		}
	}
	return nil
}

// flattenEnv converts an env map to KEY=VALUE entries, sorted-free since
// command environments are order-insensitive.
func flattenEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// RedactEnvValue replaces values of sensitive keys for log output.
func RedactEnvValue(key, value string) string {
	upper := strings.ToUpper(key)
	for _, fragment := range sensitiveEnvKeys {
		if strings.Contains(upper, fragment) {
			return "[REDACTED]"
		}
	}
	return value
}

func parseLines(raw string) []string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// parseHealthStatus extracts health from a status string like
// "Up 2 hours (healthy)". nil means no health check defined.
func parseHealthStatus(statusStr string) *bool {
	if strings.Contains(statusStr, "unhealthy") {
		healthy := false
		return &healthy
	}
	if strings.Contains(statusStr, "healthy") {
		healthy := true
		return &healthy
	}
	return nil
}

// parsePortString parses docker's ports column, e.g.
// "0.0.0.0:16110->16110/tcp, :::16110->16110/tcp".
func parsePortString(raw string) []PortMapping {
	mappings := []PortMapping{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" || !strings.Contains(part, "->") {
			continue
		}

		halves := strings.SplitN(part, "->", 2)
		hostSide, containerSide := halves[0], halves[1]

		var mapping PortMapping
		if idx := strings.LastIndex(hostSide, ":"); idx >= 0 {
			mapping.HostIP = hostSide[:idx]
			fmt.Sscanf(hostSide[idx+1:], "%d", &mapping.HostPort)
		}

		if idx := strings.Index(containerSide, "/"); idx >= 0 {
			mapping.Protocol = containerSide[idx+1:]
			fmt.Sscanf(containerSide[:idx], "%d", &mapping.ContainerPort)
		} else {
			fmt.Sscanf(containerSide, "%d", &mapping.ContainerPort)
		}

		mappings = append(mappings, mapping)
	}
	return mappings
}

func isNotRunningStderr(stderr string) bool {
	lower := strings.ToLower(stderr)
	return strings.Contains(lower, "is not running") ||
		strings.Contains(lower, "no container found") ||
		strings.Contains(lower, "no such container")
}

// =============================================================================
// MOCK IMPLEMENTATION
// =============================================================================

// MockExecutor is a test double for Executor.
//
// # Description
//
// Provides a configurable mock implementation for testing.
// Each method can be configured with a custom function.
// Tracks mutating calls for verification.
//
// # Example
//
//	mock := &MockExecutor{
//	    UpFunc: func(ctx context.Context, opts UpOptions) (*Result, error) {
//	        return &Result{Success: true}, nil
//	    },
//	}
//	result, _ := mock.Up(ctx, UpOptions{Profiles: []string{"core"}})
//	assert.Equal(t, 1, len(mock.UpCalls))
type MockExecutor struct {
	EnsureVersionFunc func(context.Context) (string, error)
	UpFunc            func(context.Context, UpOptions) (*Result, error)
	DownFunc          func(context.Context, DownOptions) (*Result, error)
	StopFunc          func(context.Context, StopOptions) (*StopResult, error)
	LogsFunc          func(context.Context, LogsOptions, io.Writer) error
	StatusFunc        func(context.Context) (*Status, error)
	ForceCleanupFunc  func(context.Context) (*CleanupResult, error)
	ExecFunc          func(context.Context, ExecOptions) (*ExecResult, error)
	ComposeFilesFunc  func() []string

	UpCalls      []UpOptions
	DownCalls    []DownOptions
	StopCalls    []StopOptions
	CleanupCalls int
	mu           sync.Mutex
}

// EnsureVersion implements Executor.
func (m *MockExecutor) EnsureVersion(ctx context.Context) (string, error) {
	if m.EnsureVersionFunc != nil {
		return m.EnsureVersionFunc(ctx)
	}
	return MinComposeVersion, nil
}

// Up implements Executor.
func (m *MockExecutor) Up(ctx context.Context, opts UpOptions) (*Result, error) {
	m.mu.Lock()
	m.UpCalls = append(m.UpCalls, opts)
	m.mu.Unlock()

	if m.UpFunc != nil {
		return m.UpFunc(ctx, opts)
	}
	return &Result{Success: true}, nil
}

// Down implements Executor.
func (m *MockExecutor) Down(ctx context.Context, opts DownOptions) (*Result, error) {
	m.mu.Lock()
	m.DownCalls = append(m.DownCalls, opts)
	m.mu.Unlock()

	if m.DownFunc != nil {
		return m.DownFunc(ctx, opts)
	}
	return &Result{Success: true}, nil
}

// Stop implements Executor.
func (m *MockExecutor) Stop(ctx context.Context, opts StopOptions) (*StopResult, error) {
	m.mu.Lock()
	m.StopCalls = append(m.StopCalls, opts)
	m.mu.Unlock()

	if m.StopFunc != nil {
		return m.StopFunc(ctx, opts)
	}
	return &StopResult{TotalStopped: 0}, nil
}

// Logs implements Executor.
func (m *MockExecutor) Logs(ctx context.Context, opts LogsOptions, w io.Writer) error {
	if m.LogsFunc != nil {
		return m.LogsFunc(ctx, opts, w)
	}
	return nil
}

// Status implements Executor.
func (m *MockExecutor) Status(ctx context.Context) (*Status, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx)
	}
	return &Status{Services: []ServiceState{}}, nil
}

// ForceCleanup implements Executor.
func (m *MockExecutor) ForceCleanup(ctx context.Context) (*CleanupResult, error) {
	m.mu.Lock()
	m.CleanupCalls++
	m.mu.Unlock()

	if m.ForceCleanupFunc != nil {
		return m.ForceCleanupFunc(ctx)
	}
	return &CleanupResult{}, nil
}

// Exec implements Executor.
func (m *MockExecutor) Exec(ctx context.Context, opts ExecOptions) (*ExecResult, error) {
	if m.ExecFunc != nil {
		return m.ExecFunc(ctx, opts)
	}
	return &ExecResult{ExitCode: 0}, nil
}

// ComposeFiles implements Executor.
func (m *MockExecutor) ComposeFiles() []string {
	if m.ComposeFilesFunc != nil {
		return m.ComposeFilesFunc()
	}
	return []string{}
}

// =============================================================================
// COMPILE-TIME CHECKS
// =============================================================================

var (
	_ Executor = (*DockerComposeExecutor)(nil)
	_ Executor = (*MockExecutor)(nil)
)
