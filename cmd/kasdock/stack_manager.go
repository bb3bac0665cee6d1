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
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kasdock/kasdock/cmd/kasdock/config"
	"github.com/kasdock/kasdock/cmd/kasdock/internal/infra/compose"
	"github.com/kasdock/kasdock/pkg/stack"
	"github.com/kasdock/kasdock/pkg/validation"
)

// =============================================================================
// Error Definitions
// =============================================================================

var (
	// ErrStackNotRunning is returned when an operation requires a running stack.
	ErrStackNotRunning = errors.New("stack is not running")

	// ErrNothingToInstall is returned when the request adds no new profiles.
	ErrNothingToInstall = errors.New("nothing to install")

	// ErrValidationBlocked is returned when selection validation reports errors.
	ErrValidationBlocked = errors.New("validation blocked the operation")

	// ErrInsufficientResources is returned when the host falls below the
	// aggregate minimum requirement.
	ErrInsufficientResources = errors.New("insufficient host resources")

	// ErrConfirmationRequired is returned when a high-impact configuration
	// change needs explicit approval.
	ErrConfirmationRequired = errors.New("high-impact change requires confirmation")

	// ErrConfigSyncFailed is returned when the stack env cannot be written.
	ErrConfigSyncFailed = errors.New("configuration synchronization failed")

	// ErrComposeNotReady is returned when the compose plugin is missing or
	// too old.
	ErrComposeNotReady = errors.New("compose is not ready")

	// ErrComposeUpFailed is returned when container startup fails.
	ErrComposeUpFailed = errors.New("compose up failed")

	// ErrServicesNotReady is returned when services fail to reach running
	// state within the wait budget.
	ErrServicesNotReady = errors.New("services not ready")

	// ErrStatePersistFailed is returned when installation state cannot be
	// saved.
	ErrStatePersistFailed = errors.New("failed to persist installation state")

	// ErrNilDependency is returned when a required dependency is nil.
	ErrNilDependency = errors.New("required dependency is nil")

	// ErrDestroyPartial is returned when destroy completes with partial failures.
	ErrDestroyPartial = errors.New("destroy completed with partial failures")

	// ErrInvalidServiceName is returned when a service name contains invalid characters.
	ErrInvalidServiceName = errors.New("invalid service name")

	// ErrVerificationFailed is returned when post-operation verification fails.
	ErrVerificationFailed = errors.New("operation verification failed")

	// ErrPanicRecovered is returned when a panic was recovered during an operation.
	ErrPanicRecovered = errors.New("panic recovered during operation")
)

// =============================================================================
// Security Constants and Patterns
// =============================================================================

// sensitivePatterns match sensitive data in error messages. Matches are
// redacted before the message reaches the event log or history recorder.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret|password|token|credential)[=:\s]+[^\s]+`),
	regexp.MustCompile(`(?i)(mnemonic|seed[_-]?phrase)[=:\s]+[^\n]+`), // wallet recovery material
	regexp.MustCompile(`(?i)(bearer\s+[a-zA-Z0-9._-]+)`),             // Bearer tokens
	regexp.MustCompile(`(?i)([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+)`),     // Email addresses
}

// =============================================================================
// Option and Result Types
// =============================================================================

// InstallOptions configures an Install operation.
type InstallOptions struct {
	// Profiles are the profile ids to install. Required.
	Profiles []string

	// Template applies a named configuration template before install.
	// Empty leaves the current configuration as the base.
	Template string

	// Overrides are env keys applied on top of the template and current
	// configuration. Later wins.
	Overrides map[string]string

	// ForceBuild rebuilds images even when present.
	ForceBuild bool

	// IgnoreResources proceeds past hard resource shortfalls.
	IgnoreResources bool

	// SkipExternalChecks disables the advisory reachability probes.
	SkipExternalChecks bool

	// ApproveHighImpact confirms configuration changes that the impact
	// rules flag as requiring confirmation (e.g. a network switch).
	ApproveHighImpact bool
}

// RemoveOptions configures a Remove operation.
type RemoveOptions struct {
	// Profiles are the profile ids to remove. Required.
	Profiles []string
}

// DestroyResult contains the outcome of a Destroy operation.
//
// # Description
//
// Provides detailed information about what succeeded and failed during
// destroy, allowing callers to understand partial failure states.
type DestroyResult struct {
	// Success is true if all phases completed without error.
	Success bool

	// StopError contains error from stop phase (nil if successful).
	StopError error

	// DownError contains error from compose down phase (nil if successful).
	DownError error

	// CleanupError contains error from force cleanup phase (nil if successful).
	CleanupError error

	// VerificationError contains error from post-destroy verification (nil if successful).
	VerificationError error

	// StateError contains error from state clearing (nil if successful).
	StateError error

	// ContainersRemaining is the count of containers still present after
	// destroy. Zero indicates clean destruction.
	ContainersRemaining int
}

// HasErrors returns true if any phase encountered an error.
func (r *DestroyResult) HasErrors() bool {
	return r.StopError != nil || r.DownError != nil ||
		r.CleanupError != nil || r.VerificationError != nil ||
		r.StateError != nil
}

// StackStatus is the combined view of containers and installation state.
type StackStatus struct {
	// State summarizes the stack: "running", "partial", "stopped",
	// or "not_installed".
	State string

	// InstalledProfiles are the profile ids recorded as installed.
	InstalledProfiles []string

	// Network is the configured Kaspa network.
	Network string

	// RunningCount is the number of running containers.
	RunningCount int

	// StoppedCount is the number of created-but-stopped containers.
	StoppedCount int

	// UnhealthyCount is the number of containers failing health checks.
	UnhealthyCount int

	// Services holds per-service details.
	Services []StackServiceInfo

	// LastModified is when installation state last changed.
	LastModified time.Time
}

// StackServiceInfo describes one service's container.
type StackServiceInfo struct {
	// Name is the compose service name.
	Name string

	// ContainerName is the full container name.
	ContainerName string

	// State is the container state (running, exited, etc).
	State string

	// Healthy is nil when the container has no health check.
	Healthy *bool

	// Ports lists published port mappings (e.g. "16110:16110/tcp").
	Ports []string

	// Image is the container image name.
	Image string
}

// =============================================================================
// Interface Definition
// =============================================================================

// StackManager orchestrates the lifecycle of the Kasdock stack.
//
// # Description
//
// This is the primary interface for installing, removing, and managing
// the containerized profiles that make up a Kaspa deployment. It
// coordinates selection validation, dependency resolution, resource
// checks, configuration synchronization, container orchestration,
// readiness waiting, and state persistence.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. However, only one
// Install/Remove/Stop/Destroy operation should be in progress at a
// time. Concurrent operations are serialized via mutex.
//
// # Context Handling
//
// All methods accept context.Context for cancellation and timeout.
// Long-running operations like Install() respect context cancellation
// at each phase boundary.
//
// # Error Handling
//
// All errors include context about which phase failed. On failure, a
// sanitized failure event is appended to the lifecycle log.
type StackManager interface {
	// Install installs profiles onto the host.
	//
	// # Description
	//
	// Main entry point that orchestrates the complete install sequence:
	//   1. Compose version gate
	//   2. Installation state snapshot
	//   3. Selection validation (current set + requested profiles)
	//   4. Dependency resolution into startup order
	//   5. Resource sufficiency check against the host
	//   6. Configuration synchronization (.env render with backup)
	//   7. Container startup in resolved order, waiting per service
	//   8. Advisory external dependency checks
	//   9. State persistence and lifecycle event
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout. Checked at each phase boundary.
	//   - opts: Configuration for the install operation
	//
	// # Outputs
	//
	//   - error: Non-nil if install fails at any phase. Error includes phase context.
	//
	// # Examples
	//
	//	// Install the core node
	//	err := mgr.Install(ctx, InstallOptions{Profiles: []string{"core"}})
	//
	//	// Developer setup with template and overrides
	//	err := mgr.Install(ctx, InstallOptions{
	//	    Profiles: []string{"core", "developer-tools"},
	//	    Template: "developer-setup",
	//	    Overrides: map[string]string{"LOG_LEVEL": "debug"},
	//	})
	//
	// # Error Handling
	//
	// The error indicates which phase failed:
	//   - ErrComposeNotReady: compose plugin missing or too old
	//   - ErrNothingToInstall: request adds no new profiles
	//   - ErrValidationBlocked: conflicts, prerequisites, or port collisions
	//   - ErrInsufficientResources: host below aggregate minimum
	//   - ErrConfirmationRequired: high-impact config change unapproved
	//   - ErrConfigSyncFailed: .env write failed
	//   - ErrComposeUpFailed: container startup failed
	//   - ErrServicesNotReady: services failed to reach running state
	//   - ErrStatePersistFailed: installation state not saved
	//
	// # Limitations
	//
	//   - Only one mutating operation should be in progress at a time
	//   - Requires the Docker daemon to be running
	//
	// # Assumptions
	//
	//   - Configuration is valid
	//   - The stack directory exists and holds the compose files
	Install(ctx context.Context, opts InstallOptions) error

	// Remove removes profiles, stopping only services no surviving
	// profile still references.
	//
	// # Description
	//
	// Validates each removal against the shrinking installed set, stops
	// the services unique to the removed profiles, and persists the new
	// state. Shared services keep running.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout
	//   - opts: Profiles to remove
	//
	// # Outputs
	//
	//   - error: ErrValidationBlocked when dependents or prerequisites
	//     would break, ErrStatePersistFailed when the new state cannot
	//     be saved
	Remove(ctx context.Context, opts RemoveOptions) error

	// Stop gracefully stops all running services.
	//
	// # Description
	//
	// Stops all stack containers using a two-phase approach: graceful
	// stop with SIGTERM, then force stop for stragglers. Does NOT
	// remove containers, volumes, or installation state. Returns nil
	// if the stack is already stopped.
	Stop(ctx context.Context) error

	// Destroy tears the stack down completely.
	//
	// # Description
	//
	// Stops containers, removes them via compose down, force-cleans
	// stragglers, verifies nothing remains, and clears the installation
	// state. Continues through phase failures and aggregates them.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout
	//   - removeVolumes: Also remove named volumes (chain data!)
	//
	// # Outputs
	//
	//   - error: ErrDestroyPartial listing every failed phase
	Destroy(ctx context.Context, removeVolumes bool) error

	// Status reports the combined container and installation state.
	Status(ctx context.Context) (*StackStatus, error)

	// Logs streams service logs to the configured output.
	// Empty services means all services.
	Logs(ctx context.Context, services []string, follow bool) error
}

// =============================================================================
// Security Helpers
// =============================================================================

// discardWriter is a no-op writer used when output is nil.
type discardWriter struct{}

// Write implements io.Writer, discarding all data.
func (discardWriter) Write(p []byte) (int, error) {
	return len(p), nil
}

// safeWrite writes to the output writer, using discard if nil.
func safeWrite(w io.Writer, format string, args ...interface{}) {
	if w == nil {
		return
	}
	fmt.Fprintf(w, format, args...)
}

// sanitizeErrorMessage removes sensitive data from error messages.
//
// # Description
//
// Redacts API keys, tokens, wallet recovery material, and other
// sensitive patterns from error messages before storing them in the
// lifecycle log or history backend.
//
// # Inputs
//
//   - errMsg: Error message that may contain sensitive data
//
// # Outputs
//
//   - string: Sanitized message with sensitive data replaced by [REDACTED]
func sanitizeErrorMessage(errMsg string) string {
	result := errMsg
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}

// validateStackServiceName checks if a service name is safe for compose
// operations.
//
// # Description
//
// Validates service names against docker-compose naming rules to prevent
// injection attacks or undefined behavior.
//
// # Inputs
//
//   - name: Service name to validate
//
// # Outputs
//
//   - error: ErrInvalidServiceName if validation fails, nil otherwise
//
// # Examples
//
//	err := validateStackServiceName("kaspad")    // nil
//	err := validateStackServiceName("../../etc") // ErrInvalidServiceName
func validateStackServiceName(name string) error {
	if err := validation.ValidateServiceName(name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidServiceName, err)
	}
	return nil
}

// validateStackServiceNames checks all service names in a slice.
// An empty slice is valid and means "all services".
func validateStackServiceNames(names []string) error {
	for _, name := range names {
		if err := validateStackServiceName(name); err != nil {
			return err
		}
	}
	return nil
}

// recoverPanic converts a recovered panic into an error.
//
// # Description
//
// Used with defer to safely recover from panics in mutating operations.
// Ensures the mutex is released and the error is properly propagated.
// Intended to be called from a deferred function with recover().
//
// # Inputs
//
//   - r: The value returned from recover() (nil if no panic)
//   - errPtr: Pointer to the error variable to set
//
// # Examples
//
//	func (s *DefaultStackManager) SomeMethod() (err error) {
//	    defer func() {
//	        recoverPanic(recover(), &err)
//	    }()
//	    // ... method body
//	}
func recoverPanic(r interface{}, errPtr *error) {
	if r == nil {
		return
	}

	var panicErr error
	switch v := r.(type) {
	case error:
		panicErr = fmt.Errorf("%w: %v", ErrPanicRecovered, v)
	case string:
		panicErr = fmt.Errorf("%w: %s", ErrPanicRecovered, v)
	default:
		panicErr = fmt.Errorf("%w: %v", ErrPanicRecovered, v)
	}

	if *errPtr == nil {
		*errPtr = panicErr
	}
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultStackManager implements StackManager by coordinating the
// catalog, validator, resolver, probe, synchronizer, compose executor,
// waiter, and state store.
//
// # Description
//
// Production implementation that orchestrates all stack lifecycle
// operations. All external operations go through injected interfaces
// for testability.
//
// # Thread Safety
//
// Safe for concurrent use. Operations that modify state (Install,
// Remove, Stop, Destroy) are serialized with mutex.
//
// # Dependencies
//
// All dependencies are required except checker and recorder:
//   - catalog: Profile catalog
//   - validator: Selection/addition/removal validation
//   - resolver: Dependency resolution and startup order
//   - probe: Host resource detection
//   - synchronizer: .env rendering with backup
//   - compose: Container orchestration
//   - waiter: Service readiness polling
//   - store: Installation state persistence
//   - checker: External reachability probes (may be nil: checks skipped)
//   - recorder: History recording (may be nil: recording off)
//   - config: Global configuration
type DefaultStackManager struct {
	catalog      *stack.Catalog
	validator    stack.DependencyValidator
	resolver     stack.DependencyResolver
	probe        stack.SystemProbe
	synchronizer stack.ConfigSynchronizer
	compose      compose.Executor
	waiter       ServiceWaiter

	// store persists installation state and the lifecycle event log.
	store StateStore

	// checker runs the advisory external checks. May be nil.
	checker stack.ExternalChecker

	// recorder mirrors lifecycle events to InfluxDB. May be nil.
	recorder HistoryRecorder

	// config is the global Kasdock configuration.
	config *config.KasdockConfig

	// output is where status messages are written. Default: os.Stdout.
	output io.Writer

	// mu serializes mutating operations.
	mu sync.Mutex
}

// NewDefaultStackManager creates a stack manager with all dependencies.
//
// # Description
//
// Creates a ready-to-use StackManager with injected dependencies.
// All dependencies except checker and recorder are required. Validates
// required dependencies and returns an error if any are nil.
//
// # Inputs
//
//   - catalog: Profile catalog (required)
//   - validator: DependencyValidator (required)
//   - resolver: DependencyResolver (required)
//   - probe: SystemProbe for host capacity (required)
//   - synchronizer: ConfigSynchronizer for .env handling (required)
//   - executor: compose.Executor for container orchestration (required)
//   - waiter: ServiceWaiter for readiness polling (required)
//   - store: StateStore for installation state (required)
//   - checker: ExternalChecker (may be nil; external checks skipped)
//   - recorder: HistoryRecorder (may be nil; recording off)
//   - cfg: KasdockConfig global configuration (required)
//
// # Outputs
//
//   - *DefaultStackManager: Ready-to-use manager
//   - error: ErrNilDependency if any required dependency is nil
//
// # Examples
//
//	mgr, err := NewDefaultStackManager(
//	    catalog, validator, resolver, probe, synchronizer,
//	    executor, waiter, store,
//	    nil, // checker = nil disables external checks
//	    nil, // recorder = nil disables history
//	    &cfg,
//	)
//	if err != nil {
//	    return fmt.Errorf("failed to create stack manager: %w", err)
//	}
func NewDefaultStackManager(
	catalog *stack.Catalog,
	validator stack.DependencyValidator,
	resolver stack.DependencyResolver,
	probe stack.SystemProbe,
	synchronizer stack.ConfigSynchronizer,
	executor compose.Executor,
	waiter ServiceWaiter,
	store StateStore,
	checker stack.ExternalChecker,
	recorder HistoryRecorder,
	cfg *config.KasdockConfig,
) (*DefaultStackManager, error) {
	if catalog == nil {
		return nil, fmt.Errorf("%w: Catalog", ErrNilDependency)
	}
	if validator == nil {
		return nil, fmt.Errorf("%w: DependencyValidator", ErrNilDependency)
	}
	if resolver == nil {
		return nil, fmt.Errorf("%w: DependencyResolver", ErrNilDependency)
	}
	if probe == nil {
		return nil, fmt.Errorf("%w: SystemProbe", ErrNilDependency)
	}
	if synchronizer == nil {
		return nil, fmt.Errorf("%w: ConfigSynchronizer", ErrNilDependency)
	}
	if executor == nil {
		return nil, fmt.Errorf("%w: compose.Executor", ErrNilDependency)
	}
	if waiter == nil {
		return nil, fmt.Errorf("%w: ServiceWaiter", ErrNilDependency)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: StateStore", ErrNilDependency)
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: KasdockConfig", ErrNilDependency)
	}
	// Note: checker and recorder may be nil (features disabled)

	return &DefaultStackManager{
		catalog:      catalog,
		validator:    validator,
		resolver:     resolver,
		probe:        probe,
		synchronizer: synchronizer,
		compose:      executor,
		waiter:       waiter,
		store:        store,
		checker:      checker,
		recorder:     recorder,
		config:       cfg,
		output:       os.Stdout,
	}, nil
}

// SetOutput configures the output writer for status messages.
//
// # Description
//
// Allows redirecting status output for testing or logging. Default is
// os.Stdout. If nil is passed, a discard writer is used to prevent nil
// pointer panics.
//
// # Examples
//
//	var buf bytes.Buffer
//	mgr.SetOutput(&buf)
//	mgr.Install(ctx, opts)
//	output := buf.String()
func (s *DefaultStackManager) SetOutput(w io.Writer) {
	if w == nil {
		s.output = discardWriter{}
	} else {
		s.output = w
	}
}

// =============================================================================
// Install
// =============================================================================

// Install installs profiles onto the host.
//
// See interface documentation for full details.
func (s *DefaultStackManager) Install(ctx context.Context, opts InstallOptions) (err error) {
	// Serialize mutating operations to prevent concurrent installs.
	s.mu.Lock()
	defer s.mu.Unlock()

	// Recover from panics to prevent deadlocks and ensure error propagation.
	defer func() {
		recoverPanic(recover(), &err)
	}()

	startTime := time.Now()

	if len(opts.Profiles) == 0 {
		return fmt.Errorf("%w: no profiles requested", ErrNothingToInstall)
	}

	// Phase 1: Compose version gate
	if err := s.ensureComposeReady(ctx); err != nil {
		return err
	}

	// Phase 2: Installation state snapshot
	state, err := s.loadStateSnapshot(ctx)
	if err != nil {
		return err
	}

	target, added := unionProfiles(state.InstalledProfiles, opts.Profiles)
	if len(added) == 0 {
		return fmt.Errorf("%w: %s already installed",
			ErrNothingToInstall, strings.Join(opts.Profiles, ", "))
	}

	// Phase 3: Selection validation over the would-be installed set
	if err := s.validateTargetSelection(ctx, target); err != nil {
		return err
	}

	// Phase 4: Dependency resolution into startup order
	resolved, err := s.resolveStartupOrder(ctx, target)
	if err != nil {
		return err
	}

	// Phase 5: Resource sufficiency
	if err := s.checkResourceSufficiency(ctx, resolved, opts); err != nil {
		return err
	}

	// Phase 6: Configuration synchronization
	desired, err := s.synchronizeConfiguration(ctx, opts)
	if err != nil {
		return err
	}

	// Phase 7: Container startup in resolved order
	if err := s.startResolvedServices(ctx, resolved, opts); err != nil {
		return err
	}

	// Phase 8: Advisory external checks
	s.runExternalChecks(ctx, resolved, opts)

	// Phase 9: Persist state and record the event
	newlyInstalled := subtractProfiles(resolved.StartupOrder(), state.InstalledProfiles)
	if err := s.persistInstall(ctx, state, resolved, desired); err != nil {
		return err
	}

	s.printInstallSummary(startTime, newlyInstalled, resolved)
	return nil
}

// =============================================================================
// Install Phase Helpers
// =============================================================================

// ensureComposeReady verifies the compose plugin exists and is recent
// enough.
//
// # Description
//
// All subsequent phases shell out to docker compose; an absent or
// outdated plugin would fail with confusing errors mid-install, so the
// gate runs first.
func (s *DefaultStackManager) ensureComposeReady(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fmt.Fprintf(s.output, "Checking compose...\n")

	version, err := s.compose.EnsureVersion(ctx)
	if err != nil {
		s.recordFailure(ctx, "compose_gate", err)
		return fmt.Errorf("%w: %v", ErrComposeNotReady, err)
	}

	fmt.Fprintf(s.output, "  docker compose %s\n", version)
	return nil
}

// loadStateSnapshot loads the current installation state.
func (s *DefaultStackManager) loadStateSnapshot(ctx context.Context) (*InstallationState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	state, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load installation state: %w", err)
	}
	return state, nil
}

// validateTargetSelection validates the union of installed and requested
// profiles as one selection.
//
// # Description
//
// The union check catches conflicts between a new profile and an
// installed one the same way it catches conflicts inside a fresh
// selection. Expected domain violations arrive inside the result;
// only unknown ids come back as Go errors.
func (s *DefaultStackManager) validateTargetSelection(ctx context.Context, target []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fmt.Fprintf(s.output, "Validating selection: %s\n", strings.Join(target, ", "))

	result, err := s.validator.ValidateSelection(target)
	if err != nil {
		s.recordFailure(ctx, "validation", err)
		return fmt.Errorf("validate selection: %w", err)
	}

	for _, warning := range result.Warnings {
		fmt.Fprintf(s.output, "  Warning: %s\n", warning.Message)
	}

	if !result.Valid {
		for _, e := range result.Errors {
			fmt.Fprintf(s.output, "  Error: %s\n", e.Message)
		}
		s.printRecommendations(result.Recommendations)
		err := fmt.Errorf("%w: %d validation error(s)", ErrValidationBlocked, len(result.Errors))
		s.recordFailure(ctx, "validation", err)
		return err
	}

	return nil
}

// resolveStartupOrder expands the target set into its dependency closure
// and startup order.
func (s *DefaultStackManager) resolveStartupOrder(ctx context.Context, target []string) (*stack.ResolvedSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resolved, err := s.resolver.Resolve(target)
	if err != nil {
		s.recordFailure(ctx, "resolution", err)
		return nil, fmt.Errorf("resolve profiles: %w", err)
	}

	required := make([]string, 0, len(resolved.Required))
	for id := range resolved.Required {
		required = append(required, id)
	}
	sort.Strings(required)
	for _, id := range required {
		fmt.Fprintf(s.output, "  Adding required dependency: %s\n", id)
	}

	return resolved, nil
}

// checkResourceSufficiency compares the aggregate requirement against
// the host.
//
// # Description
//
// Hard shortfalls (below summed minimum) block the install unless
// IgnoreResources is set. Soft shortfalls print as sizing guidance and
// never block.
func (s *DefaultStackManager) checkResourceSufficiency(ctx context.Context, resolved *stack.ResolvedSet, opts InstallOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fmt.Fprintf(s.output, "Checking host resources...\n")

	system, err := s.probe.Detect(s.config.Stack.DataDir)
	if err != nil {
		// A host that can't be probed shouldn't block an install the
		// user can judge for themselves.
		fmt.Fprintf(s.output, "  Warning: resource detection failed: %v\n", err)
		return nil
	}

	result, err := s.validator.ValidateResources(resolved.StartupOrder(), system)
	if err != nil {
		s.recordFailure(ctx, "resources", err)
		return fmt.Errorf("validate resources: %w", err)
	}

	var hard []string
	for _, warning := range result.Warnings {
		fmt.Fprintf(s.output, "  %s\n", warning.Message)
		if warning.Type == stack.WarnTypeResourceShortfall && warning.Severity == stack.PriorityHigh {
			hard = append(hard, warning.Message)
		}
	}

	if len(hard) > 0 && !opts.IgnoreResources {
		err := fmt.Errorf("%w: %s", ErrInsufficientResources, strings.Join(hard, "; "))
		s.recordFailure(ctx, "resources", err)
		return err
	}
	if len(hard) > 0 {
		fmt.Fprintf(s.output, "  Proceeding despite shortfalls (--ignore-resources)\n")
	}

	return nil
}

// synchronizeConfiguration produces and writes the desired stack env.
//
// # Description
//
// Merge order is current config, then template settings, then caller
// overrides. High-impact changes (network switch) stop the install
// until approved. The previous .env is backed up before the write.
func (s *DefaultStackManager) synchronizeConfiguration(ctx context.Context, opts InstallOptions) (*stack.EnvConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fmt.Fprintf(s.output, "Synchronizing configuration...\n")

	current, err := s.synchronizer.LoadStackEnv()
	if err != nil {
		s.recordFailure(ctx, "config_sync", err)
		return nil, fmt.Errorf("%w: %v", ErrConfigSyncFailed, err)
	}

	desired, err := s.buildDesiredEnv(current, opts)
	if err != nil {
		s.recordFailure(ctx, "config_sync", err)
		return nil, err
	}

	syncResult, err := s.synchronizer.SyncStackEnv(ctx, desired)
	if err != nil {
		s.recordFailure(ctx, "config_sync", err)
		return nil, fmt.Errorf("%w: %v", ErrConfigSyncFailed, err)
	}

	if syncResult.Written {
		fmt.Fprintf(s.output, "  Wrote %s (%d change(s))\n", syncResult.EnvPath, len(syncResult.Changes))
		if syncResult.BackupPath != "" {
			fmt.Fprintf(s.output, "  Previous config backed up: %s\n", syncResult.BackupPath)
		}
		if syncResult.RemoteURL != "" {
			fmt.Fprintf(s.output, "  Backup uploaded: %s\n", syncResult.RemoteURL)
		}
	}

	return desired, nil
}

// buildDesiredEnv merges template and overrides onto the current env.
func (s *DefaultStackManager) buildDesiredEnv(current *stack.EnvConfig, opts InstallOptions) (*stack.EnvConfig, error) {
	var desired *stack.EnvConfig

	if opts.Template != "" {
		result, err := s.synchronizer.ApplyTemplate(opts.Template, current, opts.Overrides)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigSyncFailed, err)
		}

		s.printImpacts(result.Impacts)
		if result.RequiresConfirmation && !opts.ApproveHighImpact {
			if result.Preview != "" {
				fmt.Fprintf(s.output, "\n%s\n", result.Preview)
			}
			return nil, fmt.Errorf("%w: re-run with --yes to apply", ErrConfirmationRequired)
		}
		desired = result.Merged
	} else {
		desired = current.Clone()
		for _, key := range sortedKeys(opts.Overrides) {
			if err := desired.Set(key, opts.Overrides[key]); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrConfigSyncFailed, err)
			}
		}
	}

	// Every install pins the network so containers never guess.
	if !desired.Has("KASPA_NETWORK") {
		desired.MustSet("KASPA_NETWORK", s.config.Network)
	}

	return desired, nil
}

// printImpacts writes assessed change impacts to the output.
func (s *DefaultStackManager) printImpacts(impacts []stack.ChangeImpact) {
	for _, impact := range impacts {
		fmt.Fprintf(s.output, "  [%s] %s: %s\n", impact.Severity, impact.Key, impact.Reason)
		if impact.RequiresBackup {
			fmt.Fprintf(s.output, "    Back up before applying this change.\n")
		}
	}
}

// startResolvedServices brings services up one at a time in resolved
// startup order.
//
// # Description
//
// Dependents must not start before their dependencies report running,
// so each service gets its own compose up followed by a readiness wait
// with exponential backoff.
func (s *DefaultStackManager) startResolvedServices(ctx context.Context, resolved *stack.ResolvedSet, opts InstallOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	services := resolved.ServiceStartupOrder()
	if err := validateStackServiceNames(services); err != nil {
		return err
	}

	fmt.Fprintf(s.output, "Starting %d service(s)...\n", len(services))

	waitOpts := DefaultWaitOptions()

	for i, svc := range services {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprintf(s.output, "  [%d/%d] %s\n", i+1, len(services), svc)

		upResult, err := s.compose.Up(ctx, compose.UpOptions{
			Profiles:   resolved.StartupOrder(),
			Services:   []string{svc},
			ForceBuild: opts.ForceBuild,
		})
		if err != nil {
			s.recordFailure(ctx, "compose_up", err)
			return fmt.Errorf("%w: %s: %v", ErrComposeUpFailed, svc, err)
		}
		if !upResult.Success {
			err := fmt.Errorf("exit code %d: %s", upResult.ExitCode, strings.TrimSpace(upResult.Stderr))
			s.recordFailure(ctx, "compose_up", err)
			return fmt.Errorf("%w: %s: %v", ErrComposeUpFailed, svc, err)
		}

		waitResult, err := s.waiter.WaitForRunning(ctx, []string{svc}, waitOpts)
		if err != nil {
			s.recordFailure(ctx, "readiness", err)
			return fmt.Errorf("%w: %s: %v", ErrServicesNotReady, svc, err)
		}
		if !waitResult.Success {
			err := fmt.Errorf("not running after %v (%d attempt(s))",
				waitResult.Duration.Round(time.Second), waitResult.Attempts)
			s.recordFailure(ctx, "readiness", err)
			return fmt.Errorf("%w: %s: %v", ErrServicesNotReady, svc, err)
		}
	}

	return nil
}

// runExternalChecks probes external dependencies of the resolved
// services. Advisory: failures print guidance, never block.
func (s *DefaultStackManager) runExternalChecks(ctx context.Context, resolved *stack.ResolvedSet, opts InstallOptions) {
	if s.checker == nil || opts.SkipExternalChecks {
		return
	}
	if ctx.Err() != nil {
		return
	}

	checkOpts := s.checkOptionsFromConfig()

	for _, svc := range resolved.ServiceStartupOrder() {
		if len(s.checker.DependenciesFor(svc)) == 0 {
			continue
		}

		report, err := s.checker.CheckServiceDependencies(ctx, svc, checkOpts)
		if err != nil {
			fmt.Fprintf(s.output, "  Warning: checks for %s failed: %v\n", svc, err)
			continue
		}

		s.printCheckReport(report)

		if s.recorder != nil {
			if recErr := s.recorder.RecordProbes(ctx, report); recErr != nil {
				fmt.Fprintf(s.output, "  Warning: history recording failed: %v\n", recErr)
			}
		}
	}
}

// checkOptionsFromConfig maps checker config onto CheckOptions.
func (s *DefaultStackManager) checkOptionsFromConfig() stack.CheckOptions {
	opts := stack.DefaultCheckOptions()
	if s.config.Checker.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(s.config.Checker.TimeoutSeconds) * time.Second
	}
	if s.config.Checker.MaxConcurrent > 0 {
		opts.Concurrency = s.config.Checker.MaxConcurrent
	}
	if s.config.Checker.RatePerSecond > 0 {
		opts.RatePerSecond = s.config.Checker.RatePerSecond
	}
	return opts
}

// printCheckReport writes unreachable dependencies with their guidance.
func (s *DefaultStackManager) printCheckReport(report *stack.CheckReport) {
	for _, dep := range report.Dependencies {
		if dep.Reachable {
			continue
		}
		fmt.Fprintf(s.output, "  Warning: %s cannot reach %s: %s\n",
			report.Service, dep.Dependency.Name, dep.Error)
		if dep.Guidance != nil {
			fmt.Fprintf(s.output, "    Impact: %s\n", dep.Guidance.Impact)
			for _, suggestion := range dep.Guidance.Suggestions {
				fmt.Fprintf(s.output, "    - %s\n", suggestion)
			}
		}
	}
}

// persistInstall saves the new installation state and appends the
// lifecycle event.
func (s *DefaultStackManager) persistInstall(ctx context.Context, previous *InstallationState, resolved *stack.ResolvedSet, desired *stack.EnvConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	state := previous.Clone()
	state.InstalledProfiles = resolved.StartupOrder()
	state.Configuration = desired.ToMap()
	state.Network = desired.Get("KASPA_NETWORK")

	if err := s.store.Save(ctx, state); err != nil {
		s.recordFailure(ctx, "persist", err)
		return fmt.Errorf("%w: %v", ErrStatePersistFailed, err)
	}

	s.appendLifecycleEvent(ctx, StateEvent{
		Type:     EventInstall,
		Profiles: resolved.Requested,
		Message:  fmt.Sprintf("installed: %s", strings.Join(resolved.StartupOrder(), ", ")),
	})

	return nil
}

// printRecommendations writes validation recommendations to the output.
func (s *DefaultStackManager) printRecommendations(recs []stack.Recommendation) {
	if len(recs) == 0 {
		return
	}
	fmt.Fprintf(s.output, "\nRecommendations:\n")
	for _, rec := range recs {
		fmt.Fprintf(s.output, "  [%s] %s: %s\n", rec.Priority, rec.Title, rec.Message)
		for _, action := range rec.Actions {
			fmt.Fprintf(s.output, "    $ kasdock profile %s\n", action)
		}
	}
}

// printInstallSummary outputs a summary after successful install.
//
// # Description
//
// Prints the install duration, newly installed profiles, and access
// URLs derived from the catalog's service port declarations.
func (s *DefaultStackManager) printInstallSummary(startTime time.Time, newlyInstalled []string, resolved *stack.ResolvedSet) {
	duration := time.Since(startTime).Round(time.Millisecond)
	fmt.Fprintf(s.output, "\nInstalled %s in %v\n",
		strings.Join(newlyInstalled, ", "), duration)

	endpoints := s.accessEndpoints(resolved.StartupOrder())
	if len(endpoints) > 0 {
		fmt.Fprintf(s.output, "\nAccess points:\n")
		for _, ep := range endpoints {
			fmt.Fprintf(s.output, "  %-22s %s\n", ep.name+":", ep.url)
		}
	}
}

type accessEndpoint struct {
	name string
	url  string
}

// accessEndpoints derives localhost URLs from the catalog's port
// declarations, deduplicating shared services.
func (s *DefaultStackManager) accessEndpoints(profiles []string) []accessEndpoint {
	seen := make(map[string]bool)
	var endpoints []accessEndpoint
	for _, id := range profiles {
		profile, err := s.catalog.Get(id)
		if err != nil {
			continue
		}
		for _, svc := range profile.Services {
			if seen[svc.Name] || len(svc.Ports) == 0 {
				continue
			}
			seen[svc.Name] = true
			endpoints = append(endpoints, accessEndpoint{
				name: svc.Name,
				url:  fmt.Sprintf("http://localhost:%d", svc.Ports[0]),
			})
		}
	}
	return endpoints
}

// =============================================================================
// Remove
// =============================================================================

// Remove removes profiles, stopping only services no surviving profile
// still references.
//
// See interface documentation for full details.
func (s *DefaultStackManager) Remove(ctx context.Context, opts RemoveOptions) (err error) {
	// Serialize mutating operations to prevent concurrent removals.
	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() {
		recoverPanic(recover(), &err)
	}()

	startTime := time.Now()

	if len(opts.Profiles) == 0 {
		return errors.New("no profiles requested for removal")
	}

	state, err := s.loadStateSnapshot(ctx)
	if err != nil {
		return err
	}

	// Phase 1: Validate each removal against the shrinking set.
	survivors, stoppable, err := s.validateRemovals(ctx, state.InstalledProfiles, opts.Profiles)
	if err != nil {
		return err
	}

	// Phase 2: Stop services unique to the removed profiles.
	if err := s.stopRemovedServices(ctx, stoppable); err != nil {
		return err
	}

	// Phase 3: Persist the surviving set.
	if err := s.persistRemoval(ctx, state, survivors, opts.Profiles); err != nil {
		return err
	}

	duration := time.Since(startTime).Round(time.Millisecond)
	fmt.Fprintf(s.output, "\nRemoved %s in %v\n", strings.Join(opts.Profiles, ", "), duration)
	if len(survivors) == 0 {
		fmt.Fprintf(s.output, "No profiles remain installed.\n")
	}
	return nil
}

// validateRemovals checks every requested removal sequentially against
// the shrinking installed set.
//
// # Description
//
// Order matters: removing [indexer-services, kaspa-user-applications]
// fails on the first profile because the second still depends on it,
// while the reverse order passes. The set shrinks as each removal
// validates, and the stoppable service list accumulates services not
// retained by survivors.
func (s *DefaultStackManager) validateRemovals(ctx context.Context, installed, requested []string) (survivors []string, stoppable []string, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	current := append([]string(nil), installed...)
	retained := make(map[string]bool)
	removedServices := []string{}

	for _, id := range requested {
		result, err := s.validator.ValidateRemoval(id, current)
		if err != nil {
			s.recordFailure(ctx, "removal_validation", err)
			return nil, nil, fmt.Errorf("validate removal of %q: %w", id, err)
		}

		for _, warning := range result.Warnings {
			fmt.Fprintf(s.output, "  Warning: %s\n", warning.Message)
		}

		if !result.CanRemove {
			for _, e := range result.Errors {
				fmt.Fprintf(s.output, "  Error: %s\n", e.Message)
			}
			s.printRecommendations(result.Recommendations)
			err := fmt.Errorf("%w: cannot remove %q", ErrValidationBlocked, id)
			s.recordFailure(ctx, "removal_validation", err)
			return nil, nil, err
		}

		for _, impact := range result.SharedServices {
			retained[impact.Service] = true
		}

		profile, err := s.catalog.Get(id)
		if err != nil {
			return nil, nil, err
		}
		removedServices = append(removedServices, profile.ServiceNames()...)

		current = removeString(current, id)
	}

	// A service is stoppable when no validated removal marked it
	// retained and no survivor references it.
	survivorServices := make(map[string]bool)
	for _, id := range current {
		profile, err := s.catalog.Get(id)
		if err != nil {
			continue
		}
		for _, name := range profile.ServiceNames() {
			survivorServices[name] = true
		}
	}

	seen := make(map[string]bool)
	for _, name := range removedServices {
		if seen[name] || retained[name] || survivorServices[name] {
			continue
		}
		seen[name] = true
		stoppable = append(stoppable, name)
	}

	return current, stoppable, nil
}

// stopRemovedServices stops the services unique to the removed profiles.
func (s *DefaultStackManager) stopRemovedServices(ctx context.Context, services []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(services) == 0 {
		fmt.Fprintf(s.output, "All services are shared; nothing to stop.\n")
		return nil
	}
	if err := validateStackServiceNames(services); err != nil {
		return err
	}

	fmt.Fprintf(s.output, "Stopping %d service(s): %s\n", len(services), strings.Join(services, ", "))

	result, err := s.compose.Stop(ctx, compose.StopOptions{Services: services})
	if err != nil {
		s.recordFailure(ctx, "stop_services", err)
		return fmt.Errorf("stop services: %w", err)
	}
	if len(result.Errors) > 0 {
		fmt.Fprintf(s.output, "  Warning: %d container(s) reported stop errors\n", len(result.Errors))
	}

	return nil
}

// persistRemoval saves the surviving profile set.
func (s *DefaultStackManager) persistRemoval(ctx context.Context, previous *InstallationState, survivors, removed []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	state := previous.Clone()
	state.InstalledProfiles = survivors

	if err := s.store.Save(ctx, state); err != nil {
		s.recordFailure(ctx, "persist", err)
		return fmt.Errorf("%w: %v", ErrStatePersistFailed, err)
	}

	s.appendLifecycleEvent(ctx, StateEvent{
		Type:     EventRemove,
		Profiles: removed,
		Message:  fmt.Sprintf("removed: %s", strings.Join(removed, ", ")),
	})

	return nil
}

// =============================================================================
// Stop
// =============================================================================

// Stop gracefully stops all running services.
//
// See interface documentation for full details.
func (s *DefaultStackManager) Stop(ctx context.Context) (err error) {
	// Serialize mutating operations to prevent concurrent stops.
	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() {
		recoverPanic(recover(), &err)
	}()

	startTime := time.Now()

	running, err := s.isStackRunning(ctx)
	if err != nil {
		return err
	}
	if !running {
		fmt.Fprintf(s.output, "Stack is not running.\n")
		return nil
	}

	fmt.Fprintf(s.output, "Stopping stack...\n")

	result, err := s.compose.Stop(ctx, compose.StopOptions{})
	if err != nil {
		s.recordFailure(ctx, "stop", err)
		return fmt.Errorf("stop stack: %w", err)
	}

	s.appendLifecycleEvent(ctx, StateEvent{
		Type:    EventStop,
		Message: fmt.Sprintf("stopped %d container(s)", result.TotalStopped),
	})

	duration := time.Since(startTime).Round(time.Millisecond)
	fmt.Fprintf(s.output, "Stopped %d container(s) in %v", result.TotalStopped, duration)
	if result.ForceStopped > 0 {
		fmt.Fprintf(s.output, " (%d force-stopped)", result.ForceStopped)
	}
	fmt.Fprintf(s.output, "\n")

	return nil
}

// isStackRunning checks whether any stack containers are currently
// running.
func (s *DefaultStackManager) isStackRunning(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	status, err := s.compose.Status(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check stack status: %w", err)
	}

	return status.Running > 0, nil
}

// =============================================================================
// Destroy
// =============================================================================

// Destroy tears the stack down completely.
//
// See interface documentation for full details.
func (s *DefaultStackManager) Destroy(ctx context.Context, removeVolumes bool) (err error) {
	// Serialize mutating operations to prevent concurrent destroys.
	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() {
		recoverPanic(recover(), &err)
	}()

	startTime := time.Now()

	// Track errors from each phase for aggregation
	result := &DestroyResult{Success: true}

	// Phase 1: Stop containers first
	if stopErr := s.stopForDestroy(ctx); stopErr != nil {
		// Continue with destroy even if stop fails
		result.StopError = stopErr
		fmt.Fprintf(s.output, "  Warning: stop failed, continuing with destroy: %v\n", stopErr)
	}

	// Phase 2: Remove containers via compose down
	if downErr := s.removeContainers(ctx, removeVolumes); downErr != nil {
		result.DownError = downErr
		// This is critical - return immediately
		return s.buildDestroyError(result)
	}

	// Phase 3: Force cleanup for any stragglers
	if cleanupErr := s.forceCleanupRemaining(ctx); cleanupErr != nil {
		result.CleanupError = cleanupErr
		fmt.Fprintf(s.output, "  Warning: cleanup completed with errors: %v\n", cleanupErr)
	}

	// Phase 4: Post-operation verification
	if verifyErr := s.verifyDestroyComplete(ctx); verifyErr != nil {
		result.VerificationError = verifyErr
		fmt.Fprintf(s.output, "  Warning: verification failed: %v\n", verifyErr)
	}

	// Phase 5: Clear installation state
	if stateErr := s.store.Clear(ctx); stateErr != nil {
		result.StateError = stateErr
		fmt.Fprintf(s.output, "  Warning: state clearing failed: %v\n", stateErr)
	}

	s.appendLifecycleEvent(ctx, StateEvent{
		Type:    EventDestroy,
		Message: fmt.Sprintf("destroyed stack (volumes removed: %t)", removeVolumes),
	})

	s.printDestroySummary(startTime, removeVolumes)

	// Return aggregated error if any non-critical failures occurred
	if result.HasErrors() {
		return s.buildDestroyError(result)
	}
	return nil
}

// stopForDestroy stops containers without the graceful-timeout ceremony.
func (s *DefaultStackManager) stopForDestroy(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fmt.Fprintf(s.output, "Stopping containers...\n")

	_, err := s.compose.Stop(ctx, compose.StopOptions{GracefulTimeout: 5 * time.Second})
	return err
}

// removeContainers runs compose down.
func (s *DefaultStackManager) removeContainers(ctx context.Context, removeVolumes bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fmt.Fprintf(s.output, "Removing containers...\n")
	if removeVolumes {
		fmt.Fprintf(s.output, "  Removing volumes (chain data will be deleted)\n")
	}

	result, err := s.compose.Down(ctx, compose.DownOptions{
		RemoveOrphans: true,
		RemoveVolumes: removeVolumes,
	})
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("compose down exit code %d: %s",
			result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return nil
}

// forceCleanupRemaining removes any containers compose down missed.
func (s *DefaultStackManager) forceCleanupRemaining(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	result, err := s.compose.ForceCleanup(ctx)
	if err != nil {
		return err
	}
	if result != nil && result.ContainersRemoved > 0 {
		fmt.Fprintf(s.output, "  Force-removed %d straggler container(s)\n", result.ContainersRemoved)
	}
	return nil
}

// verifyDestroyComplete checks that no containers remain after destroy.
func (s *DefaultStackManager) verifyDestroyComplete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	status, err := s.compose.Status(ctx)
	if err != nil {
		// Can't verify - return warning error
		return fmt.Errorf("%w: unable to verify: %v", ErrVerificationFailed, err)
	}

	if status.Running > 0 || status.Stopped > 0 {
		return fmt.Errorf("%w: %d containers still present",
			ErrVerificationFailed, status.Running+status.Stopped)
	}

	return nil
}

// buildDestroyError creates an aggregated error from DestroyResult.
func (s *DefaultStackManager) buildDestroyError(result *DestroyResult) error {
	var parts []string

	if result.StopError != nil {
		parts = append(parts, fmt.Sprintf("stop: %v", result.StopError))
	}
	if result.DownError != nil {
		parts = append(parts, fmt.Sprintf("down: %v", result.DownError))
	}
	if result.CleanupError != nil {
		parts = append(parts, fmt.Sprintf("cleanup: %v", result.CleanupError))
	}
	if result.VerificationError != nil {
		parts = append(parts, fmt.Sprintf("verification: %v", result.VerificationError))
	}
	if result.StateError != nil {
		parts = append(parts, fmt.Sprintf("state: %v", result.StateError))
	}

	if len(parts) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %s", ErrDestroyPartial, strings.Join(parts, "; "))
}

// printDestroySummary outputs a summary after destroy.
func (s *DefaultStackManager) printDestroySummary(startTime time.Time, removeVolumes bool) {
	duration := time.Since(startTime).Round(time.Millisecond)
	fmt.Fprintf(s.output, "\nStack destroyed in %v\n", duration)
	if !removeVolumes {
		fmt.Fprintf(s.output, "Volumes were kept; chain data survives a reinstall.\n")
	}
}

// =============================================================================
// Status
// =============================================================================

// Status reports the combined container and installation state.
//
// See interface documentation for full details.
func (s *DefaultStackManager) Status(ctx context.Context) (*StackStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Phase 1: Container status
	composeStatus, err := s.compose.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get compose status: %w", err)
	}

	// Phase 2: Installation state (non-fatal: container view still helps)
	state, stateErr := s.store.Load(ctx)
	if stateErr != nil {
		fmt.Fprintf(s.output, "Warning: could not load installation state: %v\n", stateErr)
		state = EmptyInstallationState()
	}

	// Phase 3: Combine
	return s.buildStackStatus(composeStatus, state), nil
}

// buildStackStatus combines container and installation views.
func (s *DefaultStackManager) buildStackStatus(composeStatus *compose.Status, state *InstallationState) *StackStatus {
	status := &StackStatus{
		InstalledProfiles: state.InstalledProfiles,
		Network:           state.Network,
		RunningCount:      composeStatus.Running,
		StoppedCount:      composeStatus.Stopped,
		UnhealthyCount:    composeStatus.Unhealthy,
		LastModified:      state.LastModified,
	}

	for _, svc := range composeStatus.Services {
		info := StackServiceInfo{
			Name:          svc.Name,
			ContainerName: svc.ContainerName,
			State:         svc.State,
			Healthy:       svc.Healthy,
			Image:         svc.Image,
		}
		for _, port := range svc.Ports {
			info.Ports = append(info.Ports, fmt.Sprintf("%d:%d/%s",
				port.HostPort, port.ContainerPort, port.Protocol))
		}
		status.Services = append(status.Services, info)
	}

	switch {
	case len(state.InstalledProfiles) == 0 && composeStatus.Running == 0 && composeStatus.Stopped == 0:
		status.State = "not_installed"
	case composeStatus.Running > 0 && composeStatus.Stopped == 0:
		status.State = "running"
	case composeStatus.Running > 0:
		status.State = "partial"
	default:
		status.State = "stopped"
	}

	return status
}

// =============================================================================
// Logs
// =============================================================================

// Logs streams service logs to the configured output.
//
// See interface documentation for full details.
func (s *DefaultStackManager) Logs(ctx context.Context, services []string, follow bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateStackServiceNames(services); err != nil {
		return err
	}

	return s.compose.Logs(ctx, compose.LogsOptions{
		Follow:   follow,
		Services: services,
		Tail:     200,
	}, s.output)
}

// =============================================================================
// Event Helpers
// =============================================================================

// appendLifecycleEvent writes the event to the local log and mirrors it
// to the history recorder. Both are best-effort; lifecycle bookkeeping
// never fails an operation that already succeeded.
func (s *DefaultStackManager) appendLifecycleEvent(ctx context.Context, event StateEvent) {
	if err := s.store.AppendEvent(ctx, event); err != nil {
		fmt.Fprintf(s.output, "  Warning: event log append failed: %v\n", err)
	}
	if s.recorder != nil {
		if err := s.recorder.RecordLifecycle(ctx, event); err != nil {
			fmt.Fprintf(s.output, "  Warning: history recording failed: %v\n", err)
		}
	}
}

// recordFailure appends a sanitized failure event for the phase.
//
// # Description
//
// The failure trail is what `kasdock stack history` shows when a user
// asks why an install died. Error text is sanitized first; wallet
// material or tokens inside an error message must never reach the log.
func (s *DefaultStackManager) recordFailure(ctx context.Context, phase string, opErr error) {
	if opErr == nil {
		return
	}

	sanitized := sanitizeErrorMessage(opErr.Error())

	event := StateEvent{
		Type:    EventFailure,
		Message: fmt.Sprintf("%s: %s", phase, sanitized),
	}
	if err := s.store.AppendEvent(ctx, event); err != nil {
		fmt.Fprintf(s.output, "  Warning: event log append failed: %v\n", err)
	}
	if s.recorder != nil {
		if err := s.recorder.RecordLifecycle(ctx, event); err != nil {
			fmt.Fprintf(s.output, "  Warning: history recording failed: %v\n", err)
		}
	}
}

// =============================================================================
// Set Helpers
// =============================================================================

// unionProfiles merges requested into installed preserving order, and
// returns the merged set plus the genuinely new ids.
func unionProfiles(installed, requested []string) (target, added []string) {
	target = append([]string(nil), installed...)
	for _, id := range requested {
		if containsString(target, id) {
			continue
		}
		target = append(target, id)
		added = append(added, id)
	}
	return target, added
}

// subtractProfiles returns members of set absent from exclude,
// preserving set order.
func subtractProfiles(set, exclude []string) []string {
	var out []string
	for _, id := range set {
		if !containsString(exclude, id) {
			out = append(out, id)
		}
	}
	return out
}

// sortedKeys returns map keys in sorted order for deterministic
// iteration.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// containsString reports whether list contains s.
func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// removeString returns list without the first occurrence of s.
func removeString(list []string, s string) []string {
	out := make([]string, 0, len(list))
	removed := false
	for _, item := range list {
		if !removed && item == s {
			removed = true
			continue
		}
		out = append(out, item)
	}
	return out
}

// =============================================================================
// Mock Implementation
// =============================================================================

// MockStackManager is a test double for StackManager.
type MockStackManager struct {
	InstallFunc func(context.Context, InstallOptions) error
	RemoveFunc  func(context.Context, RemoveOptions) error
	StopFunc    func(context.Context) error
	DestroyFunc func(context.Context, bool) error
	StatusFunc  func(context.Context) (*StackStatus, error)
	LogsFunc    func(context.Context, []string, bool) error

	InstallCalls []InstallOptions
	RemoveCalls  []RemoveOptions
	StopCalls    int
	DestroyCalls int
	mu           sync.Mutex
}

// Install implements StackManager.
func (m *MockStackManager) Install(ctx context.Context, opts InstallOptions) error {
	m.mu.Lock()
	m.InstallCalls = append(m.InstallCalls, opts)
	m.mu.Unlock()

	if m.InstallFunc != nil {
		return m.InstallFunc(ctx, opts)
	}
	return nil
}

// Remove implements StackManager.
func (m *MockStackManager) Remove(ctx context.Context, opts RemoveOptions) error {
	m.mu.Lock()
	m.RemoveCalls = append(m.RemoveCalls, opts)
	m.mu.Unlock()

	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, opts)
	}
	return nil
}

// Stop implements StackManager.
func (m *MockStackManager) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.StopCalls++
	m.mu.Unlock()

	if m.StopFunc != nil {
		return m.StopFunc(ctx)
	}
	return nil
}

// Destroy implements StackManager.
func (m *MockStackManager) Destroy(ctx context.Context, removeVolumes bool) error {
	m.mu.Lock()
	m.DestroyCalls++
	m.mu.Unlock()

	if m.DestroyFunc != nil {
		return m.DestroyFunc(ctx, removeVolumes)
	}
	return nil
}

// Status implements StackManager.
func (m *MockStackManager) Status(ctx context.Context) (*StackStatus, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx)
	}
	return &StackStatus{State: "not_installed"}, nil
}

// Logs implements StackManager.
func (m *MockStackManager) Logs(ctx context.Context, services []string, follow bool) error {
	if m.LogsFunc != nil {
		return m.LogsFunc(ctx, services, follow)
	}
	return nil
}

// =============================================================================
// Compile-Time Checks
// =============================================================================

var (
	_ StackManager = (*DefaultStackManager)(nil)
	_ StackManager = (*MockStackManager)(nil)
)
