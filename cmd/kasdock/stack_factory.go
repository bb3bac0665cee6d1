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
	"os"
	"path/filepath"
	"time"

	"github.com/kasdock/kasdock/cmd/kasdock/config"
	"github.com/kasdock/kasdock/cmd/kasdock/gcs"
	"github.com/kasdock/kasdock/cmd/kasdock/internal/infra/compose"
	"github.com/kasdock/kasdock/cmd/kasdock/internal/infra/process"
	"github.com/kasdock/kasdock/pkg/logging"
	"github.com/kasdock/kasdock/pkg/stack"
)

// =============================================================================
// INTERFACES
// =============================================================================

// StackFactory creates StackManager instances with all required dependencies.
//
// This interface enables dependency injection for testing - production code
// uses DefaultStackFactory, while tests can provide mock implementations.
type StackFactory interface {
	// CreateStackManager builds a fully configured StackManager.
	//
	// # Description
	//
	// Wires together all components required by StackManager: the profile
	// catalog, DependencyResolver, DependencyValidator, SystemProbe,
	// ConfigSynchronizer (with backup manager and optional GCS uploads),
	// compose.Executor, ServiceWaiter, StateStore, and the optional
	// ExternalChecker and HistoryRecorder.
	//
	// # Inputs
	//
	//   - ctx: Context for dependency initialization (GCS client, InfluxDB probe).
	//   - cfg: The global Kasdock configuration containing all settings.
	//
	// # Outputs
	//
	//   - StackManager: Ready-to-use stack manager with all dependencies wired.
	//   - error: Non-nil if any dependency creation fails.
	CreateStackManager(ctx context.Context, cfg *config.KasdockConfig) (StackManager, error)
}

// =============================================================================
// STRUCTS
// =============================================================================

// DefaultStackFactory is the production implementation of StackFactory.
//
// It creates real implementations of all StackManager dependencies including
// the catalog, resolver, validator, compose executor, state store, etc.
type DefaultStackFactory struct{}

// =============================================================================
// METHODS
// =============================================================================

// NewDefaultStackFactory creates a new DefaultStackFactory instance.
//
// # Description
//
// Returns a factory that produces StackManagers with real production
// dependencies. Use this in production code; use mock factories in tests.
//
// # Inputs
//
// None.
//
// # Outputs
//
//   - *DefaultStackFactory: A factory instance ready to create StackManagers.
//
// # Examples
//
//	factory := NewDefaultStackFactory()
//	mgr, err := factory.CreateStackManager(ctx, &config.Global)
//
// # Limitations
//
//   - Creates all dependencies even if only some are needed.
//   - Not suitable for unit tests; use mock factories instead.
//
// # Assumptions
//
//   - None.
func NewDefaultStackFactory() *DefaultStackFactory {
	return &DefaultStackFactory{}
}

// CreateStackManager builds a fully configured StackManager with production dependencies.
//
// # Description
//
// This method wires together all components required by StackManager in the
// correct order, respecting dependency relationships:
//
//	ProcessManager -> ComposeExecutor -> Catalog -> DependencyResolver ->
//	ResourceAggregator -> DependencyValidator -> SystemProbe ->
//	BackupManager -> ConfigSynchronizer -> ServiceWaiter -> StateStore ->
//	ExternalChecker -> HistoryRecorder -> StackManager
//
// # Inputs
//
//   - ctx: Context bounding dependency initialization. The GCS client and
//     the InfluxDB health probe honor it.
//   - cfg: The global Kasdock configuration containing:
//   - Stack settings (directory, compose files, project name)
//   - Validation thresholds
//   - External checker settings
//   - State store, history, and backup settings
//
// # Outputs
//
//   - StackManager: Ready-to-use stack manager with all dependencies wired.
//   - error: Non-nil if any dependency creation fails, with wrapped context.
//
// # Examples
//
//	factory := NewDefaultStackFactory()
//	mgr, err := factory.CreateStackManager(ctx, &config.Global)
//	if err != nil {
//	    log.Fatalf("Failed to create stack manager: %v", err)
//	}
//	err = mgr.Install(ctx, opts)
//
// # Limitations
//
//   - Creates all dependencies even if only some operations are needed.
//   - Not suitable for unit tests; use mock implementations instead.
//   - The HistoryRecorder is only created when history is enabled in config.
//
// # Assumptions
//
//   - Config is valid and loaded.
//   - Stack directory exists and is accessible.
//   - Docker and the compose plugin are installed.
func (f *DefaultStackFactory) CreateStackManager(ctx context.Context, cfg *config.KasdockConfig) (StackManager, error) {
	proc := f.createProcessManager()

	executor, err := f.createComposeExecutor(cfg, proc)
	if err != nil {
		return nil, fmt.Errorf("failed to create compose executor: %w", err)
	}

	catalog, err := f.createCatalog(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile catalog: %w", err)
	}

	resolver, err := stack.NewDefaultDependencyResolver(catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to create dependency resolver: %w", err)
	}

	aggregator, err := stack.NewDefaultResourceAggregator(catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource aggregator: %w", err)
	}

	validator, err := f.createValidator(cfg, catalog, resolver, aggregator)
	if err != nil {
		return nil, fmt.Errorf("failed to create dependency validator: %w", err)
	}

	probe := stack.NewDefaultSystemProbe()

	synchronizer, err := f.createConfigSynchronizer(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create config synchronizer: %w", err)
	}

	waiter, err := NewDefaultServiceWaiter(executor)
	if err != nil {
		return nil, fmt.Errorf("failed to create service waiter: %w", err)
	}

	store, err := f.createStateStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	checker := stack.NewDefaultExternalChecker()

	recorder, err := f.createHistoryRecorder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create history recorder: %w", err)
	}

	stackMgr, err := NewDefaultStackManager(
		catalog,
		validator,
		resolver,
		probe,
		synchronizer,
		executor,
		waiter,
		store,
		checker,
		recorder,
		cfg,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stack manager: %w", err)
	}

	return stackMgr, nil
}

// createProcessManager creates a ProcessManager for command execution.
//
// # Description
//
// Creates the foundation component for all external command execution.
// ProcessManager is used by the compose executor to run docker commands.
func (f *DefaultStackFactory) createProcessManager() process.Manager {
	return process.NewDefaultManager()
}

// createComposeExecutor creates a compose.Executor for container orchestration.
//
// # Description
//
// Creates the executor for docker compose operations (up, down, stop, logs,
// ps, exec) against the configured stack directory.
//
// # Inputs
//
//   - cfg: Configuration containing stack directory and compose file names.
//   - proc: process.Manager for executing compose commands.
//
// # Outputs
//
//   - compose.Executor: Ready-to-use compose executor.
//   - error: Non-nil if executor creation fails.
//
// # Limitations
//
//   - Requires docker with the compose plugin in PATH.
//
// # Assumptions
//
//   - Stack directory contains valid compose files.
func (f *DefaultStackFactory) createComposeExecutor(
	cfg *config.KasdockConfig,
	proc process.Manager,
) (compose.Executor, error) {
	composeConfig := compose.Config{
		StackDir:            cfg.Stack.Dir,
		ProjectName:         cfg.Stack.ProjectName,
		BaseFile:            cfg.Stack.ComposeFile,
		OverrideFile:        cfg.Stack.OverrideFile,
		EnvFile:             cfg.Stack.EnvFile,
		ContainerNamePrefix: cfg.Stack.ContainerNamePrefix,
	}
	return compose.NewDockerComposeExecutor(composeConfig, proc)
}

// createCatalog loads the profile catalog.
//
// # Description
//
// Uses the built-in catalog unless the stack directory carries a
// profiles.yaml override, in which case that file is loaded and
// validated instead.
func (f *DefaultStackFactory) createCatalog(cfg *config.KasdockConfig) (*stack.Catalog, error) {
	override := filepath.Join(cfg.Stack.Dir, "profiles.yaml")
	if _, err := os.Stat(override); err == nil {
		return stack.LoadCatalog(override)
	}
	return stack.DefaultCatalog(), nil
}

// createValidator creates a DependencyValidator with configured thresholds.
func (f *DefaultStackFactory) createValidator(
	cfg *config.KasdockConfig,
	catalog *stack.Catalog,
	resolver stack.DependencyResolver,
	aggregator stack.ResourceAggregator,
) (stack.DependencyValidator, error) {
	validatorConfig := stack.ValidatorConfig{
		MemoryHighWaterGB: cfg.Thresholds.MemoryHighWaterGB,
	}
	return stack.NewDefaultDependencyValidator(catalog, resolver, aggregator, validatorConfig)
}

// createConfigSynchronizer creates a ConfigSynchronizer for .env handling.
//
// # Description
//
// Builds the backup manager first (with a GCS uploader when snapshot
// uploads are enabled) and binds the synchronizer to the stack .env path.
//
// # Inputs
//
//   - ctx: Context for GCS client initialization.
//   - cfg: Configuration with stack and backup settings.
//
// # Outputs
//
//   - stack.ConfigSynchronizer: Ready-to-use synchronizer.
//   - error: Non-nil if the GCS client or synchronizer creation fails.
//
// # Limitations
//
//   - A misconfigured GCS backup section fails creation rather than
//     silently disabling uploads.
func (f *DefaultStackFactory) createConfigSynchronizer(
	ctx context.Context,
	cfg *config.KasdockConfig,
) (stack.ConfigSynchronizer, error) {
	var uploader stack.SnapshotUploader
	if cfg.Backup.Enabled {
		client, err := gcs.NewClient(ctx, cfg.Backup.GCSProject, cfg.Backup.GCSBucket, cfg.Backup.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCS client: %w", err)
		}
		uploader = client
	}

	backup := stack.NewBackupManager(stack.DefaultBackupManagerConfig(), uploader)
	envPath := filepath.Join(cfg.Stack.Dir, cfg.Stack.EnvFile)
	return stack.NewDefaultConfigSynchronizer(envPath, backup)
}

// createStateStore opens the Badger-backed installation state store.
//
// # Description
//
// Opens the persistent store under the configured state directory, or an
// in-memory store when configured (used by tests and dry runs). The store
// logs through the shared structured logger.
func (f *DefaultStackFactory) createStateStore(cfg *config.KasdockConfig) (StateStore, error) {
	storeConfig := DefaultStateStoreConfig(cfg.State.Dir)
	storeConfig.InMemory = cfg.State.InMemory
	storeConfig.Logger = logging.Default().Slog()
	return NewBadgerStateStore(storeConfig)
}

// createHistoryRecorder creates the InfluxDB history recorder when enabled.
//
// # Description
//
// Returns nil when history recording is disabled; StackManager treats a
// nil recorder as "recording off". An enabled but unreachable InfluxDB
// degrades to a warning rather than blocking CLI startup.
func (f *DefaultStackFactory) createHistoryRecorder(
	ctx context.Context,
	cfg *config.KasdockConfig,
) (HistoryRecorder, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	recorder, err := NewInfluxHistoryRecorder(probeCtx, cfg.History)
	if err != nil {
		if errors.Is(err, ErrHistoryDisabled) {
			return nil, nil
		}
		if errors.Is(err, ErrHistoryUnreachable) {
			logging.Default().Warn("history backend unreachable, recording disabled",
				"url", cfg.History.URL)
			return nil, nil
		}
		return nil, err
	}
	return recorder, nil
}

// =============================================================================
// PACKAGE-LEVEL FACTORY FUNCTION
// =============================================================================

// CreateProductionStackManager creates a StackManager with all production dependencies.
//
// # Description
//
// Convenience function that creates a DefaultStackFactory and uses it to build
// a StackManager. This is the primary entry point for CLI code.
//
// # Inputs
//
//   - ctx: Context for dependency initialization.
//   - cfg: The global Kasdock configuration containing all settings.
//
// # Outputs
//
//   - StackManager: Ready-to-use stack manager with all dependencies wired.
//   - error: Non-nil if any dependency creation fails.
//
// # Examples
//
//	mgr, err := CreateProductionStackManager(ctx, &config.Global)
//	if err != nil {
//	    log.Fatalf("Failed to create stack manager: %v", err)
//	}
//	err = mgr.Install(ctx, opts)
//
// # Limitations
//
//   - Creates all dependencies even if only some operations are needed.
//   - Not suitable for unit tests; use mock implementations instead.
//
// # Assumptions
//
//   - Config is valid and loaded.
//   - Stack directory exists and is accessible.
func CreateProductionStackManager(ctx context.Context, cfg *config.KasdockConfig) (StackManager, error) {
	factory := NewDefaultStackFactory()
	return factory.CreateStackManager(ctx, cfg)
}
