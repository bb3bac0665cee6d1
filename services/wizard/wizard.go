// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package wizard hosts the HTTP API backing the installation wizard UI.
//
// The service exposes the same catalog, validation, resource sizing, and
// dependency checking the CLI works against, so a browser can walk a user
// through profile selection with live feedback before anything touches
// the host. The wizard never mutates the stack: installs still go through
// the kasdock CLI.
package wizard

import (
	"errors"
	"path/filepath"

	"github.com/kasdock/kasdock/pkg/stack"
)

// Deps bundles the domain components the wizard handlers consult.
//
// # Description
//
// Handlers receive a *Deps rather than individual components so route
// wiring stays flat. Tests substitute the stack package's Mock
// implementations field by field.
type Deps struct {
	// Catalog is the profile catalog the wizard serves.
	Catalog *stack.Catalog

	// Resolver expands selections into startup order.
	Resolver stack.DependencyResolver

	// Validator checks selections, additions, and removals.
	Validator stack.DependencyValidator

	// Aggregator sums resource envelopes and checks host sufficiency.
	Aggregator stack.ResourceAggregator

	// Probe detects host capacity when the request does not supply it.
	Probe stack.SystemProbe

	// Synchronizer serves templates and renders config previews.
	Synchronizer stack.ConfigSynchronizer

	// Checker probes external dependencies.
	Checker stack.ExternalChecker

	// DataDir is the directory probed for disk capacity.
	DataDir string
}

// NewDefaultDeps wires production components over the built-in catalog.
//
// # Inputs
//
//   - stackDir: directory holding the stack .env for config previews.
//
// # Outputs
//
//   - *Deps: ready-to-use dependency bundle.
//   - error: non-nil when a component rejects its configuration.
func NewDefaultDeps(stackDir string) (*Deps, error) {
	if stackDir == "" {
		return nil, errors.New("stack directory is required")
	}

	catalog := stack.DefaultCatalog()

	resolver, err := stack.NewDefaultDependencyResolver(catalog)
	if err != nil {
		return nil, err
	}

	aggregator, err := stack.NewDefaultResourceAggregator(catalog)
	if err != nil {
		return nil, err
	}

	validator, err := stack.NewDefaultDependencyValidator(catalog, resolver, aggregator, stack.ValidatorConfig{})
	if err != nil {
		return nil, err
	}

	// The wizard only previews configuration; backups stay local and
	// uploads stay off.
	backup := stack.NewBackupManager(stack.DefaultBackupManagerConfig(), nil)
	synchronizer, err := stack.NewDefaultConfigSynchronizer(filepath.Join(stackDir, ".env"), backup)
	if err != nil {
		return nil, err
	}

	return &Deps{
		Catalog:      catalog,
		Resolver:     resolver,
		Validator:    validator,
		Aggregator:   aggregator,
		Probe:        stack.NewDefaultSystemProbe(),
		Synchronizer: synchronizer,
		Checker:      stack.NewDefaultExternalChecker(),
		DataDir:      stackDir,
	}, nil
}
