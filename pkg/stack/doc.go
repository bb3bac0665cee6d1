// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stack implements the profile dependency and reconfiguration
// engine shared by the Kasdock CLI and the wizard service.
//
// The engine covers the full selection-to-configuration pipeline: the
// profile catalog, dependency resolution and startup ordering,
// selection/addition/removal validation, resource aggregation against
// host capacity, .env synchronization with impact assessment, external
// reachability checks, and pre-write backups.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────────────────┐
//	│                    Selection → Configuration Flow                        │
//	├─────────────────────────────────────────────────────────────────────────┤
//	│                                                                          │
//	│  ┌──────────┐   ┌───────────┐   ┌───────────┐   ┌───────────────┐       │
//	│  │ Catalog  │──▶│ Validator │──▶│ Resolver  │──▶│ Aggregator    │       │
//	│  │ (yaml)   │   │ (rules)   │   │ (closure) │   │ vs SystemProbe│       │
//	│  └──────────┘   └───────────┘   └───────────┘   └───────────────┘       │
//	│                                                        │                 │
//	│                                                        ▼                 │
//	│  ┌───────────┐   ┌──────────────┐   ┌──────────────────────┐            │
//	│  │ External  │◀──│ Synchronizer │◀──│ EnvConfig + Templates │            │
//	│  │ Checker   │   │ (.env+backup)│   │ (merge + impact)      │            │
//	│  └───────────┘   └──────────────┘   └──────────────────────┘            │
//	│                                                                          │
//	└─────────────────────────────────────────────────────────────────────────┘
//
// Every component follows the interface/default/mock pattern so callers
// can inject test doubles without touching the real host, filesystem,
// or network.
//
// # Thread Safety
//
// Catalog, resolver, validator, and aggregator are immutable after
// construction and safe for concurrent use. EnvConfig values are
// copy-on-write via Clone. The checker bounds its own concurrency with
// an errgroup and a shared rate limiter.
package stack
