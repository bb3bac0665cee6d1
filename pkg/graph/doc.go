// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package graph builds and queries the profile dependency graph.
//
// This package converts profile declarations into a JSON-serializable
// node/edge document for visualization, and implements dependents,
// requirements, and why-chain queries using BFS traversal with depth
// limits and cycle detection.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────────────────┐
//	│                      Profile Graph Flow                                  │
//	├─────────────────────────────────────────────────────────────────────────┤
//	│                                                                          │
//	│  ┌─────────────┐    ┌─────────────┐    ┌─────────────┐                  │
//	│  │ Profile     │───▶│   Builder   │───▶│   Graph     │                  │
//	│  │ Specs       │    │  (validate) │    │ (JSON doc)  │                  │
//	│  └─────────────┘    └─────────────┘    └─────────────┘                  │
//	│                            │                                             │
//	│                            ▼                                             │
//	│  ┌─────────────┐    ┌─────────────┐    ┌─────────────┐                  │
//	│  │  Output     │◀───│  Querier    │◀───│  BFS        │                  │
//	│  │  (json)     │    │  (queries)  │    │  Traversal  │                  │
//	│  └─────────────┘    └─────────────┘    └─────────────┘                  │
//	│                                                                          │
//	└─────────────────────────────────────────────────────────────────────────┘
//
// # Thread Safety
//
// Builder and Querier are safe for concurrent use after construction.
package graph
