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
	"os"
	"path/filepath"
	"testing"

	"github.com/kasdock/kasdock/cmd/kasdock/config"
	"github.com/kasdock/kasdock/pkg/stack"
)

// =============================================================================
// Test Helpers
// =============================================================================

// factoryConfig returns a config suitable for wiring the factory without
// Docker, GCS, or InfluxDB: in-memory state, history and backups off.
func factoryConfig(t *testing.T) config.KasdockConfig {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Stack.Dir = t.TempDir()
	cfg.State.InMemory = true
	cfg.History.Enabled = false
	cfg.Backup.Enabled = false
	return cfg
}

// =============================================================================
// Factory Tests
// =============================================================================

func TestCreateStackManager_WiresAllDependencies(t *testing.T) {
	t.Parallel()

	cfg := factoryConfig(t)
	factory := NewDefaultStackFactory()

	mgr, err := factory.CreateStackManager(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("CreateStackManager: %v", err)
	}
	if mgr == nil {
		t.Fatal("expected non-nil manager")
	}

	// History is disabled, so the recorder must be absent rather than a
	// half-configured client.
	impl, ok := mgr.(*DefaultStackManager)
	if !ok {
		t.Fatalf("expected *DefaultStackManager, got %T", mgr)
	}
	t.Cleanup(func() { _ = impl.store.Close() })
	if impl.recorder != nil {
		t.Error("expected nil recorder with history disabled")
	}
	if impl.checker == nil {
		t.Error("expected external checker wired")
	}
}

func TestCreateStackManager_InvalidStackDir(t *testing.T) {
	t.Parallel()

	cfg := factoryConfig(t)
	cfg.Stack.Dir = ""
	factory := NewDefaultStackFactory()

	if _, err := factory.CreateStackManager(context.Background(), &cfg); err == nil {
		t.Error("expected error for empty stack directory")
	}
}

func TestCreateProductionStackManager(t *testing.T) {
	t.Parallel()

	cfg := factoryConfig(t)
	mgr, err := CreateProductionStackManager(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("CreateProductionStackManager: %v", err)
	}
	if mgr == nil {
		t.Fatal("expected non-nil manager")
	}
	if impl, ok := mgr.(*DefaultStackManager); ok {
		t.Cleanup(func() { _ = impl.store.Close() })
	}
}

// =============================================================================
// Catalog Tests
// =============================================================================

func TestCreateCatalog_DefaultWithoutOverride(t *testing.T) {
	t.Parallel()

	cfg := factoryConfig(t)
	factory := NewDefaultStackFactory()

	catalog, err := factory.createCatalog(&cfg)
	if err != nil {
		t.Fatalf("createCatalog: %v", err)
	}
	if !catalog.Has("core") {
		t.Error("expected built-in catalog with core profile")
	}
}

func TestCreateCatalog_OverrideFile(t *testing.T) {
	t.Parallel()

	cfg := factoryConfig(t)
	override := `profiles:
  - id: custom-node
    name: Custom Node
    category: core
    services:
      - name: custom-kaspad
        ports: [16110]
    resources:
      min_cpu: 1
      min_memory_gb: 1
      min_disk_gb: 10
`
	path := filepath.Join(cfg.Stack.Dir, "profiles.yaml")
	if err := os.WriteFile(path, []byte(override), 0644); err != nil {
		t.Fatalf("write override: %v", err)
	}

	factory := NewDefaultStackFactory()
	catalog, err := factory.createCatalog(&cfg)
	if err != nil {
		t.Fatalf("createCatalog: %v", err)
	}
	if !catalog.Has("custom-node") {
		t.Error("expected override profile in catalog")
	}
	if catalog.Has("core") {
		t.Error("expected built-in catalog replaced, not merged")
	}
}

func TestCreateCatalog_InvalidOverride(t *testing.T) {
	t.Parallel()

	cfg := factoryConfig(t)
	override := `profiles:
  - id: broken
    name: Broken
    category: no-such-category
    services:
      - name: svc
`
	path := filepath.Join(cfg.Stack.Dir, "profiles.yaml")
	if err := os.WriteFile(path, []byte(override), 0644); err != nil {
		t.Fatalf("write override: %v", err)
	}

	factory := NewDefaultStackFactory()
	if _, err := factory.createCatalog(&cfg); !errors.Is(err, stack.ErrInvalidCatalog) {
		t.Errorf("expected ErrInvalidCatalog, got %v", err)
	}
}

// =============================================================================
// History Recorder Tests
// =============================================================================

func TestCreateHistoryRecorder(t *testing.T) {
	t.Parallel()

	factory := NewDefaultStackFactory()

	t.Run("disabled returns nil", func(t *testing.T) {
		t.Parallel()
		cfg := factoryConfig(t)

		recorder, err := factory.createHistoryRecorder(context.Background(), &cfg)
		if err != nil {
			t.Fatalf("createHistoryRecorder: %v", err)
		}
		if recorder != nil {
			t.Error("expected nil recorder when disabled")
		}
	})

	t.Run("unreachable backend degrades to nil", func(t *testing.T) {
		t.Parallel()
		cfg := factoryConfig(t)
		cfg.History.Enabled = true
		cfg.History.URL = "http://127.0.0.1:1"
		cfg.History.Token = "test-token"
		cfg.History.Org = "kasdock"
		cfg.History.Bucket = "kasdock-events"

		recorder, err := factory.createHistoryRecorder(context.Background(), &cfg)
		if err != nil {
			t.Fatalf("expected degraded startup, got %v", err)
		}
		if recorder != nil {
			t.Error("expected nil recorder for unreachable backend")
		}
	})

	t.Run("misconfiguration is an error", func(t *testing.T) {
		t.Parallel()
		cfg := factoryConfig(t)
		cfg.History.Enabled = true
		cfg.History.URL = "http://127.0.0.1:8086"
		// Token missing: this is a config mistake, not an outage.

		if _, err := factory.createHistoryRecorder(context.Background(), &cfg); err == nil {
			t.Error("expected error for missing token")
		}
	})
}
