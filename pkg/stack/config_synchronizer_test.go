// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package stack tests for the configuration synchronizer.

These tests verify:
  - Template merge precedence (current <- template <- overrides)
  - Field-level diffs reporting every key individually
  - The fixed high-impact rule table
  - Unified-diff previews with redaction
  - .env synchronization with pre-write backup
*/
package stack

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestSynchronizer(t *testing.T) (*DefaultConfigSynchronizer, string) {
	t.Helper()

	envPath := filepath.Join(t.TempDir(), ".env")
	sync, err := NewDefaultConfigSynchronizer(envPath, &MockBackupManager{})
	if err != nil {
		t.Fatalf("failed to create synchronizer: %v", err)
	}
	return sync, envPath
}

// =============================================================================
// Template Registry Tests
// =============================================================================

// TestTemplates_Registry verifies the built-in registry and lookup.
func TestTemplates_Registry(t *testing.T) {
	t.Parallel()

	sync, _ := newTestSynchronizer(t)

	wantIDs := []string{"mainnet-default", "developer-setup", "archive-sync", "solo-mining"}
	templates := sync.Templates()
	if len(templates) != len(wantIDs) {
		t.Fatalf("expected %d templates, got: %d", len(wantIDs), len(templates))
	}
	for i, id := range wantIDs {
		if templates[i].ID != id {
			t.Errorf("position %d: expected %q, got %q", i, id, templates[i].ID)
		}
	}

	if _, err := sync.GetTemplate("mainnet-default"); err != nil {
		t.Errorf("expected lookup to succeed, got: %v", err)
	}
	if _, err := sync.GetTemplate("nope"); !errors.Is(err, ErrUnknownTemplate) {
		t.Errorf("expected ErrUnknownTemplate, got: %v", err)
	}
}

// =============================================================================
// ApplyTemplate Tests
// =============================================================================

// TestApplyTemplate_NetworkSwitch covers the high-impact network change.
//
// # Description
//
// Applying developer-setup over a mainnet config must report a modified
// KASPA_NETWORK entry (mainnet -> testnet) and a high-severity impact
// requiring explicit confirmation.
func TestApplyTemplate_NetworkSwitch(t *testing.T) {
	t.Parallel()

	sync, _ := newTestSynchronizer(t)
	current := MustNewEnvConfig(EnvVar{Key: "KASPA_NETWORK", Value: "mainnet"})

	result, err := sync.ApplyTemplate("developer-setup", current, nil)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	var networkChange *ConfigChange
	for i := range result.Changes {
		if result.Changes[i].Key == "KASPA_NETWORK" {
			networkChange = &result.Changes[i]
		}
	}
	if networkChange == nil {
		t.Fatalf("expected KASPA_NETWORK change, got: %+v", result.Changes)
	}
	if networkChange.Type != ChangeModified ||
		networkChange.OldValue != "mainnet" || networkChange.NewValue != "testnet" {
		t.Errorf("expected modified mainnet -> testnet, got: %+v", networkChange)
	}

	var networkImpact *ChangeImpact
	for i := range result.Impacts {
		if result.Impacts[i].Key == "KASPA_NETWORK" {
			networkImpact = &result.Impacts[i]
		}
	}
	if networkImpact == nil {
		t.Fatalf("expected KASPA_NETWORK impact, got: %+v", result.Impacts)
	}
	if networkImpact.Severity != ImpactHigh || !networkImpact.RequiresConfirmation {
		t.Errorf("expected high severity requiring confirmation, got: %+v", networkImpact)
	}
	if !result.RequiresConfirmation {
		t.Error("expected result-level RequiresConfirmation")
	}
}

// TestApplyTemplate_MergePrecedence verifies override beats template beats
// current.
func TestApplyTemplate_MergePrecedence(t *testing.T) {
	t.Parallel()

	sync, _ := newTestSynchronizer(t)
	current := MustNewEnvConfig(
		EnvVar{Key: "KASPA_NETWORK", Value: "mainnet"},
		EnvVar{Key: "CUSTOM_FLAG", Value: "kept"},
	)
	overrides := map[string]string{"LOG_LEVEL": "trace"}

	result, err := sync.ApplyTemplate("developer-setup", current, overrides)
	if err != nil {
		t.Fatal(err)
	}

	merged := result.Merged
	if got := merged.Get("KASPA_NETWORK"); got != "testnet" {
		t.Errorf("template must beat current: got %q", got)
	}
	if got := merged.Get("LOG_LEVEL"); got != "trace" {
		t.Errorf("override must beat template: got %q", got)
	}
	if got := merged.Get("CUSTOM_FLAG"); got != "kept" {
		t.Errorf("untouched current keys must survive: got %q", got)
	}
}

// TestApplyTemplate_NilCurrent verifies a nil current config is treated as
// empty.
func TestApplyTemplate_NilCurrent(t *testing.T) {
	t.Parallel()

	sync, _ := newTestSynchronizer(t)

	result, err := sync.ApplyTemplate("mainnet-default", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, change := range result.Changes {
		if change.Type != ChangeAdded {
			t.Errorf("expected only added changes on empty base, got: %+v", change)
		}
	}
	if result.Merged.Get("KASPA_NETWORK") != "mainnet" {
		t.Error("expected template values in merged result")
	}
}

// TestApplyTemplate_UnknownTemplate verifies the registry guard.
func TestApplyTemplate_UnknownTemplate(t *testing.T) {
	t.Parallel()

	sync, _ := newTestSynchronizer(t)

	_, err := sync.ApplyTemplate("ghost", nil, nil)
	if !errors.Is(err, ErrUnknownTemplate) {
		t.Errorf("expected ErrUnknownTemplate, got: %v", err)
	}
}

// TestApplyTemplate_InvalidOverrideKey verifies override validation.
func TestApplyTemplate_InvalidOverrideKey(t *testing.T) {
	t.Parallel()

	sync, _ := newTestSynchronizer(t)

	_, err := sync.ApplyTemplate("mainnet-default", nil, map[string]string{"bad key": "x"})
	if !errors.Is(err, ErrInvalidEnvKey) {
		t.Errorf("expected ErrInvalidEnvKey, got: %v", err)
	}
}

// =============================================================================
// DiffConfigs Tests
// =============================================================================

// TestDiffConfigs verifies every changed key is reported individually.
func TestDiffConfigs(t *testing.T) {
	t.Parallel()

	sync, _ := newTestSynchronizer(t)
	current := MustNewEnvConfig(
		EnvVar{Key: "A", Value: "1"},
		EnvVar{Key: "B", Value: "2"},
		EnvVar{Key: "C", Value: "3"},
	)
	desired := MustNewEnvConfig(
		EnvVar{Key: "A", Value: "1"},
		EnvVar{Key: "B", Value: "changed"},
		EnvVar{Key: "D", Value: "4"},
	)

	changes := sync.DiffConfigs(current, desired)
	if len(changes) != 3 {
		t.Fatalf("expected 3 changes, got: %+v", changes)
	}

	byKey := map[string]ConfigChange{}
	for _, c := range changes {
		byKey[c.Key] = c
	}
	if byKey["B"].Type != ChangeModified || byKey["B"].OldValue != "2" || byKey["B"].NewValue != "changed" {
		t.Errorf("unexpected B change: %+v", byKey["B"])
	}
	if byKey["C"].Type != ChangeRemoved || byKey["C"].OldValue != "3" {
		t.Errorf("unexpected C change: %+v", byKey["C"])
	}
	if byKey["D"].Type != ChangeAdded || byKey["D"].NewValue != "4" {
		t.Errorf("unexpected D change: %+v", byKey["D"])
	}
}

// TestDiffConfigs_Identical verifies no changes for equal configs.
func TestDiffConfigs_Identical(t *testing.T) {
	t.Parallel()

	sync, _ := newTestSynchronizer(t)
	cfg := MustNewEnvConfig(EnvVar{Key: "A", Value: "1"})

	if changes := sync.DiffConfigs(cfg, cfg.Clone()); len(changes) != 0 {
		t.Errorf("expected no changes, got: %+v", changes)
	}
}

// TestDiffConfigs_SensitiveMarking verifies sensitive keys carry the flag.
func TestDiffConfigs_SensitiveMarking(t *testing.T) {
	t.Parallel()

	sync, _ := newTestSynchronizer(t)
	desired := MustNewEnvConfig(EnvVar{Key: "POSTGRES_PASSWORD", Value: "s3cret", Sensitive: true})

	changes := sync.DiffConfigs(EmptyEnvConfig(), desired)
	if len(changes) != 1 || !changes[0].Sensitive {
		t.Errorf("expected sensitive change, got: %+v", changes)
	}
}

// =============================================================================
// AssessImpact Tests
// =============================================================================

// TestAssessImpact_RuleTable verifies each fixed rule independently.
func TestAssessImpact_RuleTable(t *testing.T) {
	t.Parallel()

	sync, _ := newTestSynchronizer(t)

	tests := []struct {
		name        string
		change      ConfigChange
		wantImpacts int
		severity    ImpactSeverity
		restart     bool
		confirm     bool
		backup      bool
	}{
		{
			name:        "network switch",
			change:      ConfigChange{Key: "KASPA_NETWORK", Type: ChangeModified, OldValue: "mainnet", NewValue: "testnet"},
			wantImpacts: 1,
			severity:    ImpactHigh,
			restart:     true,
			confirm:     true,
		},
		{
			name:        "rpc port change",
			change:      ConfigChange{Key: "KASPAD_RPC_PORT", Type: ChangeModified, OldValue: "16110", NewValue: "16210"},
			wantImpacts: 1,
			severity:    ImpactMedium,
			restart:     true,
		},
		{
			name:        "p2p port change",
			change:      ConfigChange{Key: "KASPAD_P2P_PORT", Type: ChangeModified, OldValue: "16111", NewValue: "16211"},
			wantImpacts: 1,
			severity:    ImpactMedium,
			restart:     true,
		},
		{
			name:        "wallet disabled",
			change:      ConfigChange{Key: "WALLET_ENABLED", Type: ChangeModified, OldValue: "true", NewValue: "false"},
			wantImpacts: 1,
			severity:    ImpactMedium,
			backup:      true,
		},
		{
			name:        "wallet enabled is not an impact",
			change:      ConfigChange{Key: "WALLET_ENABLED", Type: ChangeModified, OldValue: "false", NewValue: "true"},
			wantImpacts: 0,
		},
		{
			name:        "unrelated key",
			change:      ConfigChange{Key: "LOG_LEVEL", Type: ChangeModified, OldValue: "info", NewValue: "debug"},
			wantImpacts: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			impacts := sync.AssessImpact([]ConfigChange{tt.change})
			if len(impacts) != tt.wantImpacts {
				t.Fatalf("expected %d impacts, got: %+v", tt.wantImpacts, impacts)
			}
			if tt.wantImpacts == 0 {
				return
			}
			impact := impacts[0]
			if impact.Severity != tt.severity {
				t.Errorf("expected severity %s, got: %s", tt.severity, impact.Severity)
			}
			if impact.RequiresRestart != tt.restart ||
				impact.RequiresConfirmation != tt.confirm ||
				impact.RequiresBackup != tt.backup {
				t.Errorf("unexpected flags: %+v", impact)
			}
		})
	}
}

// TestAssessImpact_MultipleRulesFire verifies independent evaluation.
func TestAssessImpact_MultipleRulesFire(t *testing.T) {
	t.Parallel()

	sync, _ := newTestSynchronizer(t)
	changes := []ConfigChange{
		{Key: "KASPA_NETWORK", Type: ChangeModified, OldValue: "mainnet", NewValue: "testnet"},
		{Key: "KASPAD_RPC_PORT", Type: ChangeModified, OldValue: "16110", NewValue: "16210"},
	}

	impacts := sync.AssessImpact(changes)
	if len(impacts) != 2 {
		t.Errorf("expected both rules to fire, got: %+v", impacts)
	}
}

// =============================================================================
// RenderPreview Tests
// =============================================================================

// TestRenderPreview verifies unified-diff output with redaction.
func TestRenderPreview(t *testing.T) {
	t.Parallel()

	sync, _ := newTestSynchronizer(t)
	changes := []ConfigChange{
		{Key: "KASPA_NETWORK", Type: ChangeModified, OldValue: "mainnet", NewValue: "testnet"},
		{Key: "POSTGRES_PASSWORD", Type: ChangeAdded, NewValue: "s3cret", Sensitive: true},
	}

	preview, err := sync.RenderPreview(changes)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if !strings.Contains(preview, "-KASPA_NETWORK=mainnet") ||
		!strings.Contains(preview, "+KASPA_NETWORK=testnet") {
		t.Errorf("expected network lines in preview:\n%s", preview)
	}
	if strings.Contains(preview, "s3cret") {
		t.Errorf("sensitive value leaked into preview:\n%s", preview)
	}
	if !strings.Contains(preview, "POSTGRES_PASSWORD=[REDACTED]") {
		t.Errorf("expected redacted line in preview:\n%s", preview)
	}
}

// TestRenderPreview_NoChanges verifies empty output for empty change sets.
func TestRenderPreview_NoChanges(t *testing.T) {
	t.Parallel()

	sync, _ := newTestSynchronizer(t)

	preview, err := sync.RenderPreview(nil)
	if err != nil {
		t.Fatal(err)
	}
	if preview != "" {
		t.Errorf("expected empty preview, got: %q", preview)
	}
}

// =============================================================================
// Stack Env Sync Tests
// =============================================================================

// TestLoadStackEnv_Missing verifies a missing .env yields an empty config.
func TestLoadStackEnv_Missing(t *testing.T) {
	t.Parallel()

	sync, _ := newTestSynchronizer(t)

	cfg, err := sync.LoadStackEnv()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.Len() != 0 {
		t.Errorf("expected empty config, got: %v", cfg.Keys())
	}
}

// TestSyncStackEnv verifies write, backup, and the no-op fast path.
func TestSyncStackEnv(t *testing.T) {
	t.Parallel()

	envPath := filepath.Join(t.TempDir(), ".env")
	backup := &MockBackupManager{}
	sync, err := NewDefaultConfigSynchronizer(envPath, backup)
	if err != nil {
		t.Fatal(err)
	}

	desired := MustNewEnvConfig(
		EnvVar{Key: "KASPA_NETWORK", Value: "mainnet"},
		EnvVar{Key: "KASPAD_RPC_PORT", Value: "16110"},
	)

	result, err := sync.SyncStackEnv(context.Background(), desired)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !result.Written {
		t.Error("expected file written")
	}
	if len(result.Changes) != 2 {
		t.Errorf("expected 2 changes, got: %+v", result.Changes)
	}
	if len(backup.BackupCalls) != 1 {
		t.Errorf("expected backup before overwrite, got: %d calls", len(backup.BackupCalls))
	}

	content, err := os.ReadFile(envPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "KASPA_NETWORK=mainnet\nKASPAD_RPC_PORT=16110\n" {
		t.Errorf("unexpected .env content:\n%s", content)
	}

	info, err := os.Stat(envPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600 permissions, got: %v", info.Mode().Perm())
	}

	// Second sync with the same config is a no-op.
	again, err := sync.SyncStackEnv(context.Background(), desired)
	if err != nil {
		t.Fatal(err)
	}
	if again.Written {
		t.Error("expected no write for an unchanged config")
	}
	if len(again.Changes) != 0 {
		t.Errorf("expected no changes, got: %+v", again.Changes)
	}
}

// TestSyncStackEnv_CancelledContext verifies the context guard.
func TestSyncStackEnv_CancelledContext(t *testing.T) {
	t.Parallel()

	sync, _ := newTestSynchronizer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := sync.SyncStackEnv(ctx, EmptyEnvConfig()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
}

// =============================================================================
// Constructor Tests
// =============================================================================

// TestNewDefaultConfigSynchronizer_Guards verifies input validation.
func TestNewDefaultConfigSynchronizer_Guards(t *testing.T) {
	t.Parallel()

	if _, err := NewDefaultConfigSynchronizer("", &MockBackupManager{}); err == nil {
		t.Error("expected error for empty env path")
	}
	if _, err := NewDefaultConfigSynchronizer("/tmp/.env", nil); !errors.Is(err, ErrNilDependency) {
		t.Errorf("expected ErrNilDependency, got: %v", err)
	}
}
