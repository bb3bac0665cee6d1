// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stack

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// =============================================================================
// Error Definitions
// =============================================================================

var (
	// ErrUnknownTemplate is returned for a template id not in the registry.
	ErrUnknownTemplate = errors.New("unknown configuration template")

	// ErrEnvWriteFailed is returned when the .env file cannot be written.
	ErrEnvWriteFailed = errors.New("failed to write environment file")
)

// =============================================================================
// Change and Impact Types
// =============================================================================

// ChangeType classifies a single configuration key change.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// ImpactSeverity ranks how disruptive a configuration change is.
type ImpactSeverity string

const (
	ImpactHigh   ImpactSeverity = "high"
	ImpactMedium ImpactSeverity = "medium"
	ImpactLow    ImpactSeverity = "low"
)

// ConfigChange describes one key-level difference between two configs.
type ConfigChange struct {
	// Key is the environment variable name.
	Key string `json:"key"`

	// Type is added, modified, or removed.
	Type ChangeType `json:"type"`

	// OldValue is the previous value (empty for added keys).
	OldValue string `json:"old_value,omitempty"`

	// NewValue is the new value (empty for removed keys).
	NewValue string `json:"new_value,omitempty"`

	// Sensitive marks values that must be redacted in previews and logs.
	Sensitive bool `json:"sensitive,omitempty"`
}

// ChangeImpact describes the operational consequence of a change.
type ChangeImpact struct {
	// Key is the environment variable the impact applies to.
	Key string `json:"key"`

	// Severity is high, medium, or low.
	Severity ImpactSeverity `json:"severity"`

	// Reason explains the impact in user-facing terms.
	Reason string `json:"reason"`

	// RequiresRestart means affected services must be restarted.
	RequiresRestart bool `json:"requires_restart"`

	// RequiresConfirmation means the change must be explicitly confirmed.
	RequiresConfirmation bool `json:"requires_confirmation"`

	// RequiresBackup means data should be backed up before applying.
	RequiresBackup bool `json:"requires_backup"`
}

// ConfigTemplate is a named set of environment settings.
type ConfigTemplate struct {
	// ID is the stable template identifier.
	ID string `json:"id"`

	// Name is the human-readable template name.
	Name string `json:"name"`

	// Description explains what the template configures.
	Description string `json:"description"`

	// Settings are the template's env key/values.
	Settings *EnvConfig `json:"-"`
}

// TemplateResult contains the outcome of applying a template.
type TemplateResult struct {
	// TemplateID is the applied template.
	TemplateID string `json:"template_id"`

	// Merged is the resulting configuration
	// (current <- template <- overrides).
	Merged *EnvConfig `json:"-"`

	// Changes lists every key-level difference from current.
	Changes []ConfigChange `json:"changes"`

	// Impacts lists the operational consequences of the changes.
	Impacts []ChangeImpact `json:"impacts"`

	// RequiresConfirmation is true if any impact requires confirmation.
	RequiresConfirmation bool `json:"requires_confirmation"`

	// Preview is a unified diff of the change, sensitive values redacted.
	Preview string `json:"preview"`
}

// SyncResult contains the outcome of writing the stack .env file.
type SyncResult struct {
	// EnvPath is the written file.
	EnvPath string

	// BackupPath is the pre-write backup (empty if nothing existed).
	BackupPath string

	// RemoteURL is the uploaded snapshot location (empty if uploads are off).
	RemoteURL string

	// Changes lists what changed relative to the previous file.
	Changes []ConfigChange

	// Written is false when the desired config matched the file already.
	Written bool
}

// =============================================================================
// Built-in Templates
// =============================================================================

// builtinTemplates returns the fixed template registry in display order.
//
// Values follow the stock kaspad/stratum conventions: mainnet RPC on
// 16110, testnet RPC on 16210, stratum on 5555.
func builtinTemplates() []ConfigTemplate {
	return []ConfigTemplate{
		{
			ID:          "mainnet-default",
			Name:        "Mainnet default",
			Description: "Standard mainnet node with UTXO index enabled.",
			Settings: MustNewEnvConfig(
				EnvVar{Key: "KASPA_NETWORK", Value: "mainnet"},
				EnvVar{Key: "KASPAD_RPC_PORT", Value: "16110"},
				EnvVar{Key: "KASPAD_P2P_PORT", Value: "16111"},
				EnvVar{Key: "KASPAD_UTXO_INDEX", Value: "true"},
				EnvVar{Key: "LOG_LEVEL", Value: "info"},
			),
		},
		{
			ID:          "developer-setup",
			Name:        "Developer setup",
			Description: "Testnet node with debug logging and the faucet enabled.",
			Settings: MustNewEnvConfig(
				EnvVar{Key: "KASPA_NETWORK", Value: "testnet"},
				EnvVar{Key: "KASPAD_RPC_PORT", Value: "16210"},
				EnvVar{Key: "KASPAD_P2P_PORT", Value: "16211"},
				EnvVar{Key: "KASPAD_UTXO_INDEX", Value: "true"},
				EnvVar{Key: "FAUCET_ENABLED", Value: "true"},
				EnvVar{Key: "LOG_LEVEL", Value: "debug"},
			),
		},
		{
			ID:          "archive-sync",
			Name:        "Archive sync",
			Description: "Non-pruning archival node keeping full block history.",
			Settings: MustNewEnvConfig(
				EnvVar{Key: "KASPA_NETWORK", Value: "mainnet"},
				EnvVar{Key: "KASPAD_ARCHIVAL", Value: "true"},
				EnvVar{Key: "KASPAD_PRUNING_ENABLED", Value: "false"},
				EnvVar{Key: "KASPAD_UTXO_INDEX", Value: "true"},
				EnvVar{Key: "LOG_LEVEL", Value: "info"},
			),
		},
		{
			ID:          "solo-mining",
			Name:        "Solo mining",
			Description: "Stratum bridge against the local node. Set MINING_ADDRESS before starting.",
			Settings: MustNewEnvConfig(
				EnvVar{Key: "KASPA_NETWORK", Value: "mainnet"},
				EnvVar{Key: "STRATUM_PORT", Value: "5555"},
				EnvVar{Key: "STRATUM_NODE_RPC_URL", Value: "kaspad:16110"},
				EnvVar{Key: "STRATUM_VAR_DIFF", Value: "true"},
				EnvVar{Key: "MINING_ADDRESS", Value: ""},
			),
		},
	}
}

// =============================================================================
// Impact Rules
// =============================================================================

// impactRule maps a key change to its operational consequence.
// Rules are evaluated independently; a change can match at most one rule
// (rules are keyed by env var name plus an optional value predicate).
type impactRule struct {
	key      string
	applies  func(ConfigChange) bool
	severity ImpactSeverity
	reason   string
	restart  bool
	confirm  bool
	backup   bool
}

// valueChanged matches modified keys and any add/remove.
func valueChanged(c ConfigChange) bool {
	return c.OldValue != c.NewValue
}

// impactRules is the fixed assessment table.
var impactRules = []impactRule{
	{
		key:      "KASPA_NETWORK",
		applies:  valueChanged,
		severity: ImpactHigh,
		reason:   "switching networks invalidates the current chain data and triggers a full re-sync",
		restart:  true,
		confirm:  true,
	},
	{
		key:      "KASPAD_RPC_PORT",
		applies:  valueChanged,
		severity: ImpactMedium,
		reason:   "indexers and the stratum bridge connect to this port; dependent services restart",
		restart:  true,
	},
	{
		key:      "KASPAD_P2P_PORT",
		applies:  valueChanged,
		severity: ImpactMedium,
		reason:   "peers dial this port; the node restarts and re-announces",
		restart:  true,
	},
	{
		key: "WALLET_ENABLED",
		applies: func(c ConfigChange) bool {
			return c.Type == ChangeModified &&
				strings.EqualFold(c.OldValue, "true") &&
				strings.EqualFold(c.NewValue, "false")
		},
		severity: ImpactMedium,
		reason:   "disabling the wallet stops access to funds; back up wallet data first",
		backup:   true,
	},
}

// =============================================================================
// Interface Definition
// =============================================================================

// ConfigSynchronizer reconciles the stack's .env configuration.
//
// # Description
//
// Owns the template registry, computes key-level diffs between
// configurations, assesses the operational impact of changes, renders
// unified-diff previews, and writes the stack .env file with a backup
// of the previous version.
//
// # Merge Precedence
//
// ApplyTemplate merges current <- template <- overrides: an override
// beats the template, the template beats the current value.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use of the pure methods.
// SyncStackEnv serializes writes internally.
type ConfigSynchronizer interface {
	// Templates returns the registry in display order.
	Templates() []ConfigTemplate

	// GetTemplate returns a template by id or ErrUnknownTemplate.
	GetTemplate(id string) (*ConfigTemplate, error)

	// ApplyTemplate merges a template into the current config and
	// reports every change with its impact. Pure: nothing is written.
	//
	// # Inputs
	//
	//   - templateID: Template to apply
	//   - current: Current configuration (nil treated as empty)
	//   - overrides: User overrides applied after the template
	//
	// # Outputs
	//
	//   - *TemplateResult: Merged config, changes, impacts, preview
	//   - error: ErrUnknownTemplate or invalid override keys
	ApplyTemplate(templateID string, current *EnvConfig, overrides map[string]string) (*TemplateResult, error)

	// DiffConfigs returns key-level changes turning current into desired.
	// Added and modified keys appear in desired's order, removed keys in
	// current's order.
	DiffConfigs(current, desired *EnvConfig) []ConfigChange

	// AssessImpact evaluates the fixed impact rule table against changes.
	// Each rule is evaluated independently.
	AssessImpact(changes []ConfigChange) []ChangeImpact

	// RenderPreview renders changes as a unified diff with sensitive
	// values redacted.
	RenderPreview(changes []ConfigChange) (string, error)

	// LoadStackEnv reads the stack .env file. A missing file yields an
	// empty config, not an error.
	LoadStackEnv() (*EnvConfig, error)

	// SyncStackEnv writes the desired config to the stack .env file,
	// backing up the previous version first. No write happens when the
	// file already matches.
	SyncStackEnv(ctx context.Context, desired *EnvConfig) (*SyncResult, error)
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultConfigSynchronizer implements ConfigSynchronizer for a stack
// directory's .env file.
type DefaultConfigSynchronizer struct {
	envPath   string
	backup    BackupManager
	templates []ConfigTemplate
}

// NewDefaultConfigSynchronizer creates a synchronizer for the given .env path.
//
// # Inputs
//
//   - envPath: Absolute path of the stack .env file
//   - backup: BackupManager for pre-write backups
//
// # Outputs
//
//   - *DefaultConfigSynchronizer: Ready-to-use synchronizer
//   - error: ErrNilDependency if backup is nil, or empty envPath
func NewDefaultConfigSynchronizer(envPath string, backup BackupManager) (*DefaultConfigSynchronizer, error) {
	if envPath == "" {
		return nil, errors.New("env path is required")
	}
	if backup == nil {
		return nil, fmt.Errorf("%w: BackupManager", ErrNilDependency)
	}

	return &DefaultConfigSynchronizer{
		envPath:   envPath,
		backup:    backup,
		templates: builtinTemplates(),
	}, nil
}

// Templates returns the registry in display order.
func (s *DefaultConfigSynchronizer) Templates() []ConfigTemplate {
	out := make([]ConfigTemplate, len(s.templates))
	copy(out, s.templates)
	return out
}

// GetTemplate returns a template by id or ErrUnknownTemplate.
func (s *DefaultConfigSynchronizer) GetTemplate(id string) (*ConfigTemplate, error) {
	for i := range s.templates {
		if s.templates[i].ID == id {
			tmpl := s.templates[i]
			return &tmpl, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, id)
}

// ApplyTemplate merges a template into the current config.
//
// See interface documentation for full details.
func (s *DefaultConfigSynchronizer) ApplyTemplate(templateID string, current *EnvConfig, overrides map[string]string) (*TemplateResult, error) {
	tmpl, err := s.GetTemplate(templateID)
	if err != nil {
		return nil, err
	}

	overrideCfg, err := FromEnvMap(overrides)
	if err != nil {
		return nil, fmt.Errorf("invalid override: %w", err)
	}

	if current == nil {
		current = EmptyEnvConfig()
	}

	merged := current.Merge(tmpl.Settings).Merge(overrideCfg)

	changes := s.DiffConfigs(current, merged)
	impacts := s.AssessImpact(changes)

	preview, err := s.RenderPreview(changes)
	if err != nil {
		return nil, fmt.Errorf("failed to render preview: %w", err)
	}

	result := &TemplateResult{
		TemplateID: templateID,
		Merged:     merged,
		Changes:    changes,
		Impacts:    impacts,
		Preview:    preview,
	}
	for _, impact := range impacts {
		if impact.RequiresConfirmation {
			result.RequiresConfirmation = true
			break
		}
	}

	return result, nil
}

// DiffConfigs returns key-level changes turning current into desired.
func (s *DefaultConfigSynchronizer) DiffConfigs(current, desired *EnvConfig) []ConfigChange {
	changes := []ConfigChange{}

	currentMap := current.ToMap()
	desiredMap := desired.ToMap()

	for _, key := range desired.Keys() {
		newValue := desiredMap[key]
		oldValue, existed := currentMap[key]

		switch {
		case !existed:
			changes = append(changes, ConfigChange{
				Key:       key,
				Type:      ChangeAdded,
				NewValue:  newValue,
				Sensitive: isSensitiveEnvKey(key),
			})
		case oldValue != newValue:
			changes = append(changes, ConfigChange{
				Key:       key,
				Type:      ChangeModified,
				OldValue:  oldValue,
				NewValue:  newValue,
				Sensitive: isSensitiveEnvKey(key),
			})
		}
	}

	for _, key := range current.Keys() {
		if _, kept := desiredMap[key]; !kept {
			changes = append(changes, ConfigChange{
				Key:       key,
				Type:      ChangeRemoved,
				OldValue:  currentMap[key],
				Sensitive: isSensitiveEnvKey(key),
			})
		}
	}

	return changes
}

// AssessImpact evaluates the fixed impact rule table against changes.
func (s *DefaultConfigSynchronizer) AssessImpact(changes []ConfigChange) []ChangeImpact {
	impacts := []ChangeImpact{}

	for _, change := range changes {
		for _, rule := range impactRules {
			if rule.key != change.Key {
				continue
			}
			if rule.applies != nil && !rule.applies(change) {
				continue
			}
			impacts = append(impacts, ChangeImpact{
				Key:                  change.Key,
				Severity:             rule.severity,
				Reason:               rule.reason,
				RequiresRestart:      rule.restart,
				RequiresConfirmation: rule.confirm,
				RequiresBackup:       rule.backup,
			})
		}
	}

	return impacts
}

// RenderPreview renders changes as a unified diff.
//
// # Description
//
// Builds a single-hunk FileDiff over the changed keys only (no context
// lines) and prints it in unified format. Sensitive values are replaced
// with [REDACTED] on both sides.
func (s *DefaultConfigSynchronizer) RenderPreview(changes []ConfigChange) (string, error) {
	if len(changes) == 0 {
		return "", nil
	}

	var body strings.Builder
	var origLines, newLines int32

	for _, change := range changes {
		oldLine := previewLine(change.Key, change.OldValue, change.Sensitive)
		newLine := previewLine(change.Key, change.NewValue, change.Sensitive)

		switch change.Type {
		case ChangeAdded:
			body.WriteString("+" + newLine + "\n")
			newLines++
		case ChangeRemoved:
			body.WriteString("-" + oldLine + "\n")
			origLines++
		case ChangeModified:
			body.WriteString("-" + oldLine + "\n")
			body.WriteString("+" + newLine + "\n")
			origLines++
			newLines++
		}
	}

	fd := &diff.FileDiff{
		OrigName: ".env",
		NewName:  ".env",
		Hunks: []*diff.Hunk{
			{
				OrigStartLine: 1,
				OrigLines:     origLines,
				NewStartLine:  1,
				NewLines:      newLines,
				Body:          []byte(strings.TrimSuffix(body.String(), "\n")),
			},
		},
	}

	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return "", fmt.Errorf("failed to print diff: %w", err)
	}
	return string(out), nil
}

func previewLine(key, value string, sensitive bool) string {
	if sensitive && value != "" {
		return key + "=[REDACTED]"
	}
	return key + "=" + value
}

// LoadStackEnv reads the stack .env file.
func (s *DefaultConfigSynchronizer) LoadStackEnv() (*EnvConfig, error) {
	content, err := os.ReadFile(s.envPath)
	if os.IsNotExist(err) {
		return EmptyEnvConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.envPath, err)
	}
	return ParseEnvContent(string(content))
}

// SyncStackEnv writes the desired config to the stack .env file.
//
// See interface documentation for full details.
func (s *DefaultConfigSynchronizer) SyncStackEnv(ctx context.Context, desired *EnvConfig) (*SyncResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current, err := s.LoadStackEnv()
	if err != nil {
		return nil, err
	}

	result := &SyncResult{
		EnvPath: s.envPath,
		Changes: s.DiffConfigs(current, desired),
	}

	if len(result.Changes) == 0 {
		return result, nil
	}

	backupPath, err := s.backup.BackupBeforeOverwrite(s.envPath)
	if err != nil {
		return nil, fmt.Errorf("failed to backup %s: %w", s.envPath, err)
	}
	result.BackupPath = backupPath

	if backupPath != "" {
		// Upload failures are non-fatal: local backup already exists.
		if remoteURL, err := s.backup.UploadBackup(ctx, backupPath); err == nil {
			result.RemoteURL = remoteURL
		}
	}

	// 0600: the stack env carries database passwords and wallet settings.
	if err := os.WriteFile(s.envPath, []byte(desired.Render()), 0600); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvWriteFailed, err)
	}
	result.Written = true

	return result, nil
}

// =============================================================================
// Mock Implementation
// =============================================================================

// MockConfigSynchronizer is a test double for ConfigSynchronizer.
type MockConfigSynchronizer struct {
	TemplatesFunc     func() []ConfigTemplate
	GetTemplateFunc   func(string) (*ConfigTemplate, error)
	ApplyTemplateFunc func(string, *EnvConfig, map[string]string) (*TemplateResult, error)
	DiffConfigsFunc   func(*EnvConfig, *EnvConfig) []ConfigChange
	AssessImpactFunc  func([]ConfigChange) []ChangeImpact
	RenderPreviewFunc func([]ConfigChange) (string, error)
	LoadStackEnvFunc  func() (*EnvConfig, error)
	SyncStackEnvFunc  func(context.Context, *EnvConfig) (*SyncResult, error)

	ApplyCalls []string
	SyncCalls  int
}

// Templates implements ConfigSynchronizer.
func (m *MockConfigSynchronizer) Templates() []ConfigTemplate {
	if m.TemplatesFunc != nil {
		return m.TemplatesFunc()
	}
	return builtinTemplates()
}

// GetTemplate implements ConfigSynchronizer.
func (m *MockConfigSynchronizer) GetTemplate(id string) (*ConfigTemplate, error) {
	if m.GetTemplateFunc != nil {
		return m.GetTemplateFunc(id)
	}
	for _, tmpl := range builtinTemplates() {
		if tmpl.ID == id {
			return &tmpl, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, id)
}

// ApplyTemplate implements ConfigSynchronizer.
func (m *MockConfigSynchronizer) ApplyTemplate(templateID string, current *EnvConfig, overrides map[string]string) (*TemplateResult, error) {
	m.ApplyCalls = append(m.ApplyCalls, templateID)
	if m.ApplyTemplateFunc != nil {
		return m.ApplyTemplateFunc(templateID, current, overrides)
	}
	return &TemplateResult{TemplateID: templateID, Merged: current.Clone(), Changes: []ConfigChange{}, Impacts: []ChangeImpact{}}, nil
}

// DiffConfigs implements ConfigSynchronizer.
func (m *MockConfigSynchronizer) DiffConfigs(current, desired *EnvConfig) []ConfigChange {
	if m.DiffConfigsFunc != nil {
		return m.DiffConfigsFunc(current, desired)
	}
	return []ConfigChange{}
}

// AssessImpact implements ConfigSynchronizer.
func (m *MockConfigSynchronizer) AssessImpact(changes []ConfigChange) []ChangeImpact {
	if m.AssessImpactFunc != nil {
		return m.AssessImpactFunc(changes)
	}
	return []ChangeImpact{}
}

// RenderPreview implements ConfigSynchronizer.
func (m *MockConfigSynchronizer) RenderPreview(changes []ConfigChange) (string, error) {
	if m.RenderPreviewFunc != nil {
		return m.RenderPreviewFunc(changes)
	}
	return "", nil
}

// LoadStackEnv implements ConfigSynchronizer.
func (m *MockConfigSynchronizer) LoadStackEnv() (*EnvConfig, error) {
	if m.LoadStackEnvFunc != nil {
		return m.LoadStackEnvFunc()
	}
	return EmptyEnvConfig(), nil
}

// SyncStackEnv implements ConfigSynchronizer.
func (m *MockConfigSynchronizer) SyncStackEnv(ctx context.Context, desired *EnvConfig) (*SyncResult, error) {
	m.SyncCalls++
	if m.SyncStackEnvFunc != nil {
		return m.SyncStackEnvFunc(ctx, desired)
	}
	return &SyncResult{Written: true, Changes: []ConfigChange{}}, nil
}

// =============================================================================
// Compile-Time Checks
// =============================================================================

var (
	_ ConfigSynchronizer = (*DefaultConfigSynchronizer)(nil)
	_ ConfigSynchronizer = (*MockConfigSynchronizer)(nil)
)
