// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kasdock/kasdock/cmd/kasdock/config"
	"github.com/kasdock/kasdock/cmd/kasdock/gcs"
	"github.com/kasdock/kasdock/cmd/kasdock/internal/watcher"
	"github.com/kasdock/kasdock/pkg/stack"
	"github.com/kasdock/kasdock/pkg/ux"
)

// mustSynchronizer builds the .env synchronizer or exits. Mirrors the
// production factory wiring so standalone config commands behave the same
// as the install pipeline.
func mustSynchronizer(ctx context.Context) stack.ConfigSynchronizer {
	var uploader stack.SnapshotUploader
	if config.Global.Backup.Enabled {
		client, err := gcs.NewClient(ctx,
			config.Global.Backup.GCSProject,
			config.Global.Backup.GCSBucket,
			config.Global.Backup.CredentialsFile)
		if err != nil {
			log.Fatalf("Failed to create GCS client: %v", err)
		}
		uploader = client
	}

	backup := stack.NewBackupManager(stack.DefaultBackupManagerConfig(), uploader)
	envPath := filepath.Join(config.Global.Stack.Dir, config.Global.Stack.EnvFile)
	synchronizer, err := stack.NewDefaultConfigSynchronizer(envPath, backup)
	if err != nil {
		log.Fatalf("Failed to create config synchronizer: %v", err)
	}
	return synchronizer
}

func runConfigTemplates(cmd *cobra.Command, args []string) {
	synchronizer := mustSynchronizer(context.Background())

	ux.Title("Configuration Templates")
	for _, tpl := range synchronizer.Templates() {
		detail := fmt.Sprintf("%s (%d settings)", tpl.Description, tpl.Settings.Len())
		ux.ServiceStatus(tpl.ID, ux.IconBullet, detail)
	}
	fmt.Println()
	ux.Muted("Preview one with: kasdock config preview <template_id>")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	synchronizer := mustSynchronizer(context.Background())

	if len(args) == 1 {
		tpl, err := synchronizer.GetTemplate(args[0])
		if err != nil {
			log.Fatalf("Failed to load template: %v", err)
		}
		ux.Title(tpl.Name)
		ux.Muted(tpl.Description)
		fmt.Println()
		for _, line := range tpl.Settings.RedactedSlice() {
			fmt.Println(line)
		}
		return
	}

	envPath := filepath.Join(config.Global.Stack.Dir, config.Global.Stack.EnvFile)
	env, err := synchronizer.LoadStackEnv()
	if err != nil {
		log.Fatalf("Failed to read %s: %v", envPath, err)
	}
	if env.Len() == 0 {
		ux.Info(fmt.Sprintf("No configuration at %s yet. Apply a template to create one.", envPath))
		return
	}

	ux.Title("Stack Configuration")
	ux.Muted(envPath)
	fmt.Println()
	for _, line := range env.RedactedSlice() {
		fmt.Println(line)
	}
}

func runConfigPreview(cmd *cobra.Command, args []string) {
	synchronizer := mustSynchronizer(context.Background())

	current, err := synchronizer.LoadStackEnv()
	if err != nil {
		log.Fatalf("Failed to read current configuration: %v", err)
	}

	result, err := synchronizer.ApplyTemplate(args[0], current, parseSetValues(setValues))
	if err != nil {
		log.Fatalf("Failed to compute template changes: %v", err)
	}

	if len(result.Changes) == 0 {
		ux.Success(fmt.Sprintf("Configuration already matches %s. Nothing would change.", result.TemplateID))
		return
	}

	ux.Title(fmt.Sprintf("Preview: %s", result.TemplateID))
	fmt.Println(result.Preview)
	printImpacts(result.Impacts)

	if result.RequiresConfirmation {
		ux.Warning("Applying these changes will ask for confirmation (or --yes).")
	}
	ux.Muted("Nothing was written. Apply with: kasdock config apply " + result.TemplateID)
}

func runConfigApply(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	synchronizer := mustSynchronizer(ctx)

	current, err := synchronizer.LoadStackEnv()
	if err != nil {
		log.Fatalf("Failed to read current configuration: %v", err)
	}

	result, err := synchronizer.ApplyTemplate(args[0], current, parseSetValues(setValues))
	if err != nil {
		log.Fatalf("Failed to compute template changes: %v", err)
	}

	if len(result.Changes) == 0 {
		ux.Success(fmt.Sprintf("Configuration already matches %s. Nothing to apply.", result.TemplateID))
		return
	}

	ux.Title(fmt.Sprintf("Applying: %s", result.TemplateID))
	fmt.Println(result.Preview)
	printImpacts(result.Impacts)

	if result.RequiresConfirmation && !assumeYes {
		if !ux.Confirm("Apply these high-impact changes?") {
			ux.Info("Aborted. Nothing was written.")
			return
		}
	}

	syncResult, err := synchronizer.SyncStackEnv(ctx, result.Merged)
	if err != nil {
		log.Fatalf("Failed to write configuration: %v", err)
	}

	ux.Success(fmt.Sprintf("Wrote %d changes to %s", len(syncResult.Changes), syncResult.EnvPath))
	if syncResult.BackupPath != "" {
		ux.Muted("Previous file backed up to " + syncResult.BackupPath)
	}
	if syncResult.RemoteURL != "" {
		ux.Muted("Snapshot uploaded to " + syncResult.RemoteURL)
	}
	if anyRequiresRestart(result.Impacts) {
		ux.Warning("Running services keep their old settings until restarted. Re-run: kasdock stack install")
	}
}

// printImpacts renders change impacts grouped by severity styling.
func printImpacts(impacts []stack.ChangeImpact) {
	if len(impacts) == 0 {
		return
	}
	for _, impact := range impacts {
		line := fmt.Sprintf("%s: %s", impact.Key, impact.Reason)
		switch impact.Severity {
		case stack.ImpactHigh:
			ux.Error(line)
		case stack.ImpactMedium:
			ux.Warning(line)
		default:
			ux.Muted(line)
		}
	}
	fmt.Println()
}

func anyRequiresRestart(impacts []stack.ChangeImpact) bool {
	for _, impact := range impacts {
		if impact.RequiresRestart {
			return true
		}
	}
	return false
}

func runConfigWatch(cmd *cobra.Command, args []string) {
	if !config.Global.Features.DriftWatch {
		log.Fatalf("Drift watching is disabled (features.drift_watch in kasdock.yaml)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	synchronizer := mustSynchronizer(ctx)
	baseline, err := synchronizer.LoadStackEnv()
	if err != nil {
		log.Fatalf("Failed to read current configuration: %v", err)
	}

	stackCfg := config.Global.Stack
	tracked := []string{stackCfg.EnvFile, stackCfg.ComposeFile, stackCfg.OverrideFile}

	// The debouncer invokes the handler from one goroutine, so baseline
	// needs no lock.
	handler := func(changes []watcher.FileChange) {
		for _, change := range changes {
			if change.Name != filepath.Base(stackCfg.EnvFile) {
				ux.Warning(fmt.Sprintf("%s %s on disk", change.Name, change.Op))
				recordDrift(ctx, fmt.Sprintf("%s %s outside kasdock", change.Name, change.Op))
				continue
			}
			baseline = reportEnvDrift(ctx, synchronizer, baseline)
		}
	}

	w, err := watcher.New(stackCfg.Dir, tracked, handler, watcher.DefaultOptions())
	if err != nil {
		log.Fatalf("Failed to create file watcher: %v", err)
	}
	if err := w.Start(ctx); err != nil {
		log.Fatalf("Failed to watch %s: %v", stackCfg.Dir, err)
	}
	defer w.Stop()

	ux.Title("Watching For Configuration Drift")
	ux.Muted(fmt.Sprintf("Directory: %s", stackCfg.Dir))
	ux.Muted(fmt.Sprintf("Files: %s, %s, %s", stackCfg.EnvFile, stackCfg.ComposeFile, stackCfg.OverrideFile))
	ux.Muted("Press Ctrl+C to stop.")

	<-ctx.Done()
	fmt.Println()
	ux.Info("Stopped watching.")
}

// reportEnvDrift diffs the on-disk .env against the last seen state,
// reports any drift, and returns the new baseline.
func reportEnvDrift(ctx context.Context, synchronizer stack.ConfigSynchronizer, baseline *stack.EnvConfig) *stack.EnvConfig {
	env, err := synchronizer.LoadStackEnv()
	if err != nil {
		ux.Error(fmt.Sprintf("Failed to re-read configuration: %v", err))
		return baseline
	}

	diff := synchronizer.DiffConfigs(baseline, env)
	if len(diff) == 0 {
		return env
	}

	ux.Warning(fmt.Sprintf("Configuration drifted: %d keys changed outside kasdock", len(diff)))
	for _, change := range diff {
		oldValue, newValue := change.OldValue, change.NewValue
		if change.Sensitive {
			oldValue, newValue = "[REDACTED]", "[REDACTED]"
		}
		switch change.Type {
		case stack.ChangeAdded:
			ux.ServiceStatus(change.Key, ux.IconBullet, "added: "+newValue)
		case stack.ChangeRemoved:
			ux.ServiceStatus(change.Key, ux.IconBullet, "removed (was "+oldValue+")")
		default:
			ux.ServiceStatus(change.Key, ux.IconBullet, oldValue+" -> "+newValue)
		}
	}
	printImpacts(synchronizer.AssessImpact(diff))
	recordDrift(ctx, fmt.Sprintf("%d configuration keys changed outside kasdock", len(diff)))

	return env
}

// recordDrift appends a drift event to the state store. The store is
// opened per event so a long-running watch never holds the Badger
// directory lock against a concurrent install.
func recordDrift(ctx context.Context, message string) {
	storeCfg := DefaultStateStoreConfig(config.Global.State.Dir)
	storeCfg.InMemory = config.Global.State.InMemory
	store, err := NewBadgerStateStore(storeCfg)
	if err != nil {
		ux.Muted("Event log busy, drift not recorded.")
		return
	}
	defer store.Close()

	event := StateEvent{Type: EventDrift, Message: message}
	if err := store.AppendEvent(ctx, event); err != nil {
		ux.Muted("Event log busy, drift not recorded.")
	}
}
