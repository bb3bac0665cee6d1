// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kasdock/kasdock/cmd/kasdock/config"
	"github.com/kasdock/kasdock/cmd/kasdock/internal/infra/compose"
	"github.com/kasdock/kasdock/cmd/kasdock/internal/infra/process"
	"github.com/kasdock/kasdock/pkg/ux"
)

// mustStackManager builds the production stack manager or exits.
func mustStackManager(ctx context.Context) StackManager {
	mgr, err := CreateProductionStackManager(ctx, &config.Global)
	if err != nil {
		log.Fatalf("Failed to create stack manager: %v", err)
	}
	return mgr
}

// parseSetValues turns repeated --set KEY=VALUE flags into a map.
func parseSetValues(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	overrides := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			log.Fatalf("Invalid --set value %q, expected KEY=VALUE", pair)
		}
		overrides[key] = value
	}
	return overrides
}

func runInstall(cmd *cobra.Command, args []string) {
	// Positional profiles and repeated -p flags are equivalent.
	profiles := append([]string{}, installProfiles...)
	profiles = append(profiles, args...)
	if len(profiles) == 0 {
		log.Fatalf("No profiles specified. Use -p, e.g.: kasdock stack install -p core")
	}

	ctx := context.Background()
	mgr := mustStackManager(ctx)

	opts := InstallOptions{
		Profiles:           profiles,
		Template:           installTemplate,
		Overrides:          parseSetValues(setValues),
		ForceBuild:         forceBuild,
		IgnoreResources:    ignoreResources,
		SkipExternalChecks: skipChecks,
		ApproveHighImpact:  assumeYes,
	}

	var err error
	if ux.ShouldShowProgress() {
		err = runInstallWithProgress(ctx, mgr, opts)
	} else {
		err = mgr.Install(ctx, opts)
	}
	if err != nil {
		reportInstallError(err)
	}

	ux.Success(fmt.Sprintf("Installed: %s", strings.Join(profiles, ", ")))
	ux.Info("Run 'kasdock stack status' to watch the services come up.")
}

// reportInstallError prints phase-specific remediation and exits.
func reportInstallError(err error) {
	switch {
	case errors.Is(err, ErrComposeNotReady):
		ux.Error("Docker compose is missing or too old.")
		ux.Muted(fmt.Sprintf("Kasdock needs docker compose %s or newer.", compose.MinComposeVersion))
	case errors.Is(err, ErrValidationBlocked):
		ux.Error("The profile selection is invalid.")
		ux.Muted("Run 'kasdock validate' with the same profiles to see every finding.")
	case errors.Is(err, ErrInsufficientResources):
		ux.Error("This host is below the minimum resource envelope for the selection.")
		ux.Muted("Run 'kasdock resources' for the shortfall, or re-run with --ignore-resources.")
	case errors.Is(err, ErrConfirmationRequired):
		ux.Error("The configuration change requires confirmation.")
		ux.Muted("Preview it with 'kasdock config preview', then re-run with --yes to approve.")
	case errors.Is(err, ErrNothingToInstall):
		ux.Warning("All requested profiles are already installed.")
		os.Exit(0)
	}
	if cmdErr, ok := compose.AsCommandError(err); ok && cmdErr.Stderr != "" {
		fmt.Fprintf(os.Stderr, "Command output:\n%s\n", cmdErr.Stderr)
		if hint := cmdErr.Hint(); hint != "" {
			ux.Muted(hint)
		}
	}
	log.Fatalf("Install failed: %v", err)
}

func runRemove(cmd *cobra.Command, args []string) {
	profiles := append([]string{}, removeProfiles...)
	profiles = append(profiles, args...)
	if len(profiles) == 0 {
		log.Fatalf("No profiles specified. Use -p, e.g.: kasdock stack remove -p mining")
	}

	if !assumeYes {
		ok := ux.ConfirmDestructive(
			"Remove profiles",
			[]string{
				fmt.Sprintf("Profiles: %s", strings.Join(profiles, ", ")),
				"Services only these profiles use will be stopped.",
				"Shared services and all data volumes are kept.",
			},
			"Remove these profiles?")
		if !ok {
			fmt.Println("Aborted. No changes were made.")
			return
		}
	}

	ctx := context.Background()
	mgr := mustStackManager(ctx)
	if err := mgr.Remove(ctx, RemoveOptions{Profiles: profiles}); err != nil {
		if errors.Is(err, ErrValidationBlocked) {
			ux.Error("Removal blocked.")
			ux.Muted(fmt.Sprintf("Run 'kasdock validate --remove %s' to see why.", profiles[0]))
		}
		log.Fatalf("Remove failed: %v", err)
	}
	ux.Success(fmt.Sprintf("Removed: %s", strings.Join(profiles, ", ")))
}

func runStop(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	mgr := mustStackManager(ctx)

	fmt.Println("Stopping Kaspa stack services...")
	if err := mgr.Stop(ctx); err != nil {
		if errors.Is(err, ErrStackNotRunning) {
			ux.Info("The stack is not running. Nothing to stop.")
			return
		}
		log.Fatalf("Failed to stop services: %v", err)
	}
	ux.Success("Stack stopped. Containers and data are preserved.")
}

func runDestroy(cmd *cobra.Command, args []string) {
	consequences := []string{
		"All stack containers will be stopped and deleted.",
		"The recorded installation state will be cleared.",
	}
	if removeVolumes {
		consequences = append(consequences,
			"Named volumes will be DELETED: chain data, indexer databases, dashboards.")
	} else {
		consequences = append(consequences,
			"Named volumes (chain data, databases) are kept. Pass --volumes to delete them.")
	}

	if !assumeYes {
		if !ux.ConfirmDestructive("Destroy the Kaspa stack", consequences, "Are you sure you want to continue?") {
			fmt.Println("Aborted. No changes were made.")
			return
		}
	}

	ctx := context.Background()
	mgr := mustStackManager(ctx)

	fmt.Println("Destroying the Kaspa stack...")
	if err := mgr.Destroy(ctx, removeVolumes); err != nil {
		if errors.Is(err, ErrDestroyPartial) {
			ux.Warning("Destroy finished with leftovers.")
			ux.Muted("Check 'docker ps -a' for remaining containers and remove them manually.")
		}
		log.Fatalf("Destroy failed: %v", err)
	}
	ux.Success("Stack destroyed.")
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	mgr := mustStackManager(ctx)

	if watchStatus {
		if err := watchStackStatus(ctx, mgr, watchInterval); err != nil {
			log.Fatalf("Status watch failed: %v", err)
		}
		return
	}

	status, err := mgr.Status(ctx)
	if err != nil {
		log.Fatalf("Failed to read stack status: %v", err)
	}

	if outputJSON {
		printJSON(status)
		return
	}
	printStackStatus(status)
}

// printStackStatus renders one status snapshot with the ux helpers.
func printStackStatus(status *StackStatus) {
	ux.Title(fmt.Sprintf("Kaspa stack: %s", status.State))
	if len(status.InstalledProfiles) > 0 {
		ux.Info(fmt.Sprintf("Profiles:  %s", strings.Join(status.InstalledProfiles, ", ")))
		ux.Info(fmt.Sprintf("Network:   %s", status.Network))
	}

	for _, svc := range status.Services {
		icon := ux.IconPending
		detail := svc.State
		switch {
		case svc.State == "running" && svc.Healthy != nil && !*svc.Healthy:
			icon = ux.IconWarning
			detail = "running (unhealthy)"
		case svc.State == "running":
			icon = ux.IconSuccess
			if len(svc.Ports) > 0 {
				detail = fmt.Sprintf("running  %s", strings.Join(svc.Ports, " "))
			}
		}
		ux.ServiceStatus(svc.Name, icon, detail)
	}

	total := len(status.Services)
	ux.Summary(status.RunningCount, status.StoppedCount, total)
}

func runLogsCommand(cmd *cobra.Command, args []string) {
	if len(args) > 0 {
		fmt.Printf("Streaming logs for %s\n", strings.Join(args, " "))
	} else {
		fmt.Println("Streaming the logs for all services")
	}

	ctx := context.Background()
	mgr := mustStackManager(ctx)
	if err := mgr.Logs(ctx, args, followLogs); err != nil {
		fmt.Println("\nLog streaming stopped or encountered an error")
		return
	}
	fmt.Println("\nLog streaming finished")
}

func runEvents(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	storeConfig := DefaultStateStoreConfig(config.Global.State.Dir)
	storeConfig.InMemory = config.Global.State.InMemory
	store, err := NewBadgerStateStore(storeConfig)
	if err != nil {
		log.Fatalf("Failed to open state store: %v", err)
	}
	defer store.Close()

	events, err := store.ListEvents(ctx, eventLimit)
	if err != nil {
		log.Fatalf("Failed to list events: %v", err)
	}

	if outputJSON {
		printJSON(events)
		return
	}
	if len(events) == 0 {
		ux.Info("No recorded events yet.")
		return
	}
	for _, ev := range events {
		line := fmt.Sprintf("%s  %-14s %s",
			ev.Timestamp.Format("2006-01-02 15:04:05"), ev.Type, ev.Message)
		if len(ev.Profiles) > 0 {
			line += fmt.Sprintf("  [%s]", strings.Join(ev.Profiles, ", "))
		}
		fmt.Println(line)
	}
}

func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("kasdock %s\n", Version)

	executor, err := compose.NewDockerComposeExecutor(compose.Config{
		StackDir:            config.Global.Stack.Dir,
		ProjectName:         config.Global.Stack.ProjectName,
		BaseFile:            config.Global.Stack.ComposeFile,
		OverrideFile:        config.Global.Stack.OverrideFile,
		EnvFile:             config.Global.Stack.EnvFile,
		ContainerNamePrefix: config.Global.Stack.ContainerNamePrefix,
	}, process.NewDefaultManager())
	if err != nil {
		log.Fatalf("Failed to create compose executor: %v", err)
	}

	version, err := executor.EnsureVersion(context.Background())
	if err != nil {
		ux.Warning(fmt.Sprintf("docker compose: %v", err))
		return
	}
	fmt.Printf("docker compose %s (minimum %s)\n", version, compose.MinComposeVersion)
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode JSON: %v", err)
	}
	fmt.Println(string(data))
}
