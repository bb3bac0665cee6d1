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
	"log"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/kasdock/kasdock/cmd/kasdock/config"
	"github.com/kasdock/kasdock/pkg/stack"
	"github.com/kasdock/kasdock/pkg/ux"
)

// maxSelectionAttempts bounds the pick-validate-adjust loop.
const maxSelectionAttempts = 5

func runInit(cmd *cobra.Command, args []string) {
	if !ux.IsInteractive() {
		log.Fatalf("kasdock init needs an interactive terminal. Script installs with: kasdock stack install -p core")
	}

	ctx := context.Background()
	catalog := mustCatalog()
	validator := mustValidator(catalog)

	ux.Title("Kasdock Setup")
	ux.Info("Pick the pieces of your Kaspa stack. Dependencies are added automatically.")
	fmt.Println()

	selected, err := pickProfiles(catalog, validator)
	if err != nil {
		abortInit(err)
		return
	}

	network := config.Global.Network
	err = huh.NewSelect[string]().
		Title("Kaspa network").
		Options(
			huh.NewOption("Mainnet (the real network)", "mainnet"),
			huh.NewOption("Testnet 10 (test coins, safe to experiment)", "testnet-10"),
			huh.NewOption("Simnet (local simulation, no peers)", "simnet"),
		).
		Value(&network).
		Run()
	if err != nil {
		abortInit(err)
		return
	}

	template, err := pickTemplate(ctx)
	if err != nil {
		abortInit(err)
		return
	}

	ignoreResources, err := reviewResources(catalog, selected)
	if err != nil {
		abortInit(err)
		return
	}

	fmt.Println()
	ux.Title("Ready To Install")
	ux.ServiceStatus("profiles", ux.IconBullet, strings.Join(selected, ", "))
	ux.ServiceStatus("network", ux.IconBullet, network)
	if template != "" {
		ux.ServiceStatus("template", ux.IconBullet, template)
	}

	confirmed := false
	err = huh.NewConfirm().
		Title("Install now?").
		Value(&confirmed).
		Run()
	if err != nil {
		abortInit(err)
		return
	}
	if !confirmed {
		ux.Info("Setup cancelled. Nothing was installed.")
		return
	}

	mgr := mustStackManager(ctx)
	opts := InstallOptions{
		Profiles:        selected,
		Template:        template,
		Overrides:       map[string]string{"KASPA_NETWORK": network},
		IgnoreResources: ignoreResources,
		// The wizard already walked the user through every choice.
		ApproveHighImpact: true,
	}

	if ux.ShouldShowProgress() {
		err = runInstallWithProgress(ctx, mgr, opts)
	} else {
		err = mgr.Install(ctx, opts)
	}
	if err != nil {
		reportInstallError(err)
		return
	}

	fmt.Println()
	ux.Success("Your Kaspa stack is up.")
	ux.Muted("Check on it with: kasdock stack status")
}

// pickProfiles loops the profile multi-select until the selection
// validates or the user gives up.
func pickProfiles(catalog *stack.Catalog, validator stack.DependencyValidator) ([]string, error) {
	options := make([]huh.Option[string], 0, catalog.Len())
	for _, p := range catalog.Profiles() {
		label := fmt.Sprintf("%s (%s)", p.Name, p.Description)
		option := huh.NewOption(label, p.ID)
		if p.ID == "core" {
			option = option.Selected(true)
		}
		options = append(options, option)
	}

	for attempt := 0; attempt < maxSelectionAttempts; attempt++ {
		var selected []string
		err := huh.NewMultiSelect[string]().
			Title("Select profiles to install").
			Options(options...).
			Value(&selected).
			Run()
		if err != nil {
			return nil, err
		}
		if len(selected) == 0 {
			ux.Warning("Nothing selected. Pick at least one profile.")
			continue
		}

		result, err := validator.ValidateSelection(selected)
		if err != nil {
			return nil, err
		}
		if result.Valid {
			printValidationResult(result) // surfaces warnings on valid selections
			return selected, nil
		}

		ux.Error("That selection does not work together:")
		printValidationResult(result)

		retry := true
		err = huh.NewConfirm().
			Title("Adjust the selection?").
			Value(&retry).
			Run()
		if err != nil {
			return nil, err
		}
		if !retry {
			return nil, errors.New("selection abandoned")
		}
	}
	return nil, errors.New("no valid selection reached")
}

// pickTemplate offers the built-in templates plus a keep-current choice.
func pickTemplate(ctx context.Context) (string, error) {
	synchronizer := mustSynchronizer(ctx)

	options := []huh.Option[string]{
		huh.NewOption("Keep current configuration", ""),
	}
	for _, tpl := range synchronizer.Templates() {
		options = append(options, huh.NewOption(
			fmt.Sprintf("%s (%s)", tpl.Name, tpl.Description), tpl.ID))
	}

	var template string
	err := huh.NewSelect[string]().
		Title("Configuration template").
		Options(options...).
		Value(&template).
		Run()
	return template, err
}

// reviewResources shows the aggregate resource envelope for the selection
// and, on a hard shortfall, asks whether to install anyway.
func reviewResources(catalog *stack.Catalog, selected []string) (bool, error) {
	resolver, err := stack.NewDefaultDependencyResolver(catalog)
	if err != nil {
		return false, err
	}
	aggregator, err := stack.NewDefaultResourceAggregator(catalog)
	if err != nil {
		return false, err
	}

	resolved, err := resolver.Resolve(selected)
	if err != nil {
		return false, err
	}
	requirement, err := aggregator.Aggregate(resolved.StartupOrder())
	if err != nil {
		return false, err
	}

	probe := stack.NewDefaultSystemProbe()
	system, err := probe.Detect(config.Global.Stack.DataDir)
	if err != nil {
		ux.Warning(fmt.Sprintf("Could not inspect this host (%v), skipping the resource check.", err))
		return false, nil
	}

	fmt.Println()
	ux.ServiceStatus("needs", ux.IconBullet, fmt.Sprintf("%d cores, %d GB RAM, %d GB disk (minimum)",
		requirement.MinCPU, requirement.MinMemoryGB, requirement.MinDiskGB))
	ux.ServiceStatus("host", ux.IconBullet, fmt.Sprintf("%d cores, %d GB RAM, %d GB disk free",
		system.CPUCores, system.MemoryGB, system.DiskGB))

	report := aggregator.CheckSufficiency(requirement, system)
	if report.Sufficient {
		ux.Success("This host can run the selection.")
		return false, nil
	}

	hard := report.HardShortfalls()
	for _, shortfall := range report.Shortfalls {
		if shortfall.Severity == stack.ShortfallHard {
			ux.Error(shortfall.Message)
		} else {
			ux.Warning(shortfall.Message)
		}
	}
	if len(hard) == 0 {
		return false, nil
	}

	force := false
	err = huh.NewConfirm().
		Title("The host is below the minimum. Install anyway?").
		Value(&force).
		Run()
	if err != nil {
		return false, err
	}
	if !force {
		return false, errors.New("host below minimum resources")
	}
	return true, nil
}

// abortInit reports a wizard exit. Ctrl+C is a clean cancel; anything
// else exits nonzero.
func abortInit(err error) {
	if errors.Is(err, huh.ErrUserAborted) {
		ux.Info("Setup cancelled. Nothing was installed.")
		return
	}
	ux.Error(fmt.Sprintf("Setup stopped: %v", err))
	os.Exit(1)
}
