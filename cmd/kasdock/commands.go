// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	installProfiles  []string // stack install --profile (repeatable)
	installTemplate  string   // stack install --template
	setValues        []string // --set KEY=VALUE overrides (repeatable)
	forceBuild       bool     // stack install --build
	ignoreResources  bool     // stack install --ignore-resources
	skipChecks       bool     // stack install --skip-checks
	assumeYes        bool     // skip confirmation prompts
	removeProfiles   []string // stack remove --profile (repeatable)
	removeVolumes    bool     // stack destroy --volumes
	watchStatus      bool     // stack status --watch
	watchInterval    int      // stack status --interval (seconds)
	followLogs       bool     // stack logs --follow
	eventLimit       int      // stack events --limit
	outputJSON       bool     // machine-readable output
	validateAdd      string   // validate --add
	validateRemove   string   // validate --remove
	checkTimeout     int      // check --timeout (seconds)
	personalityLevel string   // UX personality level (full/standard/minimal/machine)
	logLevelFlag     string   // --log-level (debug/info/warn/error)

	rootCmd = &cobra.Command{
		Use:   "kasdock",
		Short: "A cli to deploy and manage a Kaspa node stack with Docker Compose",
		Long: `Kasdock deploys and manages a complete Kaspa blockchain stack
				(node, indexers, explorer, mining bridge, developer tools) on
				your own machine, driven by composable deployment profiles.`,
	}

	// --- First-Time Setup ---
	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Interactive first-time setup: pick profiles, a network, and a template",
		Run:   runInit, // Defined in cmd_init.go
	}

	// --- Stack Management ---
	stackCmd = &cobra.Command{
		Use:   "stack",
		Short: "Manage the Kaspa stack on your machine",
	}
	installCmd = &cobra.Command{
		Use:   "install",
		Short: "Install profiles and start their services in dependency order",
		Run:   runInstall, // Defined in cmd_stack.go
	}
	removeCmd = &cobra.Command{
		Use:   "remove",
		Short: "Remove installed profiles and stop services nothing else needs",
		Run:   runRemove, // Defined in cmd_stack.go
	}
	stopCmd = &cobra.Command{
		Use:   "stop",
		Short: "Stop all running stack services without removing anything",
		Run:   runStop, // Defined in cmd_stack.go
	}
	destroyCmd = &cobra.Command{
		Use:   "destroy",
		Short: "DANGER: Stops and deletes all stack containers AND installation state",
		Run:   runDestroy, // Defined in cmd_stack.go
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show state and health of the stack services",
		Run:   runStatus, // Defined in cmd_stack.go
	}
	logsCmd = &cobra.Command{
		Use:   "logs [service_name...]",
		Short: "Stream logs from stack service containers",
		Run:   runLogsCommand, // Defined in cmd_stack.go
	}
	eventsCmd = &cobra.Command{
		Use:   "events",
		Short: "Show recent stack lifecycle events, newest first",
		Run:   runEvents, // Defined in cmd_stack.go
	}

	// --- Profile Catalog ---
	profilesCmd = &cobra.Command{
		Use:   "profiles",
		Short: "Inspect the deployment profile catalog",
	}
	listProfilesCmd = &cobra.Command{
		Use:   "list",
		Short: "List all deployment profiles with their services and relationships",
		Run:   runListProfiles, // Defined in cmd_profiles.go
	}
	showProfileCmd = &cobra.Command{
		Use:   "show [profile_id]",
		Short: "Show one profile in detail",
		Args:  cobra.ExactArgs(1),
		Run:   runShowProfile, // Defined in cmd_profiles.go
	}

	// --- Validation ---
	validateCmd = &cobra.Command{
		Use:   "validate [profile_id...]",
		Short: "Validate a profile selection, addition, or removal without installing",
		Run:   runValidate, // Defined in cmd_validate.go
	}
	resourcesCmd = &cobra.Command{
		Use:   "resources [profile_id...]",
		Short: "Show aggregate resource needs of profiles against this host",
		Run:   runResources, // Defined in cmd_validate.go
	}

	// --- External Dependency Checks ---
	checkCmd = &cobra.Command{
		Use:   "check [service_name...]",
		Short: "Probe the external endpoints stack services depend on",
		Run:   runCheck, // Defined in cmd_check.go
	}

	// --- Configuration ---
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage the stack .env configuration",
	}
	configTemplatesCmd = &cobra.Command{
		Use:   "templates",
		Short: "List the built-in configuration templates",
		Run:   runConfigTemplates, // Defined in cmd_config.go
	}
	configShowCmd = &cobra.Command{
		Use:   "show [template_id]",
		Short: "Show the current .env (redacted), or a template's settings",
		Args:  cobra.MaximumNArgs(1),
		Run:   runConfigShow, // Defined in cmd_config.go
	}
	configPreviewCmd = &cobra.Command{
		Use:   "preview [template_id]",
		Short: "Preview what applying a template would change, without writing",
		Args:  cobra.ExactArgs(1),
		Run:   runConfigPreview, // Defined in cmd_config.go
	}
	configApplyCmd = &cobra.Command{
		Use:   "apply [template_id]",
		Short: "Apply a template to the stack .env (backs up the old file first)",
		Args:  cobra.ExactArgs(1),
		Run:   runConfigApply, // Defined in cmd_config.go
	}
	configWatchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Watch the stack files and report configuration drift live",
		Run:   runConfigWatch, // Defined in cmd_config.go
	}

	// --- Dependency Graph ---
	graphCmd = &cobra.Command{
		Use:   "graph",
		Short: "Inspect the profile dependency graph",
	}
	graphShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the full dependency graph as JSON",
		Run:   runGraphShow, // Defined in cmd_graph.go
	}
	graphDependentsCmd = &cobra.Command{
		Use:   "dependents [profile_id]",
		Short: "Show which profiles depend on a profile",
		Args:  cobra.ExactArgs(1),
		Run:   runGraphDependents, // Defined in cmd_graph.go
	}
	graphRequirementsCmd = &cobra.Command{
		Use:   "requirements [profile_id]",
		Short: "Show everything a profile requires, directly and transitively",
		Args:  cobra.ExactArgs(1),
		Run:   runGraphRequirements, // Defined in cmd_graph.go
	}
	graphExplainCmd = &cobra.Command{
		Use:   "explain [from_id] [to_id]",
		Short: "Explain why one profile requires another (shortest path)",
		Args:  cobra.ExactArgs(2),
		Run:   runGraphExplain, // Defined in cmd_graph.go
	}

	// --- Wallet Secrets ---
	walletCmd = &cobra.Command{
		Use:   "wallet",
		Short: "Manage the wallet service's secret material",
	}
	walletImportCmd = &cobra.Command{
		Use:   "import",
		Short: "Import a wallet mnemonic into the stack secrets directory",
		Run:   runWalletImport, // Defined in cmd_wallet.go
	}
	walletStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show whether wallet secret material is present and protected",
		Run:   runWalletStatus, // Defined in cmd_wallet.go
	}

	// --- Version ---
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Show kasdock and docker compose versions",
		Run:   runVersion, // Defined in cmd_stack.go
	}
)

// init runs when the Go program starts
func init() {
	// Global UX personality flag
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full (default, rich), standard, minimal, or machine (scripting)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"Log verbosity: debug, info, warn, or error (default info, or KASDOCK_LOG_LEVEL)")

	rootCmd.AddCommand(initCmd)

	// --- Stack Commands ---
	rootCmd.AddCommand(stackCmd)
	stackCmd.AddCommand(installCmd)
	stackCmd.AddCommand(removeCmd)
	stackCmd.AddCommand(stopCmd)
	stackCmd.AddCommand(destroyCmd)
	stackCmd.AddCommand(statusCmd)
	stackCmd.AddCommand(logsCmd)
	stackCmd.AddCommand(eventsCmd)
	installCmd.Flags().StringSliceVarP(&installProfiles, "profile", "p", nil,
		"Profile to install (repeatable), e.g. -p core -p monitoring")
	installCmd.Flags().StringVar(&installTemplate, "template", "",
		"Configuration template to apply before starting (e.g. mainnet-default)")
	installCmd.Flags().StringArrayVar(&setValues, "set", nil,
		"Env override KEY=VALUE applied after the template (repeatable)")
	installCmd.Flags().BoolVar(&forceBuild, "build", false, "Force rebuild of container images")
	installCmd.Flags().BoolVar(&ignoreResources, "ignore-resources", false,
		"Install even when the host is below the minimum resource envelope")
	installCmd.Flags().BoolVar(&skipChecks, "skip-checks", false,
		"Skip external dependency reachability probes")
	installCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false,
		"Approve high-impact configuration changes without prompting")
	removeCmd.Flags().StringSliceVarP(&removeProfiles, "profile", "p", nil,
		"Profile to remove (repeatable)")
	removeCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
	destroyCmd.Flags().BoolVar(&removeVolumes, "volumes", false,
		"Also delete named volumes (chain data, databases)")
	destroyCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false,
		"Keep the status on screen and refresh it live")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 3, "Refresh interval in seconds for --watch")
	statusCmd.Flags().BoolVar(&outputJSON, "json", false, "Print status as JSON")
	logsCmd.Flags().BoolVarP(&followLogs, "follow", "f", false, "Follow log output")
	eventsCmd.Flags().IntVarP(&eventLimit, "limit", "n", 20, "Maximum number of events to show")
	eventsCmd.Flags().BoolVar(&outputJSON, "json", false, "Print events as JSON")

	// --- Profile Catalog Commands ---
	rootCmd.AddCommand(profilesCmd)
	profilesCmd.AddCommand(listProfilesCmd)
	profilesCmd.AddCommand(showProfileCmd)
	listProfilesCmd.Flags().BoolVar(&outputJSON, "json", false, "Print the catalog as JSON")
	showProfileCmd.Flags().BoolVar(&outputJSON, "json", false, "Print the profile as JSON")

	// --- Validation Commands ---
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validateAdd, "add", "",
		"Validate adding this profile to the installed stack")
	validateCmd.Flags().StringVar(&validateRemove, "remove", "",
		"Validate removing this profile from the installed stack")
	validateCmd.Flags().BoolVar(&outputJSON, "json", false, "Print the validation result as JSON")
	rootCmd.AddCommand(resourcesCmd)
	resourcesCmd.Flags().BoolVar(&outputJSON, "json", false, "Print the resource report as JSON")

	// --- Check Commands ---
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().IntVar(&checkTimeout, "timeout", 0,
		"Per-probe timeout in seconds (bounded 5-10, default 8)")
	checkCmd.Flags().BoolVar(&outputJSON, "json", false, "Print check reports as JSON")

	// --- Configuration Commands ---
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configTemplatesCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPreviewCmd)
	configCmd.AddCommand(configApplyCmd)
	configCmd.AddCommand(configWatchCmd)
	configPreviewCmd.Flags().StringArrayVar(&setValues, "set", nil,
		"Env override KEY=VALUE applied after the template (repeatable)")
	configApplyCmd.Flags().StringArrayVar(&setValues, "set", nil,
		"Env override KEY=VALUE applied after the template (repeatable)")
	configApplyCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false,
		"Approve high-impact changes without prompting")

	// --- Graph Commands ---
	rootCmd.AddCommand(graphCmd)
	graphCmd.AddCommand(graphShowCmd)
	graphCmd.AddCommand(graphDependentsCmd)
	graphCmd.AddCommand(graphRequirementsCmd)
	graphCmd.AddCommand(graphExplainCmd)

	// --- Wallet Commands ---
	rootCmd.AddCommand(walletCmd)
	walletCmd.AddCommand(walletImportCmd)
	walletCmd.AddCommand(walletStatusCmd)

	rootCmd.AddCommand(versionCmd)
}
