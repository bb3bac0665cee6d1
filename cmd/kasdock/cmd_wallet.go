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
	"os"
	"path/filepath"

	"github.com/awnumar/memguard"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/kasdock/kasdock/cmd/kasdock/config"
	"github.com/kasdock/kasdock/pkg/ux"
)

// secretsDir returns the stack secrets directory.
func secretsDir() string {
	return filepath.Join(config.Global.Stack.Dir, SecretsDirName)
}

func runWalletImport(cmd *cobra.Command, args []string) {
	// The phrase is never accepted via flags or stdin pipes; it would land
	// in shell history and process listings.
	if !ux.IsInteractive() {
		log.Fatalf("wallet import needs an interactive terminal")
	}
	defer memguard.Purge()

	dir := secretsDir()
	if existing := InspectMnemonic(dir); existing.Exists {
		ok := ux.ConfirmDestructive(
			"Replace wallet mnemonic",
			[]string{
				fmt.Sprintf("A phrase already exists at %s.", existing.Path),
				"The old phrase will be overwritten and cannot be recovered.",
			},
			"Replace it?")
		if !ok {
			ux.Info("Import cancelled. The existing phrase is untouched.")
			return
		}
	}

	if sealed, limitKB := MlockStatus(); !sealed {
		ux.Warning(fmt.Sprintf("This host's mlock limit (%d KB) is too low to seal the phrase in locked memory.", limitKB))
	}

	var phrase string
	err := huh.NewInput().
		Title("Wallet recovery phrase").
		EchoMode(huh.EchoModePassword).
		Value(&phrase).
		Run()
	if err != nil {
		abortInit(err)
		return
	}

	vault, err := SealMnemonic(phrase)
	if err != nil {
		ux.Error(fmt.Sprintf("Cannot import this phrase: %v", err))
		os.Exit(1)
	}
	defer vault.Destroy()

	if vault.Sealed() {
		ux.Muted(fmt.Sprintf("Sealed a %d-word phrase in locked memory.", vault.WordCount()))
	} else {
		ux.Warning(fmt.Sprintf("Holding a %d-word phrase in plain memory (KASDOCK_INSECURE_MEMORY=true).", vault.WordCount()))
	}

	confirmed := false
	err = huh.NewConfirm().
		Title(fmt.Sprintf("Write the phrase to %s?", dir)).
		Value(&confirmed).
		Run()
	if err != nil {
		abortInit(err)
		return
	}
	if !confirmed {
		ux.Info("Import cancelled. Nothing was written.")
		return
	}

	path, err := vault.WriteFile(dir)
	if err != nil {
		ux.Error(fmt.Sprintf("Import failed: %v", err))
		os.Exit(1)
	}

	ux.Success("Wallet mnemonic imported.")
	ux.Muted(fmt.Sprintf("File: %s (mode 0600). The wallet container mounts it read-only.", path))

	offerWalletEnable()
}

// offerWalletEnable flips WALLET_ENABLED in the stack .env when the user
// wants the wallet service active.
func offerWalletEnable() {
	ctx := context.Background()
	synchronizer := mustSynchronizer(ctx)

	env, err := synchronizer.LoadStackEnv()
	if err != nil {
		ux.Warning(fmt.Sprintf("Could not read the stack configuration: %v", err))
		return
	}
	if env.Get("WALLET_ENABLED") == "true" {
		return
	}

	enable := false
	err = huh.NewConfirm().
		Title("Enable the wallet service (WALLET_ENABLED=true)?").
		Value(&enable).
		Run()
	if err != nil || !enable {
		ux.Muted("The wallet service stays disabled. Enable it later with: kasdock config apply")
		return
	}

	env.Set("WALLET_ENABLED", "true")
	result, err := synchronizer.SyncStackEnv(ctx, env)
	if err != nil {
		ux.Error(fmt.Sprintf("Failed to update the configuration: %v", err))
		return
	}
	ux.Success(fmt.Sprintf("WALLET_ENABLED=true written to %s", result.EnvPath))
	ux.Warning("Running services pick this up on the next: kasdock stack install")
}

func runWalletStatus(cmd *cobra.Command, args []string) {
	dir := secretsDir()
	info := InspectMnemonic(dir)

	ux.Title("Wallet Secrets")

	if !info.Exists {
		ux.Info("No wallet secret material on this host.")
		ux.Muted("Import a recovery phrase with: kasdock wallet import")
		return
	}

	ux.ServiceStatus(MnemonicFileName, ux.IconSuccess,
		fmt.Sprintf("%d bytes, mode %04o", info.SizeBytes, info.Mode))

	if sealed, limitKB := MlockStatus(); sealed {
		ux.ServiceStatus("locked memory", ux.IconSuccess, "mlock limit sufficient for imports")
	} else {
		ux.ServiceStatus("locked memory", ux.IconWarning,
			fmt.Sprintf("mlock limit %d KB, imports need %d KB", limitKB, MinMlockLimitKB))
	}

	synchronizer := mustSynchronizer(context.Background())
	if env, err := synchronizer.LoadStackEnv(); err == nil {
		if env.Get("WALLET_ENABLED") == "true" {
			ux.ServiceStatus("wallet service", ux.IconSuccess, "enabled")
		} else {
			ux.ServiceStatus("wallet service", ux.IconPending, "disabled (WALLET_ENABLED is not true)")
		}
	}

	if info.Loose {
		fmt.Println()
		ux.Error(fmt.Sprintf("The phrase is readable by other users. Fix with: chmod 600 %s", info.Path))
		os.Exit(1)
	}
}
