// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/sys/unix"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// SecretsDirName is the directory under the stack dir holding secret
	// material. Created 0700; the wallet container bind-mounts it read-only.
	SecretsDirName = "secrets"

	// MnemonicFileName is the wallet recovery phrase file.
	MnemonicFileName = "wallet.mnemonic"

	// mnemonicMaxBytes bounds the sealed phrase. A 24-word BIP-39 phrase
	// is well under 256 bytes.
	mnemonicMaxBytes = 1024

	// MinMlockLimitKB is the mlock limit needed for the locked buffer plus
	// memguard's guard pages and canaries.
	MinMlockLimitKB = 64
)

// validWordCounts are the BIP-39 phrase lengths.
var validWordCounts = map[int]bool{12: true, 15: true, 18: true, 21: true, 24: true}

// =============================================================================
// ERROR VARIABLES
// =============================================================================

var (
	// ErrInvalidMnemonic indicates the phrase has an impossible word count.
	ErrInvalidMnemonic = errors.New("mnemonic must be 12, 15, 18, 21, or 24 words")

	// ErrMnemonicTooLong indicates the phrase exceeds the sealed buffer.
	ErrMnemonicTooLong = errors.New("mnemonic exceeds maximum length")

	// ErrInsecureMemory indicates the mlock limit is too low for sealed
	// storage and the insecure override is not set.
	ErrInsecureMemory = errors.New("mlock limit too low for sealed secret storage")

	// ErrVaultSealed indicates the vault was already written or destroyed.
	ErrVaultSealed = errors.New("vault already consumed")
)

// =============================================================================
// PACKAGE VARIABLES
// =============================================================================

var (
	memguardInitOnce    sync.Once
	mlockSufficient     bool
	currentMlockLimitKB int64
)

// initSecureMemory performs one-time memguard setup and records whether
// the mlock limit can hold the sealed buffer.
func initSecureMemory() {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient, currentMlockLimitKB = checkMlockLimit()
	})
}

// checkMlockLimit queries RLIMIT_MEMLOCK and compares it against the
// minimum. An unreadable limit is treated as sufficient; memguard will
// fail loudly if it is not.
func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		return true, -1
	}
	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}
	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= MinMlockLimitKB, limitKB
}

// MlockStatus reports whether sealed storage is available, and the
// current limit in KB (-1 when unlimited).
func MlockStatus() (bool, int64) {
	initSecureMemory()
	return mlockSufficient, currentMlockLimitKB
}

// insecureMemoryAllowed reports whether the operator accepted plain
// memory for secret handling.
func insecureMemoryAllowed() bool {
	return os.Getenv("KASDOCK_INSECURE_MEMORY") == "true"
}

// =============================================================================
// MNEMONIC VAULT
// =============================================================================

// MnemonicVault holds a wallet recovery phrase between the prompt and the
// secrets file.
//
// # Description
//
// The phrase lives in a memguard enclave: encrypted at rest in process
// memory, decrypted into an mlocked buffer only while being validated or
// written, and wiped afterwards. On hosts without a usable mlock limit the
// vault refuses to seal unless KASDOCK_INSECURE_MEMORY=true, in which case
// it degrades to plain memory with best-effort zeroing.
//
// # Thread Safety
//
// Not safe for concurrent use. The import flow is strictly sequential.
//
// # Limitations
//
//   - The phrase arrives from the terminal as a Go string; copies of that
//     string are subject to the garbage collector and cannot be wiped.
type MnemonicVault struct {
	enclave  *memguard.Enclave
	insecure []byte
	words    int
	consumed bool
}

// SealMnemonic validates and seals a recovery phrase.
//
// # Inputs
//
//   - phrase: The space-separated mnemonic as typed.
//
// # Outputs
//
//   - *MnemonicVault: Sealed phrase, ready to write exactly once.
//   - error: ErrInvalidMnemonic, ErrMnemonicTooLong, or ErrInsecureMemory.
func SealMnemonic(phrase string) (*MnemonicVault, error) {
	initSecureMemory()

	normalized := strings.Join(strings.Fields(phrase), " ")
	words := 0
	if normalized != "" {
		words = len(strings.Split(normalized, " "))
	}
	if !validWordCounts[words] {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidMnemonic, words)
	}
	if len(normalized) > mnemonicMaxBytes {
		return nil, ErrMnemonicTooLong
	}

	if !mlockSufficient {
		if !insecureMemoryAllowed() {
			return nil, fmt.Errorf("%w: have %d KB, need %d KB; raise the limit or set KASDOCK_INSECURE_MEMORY=true",
				ErrInsecureMemory, currentMlockLimitKB, MinMlockLimitKB)
		}
		return &MnemonicVault{insecure: []byte(normalized), words: words}, nil
	}

	// NewEnclave wipes its input slice after sealing.
	enclave := memguard.NewEnclave([]byte(normalized))
	return &MnemonicVault{enclave: enclave, words: words}, nil
}

// WordCount returns the number of words in the sealed phrase.
func (v *MnemonicVault) WordCount() int {
	return v.words
}

// Sealed reports whether the phrase is held in locked memory rather than
// the insecure fallback.
func (v *MnemonicVault) Sealed() bool {
	return v.enclave != nil
}

// WriteFile writes the phrase to the secrets directory and consumes the
// vault.
//
// # Description
//
// Creates the directory 0700 if needed, writes the file 0600, and wipes
// the in-memory phrase. The vault cannot be written twice.
//
// # Inputs
//
//   - dir: The secrets directory (created if absent).
//
// # Outputs
//
//   - string: The written file path.
//   - error: ErrVaultSealed on reuse, or the filesystem error.
func (v *MnemonicVault) WriteFile(dir string) (string, error) {
	if v.consumed {
		return "", ErrVaultSealed
	}
	defer v.Destroy()

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create secrets directory: %w", err)
	}

	path := filepath.Join(dir, MnemonicFileName)

	if v.enclave != nil {
		buf, err := v.enclave.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open sealed phrase: %w", err)
		}
		defer buf.Destroy()
		if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", path, err)
		}
		return path, nil
	}

	if err := os.WriteFile(path, v.insecure, 0o600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// Destroy wipes the phrase without writing it. Idempotent.
func (v *MnemonicVault) Destroy() {
	if v.consumed {
		return
	}
	v.consumed = true
	v.enclave = nil // enclave key material is purged at exit
	for i := range v.insecure {
		v.insecure[i] = 0
	}
	v.insecure = nil
}

// =============================================================================
// SECRETS DIRECTORY INSPECTION
// =============================================================================

// SecretFileInfo describes one secret file for status output.
type SecretFileInfo struct {
	Path      string
	Exists    bool
	Mode      os.FileMode
	SizeBytes int64
	Loose     bool // readable by group or others
}

// InspectMnemonic reports on the wallet mnemonic file under dir.
func InspectMnemonic(dir string) SecretFileInfo {
	path := filepath.Join(dir, MnemonicFileName)
	info := SecretFileInfo{Path: path}

	stat, err := os.Stat(path)
	if err != nil {
		return info
	}

	info.Exists = true
	info.Mode = stat.Mode().Perm()
	info.SizeBytes = stat.Size()
	info.Loose = stat.Mode().Perm()&0o077 != 0
	return info
}
