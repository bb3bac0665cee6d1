// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package process

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Locker defines the interface for CLI instance locking.
//
// # Description
//
// Locker prevents multiple CLI instances from running mutating stack
// operations simultaneously, avoiding race conditions like one instance
// installing a profile while another removes the containers it is
// waiting on.
//
// # Thread Safety
//
// Implementations must be safe for use from a single goroutine. The lock
// itself provides inter-process synchronization, not intra-process.
type Locker interface {
	// Acquire attempts to get an exclusive lock.
	// Returns nil if lock acquired, error otherwise.
	Acquire() error

	// Release releases the lock if held.
	// Safe to call multiple times or if lock was never acquired.
	Release() error

	// IsHeld returns true if this instance currently holds the lock.
	IsHeld() bool

	// HolderPID returns the PID of the process holding the lock.
	// Returns 0 if no process holds the lock or if unable to determine.
	HolderPID() int
}

// LockConfig configures lock behavior.
type LockConfig struct {
	// LockDir is the directory for lock files.
	// Default: system temp directory
	LockDir string

	// LockName is the base name for lock files.
	// Default: "kasdock"
	LockName string
}

// DefaultLockConfig returns sensible defaults.
func DefaultLockConfig() LockConfig {
	return LockConfig{
		LockDir:  os.TempDir(),
		LockName: "kasdock",
	}
}

// Lock implements Locker using flock(2) advisory file locking.
//
// # How It Works
//
//  1. Creates a lock file at {LockDir}/{LockName}.lock
//  2. Attempts exclusive flock on the file
//  3. Writes PID to {LockDir}/{LockName}.pid for debugging
//  4. On release, removes PID file and releases flock
//
// # Limitations
//
//   - Advisory lock only - other processes can ignore it if they don't check
//   - NFS and some network filesystems don't support flock properly
//   - Lock survives if process crashes without calling Release (OS releases flock)
type Lock struct {
	config   LockConfig
	lockPath string
	pidPath  string
	lockFile *os.File
	held     bool
}

// NewLock creates a new process lock. Does not acquire it.
func NewLock(config LockConfig) *Lock {
	if config.LockDir == "" {
		config.LockDir = os.TempDir()
	}
	if config.LockName == "" {
		config.LockName = "kasdock"
	}

	return &Lock{
		config:   config,
		lockPath: filepath.Join(config.LockDir, config.LockName+".lock"),
		pidPath:  filepath.Join(config.LockDir, config.LockName+".pid"),
	}
}

// Acquire attempts to get an exclusive lock.
//
// # Description
//
// Uses a non-blocking flock. If another process holds the lock, returns
// immediately with an error naming the holder PID when available.
func (l *Lock) Acquire() error {
	if l.held {
		return nil // Already held
	}

	f, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to create lock file %s: %w", l.lockPath, err)
	}

	err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		f.Close()

		if err == syscall.EWOULDBLOCK {
			holderPID := l.readHolderPID()
			if holderPID > 0 {
				return fmt.Errorf("another kasdock instance is running (PID %d). "+
					"If this is stale, remove %s", holderPID, l.pidPath)
			}
			return fmt.Errorf("another kasdock instance is running. "+
				"Check: lsof %s", l.lockPath)
		}

		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	l.lockFile = f
	l.held = true

	// PID file is best-effort debugging aid; the flock is the lock.
	_ = l.writePID()

	return nil
}

// Release releases the lock if held. Safe to call multiple times.
func (l *Lock) Release() error {
	if !l.held || l.lockFile == nil {
		return nil
	}

	os.Remove(l.pidPath)

	err := syscall.Flock(int(l.lockFile.Fd()), syscall.LOCK_UN)

	l.lockFile.Close()
	l.lockFile = nil
	l.held = false

	// Lock file is left in place for faster subsequent acquires.

	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	return nil
}

// IsHeld returns true if this instance currently holds the lock.
func (l *Lock) IsHeld() bool {
	return l.held
}

// HolderPID returns the PID of the process holding the lock.
// May return a stale PID if the holder crashed without cleanup.
func (l *Lock) HolderPID() int {
	return l.readHolderPID()
}

// LockPath returns the path to the lock file.
func (l *Lock) LockPath() string {
	return l.lockPath
}

func (l *Lock) writePID() error {
	content := fmt.Sprintf("%d\n", os.Getpid())
	return os.WriteFile(l.pidPath, []byte(content), 0644)
}

func (l *Lock) readHolderPID() int {
	data, err := os.ReadFile(l.pidPath)
	if err != nil {
		return 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}

	return pid
}

// Compile-time interface satisfaction check
var _ Locker = (*Lock)(nil)
