// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package process

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultLockConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultLockConfig()
	if cfg.LockDir != os.TempDir() {
		t.Errorf("LockDir = %q, want %q", cfg.LockDir, os.TempDir())
	}
	if cfg.LockName != "kasdock" {
		t.Errorf("LockName = %q, want kasdock", cfg.LockName)
	}
}

func TestNewLock_EmptyConfigUsesDefaults(t *testing.T) {
	t.Parallel()

	lock := NewLock(LockConfig{})
	if !strings.HasPrefix(lock.LockPath(), os.TempDir()) {
		t.Errorf("LockPath() = %q, want under %q", lock.LockPath(), os.TempDir())
	}
	if !strings.HasSuffix(lock.LockPath(), "kasdock.lock") {
		t.Errorf("LockPath() = %q, want kasdock.lock suffix", lock.LockPath())
	}
}

func TestLock_AcquireRelease(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	lock := NewLock(LockConfig{LockDir: dir, LockName: "test"})

	if lock.IsHeld() {
		t.Fatal("IsHeld() = true before Acquire")
	}

	if err := lock.Acquire(); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !lock.IsHeld() {
		t.Fatal("IsHeld() = false after Acquire")
	}

	// PID file records this process.
	if pid := lock.HolderPID(); pid != os.Getpid() {
		t.Errorf("HolderPID() = %d, want %d", pid, os.Getpid())
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if lock.IsHeld() {
		t.Error("IsHeld() = true after Release")
	}

	// PID file is cleaned up, lock file is left for reuse.
	if _, err := os.Stat(filepath.Join(dir, "test.pid")); !os.IsNotExist(err) {
		t.Errorf("pid file still present after Release (err = %v)", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "test.lock")); err != nil {
		t.Errorf("lock file should survive Release: %v", err)
	}
}

func TestLock_AcquireTwiceIsNoop(t *testing.T) {
	t.Parallel()

	lock := NewLock(LockConfig{LockDir: t.TempDir(), LockName: "test"})
	if err := lock.Acquire(); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer lock.Release()

	if err := lock.Acquire(); err != nil {
		t.Errorf("second Acquire() error = %v, want nil", err)
	}
}

func TestLock_SecondHolderBlocked(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := NewLock(LockConfig{LockDir: dir, LockName: "test"})
	if err := first.Acquire(); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer first.Release()

	// Flock is per file description, so a second *Lock in the same
	// process contends exactly like a second process would.
	second := NewLock(LockConfig{LockDir: dir, LockName: "test"})
	err := second.Acquire()
	if err == nil {
		second.Release()
		t.Fatal("second Acquire() succeeded, want contention error")
	}
	if !strings.Contains(err.Error(), "another kasdock instance") {
		t.Errorf("error = %v, want holder message", err)
	}
	if second.IsHeld() {
		t.Error("IsHeld() = true on blocked lock")
	}
}

func TestLock_ReacquireAfterRelease(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := NewLock(LockConfig{LockDir: dir, LockName: "test"})
	if err := first.Acquire(); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	second := NewLock(LockConfig{LockDir: dir, LockName: "test"})
	if err := second.Acquire(); err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	if err := second.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
}

func TestLock_ReleaseWithoutAcquire(t *testing.T) {
	t.Parallel()

	lock := NewLock(LockConfig{LockDir: t.TempDir(), LockName: "test"})
	if err := lock.Release(); err != nil {
		t.Errorf("Release() without Acquire error = %v, want nil", err)
	}
}

func TestLock_HolderPIDUnknown(t *testing.T) {
	t.Parallel()

	lock := NewLock(LockConfig{LockDir: t.TempDir(), LockName: "test"})
	if pid := lock.HolderPID(); pid != 0 {
		t.Errorf("HolderPID() = %d, want 0 with no pid file", pid)
	}
}
