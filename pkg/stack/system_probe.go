// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stack

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// =============================================================================
// INTERFACES
// =============================================================================

// SystemProbe detects host capacity for sufficiency checks.
//
// # Description
//
// Detection reads CPU count from the runtime, total memory from
// /proc/meminfo, and free disk space for the configured data directory via
// statfs. Values are whole units (cores, GB) matching the catalog's
// ResourceSpec granularity.
//
// # Limitations
//
//   - Memory detection is Linux-specific; other platforms fall back to zero
//     and callers should supply a snapshot explicitly.
type SystemProbe interface {
	// Detect returns a point-in-time host capacity snapshot. The dataDir
	// argument selects the filesystem measured for disk capacity.
	Detect(dataDir string) (SystemResources, error)
}

// =============================================================================
// DEFAULT IMPLEMENTATION
// =============================================================================

// DefaultSystemProbe reads host capacity from the OS.
type DefaultSystemProbe struct{}

// NewDefaultSystemProbe creates a system probe.
func NewDefaultSystemProbe() *DefaultSystemProbe {
	return &DefaultSystemProbe{}
}

// Detect implements SystemProbe.
func (p *DefaultSystemProbe) Detect(dataDir string) (SystemResources, error) {
	resources := SystemResources{
		CPUCores: runtime.NumCPU(),
	}

	memGB, err := detectMemoryGB()
	if err != nil {
		return resources, fmt.Errorf("detect memory: %w", err)
	}
	resources.MemoryGB = memGB

	diskGB, err := detectFreeDiskGB(dataDir)
	if err != nil {
		return resources, fmt.Errorf("detect disk for %s: %w", dataDir, err)
	}
	resources.DiskGB = diskGB

	return resources, nil
}

// detectMemoryGB parses MemTotal from /proc/meminfo.
func detectMemoryGB() (int, error) {
	if runtime.GOOS != "linux" {
		return 0, nil
	}

	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse MemTotal: %w", err)
		}
		return int(kb / (1024 * 1024)), nil
	}
	return 0, fmt.Errorf("MemTotal not found in /proc/meminfo")
}

// detectFreeDiskGB returns free space on the filesystem holding path.
func detectFreeDiskGB(path string) (int, error) {
	if path == "" {
		path = "."
	}
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	free := uint64(stat.Bavail) * uint64(stat.Bsize)
	return int(free / (1024 * 1024 * 1024)), nil
}

// =============================================================================
// MOCK IMPLEMENTATION
// =============================================================================

// MockSystemProbe implements SystemProbe for testing.
type MockSystemProbe struct {
	DetectFunc func(dataDir string) (SystemResources, error)

	DetectCalls []string
}

// Detect implements SystemProbe.
func (m *MockSystemProbe) Detect(dataDir string) (SystemResources, error) {
	m.DetectCalls = append(m.DetectCalls, dataDir)
	if m.DetectFunc != nil {
		return m.DetectFunc(dataDir)
	}
	return SystemResources{CPUCores: 8, MemoryGB: 16, DiskGB: 500}, nil
}

// =============================================================================
// COMPILE-TIME CHECKS
// =============================================================================

var (
	_ SystemProbe = (*DefaultSystemProbe)(nil)
	_ SystemProbe = (*MockSystemProbe)(nil)
)
