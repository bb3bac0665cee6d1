// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

func captureStdout(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

func captureStderr(f func()) string {
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	f()

	w.Close()
	os.Stderr = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

func TestIconRender(t *testing.T) {
	// Status icons style themselves; structural icons pass through.
	styled := []Icon{IconSuccess, IconWarning, IconError, IconPending}
	for _, icon := range styled {
		if got := icon.Render(); !strings.Contains(got, string(icon)) {
			t.Errorf("Render() of %q lost its glyph: %q", icon, got)
		}
	}
	plain := []Icon{IconArrow, IconBullet}
	for _, icon := range plain {
		if got := icon.Render(); got != string(icon) {
			t.Errorf("Render() of %q = %q, want the bare glyph", icon, got)
		}
	}
}

// Machine mode is the contract for scripted callers: stable prefixes,
// warnings and errors on stderr, decoration dropped.
func TestMachineModeOutput(t *testing.T) {
	tests := []struct {
		name       string
		print      func()
		wantStdout string
		wantStderr string
	}{
		{
			name:       "success gets OK prefix",
			print:      func() { Success("Installed: node, kaspa-explorer") },
			wantStdout: "OK: Installed: node, kaspa-explorer\n",
		},
		{
			name:       "warning goes to stderr",
			print:      func() { Warning("archive-node expects 64 GB of free disk") },
			wantStderr: "WARN: archive-node expects 64 GB of free disk\n",
		},
		{
			name:       "error goes to stderr",
			print:      func() { Error("docker compose is missing or too old") },
			wantStderr: "ERROR: docker compose is missing or too old\n",
		},
		{
			name:       "info is bare text",
			print:      func() { Info("Run 'kasdock stack status' to watch the services come up.") },
			wantStdout: "Run 'kasdock stack status' to watch the services come up.\n",
		},
		{
			name:  "hints are dropped",
			print: func() { Muted("Re-run with --ignore-resources to override.") },
		},
		{
			name:  "headings are dropped",
			print: func() { Title("Kaspa Stack") },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withLevel(t, PersonalityMachine)

			var stderr string
			stdout := captureStdout(func() {
				stderr = captureStderr(tt.print)
			})
			if stdout != tt.wantStdout {
				t.Errorf("stdout = %q, want %q", stdout, tt.wantStdout)
			}
			if stderr != tt.wantStderr {
				t.Errorf("stderr = %q, want %q", stderr, tt.wantStderr)
			}
		})
	}
}

func TestStatusHelpers_FullMode(t *testing.T) {
	withLevel(t, PersonalityFull)

	output := captureStdout(func() {
		Success("Installed: node")
		Info("Resolving profile dependencies")
	})
	if !strings.Contains(output, "Installed: node") {
		t.Errorf("success text missing from output: %q", output)
	}
	if !strings.Contains(output, "Resolving profile dependencies") {
		t.Errorf("info text missing from output: %q", output)
	}
}

func TestStatusHelpers_MinimalModeKeepsIcon(t *testing.T) {
	withLevel(t, PersonalityMinimal)

	output := captureStdout(func() {
		Success("Installed: node")
	})
	if !strings.Contains(output, string(IconSuccess)) {
		t.Errorf("minimal output lost its icon: %q", output)
	}
	if !strings.Contains(output, "Installed: node") {
		t.Errorf("minimal output lost its text: %q", output)
	}
}

func TestServiceStatus(t *testing.T) {
	t.Run("machine mode is tab separated", func(t *testing.T) {
		withLevel(t, PersonalityMachine)

		output := captureStdout(func() {
			ServiceStatus("kaspad", IconSuccess, "running (healthy)")
		})
		want := string(IconSuccess) + "\tkaspad\trunning (healthy)\n"
		if output != want {
			t.Errorf("output = %q, want %q", output, want)
		}
	})

	t.Run("minimal mode drops the detail", func(t *testing.T) {
		withLevel(t, PersonalityMinimal)

		output := captureStdout(func() {
			ServiceStatus("kaspa-rest-server", IconPending, "starting")
		})
		if !strings.Contains(output, "kaspa-rest-server") {
			t.Errorf("service name missing: %q", output)
		}
		if strings.Contains(output, "starting") {
			t.Errorf("detail should be dropped in minimal mode: %q", output)
		}
	})

	t.Run("full mode shows the detail", func(t *testing.T) {
		withLevel(t, PersonalityFull)

		output := captureStdout(func() {
			ServiceStatus("kaspad", IconSuccess, "16110->16110")
		})
		if !strings.Contains(output, "kaspad") || !strings.Contains(output, "16110->16110") {
			t.Errorf("expected service and ports in output, got %q", output)
		}
	})
}

func TestSummary(t *testing.T) {
	t.Run("machine mode", func(t *testing.T) {
		withLevel(t, PersonalityMachine)

		output := captureStdout(func() {
			Summary(5, 2, 7)
		})
		if output != "SUMMARY: running=5 stopped=2 total=7\n" {
			t.Errorf("output = %q", output)
		}
	})

	t.Run("full mode", func(t *testing.T) {
		withLevel(t, PersonalityFull)

		output := captureStdout(func() {
			Summary(5, 2, 7)
		})
		for _, want := range []string{"5", "running", "2", "stopped", "7", "total"} {
			if !strings.Contains(output, want) {
				t.Errorf("summary missing %q: %q", want, output)
			}
		}
	})
}

func TestWarningBox(t *testing.T) {
	t.Run("machine mode collapses to one stderr line", func(t *testing.T) {
		withLevel(t, PersonalityMachine)

		stderr := captureStderr(func() {
			WarningBox("Destroy the Kaspa stack", "All containers and volumes will be removed.")
		})
		want := "WARN Destroy the Kaspa stack: All containers and volumes will be removed.\n"
		if stderr != want {
			t.Errorf("stderr = %q, want %q", stderr, want)
		}
	})

	t.Run("full mode frames title and content", func(t *testing.T) {
		withLevel(t, PersonalityFull)

		output := captureStdout(func() {
			WarningBox("Destroy the Kaspa stack", "All containers and volumes will be removed.")
		})
		if !strings.Contains(output, "Destroy the Kaspa stack") {
			t.Errorf("title missing: %q", output)
		}
		if !strings.Contains(output, "volumes will be removed") {
			t.Errorf("content missing: %q", output)
		}
	})
}
