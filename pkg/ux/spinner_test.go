// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"strings"
	"testing"
	"time"
)

// Long enough for a few frames at the spinner interval.
const spinTime = 350 * time.Millisecond

func TestSpinner_DrawsOnStderr(t *testing.T) {
	withLevel(t, PersonalityFull)

	spin := NewSpinner("Probing external dependencies")
	stderr := captureStderr(func() {
		spin.Start()
		time.Sleep(spinTime)
		spin.Stop()
	})

	if !strings.Contains(stderr, "Probing external dependencies") {
		t.Errorf("spinner message missing from stderr: %q", stderr)
	}
	// Stop clears the line so the next print starts clean.
	if !strings.HasSuffix(stderr, "\r\033[K") {
		t.Errorf("expected trailing line clear, got %q", stderr)
	}
}

func TestSpinner_UpdateMessage(t *testing.T) {
	withLevel(t, PersonalityFull)

	spin := NewSpinner("Probing dependencies of kaspad")
	stderr := captureStderr(func() {
		spin.Start()
		time.Sleep(spinTime)
		spin.UpdateMessage("Probing dependencies of kaspa-rest-server")
		time.Sleep(spinTime)
		spin.Stop()
	})

	if !strings.Contains(stderr, "kaspad") {
		t.Errorf("first message missing: %q", stderr)
	}
	if !strings.Contains(stderr, "kaspa-rest-server") {
		t.Errorf("updated message missing: %q", stderr)
	}
}

func TestSpinner_SilentInMachineMode(t *testing.T) {
	withLevel(t, PersonalityMachine)

	spin := NewSpinner("Probing external dependencies")
	stderr := captureStderr(func() {
		spin.Start()
		time.Sleep(spinnerInterval * 2)
		spin.Stop()
	})

	if stderr != "" {
		t.Errorf("machine mode must not animate, got %q", stderr)
	}
}

func TestSpinner_StopWithoutStart(t *testing.T) {
	spin := NewSpinner("idle")
	spin.Stop() // must not panic or block
	spin.Stop()
}

func TestSpinner_Restart(t *testing.T) {
	withLevel(t, PersonalityFull)

	spin := NewSpinner("first pass")
	stderr := captureStderr(func() {
		spin.Start()
		time.Sleep(spinTime)
		spin.Stop()

		spin.UpdateMessage("second pass")
		spin.Start()
		time.Sleep(spinTime)
		spin.Stop()
	})

	if !strings.Contains(stderr, "first pass") || !strings.Contains(stderr, "second pass") {
		t.Errorf("expected both runs to draw, got %q", stderr)
	}
}

func TestSpinner_DoubleStart(t *testing.T) {
	withLevel(t, PersonalityFull)

	spin := NewSpinner("resolving")
	captureStderr(func() {
		spin.Start()
		spin.Start() // second call is a no-op
		time.Sleep(spinTime)
		spin.Stop()
	})
}
