// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// PersonalityLevel selects how chatty and decorated kasdock's output is.
type PersonalityLevel string

const (
	// PersonalityFull is the interactive default: colors, icons, and
	// framed warnings.
	PersonalityFull PersonalityLevel = "full"

	// PersonalityStandard keeps colors and icons without decoration.
	PersonalityStandard PersonalityLevel = "standard"

	// PersonalityMinimal is icons and plain text, no coloring.
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine emits stable tab- and prefix-delimited text
	// for scripts that parse kasdock output.
	PersonalityMachine PersonalityLevel = "machine"
)

var (
	levelMu      sync.RWMutex
	currentLevel = PersonalityFull
)

// CurrentLevel returns the active personality level.
func CurrentLevel() PersonalityLevel {
	levelMu.RLock()
	defer levelMu.RUnlock()
	return currentLevel
}

// SetPersonalityLevel switches the active level for the whole process.
func SetPersonalityLevel(level PersonalityLevel) {
	levelMu.Lock()
	defer levelMu.Unlock()
	currentLevel = level
}

// ParsePersonalityLevel maps a --personality flag value to a level.
// Unknown values fall back to standard rather than failing the command.
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(s) {
	case "full", "f":
		return PersonalityFull
	case "standard", "std", "s":
		return PersonalityStandard
	case "minimal", "min", "m":
		return PersonalityMinimal
	case "machine", "quiet", "q":
		return PersonalityMachine
	default:
		return PersonalityStandard
	}
}

// InitPersonality picks the startup level. KASDOCK_PERSONALITY wins;
// a piped stdout forces machine mode so `kasdock stack status | grep`
// stays parseable; NO_COLOR drops to minimal; an interactive terminal
// gets the full treatment.
func InitPersonality() {
	if env := os.Getenv("KASDOCK_PERSONALITY"); env != "" {
		SetPersonalityLevel(ParsePersonalityLevel(env))
		return
	}
	if !stdoutIsTerminal() {
		SetPersonalityLevel(PersonalityMachine)
		return
	}
	if os.Getenv("NO_COLOR") != "" {
		SetPersonalityLevel(PersonalityMinimal)
		return
	}
	SetPersonalityLevel(PersonalityFull)
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// IsInteractive reports whether prompts such as ConfirmDestructive may
// block on stdin.
func IsInteractive() bool {
	return CurrentLevel() != PersonalityMachine && stdoutIsTerminal()
}

// ShouldShowProgress reports whether spinners and progress views should
// animate.
func ShouldShowProgress() bool {
	return CurrentLevel() != PersonalityMachine
}

func machineMode() bool {
	return CurrentLevel() == PersonalityMachine
}
