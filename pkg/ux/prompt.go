// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Confirm asks a yes/no question on stdin and returns true for
// "yes" or "y" (case-insensitive). In machine mode it never prompts
// and always returns false so scripted runs fail closed.
func Confirm(question string) bool {
	if machineMode() {
		return false
	}
	return ConfirmReader(os.Stdin, question)
}

// ConfirmReader is Confirm with an injectable input source.
func ConfirmReader(r io.Reader, question string) bool {
	fmt.Printf("%s (yes/no): ", question)
	reader := bufio.NewReader(r)
	input, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	input = strings.TrimSpace(strings.ToLower(input))
	return input == "yes" || input == "y"
}

// ConfirmDestructive asks for confirmation of a destructive action,
// showing a warning box with the consequences first.
func ConfirmDestructive(title string, consequences []string, question string) bool {
	if machineMode() {
		return false
	}
	WarningBox(title, strings.Join(consequences, "\n"))
	return Confirm(question)
}
