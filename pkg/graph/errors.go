// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"errors"
	"fmt"
)

// Exit codes for graph commands.
const (
	ExitSuccess = 0 // Query successful (even if no results)
	ExitError   = 1 // Error (empty catalog, unknown profile, etc.)
	ExitBadArgs = 2 // Invalid arguments
)

// Sentinel errors for graph construction and queries.
var (
	// Builder errors
	ErrEmptyCatalog     = errors.New("catalog has no profiles")
	ErrDuplicateProfile = errors.New("duplicate profile id")

	// Query errors
	ErrProfileNotFound = errors.New("profile not found in graph")
	ErrNoPath          = errors.New("no dependency path exists")
	ErrNoResults       = errors.New("no results found")
)

// ProfileNotFoundError provides details about an unknown profile id.
type ProfileNotFoundError struct {
	Input string
	Known []string
}

// Error implements the error interface.
func (e *ProfileNotFoundError) Error() string {
	if len(e.Known) > 0 {
		return fmt.Sprintf("profile %q not found in graph; known profiles: %v", e.Input, e.Known)
	}
	return fmt.Sprintf("profile %q not found in graph", e.Input)
}

// Unwrap returns the sentinel error.
func (e *ProfileNotFoundError) Unwrap() error {
	return ErrProfileNotFound
}
