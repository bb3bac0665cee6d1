// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation for security-critical
// identifiers.
//
// This package validates user-provided profile ids and service names
// before they reach subprocess argv (docker compose), InfluxDB tag
// values, or file paths. Using these validators prevents command
// injection, tag injection, and path traversal.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// namePattern matches valid compose service and profile names.
// Compose names start with a lowercase letter or digit and continue
// with lowercase letters, digits, underscores, dots, or hyphens.
var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)

// maxNameLength caps names at the container hostname limit.
const maxNameLength = 63

// ValidateServiceName validates a docker-compose service name.
//
// Valid names:
//   - 1-63 characters
//   - Lowercase letters a-z and digits 0-9
//   - Underscores, dots, and hyphens after the first character
//
// Returns an error if the name is invalid.
//
// Example:
//
//	if err := validation.ValidateServiceName(name); err != nil {
//	    return fmt.Errorf("invalid service: %w", err)
//	}
//	// Safe to pass to compose argv
func ValidateServiceName(name string) error {
	if name == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("service name %q exceeds %d characters", name, maxNameLength)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid service name: %q (must be lowercase alphanumeric with _, ., or -)", name)
	}
	return nil
}

// ValidateServiceNames validates multiple service names.
// Returns an error listing all invalid names if any fail validation.
func ValidateServiceNames(names []string) error {
	var invalid []string
	for _, n := range names {
		if err := ValidateServiceName(n); err != nil {
			invalid = append(invalid, n)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid service names: %v", invalid)
	}
	return nil
}

// ValidateProfileID validates a profile identifier.
//
// Profile ids share the compose naming rules because they are passed
// to compose as --profile arguments and recorded as InfluxDB tags.
func ValidateProfileID(id string) error {
	if id == "" {
		return fmt.Errorf("profile id cannot be empty")
	}
	if len(id) > maxNameLength {
		return fmt.Errorf("profile id %q exceeds %d characters", id, maxNameLength)
	}
	if !namePattern.MatchString(id) {
		return fmt.Errorf("invalid profile id: %q (must be lowercase alphanumeric with _, ., or -)", id)
	}
	return nil
}

// ValidateProfileIDs validates multiple profile ids.
// Returns an error listing all invalid ids if any fail validation.
func ValidateProfileIDs(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateProfileID(id); err != nil {
			invalid = append(invalid, id)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid profile ids: %v", invalid)
	}
	return nil
}

// SanitizeProfileID normalizes and validates a profile id.
// Returns the lowercase id if valid, or an error if invalid.
//
// Use this when accepting ids from interactive input:
//
//	id, err := validation.SanitizeProfileID(userInput)
//	if err != nil {
//	    return err
//	}
//	// id is lowercase and validated
func SanitizeProfileID(id string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(id))
	if err := ValidateProfileID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
