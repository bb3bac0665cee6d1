// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package compose

import (
	"errors"
	"fmt"
	"strings"
)

// CommandError carries the context of a failed docker invocation: the
// command line, its exit code, and captured stderr. The CLI layer uses
// it to show the actual compose output and a remediation hint instead
// of a bare exit code.
type CommandError struct {
	// Command is the full command line, e.g. "docker compose up -d".
	Command string

	// ExitCode is the process exit code, or -1 when the process never
	// started.
	ExitCode int

	// Stderr is the trimmed standard error output.
	Stderr string

	// Err is the launch error when the process could not be run at all.
	Err error
}

func (e *CommandError) Error() string {
	switch {
	case e.Stderr != "":
		return fmt.Sprintf("%s (exit %d): %s", e.Command, e.ExitCode, e.Stderr)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	default:
		return fmt.Sprintf("%s (exit %d)", e.Command, e.ExitCode)
	}
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// hintPatterns maps docker failure signatures to kasdock remediation.
// Matched case-insensitively against stderr, first hit wins.
var hintPatterns = []struct {
	needle string
	hint   string
}{
	{"port is already allocated", "Another process holds a stack port. 'kasdock stack status' shows the published ports; stop the other process or change the port in .env."},
	{"address already in use", "Another process holds a stack port. 'kasdock stack status' shows the published ports; stop the other process or change the port in .env."},
	{"cannot connect to the docker daemon", "The Docker daemon is not running. Start Docker and retry."},
	{"permission denied while trying to connect", "This user cannot reach the Docker socket. Add it to the docker group or run with elevated privileges."},
	{"no space left on device", "The host disk is full. Free space or move the data directory, then retry."},
	{"pull access denied", "The image could not be pulled. Check the image name in the compose file and your registry access."},
	{"failed to create network", "Docker could not set up the stack network. 'docker network prune' removes stale networks from interrupted runs."},
}

// Hint returns a kasdock-specific remediation for known docker failure
// signatures, or "" when the stderr matches nothing.
func (e *CommandError) Hint() string {
	stderr := strings.ToLower(e.Stderr)
	if stderr == "" {
		return ""
	}
	for _, p := range hintPatterns {
		if strings.Contains(stderr, p.needle) {
			return p.hint
		}
	}
	return ""
}

// newCommandError builds a CommandError from a finished run. stderr is
// trimmed; launchErr is non-nil only when the process failed to start.
func newCommandError(command string, exitCode int, stderr string, launchErr error) *CommandError {
	return &CommandError{
		Command:  command,
		ExitCode: exitCode,
		Stderr:   strings.TrimSpace(stderr),
		Err:      launchErr,
	}
}

// AsCommandError walks the chain for the first CommandError.
func AsCommandError(err error) (*CommandError, bool) {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr, true
	}
	return nil, false
}
