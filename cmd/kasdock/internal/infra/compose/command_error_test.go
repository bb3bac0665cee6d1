// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// Tests for the docker command failure context.

package compose

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCommandError_Message(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *CommandError
		want string
	}{
		{
			name: "with stderr",
			err:  newCommandError("docker compose up -d", 1, "bind: address already in use\n", nil),
			want: "docker compose up -d (exit 1): bind: address already in use",
		},
		{
			name: "launch failure",
			err:  newCommandError("docker compose up -d", -1, "", errors.New("executable file not found")),
			want: "docker compose up -d: executable file not found",
		},
		{
			name: "exit code only",
			err:  newCommandError("docker ps", 125, "", nil),
			want: "docker ps (exit 125)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCommandError_Unwrap(t *testing.T) {
	t.Parallel()

	launch := errors.New("context deadline exceeded")
	err := newCommandError("docker compose stop", -1, "", launch)

	if !errors.Is(err, launch) {
		t.Error("errors.Is failed to reach the launch error")
	}
}

// TestCommandError_Hints covers the docker failure signatures kasdock
// knows how to remediate.
func TestCommandError_Hints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		stderr     string
		wantInHint string
	}{
		{
			name:       "port already allocated",
			stderr:     "Error response from daemon: driver failed programming external connectivity: Bind for 0.0.0.0:16110 failed: port is already allocated",
			wantInHint: "kasdock stack status",
		},
		{
			name:       "daemon down",
			stderr:     "Cannot connect to the Docker daemon at unix:///var/run/docker.sock. Is the docker daemon running?",
			wantInHint: "Start Docker",
		},
		{
			name:       "socket permission",
			stderr:     "permission denied while trying to connect to the Docker daemon socket",
			wantInHint: "docker group",
		},
		{
			name:       "disk full",
			stderr:     "write /var/lib/docker/tmp: no space left on device",
			wantInHint: "disk is full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := newCommandError("docker compose up -d", 1, tt.stderr, nil)
			hint := err.Hint()
			if hint == "" {
				t.Fatal("expected a remediation hint")
			}
			if !strings.Contains(hint, tt.wantInHint) {
				t.Errorf("Hint() = %q, want it to mention %q", hint, tt.wantInHint)
			}
		})
	}
}

func TestCommandError_NoHintForUnknownStderr(t *testing.T) {
	t.Parallel()

	err := newCommandError("docker compose up -d", 1, "something nobody has seen before", nil)
	if hint := err.Hint(); hint != "" {
		t.Errorf("Hint() = %q, want empty", hint)
	}
	empty := newCommandError("docker ps", 1, "", nil)
	if hint := empty.Hint(); hint != "" {
		t.Errorf("Hint() on empty stderr = %q, want empty", hint)
	}
}

func TestAsCommandError(t *testing.T) {
	t.Parallel()

	inner := newCommandError("docker compose up -d", 1, "port is already allocated", nil)
	wrapped := fmt.Errorf("starting services: %w", inner)

	got, ok := AsCommandError(wrapped)
	if !ok {
		t.Fatal("AsCommandError failed through a wrapped chain")
	}
	if got.Stderr != "port is already allocated" {
		t.Errorf("Stderr = %q", got.Stderr)
	}

	if _, ok := AsCommandError(errors.New("plain")); ok {
		t.Error("AsCommandError matched a plain error")
	}
	if _, ok := AsCommandError(nil); ok {
		t.Error("AsCommandError matched nil")
	}
}
