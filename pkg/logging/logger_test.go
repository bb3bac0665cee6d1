// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package logging tests.

These tests verify:
  - Level parsing from flag and KASDOCK_LOG_LEVEL values
  - Console output in text and JSON form with the service attribute
  - Level filtering and quiet mode
  - Daily file logging, including degradation when the directory is
    unusable
  - Child loggers and idempotent Close
*/
package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Level
		wantErr bool
	}{
		{name: "empty defaults to info", input: "", want: LevelInfo},
		{name: "debug", input: "debug", want: LevelDebug},
		{name: "info", input: "info", want: LevelInfo},
		{name: "warn", input: "warn", want: LevelWarn},
		{name: "error", input: "error", want: LevelError},
		{name: "unknown", input: "chatty", want: LevelInfo, wantErr: true},
		{name: "wrong case", input: "DEBUG", want: LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNew_TextConsole(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(Config{Service: "cli", Console: &buf})

	logger.Info("install started", "profiles", "core,monitoring")

	out := buf.String()
	for _, want := range []string{"install started", "service=cli", "profiles=core,monitoring", "level=INFO"} {
		if !strings.Contains(out, want) {
			t.Errorf("console output missing %q:\n%s", want, out)
		}
	}
}

func TestNew_JSONConsole(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(Config{Service: "wizard", JSON: true, Console: &buf})

	logger.Warn("probe timed out", "target", "localhost:16110")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("console output is not a JSON line: %v\n%s", err, buf.String())
	}
	if entry["msg"] != "probe timed out" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["service"] != "wizard" {
		t.Errorf("service = %v", entry["service"])
	}
	if entry["level"] != "WARN" {
		t.Errorf("level = %v", entry["level"])
	}
	if entry["target"] != "localhost:16110" {
		t.Errorf("target = %v", entry["target"])
	}
}

func TestNew_LevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(Config{Level: LevelWarn, Console: &buf})

	logger.Debug("resolver iteration")
	logger.Info("resolution complete")
	logger.Warn("memory above sizing threshold")

	out := buf.String()
	if strings.Contains(out, "resolver iteration") || strings.Contains(out, "resolution complete") {
		t.Errorf("sub-warn entries leaked through the filter:\n%s", out)
	}
	if !strings.Contains(out, "memory above sizing threshold") {
		t.Errorf("warn entry missing:\n%s", out)
	}
}

func TestNew_Quiet(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(Config{Quiet: true, Console: &buf})

	logger.Error("compose up failed", "service", "kaspad")

	if buf.Len() != 0 {
		t.Errorf("quiet logger wrote to the console: %s", buf.String())
	}
}

func TestNew_DefaultServiceName(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(Config{Console: &buf})

	logger.Info("hello")

	if !strings.Contains(buf.String(), "service=kasdock") {
		t.Errorf("default service attribute missing:\n%s", buf.String())
	}
}

func TestNew_FileLogging(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var buf bytes.Buffer
	logger := New(Config{Service: "cli", LogDir: dir, Console: &buf})

	logger.Info("state persisted", "profiles", "core")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() returned error: %v", err)
	}

	wantName := "cli." + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, wantName))
	if err != nil {
		t.Fatalf("daily log file not written: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("file entry is not JSON: %v\n%s", err, data)
	}
	if entry["msg"] != "state persisted" {
		t.Errorf("file msg = %v", entry["msg"])
	}

	// The console stream got the same record.
	if !strings.Contains(buf.String(), "state persisted") {
		t.Errorf("console missed the record when file logging is on:\n%s", buf.String())
	}
}

func TestNew_QuietWithFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var buf bytes.Buffer
	logger := New(Config{Service: "wizard", LogDir: dir, Quiet: true, Console: &buf})

	logger.Info("background install finished")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() returned error: %v", err)
	}

	if buf.Len() != 0 {
		t.Errorf("quiet logger wrote to the console: %s", buf.String())
	}
	name := "wizard." + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("daily log file not written: %v", err)
	}
	if !strings.Contains(string(data), "background install finished") {
		t.Errorf("file missing the record: %s", data)
	}
}

func TestNew_UnusableLogDirDegrades(t *testing.T) {
	t.Parallel()

	// A regular file where the directory should be.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	logger := New(Config{LogDir: blocker, Console: &buf})

	if !strings.Contains(buf.String(), "file logging disabled") {
		t.Errorf("degradation notice missing:\n%s", buf.String())
	}

	buf.Reset()
	logger.Info("still logging")
	if !strings.Contains(buf.String(), "still logging") {
		t.Errorf("console logging broken after file degradation:\n%s", buf.String())
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}
}

func TestLogger_With(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(Config{Console: &buf})

	opLogger := logger.With("operation", "remove", "profile", "mining")
	opLogger.Info("stopping services")

	out := buf.String()
	if !strings.Contains(out, "operation=remove") || !strings.Contains(out, "profile=mining") {
		t.Errorf("child logger attributes missing:\n%s", out)
	}

	// The parent is not contaminated.
	buf.Reset()
	logger.Info("unrelated")
	if strings.Contains(buf.String(), "operation=remove") {
		t.Errorf("parent logger picked up child attributes:\n%s", buf.String())
	}
}

func TestLogger_CloseIdempotent(t *testing.T) {
	t.Parallel()

	logger := New(Config{LogDir: t.TempDir(), Quiet: true})
	logger.Info("one entry")

	if err := logger.Close(); err != nil {
		t.Fatalf("first Close() returned error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() returned error: %v", err)
	}
}

func TestLogger_CloseWithoutFile(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(Config{Console: &buf})
	if err := logger.Close(); err != nil {
		t.Errorf("Close() on console-only logger returned error: %v", err)
	}
}

func TestDefault_SingleInstance(t *testing.T) {
	t.Parallel()

	a := Default()
	b := Default()
	if a != b {
		t.Error("Default() returned distinct instances")
	}
	if a.Slog() == nil {
		t.Error("Default().Slog() is nil")
	}
}
