// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging configures structured logging for the kasdock CLI and
// the wizard service.
//
// Both binaries log through slog; this package owns how the handlers are
// assembled so they do it the same way:
//
//   - The CLI logs human-readable text to stderr, keeping stdout free for
//     command output. 'kasdock --log-level debug' or KASDOCK_LOG_LEVEL
//     raise verbosity.
//   - The wizard logs JSON to stderr for collection by the container
//     runtime.
//   - Either can additionally append JSON lines to a daily file under the
//     stack directory ({service}.2006-01-02.log) for post-mortems of
//     unattended installs.
//
// Every entry carries a "service" attribute so aggregated CLI and wizard
// logs stay distinguishable.
//
// Logs must never contain wallet material or tokens; callers log the
// presence of a secret, not its value.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// =============================================================================
// LEVELS
// =============================================================================

// Level is a log severity name: "debug", "info", "warn", or "error".
// The zero value means LevelInfo.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// ParseLevel maps a level name from a flag or environment variable to a
// Level. The empty string parses to LevelInfo.
func ParseLevel(name string) (Level, error) {
	switch Level(name) {
	case "":
		return LevelInfo, nil
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return Level(name), nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q (use debug, info, warn, or error)", name)
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// =============================================================================
// CONFIG
// =============================================================================

// Config assembles a Logger. The zero value is a text logger to stderr at
// info level.
type Config struct {
	// Level is the minimum severity written. Zero value: LevelInfo.
	Level Level

	// Service tags every entry ("cli", "wizard"). Zero value: "kasdock".
	Service string

	// JSON switches the console stream from text to JSON lines. File
	// output is always JSON regardless.
	JSON bool

	// Quiet drops the console stream entirely. Useful with LogDir when
	// stderr is owned by an interactive TUI.
	Quiet bool

	// LogDir, when set, appends JSON lines to {Service}.{date}.log under
	// this directory, creating it as needed. A "~/" prefix expands to the
	// home directory.
	LogDir string

	// Console overrides the console destination. Zero value: os.Stderr.
	// Tests inject a buffer here.
	Console io.Writer
}

// =============================================================================
// LOGGER
// =============================================================================

// Logger is a slog.Logger bound to kasdock's handler layout plus the
// file handle it may own. Safe for concurrent use. Close releases the
// log file; loggers without LogDir need no Close.
type Logger struct {
	slog *slog.Logger
	file *os.File

	closeOnce sync.Once
	closeErr  error
}

// New builds a Logger from cfg. Construction never fails: if the log
// file cannot be opened the logger degrades to console-only and reports
// the problem on that console.
func New(cfg Config) *Logger {
	if cfg.Service == "" {
		cfg.Service = "kasdock"
	}
	if cfg.Console == nil {
		cfg.Console = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level.slogLevel()}

	var handlers []slog.Handler
	if !cfg.Quiet {
		if cfg.JSON {
			handlers = append(handlers, slog.NewJSONHandler(cfg.Console, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(cfg.Console, opts))
		}
	}

	logger := &Logger{}
	if cfg.LogDir != "" {
		file, err := openLogFile(cfg.LogDir, cfg.Service)
		if err == nil {
			logger.file = file
			handlers = append(handlers, slog.NewJSONHandler(file, opts))
		} else if !cfg.Quiet {
			fmt.Fprintf(cfg.Console, "file logging disabled: %v\n", err)
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		// Quiet with no usable file: discard, but keep the logger valid.
		handler = slog.NewTextHandler(io.Discard, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = teeHandler(handlers)
	}

	logger.slog = slog.New(handler).With("service", cfg.Service)
	return logger
}

// openLogFile opens (appending) the daily log file for service under dir.
func openLogFile(dir, service string) (*os.File, error) {
	if len(dir) >= 2 && dir[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", dir, err)
		}
		dir = filepath.Join(home, dir[2:])
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	name := fmt.Sprintf("%s.%s.log", service, time.Now().Format("2006-01-02"))
	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return file, nil
}

var (
	defaultMu     sync.Mutex
	defaultLogger *Logger
)

// Default returns the process-wide logger. Until SetDefault runs it is a
// text logger to stderr with the level from KASDOCK_LOG_LEVEL (info when
// unset or unparseable).
func Default() *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		level, _ := ParseLevel(os.Getenv("KASDOCK_LOG_LEVEL"))
		defaultLogger = New(Config{Level: level, Service: "cli"})
	}
	return defaultLogger
}

// SetDefault installs the process-wide logger. The CLI calls this once
// after flags are parsed so every component logs through the same
// destinations.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a child logger carrying extra attributes. The child shares
// the parent's destinations; closing either closes the shared file.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), file: l.file}
}

// Slog exposes the underlying slog.Logger for collaborators that take
// one directly (badger, slog.SetDefault).
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close syncs and closes the log file, if any. Idempotent.
func (l *Logger) Close() error {
	l.closeOnce.Do(func() {
		if l.file == nil {
			return
		}
		if err := l.file.Sync(); err != nil {
			l.closeErr = fmt.Errorf("syncing log file: %w", err)
		}
		if err := l.file.Close(); err != nil && l.closeErr == nil {
			l.closeErr = fmt.Errorf("closing log file: %w", err)
		}
	})
	return l.closeErr
}

// =============================================================================
// FAN-OUT HANDLER
// =============================================================================

// teeHandler replicates records to every destination. A record is logged
// when any destination accepts its level, and failed destinations do not
// block the others.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
