// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package watcher reports changes to the stack's configuration files.
//
// # Description
//
// Watches the stack directory for edits to a fixed set of files (the .env
// file and the compose files) and delivers debounced, deduplicated change
// batches to a handler. Editors that save atomically (write to a temp file,
// rename over the target) produce create/rename bursts rather than plain
// writes, so the watcher observes the whole directory and filters events
// down to the tracked file names instead of watching the files directly.
//
// # Thread Safety
//
// A StackWatcher is safe for concurrent use. The handler is always invoked
// from a single goroutine, so handlers need no internal locking.
package watcher

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultDebounceWindow batches the create/rename/chmod storm an atomic
	// editor save produces into a single handler call.
	DefaultDebounceWindow = 500 * time.Millisecond

	// DefaultBufferSize is the change channel capacity between the event
	// processor and the debouncer.
	DefaultBufferSize = 64
)

// =============================================================================
// ERROR VARIABLES
// =============================================================================

var (
	// ErrNoFiles indicates the watcher was given nothing to track.
	ErrNoFiles = errors.New("no files to watch")

	// ErrNoHandler indicates the watcher was given no change handler.
	ErrNoHandler = errors.New("change handler is required")
)

// =============================================================================
// TYPES
// =============================================================================

// FileOp describes what happened to a tracked file.
type FileOp int

const (
	// OpCreate means the file appeared (including rename-over saves).
	OpCreate FileOp = iota

	// OpWrite means the file content changed in place.
	OpWrite

	// OpRemove means the file was deleted.
	OpRemove

	// OpRename means the file was moved away.
	OpRename
)

// String returns the operation name for logs and event messages.
func (op FileOp) String() string {
	switch op {
	case OpCreate:
		return "created"
	case OpWrite:
		return "modified"
	case OpRemove:
		return "removed"
	case OpRename:
		return "renamed"
	default:
		return "changed"
	}
}

// FileChange is one observed change to a tracked file.
type FileChange struct {
	// Path is the absolute path of the changed file.
	Path string

	// Name is the tracked base name (e.g. ".env").
	Name string

	// Op is what happened to the file.
	Op FileOp

	// Time is when the change was observed.
	Time time.Time
}

// ChangeHandler receives a debounced batch of changes. Batches contain at
// most one entry per file, keeping the most recent operation.
type ChangeHandler func(changes []FileChange)

// Options configures a StackWatcher.
type Options struct {
	// DebounceWindow is how long to batch changes before invoking the
	// handler. Zero uses DefaultDebounceWindow.
	DebounceWindow time.Duration

	// BufferSize is the change channel capacity. Zero uses
	// DefaultBufferSize.
	BufferSize int
}

// DefaultOptions returns the options used by the CLI.
func DefaultOptions() Options {
	return Options{
		DebounceWindow: DefaultDebounceWindow,
		BufferSize:     DefaultBufferSize,
	}
}

// =============================================================================
// STACK WATCHER
// =============================================================================

// StackWatcher watches a directory for changes to a set of tracked files.
type StackWatcher struct {
	dir      string
	tracked  map[string]bool // base name -> tracked
	handler  ChangeHandler
	debounce time.Duration

	watcher *fsnotify.Watcher
	changes chan FileChange
	done    chan struct{}

	mu       sync.RWMutex
	watching bool
	stopOnce sync.Once
}

// New creates a watcher for the named files inside dir.
//
// # Inputs
//
//   - dir: Directory holding the tracked files.
//   - files: Base names to track (empty names are ignored).
//   - handler: Callback for debounced change batches.
//   - opts: Debounce and buffering options.
//
// # Outputs
//
//   - *StackWatcher: Ready to Start.
//   - error: ErrNoFiles, ErrNoHandler, or an fsnotify setup failure.
func New(dir string, files []string, handler ChangeHandler, opts Options) (*StackWatcher, error) {
	tracked := make(map[string]bool, len(files))
	for _, name := range files {
		if name != "" {
			tracked[filepath.Base(name)] = true
		}
	}
	if len(tracked) == 0 {
		return nil, ErrNoFiles
	}
	if handler == nil {
		return nil, ErrNoHandler
	}

	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultDebounceWindow
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &StackWatcher{
		dir:      dir,
		tracked:  tracked,
		handler:  handler,
		debounce: opts.DebounceWindow,
		watcher:  fsw,
		changes:  make(chan FileChange, opts.BufferSize),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. It returns immediately; changes are delivered to
// the handler until Stop is called or ctx is cancelled.
func (w *StackWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)

	return nil
}

// Stop stops the watcher and releases its OS resources. Safe to call more
// than once.
func (w *StackWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching reports whether the watcher is active.
func (w *StackWatcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

// Tracked returns the tracked base names, for status output.
func (w *StackWatcher) Tracked() []string {
	names := make([]string, 0, len(w.tracked))
	for name := range w.tracked {
		names = append(names, name)
	}
	return names
}

// processEvents filters fsnotify events down to tracked files and forwards
// them to the debounce channel.
func (w *StackWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			name := filepath.Base(event.Name)
			if !w.tracked[name] {
				continue
			}

			change := FileChange{
				Path: event.Name,
				Name: name,
				Op:   convertOp(event.Op),
				Time: time.Now(),
			}

			select {
			case w.changes <- change:
			default:
				// Buffer full. The debouncer will still see the
				// earlier change for this file, so dropping is safe.
			}

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// convertOp maps fsnotify operations to FileOp.
func convertOp(op fsnotify.Op) FileOp {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate
	case op.Has(fsnotify.Remove):
		return OpRemove
	case op.Has(fsnotify.Rename):
		return OpRename
	default:
		return OpWrite
	}
}

// debounceLoop batches changes and invokes the handler once per quiet
// period.
func (w *StackWatcher) debounceLoop(ctx context.Context) {
	var batch []FileChange
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) > 0 {
			deduped := dedupe(batch)
			if len(deduped) > 0 {
				w.handler(deduped)
			}
			batch = batch[:0]
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case change := <-w.changes:
			batch = append(batch, change)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			flush()
		}
	}
}

// dedupe keeps the most recent change per file, preserving first-seen
// order.
func dedupe(changes []FileChange) []FileChange {
	seen := make(map[string]int, len(changes))
	result := make([]FileChange, 0, len(changes))

	for _, change := range changes {
		if idx, ok := seen[change.Name]; ok {
			result[idx] = change
		} else {
			seen[change.Name] = len(result)
			result = append(result, change)
		}
	}

	return result
}
