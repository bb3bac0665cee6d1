// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	handler := func([]FileChange) {}

	tests := []struct {
		name    string
		files   []string
		handler ChangeHandler
		wantErr error
	}{
		{name: "no files", files: nil, handler: handler, wantErr: ErrNoFiles},
		{name: "only empty names", files: []string{"", ""}, handler: handler, wantErr: ErrNoFiles},
		{name: "nil handler", files: []string{".env"}, handler: nil, wantErr: ErrNoHandler},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := New(t.TempDir(), tt.files, tt.handler, DefaultOptions())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_TracksBaseNames(t *testing.T) {
	t.Parallel()

	w, err := New(t.TempDir(), []string{"/some/dir/.env", "docker-compose.yml"}, func([]FileChange) {}, DefaultOptions())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Stop()

	tracked := w.Tracked()
	if len(tracked) != 2 {
		t.Fatalf("Tracked() = %v, want 2 names", tracked)
	}
	found := map[string]bool{}
	for _, name := range tracked {
		found[name] = true
	}
	if !found[".env"] || !found["docker-compose.yml"] {
		t.Errorf("Tracked() = %v, want .env and docker-compose.yml", tracked)
	}
}

func TestWatcher_DeliversWriteBatch(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("KASPA_NETWORK=mainnet\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var batches [][]FileChange
	received := make(chan struct{}, 8)

	handler := func(changes []FileChange) {
		mu.Lock()
		batches = append(batches, changes)
		mu.Unlock()
		received <- struct{}{}
	}

	w, err := New(dir, []string{".env"}, handler, Options{DebounceWindow: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !w.IsWatching() {
		t.Fatal("IsWatching() = false after Start")
	}

	// Several writes inside one debounce window collapse into one batch.
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(envPath, []byte("KASPA_NETWORK=testnet-10\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change batch")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(batches) == 0 {
		t.Fatal("no batches delivered")
	}
	first := batches[0]
	if len(first) != 1 {
		t.Fatalf("batch = %v, want single deduped entry", first)
	}
	if first[0].Name != ".env" {
		t.Errorf("change name = %q, want .env", first[0].Name)
	}
}

func TestWatcher_IgnoresUntrackedFiles(t *testing.T) {
	dir := t.TempDir()

	received := make(chan []FileChange, 8)
	handler := func(changes []FileChange) { received <- changes }

	w, err := New(dir, []string{".env"}, handler, Options{DebounceWindow: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case changes := <-received:
		t.Fatalf("unexpected batch for untracked file: %v", changes)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	w, err := New(t.TempDir(), []string{".env"}, func([]FileChange) {}, DefaultOptions())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	w.Stop()
	w.Stop()

	if w.IsWatching() {
		t.Error("IsWatching() = true after Stop")
	}
}

func TestFileOp_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		op   FileOp
		want string
	}{
		{OpCreate, "created"},
		{OpWrite, "modified"},
		{OpRemove, "removed"},
		{OpRename, "renamed"},
		{FileOp(99), "changed"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("FileOp(%d).String() = %q, want %q", tt.op, got, tt.want)
		}
	}
}

func TestDedupe_KeepsLatestPerFile(t *testing.T) {
	t.Parallel()

	now := time.Now()
	changes := []FileChange{
		{Name: ".env", Op: OpWrite, Time: now},
		{Name: "docker-compose.yml", Op: OpWrite, Time: now},
		{Name: ".env", Op: OpRemove, Time: now.Add(time.Second)},
	}

	result := dedupe(changes)
	if len(result) != 2 {
		t.Fatalf("dedupe() len = %d, want 2", len(result))
	}
	if result[0].Name != ".env" || result[0].Op != OpRemove {
		t.Errorf("result[0] = %+v, want latest .env change (removed)", result[0])
	}
	if result[1].Name != "docker-compose.yml" {
		t.Errorf("result[1] = %+v, want docker-compose.yml", result[1])
	}
}
