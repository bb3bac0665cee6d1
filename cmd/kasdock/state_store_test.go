// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"testing"
	"time"
)

// =============================================================================
// Test Helpers
// =============================================================================

// newMemoryStateStore opens an in-memory store and closes it with the test.
func newMemoryStateStore(t *testing.T) *BadgerStateStore {
	t.Helper()
	store, err := NewBadgerStateStore(StateStoreConfig{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadgerStateStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// =============================================================================
// Constructor Tests
// =============================================================================

// TestNewBadgerStateStore_RequiresDir verifies the persistent-mode guard.
func TestNewBadgerStateStore_RequiresDir(t *testing.T) {
	t.Parallel()

	if _, err := NewBadgerStateStore(StateStoreConfig{}); err == nil {
		t.Error("expected error for missing directory")
	}
}

// TestNewBadgerStateStore_Persistent verifies disk-backed stores survive
// reopening.
func TestNewBadgerStateStore_Persistent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewBadgerStateStore(StateStoreConfig{Dir: dir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	state := EmptyInstallationState()
	state.InstalledProfiles = []string{"core"}
	state.Network = "mainnet"
	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewBadgerStateStore(StateStoreConfig{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	loaded, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.HasProfile("core") || loaded.Network != "mainnet" {
		t.Errorf("expected persisted state, got: %+v", loaded)
	}
}

// =============================================================================
// State Tests
// =============================================================================

// TestStateStore_LoadEmpty verifies a fresh store returns empty state.
func TestStateStore_LoadEmpty(t *testing.T) {
	t.Parallel()

	store := newMemoryStateStore(t)

	state, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if state == nil || len(state.InstalledProfiles) != 0 || len(state.Configuration) != 0 {
		t.Errorf("expected empty state, got: %+v", state)
	}
}

// TestStateStore_SaveLoadRoundTrip verifies state round-trips intact.
func TestStateStore_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store := newMemoryStateStore(t)
	ctx := context.Background()

	state := EmptyInstallationState()
	state.InstalledProfiles = []string{"core", "indexer-services"}
	state.Configuration = map[string]string{"KASPA_NETWORK": "mainnet"}
	state.Network = "mainnet"

	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.InstalledProfiles) != 2 || loaded.Configuration["KASPA_NETWORK"] != "mainnet" {
		t.Errorf("unexpected state: %+v", loaded)
	}
	if loaded.LastModified.IsZero() {
		t.Error("expected LastModified stamped on save")
	}
	if loaded.InstalledAt.IsZero() {
		t.Error("expected InstalledAt stamped on first install")
	}
}

// TestStateStore_SaveNil verifies the nil guard.
func TestStateStore_SaveNil(t *testing.T) {
	t.Parallel()

	store := newMemoryStateStore(t)

	if err := store.Save(context.Background(), nil); err == nil {
		t.Error("expected error for nil state")
	}
}

// TestStateStore_LoadReturnsSnapshot verifies mutations don't leak back.
func TestStateStore_LoadReturnsSnapshot(t *testing.T) {
	t.Parallel()

	store := newMemoryStateStore(t)
	ctx := context.Background()

	state := EmptyInstallationState()
	state.InstalledProfiles = []string{"core"}
	if err := store.Save(ctx, state); err != nil {
		t.Fatal(err)
	}

	first, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	first.InstalledProfiles[0] = "mutated"
	first.Configuration["INJECTED"] = "x"

	second, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if second.InstalledProfiles[0] != "core" || len(second.Configuration) != 0 {
		t.Errorf("mutation leaked into stored state: %+v", second)
	}
}

// TestStateStore_Clear verifies state removal keeps events.
func TestStateStore_Clear(t *testing.T) {
	t.Parallel()

	store := newMemoryStateStore(t)
	ctx := context.Background()

	state := EmptyInstallationState()
	state.InstalledProfiles = []string{"core"}
	if err := store.Save(ctx, state); err != nil {
		t.Fatal(err)
	}
	if err := store.AppendEvent(ctx, StateEvent{Type: EventInstall, Profiles: []string{"core"}}); err != nil {
		t.Fatal(err)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.InstalledProfiles) != 0 {
		t.Errorf("expected cleared state, got: %+v", loaded)
	}

	events, err := store.ListEvents(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Errorf("expected event log to survive clear, got: %+v", events)
	}

	// Clearing an already-clear store is a no-op.
	if err := store.Clear(ctx); err != nil {
		t.Errorf("expected idempotent clear, got: %v", err)
	}
}

// =============================================================================
// Event Log Tests
// =============================================================================

// TestStateStore_Events verifies append, ordering, and limits.
func TestStateStore_Events(t *testing.T) {
	t.Parallel()

	store := newMemoryStateStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	types := []EventType{EventInstall, EventConfigChange, EventRemove}
	for i, typ := range types {
		event := StateEvent{
			Type:      typ,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Profiles:  []string{"core"},
		}
		if err := store.AppendEvent(ctx, event); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	events, err := store.ListEvents(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got: %d", len(events))
	}
	// Newest first.
	if events[0].Type != EventRemove || events[2].Type != EventInstall {
		t.Errorf("expected newest-first ordering, got: %+v", events)
	}
	for _, e := range events {
		if e.ID == "" {
			t.Errorf("expected generated event ID, got: %+v", e)
		}
	}

	limited, err := store.ListEvents(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 || limited[0].Type != EventRemove {
		t.Errorf("expected 2 newest events, got: %+v", limited)
	}
}

// TestStateStore_AppendEvent_FillsDefaults verifies ID and timestamp
// generation.
func TestStateStore_AppendEvent_FillsDefaults(t *testing.T) {
	t.Parallel()

	store := newMemoryStateStore(t)
	ctx := context.Background()

	if err := store.AppendEvent(ctx, StateEvent{Type: EventDrift, Message: "env changed on disk"}); err != nil {
		t.Fatal(err)
	}

	events, err := store.ListEvents(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got: %d", len(events))
	}
	if events[0].ID == "" || events[0].Timestamp.IsZero() {
		t.Errorf("expected filled defaults, got: %+v", events[0])
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

// TestStateStore_ClosedOperations verifies ErrStoreClosed after Close.
func TestStateStore_ClosedOperations(t *testing.T) {
	t.Parallel()

	store, err := NewBadgerStateStore(StateStoreConfig{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	// Double close is safe.
	if err := store.Close(); err != nil {
		t.Errorf("expected idempotent close, got: %v", err)
	}

	ctx := context.Background()
	if _, err := store.Load(ctx); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed from Load, got: %v", err)
	}
	if err := store.Save(ctx, EmptyInstallationState()); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed from Save, got: %v", err)
	}
	if err := store.AppendEvent(ctx, StateEvent{Type: EventStop}); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed from AppendEvent, got: %v", err)
	}
}

// TestStateStore_CancelledContext verifies context propagation.
func TestStateStore_CancelledContext(t *testing.T) {
	t.Parallel()

	store := newMemoryStateStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Load(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
}

// =============================================================================
// InstallationState Tests
// =============================================================================

// TestInstallationState_Clone verifies deep copy semantics.
func TestInstallationState_Clone(t *testing.T) {
	t.Parallel()

	original := &InstallationState{
		InstalledProfiles: []string{"core"},
		Configuration:     map[string]string{"KASPA_NETWORK": "mainnet"},
		Network:           "mainnet",
	}

	clone := original.Clone()
	clone.InstalledProfiles[0] = "mutated"
	clone.Configuration["KASPA_NETWORK"] = "testnet-10"

	if original.InstalledProfiles[0] != "core" {
		t.Error("clone shares profile slice with original")
	}
	if original.Configuration["KASPA_NETWORK"] != "mainnet" {
		t.Error("clone shares configuration map with original")
	}

	// Nil receiver yields an empty state.
	var nilState *InstallationState
	if got := nilState.Clone(); got == nil || len(got.InstalledProfiles) != 0 {
		t.Errorf("expected empty state from nil clone, got: %+v", got)
	}
}

// TestInstallationState_HasProfile verifies lookup including nil receiver.
func TestInstallationState_HasProfile(t *testing.T) {
	t.Parallel()

	state := &InstallationState{InstalledProfiles: []string{"core", "monitoring"}}

	if !state.HasProfile("core") {
		t.Error("expected core installed")
	}
	if state.HasProfile("mining") {
		t.Error("expected mining not installed")
	}

	var nilState *InstallationState
	if nilState.HasProfile("core") {
		t.Error("nil state must report nothing installed")
	}
}

// =============================================================================
// Mock Tests
// =============================================================================

// TestMockStateStore verifies default behavior and call recording.
func TestMockStateStore(t *testing.T) {
	t.Parallel()

	mock := &MockStateStore{State: EmptyInstallationState()}
	ctx := context.Background()

	state := EmptyInstallationState()
	state.InstalledProfiles = []string{"core"}
	if err := mock.Save(ctx, state); err != nil {
		t.Fatal(err)
	}
	if mock.SaveCalls != 1 {
		t.Errorf("expected 1 save call, got: %d", mock.SaveCalls)
	}

	loaded, err := mock.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.HasProfile("core") {
		t.Errorf("expected saved profile visible, got: %+v", loaded)
	}

	for i := range 3 {
		if err := mock.AppendEvent(ctx, StateEvent{Type: EventInstall, Message: string(rune('a' + i))}); err != nil {
			t.Fatal(err)
		}
	}
	events, err := mock.ListEvents(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].Message != "c" {
		t.Errorf("expected 2 newest events, got: %+v", events)
	}
}
