// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// =============================================================================
// Error Definitions
// =============================================================================

var (
	// ErrStateCorrupt is returned when stored state cannot be decoded.
	ErrStateCorrupt = errors.New("installation state is corrupt")

	// ErrStoreClosed is returned for operations on a closed store.
	ErrStoreClosed = errors.New("state store is closed")
)

// Badger key layout. Events are keyed by zero-padded unix nanos so
// lexicographic order equals chronological order.
const (
	stateKey       = "state/current"
	eventKeyPrefix = "events/"
)

// =============================================================================
// State Types
// =============================================================================

// InstallationState is the persisted record of what is installed.
//
// # Description
//
// The single source of truth for which profiles the user has installed
// and the configuration that was applied. The validator reads snapshots
// of this state; the stack manager writes it after every mutation.
type InstallationState struct {
	// InstalledProfiles are the profile ids currently installed.
	InstalledProfiles []string `json:"installed_profiles"`

	// Configuration is the env configuration applied at install time.
	// Sensitive values are stored as-is; the store directory is 0700.
	Configuration map[string]string `json:"configuration"`

	// Network is the Kaspa network the stack is configured for.
	Network string `json:"network"`

	// InstalledAt is when the first profile was installed.
	InstalledAt time.Time `json:"installed_at"`

	// LastModified is when the state last changed.
	LastModified time.Time `json:"last_modified"`
}

// EmptyInstallationState returns the state of a host with nothing installed.
func EmptyInstallationState() *InstallationState {
	return &InstallationState{
		InstalledProfiles: []string{},
		Configuration:     map[string]string{},
	}
}

// Clone returns a deep copy so callers can't mutate stored snapshots.
func (s *InstallationState) Clone() *InstallationState {
	if s == nil {
		return EmptyInstallationState()
	}
	out := &InstallationState{
		InstalledProfiles: make([]string, len(s.InstalledProfiles)),
		Configuration:     make(map[string]string, len(s.Configuration)),
		Network:           s.Network,
		InstalledAt:       s.InstalledAt,
		LastModified:      s.LastModified,
	}
	copy(out.InstalledProfiles, s.InstalledProfiles)
	for k, v := range s.Configuration {
		out.Configuration[k] = v
	}
	return out
}

// HasProfile reports whether a profile id is recorded as installed.
func (s *InstallationState) HasProfile(id string) bool {
	if s == nil {
		return false
	}
	return containsString(s.InstalledProfiles, id)
}

// EventType classifies lifecycle events in the append-only log.
type EventType string

const (
	EventInstall      EventType = "install"
	EventRemove       EventType = "remove"
	EventStop         EventType = "stop"
	EventDestroy      EventType = "destroy"
	EventConfigChange EventType = "config_change"
	EventDrift        EventType = "drift"
	EventCheckFailed  EventType = "check_failed"
	EventFailure      EventType = "failure"
)

// StateEvent is one entry in the append-only lifecycle log.
type StateEvent struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// Type classifies the event.
	Type EventType `json:"type"`

	// Profiles are the profile ids the event concerns.
	Profiles []string `json:"profiles,omitempty"`

	// Message is a human-readable description.
	Message string `json:"message,omitempty"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}

// =============================================================================
// Interface Definition
// =============================================================================

// StateStore persists installation state and the lifecycle event log.
//
// # Description
//
// Backed by an embedded BadgerDB under the kasdock home directory.
// Load returns snapshots: mutating a returned state never affects the
// stored copy until Save is called.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type StateStore interface {
	// Load returns the current installation state. A store with no
	// saved state returns an empty state, not an error.
	Load(ctx context.Context) (*InstallationState, error)

	// Save persists the installation state, stamping LastModified.
	Save(ctx context.Context, state *InstallationState) error

	// AppendEvent appends to the lifecycle event log. ID and Timestamp
	// are filled in when empty.
	AppendEvent(ctx context.Context, event StateEvent) error

	// ListEvents returns up to limit events, newest first.
	// limit <= 0 returns all events.
	ListEvents(ctx context.Context, limit int) ([]StateEvent, error)

	// Clear removes the installation state but keeps the event log.
	Clear(ctx context.Context) error

	// Close releases the underlying database.
	Close() error
}

// =============================================================================
// Badger Implementation
// =============================================================================

// StateStoreConfig configures the badger-backed store.
type StateStoreConfig struct {
	// Dir is the directory for database files.
	// Required unless InMemory is true.
	Dir string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	// Default: true.
	SyncWrites bool

	// Logger receives badger's internal log output.
	// If nil, badger logging is disabled.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Default: 5 minutes. Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum discardable ratio before GC runs.
	// Default: 0.5.
	GCDiscardRatio float64
}

// DefaultStateStoreConfig returns production defaults for the given dir.
func DefaultStateStoreConfig(dir string) StateStoreConfig {
	return StateStoreConfig{
		Dir:            dir,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// badgerSlogAdapter adapts slog.Logger to badger's Logger interface.
type badgerSlogAdapter struct {
	logger *slog.Logger
}

func (l *badgerSlogAdapter) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerSlogAdapter) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerSlogAdapter) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerSlogAdapter) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStateStore implements StateStore on an embedded BadgerDB.
//
// # Description
//
// Durable local store for installation state and lifecycle events.
// Runs a periodic value log GC goroutine when persistent.
//
// # Thread Safety
//
// Safe for concurrent use; badger transactions provide isolation.
type BadgerStateStore struct {
	db *badger.DB

	gcStop chan struct{}
	gcDone chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewBadgerStateStore opens the store with the given configuration.
//
// # Inputs
//
//   - cfg: Store configuration (Dir required unless InMemory)
//
// # Outputs
//
//   - *BadgerStateStore: Opened store. Caller must Close.
//   - error: Non-nil if the database cannot be opened
func NewBadgerStateStore(cfg StateStoreConfig) (*BadgerStateStore, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("state store directory is required")
	}
	if cfg.GCDiscardRatio <= 0 || cfg.GCDiscardRatio > 1 {
		cfg.GCDiscardRatio = 0.5
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		// 0700: state holds the applied configuration including secrets.
		if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
			return nil, fmt.Errorf("create state directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerSlogAdapter{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	store := &BadgerStateStore{db: db}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		store.gcStop = make(chan struct{})
		store.gcDone = make(chan struct{})
		go store.runGC(cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
	}

	return store, nil
}

// Load returns the current installation state.
func (s *BadgerStateStore) Load(ctx context.Context) (*InstallationState, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}

	state := EmptyInstallationState()

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(stateKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, state); err != nil {
				return fmt.Errorf("%w: %v", ErrStateCorrupt, err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load installation state: %w", err)
	}

	if state.InstalledProfiles == nil {
		state.InstalledProfiles = []string{}
	}
	if state.Configuration == nil {
		state.Configuration = map[string]string{}
	}

	return state, nil
}

// Save persists the installation state.
func (s *BadgerStateStore) Save(ctx context.Context, state *InstallationState) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	if state == nil {
		return errors.New("state must not be nil")
	}

	saved := state.Clone()
	saved.LastModified = time.Now().UTC()
	if saved.InstalledAt.IsZero() && len(saved.InstalledProfiles) > 0 {
		saved.InstalledAt = saved.LastModified
	}

	payload, err := json.Marshal(saved)
	if err != nil {
		return fmt.Errorf("encode installation state: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(stateKey), payload)
	})
	if err != nil {
		return fmt.Errorf("save installation state: %w", err)
	}
	return nil
}

// AppendEvent appends to the lifecycle event log.
func (s *BadgerStateStore) AppendEvent(ctx context.Context, event StateEvent) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	key := fmt.Sprintf("%s%020d", eventKeyPrefix, event.Timestamp.UnixNano())

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), payload)
	})
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListEvents returns up to limit events, newest first.
func (s *BadgerStateStore) ListEvents(ctx context.Context, limit int) ([]StateEvent, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}

	events := []StateEvent{}
	prefix := []byte(eventKeyPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts past the last event key.
		seekKey := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(events) >= limit {
				break
			}
			var event StateEvent
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &event)
			})
			if err != nil {
				return fmt.Errorf("%w: %v", ErrStateCorrupt, err)
			}
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	return events, nil
}

// Clear removes the installation state but keeps the event log.
func (s *BadgerStateStore) Clear(ctx context.Context) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(stateKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("clear installation state: %w", err)
	}
	return nil
}

// Close releases the underlying database. Safe to call once.
func (s *BadgerStateStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.gcStop != nil {
		close(s.gcStop)
		<-s.gcDone
	}
	return s.db.Close()
}

func (s *BadgerStateStore) checkOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *BadgerStateStore) runGC(interval time.Duration, ratio float64, logger *slog.Logger) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && logger != nil {
				logger.Warn("state store GC error", slog.String("error", err.Error()))
			}
		}
	}
}

// =============================================================================
// Mock Implementation
// =============================================================================

// MockStateStore is an in-memory test double for StateStore.
type MockStateStore struct {
	LoadFunc        func(context.Context) (*InstallationState, error)
	SaveFunc        func(context.Context, *InstallationState) error
	AppendEventFunc func(context.Context, StateEvent) error
	ListEventsFunc  func(context.Context, int) ([]StateEvent, error)
	ClearFunc       func(context.Context) error

	State  *InstallationState
	Events []StateEvent

	SaveCalls  int
	ClearCalls int
	mu         sync.Mutex
}

// Load implements StateStore.
func (m *MockStateStore) Load(ctx context.Context) (*InstallationState, error) {
	if m.LoadFunc != nil {
		return m.LoadFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.State.Clone(), nil
}

// Save implements StateStore.
func (m *MockStateStore) Save(ctx context.Context, state *InstallationState) error {
	m.mu.Lock()
	m.SaveCalls++
	m.mu.Unlock()

	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, state)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.State = state.Clone()
	return nil
}

// AppendEvent implements StateStore.
func (m *MockStateStore) AppendEvent(ctx context.Context, event StateEvent) error {
	if m.AppendEventFunc != nil {
		return m.AppendEventFunc(ctx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
	return nil
}

// ListEvents implements StateStore.
func (m *MockStateStore) ListEvents(ctx context.Context, limit int) ([]StateEvent, error) {
	if m.ListEventsFunc != nil {
		return m.ListEventsFunc(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StateEvent, 0, len(m.Events))
	for i := len(m.Events) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, m.Events[i])
	}
	return out, nil
}

// Clear implements StateStore.
func (m *MockStateStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.ClearCalls++
	m.mu.Unlock()

	if m.ClearFunc != nil {
		return m.ClearFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.State = nil
	return nil
}

// Close implements StateStore.
func (m *MockStateStore) Close() error { return nil }

// =============================================================================
// Compile-Time Checks
// =============================================================================

var (
	_ StateStore = (*BadgerStateStore)(nil)
	_ StateStore = (*MockStateStore)(nil)
)
