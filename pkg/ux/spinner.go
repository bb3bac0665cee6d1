// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"os"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerInterval = 100 * time.Millisecond

// Spinner animates a one-line wait indicator on stderr while a slow
// operation runs, e.g. the external dependency probes of
// `kasdock check`. It draws nothing when progress display is off, so
// callers never need to guard it. A stopped spinner can be started
// again.
type Spinner struct {
	mu      sync.Mutex
	message string
	stop    chan struct{}
	done    chan struct{}
}

// NewSpinner returns a spinner with the given initial message.
func NewSpinner(message string) *Spinner {
	return &Spinner{message: message}
}

// Start begins animating. No-op if already running or if progress
// display is disabled.
func (s *Spinner) Start() {
	if !ShouldShowProgress() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.spin(s.stop, s.done)
}

// UpdateMessage swaps the text shown next to the spinner.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// Stop halts the animation and clears the spinner line. Safe to call
// when the spinner never started.
func (s *Spinner) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// spin owns the stderr line until stop closes. Frames go to stderr so
// redirected stdout stays clean.
func (s *Spinner) spin(stop, done chan struct{}) {
	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()
	frame := 0
	for {
		select {
		case <-stop:
			fmt.Fprint(os.Stderr, "\r\033[K")
			close(done)
			return
		case <-ticker.C:
			s.mu.Lock()
			message := s.message
			s.mu.Unlock()
			glyph := Styles.Highlight.Render(spinnerFrames[frame%len(spinnerFrames)])
			fmt.Fprintf(os.Stderr, "\r\033[K%s %s", glyph, message)
			frame++
		}
	}
}
