// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file implements the live terminal views: the install progress
// display and the status watcher. Both are bubbletea models; plain
// line-by-line output remains the fallback for non-interactive runs.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kasdock/kasdock/pkg/ux"
)

// installLogTail is how many narration lines the install view keeps on
// screen.
const installLogTail = 12

// =============================================================================
// MESSAGES
// =============================================================================

// installLineMsg is one narration line from the stack manager.
type installLineMsg string

// installDoneMsg signals the install goroutine returned.
type installDoneMsg struct {
	err error
}

// statusTickMsg schedules the next status refresh.
type statusTickMsg time.Time

// statusLoadedMsg carries a fetched stack status.
type statusLoadedMsg struct {
	status *StackStatus
	err    error
}

// =============================================================================
// INSTALL PROGRESS
// =============================================================================

// installModel renders a spinner over the stack manager's narration while
// Install runs in a background goroutine.
type installModel struct {
	spinner spinner.Model
	lines   []string
	started time.Time

	cancel     context.CancelFunc
	cancelling bool
	done       bool
	err        error
}

func newInstallModel(cancel context.CancelFunc) installModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = ux.Styles.Subtitle
	return installModel{
		spinner: s,
		started: time.Now(),
		cancel:  cancel,
	}
}

// Init implements tea.Model.
func (m installModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m installModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			// The install goroutine owns the exit: cancel and keep
			// spinning until it reports back.
			if !m.cancelling {
				m.cancelling = true
				m.cancel()
			}
		}
		return m, nil

	case installLineMsg:
		m.lines = append(m.lines, string(msg))
		if len(m.lines) > installLogTail {
			m.lines = m.lines[len(m.lines)-installLogTail:]
		}
		return m, nil

	case installDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m installModel) View() string {
	var b strings.Builder

	elapsed := time.Since(m.started).Round(time.Second)
	switch {
	case m.done && m.err != nil:
		b.WriteString(fmt.Sprintf("%s %s\n", ux.IconError.Render(),
			ux.Styles.Error.Render("Install failed after "+elapsed.String())))
	case m.done:
		b.WriteString(fmt.Sprintf("%s %s\n", ux.IconSuccess.Render(),
			ux.Styles.Success.Render("Installed in "+elapsed.String())))
	case m.cancelling:
		b.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(),
			ux.Styles.Warning.Render("Cancelling... waiting for services to settle")))
	default:
		b.WriteString(fmt.Sprintf("%s %s %s\n", m.spinner.View(),
			ux.Styles.Title.Render("Installing"),
			ux.Styles.Muted.Render(elapsed.String())))
	}

	for _, line := range m.lines {
		b.WriteString(ux.Styles.Muted.Render("  "+line) + "\n")
	}

	if !m.done {
		b.WriteString(ux.Styles.Muted.Render("\n  ctrl+c to cancel\n"))
	}
	return b.String()
}

// runInstallWithProgress runs Install in a goroutine and renders its
// narration live. Returns Install's error.
func runInstallWithProgress(ctx context.Context, mgr StackManager, opts InstallOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Redirect the manager's narration into the view. Mocks and future
	// implementations without SetOutput fall back to their own writer.
	pr, pw := io.Pipe()
	settable, redirected := mgr.(interface{ SetOutput(w io.Writer) })
	if redirected {
		settable.SetOutput(pw)
		defer settable.SetOutput(os.Stdout)
	}

	p := tea.NewProgram(newInstallModel(cancel))

	go func() {
		scanner := bufio.NewScanner(pr)
		for scanner.Scan() {
			p.Send(installLineMsg(scanner.Text()))
		}
	}()

	go func() {
		err := mgr.Install(ctx, opts)
		pw.Close()
		p.Send(installDoneMsg{err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return err
	}
	result, ok := final.(installModel)
	if !ok {
		return fmt.Errorf("unexpected model type from install view: %T", final)
	}
	return result.err
}

// =============================================================================
// STATUS WATCHER
// =============================================================================

// watchModel polls the stack status on an interval and renders it
// full-screen.
type watchModel struct {
	ctx      context.Context
	mgr      StackManager
	interval time.Duration

	spinner    spinner.Model
	status     *StackStatus
	err        error
	refreshing bool
	refreshed  time.Time
	quitting   bool
}

func newWatchModel(ctx context.Context, mgr StackManager, interval time.Duration) watchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = ux.Styles.Subtitle
	return watchModel{
		ctx:      ctx,
		mgr:      mgr,
		interval: interval,
		spinner:  s,
	}
}

// fetchStatus loads the stack status off the event loop.
func (m watchModel) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		status, err := m.mgr.Status(m.ctx)
		return statusLoadedMsg{status: status, err: err}
	}
}

// scheduleTick arms the next refresh.
func (m watchModel) scheduleTick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return statusTickMsg(t)
	})
}

// Init implements tea.Model.
func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetchStatus())
}

// Update implements tea.Model.
func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			if !m.refreshing {
				m.refreshing = true
				return m, m.fetchStatus()
			}
		}
		return m, nil

	case statusTickMsg:
		if m.refreshing {
			// A fetch is still in flight; try again next interval.
			return m, m.scheduleTick()
		}
		m.refreshing = true
		return m, m.fetchStatus()

	case statusLoadedMsg:
		m.refreshing = false
		m.refreshed = time.Now()
		m.status = msg.status
		m.err = msg.err
		return m, m.scheduleTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m watchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	switch {
	case m.err != nil:
		b.WriteString(fmt.Sprintf("%s %s\n\n", ux.IconError.Render(),
			ux.Styles.Error.Render(fmt.Sprintf("Status failed: %v", m.err))))
	case m.status == nil:
		b.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(),
			ux.Styles.Muted.Render("Loading stack status...")))
	default:
		b.WriteString(renderWatchStatus(m.status))
	}

	footer := fmt.Sprintf("refreshes every %s", m.interval)
	if m.refreshing {
		footer = "refreshing " + m.spinner.View()
	} else if !m.refreshed.IsZero() {
		footer = fmt.Sprintf("refreshed %s ago, every %s",
			time.Since(m.refreshed).Round(time.Second), m.interval)
	}
	b.WriteString(ux.Styles.Muted.Render(fmt.Sprintf("\n  %s   q quit   r refresh\n", footer)))

	return b.String()
}

// renderWatchStatus builds the full-screen status body. Mirrors the plain
// printStackStatus layout.
func renderWatchStatus(status *StackStatus) string {
	var b strings.Builder

	b.WriteString(ux.Styles.Title.Render(fmt.Sprintf("Kaspa stack: %s", status.State)) + "\n")
	if len(status.InstalledProfiles) > 0 {
		b.WriteString(ux.Styles.Muted.Render(
			fmt.Sprintf("Profiles: %s   Network: %s",
				strings.Join(status.InstalledProfiles, ", "), status.Network)) + "\n")
	}
	b.WriteString("\n")

	for _, svc := range status.Services {
		icon := ux.IconPending
		detail := svc.State
		switch {
		case svc.State == "running" && svc.Healthy != nil && !*svc.Healthy:
			icon = ux.IconWarning
			detail = "running (unhealthy)"
		case svc.State == "running":
			icon = ux.IconSuccess
			if len(svc.Ports) > 0 {
				detail = fmt.Sprintf("running  %s", strings.Join(svc.Ports, " "))
			}
		}
		b.WriteString(fmt.Sprintf("%s %s %s\n", icon.Render(), svc.Name,
			ux.Styles.Muted.Render("("+detail+")")))
	}

	b.WriteString(fmt.Sprintf("\n%s %s  %s %s  %s %s\n",
		ux.Styles.Success.Render(fmt.Sprintf("%d", status.RunningCount)),
		ux.Styles.Muted.Render("running"),
		ux.Styles.Warning.Render(fmt.Sprintf("%d", status.StoppedCount)),
		ux.Styles.Muted.Render("stopped"),
		ux.Styles.Bold.Render(fmt.Sprintf("%d", len(status.Services))),
		ux.Styles.Muted.Render("total")))

	return b.String()
}

// watchStackStatus renders the stack status live until the user quits.
func watchStackStatus(ctx context.Context, mgr StackManager, intervalSeconds int) error {
	if intervalSeconds < 1 {
		intervalSeconds = 1
	}
	interval := time.Duration(intervalSeconds) * time.Second

	p := tea.NewProgram(newWatchModel(ctx, mgr, interval), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
