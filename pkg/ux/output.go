// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux renders the kasdock CLI's terminal output.
//
// Every helper consults the active personality level before printing:
// rich mint-on-graphite styling on an interactive terminal, bare
// prefix-delimited text when stdout is a pipe or KASDOCK_PERSONALITY
// is "machine". In machine mode warnings and errors go to stderr so
// scripts can separate the streams.
package ux

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Kaspa brand palette: mint greens over dark graphite.
var (
	colorMint    = lipgloss.Color("#49EACB") // bright mint, titles and success
	colorMintDim = lipgloss.Color("#70C7BA") // desaturated mint, subtitles
	colorSlate   = lipgloss.Color("#3E5C57") // muted text and hints
	colorAmber   = lipgloss.Color("#F4D03F") // warnings
	colorRed     = lipgloss.Color("#E74C3C") // errors
)

// Styles holds the lipgloss styles the CLI commands compose their
// output from.
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(colorMint),
	Subtitle:  lipgloss.NewStyle().Foreground(colorMintDim),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(colorSlate),
	Success:   lipgloss.NewStyle().Foreground(colorMint),
	Warning:   lipgloss.NewStyle().Foreground(colorAmber),
	Error:     lipgloss.NewStyle().Foreground(colorRed),
	Highlight: lipgloss.NewStyle().Bold(true).Foreground(colorMint),
}

// Icon is a status glyph rendered next to service and probe lines.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// iconStyles maps status icons to their colors. Icons without an entry
// render unstyled.
var iconStyles = map[Icon]lipgloss.Style{
	IconSuccess: Styles.Success,
	IconWarning: Styles.Warning,
	IconError:   Styles.Error,
	IconPending: Styles.Muted,
}

// Render returns the icon colored for its status.
func (i Icon) Render() string {
	if style, ok := iconStyles[i]; ok {
		return style.Render(string(i))
	}
	return string(i)
}

// Title prints a section heading. Silent in machine mode, where a
// heading would only get in the way of grep.
func Title(text string) {
	if machineMode() {
		return
	}
	fmt.Println(Styles.Title.Render(text))
}

// Success prints a completed-action line ("OK: ..." in machine mode).
func Success(text string) {
	if machineMode() {
		fmt.Printf("OK: %s\n", text)
		return
	}
	statusLine(IconSuccess, Styles.Success, text)
}

// Warning prints a non-fatal problem. Machine mode writes it to stderr
// with a WARN: prefix.
func Warning(text string) {
	if machineMode() {
		fmt.Fprintf(os.Stderr, "WARN: %s\n", text)
		return
	}
	statusLine(IconWarning, Styles.Warning, text)
}

// Error prints a failure line. Machine mode writes it to stderr with an
// ERROR: prefix.
func Error(text string) {
	if machineMode() {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", text)
		return
	}
	statusLine(IconError, Styles.Error, text)
}

// statusLine renders an icon-led line. Minimal mode keeps the icon but
// drops the text coloring.
func statusLine(icon Icon, style lipgloss.Style, text string) {
	if CurrentLevel() == PersonalityMinimal {
		fmt.Printf("%s %s\n", icon.Render(), text)
		return
	}
	fmt.Printf("%s %s\n", icon.Render(), style.Render(text))
}

// Info prints a secondary line with a gutter mark, or bare text in
// machine mode.
func Info(text string) {
	if machineMode() {
		fmt.Println(text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints a dimmed hint. Machine mode drops hints entirely.
func Muted(text string) {
	if machineMode() {
		return
	}
	fmt.Println(Styles.Muted.Render(text))
}

// WarningBox frames a destructive-action warning so it stands out from
// the surrounding command output.
func WarningBox(title, content string) {
	if machineMode() {
		fmt.Fprintf(os.Stderr, "WARN %s: %s\n", title, content)
		return
	}
	frame := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorAmber).
		Padding(0, 1).
		Width(60)
	heading := Styles.Warning.Bold(true).Render(title)
	fmt.Println(frame.Render(heading + "\n" + content))
}

// ServiceStatus prints one line of `kasdock stack status`: icon,
// service name, and an optional detail such as the container state or
// published ports. Machine mode emits tab-separated fields.
func ServiceStatus(service string, status Icon, detail string) {
	switch CurrentLevel() {
	case PersonalityMachine:
		fmt.Printf("%s\t%s\t%s\n", status, service, detail)
	case PersonalityMinimal:
		fmt.Printf("%s %s\n", status.Render(), service)
	default:
		line := fmt.Sprintf("%s %s", status.Render(), service)
		if detail != "" {
			line += " " + Styles.Muted.Render("("+detail+")")
		}
		fmt.Println(line)
	}
}

// Summary prints the running/stopped/total footer under a status
// listing.
func Summary(running, stopped, total int) {
	if machineMode() {
		fmt.Printf("SUMMARY: running=%d stopped=%d total=%d\n", running, stopped, total)
		return
	}
	fmt.Printf("\n%s %s  %s %s  %s %s\n",
		Styles.Success.Render(fmt.Sprint(running)), Styles.Muted.Render("running"),
		Styles.Warning.Render(fmt.Sprint(stopped)), Styles.Muted.Render("stopped"),
		Styles.Bold.Render(fmt.Sprint(total)), Styles.Muted.Render("total"))
}
