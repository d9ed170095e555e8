// Package tui implements a read-only terminal monitor for a running
// workflow session. It polls the session file on disk rather than
// holding the live machine, so it can watch a session driven by an
// agent over MCP.
package tui

import "github.com/charmbracelet/lipgloss"

// Step status glyphs.
const (
	GlyphPending = "○"
	GlyphCurrent = "▸"
	GlyphDone    = "✓"
	GlyphFailed  = "✗"
)

// Palette adapts to terminal capabilities via lipgloss.
var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")
	colorWhite  = lipgloss.Color("255")
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorCyan).
	Padding(0, 1)

var statusBadgeStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("0")).
	Background(colorYellow).
	Padding(0, 1)

var statusBadgeDone = statusBadgeStyle.Background(colorGreen)
var statusBadgeFailed = statusBadgeStyle.Background(colorRed)

var (
	stepNormal = lipgloss.NewStyle().
			Foreground(colorWhite)

	stepCurrent = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	stepDone = lipgloss.NewStyle().
			Foreground(colorGreen)

	stepDim = lipgloss.NewStyle().
		Faint(true)
)

var panelBorder = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorDim)

var panelTitle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorCyan).
	Padding(0, 1)

var footerStyle = lipgloss.NewStyle().
	Faint(true).
	Padding(0, 1)
