package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/FilipeJesus/lanes-sub004/pkg/render"
	"github.com/FilipeJesus/lanes-sub004/pkg/schema"
	"github.com/FilipeJesus/lanes-sub004/pkg/session"
	"github.com/FilipeJesus/lanes-sub004/pkg/workflow"
)

// pollInterval is how often the session file is re-read.
const pollInterval = 500 * time.Millisecond

// --- Tea messages ---

type tickMsg time.Time

type sessionMsg struct {
	file *session.File
	err  error
}

// Model is the top-level Bubble Tea model for the session monitor.
type Model struct {
	sessionPath string
	wf          *schema.Workflow

	file    *session.File
	loadErr string

	machine *workflow.Machine // rebuilt on each poll for status rendering

	spinner  spinner.Model
	viewport viewport.Model
	ready    bool

	width  int
	height int
}

// NewModel creates a monitor for the session.json at sessionPath, over
// an already-validated workflow.
func NewModel(sessionPath string, wf *schema.Workflow) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorYellow)
	return Model{sessionPath: sessionPath, wf: wf, spinner: sp}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadSession, tick())
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) loadSession() tea.Msg {
	f, err := session.LoadFile(m.sessionPath)
	return sessionMsg{file: f, err: err}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			m.viewport.HalfViewUp()
		case "down", "j":
			m.viewport.HalfViewDown()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := m.height - 12
		if vpHeight < 3 {
			vpHeight = 3
		}
		if !m.ready {
			m.viewport = viewport.New(m.width-4, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = m.width - 4
			m.viewport.Height = vpHeight
		}
		m.refreshViewport()
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.loadSession, tick())

	case sessionMsg:
		if msg.err != nil {
			m.loadErr = msg.err.Error()
			return m, nil
		}
		m.loadErr = ""
		m.file = msg.file
		m.machine = workflow.Restore(m.wf, msg.file.State)
		m.machine.Render = render.Instructions
		m.refreshViewport()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) refreshViewport() {
	if !m.ready || m.machine == nil {
		return
	}
	view := m.machine.Status()
	m.viewport.SetContent(renderMarkdown(view.Instructions))
}

func (m Model) View() string {
	if m.loadErr != "" && m.file == nil {
		return footerStyle.Render(fmt.Sprintf("waiting for session file: %s", m.loadErr))
	}
	if m.file == nil || m.machine == nil {
		return footerStyle.Render("loading…")
	}

	view := m.machine.Status()
	var b strings.Builder

	// Header: workflow name, session id, status badge.
	badge := statusBadgeStyle.Render(string(view.Status))
	switch view.Status {
	case workflow.StatusComplete:
		badge = statusBadgeDone.Render(string(view.Status))
	case workflow.StatusFailed:
		badge = statusBadgeFailed.Render(string(view.Status))
	}
	title := fmt.Sprintf("%s — %s", m.wf.Meta.Name, m.file.SessionID)
	spin := ""
	if view.Status == workflow.StatusRunning {
		spin = " " + m.spinner.View()
	}
	b.WriteString(headerStyle.Render(truncate(title, m.width-14)) + " " + badge + spin + "\n\n")

	// Step list with cursor glyphs.
	currentIdx := m.wf.StepIndex(view.StepID)
	for i, step := range m.wf.Steps {
		glyph, style := GlyphPending, stepDim
		switch {
		case view.Status == workflow.StatusFailed && i == currentIdx:
			glyph, style = GlyphFailed, stepNormal
		case view.Status == workflow.StatusComplete || i < currentIdx:
			glyph, style = GlyphDone, stepDone
		case i == currentIdx:
			glyph, style = GlyphCurrent, stepCurrent
		}
		line := fmt.Sprintf(" %s %s [%s]", glyph, step.ID, step.Kind)
		if i == currentIdx && view.Progress != "" {
			line += " — " + view.Progress
		}
		b.WriteString(style.Render(truncate(line, m.width-2)) + "\n")
	}
	b.WriteString("\n")

	// Instructions panel.
	if m.ready {
		b.WriteString(panelTitle.Render("Instructions") + "\n")
		b.WriteString(panelBorder.Width(m.width - 2).Render(m.viewport.View()) + "\n")
	}

	// Footer: artefacts count, pending context action, keys.
	footer := fmt.Sprintf("%d artefact(s)", len(view.Artefacts))
	if view.ContextAction != "" {
		footer += fmt.Sprintf(" · context action pending: %s", view.ContextAction)
	}
	footer += " · q quit · ↑/↓ scroll"
	b.WriteString(footerStyle.Render(truncate(footer, m.width-2)))

	return b.String()
}

func truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

// SessionFilePath resolves a session argument (id or directory) to the
// session.json path, using root as the session store directory.
func SessionFilePath(arg, root string) string {
	if strings.HasSuffix(arg, ".json") {
		return arg
	}
	if root == "" {
		root = session.DefaultRoot
	}
	if filepath.Base(arg) != arg {
		// Looks like a path to a session directory.
		return filepath.Join(arg, "session.json")
	}
	return filepath.Join(root, arg, "session.json")
}
