// Package main provides the lanes-tui binary — Bubble Tea session monitor.
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/FilipeJesus/lanes-sub004/pkg/schema"
	"github.com/FilipeJesus/lanes-sub004/pkg/session"
	"github.com/FilipeJesus/lanes-sub004/pkg/tui"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: lanes-tui <session-id | session-dir | session.json>")
		os.Exit(1)
	}

	path := tui.SessionFilePath(os.Args[1], os.Getenv("LANES_SESSIONS_DIR"))
	f, err := session.LoadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	wf, errs := schema.ValidateFile(f.WorkflowPath)
	if schema.HasErrors(errs) {
		fmt.Fprintf(os.Stderr, "Workflow %s failed validation:\n", f.WorkflowPath)
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  [%s] %s\n", e.Phase, e.Message)
		}
		os.Exit(1)
	}

	p := tea.NewProgram(tui.NewModel(path, wf), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
