// Package driver implements the interactive REPL for driving a workflow
// session by hand — the same operations an AI agent calls over MCP,
// typed at a prompt.
package driver

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/FilipeJesus/lanes-sub004/pkg/session"
	"github.com/FilipeJesus/lanes-sub004/pkg/workflow"
)

// Driver steps a single session through its workflow interactively.
type Driver struct {
	sess   *session.Session
	output io.Writer
	rl     *readline.Instance
}

// New creates a driver over an existing session.
func New(sess *session.Session) *Driver {
	return &Driver{sess: sess, output: os.Stdout}
}

// Run starts the REPL loop. Start must already have been called on the
// session's machine.
func (d *Driver) Run() error {
	commands := []string{"next", "status", "tasks", "artefacts", "context", "fail", "dump", "help", "quit"}

	var completer = readline.NewPrefixCompleter()
	for _, cmd := range commands {
		completer.Children = append(completer.Children, readline.PcItem(cmd))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          d.buildPrompt(),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	d.rl = rl
	defer rl.Close()

	wf := d.sess.Workflow
	fmt.Fprintf(d.output, "lanes driver — %s, %d steps, session %s\n", wf.Meta.Name, len(wf.Steps), d.sess.ID)
	fmt.Fprintf(d.output, "Type 'help' for available commands, 'next' to advance.\n\n")

	for {
		rl.SetPrompt(d.buildPrompt())
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := parts[0]

		switch cmd {
		case "next", "n":
			d.handleNext(strings.TrimSpace(strings.TrimPrefix(line, parts[0])))
		case "status", "s":
			d.handleStatus()
		case "tasks", "t":
			d.handleTasks(parts)
		case "artefacts", "a":
			d.handleArtefacts(parts)
		case "context":
			d.handleContext()
		case "fail":
			d.handleFail(strings.TrimSpace(strings.TrimPrefix(line, parts[0])))
		case "dump":
			d.handleDump()
		case "help", "?":
			d.handleHelp()
		case "quit", "q":
			fmt.Fprintf(d.output, "Exiting driver.\n")
			return nil
		default:
			fmt.Fprintf(d.output, "Unknown command: %q. Type 'help' for available commands.\n", cmd)
		}
	}
}

// buildPrompt shows the cursor position: lanes[step_id task/sub]>
func (d *Driver) buildPrompt() string {
	view := d.sess.Machine.Status()
	switch view.Status {
	case workflow.StatusComplete:
		return "lanes[complete]> "
	case workflow.StatusFailed:
		return "lanes[failed]> "
	}
	pos := view.StepID
	if view.SubStepID != "" {
		pos = fmt.Sprintf("%s %d/%d:%s", view.StepID, view.TaskNumber, view.TaskCount, view.SubStepID)
	} else if view.Iteration > 0 {
		pos = fmt.Sprintf("%s %d/%d", view.StepID, view.Iteration, view.Iterations)
	}
	return fmt.Sprintf("lanes[%s]> ", pos)
}
