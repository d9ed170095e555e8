package driver

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/FilipeJesus/lanes-sub004/pkg/session"
	"github.com/FilipeJesus/lanes-sub004/pkg/workflow"
)

// handleNext records the given output (possibly empty) for the current
// position and advances the cursor.
func (d *Driver) handleNext(output string) {
	view, err := d.sess.Machine.Advance(output)
	if err != nil {
		fmt.Fprintf(d.output, "Error: %v\n", err)
		return
	}
	d.sess.Trace(session.Event{
		Type:      session.EventAdvanced,
		StepID:    view.StepID,
		SubStepID: view.SubStepID,
		TaskID:    view.TaskID,
		Iteration: view.Iteration,
	})
	if view.Status == workflow.StatusComplete {
		d.sess.Trace(session.Event{Type: session.EventCompleted})
	}
	if err := d.sess.Save(); err != nil {
		fmt.Fprintf(d.output, "Error: save: %v\n", err)
	}

	switch view.Status {
	case workflow.StatusComplete:
		fmt.Fprintf(d.output, "✓ Workflow complete.\n")
	case workflow.StatusFailed:
		fmt.Fprintf(d.output, "✗ Workflow failed: %s\n", view.FailReason)
	default:
		d.printDirective(view)
	}
}

// handleStatus prints the current execution directive.
func (d *Driver) handleStatus() {
	d.printDirective(d.sess.Machine.Status())
}

// handleTasks supplies a task list: tasks <step_id> <title1,title2,...>
func (d *Driver) handleTasks(parts []string) {
	if len(parts) < 3 {
		fmt.Fprintf(d.output, "Usage: tasks <step_id> <title1,title2,...>\n")
		return
	}
	stepID := parts[1]
	titles := strings.Split(strings.Join(parts[2:], " "), ",")
	tasks := make([]workflow.Task, 0, len(titles))
	for _, t := range titles {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		tasks = append(tasks, workflow.Task{Title: t})
	}
	if err := d.sess.Machine.SetTasks(stepID, tasks); err != nil {
		fmt.Fprintf(d.output, "Error: %v\n", err)
		return
	}
	d.sess.Trace(session.Event{Type: session.EventTasksSet, StepID: stepID, TaskCount: len(tasks)})
	if err := d.sess.Save(); err != nil {
		fmt.Fprintf(d.output, "Error: save: %v\n", err)
		return
	}
	fmt.Fprintf(d.output, "  %d task(s) set for %q\n", len(tasks), stepID)
}

// handleArtefacts registers file paths: artefacts <p1,p2,...>
func (d *Driver) handleArtefacts(parts []string) {
	if len(parts) < 2 {
		fmt.Fprintf(d.output, "Usage: artefacts <path1,path2,...>\n")
		return
	}
	paths := strings.Split(strings.Join(parts[1:], " "), ",")
	for i := range paths {
		paths[i] = strings.TrimSpace(paths[i])
	}
	res := d.sess.Machine.RegisterArtefacts(paths)
	d.sess.Trace(session.Event{Type: session.EventArtefacts, ArtefactCount: len(res.Registered)})
	if err := d.sess.Save(); err != nil {
		fmt.Fprintf(d.output, "Error: save: %v\n", err)
	}
	fmt.Fprintf(d.output, "  registered=%d duplicates=%d invalid=%d\n",
		len(res.Registered), len(res.Duplicates), len(res.Invalid))
	for _, p := range res.Invalid {
		fmt.Fprintf(d.output, "    invalid: %s\n", p)
	}
}

// handleContext shows the pending context action and marks it executed.
func (d *Driver) handleContext() {
	action := d.sess.Machine.ContextActionIfNeeded()
	if action == "" {
		fmt.Fprintf(d.output, "  no pending context action\n")
		return
	}
	d.sess.Machine.MarkContextActionExecuted()
	d.sess.Trace(session.Event{Type: session.EventContextRun, ContextAction: string(action)})
	if err := d.sess.Save(); err != nil {
		fmt.Fprintf(d.output, "Error: save: %v\n", err)
		return
	}
	fmt.Fprintf(d.output, "  context action %q marked executed\n", action)
}

// handleFail marks the session failed: fail [reason]
func (d *Driver) handleFail(reason string) {
	st := d.sess.Machine.State()
	if st == nil || st.Status != workflow.StatusRunning {
		fmt.Fprintf(d.output, "Error: session is not running\n")
		return
	}
	d.sess.Machine.Fail(reason)
	d.sess.Trace(session.Event{Type: session.EventFailed, Detail: reason})
	if err := d.sess.Save(); err != nil {
		fmt.Fprintf(d.output, "Error: save: %v\n", err)
		return
	}
	fmt.Fprintf(d.output, "✗ Workflow failed: %s\n", reason)
}

// handleDump prints the raw serialized state.
func (d *Driver) handleDump() {
	data, err := json.MarshalIndent(d.sess.Machine.State(), "", "  ")
	if err != nil {
		fmt.Fprintf(d.output, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(d.output, "%s\n", data)
}

func (d *Driver) handleHelp() {
	fmt.Fprint(d.output, `Commands:
  next [output]              record output and advance (n)
  status                     show the current directive (s)
  tasks <step> <t1,t2,...>   supply tasks for a loop step (t)
  artefacts <p1,p2,...>      register artefact paths (a)
  context                    consume the pending context action
  fail [reason]              mark the session failed (terminal)
  dump                       print raw session state
  quit                       exit (q)
`)
}

func (d *Driver) printDirective(view workflow.View) {
	fmt.Fprintf(d.output, "▶ %s [%s] — %s\n", view.StepID, view.StepKind, view.Progress)
	if view.Delegate {
		fmt.Fprintf(d.output, "  agent: %s\n", view.Agent)
	}
	if view.ContextAction != "" {
		fmt.Fprintf(d.output, "  context action pending: %s\n", view.ContextAction)
	}
	if view.Instructions != "" {
		fmt.Fprintf(d.output, "%s\n", indent(view.Instructions))
	}
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i := range lines {
		lines[i] = "  " + lines[i]
	}
	return strings.Join(lines, "\n")
}
