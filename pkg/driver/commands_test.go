package driver

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FilipeJesus/lanes-sub004/pkg/schema"
	"github.com/FilipeJesus/lanes-sub004/pkg/session"
)

const testWorkflowYAML = `apiVersion: workflow/v1
meta:
  name: driver-test
steps:
  - id: plan
    kind: action
    instructions: Write the plan.
    context_action: compact
  - id: build
    kind: loop
    sub_steps:
      - id: implement
      - id: review
`

func newTestDriver(t *testing.T) (*Driver, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	wfPath := filepath.Join(dir, "workflow.yaml")
	if err := os.WriteFile(wfPath, []byte(testWorkflowYAML), 0644); err != nil {
		t.Fatal(err)
	}
	wf, errs := schema.ValidateFile(wfPath)
	if schema.HasErrors(errs) {
		t.Fatalf("workflow invalid: %v", errs)
	}
	store := session.NewStore(filepath.Join(dir, "sessions"))
	sess, err := store.Create(wfPath, wf, "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sess.Close() })
	sess.Machine.Start("test")

	d := New(sess)
	var buf bytes.Buffer
	d.output = &buf
	return d, &buf
}

// TestHandleNextAdvancesAndSaves drives one advance and checks the
// directive output and the persisted cursor.
func TestHandleNextAdvancesAndSaves(t *testing.T) {
	d, buf := newTestDriver(t)
	d.handleTasks([]string{"tasks", "build", "one, two"})
	buf.Reset()

	d.handleNext("planned")
	out := buf.String()
	if !strings.Contains(out, "build") || !strings.Contains(out, "task 1 of 2") {
		t.Errorf("output:\n%s", out)
	}

	f, err := session.LoadFile(filepath.Join(d.sess.BaseDir(), "session.json"))
	if err != nil {
		t.Fatal(err)
	}
	if f.State.StepID != "build" || f.State.SubStepID != "implement" {
		t.Errorf("persisted cursor = %s/%s", f.State.StepID, f.State.SubStepID)
	}
}

// TestHandleTasksUsage verifies argument parsing and the loop-step check.
func TestHandleTasksUsage(t *testing.T) {
	d, buf := newTestDriver(t)

	d.handleTasks([]string{"tasks"})
	if !strings.Contains(buf.String(), "Usage:") {
		t.Errorf("output: %s", buf.String())
	}

	buf.Reset()
	d.handleTasks([]string{"tasks", "plan", "one"})
	if !strings.Contains(buf.String(), "Error") {
		t.Errorf("tasks on action step accepted: %s", buf.String())
	}
}

// TestHandleContext verifies the consume-and-mark flow and the no-action
// path after marking.
func TestHandleContext(t *testing.T) {
	d, buf := newTestDriver(t)

	d.handleContext()
	if !strings.Contains(buf.String(), `"compact"`) {
		t.Errorf("output: %s", buf.String())
	}

	buf.Reset()
	d.handleContext()
	if !strings.Contains(buf.String(), "no pending context action") {
		t.Errorf("output: %s", buf.String())
	}
}

// TestHandleStatusShowsPendingAction verifies status reports without
// consuming the gate.
func TestHandleStatusShowsPendingAction(t *testing.T) {
	d, buf := newTestDriver(t)
	d.handleStatus()
	d.handleStatus()
	if n := strings.Count(buf.String(), "context action pending: compact"); n != 2 {
		t.Errorf("pending action shown %d times, want 2:\n%s", n, buf.String())
	}
}

// TestHandleFail verifies the fail command reaches the terminal failed
// status, persists it, and rejects a second fail.
func TestHandleFail(t *testing.T) {
	d, buf := newTestDriver(t)

	d.handleFail("tests will not pass")
	if !strings.Contains(buf.String(), "Workflow failed: tests will not pass") {
		t.Errorf("output: %s", buf.String())
	}

	f, err := session.LoadFile(filepath.Join(d.sess.BaseDir(), "session.json"))
	if err != nil {
		t.Fatal(err)
	}
	if f.State.Status != "failed" || f.State.FailReason != "tests will not pass" {
		t.Errorf("persisted state = %s/%q", f.State.Status, f.State.FailReason)
	}

	buf.Reset()
	d.handleFail("again")
	if !strings.Contains(buf.String(), "not running") {
		t.Errorf("second fail output: %s", buf.String())
	}
	if got := d.buildPrompt(); got != "lanes[failed]> " {
		t.Errorf("prompt = %q", got)
	}
}

// TestHandleNextTracesCompletion verifies the REPL writes the same
// completed trace event the MCP surface does.
func TestHandleNextTracesCompletion(t *testing.T) {
	d, _ := newTestDriver(t)
	d.handleTasks([]string{"tasks", "build", "one"})
	d.handleNext("planned")     // -> (one, implement)
	d.handleNext("implemented") // -> (one, review)
	d.handleNext("reviewed")    // -> complete

	data, err := os.ReadFile(filepath.Join(d.sess.BaseDir(), "trace.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	var last session.Event
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
		t.Fatal(err)
	}
	if last.Type != session.EventCompleted {
		t.Errorf("last trace event = %q, want %q", last.Type, session.EventCompleted)
	}
}

// TestBuildPrompt covers the cursor and terminal prompt shapes.
func TestBuildPrompt(t *testing.T) {
	d, _ := newTestDriver(t)
	if got := d.buildPrompt(); !strings.Contains(got, "plan") {
		t.Errorf("prompt = %q", got)
	}
	d.handleTasks([]string{"tasks", "build", "one"})
	d.handleNext("x")
	if got := d.buildPrompt(); !strings.Contains(got, "1/1:implement") {
		t.Errorf("mid-loop prompt = %q", got)
	}
	d.handleNext("x") // review
	d.handleNext("x") // complete
	if got := d.buildPrompt(); got != "lanes[complete]> " {
		t.Errorf("terminal prompt = %q", got)
	}
}
