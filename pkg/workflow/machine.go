package workflow

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/FilipeJesus/lanes-sub004/pkg/schema"
)

// Precondition errors. These indicate driver bugs (calls the gateway layer
// should have rejected), not recoverable runtime conditions.
var (
	ErrNotStarted  = errors.New("workflow not started")
	ErrUnknownStep = errors.New("unknown step id")
	ErrNotLoopStep = errors.New("step is not a loop")
)

// ExistsFunc answers "does this path exist". Injected so artefact
// registration is testable without touching the real filesystem.
type ExistsFunc func(path string) bool

// RenderFunc interpolates placeholders in instruction text. The machine
// treats instruction strings as opaque templates; substitution syntax
// lives with the collaborator that supplies this func.
type RenderFunc func(text string, data map[string]any) string

// Machine drives one session's State through a workflow template.
//
// All operations run to completion synchronously and do no I/O of their
// own (artefact existence checks go through Exists). Callers serialize
// calls per session and persist State after each mutation.
type Machine struct {
	wf *schema.Workflow
	st *State

	// Root resolves workspace-relative artefact paths.
	Root string
	// Exists overrides the artefact existence check. Nil means os.Stat.
	Exists ExistsFunc
	// Render interpolates instruction templates for status views.
	// Nil means instructions are returned verbatim.
	Render RenderFunc
}

// New creates a machine with no state. Start initializes it.
func New(wf *schema.Workflow) *Machine {
	return &Machine{wf: wf}
}

// Restore creates a machine over previously persisted state.
func Restore(wf *schema.Workflow, st *State) *Machine {
	return &Machine{wf: wf, st: st}
}

// Workflow returns the immutable template the machine runs.
func (m *Machine) Workflow() *schema.Workflow { return m.wf }

// State returns the live state for persistence. Nil before Start.
func (m *Machine) State() *State { return m.st }

// Started reports whether Start has run (or state was restored).
func (m *Machine) Started() bool { return m.st != nil }

// Start initializes the session at the template's first eligible step.
// Idempotent: if state already exists it returns the current status view
// without mutating anything.
func (m *Machine) Start(summary string) View {
	if m.st != nil {
		return m.Status()
	}
	m.st = &State{
		Status:    StatusRunning,
		Summary:   summary,
		TaskIndex: -1,
		Tasks:     make(map[string][]Task),
		Outputs:   make(map[string]string),
	}
	first := m.nextEligible(0)
	if first < 0 {
		m.st.Status = StatusComplete
		return m.Status()
	}
	m.enterStepAt(first)
	return m.Status()
}

// SetTasks populates the task list for a loop step, replacing any previous
// list. Tasks without ids get generated ones; missing statuses default to
// pending. If the cursor is already on the loop, the task/sub-step cursor
// is initialized (or re-clamped against the replacement list).
func (m *Machine) SetTasks(stepID string, tasks []Task) error {
	if m.st == nil {
		return ErrNotStarted
	}
	step := m.wf.StepByID(stepID)
	if step == nil {
		return fmt.Errorf("set tasks for %q: %w", stepID, ErrUnknownStep)
	}
	if step.Kind != schema.KindLoop {
		return fmt.Errorf("set tasks for %q: %w", stepID, ErrNotLoopStep)
	}

	for i := range tasks {
		if tasks[i].ID == "" {
			tasks[i].ID = uuid.NewString()
		}
		if tasks[i].Status == "" {
			tasks[i].Status = TaskPending
		}
	}
	if m.st.Tasks == nil {
		m.st.Tasks = make(map[string][]Task)
	}
	m.st.Tasks[stepID] = tasks

	if m.st.Status != StatusRunning || m.st.StepID != stepID {
		return nil
	}

	switch {
	case len(tasks) == 0:
		m.st.TaskIndex = -1
		m.st.TaskID = ""
		m.st.SubStepID = ""
	case m.st.TaskIndex < 0:
		m.initLoopCursor(step)
		m.st.ContextActionFired = false
	default:
		// Replacement mid-loop: keep the cursor position when it still
		// exists in the new list, otherwise restart at the first task.
		if m.st.TaskIndex >= len(tasks) {
			m.st.TaskIndex = 0
		}
		m.st.TaskID = tasks[m.st.TaskIndex].ID
		if tasks[m.st.TaskIndex].Status == TaskPending {
			tasks[m.st.TaskIndex].Status = TaskInProgress
		}
		if step.SubStepIndex(m.st.SubStepID) < 0 {
			m.st.SubStepID = step.SubSteps[0].ID
		}
	}
	return nil
}

// Advance records the output for the current position, then moves the
// cursor: next ralph iteration, next loop sub-step/task, or the next
// template step. On a terminal session it is a no-op returning the
// terminal status view.
func (m *Machine) Advance(output string) (View, error) {
	if m.st == nil {
		return View{}, ErrNotStarted
	}
	if m.st.Status != StatusRunning {
		return m.Status(), nil
	}
	step := m.wf.StepByID(m.st.StepID)
	if step == nil {
		return View{}, fmt.Errorf("advance from %q: %w", m.st.StepID, ErrUnknownStep)
	}

	m.recordOutput(m.outputKey(step), output)

	switch step.Kind {
	case schema.KindRalph:
		if m.st.RalphIteration < step.Iterations {
			m.st.RalphIteration++
			m.st.ContextActionFired = false
		} else {
			m.advanceStepCursor(step)
		}
	case schema.KindLoop:
		if m.st.TaskIndex >= 0 && m.st.SubStepID != "" {
			m.advanceWithinLoop(step)
		} else {
			// Loop never received tasks: degrade to a plain step advance.
			m.advanceStepCursor(step)
		}
	default:
		m.advanceStepCursor(step)
	}
	return m.Status(), nil
}

// Fail marks the session failed. Used by collaborators that detect an
// unrecoverable condition; the machine never fails a session on its own.
func (m *Machine) Fail(reason string) {
	if m.st == nil || m.st.Status != StatusRunning {
		return
	}
	m.st.Status = StatusFailed
	m.st.FailReason = reason
}

// ContextActionIfNeeded returns the pending one-shot context action for
// the current position, or ContextNone once it has been marked executed
// or the session is terminal. A loop sub-step's own action shadows the
// enclosing step's.
func (m *Machine) ContextActionIfNeeded() schema.ContextAction {
	if m.st == nil || m.st.Status != StatusRunning || m.st.ContextActionFired {
		return schema.ContextNone
	}
	step := m.wf.StepByID(m.st.StepID)
	if step == nil {
		return schema.ContextNone
	}
	if sub := m.currentSubStep(step); sub != nil && sub.ContextAction != schema.ContextNone {
		return sub.ContextAction
	}
	return step.ContextAction
}

// MarkContextActionExecuted closes the one-shot gate for the current
// position. The driver calls this in the same transaction as consuming
// the action, before persisting.
func (m *Machine) MarkContextActionExecuted() {
	if m.st != nil {
		m.st.ContextActionFired = true
	}
}

// ─── cursor movement ────────────────────────────────────────────────

// enterStepAt positions the cursor on step i: clears all intra-step
// cursor fields, reopens the context gate, seeds the ralph counter or the
// loop cursor (when tasks already arrived).
func (m *Machine) enterStepAt(i int) {
	step := &m.wf.Steps[i]
	m.st.StepID = step.ID
	m.st.StepKind = step.Kind
	m.st.TaskIndex = -1
	m.st.TaskID = ""
	m.st.SubStepID = ""
	m.st.RalphIteration = 0
	m.st.ContextActionFired = false
	m.st.TrackArtefacts = step.TrackArtefacts

	switch step.Kind {
	case schema.KindRalph:
		m.st.RalphIteration = 1
	case schema.KindLoop:
		if len(m.st.Tasks[step.ID]) > 0 {
			m.initLoopCursor(step)
		}
	}
}

func (m *Machine) initLoopCursor(step *schema.Step) {
	tasks := m.st.Tasks[step.ID]
	m.st.TaskIndex = 0
	m.st.TaskID = tasks[0].ID
	if tasks[0].Status == TaskPending {
		tasks[0].Status = TaskInProgress
	}
	m.st.SubStepID = step.SubSteps[0].ID
}

// advanceWithinLoop moves to the next sub-step of the current task, or to
// the first sub-step of the next task, or exhausts the loop.
func (m *Machine) advanceWithinLoop(step *schema.Step) {
	subs := step.SubSteps
	tasks := m.st.Tasks[step.ID]

	if si := step.SubStepIndex(m.st.SubStepID); si >= 0 && si < len(subs)-1 {
		m.st.SubStepID = subs[si+1].ID
		m.st.ContextActionFired = false
		return
	}

	if m.st.TaskIndex < len(tasks) {
		tasks[m.st.TaskIndex].Status = TaskDone
	}
	next := m.st.TaskIndex + 1
	if next < len(tasks) {
		m.st.TaskIndex = next
		m.st.TaskID = tasks[next].ID
		if tasks[next].Status == TaskPending {
			tasks[next].Status = TaskInProgress
		}
		m.st.SubStepID = subs[0].ID
		m.st.ContextActionFired = false
		return
	}

	m.advanceStepCursor(step)
}

// advanceStepCursor moves to the template step after cur, skipping steps
// whose when: guard evaluates false. With no step remaining the session
// completes; cursor fields stay on the last position.
func (m *Machine) advanceStepCursor(cur *schema.Step) {
	next := m.nextEligible(m.wf.StepIndex(cur.ID) + 1)
	if next < 0 {
		m.st.Status = StatusComplete
		return
	}
	m.enterStepAt(next)
}

// nextEligible returns the first step index >= from whose guard passes.
func (m *Machine) nextEligible(from int) int {
	for i := from; i < len(m.wf.Steps); i++ {
		step := &m.wf.Steps[i]
		if step.When == "" || m.evalGuard(step) {
			return i
		}
	}
	return -1
}

// ─── outputs ────────────────────────────────────────────────────────

// outputKey derives the append-only map key for the current position.
func (m *Machine) outputKey(step *schema.Step) string {
	switch step.Kind {
	case schema.KindRalph:
		return fmt.Sprintf("%s.%d", step.ID, m.st.RalphIteration)
	case schema.KindLoop:
		if m.st.TaskIndex >= 0 && m.st.SubStepID != "" {
			return fmt.Sprintf("%s.%s.%s", step.ID, m.st.TaskID, m.st.SubStepID)
		}
		return step.ID
	default:
		return step.ID
	}
}

// recordOutput stores output under key without ever clobbering a prior
// entry: a revisited position (restored or re-run session) gets a #n
// suffixed key instead.
func (m *Machine) recordOutput(key, output string) {
	if m.st.Outputs == nil {
		m.st.Outputs = make(map[string]string)
	}
	if _, taken := m.st.Outputs[key]; !taken {
		m.st.Outputs[key] = output
		return
	}
	for n := 2; ; n++ {
		k := fmt.Sprintf("%s#%d", key, n)
		if _, taken := m.st.Outputs[k]; !taken {
			m.st.Outputs[k] = output
			return
		}
	}
}

// currentSubStep returns the active sub-step, or nil outside a loop cursor.
func (m *Machine) currentSubStep(step *schema.Step) *schema.SubStep {
	if step.Kind != schema.KindLoop || m.st.TaskIndex < 0 || m.st.SubStepID == "" {
		return nil
	}
	if si := step.SubStepIndex(m.st.SubStepID); si >= 0 {
		return &step.SubSteps[si]
	}
	return nil
}
