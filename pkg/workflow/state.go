// Package workflow implements the session state machine: it turns a
// declarative workflow template into a sequence of resumable execution
// positions, tracking loop tasks, ralph iterations, one-shot context
// actions, per-position outputs and registered file artefacts.
package workflow

import "github.com/FilipeJesus/lanes-sub004/pkg/schema"

// Status is the lifecycle state of a session. Terminal once complete or failed.
type Status string

const (
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// TaskStatus tracks one loop task's progress.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
	TaskFailed     TaskStatus = "failed"
)

// Task is an externally supplied unit of work iterated by a loop step.
// The machine never invents tasks; they arrive via SetTasks.
type Task struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	Status TaskStatus `json:"status"`
}

// State is the complete serializable execution state of one session.
//
// Cursor invariant: at most one of {TaskIndex/SubStepID, RalphIteration}
// is populated, matching StepKind. TaskIndex is -1 and RalphIteration 0
// whenever the cursor is not inside a loop or ralph step respectively.
type State struct {
	Status  Status `json:"status"`
	Summary string `json:"summary,omitempty"`

	StepID   string          `json:"step_id"`
	StepKind schema.StepKind `json:"step_kind"`

	TaskIndex      int    `json:"task_index"`
	TaskID         string `json:"task_id,omitempty"`
	SubStepID      string `json:"sub_step_id,omitempty"`
	RalphIteration int    `json:"ralph_iteration,omitempty"`

	Tasks   map[string][]Task `json:"tasks,omitempty"`
	Outputs map[string]string `json:"outputs,omitempty"`

	Artefacts      []string `json:"artefacts,omitempty"`
	TrackArtefacts bool     `json:"track_artefacts,omitempty"`

	// ContextActionFired gates the current position's one-shot context
	// action. Reset to false on every cursor movement.
	ContextActionFired bool `json:"context_action_fired,omitempty"`

	FailReason string `json:"fail_reason,omitempty"`
}

// HasArtefact reports whether a resolved path is already registered.
func (s *State) HasArtefact(path string) bool {
	for _, a := range s.Artefacts {
		if a == path {
			return true
		}
	}
	return false
}
