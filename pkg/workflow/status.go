package workflow

import (
	"fmt"

	"github.com/FilipeJesus/lanes-sub004/pkg/schema"
)

// View is the execution directive returned to the driver: where the
// cursor is, who handles the current unit of work, what the instructions
// say, and whether a context action is pending.
type View struct {
	Status  Status `json:"status"`
	Summary string `json:"summary,omitempty"`

	StepID     string          `json:"step_id,omitempty"`
	StepKind   schema.StepKind `json:"step_kind,omitempty"`
	StepNumber int             `json:"step_number,omitempty"`
	StepCount  int             `json:"step_count,omitempty"`

	TaskID     string `json:"task_id,omitempty"`
	TaskTitle  string `json:"task_title,omitempty"`
	TaskNumber int    `json:"task_number,omitempty"`
	TaskCount  int    `json:"task_count,omitempty"`
	SubStepID  string `json:"sub_step_id,omitempty"`

	Iteration  int `json:"iteration,omitempty"`
	Iterations int `json:"iterations,omitempty"`

	Agent    string `json:"agent,omitempty"`
	Delegate bool   `json:"delegate"`

	Instructions string `json:"instructions,omitempty"`
	Progress     string `json:"progress,omitempty"`

	ContextAction  schema.ContextAction `json:"context_action,omitempty"`
	OnFailure      schema.OnFailure     `json:"on_failure,omitempty"`
	TrackArtefacts bool                 `json:"track_artefacts,omitempty"`
	Artefacts      []string             `json:"artefacts"`

	FailReason string `json:"fail_reason,omitempty"`
}

// Status renders the current execution directive. Pure: repeated calls
// observe identical state (including a still-pending context action).
func (m *Machine) Status() View {
	if m.st == nil {
		return View{}
	}
	v := View{
		Status:         m.st.Status,
		Summary:        m.st.Summary,
		StepID:         m.st.StepID,
		StepKind:       m.st.StepKind,
		StepCount:      len(m.wf.Steps),
		TrackArtefacts: m.st.TrackArtefacts,
		ContextAction:  m.ContextActionIfNeeded(),
		FailReason:     m.st.FailReason,
		Artefacts:      append([]string{}, m.st.Artefacts...),
	}

	step := m.wf.StepByID(m.st.StepID)
	if step == nil {
		return v
	}
	v.StepNumber = m.wf.StepIndex(step.ID) + 1

	agent := step.Agent
	instructions := step.Instructions
	data := map[string]any{
		"summary": m.st.Summary,
		"stepId":  step.ID,
	}

	switch step.Kind {
	case schema.KindRalph:
		v.Iteration = m.st.RalphIteration
		v.Iterations = step.Iterations
		v.Progress = fmt.Sprintf("iteration %d of %d", v.Iteration, v.Iterations)
		data["iteration"] = v.Iteration
		data["iterationCount"] = v.Iterations
	case schema.KindLoop:
		tasks := m.st.Tasks[step.ID]
		v.TaskCount = len(tasks)
		if sub := m.currentSubStep(step); sub != nil {
			task := tasks[m.st.TaskIndex]
			v.TaskID = task.ID
			v.TaskTitle = task.Title
			v.TaskNumber = m.st.TaskIndex + 1
			v.SubStepID = sub.ID
			v.OnFailure = sub.OnFailure
			v.Progress = fmt.Sprintf("task %d of %d", v.TaskNumber, v.TaskCount)
			if sub.Agent != "" {
				agent = sub.Agent
			}
			if sub.Instructions != "" {
				instructions = sub.Instructions
			}
			data["taskId"] = task.ID
			data["taskTitle"] = task.Title
			data["taskNumber"] = v.TaskNumber
			data["taskCount"] = v.TaskCount
			data["subStepId"] = sub.ID
		} else {
			v.Progress = fmt.Sprintf("awaiting tasks (%d queued)", len(tasks))
		}
	default:
		v.Progress = fmt.Sprintf("step %d of %d", v.StepNumber, v.StepCount)
	}

	v.Agent = agent
	v.Delegate = agent != ""
	if m.Render != nil && instructions != "" {
		instructions = m.Render(instructions, data)
	}
	v.Instructions = instructions
	return v
}
