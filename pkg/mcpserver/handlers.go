package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/FilipeJesus/lanes-sub004/pkg/schema"
	"github.com/FilipeJesus/lanes-sub004/pkg/session"
	"github.com/FilipeJesus/lanes-sub004/pkg/workflow"
)

// statusPayload is the JSON body returned by every tool that reports an
// execution directive.
type statusPayload struct {
	SessionID string `json:"session_id"`
	workflow.View
}

// HandleStart implements the workflow_start tool.
func (gw *Gateway) HandleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	summary, _ := args["summary"].(string)

	// Reusing an id is the idempotent path: Start on an existing session
	// is a no-op that reports current status.
	if id, _ := args["session_id"].(string); id != "" {
		sess, err := gw.lookup(id)
		if err == nil {
			sess.Machine.Start(summary)
			return gw.statusResult(sess), nil
		}
		if !errors.Is(err, session.ErrNoSession) {
			return errorResult(err.Error()), nil
		}
	}

	path, _ := args["workflow_path"].(string)
	if path == "" {
		return errorResult("workflow_path argument is required"), nil
	}
	wf, errs := schema.ValidateFile(path)
	if schema.HasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}

	id, _ := args["session_id"].(string)
	sess, err := gw.Store.Create(path, wf, id)
	if err != nil {
		return errorResult(fmt.Sprintf("create session: %s", err)), nil
	}
	view := sess.Machine.Start(summary)
	sess.Trace(session.Event{Type: session.EventStarted, StepID: view.StepID})
	if err := sess.Save(); err != nil {
		return errorResult(err.Error()), nil
	}
	return gw.statusResult(sess), nil
}

// HandleStatus implements the workflow_status tool. Pure query: nothing
// is persisted.
func (gw *Gateway) HandleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errRes := gw.sessionFromArgs(req)
	if errRes != nil {
		return errRes, nil
	}
	return gw.statusResult(sess), nil
}

// HandleAdvance implements the workflow_advance tool.
func (gw *Gateway) HandleAdvance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errRes := gw.sessionFromArgs(req)
	if errRes != nil {
		return errRes, nil
	}
	output, _ := req.GetArguments()["output"].(string)

	view, err := sess.Machine.Advance(output)
	if err != nil {
		return errorResult(fmt.Sprintf("advance: %s", err)), nil
	}
	sess.Trace(session.Event{
		Type:      session.EventAdvanced,
		StepID:    view.StepID,
		SubStepID: view.SubStepID,
		TaskID:    view.TaskID,
		Iteration: view.Iteration,
	})
	if view.Status == workflow.StatusComplete {
		sess.Trace(session.Event{Type: session.EventCompleted})
	}
	if err := sess.Save(); err != nil {
		return errorResult(err.Error()), nil
	}
	return gw.statusResult(sess), nil
}

// HandleSetTasks implements the workflow_set_tasks tool.
func (gw *Gateway) HandleSetTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errRes := gw.sessionFromArgs(req)
	if errRes != nil {
		return errRes, nil
	}
	args := req.GetArguments()
	stepID, _ := args["step_id"].(string)
	if stepID == "" {
		return errorResult("step_id argument is required"), nil
	}
	raw, ok := args["tasks"].([]any)
	if !ok {
		return errorResult("tasks must be an array of task objects"), nil
	}

	tasks := make([]workflow.Task, 0, len(raw))
	for i, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			return errorResult(fmt.Sprintf("tasks[%d] is not an object", i)), nil
		}
		title, _ := obj["title"].(string)
		if title == "" {
			return errorResult(fmt.Sprintf("tasks[%d] requires a title", i)), nil
		}
		id, _ := obj["id"].(string)
		status, _ := obj["status"].(string)
		tasks = append(tasks, workflow.Task{ID: id, Title: title, Status: workflow.TaskStatus(status)})
	}

	if err := sess.Machine.SetTasks(stepID, tasks); err != nil {
		return errorResult(fmt.Sprintf("set tasks: %s", err)), nil
	}
	sess.Trace(session.Event{Type: session.EventTasksSet, StepID: stepID, TaskCount: len(tasks)})
	if err := sess.Save(); err != nil {
		return errorResult(err.Error()), nil
	}
	return gw.statusResult(sess), nil
}

// HandleRegisterArtefacts implements the workflow_register_artefacts tool.
func (gw *Gateway) HandleRegisterArtefacts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errRes := gw.sessionFromArgs(req)
	if errRes != nil {
		return errRes, nil
	}
	raw, ok := req.GetArguments()["paths"].([]any)
	if !ok {
		return errorResult("paths must be an array of strings"), nil
	}

	// Non-string entries never reach the machine; they join the invalid
	// partition here at the boundary.
	var paths []string
	var preInvalid []string
	for _, item := range raw {
		if s, ok := item.(string); ok {
			paths = append(paths, s)
		} else {
			preInvalid = append(preInvalid, fmt.Sprint(item))
		}
	}

	res := sess.Machine.RegisterArtefacts(paths)
	res.Invalid = append(preInvalid, res.Invalid...)

	sess.Trace(session.Event{Type: session.EventArtefacts, ArtefactCount: len(res.Registered)})
	if err := sess.Save(); err != nil {
		return errorResult(err.Error()), nil
	}

	body := struct {
		SessionID string `json:"session_id"`
		workflow.ArtefactResult
	}{sess.ID, res}
	data, _ := json.MarshalIndent(body, "", "  ")
	return textResult(string(data)), nil
}

// HandleFail implements the workflow_fail tool. The machine never fails
// a session on its own; this is the collaborator path to the terminal
// failed status.
func (gw *Gateway) HandleFail(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errRes := gw.sessionFromArgs(req)
	if errRes != nil {
		return errRes, nil
	}
	reason, _ := req.GetArguments()["reason"].(string)

	sess.Machine.Fail(reason)
	sess.Trace(session.Event{Type: session.EventFailed, Detail: reason})
	if err := sess.Save(); err != nil {
		return errorResult(err.Error()), nil
	}
	return gw.statusResult(sess), nil
}

// HandleMarkContextDone implements the workflow_mark_context_done tool.
func (gw *Gateway) HandleMarkContextDone(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errRes := gw.sessionFromArgs(req)
	if errRes != nil {
		return errRes, nil
	}
	action := sess.Machine.ContextActionIfNeeded()
	sess.Machine.MarkContextActionExecuted()
	sess.Trace(session.Event{Type: session.EventContextRun, ContextAction: string(action)})
	if err := sess.Save(); err != nil {
		return errorResult(err.Error()), nil
	}
	return gw.statusResult(sess), nil
}

// ─── helpers ────────────────────────────────────────────────────────

// sessionFromArgs resolves the session_id argument to a live session,
// falling back to resuming a persisted one. Every tool except
// workflow_start rejects unknown sessions here, before the machine runs.
func (gw *Gateway) sessionFromArgs(req mcp.CallToolRequest) (*session.Session, *mcp.CallToolResult) {
	id, _ := req.GetArguments()["session_id"].(string)
	if id == "" {
		return nil, errorResult("session_id argument is required")
	}
	sess, err := gw.lookup(id)
	if err != nil {
		return nil, errorResult(err.Error())
	}
	if !sess.Machine.Started() {
		return nil, errorResult(fmt.Sprintf("session %q was never started", id))
	}
	return sess, nil
}

func (gw *Gateway) lookup(id string) (*session.Session, error) {
	sess, err := gw.Store.Get(id)
	if err == nil {
		return sess, nil
	}
	if errors.Is(err, session.ErrNoSession) {
		return gw.Store.Resume(id)
	}
	return nil, err
}

func (gw *Gateway) statusResult(sess *session.Session) *mcp.CallToolResult {
	body := statusPayload{SessionID: sess.ID, View: sess.Machine.Status()}
	data, _ := json.MarshalIndent(body, "", "  ")
	return textResult(string(data))
}

func formatErrors(errs []*schema.ValidationError) string {
	var msgs []string
	for _, e := range errs {
		if e.Severity == "error" {
			msgs = append(msgs, fmt.Sprintf("[%s] %s", e.Phase, e.Message))
		}
	}
	return strings.Join(msgs, "; ")
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
