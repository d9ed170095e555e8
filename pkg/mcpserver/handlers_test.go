package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/FilipeJesus/lanes-sub004/pkg/session"
	"github.com/FilipeJesus/lanes-sub004/pkg/workflow"
)

const testWorkflowYAML = `apiVersion: workflow/v1
meta:
  name: mcp-test
steps:
  - id: plan
    kind: action
    context_action: compact
  - id: build
    kind: loop
    track_artefacts: true
    sub_steps:
      - id: implement
      - id: review
`

func newGateway(t *testing.T) (*Gateway, string) {
	t.Helper()
	dir := t.TempDir()
	wfPath := filepath.Join(dir, "workflow.yaml")
	if err := os.WriteFile(wfPath, []byte(testWorkflowYAML), 0644); err != nil {
		t.Fatal(err)
	}
	gw := &Gateway{Store: session.NewStore(filepath.Join(dir, "sessions"))}
	return gw, wfPath
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultPayload unmarshals a tool result's text body into statusPayload.
func resultPayload(t *testing.T, res *mcp.CallToolResult) statusPayload {
	t.Helper()
	if res.IsError {
		t.Fatalf("unexpected error result: %+v", res.Content)
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", res.Content[0])
	}
	var p statusPayload
	if err := json.Unmarshal([]byte(text.Text), &p); err != nil {
		t.Fatal(err)
	}
	return p
}

func startSession(t *testing.T, gw *Gateway, wfPath string) string {
	t.Helper()
	res, err := gw.HandleStart(context.Background(), callRequest(map[string]any{
		"workflow_path": wfPath,
		"summary":       "test session",
	}))
	if err != nil {
		t.Fatal(err)
	}
	p := resultPayload(t, res)
	if p.SessionID == "" {
		t.Fatal("no session id in start payload")
	}
	return p.SessionID
}

func TestHandleStart(t *testing.T) {
	gw, wfPath := newGateway(t)
	res, err := gw.HandleStart(context.Background(), callRequest(map[string]any{
		"workflow_path": wfPath,
		"summary":       "add feature",
	}))
	if err != nil {
		t.Fatal(err)
	}
	p := resultPayload(t, res)
	if p.Status != workflow.StatusRunning || p.StepID != "plan" {
		t.Errorf("payload = %+v", p)
	}
	if p.Summary != "add feature" {
		t.Errorf("summary = %q", p.Summary)
	}
	if p.ContextAction != "compact" {
		t.Errorf("context action = %q", p.ContextAction)
	}
}

func TestHandleStart_MissingPath(t *testing.T) {
	gw, _ := newGateway(t)
	res, err := gw.HandleStart(context.Background(), callRequest(map[string]any{}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("expected error for missing workflow_path")
	}
}

func TestHandleStart_InvalidWorkflow(t *testing.T) {
	gw, _ := newGateway(t)
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("apiVersion: workflow/v1\nmeta:\n  name: x\nsteps:\n  - id: r\n    kind: ralph\n"), 0644)

	res, err := gw.HandleStart(context.Background(), callRequest(map[string]any{"workflow_path": bad}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("expected error for ralph step without iterations")
	}
}

// TestHandleStart_Idempotent verifies starting an existing session id
// reports status without resetting it.
func TestHandleStart_Idempotent(t *testing.T) {
	gw, wfPath := newGateway(t)
	id := startSession(t, gw, wfPath)

	gw.HandleAdvance(context.Background(), callRequest(map[string]any{
		"session_id": id, "output": "planned",
	}))

	res, err := gw.HandleStart(context.Background(), callRequest(map[string]any{
		"session_id": id, "workflow_path": wfPath,
	}))
	if err != nil {
		t.Fatal(err)
	}
	p := resultPayload(t, res)
	if p.StepID != "build" {
		t.Errorf("second start reset progress: step = %q", p.StepID)
	}
}

func TestHandleStatus_UnknownSession(t *testing.T) {
	gw, _ := newGateway(t)
	res, err := gw.HandleStatus(context.Background(), callRequest(map[string]any{"session_id": "nope"}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("expected error for unknown session")
	}
}

func TestHandleStatus_MissingSessionID(t *testing.T) {
	gw, _ := newGateway(t)
	res, err := gw.HandleStatus(context.Background(), callRequest(map[string]any{}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("expected error for missing session_id")
	}
}

// TestHandleStatus_Pure verifies status does not consume the pending
// context action.
func TestHandleStatus_Pure(t *testing.T) {
	gw, wfPath := newGateway(t)
	id := startSession(t, gw, wfPath)

	for i := 0; i < 2; i++ {
		res, err := gw.HandleStatus(context.Background(), callRequest(map[string]any{"session_id": id}))
		if err != nil {
			t.Fatal(err)
		}
		if p := resultPayload(t, res); p.ContextAction != "compact" {
			t.Errorf("query %d: context action = %q, want compact", i, p.ContextAction)
		}
	}
}

func TestHandleSetTasksAndAdvance(t *testing.T) {
	gw, wfPath := newGateway(t)
	id := startSession(t, gw, wfPath)

	res, err := gw.HandleSetTasks(context.Background(), callRequest(map[string]any{
		"session_id": id,
		"step_id":    "build",
		"tasks": []any{
			map[string]any{"title": "first"},
			map[string]any{"id": "t2", "title": "second"},
		},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if p := resultPayload(t, res); p.TaskCount != 2 {
		t.Errorf("task count = %d", p.TaskCount)
	}

	// Leave plan, land on (task 1, implement).
	res, err = gw.HandleAdvance(context.Background(), callRequest(map[string]any{
		"session_id": id, "output": "planned",
	}))
	if err != nil {
		t.Fatal(err)
	}
	p := resultPayload(t, res)
	if p.StepID != "build" || p.SubStepID != "implement" || p.TaskTitle != "first" {
		t.Errorf("payload = %+v", p)
	}
}

func TestHandleSetTasks_Validation(t *testing.T) {
	gw, wfPath := newGateway(t)
	id := startSession(t, gw, wfPath)

	cases := []struct {
		name string
		args map[string]any
	}{
		{"missing step_id", map[string]any{"session_id": id, "tasks": []any{}}},
		{"tasks not array", map[string]any{"session_id": id, "step_id": "build", "tasks": "oops"}},
		{"task not object", map[string]any{"session_id": id, "step_id": "build", "tasks": []any{"oops"}}},
		{"task without title", map[string]any{"session_id": id, "step_id": "build", "tasks": []any{map[string]any{"id": "x"}}}},
		{"non-loop step", map[string]any{"session_id": id, "step_id": "plan", "tasks": []any{}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := gw.HandleSetTasks(context.Background(), callRequest(tc.args))
			if err != nil {
				t.Fatal(err)
			}
			if !res.IsError {
				t.Error("expected error result")
			}
		})
	}
}

func TestHandleRegisterArtefacts(t *testing.T) {
	gw, wfPath := newGateway(t)
	id := startSession(t, gw, wfPath)

	real := filepath.Join(t.TempDir(), "report.md")
	os.WriteFile(real, []byte("x"), 0644)

	res, err := gw.HandleRegisterArtefacts(context.Background(), callRequest(map[string]any{
		"session_id": id,
		"paths":      []any{real, "/definitely/missing.txt", 42},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("unexpected error: %+v", res.Content)
	}
	text := res.Content[0].(mcp.TextContent)
	var body struct {
		SessionID string `json:"session_id"`
		workflow.ArtefactResult
	}
	if err := json.Unmarshal([]byte(text.Text), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Registered) != 1 || body.Registered[0] != real {
		t.Errorf("registered = %v", body.Registered)
	}
	// The missing path and the non-string entry both land in invalid.
	if len(body.Invalid) != 2 {
		t.Errorf("invalid = %v", body.Invalid)
	}
}

func TestHandleRegisterArtefacts_NotArray(t *testing.T) {
	gw, wfPath := newGateway(t)
	id := startSession(t, gw, wfPath)

	res, err := gw.HandleRegisterArtefacts(context.Background(), callRequest(map[string]any{
		"session_id": id,
		"paths":      "not-an-array",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("expected error for non-array paths")
	}
}

// TestHandleFail verifies the collaborator path to the terminal failed
// status: reason recorded, persisted, and further advances no-op.
func TestHandleFail(t *testing.T) {
	gw, wfPath := newGateway(t)
	id := startSession(t, gw, wfPath)

	res, err := gw.HandleFail(context.Background(), callRequest(map[string]any{
		"session_id": id,
		"reason":     "agent gave up",
	}))
	if err != nil {
		t.Fatal(err)
	}
	p := resultPayload(t, res)
	if p.Status != workflow.StatusFailed || p.FailReason != "agent gave up" {
		t.Errorf("payload = %+v", p)
	}
	if p.ContextAction != "" {
		t.Errorf("failed session still reports context action %q", p.ContextAction)
	}

	// Advance after failure is a no-op returning the terminal view.
	res, err = gw.HandleAdvance(context.Background(), callRequest(map[string]any{
		"session_id": id, "output": "ignored",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if p := resultPayload(t, res); p.Status != workflow.StatusFailed {
		t.Errorf("status after advance = %q", p.Status)
	}

	// The failed status survives a fresh store.
	gw2 := &Gateway{Store: session.NewStore(filepath.Join(filepath.Dir(wfPath), "sessions"))}
	res, err = gw2.HandleStatus(context.Background(), callRequest(map[string]any{"session_id": id}))
	if err != nil {
		t.Fatal(err)
	}
	if p := resultPayload(t, res); p.Status != workflow.StatusFailed {
		t.Errorf("resumed status = %q", p.Status)
	}
}

func TestHandleFail_UnknownSession(t *testing.T) {
	gw, _ := newGateway(t)
	res, err := gw.HandleFail(context.Background(), callRequest(map[string]any{"session_id": "nope"}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("expected error for unknown session")
	}
}

func TestHandleMarkContextDone(t *testing.T) {
	gw, wfPath := newGateway(t)
	id := startSession(t, gw, wfPath)

	res, err := gw.HandleMarkContextDone(context.Background(), callRequest(map[string]any{"session_id": id}))
	if err != nil {
		t.Fatal(err)
	}
	if p := resultPayload(t, res); p.ContextAction != "" {
		t.Errorf("context action after mark = %q, want none", p.ContextAction)
	}
}

// TestSessionPersistedAcrossStores drives a session through one gateway,
// then resumes it through a fresh store via workflow_status.
func TestSessionPersistedAcrossStores(t *testing.T) {
	gw, wfPath := newGateway(t)
	id := startSession(t, gw, wfPath)
	gw.HandleAdvance(context.Background(), callRequest(map[string]any{
		"session_id": id, "output": "planned",
	}))

	gw2 := &Gateway{Store: session.NewStore(filepath.Join(filepath.Dir(wfPath), "sessions"))}
	res, err := gw2.HandleStatus(context.Background(), callRequest(map[string]any{"session_id": id}))
	if err != nil {
		t.Fatal(err)
	}
	if p := resultPayload(t, res); p.StepID != "build" {
		t.Errorf("resumed step = %q, want build", p.StepID)
	}
}
