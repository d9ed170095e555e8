// Package session owns the per-session lifecycle around the workflow
// state machine: session-keyed storage, JSON persistence after each
// mutation, and the JSONL event trace.
package session

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/FilipeJesus/lanes-sub004/pkg/render"
	"github.com/FilipeJesus/lanes-sub004/pkg/schema"
	"github.com/FilipeJesus/lanes-sub004/pkg/workflow"
)

// ErrNoSession is returned when a session id is unknown to the store.
var ErrNoSession = errors.New("no such session")

// DefaultRoot is the session storage directory relative to the workspace.
const DefaultRoot = ".lanes/sessions"

// GenerateSessionID creates a session ID in format YYYYMMDDTHHmmss-xxxx.
func GenerateSessionID() string {
	ts := time.Now().Format("20060102T150405")
	suffix := make([]byte, 4)
	rand.Read(suffix)
	return fmt.Sprintf("%s-%x", ts, suffix)
}

// Session binds one live state machine to its storage directory.
type Session struct {
	ID           string
	WorkflowPath string
	StartedAt    time.Time
	Workflow     *schema.Workflow
	Machine      *workflow.Machine

	baseDir string
	trace   *TraceWriter
}

// File is the session.json shape. Plain data: restoring it reproduces
// identical machine behavior.
type File struct {
	SessionID    string          `json:"session_id"`
	WorkflowPath string          `json:"workflow_path"`
	StartedAt    time.Time       `json:"started_at"`
	SavedAt      time.Time       `json:"saved_at"`
	State        *workflow.State `json:"state"`
}

// BaseDir is the session's storage directory.
func (s *Session) BaseDir() string { return s.baseDir }

// Save persists the session to session.json. Called after every mutating
// operation; the state machine itself never writes files.
func (s *Session) Save() error {
	f := &File{
		SessionID:    s.ID,
		WorkflowPath: s.WorkflowPath,
		StartedAt:    s.StartedAt,
		SavedAt:      time.Now(),
		State:        s.Machine.State(),
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	path := filepath.Join(s.baseDir, "session.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Trace appends an event to the session's trace. Best-effort: a trace
// write failure must not fail the operation that produced it.
func (s *Session) Trace(event Event) {
	if s.trace == nil {
		return
	}
	event.SessionID = s.ID
	if err := s.trace.Write(event); err != nil {
		fmt.Fprintf(os.Stderr, "session %s: trace: %v\n", s.ID, err)
	}
}

// Close releases the trace file handle.
func (s *Session) Close() error { return s.trace.Close() }

// Store is a session-keyed registry of live machines. The mutex guards
// only the registry map; callers serialize operations per session.
type Store struct {
	mu       sync.Mutex
	root     string
	sessions map[string]*Session

	// WorkspaceRoot resolves workspace-relative artefact paths.
	// Empty means the process working directory.
	WorkspaceRoot string
}

// NewStore creates a store rooted at dir (DefaultRoot when empty).
func NewStore(dir string) *Store {
	if dir == "" {
		dir = DefaultRoot
	}
	return &Store{root: dir, sessions: make(map[string]*Session)}
}

// Create registers a new session over a loaded workflow. An empty id gets
// a generated one. The machine is left unstarted; callers invoke Start
// and then Save.
func (st *Store) Create(workflowPath string, wf *schema.Workflow, id string) (*Session, error) {
	if id == "" {
		id = GenerateSessionID()
	}
	baseDir := filepath.Join(st.root, id)
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	trace, err := NewTraceWriter(filepath.Join(baseDir, "trace.jsonl"))
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:           id,
		WorkflowPath: workflowPath,
		StartedAt:    time.Now(),
		Workflow:     wf,
		Machine:      st.newMachine(wf),
		baseDir:      baseDir,
		trace:        trace,
	}

	st.mu.Lock()
	st.sessions[id] = sess
	st.mu.Unlock()
	return sess, nil
}

// Get returns a live session by id.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, ErrNoSession)
	}
	return sess, nil
}

// Resume restores a persisted session from disk: loads session.json,
// re-validates the workflow file it names, and rebuilds the machine over
// the saved state.
func (st *Store) Resume(id string) (*Session, error) {
	st.mu.Lock()
	if sess, ok := st.sessions[id]; ok {
		st.mu.Unlock()
		return sess, nil
	}
	st.mu.Unlock()

	baseDir := filepath.Join(st.root, id)
	f, err := LoadFile(filepath.Join(baseDir, "session.json"))
	if err != nil {
		if os.IsNotExist(errors.Unwrap(err)) {
			return nil, fmt.Errorf("session %q: %w", id, ErrNoSession)
		}
		return nil, err
	}

	wf, errs := schema.ValidateFile(f.WorkflowPath)
	if schema.HasErrors(errs) {
		return nil, fmt.Errorf("resume %q: workflow %s no longer validates: %s", id, f.WorkflowPath, errs[0])
	}

	trace, err := NewTraceWriter(filepath.Join(baseDir, "trace.jsonl"))
	if err != nil {
		return nil, err
	}

	machine := workflow.Restore(wf, f.State)
	machine.Root = st.WorkspaceRoot
	machine.Render = render.Instructions

	sess := &Session{
		ID:           f.SessionID,
		WorkflowPath: f.WorkflowPath,
		StartedAt:    f.StartedAt,
		Workflow:     wf,
		Machine:      machine,
		baseDir:      baseDir,
		trace:        trace,
	}
	st.mu.Lock()
	st.sessions[id] = sess
	st.mu.Unlock()
	return sess, nil
}

// Summary is one row of a session listing.
type Summary struct {
	ID           string          `json:"id"`
	WorkflowPath string          `json:"workflow_path"`
	Status       workflow.Status `json:"status"`
	StepID       string          `json:"step_id,omitempty"`
	SavedAt      time.Time       `json:"saved_at"`
}

// List scans the store root for persisted sessions, newest first.
func (st *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(st.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sessions directory: %w", err)
	}
	var out []Summary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		f, err := LoadFile(filepath.Join(st.root, e.Name(), "session.json"))
		if err != nil {
			continue
		}
		s := Summary{
			ID:           f.SessionID,
			WorkflowPath: f.WorkflowPath,
			SavedAt:      f.SavedAt,
		}
		if f.State != nil {
			s.Status = f.State.Status
			s.StepID = f.State.StepID
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SavedAt.After(out[j].SavedAt) })
	return out, nil
}

// LoadFile reads a session.json. Exported for the TUI monitor, which
// polls the file rather than holding a live machine.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	return &f, nil
}

func (st *Store) newMachine(wf *schema.Workflow) *workflow.Machine {
	m := workflow.New(wf)
	m.Root = st.WorkspaceRoot
	m.Render = render.Instructions
	return m
}
