package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Event is one JSONL trace record. One event is appended per mutating
// operation, forming an append-only audit log alongside session.json.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`

	StepID        string `json:"step_id,omitempty"`
	SubStepID     string `json:"sub_step_id,omitempty"`
	TaskID        string `json:"task_id,omitempty"`
	Iteration     int    `json:"iteration,omitempty"`
	OutputKey     string `json:"output_key,omitempty"`
	TaskCount     int    `json:"task_count,omitempty"`
	ArtefactCount int    `json:"artefact_count,omitempty"`
	ContextAction string `json:"context_action,omitempty"`
	Detail        string `json:"detail,omitempty"`
}

// Event types.
const (
	EventStarted    = "started"
	EventAdvanced   = "advanced"
	EventTasksSet   = "tasks_set"
	EventArtefacts  = "artefacts_registered"
	EventContextRun = "context_action_executed"
	EventCompleted  = "completed"
	EventFailed     = "failed"
)

// TraceWriter appends session events to a JSONL trace file.
type TraceWriter struct {
	file   *os.File
	writer *bufio.Writer
	enc    *json.Encoder
}

// NewTraceWriter creates a trace writer that appends to the given file.
func NewTraceWriter(path string) (*TraceWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	w := bufio.NewWriter(f)
	return &TraceWriter{file: f, writer: w, enc: json.NewEncoder(w)}, nil
}

// Write appends an event and flushes to disk at the operation boundary.
func (tw *TraceWriter) Write(event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := tw.enc.Encode(event); err != nil {
		return fmt.Errorf("encode trace event: %w", err)
	}
	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("flush trace: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("sync trace: %w", err)
	}
	return nil
}

// Close flushes and closes the trace file.
func (tw *TraceWriter) Close() error {
	if tw == nil {
		return nil
	}
	if err := tw.writer.Flush(); err != nil {
		return err
	}
	return tw.file.Close()
}
