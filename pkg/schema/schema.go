// Package schema defines the Go struct types for the workflow YAML schema
// and provides strict YAML parsing.
package schema

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// StepKind discriminates the three step behaviors.
type StepKind string

const (
	KindAction StepKind = "action"
	KindLoop   StepKind = "loop"
	KindRalph  StepKind = "ralph"
)

// ContextAction is a one-shot context reset instruction for the driving agent.
type ContextAction string

const (
	ContextNone    ContextAction = ""
	ContextCompact ContextAction = "compact"
	ContextClear   ContextAction = "clear"
	ContextRestart ContextAction = "restart"
)

// OnFailure is the declared policy for a failing loop sub-step. The engine
// exposes it as step metadata; failure detection and retry looping are the
// driver's job.
type OnFailure string

const (
	FailureRetry OnFailure = "retry"
	FailureSkip  OnFailure = "skip"
	FailureAbort OnFailure = "abort"
)

// Workflow is the top-level document defining a multi-step coding session.
type Workflow struct {
	APIVersion string `yaml:"apiVersion" json:"apiVersion" jsonschema:"required,enum=workflow/v1"`
	Meta       Meta   `yaml:"meta"       json:"meta"       jsonschema:"required"`
	Steps      []Step `yaml:"steps"      json:"steps"      jsonschema:"required,minItems=1"`
}

// Meta contains workflow metadata and agent capability declarations.
type Meta struct {
	Name        string     `yaml:"name"                  json:"name" jsonschema:"required"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Agents      []AgentDef `yaml:"agents,omitempty"      json:"agents,omitempty"`
}

// AgentDef declares a delegable agent capability that steps may target.
type AgentDef struct {
	Name        string `yaml:"name"                  json:"name" jsonschema:"required"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Step is one ordered unit of the workflow.
//
// Kind selects the advance behavior: action runs once, ralph repeats its
// instructions Iterations times, loop runs its sub-step sequence once per
// externally supplied task.
type Step struct {
	ID             string        `yaml:"id"                        json:"id"   jsonschema:"required"`
	Kind           StepKind      `yaml:"kind"                      json:"kind" jsonschema:"required,enum=action,enum=loop,enum=ralph"`
	Agent          string        `yaml:"agent,omitempty"           json:"agent,omitempty"`
	Instructions   string        `yaml:"instructions,omitempty"    json:"instructions,omitempty"`
	Iterations     int           `yaml:"iterations,omitempty"      json:"iterations,omitempty"`
	TrackArtefacts bool          `yaml:"track_artefacts,omitempty" json:"track_artefacts,omitempty"`
	ContextAction  ContextAction `yaml:"context_action,omitempty"  json:"context_action,omitempty" jsonschema:"enum=compact,enum=clear,enum=restart"`
	When           string        `yaml:"when,omitempty"            json:"when,omitempty"`
	SubSteps       []SubStep     `yaml:"sub_steps,omitempty"       json:"sub_steps,omitempty"`
}

// SubStep is one ordered unit within a loop step, executed once per task.
type SubStep struct {
	ID            string        `yaml:"id"                       json:"id" jsonschema:"required"`
	Agent         string        `yaml:"agent,omitempty"          json:"agent,omitempty"`
	Instructions  string        `yaml:"instructions,omitempty"   json:"instructions,omitempty"`
	OnFailure     OnFailure     `yaml:"on_failure,omitempty"     json:"on_failure,omitempty" jsonschema:"enum=retry,enum=skip,enum=abort"`
	ContextAction ContextAction `yaml:"context_action,omitempty" json:"context_action,omitempty" jsonschema:"enum=compact,enum=clear,enum=restart"`
}

// StepByID returns the step with the given id, or nil.
func (w *Workflow) StepByID(id string) *Step {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return &w.Steps[i]
		}
	}
	return nil
}

// StepIndex returns the position of the step with the given id, or -1.
func (w *Workflow) StepIndex(id string) int {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return i
		}
	}
	return -1
}

// SubStepIndex returns the position of a sub-step within a step, or -1.
func (s *Step) SubStepIndex(id string) int {
	for i := range s.SubSteps {
		if s.SubSteps[i].ID == id {
			return i
		}
	}
	return -1
}

// HasAgent reports whether the workflow declares an agent capability.
func (w *Workflow) HasAgent(name string) bool {
	for _, a := range w.Meta.Agents {
		if a.Name == name {
			return true
		}
	}
	return false
}

// LoadFile reads and parses a workflow YAML file with strict unknown-field
// rejection (yaml.v3 KnownFields). Returns the parsed Workflow or an error.
func LoadFile(path string) (*Workflow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open workflow: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a workflow from an io.Reader with strict unknown-field rejection.
func Load(r io.Reader) (*Workflow, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var wf Workflow
	if err := dec.Decode(&wf); err != nil {
		return nil, fmt.Errorf("decode workflow: %w", err)
	}
	return &wf, nil
}
