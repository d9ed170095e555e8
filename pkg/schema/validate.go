package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError represents a single validation error with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // JSON-path-like location (e.g., "steps[2].sub_steps[0].id")
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

func errorf(phase, path, msg string, args ...any) *ValidationError {
	return &ValidationError{
		Phase:    phase,
		Path:     path,
		Message:  fmt.Sprintf(msg, args...),
		Severity: "error",
	}
}

// HasErrors reports whether any entry has error severity.
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}

// ValidateFile performs the full 3-phase validation pipeline on a workflow file.
// Phase 1: Structural (strict YAML decode)
// Phase 2: Semantic (JSON Schema validation)
// Phase 3: Domain (custom Go rules)
func ValidateFile(path string) (*Workflow, []*ValidationError) {
	wf, err := LoadFile(path)
	if err != nil {
		return nil, []*ValidationError{errorf("structural", "", "%s", err.Error())}
	}
	return wf, Validate(wf)
}

// Validate runs phases 2+3 on an already-loaded workflow.
func Validate(wf *Workflow) []*ValidationError {
	errs := validateSemantic(wf)
	if HasErrors(errs) {
		return errs
	}
	return append(errs, validateDomain(wf)...)
}

// validateSemantic validates the workflow against the generated JSON Schema.
func validateSemantic(wf *Workflow) []*ValidationError {
	data, err := json.Marshal(wf)
	if err != nil {
		return []*ValidationError{errorf("semantic", "", "marshal for schema validation: %v", err)}
	}

	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return []*ValidationError{errorf("semantic", "", "generate schema: %v", err)}
	}

	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return []*ValidationError{errorf("semantic", "", "unmarshal schema: %v", err)}
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("workflow-v1.json", schemaDoc); err != nil {
		return []*ValidationError{errorf("semantic", "", "add schema resource: %v", err)}
	}
	sch, err := c.Compile("workflow-v1.json")
	if err != nil {
		return []*ValidationError{errorf("semantic", "", "compile schema: %v", err)}
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return []*ValidationError{errorf("semantic", "", "unmarshal document: %v", err)}
	}

	if err := sch.Validate(doc); err != nil {
		var errs []*ValidationError
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flattenValidationErrors(ve) {
				errs = append(errs, errorf("semantic",
					strings.Join(cause.InstanceLocation, "/"),
					"%v", cause.ErrorKind))
			}
		} else {
			errs = append(errs, errorf("semantic", "", "%s", err.Error()))
		}
		return errs
	}
	return nil
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// validateDomain performs Phase 3 domain-level validation: id uniqueness,
// kind-specific field rules and agent references.
func validateDomain(wf *Workflow) []*ValidationError {
	var errs []*ValidationError

	if wf.APIVersion != "workflow/v1" {
		errs = append(errs, errorf("domain", "apiVersion",
			"unrecognized apiVersion %q, expected %q", wf.APIVersion, "workflow/v1"))
	}

	if len(wf.Steps) == 0 {
		errs = append(errs, errorf("domain", "steps", "workflow must contain at least one step"))
	}

	seen := make(map[string]int)
	for i, step := range wf.Steps {
		path := fmt.Sprintf("steps[%d]", i)

		if step.ID == "" {
			errs = append(errs, errorf("domain", path+".id", "step id is required"))
		} else if prev, dup := seen[step.ID]; dup {
			errs = append(errs, errorf("domain", path+".id",
				"duplicate step id %q (first used at steps[%d])", step.ID, prev))
		} else {
			seen[step.ID] = i
		}

		switch step.Kind {
		case KindAction:
			if len(step.SubSteps) > 0 {
				errs = append(errs, errorf("domain", path+".sub_steps",
					"action step %q cannot declare sub_steps", step.ID))
			}
			if step.Iterations != 0 {
				errs = append(errs, errorf("domain", path+".iterations",
					"action step %q cannot declare iterations", step.ID))
			}
		case KindRalph:
			if step.Iterations < 1 {
				errs = append(errs, errorf("domain", path+".iterations",
					"ralph step %q requires iterations >= 1", step.ID))
			}
			if len(step.SubSteps) > 0 {
				errs = append(errs, errorf("domain", path+".sub_steps",
					"ralph step %q cannot declare sub_steps", step.ID))
			}
		case KindLoop:
			if step.Iterations != 0 {
				errs = append(errs, errorf("domain", path+".iterations",
					"loop step %q cannot declare iterations", step.ID))
			}
			if len(step.SubSteps) == 0 {
				errs = append(errs, errorf("domain", path+".sub_steps",
					"loop step %q requires at least one sub-step", step.ID))
			}
			errs = append(errs, validateSubSteps(wf, step, path)...)
		default:
			errs = append(errs, errorf("domain", path+".kind",
				"invalid kind %q: must be action, loop, or ralph", step.Kind))
		}

		if step.ContextAction != ContextNone {
			errs = append(errs, validateContextAction(step.ContextAction, path+".context_action")...)
		}
		if step.Agent != "" && !wf.HasAgent(step.Agent) {
			errs = append(errs, errorf("domain", path+".agent",
				"step %q references undeclared agent %q", step.ID, step.Agent))
		}
	}

	return errs
}

func validateSubSteps(wf *Workflow, step Step, path string) []*ValidationError {
	var errs []*ValidationError
	seen := make(map[string]int)
	for j, sub := range step.SubSteps {
		subPath := fmt.Sprintf("%s.sub_steps[%d]", path, j)
		if sub.ID == "" {
			errs = append(errs, errorf("domain", subPath+".id", "sub-step id is required"))
		} else if prev, dup := seen[sub.ID]; dup {
			errs = append(errs, errorf("domain", subPath+".id",
				"duplicate sub-step id %q in loop %q (first used at index %d)", sub.ID, step.ID, prev))
		} else {
			seen[sub.ID] = j
		}
		switch sub.OnFailure {
		case "", FailureRetry, FailureSkip, FailureAbort:
		default:
			errs = append(errs, errorf("domain", subPath+".on_failure",
				"invalid on_failure %q: must be retry, skip, or abort", sub.OnFailure))
		}
		if sub.ContextAction != ContextNone {
			errs = append(errs, validateContextAction(sub.ContextAction, subPath+".context_action")...)
		}
		if sub.Agent != "" && !wf.HasAgent(sub.Agent) {
			errs = append(errs, errorf("domain", subPath+".agent",
				"sub-step %q references undeclared agent %q", sub.ID, sub.Agent))
		}
	}
	return errs
}

func validateContextAction(a ContextAction, path string) []*ValidationError {
	switch a {
	case ContextCompact, ContextClear, ContextRestart:
		return nil
	default:
		return []*ValidationError{errorf("domain", path,
			"invalid context action %q: must be compact, clear, or restart", a)}
	}
}
