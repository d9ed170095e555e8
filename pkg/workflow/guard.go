package workflow

import (
	"fmt"
	"os"

	"github.com/expr-lang/expr"

	"github.com/FilipeJesus/lanes-sub004/pkg/schema"
)

// evalGuard evaluates a step's when: condition with expr-lang against the
// session summary, recorded outputs and task counts. Evaluation errors
// count as false with a stderr diagnostic so a bad guard skips the step
// instead of wedging the session.
func (m *Machine) evalGuard(step *schema.Step) bool {
	env := m.guardEnv()
	program, err := expr.Compile(step.When, expr.Env(env), expr.AsBool())
	if err != nil {
		fmt.Fprintf(os.Stderr, "workflow: step %q guard %q: %v\n", step.ID, step.When, err)
		return false
	}
	out, err := expr.Run(program, env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "workflow: step %q guard %q: %v\n", step.ID, step.When, err)
		return false
	}
	result, ok := out.(bool)
	if !ok {
		fmt.Fprintf(os.Stderr, "workflow: step %q guard %q did not return bool (got %T)\n", step.ID, step.When, out)
		return false
	}
	return result
}

func (m *Machine) guardEnv() map[string]any {
	outputs := m.st.Outputs
	if outputs == nil {
		outputs = map[string]string{}
	}
	taskCounts := make(map[string]int, len(m.st.Tasks))
	for id, tasks := range m.st.Tasks {
		taskCounts[id] = len(tasks)
	}
	return map[string]any{
		"summary":     m.st.Summary,
		"outputs":     outputs,
		"task_counts": taskCounts,
		"artefacts":   len(m.st.Artefacts),
	}
}
