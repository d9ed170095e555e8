package render

import "testing"

// TestInstructions covers placeholder substitution, helper functions,
// missing keys and malformed templates.
func TestInstructions(t *testing.T) {
	data := map[string]any{
		"taskTitle": "Add parser",
		"stepId":    "build",
		"taskCount": 3,
	}

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "no placeholders here", "no placeholders here"},
		{"simple substitution", "Implement {{.taskTitle}}.", "Implement Add parser."},
		{"numeric value", "{{.taskCount}} tasks queued", "3 tasks queued"},
		{"helper function", "{{upper .stepId}}", "BUILD"},
		{"missing key blanked", "before {{.nope}} after", "before  after"},
		{"malformed returns raw", "broken {{.taskTitle", "broken {{.taskTitle"},
		{"bad function returns raw", "{{frobnicate .stepId}}", "{{frobnicate .stepId}}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Instructions(tc.in, data); got != tc.want {
				t.Errorf("Instructions(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

// TestInstructionsNilData verifies rendering with no context data.
func TestInstructionsNilData(t *testing.T) {
	if got := Instructions("step {{.stepId}} done", nil); got != "step  done" {
		t.Errorf("got %q", got)
	}
}
