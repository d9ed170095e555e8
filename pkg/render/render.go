// Package render interpolates placeholders in workflow instruction text.
// Kept out of the state machine so its tests never enumerate templating
// syntax.
package render

import (
	"bytes"
	"strings"
	"text/template"
)

// funcMap supplements the built-in template functions for instruction
// authors (eq, ne, and, or, not come with text/template).
var funcMap = template.FuncMap{
	"lower":      strings.ToLower,
	"upper":      strings.ToUpper,
	"trim":       strings.TrimSpace,
	"contains":   strings.Contains,
	"hasPrefix":  strings.HasPrefix,
	"hasSuffix":  strings.HasSuffix,
	"replace":    strings.ReplaceAll,
	"join":       strings.Join,
	"split":      strings.Split,
	"trimPrefix": strings.TrimPrefix,
	"trimSuffix": strings.TrimSuffix,
}

// Instructions resolves Go template expressions in an instruction string
// against the current task/iteration context. Falls back to the raw text
// on any parse or execution error: a broken placeholder should degrade to
// visible template syntax, never block the workflow.
func Instructions(text string, data map[string]any) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	tmpl, err := template.New("instructions").Funcs(funcMap).Option("missingkey=zero").Parse(text)
	if err != nil {
		return text
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return text
	}
	// missingkey=zero prints "<no value>" for absent keys; keep the raw
	// placeholder text more readable than that.
	return strings.ReplaceAll(buf.String(), "<no value>", "")
}
