// Package prompt implements the Prompt Invoker (§4.4): render a named
// template with temporal context, call the LLM with a strict JSON-schema
// constraint, and apply a hard timeout. The template renderer's authoring
// language is out of scope per the specification; this package renders Go
// text/template files as one concrete (but not claimed exhaustive)
// implementation of that contract.
package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
	"time"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// TemporalContext is injected into every render so recency reasoning stays
// consistent across calls.
type TemporalContext struct {
	CurrentDate string
	CurrentTime string
}

func NowTemporalContext() TemporalContext {
	now := time.Now().UTC()
	return TemporalContext{
		CurrentDate: now.Format("2006-01-02"),
		CurrentTime: now.Format(time.RFC3339),
	}
}

// Render executes the named template against variables, with the temporal
// context merged in under the "Temporal" key.
func Render(name string, variables map[string]any) (string, error) {
	tmpl := templates.Lookup(name + ".tmpl")
	if tmpl == nil {
		return "", fmt.Errorf("prompt: unknown template %q", name)
	}

	data := make(map[string]any, len(variables)+1)
	for k, v := range variables {
		data[k] = v
	}
	data["Temporal"] = NowTemporalContext()

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("prompt: render %q: %w", name, err)
	}
	return buf.String(), nil
}
