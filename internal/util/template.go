package util

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

var templateFuncs = template.FuncMap{
	"default": func(defaultVal any, val any) any {
		if val == nil || val == "" {
			return defaultVal
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},
}

// RenderTemplate renders a prompt template against state using text/template.
// Text without template markers is returned unchanged.
func RenderTemplate(text string, state map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("prompt").Funcs(templateFuncs).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse prompt template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, state); err != nil {
		return "", fmt.Errorf("render prompt template: %w", err)
	}

	return buf.String(), nil
}
