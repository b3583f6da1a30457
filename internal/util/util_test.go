package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type selection struct {
	AgentName string `json:"AgentName" description:"name of the selected agent"`
	Reason    string `json:"Reason" description:"reason for selecting the agent"`
	Note      string `json:"note,omitempty"`
}

func TestCreateSchema_RequiredAndDescriptions(t *testing.T) {
	schema := CreateSchema(selection{})

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "AgentName")
	assert.Equal(t, "name of the selected agent", props["AgentName"].(map[string]any)["description"])
	assert.ElementsMatch(t, []string{"AgentName", "Reason"}, schema["required"])
}

func TestCreateSchema_NestedTypes(t *testing.T) {
	type window struct {
		From time.Time `json:"from"`
	}
	type request struct {
		Details map[string]string `json:"details"`
		Tags    []string          `json:"tags,omitempty"`
		Window  *window           `json:"window"`
		Hidden  string            `json:"-"`
		window
	}

	schema := CreateSchema(&request{})
	props := schema["properties"].(map[string]any)

	assert.Equal(t, map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}}, props["details"])
	assert.Equal(t, map[string]any{"type": "array", "items": map[string]any{"type": "string"}}, props["tags"])
	nested := props["window"].(map[string]any)
	assert.Equal(t, "date-time", nested["properties"].(map[string]any)["from"].(map[string]any)["format"])
	assert.Contains(t, props, "from")
	assert.NotContains(t, props, "Hidden")
	assert.Equal(t, []string{"details", "from"}, schema["required"])
}

func TestStrictSchema(t *testing.T) {
	strict := StrictSchema(CreateSchema(selection{}))

	assert.Equal(t, false, strict["additionalProperties"])
	assert.Equal(t, []string{"AgentName", "Reason", "note"}, strict["required"])
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x":    map[string]any{"type": "integer"},
			"kind": map[string]any{"type": "string", "enum": []string{"a", "b"}},
		},
		"required": []string{"x"},
	}

	tests := []struct {
		name    string
		params  map[string]any
		wantErr string
	}{
		{"ok", map[string]any{"x": 5.0, "kind": "a"}, ""},
		{"missing", map[string]any{}, "required field is missing"},
		{"wrong type", map[string]any{"x": "nope"}, "expected type integer"},
		{"fraction", map[string]any{"x": 1.5}, "expected type integer"},
		{"enum", map[string]any{"x": 1.0, "kind": "c"}, "must be one of a, b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParameters(tt.params, schema)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("Agents: {{join \", \" .names}} / {{.topic}}", map[string]any{
		"names": []string{"Sales", "Coordinator"},
		"topic": "loans",
	})
	require.NoError(t, err)
	assert.Equal(t, "Agents: Sales, Coordinator / loans", out)

	plain, err := RenderTemplate("no markers", nil)
	require.NoError(t, err)
	assert.Equal(t, "no markers", plain)

	_, err = RenderTemplate("{{.broken", nil)
	assert.Error(t, err)
}
