package openai

import (
	"testing"

	"github.com/hupe1980/bankcopilot/core"
	"github.com/hupe1980/bankcopilot/model"
	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ model.Model    = (*Model)(nil)
	_ model.Embedder = (*Model)(nil)
)

func TestBuildMessages_OrderAndRoles(t *testing.T) {
	req := model.Request{
		Instructions: "You are Sales.",
		Contents: []core.Content{
			core.NewTextContent(core.RoleUser, "open an account"),
			{Role: core.RoleAssistant, Parts: []core.Part{
				core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "SearchOfferTerms", Arguments: `{}`}},
			}},
			{Role: core.RoleTool, Parts: []core.Part{
				core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "c1", Name: "SearchOfferTerms", Response: "[]"}},
			}},
			core.NewTextContent(core.RoleAssistant, "no offers"),
		},
	}

	msgs := buildMessages(req)
	require.Len(t, msgs, 5)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	assert.Len(t, msgs[2].OfAssistant.ToolCalls, 1)
	assert.NotNil(t, msgs[3].OfTool)
	assert.NotNil(t, msgs[4].OfAssistant)
}

func TestBuildParams_ResponseFormatAndTools(t *testing.T) {
	client := openai.NewClient()
	m := NewModelFromClient(&client, func(o *Options) { o.Model = "gpt-4o" })

	params := m.buildParams(model.Request{
		Contents: []core.Content{core.NewTextContent(core.RoleUser, "hi")},
		Tools: []model.ToolDefinition{{Type: "function", Function: model.FunctionDefinition{
			Name:       "GetCurrentDateTime",
			Parameters: map[string]any{"type": "object", "properties": map[string]any{}},
		}}},
		ResponseFormat: &model.ResponseFormat{Name: "termination_info", Schema: map[string]any{"type": "object"}, Strict: true},
	})

	assert.Equal(t, "gpt-4o", params.Model)
	require.Len(t, params.Tools, 1)
	assert.Equal(t, "GetCurrentDateTime", params.Tools[0].Function.Name)
	require.NotNil(t, params.ResponseFormat.OfJSONSchema)
	assert.Equal(t, "termination_info", params.ResponseFormat.OfJSONSchema.JSONSchema.Name)
	assert.Equal(t, "openai", m.Info().Provider)
}

func TestToolResultText(t *testing.T) {
	assert.Equal(t, "ok", toolResultText(core.FunctionResponse{Response: "ok"}))
	assert.Equal(t, "error: boom", toolResultText(core.FunctionResponse{Error: "boom"}))
}
