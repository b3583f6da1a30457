package model

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/bankcopilot/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Model = (*MockModel)(nil)

func userRequest(text string) Request {
	return Request{Contents: []core.Content{core.NewTextContent(core.RoleUser, text)}}
}

func TestMockModel_ResolutionOrder(t *testing.T) {
	m := NewMockModel("mock", "mock")
	m.AddResponse("hi", "hello there")
	m.EnqueueText("queued")

	ctx := context.Background()

	r, err := Collect(ctx, m, userRequest("hi"))
	require.NoError(t, err)
	assert.Equal(t, "queued", r.Content.Text())

	r, err = Collect(ctx, m, userRequest("hi"))
	require.NoError(t, err)
	assert.Equal(t, "hello there", r.Content.Text())

	r, err = Collect(ctx, m, userRequest("other"))
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: other", r.Content.Text())

	assert.Len(t, m.Requests(), 3)
}

func TestCollect_PropagatesError(t *testing.T) {
	m := NewMockModel("mock", "mock")
	boom := errors.New("boom")
	m.EnqueueError(boom)

	_, err := Collect(context.Background(), m, userRequest("x"))
	assert.ErrorIs(t, err, boom)
}

func TestCollect_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Collect(ctx, NewMockModel("mock", "mock"), userRequest("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateStructured(t *testing.T) {
	type info struct {
		AgentName string
		Reason    string
	}
	m := NewMockModel("mock", "mock")
	m.EnqueueText("```json\n{\"AgentName\": \"Sales\", \"Reason\": \"offers\"}\n```", "not json")

	format := ResponseFormat{Name: "continuation_info", Schema: map[string]any{"type": "object"}, Strict: true}

	var out info
	_, err := GenerateStructured(context.Background(), m, userRequest("x"), format, &out)
	require.NoError(t, err)
	assert.Equal(t, "Sales", out.AgentName)
	require.NotNil(t, m.Requests()[0].ResponseFormat)
	assert.Equal(t, "continuation_info", m.Requests()[0].ResponseFormat.Name)

	_, err = GenerateStructured(context.Background(), m, userRequest("x"), format, &out)
	assert.Error(t, err)
}

func TestSchemaInstructions(t *testing.T) {
	s := SchemaInstructions(ResponseFormat{Name: "termination_info", Schema: map[string]any{"type": "object"}})
	assert.Contains(t, s, "termination_info")
	assert.Contains(t, s, `{"type":"object"}`)
}
