// Package ollama provides a model.Model backed by a local Ollama server.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hupe1980/bankcopilot/core"
	"github.com/hupe1980/bankcopilot/model"
	"github.com/ollama/ollama/api"
)

// DefaultHost is the address of a local Ollama installation.
const DefaultHost = "http://localhost:11434"

// Options configures the Ollama adapter.
type Options struct {
	Model       string
	Host        string
	Temperature float64
	MaxTokens   int
}

// Model wraps the Ollama chat API behind the generic model.Model interface.
type Model struct {
	client *api.Client
	opts   Options
}

// NewModel creates a model talking to opts.Host (DefaultHost when empty or invalid).
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       "llama3.1",
		Host:        DefaultHost,
		Temperature: 0.2,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	hostURL, err := url.Parse(opts.Host)
	if err != nil || opts.Host == "" {
		hostURL, _ = url.Parse(DefaultHost)
	}

	return &Model{client: api.NewClient(hostURL, http.DefaultClient), opts: opts}
}

// Generate implements model.Model. Structured output uses Ollama's schema
// constrained "format" field.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		chatReq, err := m.buildRequest(req)
		if err != nil {
			errCh <- err
			return
		}

		var resp api.ChatResponse
		if err := m.client.Chat(ctx, chatReq, func(r api.ChatResponse) error {
			resp = r
			return nil
		}); err != nil {
			errCh <- fmt.Errorf("ollama api error: %w", err)
			return
		}

		parts := make([]core.Part, 0, len(resp.Message.ToolCalls)+1)
		if resp.Message.Content != "" {
			parts = append(parts, core.TextPart{Text: resp.Message.Content})
		}
		for i, call := range resp.Message.ToolCalls {
			args, err := json.Marshal(call.Function.Arguments)
			if err != nil {
				errCh <- fmt.Errorf("encode tool arguments: %w", err)
				return
			}
			id := call.ID
			if id == "" {
				id = fmt.Sprintf("call_%d", i)
			}
			parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID:        id,
				Name:      call.Function.Name,
				Arguments: string(args),
			}})
		}

		finish := resp.DoneReason
		if finish == "" {
			finish = "stop"
		}
		out <- model.Response{
			Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
			FinishReason: finish,
			Usage: &model.TokenUsage{
				PromptTokens:     resp.PromptEvalCount,
				CompletionTokens: resp.EvalCount,
				TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
			},
		}
	}()

	return out, errCh
}

func (m *Model) buildRequest(req model.Request) (*api.ChatRequest, error) {
	messages, err := buildMessages(req)
	if err != nil {
		return nil, err
	}
	stream := false
	chatReq := &api.ChatRequest{
		Model:    m.opts.Model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": m.opts.Temperature,
			"num_predict": m.opts.MaxTokens,
		},
	}
	if req.ResponseFormat != nil {
		raw, err := json.Marshal(req.ResponseFormat.Schema)
		if err != nil {
			return nil, fmt.Errorf("encode response schema: %w", err)
		}
		chatReq.Format = raw
	}
	if len(req.Tools) > 0 {
		tools, err := buildTools(req.Tools)
		if err != nil {
			return nil, err
		}
		chatReq.Tools = tools
	}
	return chatReq, nil
}

func buildMessages(req model.Request) ([]api.Message, error) {
	messages := make([]api.Message, 0, len(req.Contents)+1)
	if req.Instructions != "" {
		messages = append(messages, api.Message{Role: core.RoleSystem, Content: req.Instructions})
	}
	for _, c := range req.Contents {
		switch c.Role {
		case core.RoleTool:
			for _, p := range c.Parts {
				fr, ok := p.(core.FunctionResponsePart)
				if !ok {
					continue
				}
				content := fr.FunctionResponse.Response
				if fr.FunctionResponse.Error != "" {
					content = "error: " + fr.FunctionResponse.Error
				}
				messages = append(messages, api.Message{Role: "tool", Content: content, ToolCallID: fr.FunctionResponse.ID})
			}
		case core.RoleAssistant:
			msg := api.Message{Role: core.RoleAssistant, Content: c.Text()}
			for _, fc := range c.FunctionCalls() {
				var args api.ToolCallFunctionArguments
				if fc.Arguments != "" {
					if err := json.Unmarshal([]byte(fc.Arguments), &args); err != nil {
						return nil, fmt.Errorf("decode arguments of %s: %w", fc.Name, err)
					}
				}
				msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
					ID:       fc.ID,
					Function: api.ToolCallFunction{Name: fc.Name, Arguments: args},
				})
			}
			messages = append(messages, msg)
		default:
			role := c.Role
			if role != core.RoleSystem {
				role = core.RoleUser
			}
			messages = append(messages, api.Message{Role: role, Content: c.Text()})
		}
	}
	return messages, nil
}

// buildTools converts JSON schema tool definitions through their wire form,
// which keeps the conversion independent of the SDK's Go property types.
func buildTools(defs []model.ToolDefinition) (api.Tools, error) {
	tools := make(api.Tools, 0, len(defs))
	for _, d := range defs {
		raw, err := json.Marshal(map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        d.Function.Name,
				"description": d.Function.Description,
				"parameters":  d.Function.Parameters,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("encode tool %s: %w", d.Function.Name, err)
		}
		var tool api.Tool
		if err := json.Unmarshal(raw, &tool); err != nil {
			return nil, fmt.Errorf("convert tool %s: %w", d.Function.Name, err)
		}
		tools = append(tools, tool)
	}
	return tools, nil
}

// Info returns metadata describing this Ollama model implementation.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "ollama", SupportsTools: true}
}
