// Package openai provides an implementation of model.Model using the OpenAI
// Chat Completions API, including Azure OpenAI deployments. It adapts the
// normalized Request/Response structures into the SDK's message format and
// back, and maps model.ResponseFormat onto strict json_schema output.
package openai

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/hupe1980/bankcopilot/core"
	"github.com/hupe1980/bankcopilot/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
)

// Options configure the OpenAI model adapter.
type Options struct {
	Model               string
	EmbeddingModel      string
	Temperature         float64
	MaxCompletionTokens int64
	Provider            string
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		EmbeddingModel:      string(openai.EmbeddingModelTextEmbedding3Small),
		Temperature:         0.2,
		MaxCompletionTokens: 4096,
		Provider:            "openai",
	}
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
// It also implements model.Embedder.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client. Credentials
// are read from OPENAI_API_KEY unless request options say otherwise.
func NewModel(reqOpts []option.RequestOption, optFns ...func(o *Options)) *Model {
	client := openai.NewClient(reqOpts...)
	return NewModelFromClient(&client, optFns...)
}

// NewAzureModel creates a model bound to an Azure OpenAI deployment. With an
// empty apiKey the default Azure credential chain (Entra ID) is used.
func NewAzureModel(endpoint, apiVersion, apiKey string, optFns ...func(o *Options)) (*Model, error) {
	reqOpts := []option.RequestOption{azure.WithEndpoint(endpoint, apiVersion)}
	if apiKey != "" {
		reqOpts = append(reqOpts, azure.WithAPIKey(apiKey))
	} else {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("azure credential: %w", err)
		}
		reqOpts = append(reqOpts, azure.WithTokenCredential(cred))
	}

	fns := append([]func(o *Options){func(o *Options) { o.Provider = "azure" }}, optFns...)
	return NewModel(reqOpts, fns...), nil
}

// NewModelFromClient creates a new OpenAI model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate implements model.Model with a single non-streaming completion.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)

		params := m.buildParams(req)
		resp, err := m.client.Chat.Completions.New(ctx, params)
		if err != nil {
			errCh <- fmt.Errorf("openai api error: %w", err)
			return
		}
		if len(resp.Choices) == 0 {
			errCh <- fmt.Errorf("no choices returned")
			return
		}

		ch0 := resp.Choices[0]
		parts := make([]core.Part, 0, len(ch0.Message.ToolCalls)+1)
		if ch0.Message.Content != "" {
			parts = append(parts, core.TextPart{Text: ch0.Message.Content})
		}
		for _, tc := range ch0.Message.ToolCalls {
			parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}})
		}
		out <- model.Response{
			ID:           resp.ID,
			Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
			FinishReason: ch0.FinishReason,
			Usage: &model.TokenUsage{
				PromptTokens:     int(resp.Usage.PromptTokens),
				CompletionTokens: int(resp.Usage.CompletionTokens),
				TotalTokens:      int(resp.Usage.TotalTokens),
			},
		}
	}()
	return out, errCh
}

// buildMessages converts normalized contents into OpenAI chat messages. Tool
// responses are expected to directly follow the assistant tool call content.
func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Contents)+1)
	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}
	for _, c := range req.Contents {
		switch c.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(c.Text()))
		case core.RoleAssistant:
			calls := c.FunctionCalls()
			if len(calls) == 0 {
				messages = append(messages, openai.AssistantMessage(c.Text()))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(calls))
			for _, fc := range calls {
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
					ID:   fc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      fc.Name,
						Arguments: fc.Arguments,
					},
				})
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: toolCalls,
				},
			})
		case core.RoleTool:
			for _, p := range c.Parts {
				if fr, ok := p.(core.FunctionResponsePart); ok {
					messages = append(messages, openai.ToolMessage(toolResultText(fr.FunctionResponse), fr.FunctionResponse.ID))
				}
			}
		default:
			if text := c.Text(); text != "" {
				messages = append(messages, openai.UserMessage(text))
			}
		}
	}
	return messages
}

func toolResultText(fr core.FunctionResponse) string {
	if fr.Error != "" {
		return "error: " + fr.Error
	}
	return fr.Response
}

// buildParams assembles the OpenAI request parameters including tools and response format.
func (m *Model) buildParams(req model.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req),
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}
	if f := req.ResponseFormat; f != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        f.Name,
					Description: openai.String(f.Description),
					Schema:      f.Schema,
					Strict:      openai.Bool(f.Strict),
				},
			},
		}
	}
	if len(req.Tools) == 0 {
		return params
	}
	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, tdef := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Function.Name,
				Description: openai.String(tdef.Function.Description),
				Parameters:  tdef.Function.Parameters,
			},
		}
	}
	params.Tools = tools
	return params
}

// Embed implements model.Embedder using the embeddings endpoint.
func (m *Model) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := m.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(m.opts.EmbeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings error: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      m.opts.Provider,
		SupportsTools: true,
	}
}
