package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/bankcopilot/core"
)

// MockModel is a lightweight in-memory Model useful for tests and offline demos.
//
// Responses are resolved in this order: queued responses (Enqueue*), the
// handler (SetHandler), canned answers keyed by the last user text
// (AddResponse), then an echo of the input.
type MockModel struct {
	info Info

	mu        sync.Mutex
	queue     []mockStep
	handler   func(Request) (Response, error)
	responses map[string]string
	requests  []Request
}

type mockStep struct {
	resp Response
	err  error
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: provider, SupportsTools: true},
		responses: make(map[string]string),
	}
}

// AddResponse registers a canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// EnqueueText queues plain assistant answers, consumed one per Generate call.
func (m *MockModel) EnqueueText(texts ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range texts {
		m.queue = append(m.queue, mockStep{resp: TextResponse(t)})
	}
}

// EnqueueToolCall queues an answer requesting a single tool call.
func (m *MockModel) EnqueueToolCall(id, name, arguments string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockStep{resp: Response{
		Content: core.Content{Role: core.RoleAssistant, Parts: []core.Part{
			core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: id, Name: name, Arguments: arguments}},
		}},
		FinishReason: "tool_calls",
	}})
}

// EnqueueError queues a failing Generate call.
func (m *MockModel) EnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockStep{err: err})
}

// SetHandler installs a function answering every request not served by the queue.
func (m *MockModel) SetHandler(fn func(Request) (Response, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
}

// Requests returns a copy of all requests received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// TextResponse builds a final assistant text response.
func TextResponse(text string) Response {
	return Response{
		Content:      core.NewTextContent(core.RoleAssistant, text),
		FinishReason: "stop",
		Usage:        &TokenUsage{TotalTokens: len(text) / 4},
	}
}

func (m *MockModel) next(req Request) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if len(m.queue) > 0 {
		step := m.queue[0]
		m.queue = m.queue[1:]
		return step.resp, step.err
	}
	if m.handler != nil {
		return m.handler(req)
	}
	if len(req.Contents) == 0 {
		return Response{}, fmt.Errorf("no contents provided")
	}
	input := req.Contents[len(req.Contents)-1].Text()
	if canned, ok := m.responses[input]; ok {
		return TextResponse(canned), nil
	}
	return TextResponse(fmt.Sprintf("Mock response to: %s", input)), nil
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		if err := ctx.Err(); err != nil {
			errCh <- err
			return
		}
		resp, err := m.next(req)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()
	return respCh, errCh
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
