package core

import (
	"context"
	"sync"
)

// HandOff collects the agent requested by a transfer_to_<agent> tool call
// during one agent turn. The group chat reads it before the next selection.
type HandOff struct {
	mu     sync.Mutex
	target string
}

type handOffKey struct{}

// WithHandOff returns a context carrying a fresh HandOff recorder.
func WithHandOff(ctx context.Context) (context.Context, *HandOff) {
	h := &HandOff{}
	return context.WithValue(ctx, handOffKey{}, h), h
}

// RequestHandOff records agent on the recorder carried by ctx. It reports
// false when ctx carries no recorder.
func RequestHandOff(ctx context.Context, agent string) bool {
	h, ok := ctx.Value(handOffKey{}).(*HandOff)
	if !ok {
		return false
	}
	h.mu.Lock()
	h.target = agent
	h.mu.Unlock()
	return true
}

// Take returns the pending target and clears it.
func (h *HandOff) Take() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := h.target
	h.target = ""
	return t
}

// Pending returns the pending target without clearing it.
func (h *HandOff) Pending() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.target
}

// PendingHandOff returns the target recorded on the recorder carried by ctx.
func PendingHandOff(ctx context.Context) string {
	if h, ok := ctx.Value(handOffKey{}).(*HandOff); ok {
		return h.Pending()
	}
	return ""
}

// TakeHandOff returns and clears the target recorded on the recorder carried by ctx.
func TakeHandOff(ctx context.Context) string {
	if h, ok := ctx.Value(handOffKey{}).(*HandOff); ok {
		return h.Take()
	}
	return ""
}

// HasHandOff reports whether ctx carries a HandOff recorder.
func HasHandOff(ctx context.Context) bool {
	_, ok := ctx.Value(handOffKey{}).(*HandOff)
	return ok
}
