package agent

import (
	"context"
	"fmt"

	"github.com/hupe1980/bankcopilot/core"
	"github.com/hupe1980/bankcopilot/internal/util"
)

// Instruction is the system prompt of an agent: fixed text, a template
// rendered against the caller identity, or a function evaluated per turn.
type Instruction struct {
	text   string
	render func(ctx context.Context) (string, error)
}

// NewInstructionFromText creates a fixed instruction.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromFunc creates an instruction computed on every turn.
func NewInstructionFromFunc(fn func(ctx context.Context) (string, error)) Instruction {
	return Instruction{render: fn}
}

// NewInstructionFromTemplate creates an instruction from a text/template. The
// identity on ctx is available as {{.tenantId}}, {{.userId}} and
// {{.sessionId}}.
func NewInstructionFromTemplate(tmpl string) Instruction {
	return NewInstructionFromFunc(func(ctx context.Context) (string, error) {
		return util.RenderTemplate(tmpl, IdentityData(ctx))
	})
}

// IdentityData exposes the identity on ctx under template keys. Missing
// identities render as empty strings.
func IdentityData(ctx context.Context) map[string]any {
	id, _ := core.IdentityFrom(ctx)
	return map[string]any{
		"tenantId":  id.TenantID,
		"userId":    id.UserID,
		"sessionId": id.SessionID,
	}
}

// IsStatic reports whether the instruction is fixed text.
func (i Instruction) IsStatic() bool { return i.render == nil }

// Resolve returns the instruction text for the turn running under ctx.
func (i Instruction) Resolve(ctx context.Context) (string, error) {
	if i.render == nil {
		return i.text, nil
	}
	text, err := i.render(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve instruction: %w", err)
	}
	return text, nil
}
