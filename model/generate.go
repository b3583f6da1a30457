package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoResponse is returned when a model closes its channels without a final response.
var ErrNoResponse = errors.New("model returned no response")

// Collect drains a Generate call and returns the final (non partial) response.
func Collect(ctx context.Context, m Model, req Request) (Response, error) {
	respCh, errCh := m.Generate(ctx, req)

	var (
		final Response
		found bool
	)
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if !r.Partial {
				final = r
				found = true
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Response{}, err
			}
		}
	}
	if !found {
		return Response{}, ErrNoResponse
	}
	return final, nil
}

// GenerateStructured requests a JSON answer in the given format and decodes it into out.
func GenerateStructured(ctx context.Context, m Model, req Request, format ResponseFormat, out any) (Response, error) {
	req.ResponseFormat = &format
	resp, err := Collect(ctx, m, req)
	if err != nil {
		return Response{}, err
	}
	if err := ParseJSON(resp.Content.Text(), out); err != nil {
		return resp, fmt.Errorf("decode %s: %w", format.Name, err)
	}
	return resp, nil
}

// ParseJSON decodes the first JSON object found in text into out. Markdown
// code fences and leading prose around the object are tolerated.
func ParseJSON(text string, out any) error {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return fmt.Errorf("no JSON object in %q", truncate(text, 80))
	}
	return json.Unmarshal([]byte(text[start:end+1]), out)
}

// SchemaInstructions renders a format as an instruction suffix for providers
// without native structured output support.
func SchemaInstructions(format ResponseFormat) string {
	raw, err := json.Marshal(format.Schema)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("\n\nRespond only with a JSON object named %s that conforms to this JSON schema:\n%s", format.Name, raw)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
