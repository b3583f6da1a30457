package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Logger = (*StructuredLogger)(nil)
	_ Logger = (*SlogAdapter)(nil)
	_ Logger = NoOpLogger{}
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(line, &m))
		out = append(out, m)
	}
	return out
}

func TestStructuredLogger_SessionAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: LogLevelDebug, Format: "json", Output: &buf})

	l.WithComponent("chat").WithSession("t1", "u1", "s1").Info("completion", "agent", "Sales")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "completion", lines[0]["msg"])
	assert.Equal(t, "chat", lines[0]["component"])
	assert.Equal(t, "t1", lines[0]["tenant_id"])
	assert.Equal(t, "u1", lines[0]["user_id"])
	assert.Equal(t, "s1", lines[0]["session_id"])
	assert.Equal(t, "Sales", lines[0]["agent"])
}

func TestStructuredLogger_WithDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := New(&Config{Level: LogLevelInfo, Output: &buf})
	_ = parent.With("k", "v")

	parent.Info("hello")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.NotContains(t, lines[0], "k")
}

func TestStructuredLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: LogLevelWarn, Output: &buf})

	l.Debug("dropped")
	l.Info("dropped")
	l.Warn("kept")
	l.LogLLMCall("gpt-4o", 12, time.Millisecond, errors.New("boom"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "kept", lines[0]["msg"])
	assert.Equal(t, "LLM call failed", lines[1]["msg"])
	assert.Equal(t, "boom", lines[1]["error"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LogLevelDebug},
		{"INFO", LogLevelInfo},
		{" warning ", LogLevelWarn},
		{"error", LogLevelError},
		{"bogus", LogLevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, nil)))
	l.Info("agent.invoke.complete", "agent", "Sales")
	l.Debug("dropped")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "Sales", lines[0]["agent"])
	assert.IsType(t, NoOpLogger{}, OrNoOp(nil))
}
