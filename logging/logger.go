package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a configuration string onto a LogLevel. Unknown values map to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Logger defines the minimal logging interface used across the module.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// StructuredLogger wraps slog.Logger adding contextual cloning helpers and
// domain convenience methods. With* methods return copies; the receiver is
// never mutated.
type StructuredLogger struct {
	logger    *slog.Logger
	level     LogLevel
	attrs     map[string]any
	component string
	tenantID  string
	userID    string
	sessionID string
}

// Config configures construction of a StructuredLogger.
type Config struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	Component string
}

// DefaultConfig returns a baseline JSON info level configuration.
func DefaultConfig() *Config {
	return &Config{Level: LogLevelInfo, Format: "json", Output: os.Stdout}
}

// New builds a StructuredLogger from a config (or defaults if nil).
func New(cfg *Config) *StructuredLogger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return &StructuredLogger{logger: slog.New(handler), level: cfg.Level, attrs: map[string]any{}, component: cfg.Component}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *StructuredLogger) clone() *StructuredLogger {
	nl := *l
	nl.attrs = make(map[string]any, len(l.attrs))
	for k, v := range l.attrs {
		nl.attrs[k] = v
	}
	return &nl
}

// With adds a key/value attribute that will be attached to every log entry.
func (l *StructuredLogger) With(key string, value any) *StructuredLogger {
	nl := l.clone()
	nl.attrs[key] = value
	return nl
}

// WithComponent sets the logical component (chat, groupchat, store, api, ...).
func (l *StructuredLogger) WithComponent(c string) *StructuredLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithSession attaches the tenant, user and chat session identifiers.
func (l *StructuredLogger) WithSession(tenantID, userID, sessionID string) *StructuredLogger {
	nl := l.clone()
	nl.tenantID = tenantID
	nl.userID = userID
	nl.sessionID = sessionID
	return nl
}

func (l *StructuredLogger) buildAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.attrs)+4)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.tenantID != "" {
		attrs = append(attrs, slog.String("tenant_id", l.tenantID))
	}
	if l.userID != "" {
		attrs = append(attrs, slog.String("user_id", l.userID))
	}
	if l.sessionID != "" {
		attrs = append(attrs, slog.String("session_id", l.sessionID))
	}
	for k, v := range l.attrs {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

// log emits msg with the contextual attributes followed by key/value args.
func (l *StructuredLogger) log(level slog.Level, msg string, args ...any) {
	if !l.logger.Enabled(context.Background(), level) {
		return
	}
	attrs := l.buildAttrs()
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", args[i])
		}
		if i+1 >= len(args) {
			attrs = append(attrs, slog.Any("!BADKEY", key))
			break
		}
		attrs = append(attrs, slog.Any(key, args[i+1]))
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// Debug logs at debug level.
func (l *StructuredLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }

// Info logs at info level.
func (l *StructuredLogger) Info(msg string, args ...any) { l.log(slog.LevelInfo, msg, args...) }

// Warn logs at warn level.
func (l *StructuredLogger) Warn(msg string, args ...any) { l.log(slog.LevelWarn, msg, args...) }

// Error logs at error level.
func (l *StructuredLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

// LogToolCall records execution details for a tool invocation.
func (l *StructuredLogger) LogToolCall(tool string, dur time.Duration, err error) {
	if err != nil {
		l.log(slog.LevelError, "Tool execution failed", "tool_name", tool, "duration", dur, "error", err.Error())
		return
	}
	l.log(slog.LevelInfo, "Tool execution completed", "tool_name", tool, "duration", dur)
}

// LogLLMCall records model call latency, token usage and success.
func (l *StructuredLogger) LogLLMCall(model string, tokens int, dur time.Duration, err error) {
	if err != nil {
		l.log(slog.LevelError, "LLM call failed", "model", model, "token_count", tokens, "duration", dur, "error", err.Error())
		return
	}
	l.log(slog.LevelInfo, "LLM call completed", "model", model, "token_count", tokens, "duration", dur)
}

// LogTurn records the outcome of one group chat run.
func (l *StructuredLogger) LogTurn(lastAgent string, iterations int, dur time.Duration, err error) {
	if err != nil {
		l.log(slog.LevelError, "Group chat failed", "last_agent", lastAgent, "iterations", iterations, "duration", dur, "error", err.Error())
		return
	}
	l.log(slog.LevelInfo, "Group chat completed", "last_agent", lastAgent, "iterations", iterations, "duration", dur)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// OrNoOp returns l, or a NoOpLogger when l is nil.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}
