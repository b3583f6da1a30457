// Package logging provides a minimal logging interface and adapters.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that services, stores and agents use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping a plain *slog.Logger
//   - StructuredLogger with tenant/user/session context and model/tool/turn helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.New(&logging.Config{Level: logging.LogLevelInfo, Format: "json", Output: os.Stdout})
//	svc := chat.NewService(store, orchestrator, func(o *chat.Options) { o.Logger = logger.WithComponent("chat") })
package logging
