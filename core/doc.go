// Package core provides the foundational chat domain types and interfaces
// shared by the chat service, the group chat orchestrator and the stores:
//
//   - Messages, Sessions and DebugLogs (the persisted chat documents)
//   - Content / Part (the provider neutral model conversation format)
//   - ChatStore (the persistence contract implemented by store/*)
//   - ToolContext (the scoped surface handed to tool implementations)
//   - Identity (tenant / user / session carried through a request context)
//
// Implementation concerns (persistence backends, model providers, agents)
// live in their own packages and depend on core, never the other way round.
package core
