// Package agent contains the model-backed agents taking part in a group chat.
//
// A ModelAgent turns the shared chat history into a model request, runs the
// tool-call loop against its registered tools and answers with one message
// under its own name. Agents are stateless between turns: everything they
// know comes from the history passed to Invoke and the identity carried by
// the context.
package agent
