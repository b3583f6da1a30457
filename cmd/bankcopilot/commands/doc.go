// Package commands defines the bankcopilot CLI and wires the application
// for its subcommands.
//
// Commands
//
//   - serve   Run the HTTP API
//   - chat    Talk to the agents from the terminal
//   - seed    Load banking documents from JSON files
//
// The root command loads the configuration once. Each subcommand then builds
// the dependency graph (store, model, agents, group chat, chat service) with
// buildApp and releases it with App.Close.
package commands
