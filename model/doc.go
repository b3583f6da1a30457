// Package model defines the provider neutral language model contract used by
// agents and the group chat manager, together with structured output helpers
// and a scripted MockModel for tests.
//
// Provider adapters live in sub packages: model/openai (OpenAI and Azure
// OpenAI), model/anthropic and model/ollama.
package model
