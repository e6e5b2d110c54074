// Package llmfactory creates chat models from configuration, supporting
// Gemini, OpenAI, Anthropic and Bedrock providers and per-tool model selection.
package llmfactory
