// Package llms provides a minimal chat model abstraction used to turn
// natural language questions into SQL and to extract clauses from documents.
//
// Each subpackage implements the Model interface for a provider:
// googleai (Gemini), openai, anthropic and bedrock.
//
// The `llms.go` file contains the types and interfaces for interacting with different LLMs.
//
// The `options.go` file provides various options and functions to configure the calls.
package llms
