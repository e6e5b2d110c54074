package tools

import (
	"context"

	"github.com/effective-security/dataagents/pkg/llmutils"
)

// ITool is a named operation exposed to the LLM orchestrator.
type ITool interface {
	// Name returns the name of the Tool.
	Name() string
	// Description returns the description of the tool, to be used in the prompt.
	Description() string
	// Parameters returns the JSON schema of the tool arguments.
	Parameters() any

	// Call executes the tool with the JSON encoded arguments,
	// and returns the JSON encoded result.
	// If the tool fails to parse the input, it returns an error marked with ErrInvalidArguments.
	Call(ctx context.Context, input string) (string, error)
}

// Tool is a typed tool
type Tool[I any, O any] interface {
	ITool
	Run(context.Context, *I) (*O, error)
}

// Callback receives notifications about tool calls made through the Registry
type Callback interface {
	OnToolStart(ctx context.Context, server, tool, input string)
	OnToolEnd(ctx context.Context, record *CallRecord)
}

// Descriptor is the advertised signature of a tool
type Descriptor struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	InputSchema any    `json:"inputSchema" yaml:"inputSchema"`
}

// Call is a request to invoke a tool by name
type Call struct {
	Name      string         `json:"name" yaml:"name"`
	Arguments map[string]any `json:"arguments,omitempty" yaml:"arguments,omitempty"`
}

type toolDescription struct {
	Name        string `json:"Name" yaml:"Name"`
	Description string `json:"Description" yaml:"Description"`
}

type toolsDescription struct {
	Tools []toolDescription `json:"Tools" yaml:"Tools"`
}

// GetDescriptions returns the names and descriptions of the tools
// as a fenced JSON block for use in prompts
func GetDescriptions(list ...ITool) string {
	var d toolsDescription
	for _, tool := range list {
		d.Tools = append(d.Tools, toolDescription{
			Name:        tool.Name(),
			Description: tool.Description(),
		})
	}
	return llmutils.BackticksJSON(llmutils.ToJSONIndent(d))
}
