package mcp

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/tools"
)

// ProtocolVersion is the MCP protocol revision implemented by this package
const ProtocolVersion = "2024-11-05"

// MCP methods
const (
	MethodInitialize = "initialize"
	MethodPing       = "ping"
	MethodToolsList  = "tools/list"
	MethodToolsCall  = "tools/call"
)

// Implementation describes the name and version of a MCP implementation
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolsCapability describes the tools support of a server
type ToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

// ServerCapabilities describes the capabilities of a server
type ServerCapabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

// InitializeRequest is sent by the client to begin a session
type InitializeRequest struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      Implementation `json:"clientInfo"`
}

// InitializeResult is the server reply to initialize
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// ToolInfo is a tool as advertised on the wire
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ListToolsResult is the reply to tools/list
type ListToolsResult struct {
	Tools      []ToolInfo `json:"tools"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// CallToolParams are the params of tools/call
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Content is a content block of a tool result
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallToolResult is the reply to tools/call
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError"`
}

// NewCallToolResult wraps the envelope as a single text content block
func NewCallToolResult(env *tools.Envelope) *CallToolResult {
	return &CallToolResult{
		Content: []Content{
			{Type: "text", Text: env.JSON()},
		},
		IsError: !env.Success,
	}
}

// Text returns the concatenated text content
func (r *CallToolResult) Text() string {
	var text string
	for _, c := range r.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}
	return text
}

// Envelope decodes the envelope carried in the text content
func (r *CallToolResult) Envelope() (*tools.Envelope, error) {
	env := new(tools.Envelope)
	if err := json.Unmarshal([]byte(r.Text()), env); err != nil {
		return nil, errors.Wrap(err, "tool result is not an envelope")
	}
	return env, nil
}
