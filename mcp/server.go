// Package mcp implements the server and client sides of the Model Context
// Protocol subset used by the tool servers: initialize, ping, tools/list and
// tools/call over a pluggable transport.
package mcp

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/mcp/internal/protocol"
	"github.com/effective-security/dataagents/mcp/transport"
	"github.com/effective-security/dataagents/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/dataagents", "mcp")

// Server exposes a tools.Registry over MCP
type Server struct {
	info         Implementation
	instructions string
	registry     *tools.Registry

	protocol  *protocol.Protocol
	done      chan struct{}
	closeOnce sync.Once
}

// ServerOption configures the Server
type ServerOption func(*Server)

// WithVersion sets the server version reported on initialize
func WithVersion(version string) ServerOption {
	return func(s *Server) {
		s.info.Version = version
	}
}

// WithInstructions sets the instructions reported on initialize
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) {
		s.instructions = instructions
	}
}

// NewServer returns a server for the registry.
// The server name is the registry server name.
func NewServer(registry *tools.Registry, opts ...ServerOption) *Server {
	s := &Server{
		info: Implementation{
			Name:    registry.Server(),
			Version: "0.1.0",
		},
		registry: registry,
		protocol: protocol.NewProtocol(nil),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.protocol.SetRequestHandler(MethodInitialize, s.handleInitialize)
	s.protocol.SetRequestHandler(MethodPing, s.handlePing)
	s.protocol.SetRequestHandler(MethodToolsList, s.handleListTools)
	s.protocol.SetRequestHandler(MethodToolsCall, s.handleCallTool)
	s.protocol.OnClose = func() {
		s.closeOnce.Do(func() { close(s.done) })
	}
	s.protocol.OnError = func(err error) {
		logger.KV(xlog.ERROR, "server", s.info.Name, "err", err.Error())
	}
	return s
}

// Serve connects the server to the transport and starts processing messages.
// It does not block, use Done to wait for the transport to close.
func (s *Server) Serve(tr transport.Transport) error {
	logger.KV(xlog.NOTICE, "status", "serving", "server", s.info.Name, "tools", len(s.registry.List()))
	return s.protocol.Connect(tr)
}

// Done returns a channel closed when the transport is closed
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the transport is closed or the context is done
func (s *Server) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the transport
func (s *Server) Close() error {
	return s.protocol.Close()
}

func (s *Server) handleInitialize(_ context.Context, req *transport.BaseJSONRPCRequest) (transport.JsonRpcBody, error) {
	var params InitializeRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, protocol.NewRPCError(transport.ErrCodeInvalidParams, "invalid initialize params: %s", err.Error())
		}
	}

	logger.KV(xlog.INFO,
		"method", req.Method,
		"client", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
		"protocol", params.ProtocolVersion,
	)

	return &InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{},
		},
		ServerInfo:   s.info,
		Instructions: s.instructions,
	}, nil
}

func (s *Server) handlePing(context.Context, *transport.BaseJSONRPCRequest) (transport.JsonRpcBody, error) {
	return map[string]any{}, nil
}

func (s *Server) handleListTools(context.Context, *transport.BaseJSONRPCRequest) (transport.JsonRpcBody, error) {
	descriptors := s.registry.List()
	res := &ListToolsResult{
		Tools: make([]ToolInfo, 0, len(descriptors)),
	}
	for _, d := range descriptors {
		js, err := json.Marshal(d.InputSchema)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to marshal schema of %s", d.Name)
		}
		res.Tools = append(res.Tools, ToolInfo{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: js,
		})
	}
	return res, nil
}

func (s *Server) handleCallTool(ctx context.Context, req *transport.BaseJSONRPCRequest) (transport.JsonRpcBody, error) {
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, protocol.NewRPCError(transport.ErrCodeInvalidParams, "invalid tools/call params: %s", err.Error())
	}
	if params.Name == "" {
		return nil, protocol.NewRPCError(transport.ErrCodeInvalidParams, "tool name is required")
	}

	env := s.registry.Call(ctx, params.Name, params.Arguments)
	return NewCallToolResult(env), nil
}
