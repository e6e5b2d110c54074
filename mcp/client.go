package mcp

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/mcp/internal/protocol"
	"github.com/effective-security/dataagents/mcp/transport"
	"github.com/effective-security/dataagents/mcp/transport/stdio"
	"github.com/effective-security/xlog"
)

// Client is the orchestrator side of a MCP session
type Client struct {
	info      Implementation
	protocol  *protocol.Protocol
	transport transport.Transport

	lock        sync.Mutex
	initialized *InitializeResult

	// set for clients that own a subprocess
	cmd *exec.Cmd
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithClientInfo sets the client name and version sent on initialize
func WithClientInfo(name, version string) ClientOption {
	return func(c *Client) {
		c.info = Implementation{Name: name, Version: version}
	}
}

// NewClient returns a client over the transport, Connect must be called before use
func NewClient(tr transport.Transport, opts ...ClientOption) *Client {
	c := &Client{
		info:      Implementation{Name: "dataagents", Version: "0.1.0"},
		protocol:  protocol.NewProtocol(nil),
		transport: tr,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.protocol.OnError = func(err error) {
		logger.KV(xlog.DEBUG, "client", c.info.Name, "err", err.Error())
	}
	return c
}

// CommandConfig describes a tool server subprocess
type CommandConfig struct {
	Command string
	Args    []string
	// Env is appended to the current process environment
	Env []string
	Dir string
	// Stderr receives the subprocess stderr, os.Stderr if nil
	Stderr io.Writer
}

// NewCommandClient starts the command and returns a connected client
// that talks to it over stdin and stdout.
// Close terminates the subprocess.
func NewCommandClient(cfg *CommandConfig, opts ...ClientOption) (*Client, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = append(os.Environ(), cfg.Env...)
	cmd.Dir = cfg.Dir
	cmd.Stderr = cfg.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err = cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to start %s", cfg.Command)
	}

	logger.KV(xlog.DEBUG, "status", "started", "command", cfg.Command, "pid", cmd.Process.Pid)

	c := NewClient(stdio.New(stdout, stdin), opts...)
	c.cmd = cmd
	if err = c.Connect(); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}
	return c, nil
}

// Connect starts the transport
func (c *Client) Connect() error {
	return c.protocol.Connect(c.transport)
}

// Initialize performs the MCP handshake
func (c *Client) Initialize(ctx context.Context) (*InitializeResult, error) {
	res, err := c.protocol.Request(ctx, MethodInitialize, &InitializeRequest{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      c.info,
	}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "initialize failed")
	}

	var result InitializeResult
	if err = json.Unmarshal(res, &result); err != nil {
		return nil, errors.Wrap(err, "invalid initialize response")
	}

	if err = c.protocol.Notification(protocol.MethodInitialized, nil); err != nil {
		return nil, errors.Wrap(err, "failed to send initialized notification")
	}

	c.lock.Lock()
	c.initialized = &result
	c.lock.Unlock()

	return &result, nil
}

// ServerInfo returns the server info received on Initialize
func (c *Client) ServerInfo() *Implementation {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.initialized == nil {
		return nil
	}
	info := c.initialized.ServerInfo
	return &info
}

// Ping checks that the server is responsive
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.protocol.Request(ctx, MethodPing, nil, nil)
	return err
}

// ListTools returns the tools advertised by the server
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	res, err := c.protocol.Request(ctx, MethodToolsList, map[string]any{}, nil)
	if err != nil {
		return nil, err
	}
	var result ListToolsResult
	if err = json.Unmarshal(res, &result); err != nil {
		return nil, errors.Wrap(err, "invalid tools/list response")
	}
	return result.Tools, nil
}

// CallTool calls the named tool with arguments, which are marshaled to JSON.
// A timeout of zero uses the protocol default.
func (c *Client) CallTool(ctx context.Context, name string, arguments any, timeout time.Duration) (*CallToolResult, error) {
	var args json.RawMessage
	if arguments != nil {
		js, err := json.Marshal(arguments)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal arguments")
		}
		args = js
	}

	res, err := c.protocol.Request(ctx, MethodToolsCall, &CallToolParams{
		Name:      name,
		Arguments: args,
	}, &protocol.RequestOptions{Timeout: timeout})
	if err != nil {
		return nil, err
	}

	var result CallToolResult
	if err = json.Unmarshal(res, &result); err != nil {
		return nil, errors.Wrap(err, "invalid tools/call response")
	}
	return &result, nil
}

// Close closes the transport and terminates the subprocess, if any
func (c *Client) Close() error {
	err := c.protocol.Close()
	if c.cmd == nil {
		return err
	}

	// the server exits on stdin EOF, give it a moment before killing it
	waitDone := make(chan error, 1)
	go func() {
		waitDone <- c.cmd.Wait()
	}()

	select {
	case <-waitDone:
	case <-time.After(3 * time.Second):
		_ = c.cmd.Process.Kill()
		<-waitDone
	}
	return err
}
