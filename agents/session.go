package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/mcp"
	"github.com/effective-security/dataagents/mcp/transport/httptransport"
	"github.com/effective-security/dataagents/tools"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/dataagents", "agents")

// Session is a connection of an agent to its tool server
type Session struct {
	def      *Definition
	client   *mcp.Client
	callback tools.Callback
	server   string
}

// Option configures the Session
type Option func(*Session)

// WithCallback is notified on each tool call
func WithCallback(cb tools.Callback) Option {
	return func(s *Session) {
		s.callback = cb
	}
}

// Connect starts the tool server of the agent and initializes the session.
// Stderr of the server is written to stderr, os.Stderr if nil.
// Agents with URL connect to the HTTP server instead.
func Connect(ctx context.Context, def *Definition, stderr io.Writer, opts ...Option) (*Session, error) {
	client, err := newClient(def, stderr)
	if err != nil {
		return nil, err
	}

	s, err := NewSession(ctx, def, client, opts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

func newClient(def *Definition, stderr io.Writer) (*mcp.Client, error) {
	info := mcp.WithClientInfo(def.Name, "0.1.0")
	if def.URL != "" {
		client := mcp.NewClient(httptransport.NewClientTransport(def.URL, nil), info)
		if err := client.Connect(); err != nil {
			return nil, err
		}
		return client, nil
	}
	return mcp.NewCommandClient(&mcp.CommandConfig{
		Command: def.Command,
		Args:    def.Args,
		Env:     def.Env,
		Dir:     def.Dir,
		Stderr:  stderr,
	}, info)
}

// NewSession initializes the session over a connected client
func NewSession(ctx context.Context, def *Definition, client *mcp.Client, opts ...Option) (*Session, error) {
	s := &Session{
		def:    def,
		client: client,
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	res, err := client.Initialize(ctx)
	if err != nil {
		return nil, errors.WithMessagef(err, "agent %s", def.Name)
	}
	s.server = res.ServerInfo.Name

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "connected",
		"agent", def.Name,
		"server", s.server,
		"version", res.ServerInfo.Version)
	return s, nil
}

// Definition returns the agent definition
func (s *Session) Definition() *Definition {
	return s.def
}

// Server returns the name of the tool server
func (s *Session) Server() string {
	return s.server
}

// Tools returns the tools of the server
func (s *Session) Tools(ctx context.Context) ([]mcp.ToolInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	return s.client.ListTools(ctx)
}

// Call calls the tool and returns its envelope.
// An error is returned when the server could not be reached,
// tool failures are reported in the envelope.
func (s *Session) Call(ctx context.Context, tool string, args map[string]any) (*tools.Envelope, error) {
	input, _ := json.Marshal(args)
	if s.callback != nil {
		s.callback.OnToolStart(ctx, s.server, tool, string(input))
	}

	rec := &tools.CallRecord{
		ID:      uuid.New().String(),
		Server:  s.server,
		Tool:    tool,
		Started: time.Now(),
	}

	env, err := s.call(ctx, tool, args)
	rec.Duration = time.Since(rec.Started)
	if err != nil {
		rec.Outcome = tools.OutcomeFailed
		rec.Message = err.Error()
	} else {
		rec.Outcome = Outcome(env)
		rec.Message = env.Message
	}

	if s.callback != nil {
		s.callback.OnToolEnd(ctx, rec)
	}
	return env, err
}

func (s *Session) call(ctx context.Context, tool string, args map[string]any) (*tools.Envelope, error) {
	timeout := s.timeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := s.client.CallTool(ctx, tool, args, timeout)
	if err != nil {
		return nil, errors.WithMessagef(err, "%s: %s", s.def.Name, tool)
	}
	return res.Envelope()
}

// Close closes the session and stops the tool server
func (s *Session) Close() error {
	return s.client.Close()
}

func (s *Session) timeout() time.Duration {
	if s.def.Timeout > 0 {
		return s.def.Timeout
	}
	return DefaultTimeout
}

// Outcome returns the outcome reported by the envelope
func Outcome(env *tools.Envelope) tools.Outcome {
	switch {
	case env.Success:
		return tools.OutcomeSuccess
	case strings.HasPrefix(env.Message, "tool not implemented"):
		return tools.OutcomeNotFound
	case strings.HasPrefix(env.Message, "invalid arguments"):
		return tools.OutcomeInvalidArguments
	}
	return tools.OutcomeFailed
}

// ParseArgs returns tool arguments from key=value pairs,
// values are strings
func ParseArgs(pairs []string) (map[string]any, error) {
	args := map[string]any{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.Errorf("invalid argument: %q, expected key=value", pair)
		}
		args[key] = value
	}
	return args, nil
}

// Describe returns the agent description with its tools, as text
func Describe(def *Definition, list []mcp.ToolInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", def.Name)
	if def.Model != "" {
		fmt.Fprintf(&b, " (%s)", def.Model)
	}
	b.WriteString("\n")
	if def.Description != "" {
		fmt.Fprintf(&b, "%s\n", def.Description)
	}
	for _, t := range list {
		fmt.Fprintf(&b, "  - %s: %s\n", t.Name, t.Description)
	}
	return b.String()
}
