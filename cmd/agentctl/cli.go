package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/agents"
	"github.com/effective-security/dataagents/callbacks"
	"github.com/effective-security/dataagents/internal/toolserver"
	"github.com/effective-security/dataagents/pkg/llmutils"
	"github.com/effective-security/dataagents/tools"
	"github.com/effective-security/xlog"
)

// CLI of agentctl
type CLI struct {
	Globals

	List  ListCmd  `cmd:"" help:"List the agents."`
	Tools ToolsCmd `cmd:"" help:"List the tools of an agent."`
	Call  CallCmd  `cmd:"" help:"Call a tool of an agent."`
}

// Globals are the flags shared by the commands
type Globals struct {
	Agents  string           `short:"a" help:"Path to the agent definitions." default:"etc/agents.yaml" type:"path"`
	EnvFile []string         `name:"env-file" help:"Environment files to load, missing files are skipped." default:".env"`
	Verbose bool             `short:"v" help:"Print the tool calls and the logs to stderr."`
	Version kong.VersionFlag `help:"Print the version and exit."`

	out    io.Writer
	errOut io.Writer
}

func (g *Globals) load() (*agents.Definitions, error) {
	if err := toolserver.LoadEnv(g.EnvFile...); err != nil {
		return nil, err
	}
	if g.Verbose {
		xlog.SetFormatter(xlog.NewStringFormatter(g.errOut))
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	}
	return agents.Load(g.Agents)
}

func (g *Globals) connect(ctx context.Context, name string) (*agents.Session, error) {
	defs, err := g.load()
	if err != nil {
		return nil, err
	}
	def, err := defs.Find(name)
	if err != nil {
		return nil, err
	}

	var opts []agents.Option
	if g.Verbose {
		opts = append(opts, agents.WithCallback(callbacks.NewPrinter(g.errOut, callbacks.ModeVerbose)))
	}
	return agents.Connect(ctx, def, g.errOut, opts...)
}

// ListCmd lists the agents
type ListCmd struct{}

// Run the command
func (c *ListCmd) Run(g *Globals) error {
	defs, err := g.load()
	if err != nil {
		return err
	}
	for _, name := range defs.Names() {
		def, _ := defs.Find(name)
		fmt.Fprintf(g.out, "%s\t%s\t%s\n", def.Name, def.Timeout, def.Description)
	}
	return nil
}

// ToolsCmd lists the tools of an agent
type ToolsCmd struct {
	Agent string `arg:"" help:"Name of the agent."`
}

// Run the command
func (c *ToolsCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := g.connect(ctx, c.Agent)
	if err != nil {
		return err
	}
	defer s.Close()

	list, err := s.Tools(ctx)
	if err != nil {
		return err
	}
	fmt.Fprint(g.out, agents.Describe(s.Definition(), list))
	return nil
}

// CallCmd calls a tool of an agent
type CallCmd struct {
	Agent string   `arg:"" help:"Name of the agent."`
	Tool  string   `arg:"" help:"Name of the tool."`
	Args  []string `arg:"" optional:"" help:"Tool arguments as key=value."`
	JSON  bool     `help:"Print the response envelope as JSON."`
}

// Run the command
func (c *CallCmd) Run(g *Globals) error {
	args, err := agents.ParseArgs(c.Args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := g.connect(ctx, c.Agent)
	if err != nil {
		return err
	}
	defer s.Close()

	env, err := s.Call(ctx, c.Tool, args)
	if err != nil {
		return err
	}
	return printEnvelope(g.out, env, c.JSON)
}

func printEnvelope(w io.Writer, env *tools.Envelope, asJSON bool) error {
	if asJSON {
		fmt.Fprintln(w, env.JSON())
	} else if env.Success {
		var text string
		if err := env.Decode(&text); err != nil {
			// structured payload
			text = llmutils.JSONIndent(string(env.Payload))
		}
		fmt.Fprint(w, llmutils.EnsureEndsWithNewline(text))
	}
	if !env.Success {
		return errors.New(env.Message)
	}
	return nil
}
