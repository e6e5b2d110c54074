// Package toolserver runs a tool registry as a MCP server over stdio.
package toolserver

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/config"
	"github.com/effective-security/dataagents/logging"
	"github.com/effective-security/dataagents/mcp"
	"github.com/effective-security/dataagents/mcp/transport"
	"github.com/effective-security/dataagents/mcp/transport/stdio"
	"github.com/effective-security/dataagents/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/dataagents/internal", "toolserver")

// Build returns the tools of a server
type Build func(ctx context.Context, cfg *config.Config) ([]tools.ITool, error)

// Options of a tool server
type Options struct {
	// Name of the server, reported on initialize
	Name         string
	Version      string
	Instructions string
	Build        Build
	// Transport is stdio when nil
	Transport transport.Transport
}

// Run opens the activity log, registers the tools and serves them
// until the transport is closed or ctx is done.
func Run(ctx context.Context, cfg *config.Config, opts Options) error {
	activity, err := logging.Open(&cfg.Log)
	if err != nil {
		return err
	}
	defer func() {
		_ = activity.Close()
	}()

	registry, err := NewRegistry(ctx, cfg, opts)
	if err != nil {
		logger.KV(xlog.ERROR, "reason", "build", "server", opts.Name, "err", err.Error())
		return err
	}

	var srvOpts []mcp.ServerOption
	if opts.Version != "" {
		srvOpts = append(srvOpts, mcp.WithVersion(opts.Version))
	}
	if opts.Instructions != "" {
		srvOpts = append(srvOpts, mcp.WithInstructions(Instructions(opts.Instructions, registry)))
	}
	srv := mcp.NewServer(registry, srvOpts...)

	tr := opts.Transport
	if tr == nil {
		tr = stdio.NewStdio()
	}
	if err = srv.Serve(tr); err != nil {
		return errors.Wrapf(err, "failed to serve %s", opts.Name)
	}

	err = srv.Wait(ctx)
	_ = srv.Close()
	logger.KV(xlog.NOTICE, "status", "stopped", "server", opts.Name)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// NewRegistry returns the registry with the tools of the server
func NewRegistry(ctx context.Context, cfg *config.Config, opts Options) (*tools.Registry, error) {
	if opts.Build == nil {
		return nil, errors.Errorf("no tools for server %s", opts.Name)
	}
	list, err := opts.Build(ctx, cfg)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create %s tools", opts.Name)
	}

	registry := tools.NewRegistry(opts.Name)
	if err = registry.Register(list...); err != nil {
		return nil, err
	}
	return registry, nil
}

// Instructions returns the server instructions followed by the tools it serves
func Instructions(text string, registry *tools.Registry) string {
	return text + "\n\nAvailable tools:" + tools.GetDescriptions(registry.Tools()...)
}
