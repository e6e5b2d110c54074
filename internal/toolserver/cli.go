package toolserver

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/config"
	"github.com/effective-security/dataagents/mcp/transport/httptransport"
	"github.com/joho/godotenv"
)

// CLI is the command line of a tool server
type CLI struct {
	Config  string           `short:"c" help:"Path to the server configuration." default:"${config}" type:"path"`
	EnvFile []string         `name:"env-file" help:"Environment files to load, missing files are skipped." default:".env"`
	Listen  string           `help:"Serve over HTTP on the address instead of stdio, for example :8080."`
	Version kong.VersionFlag `help:"Print the version and exit."`
}

// Main parses the command line and runs the server,
// the process exits on error.
func Main(opts Options, defaultConfig string) {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name(opts.Name),
		kong.Description(opts.Instructions),
		kong.UsageOnError(),
		kong.Vars{
			"config":  defaultConfig,
			"version": opts.Version,
		},
	)
	ctx.FatalIfErrorf(cli.Run(opts))
}

// Run loads the environment and configuration, and serves until
// the orchestrator closes stdin or the process is signaled.
func (c *CLI) Run(opts Options) error {
	if err := LoadEnv(c.EnvFile...); err != nil {
		return err
	}
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}

	if c.Listen != "" {
		opts.Transport = httptransport.NewHTTPTransport(httptransport.DefaultEndpoint).WithAddr(c.Listen)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Run(ctx, cfg, opts)
}

// LoadEnv loads the environment files that exist,
// variables already set in the environment are not overridden.
func LoadEnv(files ...string) error {
	for _, file := range files {
		if _, err := os.Stat(file); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return errors.Wrapf(err, "failed to load %s", file)
		}
	}
	return nil
}
