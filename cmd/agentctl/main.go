// Command agentctl lists and calls the tools of the agents.
//
// Each command spawns the tool server of the agent as a subprocess,
// talks to it over stdio, and stops it on exit.
//
// Usage:
//
//	agentctl list
//	agentctl tools data_agent
//	agentctl call data_agent check_null_columns table_path=temp/transactions.csv
package main

import (
	"os"

	"github.com/alecthomas/kong"
)

var version = "0.1.0"

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("agentctl"),
		kong.Description("Lists and calls the tools of the data agents."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)
	cli.Globals.out = os.Stdout
	cli.Globals.errOut = os.Stderr
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}
