// Command etl-server serves the ETL tools over stdio.
//
// Usage:
//
//	etl-server --config etc/etl-server.yaml
package main

import (
	"github.com/effective-security/dataagents/internal/toolserver"
	"github.com/effective-security/dataagents/tools/etl"
)

var version = "0.1.0"

func main() {
	toolserver.Main(toolserver.Options{
		Name:         etl.ServerName,
		Version:      version,
		Instructions: "Downloads bucket data and cleans CSV tables.",
		Build:        toolserver.ETL,
	}, "etc/etl-server.yaml")
}
