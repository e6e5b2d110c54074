// Command analytics-server serves the analytics tools over stdio.
//
// Usage:
//
//	analytics-server --config etc/analytics-server.yaml
package main

import (
	"github.com/effective-security/dataagents/internal/toolserver"
	"github.com/effective-security/dataagents/tools/analytics"
)

var version = "0.1.0"

func main() {
	toolserver.Main(toolserver.Options{
		Name:         analytics.ServerName,
		Version:      version,
		Instructions: "Answers business questions about credit card transactions with SQL run in the warehouse.",
		Build:        toolserver.Analytics,
	}, "etc/analytics-server.yaml")
}
