// Command legal-server serves the legal tools over stdio.
//
// Usage:
//
//	legal-server --config etc/legal-server.yaml
package main

import (
	"github.com/effective-security/dataagents/internal/toolserver"
	"github.com/effective-security/dataagents/tools/legal"
)

var version = "0.1.0"

func main() {
	toolserver.Main(toolserver.Options{
		Name:         legal.ServerName,
		Version:      version,
		Instructions: "Answers questions about signed contracts and extracts their clauses.",
		Build:        toolserver.Legal,
	}, "etc/legal-server.yaml")
}
