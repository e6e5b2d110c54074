// Package agents describes the orchestrator agents and connects them
// to their tool servers.
//
// An agent definition names the model and instruction of the agent,
// and the command that starts its tool server.
// The orchestrator spawns the server as a subprocess and talks to it over stdio,
// each tool call is bounded by the agent timeout.
package agents
