// Package mcp imports the tools of remote Model Context Protocol servers into
// a [tool.Registry].
//
// Every remote tool becomes an ordinary registry entry: its JSON input schema
// is converted to a typed [tool.Schema] and its executor proxies the call to
// the server session. The orchestrator cannot tell remote tools from
// in-process ones.
//
// Lifecycle:
//
//  1. Call [Host.ImportAll] (or [Host.Import] per server) at startup.
//  2. Run conversations; remote calls go through the live sessions.
//  3. Call [Host.Close] on shutdown.
package mcp

import (
	"fmt"
	"time"
)

// Transport selects the connection mechanism for an MCP server.
type Transport string

const (
	// TransportStdio spawns a subprocess and communicates over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP communicates via the MCP Streamable HTTP protocol.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// ServerConfig describes how to connect to a single MCP server.
type ServerConfig struct {
	// Name identifies the server in logs and errors. Must be unique.
	Name string `yaml:"name"`

	Transport Transport `yaml:"transport"`

	// Command is the executable and its arguments for stdio servers,
	// e.g. "/usr/local/bin/nutrition-mcp --db /var/lib/food.db".
	Command string `yaml:"command"`

	// URL is the endpoint of streamable-http servers.
	URL string `yaml:"url"`

	// Env holds extra environment variables for stdio servers.
	Env map[string]string `yaml:"env"`

	// Prefix, when set, is prepended to every imported tool name as
	// "<prefix>_<name>".
	Prefix string `yaml:"prefix"`

	// CallTimeout bounds a single remote call. Zero means no extra bound.
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// Validate checks that c can be connected.
func (c ServerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("mcp: server config must have a non-empty name")
	}
	switch c.Transport {
	case TransportStdio:
		if c.Command == "" {
			return fmt.Errorf("mcp: stdio server %q requires a command", c.Name)
		}
	case TransportStreamableHTTP:
		if c.URL == "" {
			return fmt.Errorf("mcp: streamable-http server %q requires a url", c.Name)
		}
	default:
		return fmt.Errorf("mcp: unknown transport %q for server %q", c.Transport, c.Name)
	}
	return nil
}
