// Package mcpclient gives the gateway's opaque MCP contract a
// concrete implementation over the official modelcontextprotocol/go-sdk
// client, grounded on NeboLoop's internal/mcp/client session-caching
// pattern.
package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServerConfig identifies one MCP server a client attached via a tool
// definition's ServerLabel (models.ToolDefinition.ServerLabel, type=mcp).
type ServerConfig struct {
	Label      string
	Endpoint   string
	BearerAuth string
}

// Client maintains one cached session per configured MCP server and
// exposes an ExecuteTool(serverLabel, toolName, args) -> json surface over
// them.
type Client struct {
	impl *mcp.Implementation

	mu       sync.Mutex
	sessions map[string]*mcp.ClientSession
	servers  map[string]ServerConfig
}

func New(servers []ServerConfig) *Client {
	byLabel := make(map[string]ServerConfig, len(servers))
	for _, s := range servers {
		byLabel[s.Label] = s
	}
	return &Client{
		impl:     &mcp.Implementation{Name: "open-responses-gateway", Version: "1.0.0"},
		sessions: make(map[string]*mcp.ClientSession),
		servers:  byLabel,
	}
}

// HasServer reports whether serverLabel names a configured MCP server, the
// signal the tool handler uses to classify a tool call's event prefix as
// "response.mcp_call.<tool>" rather than the plain "response.<tool>" form.
func (c *Client) HasServer(serverLabel string) bool {
	_, ok := c.servers[serverLabel]
	return ok
}

func (c *Client) session(ctx context.Context, serverLabel string) (*mcp.ClientSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.sessions[serverLabel]; ok {
		return s, nil
	}

	cfg, ok := c.servers[serverLabel]
	if !ok {
		return nil, fmt.Errorf("mcpclient: no server configured for label %q", serverLabel)
	}

	transport := &mcp.StreamableClientTransport{Endpoint: cfg.Endpoint}
	client := mcp.NewClient(c.impl, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: connect to %s failed: %w", cfg.Label, err)
	}
	c.sessions[serverLabel] = session
	return session, nil
}

// ExecuteTool calls toolName on serverLabel's MCP server with args, and
// returns its result serialized as a JSON string — the gateway's opaque
// executeTool(name, args) → json contract.
func (c *Client) ExecuteTool(ctx context.Context, serverLabel, toolName string, args json.RawMessage) (string, error) {
	session, err := c.session(ctx, serverLabel)
	if err != nil {
		return "", err
	}

	var params map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return "", fmt.Errorf("mcpclient: invalid arguments for %s: %w", toolName, err)
		}
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: toolName, Arguments: params})
	if err != nil {
		c.invalidate(serverLabel)
		return "", fmt.Errorf("mcpclient: call %s on %s failed: %w", toolName, serverLabel, err)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("mcpclient: failed to encode result of %s: %w", toolName, err)
	}
	return string(data), nil
}

func (c *Client) invalidate(serverLabel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[serverLabel]; ok {
		s.Close()
		delete(c.sessions, serverLabel)
	}
}

// Close closes every cached session. Call once at shutdown.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for label, s := range c.sessions {
		s.Close()
		delete(c.sessions, label)
	}
}
