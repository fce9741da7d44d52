package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/comigor/gustavo-go/internal/config"
	"github.com/comigor/gustavo-go/internal/logger"
)

// MCPClient defines the methods we expect from an MCP client.
type MCPClient interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// MCPTool exposes one tool of a remote MCP server through the Tool interface.
type MCPTool struct {
	server string
	client MCPClient
	tool   mcp.Tool
	params []Parameter
}

// NewMCPTool wraps tool t served by c.
func NewMCPTool(server string, c MCPClient, t mcp.Tool) *MCPTool {
	return &MCPTool{server: server, client: c, tool: t, params: mcpParameters(t)}
}

func (t *MCPTool) Name() string            { return t.tool.Name }
func (t *MCPTool) Description() string     { return t.tool.Description }
func (t *MCPTool) Parameters() []Parameter { return t.params }

// Run calls the tool and returns {"result": text} or {"error": text}.
func (t *MCPTool) Run(ctx context.Context, args map[string]any) map[string]any {
	logger.L.Debug("calling MCP tool", "server", t.server, "tool", t.tool.Name, "arguments", args)

	res, err := t.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: t.tool.Name, Arguments: args},
	})
	if err != nil {
		logger.L.Warn("MCP CallTool failed", "server", t.server, "tool", t.tool.Name, "error", err)
		return ErrorResult(err.Error())
	}
	if res == nil {
		return ErrorResult("MCP tool returned no result")
	}

	var texts []string
	for _, item := range res.Content {
		if tc, ok := item.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	text := strings.Join(texts, "\n")

	if res.IsError {
		if text == "" {
			text = "Tool execution resulted in an error without specific text."
		}
		return ErrorResult(text)
	}
	if text == "" {
		b, err := json.Marshal(res)
		if err != nil {
			return ErrorResult("Tool executed successfully, but result could not be formatted.")
		}
		text = string(b)
	}
	return map[string]any{"result": text}
}

func mcpParameters(t mcp.Tool) []Parameter {
	schema := t.InputSchema
	if len(t.RawInputSchema) > 0 && string(t.RawInputSchema) != "null" {
		var raw mcp.ToolInputSchema
		if err := json.Unmarshal(t.RawInputSchema, &raw); err != nil {
			logger.L.Warn("unparseable MCP input schema; tool advertised without parameters", "tool", t.Name, "error", err)
			return nil
		}
		schema = raw
	}

	required := make(map[string]bool, len(schema.Required))
	for _, r := range schema.Required {
		required[r] = true
	}

	params := make([]Parameter, 0, len(schema.Properties))
	for name, v := range schema.Properties {
		p := Parameter{Name: name, Type: ParamTypeString, Required: required[name]}
		if prop, ok := v.(map[string]any); ok {
			if typ, ok := prop["type"].(string); ok && typ != "" {
				p.Type = ParamType(typ)
			}
			p.Description, _ = prop["description"].(string)
		}
		params = append(params, p)
	}
	// map order is random; declarations must be stable
	slices.SortFunc(params, func(a, b Parameter) int { return strings.Compare(a.Name, b.Name) })
	return params
}

// DiscoverMCPTools initializes c and lists its tools.
func DiscoverMCPTools(ctx context.Context, server string, c MCPClient) ([]*MCPTool, error) {
	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo:      mcp.Implementation{Name: "gustavo-go", Version: "1.0.0"},
			Capabilities:    mcp.ClientCapabilities{},
		},
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		return nil, fmt.Errorf("initialize %s: %w", server, err)
	}

	listed, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools %s: %w", server, err)
	}

	out := make([]*MCPTool, 0, len(listed.Tools))
	for _, t := range listed.Tools {
		out = append(out, NewMCPTool(server, c, t))
	}
	return out, nil
}

// RegisterMCPTools adds discovered tools to m, skipping names that are already taken.
func RegisterMCPTools(m *ToolManager, discovered []*MCPTool) {
	for _, t := range discovered {
		if err := m.RegisterTool(t); err != nil {
			if errors.Is(err, ErrToolAlreadyRegistered) {
				logger.L.Warn("Tool from MCP server already registered. Skipping.", "tool", t.Name(), "server", t.server)
				continue
			}
			logger.L.Warn("Cannot register MCP tool", "tool", t.Name(), "server", t.server, "error", err)
			continue
		}
		logger.L.Info("Registered tool from MCP server", "tool", t.Name(), "server", t.server)
	}
}

// ConnectMCPServers dials every configured server, registers its tools in m and returns the
// clients that must be closed on shutdown. Servers that fail are logged and skipped.
func ConnectMCPServers(ctx context.Context, m *ToolManager, servers []config.MCPServerConfig) []MCPClient {
	clients := make([]MCPClient, 0, len(servers))
	for _, serverCfg := range servers {
		c, err := dialMCP(ctx, serverCfg)
		if err != nil {
			logger.L.Error("Failed to create MCP client", "name", serverCfg.Name, "error", err)
			continue
		}

		discovered, err := DiscoverMCPTools(ctx, serverCfg.Name, c)
		if err != nil {
			logger.L.Error("Failed to initialize MCP client", "name", serverCfg.Name, "error", err)
			if cerr := c.Close(); cerr != nil {
				logger.L.Warn("MCP client close error after init failure", "error", cerr)
			}
			continue
		}
		RegisterMCPTools(m, discovered)
		clients = append(clients, c)
	}
	return clients
}

func dialMCP(ctx context.Context, serverCfg config.MCPServerConfig) (*client.Client, error) {
	var (
		mcpC *client.Client
		err  error
	)
	switch serverCfg.Type {
	case config.ClientTypeSSE:
		var opts []transport.ClientOption
		if len(serverCfg.Headers) > 0 {
			opts = append(opts, transport.WithHeaders(serverCfg.Headers))
		}
		mcpC, err = client.NewSSEMCPClient(serverCfg.URL, opts...)
	case config.ClientTypeStreamableHTTP:
		var opts []transport.StreamableHTTPCOption
		if len(serverCfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(serverCfg.Headers))
		}
		mcpC, err = client.NewStreamableHttpClient(serverCfg.URL, opts...)
	case config.ClientTypeStdio:
		env := make([]string, 0, len(serverCfg.Env))
		for k, v := range serverCfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		// stdio clients are started by the constructor
		return client.NewStdioMCPClient(serverCfg.Command, env, serverCfg.Args...)
	default:
		return nil, fmt.Errorf("unsupported MCP server type %q (want sse, streamable_http or stdio)", serverCfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := mcpC.Start(ctx); err != nil {
		if cerr := mcpC.Close(); cerr != nil {
			logger.L.Warn("MCP client close error after start failure", "error", cerr)
		}
		return nil, fmt.Errorf("start transport: %w", err)
	}
	return mcpC, nil
}
