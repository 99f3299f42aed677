package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/client"
	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/ThinkInAIXYZ/go-mcp/transport"
	"github.com/alt-coder/analyticsflow/llm"
	"go.uber.org/zap"
)

// MCPServerConfig represents configuration for a single MCP server
type MCPServerConfig struct {
	Command  string            `yaml:"command"`
	Args     []string          `yaml:"args"`
	Env      map[string]string `yaml:"env"`
	Disabled bool              `yaml:"disabled"`
}

// MCPConfig represents MCP configuration
type MCPConfig struct {
	Servers map[string]MCPServerConfig `yaml:"servers"`
}

type mcpTool struct {
	schema     llm.ToolSchema
	serverName string
}

// MCPManager manages MCP client connections and tool discovery
type MCPManager struct {
	clients    map[string]*client.Client
	transports map[string]transport.ClientTransport
	tools      map[string]mcpTool
	mu         sync.RWMutex
	config     *MCPConfig
	logger     *zap.Logger
}

// NewMCPManager creates a new MCP manager
func NewMCPManager(config *MCPConfig, logger *zap.Logger) *MCPManager {
	if config == nil {
		config = &MCPConfig{Servers: make(map[string]MCPServerConfig)}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MCPManager{
		clients:    make(map[string]*client.Client),
		transports: make(map[string]transport.ClientTransport),
		tools:      make(map[string]mcpTool),
		config:     config,
		logger:     logger,
	}
}

// Initialize connects to all configured MCP servers and discovers their
// tools. A server that fails to come up is logged and skipped.
func (m *MCPManager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for serverName, serverConfig := range m.config.Servers {
		if serverConfig.Disabled {
			continue
		}

		if err := m.initializeServer(ctx, serverName, serverConfig); err != nil {
			m.logger.Warn("failed to initialize MCP server",
				zap.String("server", serverName), zap.Error(err))
			continue
		}
	}

	return nil
}

// initializeServer initializes a single MCP server connection
func (m *MCPManager) initializeServer(ctx context.Context, serverName string, config MCPServerConfig) error {
	if config.Command == "" {
		return fmt.Errorf("no transport configuration found for server %s", serverName)
	}

	t, err := transport.NewStdioClientTransport(config.Command, config.Args)
	if err != nil {
		return fmt.Errorf("failed to create stdio transport: %w", err)
	}

	cli, err := client.NewClient(t, client.WithClientInfo(&protocol.Implementation{
		Name:    "analyticsflow-tool-registry",
		Version: "1.0.0",
	}))
	if err != nil {
		return fmt.Errorf("failed to create MCP client: %w", err)
	}

	m.clients[serverName] = cli
	m.transports[serverName] = t

	if err := m.discoverTools(ctx, serverName, cli); err != nil {
		m.logger.Warn("failed to discover tools",
			zap.String("server", serverName), zap.Error(err))
	}

	return nil
}

// discoverTools discovers available tools from an MCP server
func (m *MCPManager) discoverTools(ctx context.Context, serverName string, cli *client.Client) error {
	toolCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	toolsResponse, err := cli.ListTools(toolCtx)
	if err != nil {
		return fmt.Errorf("failed to list tools: %w", err)
	}

	for _, tool := range toolsResponse.Tools {
		parameters := make(map[string]llm.ToolParam, len(tool.InputSchema.Properties))
		for name, property := range tool.InputSchema.Properties {
			if property == nil {
				continue
			}
			parameters[name] = llm.ToolParam{
				Type:        string(property.Type),
				Description: property.Description,
			}
		}

		m.tools[tool.Name] = mcpTool{
			schema: llm.ToolSchema{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  parameters,
				Required:    tool.InputSchema.Required,
			},
			serverName: serverName,
		}
	}

	return nil
}

// ToolSchemas returns the schemas of all discovered tools
func (m *MCPManager) ToolSchemas() []llm.ToolSchema {
	m.mu.RLock()
	defer m.mu.RUnlock()

	schemas := make([]llm.ToolSchema, 0, len(m.tools))
	for _, tool := range m.tools {
		schemas = append(schemas, tool.schema)
	}
	return schemas
}

// HasTool checks if an MCP tool exists
func (m *MCPManager) HasTool(toolName string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.tools[toolName]
	return exists
}

// ExecuteTool executes an MCP tool call. Failures come back as error-flagged
// results so the calling sub-agent can report them to the model.
func (m *MCPManager) ExecuteTool(ctx context.Context, toolCall llm.ToolCall) llm.ToolResult {
	m.mu.RLock()
	tool, exists := m.tools[toolCall.Name]
	m.mu.RUnlock()

	if !exists {
		return llm.ToolResult{
			ID:      toolCall.ID,
			Name:    toolCall.Name,
			Content: fmt.Sprintf("MCP tool %q not found", toolCall.Name),
			IsError: true,
		}
	}

	m.mu.RLock()
	targetClient, clientExists := m.clients[tool.serverName]
	m.mu.RUnlock()

	if !clientExists {
		return llm.ToolResult{
			ID:      toolCall.ID,
			Name:    toolCall.Name,
			Content: fmt.Sprintf("MCP client for server %q not available", tool.serverName),
			IsError: true,
		}
	}

	request := &protocol.CallToolRequest{
		Name:      toolCall.Name,
		Arguments: toolCall.Args,
	}

	toolCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	result, err := targetClient.CallTool(toolCtx, request)
	if err != nil {
		return llm.ToolResult{
			ID:      toolCall.ID,
			Name:    toolCall.Name,
			Content: fmt.Sprintf("MCP tool execution failed: %v", err),
			IsError: true,
		}
	}

	toolResult := llm.ToolResult{
		ID:      toolCall.ID,
		Name:    toolCall.Name,
		IsError: result.IsError,
	}
	for _, contentItem := range result.Content {
		if textContent, ok := contentItem.(*protocol.TextContent); ok {
			if toolResult.Content != "" {
				toolResult.Content += "\n"
			}
			toolResult.Content += textContent.Text
		}
	}

	return toolResult
}

// Close closes all MCP connections and cleans up resources
func (m *MCPManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for serverName, cli := range m.clients {
		if err := cli.Close(); err != nil {
			m.logger.Warn("failed to close MCP client",
				zap.String("server", serverName), zap.Error(err))
		}
	}

	m.clients = make(map[string]*client.Client)
	m.transports = make(map[string]transport.ClientTransport)
	m.tools = make(map[string]mcpTool)

	return nil
}
