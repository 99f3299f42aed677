// Package tools manages the callable tools offered to tool-calling
// sub-agents: locally registered handlers plus, optionally, tools discovered
// from MCP servers.
package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/alt-coder/analyticsflow/llm"
)

// Handler executes a local tool call and returns its textual output.
// isError marks tool-level failures that should flow back to the model as
// results rather than abort the run.
type Handler func(ctx context.Context, args map[string]any) (content string, isError bool)

// LocalTool pairs a tool schema with its in-process handler
type LocalTool struct {
	Schema  llm.ToolSchema
	Handler Handler
}

// Registry resolves tool calls against local tools first, then any attached
// MCP manager. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	local map[string]LocalTool
	mcp   *MCPManager
}

// NewRegistry creates an empty tool registry
func NewRegistry() *Registry {
	return &Registry{local: make(map[string]LocalTool)}
}

// RegisterLocal adds or replaces an in-process tool
func (r *Registry) RegisterLocal(tool LocalTool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local[tool.Schema.Name] = tool
}

// AttachMCP makes the tools of an initialized MCP manager callable through
// this registry. Local tools shadow MCP tools with the same name.
func (r *Registry) AttachMCP(manager *MCPManager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mcp = manager
}

// Schemas returns the schemas of every callable tool
func (r *Registry) Schemas() []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]llm.ToolSchema, 0, len(r.local))
	for _, tool := range r.local {
		schemas = append(schemas, tool.Schema)
	}
	if r.mcp != nil {
		for _, schema := range r.mcp.ToolSchemas() {
			if _, shadowed := r.local[schema.Name]; !shadowed {
				schemas = append(schemas, schema)
			}
		}
	}
	return schemas
}

// Execute dispatches a tool call and always returns a result value; unknown
// tools produce an error-flagged result, not a Go error.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	r.mu.RLock()
	tool, isLocal := r.local[call.Name]
	manager := r.mcp
	r.mu.RUnlock()

	if isLocal {
		content, isError := tool.Handler(ctx, call.Args)
		return llm.ToolResult{ID: call.ID, Name: call.Name, Content: content, IsError: isError}
	}

	if manager != nil && manager.HasTool(call.Name) {
		return manager.ExecuteTool(ctx, call)
	}

	return llm.ToolResult{
		ID:      call.ID,
		Name:    call.Name,
		Content: fmt.Sprintf("tool %q not found", call.Name),
		IsError: true,
	}
}
