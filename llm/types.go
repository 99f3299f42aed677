package llm

import "context"

// Message represents a generic chat message that can be used across different LLM providers
type Message struct {
	Role        string // "user", "assistant", "system"
	Content     string // The actual message content
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolCall is a function invocation requested by the model
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult carries the outcome of a tool call back to the model
type ToolResult struct {
	ID      string
	Name    string
	Content string
	IsError bool
}

// ToolParam describes a single parameter of a callable tool
type ToolParam struct {
	Type        string // "string", "number", "integer", "boolean"
	Description string
}

// ToolSchema declares a tool the model is allowed to invoke
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]ToolParam
	Required    []string
}

// Provider defines the contract that all LLM implementations must follow
type Provider interface {
	// CallLLM sends messages to the LLM and returns the response. When tool
	// schemas are supplied the model may answer with ToolCalls instead of
	// (or in addition to) plain text content.
	CallLLM(ctx context.Context, messages []Message, tools ...ToolSchema) (Message, error)

	// GetName returns the name/identifier of the LLM provider
	GetName() string
}

const (
	// RoleSystem is used for system-level messages
	RoleSystem = "system"
	// RoleUser is used for user messages
	RoleUser = "user"
	// RoleAssistant is used for assistant messages
	RoleAssistant = "assistant"
)
