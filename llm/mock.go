package llm

import (
	"context"
	"errors"
	"strings"
)

// MockProvider implements the Provider interface for testing purposes.
// It replays scripted responses, supports pattern-based replies and error
// simulation, and records every call for later assertions.
type MockProvider struct {
	name          string
	responses     []Message
	responseIndex int
	simulateError bool
	errorMessage  string
	patterns      map[string]string // substring of last user message -> reply
	calls         [][]Message       // recorded message batches, one per call
	toolSchemas   [][]ToolSchema    // tool schemas supplied on each call
}

// NewMockProvider creates a new mock LLM provider with no scripted responses
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		name:     name,
		patterns: make(map[string]string),
	}
}

// CallLLM simulates an LLM call and returns scripted responses or errors
func (m *MockProvider) CallLLM(ctx context.Context, messages []Message, tools ...ToolSchema) (Message, error) {
	recorded := make([]Message, len(messages))
	copy(recorded, messages)
	m.calls = append(m.calls, recorded)
	m.toolSchemas = append(m.toolSchemas, tools)

	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	if m.simulateError {
		if m.errorMessage != "" {
			return Message{}, errors.New(m.errorMessage)
		}
		return Message{}, errors.New("simulated API error from " + m.name)
	}

	// Pattern replies take priority over the scripted queue
	if len(m.patterns) > 0 && len(messages) > 0 {
		last := messages[len(messages)-1]
		if last.Role == RoleUser {
			input := strings.ToLower(last.Content)
			for pattern, reply := range m.patterns {
				if strings.Contains(input, strings.ToLower(pattern)) {
					return Message{Role: RoleAssistant, Content: reply}, nil
				}
			}
		}
	}

	if len(m.responses) == 0 {
		return Message{Role: RoleAssistant, Content: "mock response from " + m.name}, nil
	}

	response := m.responses[m.responseIndex]
	if m.responseIndex < len(m.responses)-1 {
		// Hold on the last response instead of cycling so repeated
		// calls past the script stay deterministic.
		m.responseIndex++
	}
	return response, nil
}

// GetName returns the mock provider name
func (m *MockProvider) GetName() string {
	return m.name
}

// SetResponses replaces the scripted responses with plain text replies
func (m *MockProvider) SetResponses(responses ...string) {
	m.responses = m.responses[:0]
	for _, r := range responses {
		m.responses = append(m.responses, Message{Role: RoleAssistant, Content: r})
	}
	m.responseIndex = 0
}

// QueueMessage appends a full message (including tool calls) to the script
func (m *MockProvider) QueueMessage(msg Message) {
	m.responses = append(m.responses, msg)
}

// SetError configures the mock to simulate an error on every call
func (m *MockProvider) SetError(shouldError bool, errorMessage string) {
	m.simulateError = shouldError
	m.errorMessage = errorMessage
}

// SetResponsePattern configures replies keyed by substrings of the last user message
func (m *MockProvider) SetResponsePattern(patterns map[string]string) {
	m.patterns = patterns
}

// GetCallCount returns the number of times CallLLM has been called
func (m *MockProvider) GetCallCount() int {
	return len(m.calls)
}

// CallMessages returns the messages recorded for the i-th call
func (m *MockProvider) CallMessages(i int) []Message {
	if i < 0 || i >= len(m.calls) {
		return nil
	}
	return m.calls[i]
}

// CallTools returns the tool schemas supplied on the i-th call
func (m *MockProvider) CallTools(i int) []ToolSchema {
	if i < 0 || i >= len(m.toolSchemas) {
		return nil
	}
	return m.toolSchemas[i]
}

// Reset returns the mock provider to its initial state
func (m *MockProvider) Reset() {
	m.responses = nil
	m.responseIndex = 0
	m.simulateError = false
	m.errorMessage = ""
	m.patterns = make(map[string]string)
	m.calls = nil
	m.toolSchemas = nil
}
