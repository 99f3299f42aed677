package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alt-coder/analyticsflow/llm"
	"github.com/sashabaranov/go-openai"
)

// OpenAIClient implements the llm.Provider interface for OpenAI-compatible models
type OpenAIClient struct {
	client *openai.Client
	config *Config

	// Rate limiting
	rateLimiter *time.Ticker
	tokens      chan struct{}
}

// CallLLM implements the generic interface, converting messages internally
func (c *OpenAIClient) CallLLM(ctx context.Context, messages []llm.Message, tools ...llm.ToolSchema) (llm.Message, error) {
	result := llm.Message{}
	if len(messages) == 0 {
		return result, fmt.Errorf("no messages to send")
	}

	// Apply rate limiting if enabled
	if c.tokens != nil {
		select {
		case <-c.tokens:
			// Token acquired, proceed with request
		case <-ctx.Done():
			return result, ctx.Err()
		}
	}

	openaiMessages, err := convertToOpenAIMessages(messages)
	if err != nil {
		return result, fmt.Errorf("failed to convert messages: %w", err)
	}

	request := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    openaiMessages,
		Temperature: c.config.Temperature,
	}
	if c.config.MaxTokens > 0 {
		request.MaxTokens = c.config.MaxTokens
	}
	for _, tool := range tools {
		request.Tools = append(request.Tools, openai.Tool{
			Type:     openai.ToolTypeFunction,
			Function: convertToolSchema(tool),
		})
	}

	// Make API call with retries
	var response openai.ChatCompletionResponse
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		response, lastErr = c.client.CreateChatCompletion(ctx, request)
		if lastErr == nil {
			break
		}

		if attempt < c.config.MaxRetries {
			// Wait before retry with linear backoff
			waitTime := time.Duration(attempt+1) * time.Second
			select {
			case <-time.After(waitTime):
				continue
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}

	if lastErr != nil {
		return result, fmt.Errorf("failed after %d retries: %w", c.config.MaxRetries, lastErr)
	}

	if len(response.Choices) == 0 {
		return result, fmt.Errorf("no choices returned from OpenAI API")
	}

	choice := response.Choices[0]
	result.Role = llm.RoleAssistant
	result.Content = choice.Message.Content

	for _, toolCall := range choice.Message.ToolCalls {
		if toolCall.Type != openai.ToolTypeFunction {
			continue
		}
		var args map[string]any
		if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
			return result, fmt.Errorf("failed to parse tool arguments: %w", err)
		}
		result.ToolCalls = append(result.ToolCalls, llm.ToolCall{
			ID:   toolCall.ID,
			Name: toolCall.Function.Name,
			Args: args,
		})
	}

	return result, nil
}

// convertToOpenAIMessages converts generic messages to OpenAI format
func convertToOpenAIMessages(messages []llm.Message) ([]openai.ChatCompletionMessage, error) {
	var openaiMessages []openai.ChatCompletionMessage

	for _, msg := range messages {
		openaiMsg := openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}

		for _, toolCall := range msg.ToolCalls {
			args, err := json.Marshal(toolCall.Args)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal tool arguments: %w", err)
			}
			openaiMsg.ToolCalls = append(openaiMsg.ToolCalls, openai.ToolCall{
				ID:   toolCall.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      toolCall.Name,
					Arguments: string(args),
				},
			})
		}

		openaiMessages = append(openaiMessages, openaiMsg)

		// Tool results follow their originating assistant message as
		// dedicated tool-role messages.
		for _, toolResult := range msg.ToolResults {
			openaiMessages = append(openaiMessages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    toolResult.Content,
				ToolCallID: toolResult.ID,
			})
		}
	}

	return openaiMessages, nil
}

// convertToolSchema converts a generic tool schema to an OpenAI function definition
func convertToolSchema(tool llm.ToolSchema) *openai.FunctionDefinition {
	properties := make(map[string]any, len(tool.Parameters))
	for name, param := range tool.Parameters {
		properties[name] = map[string]any{
			"type":        param.Type,
			"description": param.Description,
		}
	}

	return &openai.FunctionDefinition{
		Name:        tool.Name,
		Description: tool.Description,
		Parameters: map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   tool.Required,
		},
	}
}

// GetName returns the provider name
func (c *OpenAIClient) GetName() string {
	return "openai"
}

// NewOpenAIClient creates a new OpenAI client with the provided configuration
func NewOpenAIClient(config *Config) (*OpenAIClient, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.OrgID != "" {
		clientConfig.OrgID = config.OrgID
	}

	client := &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}

	// Initialize rate limiter only if rate limiting is enabled
	if config.RateLimit > 0 {
		tokens := make(chan struct{}, config.RateLimit)
		rateLimiter := time.NewTicker(config.RateLimitInterval / time.Duration(config.RateLimit))

		// Fill initial tokens
		for i := 0; i < config.RateLimit; i++ {
			tokens <- struct{}{}
		}

		client.rateLimiter = rateLimiter
		client.tokens = tokens

		go client.refillTokens()
	}

	return client, nil
}

// NewOpenAIClientFromEnv creates a new OpenAI client using environment variables
func NewOpenAIClientFromEnv() (*OpenAIClient, error) {
	config, err := NewConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from environment: %w", err)
	}

	return NewOpenAIClient(config)
}

// refillTokens runs in a goroutine to refill the token bucket at the configured rate
func (c *OpenAIClient) refillTokens() {
	for range c.rateLimiter.C {
		select {
		case c.tokens <- struct{}{}:
			// Token added successfully
		default:
			// Token bucket is full, skip
		}
	}
}

// Close stops the rate limiter and cleans up resources
func (c *OpenAIClient) Close() {
	if c.rateLimiter != nil {
		c.rateLimiter.Stop()
	}
}
