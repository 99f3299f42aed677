package gemini

import (
	"context"
	"fmt"
	"time"

	"github.com/alt-coder/analyticsflow/llm"
	"google.golang.org/genai"
)

// GeminiClient implements the llm.Provider interface for Google's Gemini models
type GeminiClient struct {
	genaiClient *genai.Client
	config      *Config

	// Rate limiting
	rateLimiter *time.Ticker
	tokens      chan struct{}
}

// CallLLM implements the generic interface, converting messages internally
func (c *GeminiClient) CallLLM(ctx context.Context, messages []llm.Message, tools ...llm.ToolSchema) (llm.Message, error) {
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

	genaiMessages, genConfig := c.convertToGenaiMessages(messages)
	genConfig.Temperature = genai.Ptr(c.config.Temperature)

	if len(tools) > 0 {
		genConfig.Tools = []*genai.Tool{{FunctionDeclarations: convertToolSchemas(tools)}}
	}

	response, err := c.genaiClient.Models.GenerateContent(ctx, c.config.Model, genaiMessages, genConfig)
	if err != nil {
		return llm.Message{}, fmt.Errorf("failed to generate content: %w", err)
	}

	for _, functionCall := range response.FunctionCalls() {
		result.ToolCalls = append(result.ToolCalls, llm.ToolCall{
			ID:   functionCall.ID,
			Name: functionCall.Name,
			Args: functionCall.Args,
		})
	}
	result.Role = llm.RoleAssistant
	result.Content = response.Text()
	return result, nil
}

// convertToGenaiMessages converts generic messages to Gemini format. System
// messages become the request's system instruction rather than chat turns.
func (c *GeminiClient) convertToGenaiMessages(messages []llm.Message) ([]*genai.Content, *genai.GenerateContentConfig) {
	var genaiMessages []*genai.Content
	genConfig := &genai.GenerateContentConfig{}

	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			genConfig.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: msg.Content}},
			}
			continue
		}

		content := &genai.Content{Role: getRole(msg.Role)}
		if msg.Content != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
		}
		for _, call := range msg.ToolCalls {
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   call.ID,
					Name: call.Name,
					Args: call.Args,
				},
			})
		}
		if len(content.Parts) > 0 {
			genaiMessages = append(genaiMessages, content)
		}

		// Function responses must follow the model's function-call turn
		// as a separate user-role turn.
		if len(msg.ToolResults) > 0 {
			reply := &genai.Content{Role: genai.RoleUser}
			for _, toolResult := range msg.ToolResults {
				reply.Parts = append(reply.Parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						ID:       toolResult.ID,
						Name:     toolResult.Name,
						Response: map[string]any{"output": toolResult.Content, "is_error": toolResult.IsError},
					},
				})
			}
			genaiMessages = append(genaiMessages, reply)
		}
	}

	return genaiMessages, genConfig
}

// convertToolSchemas converts generic tool schemas to Gemini function declarations
func convertToolSchemas(tools []llm.ToolSchema) []*genai.FunctionDeclaration {
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		properties := make(map[string]*genai.Schema, len(tool.Parameters))
		for name, param := range tool.Parameters {
			properties[name] = &genai.Schema{
				Type:        getSchemaType(param.Type),
				Description: param.Description,
			}
		}
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   tool.Required,
			},
		})
	}
	return declarations
}

func getSchemaType(paramType string) genai.Type {
	switch paramType {
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

func getRole(role string) string {
	switch role {
	case llm.RoleUser:
		return genai.RoleUser
	case llm.RoleAssistant:
		return genai.RoleModel
	default:
		return genai.RoleUser
	}
}

// GetName returns the provider name
func (c *GeminiClient) GetName() string {
	return "gemini"
}

// NewGeminiClient creates a new Gemini client with the provided configuration
func NewGeminiClient(ctx context.Context, config *Config) (*GeminiClient, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: config.Backend,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	client := &GeminiClient{
		genaiClient: genaiClient,
		config:      config,
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

// NewGeminiClientFromEnv creates a new Gemini client using environment variables
func NewGeminiClientFromEnv(ctx context.Context) (*GeminiClient, error) {
	config, err := NewConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from environment: %w", err)
	}

	return NewGeminiClient(ctx, config)
}

// refillTokens runs in a goroutine to refill the token bucket at the configured rate
func (c *GeminiClient) refillTokens() {
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
func (c *GeminiClient) Close() {
	if c.rateLimiter != nil {
		c.rateLimiter.Stop()
	}
}
