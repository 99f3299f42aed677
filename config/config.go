// Package config loads workflow configuration from a YAML file with
// environment overrides. Every field has a default, so an empty file (or no
// file at all) yields a runnable configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/alt-coder/analyticsflow/tools"
	"gopkg.in/yaml.v3"
)

// Config is the complete configuration for the analytics workflow
type Config struct {
	LLM        *LLMConfig        `yaml:"llm"`
	Query      *QueryConfig      `yaml:"query"`
	Workflow   *WorkflowConfig   `yaml:"workflow"`
	MCP        *tools.MCPConfig  `yaml:"mcp"`
	Checkpoint *CheckpointConfig `yaml:"checkpoint"`

	// ExampleQueries groups suggested questions by category, for display
	// in chat frontends
	ExampleQueries map[string][]string `yaml:"example_queries"`
}

// LLMConfig selects and tunes the model provider
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // "gemini" or "openai"
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	Temperature float32 `yaml:"temperature"`
}

// QueryConfig controls SQL execution and safety
type QueryConfig struct {
	// Dataset names the analytics dataset referenced in generated SQL
	Dataset string `yaml:"dataset"`

	// DatabaseURL is the connection string for the SQL backend
	DatabaseURL string `yaml:"database_url"`

	// MaxRows caps rows returned to the model per query
	MaxRows int `yaml:"max_rows"`

	// ForbiddenKeywords rejects queries containing any of these as whole
	// words, checked in order
	ForbiddenKeywords []string `yaml:"forbidden_keywords"`
}

// WorkflowConfig tunes the stage graph
type WorkflowConfig struct {
	HistoryWindow int `yaml:"history_window"`
	MaxSQLRetries int `yaml:"max_sql_retries"`
	MaxToolSteps  int `yaml:"max_tool_steps"`
}

// CheckpointConfig selects run-state persistence
type CheckpointConfig struct {
	// Backend is "memory", "redis", or "none"
	Backend   string        `yaml:"backend"`
	RedisAddr string        `yaml:"redis_addr"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// Load reads a YAML configuration file, applies defaults, and overlays
// environment variables
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)
	applyEnv(&config)
	return &config, nil
}

// LoadFromEnv builds a configuration from defaults and environment variables
// alone, for deployments without a config file
func LoadFromEnv() *Config {
	config := &Config{}
	applyDefaults(config)
	applyEnv(config)
	return config
}

// applyEnv overlays environment variables on the configuration
func applyEnv(config *Config) {
	if provider := os.Getenv("ANALYTICS_PROVIDER"); provider != "" {
		config.LLM.Provider = provider
	}
	if model := os.Getenv("ANALYTICS_MODEL"); model != "" {
		config.LLM.Model = model
	}
	switch config.LLM.Provider {
	case "openai":
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			config.LLM.APIKey = key
		}
	default:
		if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
			config.LLM.APIKey = key
		}
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		config.Query.DatabaseURL = url
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		config.Checkpoint.RedisAddr = addr
		if config.Checkpoint.Backend == "memory" {
			config.Checkpoint.Backend = "redis"
		}
	}
}

// applyDefaults fills zero-valued fields with working defaults
func applyDefaults(config *Config) {
	if config.LLM == nil {
		config.LLM = &LLMConfig{}
	}
	if config.LLM.Provider == "" {
		config.LLM.Provider = "gemini"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "gemini-2.0-flash"
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.2
	}

	if config.Query == nil {
		config.Query = &QueryConfig{}
	}
	if config.Query.Dataset == "" {
		config.Query.Dataset = "bigquery-public-data.google_analytics_sample"
	}
	if config.Query.MaxRows == 0 {
		config.Query.MaxRows = 20
	}
	if len(config.Query.ForbiddenKeywords) == 0 {
		config.Query.ForbiddenKeywords = []string{
			"insert", "update", "delete", "drop", "create", "alter",
			"truncate", "merge", "grant", "revoke", "commit", "rollback",
			"begin", "transaction",
		}
	}

	if config.Workflow == nil {
		config.Workflow = &WorkflowConfig{}
	}
	if config.Workflow.HistoryWindow == 0 {
		config.Workflow.HistoryWindow = 3
	}
	if config.Workflow.MaxSQLRetries == 0 {
		config.Workflow.MaxSQLRetries = 2
	}
	if config.Workflow.MaxToolSteps == 0 {
		config.Workflow.MaxToolSteps = 4
	}

	if config.MCP == nil {
		config.MCP = &tools.MCPConfig{
			Servers: make(map[string]tools.MCPServerConfig),
		}
	}

	if config.Checkpoint == nil {
		config.Checkpoint = &CheckpointConfig{}
	}
	if config.Checkpoint.Backend == "" {
		config.Checkpoint.Backend = "memory"
	}
	if config.Checkpoint.KeyPrefix == "" {
		config.Checkpoint.KeyPrefix = "analyticsflow:run"
	}

	if len(config.ExampleQueries) == 0 {
		config.ExampleQueries = map[string][]string{
			"General Help": {
				"Hello, what can you help me with?",
				"Can you explain how this application works?",
			},
			"Performance Metrics": {
				"What are the top 5 countries by total transactions?",
				"Which traffic sources lead to the highest conversion rates?",
				"Compare revenue from mobile vs desktop users",
				"Which marketing channels have the best ROI?",
				"How do conversion rates vary by geographic region?",
			},
			"User Behavior": {
				"What is the average session duration by device category?",
				"How does user engagement differ between new and returning visitors?",
				"What's the bounce rate by browser type?",
				"Which days of the week have the highest user engagement?",
			},
			"Content & Products": {
				"Show me the monthly trend of pageviews",
				"What are the top search keywords driving traffic to the site?",
			},
		}
	}
}
