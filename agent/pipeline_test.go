package agent

import (
	"context"
	"encoding/json"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/alt-coder/analyticsflow/flow"
	"github.com/alt-coder/analyticsflow/llm"
	"github.com/alt-coder/analyticsflow/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingStore captures checkpoint saves for assertions
type recordingStore struct {
	mu     sync.Mutex
	saved  map[string][]byte
	loaded int
}

func newRecordingStore() *recordingStore {
	return &recordingStore{saved: make(map[string][]byte)}
}

func (s *recordingStore) Save(ctx context.Context, runID string, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[runID] = state
	return nil
}

func (s *recordingStore) Load(ctx context.Context, runID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded++
	return s.saved[runID], nil
}

func (s *recordingStore) Delete(ctx context.Context, runID string) error { return nil }

func newTestPipeline(t *testing.T, provider llm.Provider, opts func(*Config)) *Pipeline {
	t.Helper()
	cfg := Config{
		Provider: provider,
		Executor: &stubExecutor{result: query.Result{Success: true}},
		Dataset:  "analytics_sample",
	}
	if opts != nil {
		opts(&cfg)
	}
	pipeline, err := NewPipeline(cfg)
	require.NoError(t, err)
	return pipeline
}

func TestNewPipeline_RequiresProviderAndExecutor(t *testing.T) {
	_, err := NewPipeline(Config{Executor: &stubExecutor{}})
	assert.ErrorContains(t, err, "provider")

	_, err = NewPipeline(Config{Provider: llm.NewMockProvider("test")})
	assert.ErrorContains(t, err, "executor")
}

func TestPipelineRunQuery_AnalyticsPath(t *testing.T) {
	executor := &stubExecutor{result: query.Result{
		Success: true,
		Results: []map[string]any{
			{"country": "US", "transactions": float64(100)},
			{"country": "UK", "transactions": float64(50)},
		},
		TotalRows: 2,
	}}

	provider := llm.NewMockProvider("test")
	provider.SetResponses("analytics_query: true")
	provider.QueueMessage(llm.Message{Role: llm.RoleAssistant,
		Content: "SELECT country, SUM(transactions) AS transactions FROM sessions GROUP BY country ORDER BY transactions DESC LIMIT 5"})
	provider.QueueMessage(llm.Message{Role: llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{{ID: "call-1", Name: SQLToolName,
			Args: map[string]any{"sql": "SELECT country, SUM(transactions) AS transactions FROM sessions GROUP BY country ORDER BY transactions DESC LIMIT 5"}}}})
	provider.QueueMessage(llm.Message{Role: llm.RoleAssistant,
		Content: "The query returned 2 rows."})
	provider.QueueMessage(llm.Message{Role: llm.RoleAssistant, Content: "DECISION: PASS"})
	provider.QueueMessage(llm.Message{Role: llm.RoleAssistant,
		Content: "```json\n{\"chart_type\": \"bar\", \"title\": \"Top Countries by Transactions\"}\n```"})
	provider.QueueMessage(llm.Message{Role: llm.RoleAssistant,
		Content: "The US leads with 100 transactions, followed by the UK with 50."})

	pipeline := newTestPipeline(t, provider, func(cfg *Config) {
		cfg.Executor = executor
	})

	answer, err := pipeline.RunQuery(context.Background(), "What are the top 5 countries by total transactions?", nil)
	require.NoError(t, err)
	assert.Equal(t, "The US leads with 100 transactions, followed by the UK with 50.", answer)

	// router, generator, executor x2 (tool call + report), reflection,
	// visualizer, explainer
	assert.Equal(t, 7, provider.GetCallCount())
	require.Len(t, executor.executed, 1)
}

func TestPipelineRunQuery_GeneralShortCircuit(t *testing.T) {
	executor := &stubExecutor{}
	provider := llm.NewMockProvider("test")
	provider.SetResponses("Hello! I can answer questions about your analytics data.\nanalytics_query: false")

	pipeline := newTestPipeline(t, provider, func(cfg *Config) {
		cfg.Executor = executor
	})

	answer, err := pipeline.RunQuery(context.Background(), "Hi there!", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello! I can answer questions about your analytics data.", answer)

	// Only the router ran; no SQL was generated or executed
	assert.Equal(t, 1, provider.GetCallCount())
	assert.Empty(t, executor.executed)
}

func TestPipelineRunQuery_RetryBudgetExhausted(t *testing.T) {
	provider := llm.NewMockProvider("test")
	provider.SetResponses(
		"analytics_query: true",
		"SELECT city FROM sessions",                // first attempt
		"No rows returned.",                        // executor declines the tool
		"DECISION: RETRY\nGroup by country instead.", // first verdict
		"SELECT country FROM sessions",             // second attempt
		"No rows returned.",                        // executor again
		"DECISION: RETRY\nStill not right.",        // budget now exhausted
		"```json\n{\"chart_type\": \"table\", \"title\": \"Results\"}\n```",
		"The query did not produce usable results.",
	)

	retries := 1
	pipeline := newTestPipeline(t, provider, func(cfg *Config) {
		cfg.MaxSQLRetries = &retries
	})

	answer, err := pipeline.RunQuery(context.Background(), "Top countries?", nil)
	require.NoError(t, err)
	assert.Equal(t, "The query did not produce usable results.", answer)
	assert.Equal(t, 9, provider.GetCallCount())

	// The second generator call received the first verdict's feedback
	messages := provider.CallMessages(4)
	require.Len(t, messages, 2)
	assert.Contains(t, messages[1].Content, "Group by country instead.")
}

func TestPipelineRunQuery_ZeroRetriesForcesImmediatePass(t *testing.T) {
	provider := llm.NewMockProvider("test")
	provider.SetResponses(
		"analytics_query: true",
		"SELECT city FROM sessions",
		"No rows returned.",
		"DECISION: RETRY\nGroup by country instead.",
		"```json\n{\"chart_type\": \"table\", \"title\": \"Results\"}\n```",
		"The query did not produce usable results.",
	)

	retries := 0
	pipeline := newTestPipeline(t, provider, func(cfg *Config) {
		cfg.MaxSQLRetries = &retries
	})

	answer, err := pipeline.RunQuery(context.Background(), "Top countries?", nil)
	require.NoError(t, err)
	assert.Equal(t, "The query did not produce usable results.", answer)

	// The first RETRY verdict is downgraded; the generator never runs twice
	assert.Equal(t, 6, provider.GetCallCount())
}

func TestPipelineRunQuery_StageErrorPropagates(t *testing.T) {
	provider := llm.NewMockProvider("test")
	provider.SetError(true, "model unavailable")

	pipeline := newTestPipeline(t, provider, nil)

	_, err := pipeline.RunQuery(context.Background(), "Top countries?", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
	assert.Contains(t, err.Error(), StageRouter)
}

func TestPipelineStreamQuery_EventsInStageOrder(t *testing.T) {
	provider := llm.NewMockProvider("test")
	provider.SetResponses(
		"analytics_query: true",
		"SELECT country FROM sessions",
		"Done.",
		"DECISION: PASS",
		"```json\n{\"chart_type\": \"bar\", \"title\": \"Countries\"}\n```",
		"Here is the analysis.",
	)

	pipeline := newTestPipeline(t, provider, nil)

	var nodes []string
	var answer string
	for event := range pipeline.StreamQuery(context.Background(), "Top countries?", nil) {
		require.Equal(t, flow.EventUpdate, event.Type)
		nodes = append(nodes, event.Node)
		if update, ok := event.Update.(*ExplainUpdate); ok {
			answer = update.Message.Content
		}
	}

	expected := []string{
		StageRouter, StageGenerator, StageExecutor,
		StageReflection, StageVisualizer, StageExplainer,
	}
	assert.Equal(t, expected, nodes)
	assert.Equal(t, "Here is the analysis.", answer)
}

func TestPipelineStreamQuery_ErrorEventTerminatesStream(t *testing.T) {
	provider := llm.NewMockProvider("test")
	provider.SetError(true, "stream failure")
	pipeline := newTestPipeline(t, provider, nil)

	var sawError bool
	for event := range pipeline.StreamQuery(context.Background(), "Top countries?", nil) {
		if event.Type == flow.EventError {
			sawError = true
			assert.ErrorContains(t, event.Err, "stream failure")
		}
	}
	assert.True(t, sawError)
}

func TestPipelineStreamQuery_CancelAndAbandonReleasesGoroutines(t *testing.T) {
	provider := llm.NewMockProvider("test")
	provider.SetResponses(
		"analytics_query: true",
		"SELECT country FROM sessions",
		"Done.",
		"DECISION: PASS",
		"```json\n{\"chart_type\": \"bar\", \"title\": \"Countries\"}\n```",
		"Here is the analysis.",
	)

	pipeline := newTestPipeline(t, provider, nil)
	baseline := runtime.NumGoroutine()

	ctx, cancel := context.WithCancel(context.Background())
	events := pipeline.StreamQuery(ctx, "Top countries?", nil)

	// Read one event, then cancel and walk away without draining
	<-events
	cancel()

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline
	}, 2*time.Second, 10*time.Millisecond,
		"forwarding goroutine still running after cancel")
}

func TestPipelineRunQuery_SavesCheckpoint(t *testing.T) {
	store := newRecordingStore()
	provider := llm.NewMockProvider("test")
	provider.SetResponses("Hi!\nanalytics_query: false")

	pipeline := newTestPipeline(t, provider, func(cfg *Config) {
		cfg.Checkpoints = store
	})

	_, err := pipeline.RunQuery(context.Background(), "Hello", nil)
	require.NoError(t, err)

	require.Len(t, store.saved, 1)
	for runID, payload := range store.saved {
		var state WorkflowState
		require.NoError(t, json.Unmarshal(payload, &state))
		assert.Equal(t, runID, state.RunID)
		assert.Equal(t, "Hello", state.Question)
		assert.True(t, state.Routed)
	}
}

func TestPipelineStreamQuery_SavesCheckpointAfterCompletion(t *testing.T) {
	store := newRecordingStore()
	provider := llm.NewMockProvider("test")
	provider.SetResponses("Hi!\nanalytics_query: false")

	pipeline := newTestPipeline(t, provider, func(cfg *Config) {
		cfg.Checkpoints = store
	})

	for range pipeline.StreamQuery(context.Background(), "Hello", nil) {
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.saved, 1)
}
