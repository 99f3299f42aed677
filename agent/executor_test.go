package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alt-coder/analyticsflow/flow"
	"github.com/alt-coder/analyticsflow/llm"
	"github.com/alt-coder/analyticsflow/query"
	"github.com/alt-coder/analyticsflow/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubExecutor returns a canned result and records executed queries
type stubExecutor struct {
	result   query.Result
	executed []string
}

func (s *stubExecutor) Execute(ctx context.Context, sqlText string) query.Result {
	s.executed = append(s.executed, sqlText)
	return s.result
}

func newExecutorFixture(t *testing.T, executor query.Executor) (*llm.MockProvider, *ExecutorStage) {
	t.Helper()
	provider := llm.NewMockProvider("test")
	registry := tools.NewRegistry()
	registry.RegisterLocal(SQLTool(executor))
	stage := NewExecutorStage(provider, registry, DefaultPrompts().Executor, 4, zap.NewNop())
	return provider, stage
}

func TestExecutorStage_ToolCallProducesStructuredResults(t *testing.T) {
	executor := &stubExecutor{result: query.Result{
		Success:   true,
		Results:   []map[string]any{{"country": "US", "transactions": float64(100)}},
		TotalRows: 1,
	}}
	provider, stage := newExecutorFixture(t, executor)

	provider.QueueMessage(llm.Message{
		Role: llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{{
			ID:   "call-1",
			Name: SQLToolName,
			Args: map[string]any{"sql": "SELECT country FROM sessions"},
		}},
	})
	provider.QueueMessage(llm.Message{
		Role:    llm.RoleAssistant,
		Content: "| country | transactions |\n|---|---|\n| US | 100 |",
	})

	state := NewWorkflowState("Top countries?", nil)
	state.SQLQuery = "SELECT country FROM sessions"

	update, action, err := stage.Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, flow.ActionNext, action)

	update.Apply(state)
	assert.True(t, state.QueryResults.Success)
	assert.Equal(t, int64(1), state.QueryResults.TotalRows)
	require.Len(t, state.QueryResults.Results, 1)
	assert.Equal(t, "US", state.QueryResults.Results[0]["country"])
	assert.Contains(t, state.QueryResults.Output, "| US | 100 |")

	// The tool executed the SQL the model chose
	require.Len(t, executor.executed, 1)
	assert.Equal(t, "SELECT country FROM sessions", executor.executed[0])

	// The SQL tool schema was offered on every call
	require.NotEmpty(t, provider.CallTools(0))
	assert.Equal(t, SQLToolName, provider.CallTools(0)[0].Name)
}

func TestExecutorStage_NoToolCallKeepsTextOnly(t *testing.T) {
	executor := &stubExecutor{}
	provider, stage := newExecutorFixture(t, executor)
	provider.SetResponses("This query looks malformed; I did not execute it.")

	state := NewWorkflowState("Top countries?", nil)
	state.SQLQuery = "SELEC broken"

	update, _, err := stage.Run(context.Background(), state)
	require.NoError(t, err)

	update.Apply(state)
	assert.False(t, state.QueryResults.Success)
	assert.Empty(t, state.QueryResults.Results)
	assert.Equal(t, "This query looks malformed; I did not execute it.", state.QueryResults.Output)
	assert.Empty(t, executor.executed)
	assert.Equal(t, 1, provider.GetCallCount())
}

func TestExecutorStage_FailedQuerySurfacesError(t *testing.T) {
	executor := &stubExecutor{result: query.Result{
		Success: false,
		Error:   "forbidden operation: drop",
	}}
	provider, stage := newExecutorFixture(t, executor)

	provider.QueueMessage(llm.Message{
		Role: llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{{
			ID:   "call-1",
			Name: SQLToolName,
			Args: map[string]any{"sql": "DROP TABLE sessions"},
		}},
	})
	provider.QueueMessage(llm.Message{
		Role:    llm.RoleAssistant,
		Content: "The query was rejected.",
	})

	state := NewWorkflowState("Remove the table", nil)
	state.SQLQuery = "DROP TABLE sessions"

	update, _, err := stage.Run(context.Background(), state)
	require.NoError(t, err)

	update.Apply(state)
	assert.False(t, state.QueryResults.Success)
	assert.Equal(t, "forbidden operation: drop", state.QueryResults.Error)
}

func TestExecutorStage_ToolLoopBounded(t *testing.T) {
	executor := &stubExecutor{result: query.Result{Success: true}}
	provider := llm.NewMockProvider("test")
	registry := tools.NewRegistry()
	registry.RegisterLocal(SQLTool(executor))
	stage := NewExecutorStage(provider, registry, DefaultPrompts().Executor, 3, zap.NewNop())

	// The script holds on its last message, so the model asks for the tool
	// forever; the loop must stop at maxToolSteps.
	provider.QueueMessage(llm.Message{
		Role: llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{{
			ID:   "call-1",
			Name: SQLToolName,
			Args: map[string]any{"sql": "SELECT 1"},
		}},
	})

	state := NewWorkflowState("loop", nil)
	state.SQLQuery = "SELECT 1"

	_, _, err := stage.Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, 3, provider.GetCallCount())
	assert.Len(t, executor.executed, 3)
}

func TestExecutorStage_RepeatRunsYieldIdenticalResults(t *testing.T) {
	run := func() QueryResults {
		executor := &stubExecutor{result: query.Result{
			Success:   true,
			Results:   []map[string]any{{"country": "US", "transactions": float64(100)}},
			TotalRows: 1,
		}}
		provider, stage := newExecutorFixture(t, executor)
		provider.QueueMessage(llm.Message{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{{
				ID:   "call-1",
				Name: SQLToolName,
				Args: map[string]any{"sql": "SELECT country FROM sessions"},
			}},
		})
		provider.QueueMessage(llm.Message{Role: llm.RoleAssistant, Content: "1 row returned."})

		state := NewWorkflowState("Top countries?", nil)
		state.SQLQuery = "SELECT country FROM sessions"

		update, _, err := stage.Run(context.Background(), state)
		require.NoError(t, err)
		update.Apply(state)
		return state.QueryResults
	}

	first := run()
	second := run()
	assert.Equal(t, first, second)
}

func TestSQLTool_EncodesResultAsJSON(t *testing.T) {
	executor := &stubExecutor{result: query.Result{
		Success:   true,
		Results:   []map[string]any{{"n": float64(1)}},
		TotalRows: 1,
	}}
	tool := SQLTool(executor)

	content, isError := tool.Handler(context.Background(), map[string]any{"sql": "SELECT 1"})
	assert.False(t, isError)

	var decoded query.Result
	require.NoError(t, json.Unmarshal([]byte(content), &decoded))
	assert.True(t, decoded.Success)
	assert.Equal(t, int64(1), decoded.TotalRows)
}

func TestSQLTool_FailureFlagsError(t *testing.T) {
	executor := &stubExecutor{result: query.Result{Success: false, Error: "syntax error"}}
	tool := SQLTool(executor)

	content, isError := tool.Handler(context.Background(), map[string]any{"sql": "SELEC"})
	assert.True(t, isError)
	assert.Contains(t, content, "syntax error")
}
