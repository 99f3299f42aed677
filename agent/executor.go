package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alt-coder/analyticsflow/flow"
	"github.com/alt-coder/analyticsflow/llm"
	"github.com/alt-coder/analyticsflow/query"
	"github.com/alt-coder/analyticsflow/tools"
	"go.uber.org/zap"
)

// SQLToolName is the name of the query execution tool offered to the
// executor sub-agent.
const SQLToolName = "execute_sql"

// SQLTool wraps a query.Executor as a registry tool. The structured result
// is serialized to JSON so it round-trips through the model as text.
func SQLTool(executor query.Executor) tools.LocalTool {
	return tools.LocalTool{
		Schema: llm.ToolSchema{
			Name:        SQLToolName,
			Description: "Execute a read-only SQL query against the analytics dataset and return the rows as JSON.",
			Parameters: map[string]llm.ToolParam{
				"sql": {Type: "string", Description: "The SQL query to execute"},
			},
			Required: []string{"sql"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, bool) {
			sqlText, _ := args["sql"].(string)
			result := executor.Execute(ctx, sqlText)
			payload, err := json.Marshal(result)
			if err != nil {
				return fmt.Sprintf("failed to encode query result: %v", err), true
			}
			return string(payload), !result.Success
		},
	}
}

// ExecutorStage runs the generated SQL through a tool-calling sub-agent. The
// model owns the decision to invoke the tool; when it declines, QueryResults
// carries only its textual output. Re-running the stage with the same query
// and a deterministic executor yields the same results.
type ExecutorStage struct {
	provider     llm.Provider
	registry     *tools.Registry
	prompt       string
	maxToolSteps int
	logger       *zap.Logger
}

// NewExecutorStage creates the execution stage. maxToolSteps bounds the
// sub-agent's call loop; <= 0 defaults to 4.
func NewExecutorStage(provider llm.Provider, registry *tools.Registry, prompt string, maxToolSteps int, logger *zap.Logger) *ExecutorStage {
	if maxToolSteps <= 0 {
		maxToolSteps = 4
	}
	return &ExecutorStage{
		provider:     provider,
		registry:     registry,
		prompt:       prompt,
		maxToolSteps: maxToolSteps,
		logger:       logger,
	}
}

func (s *ExecutorStage) Name() string { return StageExecutor }

func (s *ExecutorStage) Run(ctx context.Context, state *WorkflowState) (flow.Update[WorkflowState], flow.Action, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: s.prompt},
		{Role: llm.RoleUser, Content: state.SQLQuery},
	}
	schemas := s.registry.Schemas()

	var (
		results   QueryResults
		toolRan   bool
		lastReply llm.Message
	)

	for step := 0; step < s.maxToolSteps; step++ {
		response, err := s.provider.CallLLM(ctx, messages, schemas...)
		if err != nil {
			return nil, "", fmt.Errorf("execution model call failed: %w", err)
		}
		lastReply = response

		if len(response.ToolCalls) == 0 {
			break
		}

		for _, call := range response.ToolCalls {
			toolResult := s.registry.Execute(ctx, call)
			response.ToolResults = append(response.ToolResults, toolResult)

			if call.Name == SQLToolName {
				toolRan = true
				results = decodeToolPayload(toolResult)
			}
		}
		messages = append(messages, response)
	}

	results.Output = lastReply.Content
	if !toolRan {
		s.logger.Warn("execution sub-agent did not invoke the SQL tool")
	}
	s.logger.Info("executed query",
		zap.Bool("success", results.Success),
		zap.Int64("total_rows", results.TotalRows))

	reportMessage := llm.Message{Role: llm.RoleAssistant, Content: lastReply.Content}
	return &ExecuteUpdate{Results: results, Message: reportMessage}, flow.ActionNext, nil
}

// decodeToolPayload recovers the structured query result from the tool's
// JSON payload. An undecodable payload degrades to an error result rather
// than failing the stage.
func decodeToolPayload(toolResult llm.ToolResult) QueryResults {
	var decoded query.Result
	if err := json.Unmarshal([]byte(toolResult.Content), &decoded); err != nil {
		return QueryResults{Success: false, Error: toolResult.Content}
	}
	return QueryResults{
		Success:   decoded.Success,
		Results:   decoded.Results,
		TotalRows: decoded.TotalRows,
		Error:     decoded.Error,
	}
}
