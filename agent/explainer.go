package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alt-coder/analyticsflow/flow"
	"github.com/alt-coder/analyticsflow/llm"
	"go.uber.org/zap"
)

// ExplainerStage summarizes the results in natural language. It is the
// terminal stage of the analytics path; its response becomes the answer
// returned to the caller.
type ExplainerStage struct {
	provider      llm.Provider
	prompt        string
	historyWindow int
	logger        *zap.Logger
}

// NewExplainerStage creates the explanation stage
func NewExplainerStage(provider llm.Provider, prompt string, historyWindow int, logger *zap.Logger) *ExplainerStage {
	return &ExplainerStage{
		provider:      provider,
		prompt:        prompt,
		historyWindow: historyWindow,
		logger:        logger,
	}
}

func (s *ExplainerStage) Name() string { return StageExplainer }

func (s *ExplainerStage) Run(ctx context.Context, state *WorkflowState) (flow.Update[WorkflowState], flow.Action, error) {
	resultsJSON, err := json.Marshal(state.QueryResults)
	if err != nil {
		resultsJSON = []byte(state.QueryResults.Output)
	}

	userContent := fmt.Sprintf(`Original question: %s

SQL query used:
%s

Query results:
%s

Please provide a comprehensive analysis of these results. Note if the query results are empty, contain errors, or do not answer the question.`,
		state.Question, state.SQLQuery, resultsJSON)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: withHistory(s.prompt, state.History, s.historyWindow)},
		{Role: llm.RoleUser, Content: userContent},
	}

	response, err := s.provider.CallLLM(ctx, messages)
	if err != nil {
		return nil, "", fmt.Errorf("explanation model call failed: %w", err)
	}

	s.logger.Info("explained results", zap.Int("length", len(response.Content)))
	return &ExplainUpdate{Message: response}, flow.ActionNext, nil
}
