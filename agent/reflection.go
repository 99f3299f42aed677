package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alt-coder/analyticsflow/flow"
	"github.com/alt-coder/analyticsflow/llm"
	"go.uber.org/zap"
)

// ReflectionStage judges whether the execution results answer the question.
// A RETRY verdict routes back to the generator with textual feedback; the
// retry budget is bounded by maxRetries, after which the run proceeds with
// the results it has.
type ReflectionStage struct {
	provider   llm.Provider
	prompt     string
	maxRetries int
	logger     *zap.Logger
}

// NewReflectionStage creates the reflection stage. maxRetries is the number
// of regeneration attempts allowed beyond the first; < 0 means unbounded.
func NewReflectionStage(provider llm.Provider, prompt string, maxRetries int, logger *zap.Logger) *ReflectionStage {
	return &ReflectionStage{
		provider:   provider,
		prompt:     prompt,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

func (s *ReflectionStage) Name() string { return StageReflection }

func (s *ReflectionStage) Run(ctx context.Context, state *WorkflowState) (flow.Update[WorkflowState], flow.Action, error) {
	userContent := fmt.Sprintf(`Original question: %s

SQL query executed:
%s

Execution results:
%s

Did these results properly answer the question?`,
		state.Question, state.SQLQuery, formatResults(state.QueryResults))

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: s.prompt},
		{Role: llm.RoleUser, Content: userContent},
	}

	response, err := s.provider.CallLLM(ctx, messages)
	if err != nil {
		return nil, "", fmt.Errorf("reflection model call failed: %w", err)
	}

	decision, feedback := DecodeReflection(response.Content)
	s.logger.Info("reflection verdict", zap.String("decision", string(decision)))

	if decision == DecisionRetry && s.maxRetries >= 0 && state.SQLAttempts > s.maxRetries {
		// Retry budget exhausted: proceed with what we have
		s.logger.Warn("retry budget exhausted, proceeding with current results",
			zap.Int("attempts", state.SQLAttempts))
		decision = DecisionPass
		feedback = ""
	}

	update := &ReflectUpdate{Decision: decision, Feedback: feedback, Message: response}
	if decision == DecisionRetry {
		return update, flow.ActionRetry, nil
	}
	return update, ActionPass, nil
}

// formatResults renders results compactly for the judgment prompt: row count
// plus a sample of at most five rows instead of the full payload.
func formatResults(results QueryResults) string {
	if len(results.Results) > 0 {
		sample := results.Results
		if len(sample) > 5 {
			sample = sample[:5]
		}
		encoded, err := json.Marshal(sample)
		if err != nil {
			encoded = []byte("[]")
		}
		return fmt.Sprintf("Total results: %d\nSample: %s", len(results.Results), encoded)
	}

	encoded, err := json.Marshal(results)
	if err != nil {
		return results.Error
	}
	return string(encoded)
}
