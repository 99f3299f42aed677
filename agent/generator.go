package agent

import (
	"context"
	"fmt"

	"github.com/alt-coder/analyticsflow/flow"
	"github.com/alt-coder/analyticsflow/llm"
	"go.uber.org/zap"
)

// GeneratorStage turns the question into a SQL query. On a retry it embeds
// the reviewer's feedback into the instruction so regeneration is steered by
// concrete critique instead of blind resampling.
type GeneratorStage struct {
	provider      llm.Provider
	prompt        string
	dataset       string
	historyWindow int
	logger        *zap.Logger
}

// NewGeneratorStage creates the SQL generation stage
func NewGeneratorStage(provider llm.Provider, prompt, dataset string, historyWindow int, logger *zap.Logger) *GeneratorStage {
	return &GeneratorStage{
		provider:      provider,
		prompt:        prompt,
		dataset:       dataset,
		historyWindow: historyWindow,
		logger:        logger,
	}
}

func (s *GeneratorStage) Name() string { return StageGenerator }

func (s *GeneratorStage) Run(ctx context.Context, state *WorkflowState) (flow.Update[WorkflowState], flow.Action, error) {
	system := withHistory(withDataset(s.prompt, s.dataset), state.History, s.historyWindow)

	userContent := fmt.Sprintf("Convert this question into a SQL query: %s", state.Question)
	if state.SQLFeedback != "" {
		userContent += fmt.Sprintf("\n\nImportant feedback from the previous SQL execution to incorporate:\n%s", state.SQLFeedback)
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: userContent},
	}

	response, err := s.provider.CallLLM(ctx, messages)
	if err != nil {
		return nil, "", fmt.Errorf("SQL generation model call failed: %w", err)
	}

	s.logger.Info("generated SQL query",
		zap.Int("attempt", state.SQLAttempts+1),
		zap.Bool("with_feedback", state.SQLFeedback != ""))

	return &GenerateUpdate{SQLQuery: response.Content, Message: response}, flow.ActionNext, nil
}
