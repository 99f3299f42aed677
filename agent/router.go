package agent

import (
	"context"
	"fmt"

	"github.com/alt-coder/analyticsflow/flow"
	"github.com/alt-coder/analyticsflow/llm"
	"go.uber.org/zap"
)

// RouterStage classifies the question as analytics work or general
// conversation. For general conversation it also extracts the reply, and the
// run ends at this stage.
type RouterStage struct {
	provider      llm.Provider
	prompt        string
	historyWindow int
	logger        *zap.Logger
}

// NewRouterStage creates the routing stage
func NewRouterStage(provider llm.Provider, prompt string, historyWindow int, logger *zap.Logger) *RouterStage {
	return &RouterStage{
		provider:      provider,
		prompt:        prompt,
		historyWindow: historyWindow,
		logger:        logger,
	}
}

func (s *RouterStage) Name() string { return StageRouter }

func (s *RouterStage) Run(ctx context.Context, state *WorkflowState) (flow.Update[WorkflowState], flow.Action, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: withHistory(s.prompt, state.History, s.historyWindow)},
		{Role: llm.RoleUser, Content: state.Question},
	}

	response, err := s.provider.CallLLM(ctx, messages)
	if err != nil {
		return nil, "", fmt.Errorf("routing model call failed: %w", err)
	}

	requiresAnalytics, generalResponse := DecodeRoute(response.Content)
	s.logger.Info("routed question",
		zap.Bool("requires_analytics", requiresAnalytics))

	update := &RouteUpdate{
		RequiresAnalytics: requiresAnalytics,
		GeneralResponse:   generalResponse,
		Message:           response,
	}
	if requiresAnalytics {
		return update, ActionAnalytics, nil
	}
	return update, ActionGeneral, nil
}
