package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alt-coder/analyticsflow/checkpoint"
	"github.com/alt-coder/analyticsflow/flow"
	"github.com/alt-coder/analyticsflow/llm"
	"github.com/alt-coder/analyticsflow/query"
	"github.com/alt-coder/analyticsflow/tools"
	"go.uber.org/zap"
)

// NoAnswerFallback is returned by RunQuery when an analytics run produced no
// terminal message.
const NoAnswerFallback = "No results were generated."

// GeneralFallback is returned when the router classified the question as
// general conversation but produced no reply text.
const GeneralFallback = "I'm not sure how to respond to that."

// Config assembles a Pipeline. Provider and Executor are required; every
// other field has a working default.
type Config struct {
	Provider llm.Provider
	Executor query.Executor

	// Dataset identifies the analytics dataset in the generator prompt
	Dataset string

	Prompts Prompts
	Logger  *zap.Logger

	// HistoryWindow is the number of prior exchanges embedded as
	// conversation context. Default 3.
	HistoryWindow int

	// MaxSQLRetries bounds regeneration attempts beyond the first; when
	// the budget is spent a RETRY verdict is downgraded and the run
	// proceeds with its current results. Nil defaults to 2; zero means
	// no retries at all; negative means unbounded.
	MaxSQLRetries *int

	// MaxToolSteps bounds the executor sub-agent's tool loop. Default 4.
	MaxToolSteps int

	// Registry optionally supplies extra tools for the executor
	// sub-agent; the SQL tool is always registered.
	Registry *tools.Registry

	// Checkpoints optionally persists final run state keyed by run ID
	Checkpoints checkpoint.Store
}

// Pipeline is the workflow for answering analytics questions. It is
// immutable after construction; every query runs against a fresh
// WorkflowState, so a single Pipeline serves concurrent callers.
type Pipeline struct {
	graph       *flow.Graph[WorkflowState]
	checkpoints checkpoint.Store
	logger      *zap.Logger
}

// NewPipeline builds and validates the workflow graph
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("config requires an LLM provider")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("config requires a query executor")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.HistoryWindow == 0 {
		cfg.HistoryWindow = 3
	}
	maxRetries := 2
	if cfg.MaxSQLRetries != nil {
		maxRetries = *cfg.MaxSQLRetries
	}
	if (cfg.Prompts == Prompts{}) {
		cfg.Prompts = DefaultPrompts()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = tools.NewRegistry()
	}
	registry.RegisterLocal(SQLTool(cfg.Executor))

	graph := flow.NewGraph[WorkflowState](StageRouter)
	graph.AddStage(NewRouterStage(cfg.Provider, cfg.Prompts.Router, cfg.HistoryWindow, cfg.Logger))
	graph.AddStage(NewGeneratorStage(cfg.Provider, cfg.Prompts.Generator, cfg.Dataset, cfg.HistoryWindow, cfg.Logger))
	graph.AddStage(NewExecutorStage(cfg.Provider, registry, cfg.Prompts.Executor, cfg.MaxToolSteps, cfg.Logger))
	graph.AddStage(NewReflectionStage(cfg.Provider, cfg.Prompts.Reflection, maxRetries, cfg.Logger))
	graph.AddStage(NewVisualizerStage(cfg.Provider, cfg.Prompts.Visualization, cfg.Logger))
	graph.AddStage(NewExplainerStage(cfg.Provider, cfg.Prompts.Explainer, cfg.HistoryWindow, cfg.Logger))

	graph.AddEdge(StageRouter, ActionAnalytics, StageGenerator)
	graph.AddEdge(StageRouter, ActionGeneral, flow.End)
	graph.AddEdge(StageGenerator, flow.ActionNext, StageExecutor)
	graph.AddEdge(StageExecutor, flow.ActionNext, StageReflection)
	graph.AddEdge(StageReflection, flow.ActionRetry, StageGenerator)
	graph.AddEdge(StageReflection, ActionPass, StageVisualizer)
	graph.AddEdge(StageVisualizer, flow.ActionNext, StageExplainer)
	graph.AddEdge(StageExplainer, flow.ActionNext, flow.End)

	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow graph: %w", err)
	}

	return &Pipeline{
		graph:       graph,
		checkpoints: cfg.Checkpoints,
		logger:      cfg.Logger,
	}, nil
}

// RunQuery drives the workflow to completion and returns the final answer:
// the conversational reply when the router short-circuits, otherwise the
// explainer's analysis.
func (p *Pipeline) RunQuery(ctx context.Context, question string, history []Exchange) (string, error) {
	state := NewWorkflowState(question, history)

	if err := p.graph.Run(ctx, state); err != nil {
		return "", err
	}
	p.saveCheckpoint(ctx, state)

	return finalAnswer(state), nil
}

// StreamQuery executes the workflow asynchronously, delivering one event per
// completed stage. The channel closes when the run terminates; a failing run
// delivers a final EventError first. Consumers needing the final answer can
// accumulate it from the explainer or router update events.
func (p *Pipeline) StreamQuery(ctx context.Context, question string, history []Exchange) <-chan flow.Event[WorkflowState] {
	state := NewWorkflowState(question, history)
	events := p.graph.Stream(ctx, state)

	out := make(chan flow.Event[WorkflowState])
	go func() {
		defer close(out)
		failed := false
		for event := range events {
			if event.Type == flow.EventError {
				failed = true
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
		if !failed {
			p.saveCheckpoint(ctx, state)
		}
	}()
	return out
}

// finalAnswer picks the user-visible answer out of the terminal state
func finalAnswer(state *WorkflowState) string {
	if state.Routed && !state.RequiresAnalytics {
		if state.GeneralResponse != "" {
			return state.GeneralResponse
		}
		return GeneralFallback
	}

	if len(state.Messages) > 0 {
		if content := state.Messages[len(state.Messages)-1].Content; content != "" {
			return content
		}
	}
	return NoAnswerFallback
}

// saveCheckpoint persists the completed run when a store is configured.
// Checkpointing is best-effort; failures are logged, never surfaced.
func (p *Pipeline) saveCheckpoint(ctx context.Context, state *WorkflowState) {
	if p.checkpoints == nil {
		return
	}
	encoded, err := json.Marshal(state)
	if err != nil {
		p.logger.Warn("failed to encode run state", zap.Error(err))
		return
	}
	if err := p.checkpoints.Save(ctx, state.RunID, encoded); err != nil {
		p.logger.Warn("failed to save checkpoint",
			zap.String("run_id", state.RunID), zap.Error(err))
	}
}
