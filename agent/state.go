// Package agent implements the conversational analytics pipeline: a
// six-stage workflow that routes a natural-language question, generates and
// executes SQL, judges the results, and produces a visualization and a
// written explanation.
package agent

import (
	"github.com/alt-coder/analyticsflow/flow"
	"github.com/alt-coder/analyticsflow/llm"
	"github.com/google/uuid"
)

// Stage names, used for graph edges and stream events
const (
	StageRouter     = "conversation_router"
	StageGenerator  = "sql_generator"
	StageExecutor   = "sql_executor"
	StageReflection = "sql_reflection"
	StageVisualizer = "visualization_generator"
	StageExplainer  = "results_explainer"
)

// Routing and reflection actions
const (
	ActionAnalytics flow.Action = "analytics"
	ActionGeneral   flow.Action = "general"
	ActionPass      flow.Action = "pass"
)

// ReflectionDecision is the verdict of the reflection stage
type ReflectionDecision string

const (
	DecisionPass  ReflectionDecision = "PASS"
	DecisionRetry ReflectionDecision = "RETRY"
)

// Exchange is one prior question/answer pair supplied as conversation context
type Exchange struct {
	Question string `json:"question"`
	Response string `json:"response"`
}

// QueryResults is the structured outcome of the executor stage. When the
// sub-agent invoked the SQL tool the structured fields are populated; Output
// always carries the sub-agent's final textual report, which may be the only
// content when the model chose not to call the tool.
type QueryResults struct {
	Success   bool             `json:"success"`
	Results   []map[string]any `json:"results,omitempty"`
	TotalRows int64            `json:"total_rows,omitempty"`
	Error     string           `json:"error,omitempty"`
	Output    string           `json:"output,omitempty"`
}

// ChartConfig is the visualization spec proposed by the model with the
// extracted result rows embedded under Data.
type ChartConfig struct {
	ChartType string           `json:"chart_type"`
	Title     string           `json:"title"`
	XAxis     string           `json:"x_axis,omitempty"`
	YAxis     string           `json:"y_axis,omitempty"`
	Options   map[string]any   `json:"options,omitempty"`
	Error     string           `json:"error,omitempty"`
	Data      []map[string]any `json:"data"`
}

// WorkflowState is the single mutable record threaded through every stage of
// one question-answering run. Stages never mutate it directly; they return
// updates that the engine applies (see flow.Update).
type WorkflowState struct {
	RunID    string     `json:"run_id"`
	Question string     `json:"question"`
	History  []Exchange `json:"history,omitempty"`

	// Messages is the append-only log of every model interaction
	Messages []llm.Message `json:"messages"`

	// Routed records that the router has run; RequiresAnalytics is
	// meaningless until it is set.
	Routed            bool   `json:"routed"`
	RequiresAnalytics bool   `json:"requires_analytics"`
	GeneralResponse   string `json:"general_response,omitempty"`

	SQLQuery    string `json:"sql_query,omitempty"`
	SQLFeedback string `json:"sql_feedback,omitempty"`
	SQLAttempts int    `json:"sql_attempts"`

	QueryResults     QueryResults       `json:"query_results"`
	ReflectionResult ReflectionDecision `json:"reflection_result,omitempty"`
	Visualization    *ChartConfig       `json:"visualization,omitempty"`
}

// NewWorkflowState creates the state for a fresh run
func NewWorkflowState(question string, history []Exchange) *WorkflowState {
	return &WorkflowState{
		RunID:    uuid.NewString(),
		Question: question,
		History:  history,
	}
}

// RouteUpdate is the router stage's partial output
type RouteUpdate struct {
	RequiresAnalytics bool
	GeneralResponse   string
	Message           llm.Message
}

func (u *RouteUpdate) Apply(s *WorkflowState) {
	s.Routed = true
	s.RequiresAnalytics = u.RequiresAnalytics
	s.GeneralResponse = u.GeneralResponse
	s.Messages = append(s.Messages, u.Message)
}

// GenerateUpdate is the SQL generator stage's partial output. Applying it
// always overwrites the previous query and clears pending feedback, so the
// stage stays idempotent across retries.
type GenerateUpdate struct {
	SQLQuery string
	Message  llm.Message
}

func (u *GenerateUpdate) Apply(s *WorkflowState) {
	s.SQLQuery = u.SQLQuery
	s.SQLFeedback = ""
	s.SQLAttempts++
	s.Messages = append(s.Messages, u.Message)
}

// ExecuteUpdate is the executor stage's partial output
type ExecuteUpdate struct {
	Results QueryResults
	Message llm.Message
}

func (u *ExecuteUpdate) Apply(s *WorkflowState) {
	s.QueryResults = u.Results
	s.Messages = append(s.Messages, u.Message)
}

// ReflectUpdate is the reflection stage's partial output
type ReflectUpdate struct {
	Decision ReflectionDecision
	Feedback string
	Message  llm.Message
}

func (u *ReflectUpdate) Apply(s *WorkflowState) {
	s.ReflectionResult = u.Decision
	s.SQLFeedback = u.Feedback
	s.Messages = append(s.Messages, u.Message)
}

// VisualizeUpdate is the visualization stage's partial output
type VisualizeUpdate struct {
	Config  ChartConfig
	Message llm.Message
}

func (u *VisualizeUpdate) Apply(s *WorkflowState) {
	config := u.Config
	s.Visualization = &config
	s.Messages = append(s.Messages, u.Message)
}

// ExplainUpdate is the explainer stage's partial output
type ExplainUpdate struct {
	Message llm.Message
}

func (u *ExplainUpdate) Apply(s *WorkflowState) {
	s.Messages = append(s.Messages, u.Message)
}
