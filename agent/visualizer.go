package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/alt-coder/analyticsflow/flow"
	"github.com/alt-coder/analyticsflow/llm"
	"github.com/alt-coder/analyticsflow/structured"
	"go.uber.org/zap"
)

// VisualizerStage asks the model for a chart spec matching the result shape.
// Visualization failure is never fatal: unparseable specs degrade to an
// error-flagged table config and the pipeline continues.
type VisualizerStage struct {
	provider llm.Provider
	prompt   string
	logger   *zap.Logger
}

// NewVisualizerStage creates the visualization stage
func NewVisualizerStage(provider llm.Provider, prompt string, logger *zap.Logger) *VisualizerStage {
	return &VisualizerStage{provider: provider, prompt: prompt, logger: logger}
}

func (s *VisualizerStage) Name() string { return StageVisualizer }

func (s *VisualizerStage) Run(ctx context.Context, state *WorkflowState) (flow.Update[WorkflowState], flow.Action, error) {
	data := ExtractRows(state.QueryResults)

	sample := data
	if len(sample) > 10 {
		sample = sample[:10]
	}
	sampleJSON, err := json.Marshal(sample)
	if err != nil {
		sampleJSON = []byte("[]")
	}
	columns := columnNames(data)

	userContent := fmt.Sprintf(`Original question: %s

SQL query used:
%s

Available columns: %s

Sample data:
%s

Please generate an appropriate visualization configuration for this data.`,
		state.Question, state.SQLQuery, strings.Join(columns, ", "), sampleJSON)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: s.prompt},
		{Role: llm.RoleUser, Content: userContent},
	}

	response, err := s.provider.CallLLM(ctx, messages)
	if err != nil {
		return nil, "", fmt.Errorf("visualization model call failed: %w", err)
	}

	config := decodeChartConfig(response.Content)
	config.Data = data
	s.logger.Info("generated visualization",
		zap.String("chart_type", config.ChartType),
		zap.Int("rows", len(data)))

	return &VisualizeUpdate{Config: config, Message: response}, flow.ActionNext, nil
}

// ExtractRows recovers a flat row list from the executor's varying output
// shapes: structured tool results first, then a fenced JSON block or a
// markdown table inside the sub-agent's text, finally a placeholder row.
func ExtractRows(results QueryResults) []map[string]any {
	if len(results.Results) > 0 {
		return results.Results
	}

	if results.Output != "" {
		if strings.Contains(results.Output, "```json") {
			if block := structured.ExtractJSONBlock(results.Output); block != "" {
				if rows := structured.ParseJSONRows(block); len(rows) > 0 {
					return rows
				}
			}
		} else if strings.Contains(results.Output, "|") {
			if rows := structured.ParseTable(results.Output); len(rows) > 0 {
				return rows
			}
		}
	}

	return []map[string]any{{"message": "No structured data available"}}
}

// decodeChartConfig parses the model's chart spec: a fenced JSON block when
// present, otherwise the whole response as JSON. Parse failures produce a
// valid table config flagged with the error.
func decodeChartConfig(content string) ChartConfig {
	payload := structured.ExtractJSONBlock(content)
	if payload == "" {
		payload = content
	}

	var config ChartConfig
	if err := json.Unmarshal([]byte(payload), &config); err != nil {
		return ChartConfig{
			ChartType: "table",
			Title:     "Data Visualization (Error in configuration)",
			Error:     fmt.Sprintf("could not generate valid visualization: %v", err),
		}
	}
	return config
}

// columnNames lists the keys of the first row in stable order
func columnNames(rows []map[string]any) []string {
	if len(rows) == 0 {
		return nil
	}
	names := make([]string, 0, len(rows[0]))
	for name := range rows[0] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
