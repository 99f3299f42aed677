package agent

import (
	"fmt"
	"strings"
)

// Prompts holds the system instructions for each stage. All fields default
// via DefaultPrompts; callers may override any of them.
type Prompts struct {
	Router        string
	Generator     string
	Executor      string
	Reflection    string
	Visualization string
	Explainer     string
}

// DefaultPrompts returns the stock stage instructions
func DefaultPrompts() Prompts {
	return Prompts{
		Router: `You are the first step of an analytics assistant. Decide whether the user's message requires querying the analytics dataset or is general conversation (greetings, questions about your capabilities, small talk).

If the message requires analytics, reply with exactly:
analytics_query: true

If it is general conversation, first write a helpful conversational reply, then on a new line write:
analytics_query: false`,

		Generator: `You are an expert SQL analyst. Convert the user's question into a single valid read-only SQL query for the analytics dataset described below. Return only the SQL query without commentary or code fences.`,

		Executor: `You are a SQL execution assistant. You have exactly one tool that executes a SQL query against the analytics dataset. Check the query for obvious formatting problems, execute it with the tool, and report the raw tabular results. Do not interpret, summarize, or editorialize the data.`,

		Reflection: `You are a SQL quality reviewer. Judge whether the execution results properly answer the original question.

Your response MUST begin with exactly one of:
DECISION: PASS
DECISION: RETRY

After DECISION: RETRY, explain concretely what was wrong with the query and how to fix it (wrong columns, empty results, errors, misaligned grouping or filters).`,

		Visualization: `You are a data visualization expert. Given result columns and sample rows, propose the most appropriate chart. Respond with a JSON object inside a fenced code block tagged json, with fields: chart_type (one of "bar", "line", "pie", "scatter", "table"), title, x_axis, y_axis and optionally options.`,

		Explainer: `You are a data analyst presenting query results to a business user. Explain what the results show, call out notable patterns, and answer the original question directly. If the results are empty or contain errors, say so plainly.`,
	}
}

// withDataset appends the dataset description to a system prompt
func withDataset(prompt, dataset string) string {
	if dataset == "" {
		return prompt
	}
	return prompt + "\n\nThe analytics dataset is: " + dataset
}

// withHistory appends recent conversation context to a system prompt
func withHistory(prompt string, history []Exchange, window int) string {
	context := formatHistory(history, window)
	if context == "" {
		return prompt
	}
	return prompt + "\n\nRecent conversation history for context:\n" + context
}

// formatHistory renders the most recent exchanges as conversation context
func formatHistory(history []Exchange, window int) string {
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	var b strings.Builder
	for _, exchange := range history {
		fmt.Fprintf(&b, "User: %s\n", exchange.Question)
		if exchange.Response != "" {
			fmt.Fprintf(&b, "Assistant: %s\n", exchange.Response)
		}
	}
	return b.String()
}
