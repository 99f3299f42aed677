// Package structured extracts machine-readable data from free-form LLM
// output: fenced JSON blocks and markdown pipe tables.
package structured

import (
	"encoding/json"
	"strings"
)

// ExtractJSONBlock extracts JSON content from an LLM response. Blocks fenced
// with ```json are preferred; a generic ``` block is accepted when its body
// looks like JSON, and as a last resort a brace-balanced object is scanned
// out of the raw text. Returns "" when nothing JSON-like is found.
func ExtractJSONBlock(response string) string {
	jsonBlockStart := "```json"
	blockEnd := "```"

	startIndex := strings.Index(response, jsonBlockStart)
	if startIndex != -1 {
		startIndex += len(jsonBlockStart)
		endIndex := strings.Index(response[startIndex:], blockEnd)
		if endIndex != -1 {
			return strings.TrimSpace(response[startIndex : startIndex+endIndex])
		}
	}

	// Generic code blocks that might contain JSON
	codeBlockStart := "```"
	startIndex = strings.Index(response, codeBlockStart)
	if startIndex != -1 {
		startIndex += len(codeBlockStart)
		// Skip any language identifier on the same line
		if newlineIndex := strings.Index(response[startIndex:], "\n"); newlineIndex != -1 {
			startIndex += newlineIndex + 1
		}

		endIndex := strings.Index(response[startIndex:], blockEnd)
		if endIndex != -1 {
			content := strings.TrimSpace(response[startIndex : startIndex+endIndex])
			if strings.HasPrefix(content, "{") || strings.HasPrefix(content, "[") {
				return content
			}
		}
	}

	// Scan for a brace-balanced JSON object in the raw text
	lines := strings.Split(response, "\n")
	var jsonLines []string
	inJSON := false
	braceCount := 0

	for _, line := range lines {
		trimmedLine := strings.TrimSpace(line)

		if strings.HasPrefix(trimmedLine, "{") {
			inJSON = true
			braceCount = 0
		}

		if inJSON {
			jsonLines = append(jsonLines, line)

			for _, char := range trimmedLine {
				switch char {
				case '{':
					braceCount++
				case '}':
					braceCount--
				}
			}

			if braceCount == 0 && len(jsonLines) > 0 {
				break
			}
		}
	}

	if len(jsonLines) > 0 {
		return strings.Join(jsonLines, "\n")
	}

	return ""
}

// ParseJSONRows parses a JSON array of objects out of text. Returns nil when
// the text does not decode to a list.
func ParseJSONRows(text string) []map[string]any {
	var rows []map[string]any
	if err := json.Unmarshal([]byte(text), &rows); err != nil {
		return nil
	}
	return rows
}

// ParseTable parses a markdown pipe table into rows keyed by the header
// cells. The first line is the header, the second the separator; cell values
// stay strings. Returns nil when the content holds no usable table.
func ParseTable(content string) []map[string]any {
	var tableLines []string
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "|") {
			tableLines = append(tableLines, line)
		}
	}
	if len(tableLines) <= 2 {
		return nil
	}

	headers := splitRow(tableLines[0])
	if len(headers) == 0 {
		return nil
	}

	var rows []map[string]any
	for _, line := range tableLines[2:] {
		values := splitRow(line)
		if len(values) != len(headers) {
			continue
		}
		row := make(map[string]any, len(headers))
		for i, header := range headers {
			row[header] = values[i]
		}
		rows = append(rows, row)
	}
	return rows
}

// splitRow splits "| a | b |" into its trimmed cell values
func splitRow(line string) []string {
	parts := strings.Split(line, "|")
	if len(parts) < 3 {
		return nil
	}
	cells := make([]string, 0, len(parts)-2)
	for _, part := range parts[1 : len(parts)-1] {
		cells = append(cells, strings.TrimSpace(part))
	}
	return cells
}
