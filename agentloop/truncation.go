package agentloop

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Display limits for tool output shown on the console. The model always
// receives the full output.
var DefaultDisplayCharLimits = map[string]int{
	ToolReadFile:   2000,
	ToolRunCommand: 4000,
	ToolFixErrors:  2000,
}

var DefaultDisplayLineLimits = map[string]int{
	ToolReadFile:   40,
	ToolRunCommand: 60,
}

const defaultDisplayChars = 2000

// TruncateOutput keeps about maxChars bytes of output split between head and
// tail. Cuts never split a UTF-8 sequence.
func TruncateOutput(output string, maxChars int) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}

	half := maxChars / 2
	head := half
	for head > 0 && !utf8.RuneStart(output[head]) {
		head--
	}
	tail := len(output) - half
	for tail < len(output) && !utf8.RuneStart(output[tail]) {
		tail++
	}
	removed := utf8.RuneCountInString(output[head:tail])
	return output[:head] +
		fmt.Sprintf("\n[... %d characters omitted ...]\n", removed) +
		output[tail:]
}

// TruncateLines applies line-based truncation using head/tail split.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// PreviewToolOutput shortens a tool's output for display: characters first,
// then lines.
func PreviewToolOutput(output string, toolName string) string {
	maxChars, ok := DefaultDisplayCharLimits[toolName]
	if !ok {
		maxChars = defaultDisplayChars
	}
	result := TruncateOutput(output, maxChars)
	if maxLines, ok := DefaultDisplayLineLimits[toolName]; ok {
		result = TruncateLines(result, maxLines)
	}
	return result
}
