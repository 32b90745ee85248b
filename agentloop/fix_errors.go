package agentloop

import (
	"regexp"
	"strings"
)

// ErrorFixRule maps a pattern in an error log to a suggestion. A rule
// matches when its substring is present or its regexp matches.
type ErrorFixRule struct {
	Contains   string
	Pattern    *regexp.Regexp
	Suggestion string
}

func (r ErrorFixRule) matches(log string) bool {
	if r.Contains != "" && strings.Contains(log, r.Contains) {
		return true
	}
	return r.Pattern != nil && r.Pattern.MatchString(log)
}

// NoFixSuggestion is returned when no rule matches.
const NoFixSuggestion = "No specific error fix found. Please review the error log manually."

// DefaultErrorFixRules are evaluated in order; every match contributes.
var DefaultErrorFixRules = []ErrorFixRule{
	{
		Contains:   "ModuleNotFoundError",
		Suggestion: "It seems a module is missing. Try installing the required package using pip or npm.",
	},
	{
		Contains:   "SyntaxError",
		Suggestion: "There's a syntax error in your code. Check for missing colons, brackets, or typos.",
	},
	{
		Contains:   "Cannot find module",
		Suggestion: "A module cannot be found. Ensure that all dependencies are installed and paths are correct.",
	},
	{
		Contains:   "port is already in use",
		Suggestion: "The port is occupied. Try stopping the process using that port or change the port number.",
	},
	{
		Pattern:    regexp.MustCompile(`EADDRINUSE|address already in use`),
		Suggestion: "Another process is already listening on that address. Stop it or pick a different port.",
	},
	{
		Pattern:    regexp.MustCompile(`command not found|is not recognized as an internal or external command`),
		Suggestion: "A command is not installed or not on PATH. Install it or check the spelling.",
	},
	{
		Pattern:    regexp.MustCompile(`(?i)permission denied|EACCES`),
		Suggestion: "The operation lacks permissions. Check file modes or work inside a writable directory.",
	},
}

// SuggestFixes returns one suggestion per matching rule, newline separated,
// or NoFixSuggestion.
func SuggestFixes(errorLog string, rules []ErrorFixRule) string {
	var suggestions []string
	for _, rule := range rules {
		if rule.matches(errorLog) {
			suggestions = append(suggestions, rule.Suggestion)
		}
	}
	if len(suggestions) == 0 {
		return NoFixSuggestion
	}
	return strings.Join(suggestions, "\n")
}
