package agentloop

import (
	"fmt"
	"sort"
	"strings"
)

// Profile supplies the instruction text for a session and names the step
// that ends the inner loop.
type Profile interface {
	// ID returns the profile name (e.g., "coder", "workflow").
	ID() string

	// TerminalStep is the step kind the model is told to finish with.
	TerminalStep() StepKind

	// BuildSystemPrompt constructs the full system prompt.
	BuildSystemPrompt(registry *ToolRegistry, env ExecutionEnvironment, model, projectDocs, instructions string) string
}

type promptProfile struct {
	id       string
	terminal StepKind
	role     string
	rules    []string
	examples string
}

func (p *promptProfile) ID() string             { return p.id }
func (p *promptProfile) TerminalStep() StepKind { return p.terminal }

// NewCoderProfile is the terminal coding agent that answers with "output".
func NewCoderProfile() Profile {
	return &promptProfile{
		id:       "coder",
		terminal: StepOutput,
		role: "You are a highly skilled coding agent operating exclusively through the terminal.\n" +
			"You help the user build and evolve real applications by running commands, reading and writing files, and fixing errors.\n" +
			"You work in a structured process: start, plan, action, observe, output.",
		rules: []string{
			"Always make a new folder named after the project for a new task and create its files inside it.",
			"Skip unnecessary steps (for example, avoid redundant installs).",
			"Always cd into the required directory in the same run_command call that needs it.",
			"Never run destructive commands such as rm -rf / or disk wipes.",
			"Detect, explain and fix common errors or stack traces; use fix_errors when unsure.",
		},
		examples: coderExamples,
	}
}

// NewWorkflowProfile runs the same loop but finishes with "end" and invites
// a follow-up request.
func NewWorkflowProfile() Profile {
	return &promptProfile{
		id:       "workflow",
		terminal: StepEnd,
		role: "You are a terminal-based developer assistant.\n" +
			"You operate in a loop: start, plan, action, observe.\n" +
			"Once all actions are done, finish with an end step that summarises the result and invites the user to ask something new.",
		rules: []string{
			"Write clean, production-level code with correct syntax and indentation.",
			"Auto-confirm prompts by passing flags such as -y instead of waiting for input.",
			"Start long-running dev servers in the background so the command returns.",
			"Never run destructive commands such as rm -rf / or disk wipes.",
		},
		examples: workflowExamples,
	}
}

var profiles = map[string]func() Profile{
	"coder":    NewCoderProfile,
	"workflow": NewWorkflowProfile,
}

// ProfileNames lists the available profiles.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProfileByName returns the named profile.
func ProfileByName(name string) (Profile, error) {
	ctor, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(ProfileNames(), ", "))
	}
	return ctor(), nil
}

func (p *promptProfile) BuildSystemPrompt(registry *ToolRegistry, env ExecutionEnvironment, model, projectDocs, instructions string) string {
	var sb strings.Builder

	sb.WriteString(p.role)
	sb.WriteString("\n\n")

	sb.WriteString("# Output format\n\n")
	sb.WriteString("Respond with exactly one JSON object per message and nothing else:\n")
	sb.WriteString(`{"step": "<step>", "content": "<text>", "function": "<tool name, action only>", "input": <tool input, action only>}`)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Valid steps: start, plan, action, observe, %s.\n", p.terminal)
	sb.WriteString("Take one step at a time. After an action, wait for the observe message with the tool result before continuing.\n")
	fmt.Fprintf(&sb, "Finish with a %q step whose content is shown to the user.\n\n", p.terminal)

	sb.WriteString("# Rules\n\n")
	for _, rule := range p.rules {
		fmt.Fprintf(&sb, "- %s\n", rule)
	}
	sb.WriteString("\n")

	sb.WriteString("# Available tools\n\n")
	for _, tool := range registry.Tools() {
		fmt.Fprintf(&sb, "- %s: %s\n  input: %s\n", tool.Definition.Name, tool.Definition.Description, describeInput(tool))
	}
	sb.WriteString("\n")

	if p.examples != "" {
		sb.WriteString("# Example\n\n")
		sb.WriteString(strings.ReplaceAll(p.examples, "{{terminal}}", string(p.terminal)))
		sb.WriteString("\n\n")
	}

	if env != nil {
		sb.WriteString(BuildEnvironmentContext(env, model))
		sb.WriteString("\n")
	}

	if projectDocs != "" {
		sb.WriteString("\n# Project instructions\n\n")
		sb.WriteString(projectDocs)
		sb.WriteString("\n")
	}

	if instructions != "" {
		sb.WriteString("\n# User instructions\n\n")
		sb.WriteString(instructions)
		sb.WriteString("\n")
	}

	return sb.String()
}

func describeInput(tool *RegisteredTool) string {
	switch {
	case len(tool.Params) == 0 || tool.Input == InputNone:
		return `"" (no input)`
	case tool.Input == InputNamed:
		if schema := SchemaJSON(tool.Definition.Parameters); schema != "" {
			return "an object matching " + schema
		}
		return "an object with keys " + strings.Join(tool.ParamNames(), ", ")
	default:
		return fmt.Sprintf("a string (%s)", tool.Params[0].Description)
	}
}

const coderExamples = `User: "Create a simple node and express server that serves a hello world page"
{"step": "start", "content": "User wants a Node.js + Express server that serves a Hello World page."}
{"step": "plan", "content": "1. Create project folder 2. Initialize npm 3. Install express 4. Write server file 5. Run it"}
{"step": "action", "function": "run_command", "input": "mkdir hello-server && cd hello-server && npm init -y && npm install express"}
{"step": "observe", "content": "Dependencies installed."}
{"step": "action", "function": "write_file", "input": {"path": "hello-server/index.js", "content": "const express = require('express');\nconst app = express();\napp.get('/', (req, res) => res.send('Hello World'));\napp.listen(3000);"}}
{"step": "action", "function": "run_command", "input": "cd hello-server && (node index.js > server.log 2>&1 &)"}
{"step": "{{terminal}}", "content": "Server running at http://localhost:3000."}`

const workflowExamples = `User: "Create a basic ToDo app using HTML, CSS and JS"
{"step": "start", "content": "User wants a static ToDo app."}
{"step": "plan", "content": "1. Create todo-app folder 2. Write index.html, style.css, script.js"}
{"step": "action", "function": "get_system_info", "input": ""}
{"step": "observe", "content": "System: Linux."}
{"step": "action", "function": "write_file", "input": {"path": "todo-app/index.html", "content": "<!DOCTYPE html>..."}}
{"step": "action", "function": "read_file", "input": "todo-app/index.html"}
{"step": "{{terminal}}", "content": "The ToDo app is in todo-app/. Open index.html in a browser. What would you like next?"}`
