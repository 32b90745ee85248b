package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/martinemde/stepagent/agentloop"
)

type styles struct {
	thought lipgloss.Style
	tool    lipgloss.Style
	final   lipgloss.Style
	warning lipgloss.Style
	err     lipgloss.Style
}

func newStyles() styles {
	return styles{
		thought: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		tool:    lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		final:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		warning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		err:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

// console renders session events for the operator.
type console struct {
	out    io.Writer
	color  bool
	styles styles
}

func newConsole(out io.Writer, color bool) *console {
	return &console{out: out, color: color, styles: newStyles()}
}

// println styles line by line so multi-line output is not padded into a
// block.
func (c *console) println(style lipgloss.Style, format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if c.color {
		lines := strings.Split(text, "\n")
		for i, line := range lines {
			lines[i] = style.Render(line)
		}
		text = strings.Join(lines, "\n")
	}
	fmt.Fprintln(c.out, text)
}

// handle is an agentloop.EventHandler.
func (c *console) handle(e agentloop.SessionEvent) {
	switch e.Kind {
	case agentloop.EventStep:
		switch agentloop.StepKind(e.String("step")) {
		case agentloop.StepStart, agentloop.StepPlan, agentloop.StepObserve:
			c.println(c.styles.thought, "🧠: %s", e.String("content"))
		}

	case agentloop.EventToolCallStart:
		if path := e.String("path"); e.String("tool") == agentloop.ToolWriteFile && path != "" {
			c.println(c.styles.tool, "🧠: running %s in %s", e.String("tool"), path)
		} else {
			c.println(c.styles.tool, "🧠: running %s: %s", e.String("tool"), e.String("input"))
		}

	case agentloop.EventToolCallEnd:
		tool := e.String("tool")
		c.println(c.styles.tool, "🧠: output %s: %s", tool, agentloop.PreviewToolOutput(e.String("output"), tool))

	case agentloop.EventFinalOutput:
		c.println(c.styles.final, "🤖: %s", e.String("content"))

	case agentloop.EventDecodeError:
		c.println(c.styles.err, "❌ Error parsing response: %s", e.String("error"))
		if raw := strings.TrimSpace(e.String("raw")); raw != "" {
			c.println(c.styles.err, "👉 Full response: %s", agentloop.TruncateOutput(raw, 500))
		}

	case agentloop.EventUnknownStep:
		c.println(c.styles.warning, "⚠️ ignoring unknown step %q", e.String("step"))

	case agentloop.EventBackendError:
		if retryable, _ := e.Data["retryable"].(bool); retryable {
			c.println(c.styles.warning, "⚠️ model request failed, retrying: %s", e.String("error"))
		}

	case agentloop.EventLoopDetection, agentloop.EventWarning:
		c.println(c.styles.warning, "⚠️ %s", e.String("message"))
	}
}

func (c *console) interrupted() {
	c.println(c.styles.warning, "⏹ interrupted")
}

func (c *console) error(err error) {
	c.println(c.styles.err, "❌ %v", err)
}
