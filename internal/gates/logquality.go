package gates

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nixlim/devkit-gates/internal/hook"
)

// DefaultMinContentLength is the line length at which a log line is
// considered informative without further structure.
const DefaultMinContentLength = 20

// structuredPrefixes mark a log entry as self-describing. An edit containing
// any of them is exempt from the vagueness check.
var structuredPrefixes = [...]string{
	"--hypothesis:",
	"--decision:",
	"--tried:",
	"--blocker:",
	"--handoff:",
}

const sessionHeader = "### Session"

// LogQualityGate runs before Edit tool calls. When the edit targets a task
// file it rejects the first inserted line that is both short and has no
// "label: detail" structure.
type LogQualityGate struct {
	MinContentLength int
}

// NewLogQualityGate returns a LogQualityGate. A non-positive minLength
// selects DefaultMinContentLength.
func NewLogQualityGate(minLength int) LogQualityGate {
	if minLength <= 0 {
		minLength = DefaultMinContentLength
	}
	return LogQualityGate{MinContentLength: minLength}
}

// Name implements Gate.
func (LogQualityGate) Name() string { return NameLogQuality }

// Evaluate implements Gate.
func (g LogQualityGate) Evaluate(ev *hook.Event) hook.Decision {
	if ev.ToolName() != hook.ToolEdit {
		return hook.Allow()
	}
	if !strings.Contains(ev.String("tool_input", "file_path"), taskStoreMarker) {
		return hook.Allow()
	}

	inserted := ev.String("tool_input", "new_string")
	trimmed := strings.TrimSpace(inserted)
	if trimmed == "" {
		return hook.Allow()
	}

	for _, prefix := range structuredPrefixes {
		if strings.Contains(inserted, prefix) {
			return hook.Allow()
		}
	}
	if strings.HasPrefix(trimmed, sessionHeader) {
		return hook.Allow()
	}

	if line, ok := g.firstVagueLine(trimmed); ok {
		return hook.Block(vagueLineReason(line))
	}
	return hook.Allow()
}

// firstVagueLine returns the first line of text that fails both the length
// and the colon test, after markdown decoration is removed.
func (g LogQualityGate) firstVagueLine(text string) (string, bool) {
	minLength := g.MinContentLength
	if minLength <= 0 {
		minLength = DefaultMinContentLength
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		clean := stripDecoration(line)
		if clean == "" {
			continue
		}

		if utf8.RuneCountInString(clean) >= minLength || strings.Contains(clean, ":") {
			continue
		}
		return clean, true
	}
	return "", false
}

// stripDecoration removes a leading run of '#', then of '-', then of '*',
// and the surrounding whitespace.
func stripDecoration(line string) string {
	line = strings.TrimLeft(line, "#")
	line = strings.TrimLeft(line, "-")
	line = strings.TrimLeft(line, "*")
	return strings.TrimSpace(line)
}

func vagueLineReason(line string) string {
	return fmt.Sprintf("Log quality gate: \"%s\" is too vague. "+
		"Add context after a colon (e.g., \"Starting: reading auth module to understand token flow\") "+
		"or use a structured prefix (--hypothesis:, --decision:, --tried:, --blocker:).", line)
}
