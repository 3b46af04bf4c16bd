package gates

import (
	"strings"

	"github.com/nixlim/devkit-gates/internal/hook"
)

const handoffReason = "You have an active task. Write a --handoff: block in the task file " +
	"(with done/remaining/uncertain) before stopping."

// HandoffGate runs on Stop. It blocks when the transcript shows work on an
// active task but no closing note: a --handoff: block, a move to in_review,
// or a status: done on a task file.
//
// Only the presence of the markers is checked, never the handoff content.
type HandoffGate struct{}

// Name implements Gate.
func (HandoffGate) Name() string { return NameHandoff }

// Evaluate implements Gate.
func (HandoffGate) Evaluate(ev *hook.Event) hook.Decision {
	var hasWork, hasHandoff bool

	for _, content := range ev.Messages() {
		if isActiveWork(content) {
			hasWork = true
		}
		if isHandoff(content) {
			hasHandoff = true
		}
	}

	if !hasWork || hasHandoff {
		return hook.Allow()
	}
	return hook.Block(handoffReason)
}

func isActiveWork(content string) bool {
	if !strings.Contains(content, activeTaskMarker) {
		return false
	}
	return strings.Contains(content, "Starting:") ||
		strings.Contains(content, "Session") ||
		strings.Contains(content, "in_progress")
}

func isHandoff(content string) bool {
	switch {
	case strings.Contains(content, "--handoff:"):
		return true
	case strings.Contains(content, "in_review") && strings.Contains(content, activeTaskMarker):
		// Moving the task to review closes the session's work.
		return true
	case strings.Contains(content, "status: done") && strings.Contains(content, taskStoreMarker):
		return true
	}
	return false
}
