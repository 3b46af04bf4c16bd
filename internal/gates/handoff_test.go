package gates

import (
	"encoding/json"
	"testing"

	"github.com/nixlim/devkit-gates/internal/hook"
)

// sessionEvent builds a Stop payload whose messages carry the given contents.
func sessionEvent(t *testing.T, contents ...any) *hook.Event {
	t.Helper()
	msgs := make([]map[string]any, 0, len(contents))
	for _, c := range contents {
		msgs = append(msgs, map[string]any{"role": "assistant", "content": c})
	}
	data, err := json.Marshal(map[string]any{
		"hook_event_name": "Stop",
		"session_id":      "sess-1",
		"messages":        msgs,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	ev, err := hook.ParseEvent(data)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	return ev
}

func TestHandoffGate_NoMessagesAllows(t *testing.T) {
	g := HandoffGate{}
	if d := g.Evaluate(sessionEvent(t)); d.Blocked() {
		t.Errorf("empty session should allow, got %q", d.Reason())
	}
	if d := g.Evaluate(hook.NewEvent(nil)); d.Blocked() {
		t.Error("payload without messages should allow")
	}
}

func TestHandoffGate_NoiseAllows(t *testing.T) {
	g := HandoffGate{}
	ev := sessionEvent(t,
		"Let me look at the failing test.",
		"Starting: refactor of the parser",
		"Session summary: nothing tracked",
		".devkit/tasks/pending/later.md exists",
	)
	if d := g.Evaluate(ev); d.Blocked() {
		t.Errorf("messages without active-task work should allow, got %q", d.Reason())
	}
}

func TestHandoffGate_WorkWithoutHandoffBlocks(t *testing.T) {
	g := HandoffGate{}
	d := g.Evaluate(sessionEvent(t, "Starting: .devkit/tasks/active/foo"))
	if !d.Blocked() {
		t.Fatal("active work without handoff should block")
	}
	if d.Reason() != handoffReason {
		t.Errorf("reason: want %q, got %q", handoffReason, d.Reason())
	}
}

func TestHandoffGate_HandoffClosesWork(t *testing.T) {
	g := HandoffGate{}
	ev := sessionEvent(t, "Starting: .devkit/tasks/active/foo", "--handoff: done=X")
	if d := g.Evaluate(ev); d.Blocked() {
		t.Errorf("handoff should allow, got %q", d.Reason())
	}
}

func TestHandoffGate_WorkSignals(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"starting marker", "Starting: .devkit/tasks/active/auth.md"},
		{"session marker", "### Session 3 in .devkit/tasks/active/auth.md"},
		{"in_progress marker", "status: in_progress\nfile: .devkit/tasks/active/auth.md"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if d := (HandoffGate{}).Evaluate(sessionEvent(t, tt.content)); !d.Blocked() {
				t.Errorf("%q should count as active work", tt.content)
			}
		})
	}
}

func TestHandoffGate_HandoffSignals(t *testing.T) {
	work := "Starting: .devkit/tasks/active/auth.md"
	tests := []struct {
		name    string
		content string
	}{
		{"handoff prefix", "--handoff: done=login remaining=logout uncertain=none"},
		{"in_review on active task", "moved .devkit/tasks/active/auth.md to in_review"},
		{"status done in store", "status: done\n.devkit/tasks/archive/auth.md"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if d := (HandoffGate{}).Evaluate(sessionEvent(t, work, tt.content)); d.Blocked() {
				t.Errorf("%q should close the session, got block", tt.content)
			}
		})
	}
}

func TestHandoffGate_PartialMarkersDoNotClose(t *testing.T) {
	work := "Starting: .devkit/tasks/active/auth.md"
	for _, content := range []string{
		"in_review",               // no active path
		"status: done",            // no store path
		"--handoff without colon", // not the prefix
	} {
		if d := (HandoffGate{}).Evaluate(sessionEvent(t, work, content)); !d.Blocked() {
			t.Errorf("%q alone should not count as a handoff", content)
		}
	}
}

func TestHandoffGate_OrderIndependent(t *testing.T) {
	g := HandoffGate{}
	ev := sessionEvent(t, "--handoff: done=X", "Starting: .devkit/tasks/active/foo")
	if d := g.Evaluate(ev); d.Blocked() {
		t.Error("handoff before the work marker should still allow")
	}
}

func TestHandoffGate_SameMessageWorkAndHandoff(t *testing.T) {
	ev := sessionEvent(t, "Starting: .devkit/tasks/active/foo then --handoff: done=all")
	if d := (HandoffGate{}).Evaluate(ev); d.Blocked() {
		t.Error("work and handoff in one message should allow")
	}
}

func TestHandoffGate_StructuredContent(t *testing.T) {
	work := []any{map[string]any{"type": "text", "text": "Starting: .devkit/tasks/active/foo"}}
	if d := (HandoffGate{}).Evaluate(sessionEvent(t, work)); !d.Blocked() {
		t.Error("structured content should be coerced to text and detected")
	}

	handoff := []any{map[string]any{
		"type":  "tool_use",
		"input": map[string]any{"new_string": "--handoff: done=parser"},
	}}
	if d := (HandoffGate{}).Evaluate(sessionEvent(t, work, handoff)); d.Blocked() {
		t.Error("handoff inside a tool_use block should be detected")
	}
}

func TestHandoffGate_Idempotent(t *testing.T) {
	g := HandoffGate{}
	ev := sessionEvent(t, "Starting: .devkit/tasks/active/foo")
	first := g.Evaluate(ev)
	second := g.Evaluate(ev)
	if first != second {
		t.Errorf("repeated evaluation differs: %v vs %v", first, second)
	}
}
