// Package hook models the payloads an agent runtime sends to hook commands
// and the decision document a hook writes back.
//
// A hook reads one JSON object from stdin and either writes nothing (allow)
// or writes {"decision":"block","reason":"..."} (block). Field access on the
// payload never fails: missing or mistyped fields read as zero values.
package hook

// Tool names reported in tool_name by the runtime.
const (
	ToolEdit = "Edit"
	ToolBash = "Bash"
)

// Hook event names reported in hook_event_name.
const (
	EventStop       = "Stop"
	EventPreToolUse = "PreToolUse"
)
