package hook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Event is a single hook payload as delivered by the agent runtime on stdin.
// The payload is kept as a generic JSON object; fields are read through the
// accessor methods, which return zero values instead of failing when a field
// is missing or has an unexpected type.
type Event struct {
	raw map[string]any
}

// ParseEvent decodes a hook payload. An empty or whitespace-only payload
// yields an empty Event. A payload that is not a JSON object returns an error.
func ParseEvent(data []byte) (*Event, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return &Event{raw: map[string]any{}}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing hook event JSON: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return &Event{raw: raw}, nil
}

// NewEvent wraps an already decoded payload.
func NewEvent(raw map[string]any) *Event {
	if raw == nil {
		raw = map[string]any{}
	}
	return &Event{raw: raw}
}

// String returns the string found by walking path through nested objects,
// or "" if any step is missing or the leaf is not a string.
func (e *Event) String(path ...string) string {
	v, ok := e.lookup(path...)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Bool returns the boolean at path, or false.
func (e *Event) Bool(path ...string) bool {
	v, ok := e.lookup(path...)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// ToolName is the tool_name field of PreToolUse events.
func (e *Event) ToolName() string { return e.String("tool_name") }

// SessionID is the session_id field common to all hook events.
func (e *Event) SessionID() string { return e.String("session_id") }

// HookEventName is the hook_event_name field (Stop, PreToolUse, ...).
func (e *Event) HookEventName() string { return e.String("hook_event_name") }

// CWD is the working directory of the agent session.
func (e *Event) CWD() string { return e.String("cwd") }

// Messages returns the text of every messages[].content entry, in order.
// Content that is not a plain string is flattened: every string leaf of the
// structure is collected and joined with newlines, and scalars are rendered
// in their JSON form. Entries that are not objects are skipped.
func (e *Event) Messages() []string {
	if e == nil || e.raw == nil {
		return nil
	}
	list, ok := e.raw["messages"].([]any)
	if !ok {
		return nil
	}

	texts := make([]string, 0, len(list))
	for _, item := range list {
		msg, ok := item.(map[string]any)
		if !ok {
			continue
		}
		content, ok := msg["content"]
		if !ok {
			texts = append(texts, "")
			continue
		}
		texts = append(texts, contentText(content))
	}
	return texts
}

func (e *Event) lookup(path ...string) (any, bool) {
	if e == nil || e.raw == nil || len(path) == 0 {
		return nil, false
	}
	var cur any = e.raw
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// contentText coerces an arbitrary decoded JSON value to matchable text.
func contentText(v any) string {
	var parts []string
	collectText(v, &parts)
	return strings.Join(parts, "\n")
}

func collectText(v any, parts *[]string) {
	switch t := v.(type) {
	case nil:
	case string:
		*parts = append(*parts, t)
	case json.Number:
		*parts = append(*parts, t.String())
	case bool:
		*parts = append(*parts, strconv.FormatBool(t))
	case []any:
		for _, item := range t {
			collectText(item, parts)
		}
	case map[string]any:
		for _, k := range orderedKeys(t) {
			collectText(t[k], parts)
		}
	}
}

// orderedKeys returns the keys of m with "type" and "text" first and the
// remainder sorted alphabetically.
func orderedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if k == "type" || k == "text" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var head []string
	if _, ok := m["type"]; ok {
		head = append(head, "type")
	}
	if _, ok := m["text"]; ok {
		head = append(head, "text")
	}
	return append(head, keys...)
}
