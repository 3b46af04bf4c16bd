// Package gates implements the policy gates that guard the task-tracking
// workflow: a session may not stop with an open active task, task logs may
// not gain low-information lines, and commits must name their task.
//
// Every gate is a pure function of one hook.Event. Gates hold configuration
// only and are safe for concurrent use.
package gates

import (
	"fmt"

	"github.com/nixlim/devkit-gates/internal/config"
	"github.com/nixlim/devkit-gates/internal/hook"
)

// Gate evaluates one hook event and decides whether the runtime may proceed.
type Gate interface {
	// Name is the registry name used on the command line.
	Name() string

	// Evaluate returns exactly one decision for ev. It must not panic on
	// malformed input and must not touch anything outside ev.
	Evaluate(ev *hook.Event) hook.Decision
}

// Gate names.
const (
	NameHandoff     = "handoff"
	NameLogQuality  = "log-quality"
	NameCommitTrace = "commit-trace"
)

// Task store path markers.
const (
	taskStoreMarker  = ".devkit/tasks/"
	activeTaskMarker = ".devkit/tasks/active/"
)

// Info describes how a gate is wired into the runtime's hook configuration.
type Info struct {
	Name        string
	HookEvent   string // runtime event the gate listens on
	Matcher     string // tool matcher for PreToolUse gates, empty otherwise
	Description string
}

var registry = []Info{
	{
		Name:        NameHandoff,
		HookEvent:   hook.EventStop,
		Description: "blocks stopping with active task work and no --handoff: note",
	},
	{
		Name:        NameLogQuality,
		HookEvent:   hook.EventPreToolUse,
		Matcher:     hook.ToolEdit,
		Description: "blocks vague log lines appended to .devkit/tasks/ files",
	},
	{
		Name:        NameCommitTrace,
		HookEvent:   hook.EventPreToolUse,
		Matcher:     hook.ToolBash,
		Description: "blocks git commits whose message has no Task: trailer",
	},
}

// Registry returns the known gates in a stable order.
func Registry() []Info {
	out := make([]Info, len(registry))
	copy(out, registry)
	return out
}

// Names returns the registry names in a stable order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for _, info := range registry {
		names = append(names, info.Name)
	}
	return names
}

// New builds the named gate from cfg. A gate switched off in cfg is returned
// as a gate that always allows, so hook registrations stay valid.
func New(name string, cfg config.Config) (Gate, error) {
	var g Gate
	var enabled bool

	switch name {
	case NameHandoff:
		g = HandoffGate{}
		enabled = cfg.Gates.Handoff
	case NameLogQuality:
		g = NewLogQualityGate(cfg.LogQuality.MinContentLength)
		enabled = cfg.Gates.LogQuality
	case NameCommitTrace:
		g = CommitTraceGate{}
		enabled = cfg.Gates.CommitTrace
	default:
		return nil, fmt.Errorf("unknown gate %q", name)
	}

	if !enabled {
		return disabledGate{name: name}, nil
	}
	return g, nil
}

type disabledGate struct {
	name string
}

func (d disabledGate) Name() string                       { return d.name }
func (d disabledGate) Evaluate(*hook.Event) hook.Decision { return hook.Allow() }
