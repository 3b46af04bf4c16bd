// Package audit records gate decisions after they have been made. Nothing in
// this package feeds back into a gate's decision.
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/nixlim/devkit-gates/internal/hook"
)

// Entry is one gate invocation as seen by the audit trail.
type Entry struct {
	ID        string
	Timestamp time.Time
	Gate      string
	HookEvent string
	SessionID string
	ToolName  string
	CWD       string
	Decision  string // allow, block
	Reason    string
	Duration  time.Duration
}

// Blocked reports whether the entry records a block.
func (e Entry) Blocked() bool {
	return e.Decision == hook.DecisionBlock
}

// NewEntry builds an entry for gate's decision d on ev.
func NewEntry(gate string, ev *hook.Event, d hook.Decision, at time.Time, took time.Duration) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Timestamp: at,
		Gate:      gate,
		HookEvent: ev.HookEventName(),
		SessionID: ev.SessionID(),
		ToolName:  ev.ToolName(),
		CWD:       ev.CWD(),
		Decision:  d.String(),
		Reason:    d.Reason(),
		Duration:  took,
	}
}

// DailySummary aggregates decisions for one gate on one day.
type DailySummary struct {
	Date     string
	Gate     string
	Allowed  int
	Blocked  int
	Sessions int
}

// Filter narrows a decision query.
type Filter struct {
	Gate        string // empty means all gates
	SessionID   string // empty means all sessions
	BlockedOnly bool
	Limit       int
}
