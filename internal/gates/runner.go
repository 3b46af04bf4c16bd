package gates

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/nixlim/devkit-gates/internal/audit"
	"github.com/nixlim/devkit-gates/internal/hook"
)

// Runner drives one gate invocation over the hook protocol: read the
// payload, decide, write the decision, then report it to the recorders.
//
// Everything that can go wrong around the gate (unreadable input, malformed
// JSON, a panicking gate, a failing recorder) resolves to Allow or is logged
// and ignored. The decision written to out is never influenced by recorders.
type Runner struct {
	recorders []audit.Logger
	now       func() time.Time
}

type RunnerOption func(*Runner)

// WithRecorder adds a recorder that receives every decision.
func WithRecorder(l audit.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.recorders = append(r.recorders, l)
		}
	}
}

// WithClock replaces the time source used for audit timestamps.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run evaluates g against the payload read from in and writes the decision
// to out. It always returns a decision.
func (r *Runner) Run(ctx context.Context, g Gate, in io.Reader, out io.Writer) hook.Decision {
	start := r.now()

	data, err := io.ReadAll(in)
	if err != nil {
		log.Printf("WARNING: reading hook payload for %s: %v", g.Name(), err)
		return hook.Allow()
	}

	ev, err := hook.ParseEvent(data)
	if err != nil {
		log.Printf("WARNING: %s: %v", g.Name(), err)
		return hook.Allow()
	}

	d := Evaluate(g, ev)

	if err := hook.WriteDecision(out, d); err != nil {
		log.Printf("ERROR: %s: %v", g.Name(), err)
	}

	entry := audit.NewEntry(g.Name(), ev, d, start, r.now().Sub(start))
	for _, rec := range r.recorders {
		r.record(ctx, rec, entry)
	}

	return d
}

// Evaluate calls g.Evaluate and converts a panic into Allow.
func Evaluate(g Gate, ev *hook.Event) (d hook.Decision) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("ERROR: gate %s panicked: %v", g.Name(), p)
			d = hook.Allow()
		}
	}()
	return g.Evaluate(ev)
}

func (r *Runner) record(ctx context.Context, rec audit.Logger, entry audit.Entry) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("ERROR: recorder panicked: %v", p)
		}
	}()
	if err := rec.Record(ctx, entry); err != nil {
		log.Printf("WARNING: recording %s decision: %v", entry.Gate, err)
	}
}
