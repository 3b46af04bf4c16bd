package hook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Decision is the outcome of a gate evaluation. The zero value allows.
type Decision struct {
	blocked bool
	reason  string
}

// Allow returns the allowing decision.
func Allow() Decision { return Decision{} }

// Block returns a blocking decision carrying a human-readable reason.
func Block(reason string) Decision {
	return Decision{blocked: true, reason: reason}
}

// Blocked reports whether the decision blocks the runtime.
func (d Decision) Blocked() bool { return d.blocked }

// Reason is the block reason, empty for Allow.
func (d Decision) Reason() string { return d.reason }

// String returns "allow" or "block".
func (d Decision) String() string {
	if d.blocked {
		return DecisionBlock
	}
	return DecisionAllow
}

// Decision strings used on the wire and in the audit trail.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// blockOutput is the JSON document the runtime reads on stdout.
type blockOutput struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

// Encode returns the wire form of d. Allow encodes to nil: absence of
// output is how the runtime learns that it may proceed.
func (d Decision) Encode() ([]byte, error) {
	if !d.blocked {
		return nil, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(blockOutput{Decision: DecisionBlock, Reason: d.reason}); err != nil {
		return nil, fmt.Errorf("encoding decision: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteDecision writes the wire form of d to w. Nothing is written for Allow.
func WriteDecision(w io.Writer, d Decision) error {
	data, err := d.Encode()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing decision: %w", err)
	}
	return nil
}
