package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// Logger writes decision entries to a debug stream.
// Implementations must be safe for concurrent use.
type Logger interface {
	Record(ctx context.Context, e Entry) error
}

// logEntry is the JSON structure written by FileLogger.
type logEntry struct {
	Timestamp  string `json:"ts"`
	ID         string `json:"id"`
	Gate       string `json:"gate"`
	Event      string `json:"event,omitempty"`
	SessionID  string `json:"session,omitempty"`
	Tool       string `json:"tool,omitempty"`
	Decision   string `json:"decision"`
	Reason     string `json:"reason,omitempty"`
	DurationUS int64  `json:"duration_us"`
}

// FileLogger writes one JSON object per line (JSONL) to an io.Writer.
type FileLogger struct {
	w  io.Writer
	mu sync.Mutex
}

// NewFileLogger creates a FileLogger that writes to the given writer.
func NewFileLogger(w io.Writer) *FileLogger {
	return &FileLogger{w: w}
}

// Record writes a JSON line for e.
func (l *FileLogger) Record(_ context.Context, e Entry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	data, err := json.Marshal(logEntry{
		Timestamp:  ts.UTC().Format(time.RFC3339Nano),
		ID:         e.ID,
		Gate:       e.Gate,
		Event:      e.HookEvent,
		SessionID:  e.SessionID,
		Tool:       e.ToolName,
		Decision:   e.Decision,
		Reason:     e.Reason,
		DurationUS: e.Duration.Microseconds(),
	})
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := fmt.Fprintf(l.w, "%s\n", data); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	return nil
}
