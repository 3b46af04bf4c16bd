package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nixlim/devkit-gates/internal/audit"
	"github.com/nixlim/devkit-gates/internal/config"
)

var fixedNow = time.Date(2026, 4, 20, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, retentionDays int) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "gates.db"), retentionDays)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	store.now = func() time.Time { return fixedNow }
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func entry(id, gate, session, decision string, at time.Time) audit.Entry {
	e := audit.Entry{
		ID:        id,
		Timestamp: at,
		Gate:      gate,
		HookEvent: "PreToolUse",
		SessionID: session,
		ToolName:  "Bash",
		CWD:       "/work/repo",
		Decision:  decision,
		Duration:  1500 * time.Microsecond,
	}
	if decision == "block" {
		e.Reason = "Include a Task: trailer"
	}
	return e
}

func record(t *testing.T, store *SQLiteStore, entries ...audit.Entry) {
	t.Helper()
	for _, e := range entries {
		if err := store.Record(context.Background(), e); err != nil {
			t.Fatalf("Record(%s) failed: %v", e.ID, err)
		}
	}
}

func TestStore_ImplementsLogger(t *testing.T) {
	var _ audit.Logger = (*SQLiteStore)(nil)
}

func TestStore_RecordAndQuery(t *testing.T) {
	store := newTestStore(t, 30)

	base := fixedNow.Add(-time.Hour)
	record(t, store,
		entry("a", "commit-trace", "s1", "block", base),
		entry("b", "handoff", "s1", "allow", base.Add(time.Minute)),
		entry("c", "log-quality", "s2", "allow", base.Add(2*time.Minute)),
	)

	got := store.QueryDecisions(audit.Filter{})
	if len(got) != 3 {
		t.Fatalf("want 3 decisions, got %d", len(got))
	}
	if got[0].ID != "c" || got[2].ID != "a" {
		t.Errorf("want newest first, got %s..%s", got[0].ID, got[2].ID)
	}

	a := got[2]
	if !a.Timestamp.Equal(base) {
		t.Errorf("timestamp: want %v, got %v", base, a.Timestamp)
	}
	if a.Gate != "commit-trace" || a.SessionID != "s1" || a.ToolName != "Bash" || a.CWD != "/work/repo" {
		t.Errorf("fields not round-tripped: %+v", a)
	}
	if !a.Blocked() || a.Reason != "Include a Task: trailer" {
		t.Errorf("decision not round-tripped: %+v", a)
	}
	if a.Duration != 1500*time.Microsecond {
		t.Errorf("duration: want 1.5ms, got %v", a.Duration)
	}
	if got[1].Reason != "" {
		t.Errorf("allow should have no reason, got %q", got[1].Reason)
	}
}

func TestStore_RecordWithoutTimestampUsesClock(t *testing.T) {
	store := newTestStore(t, 30)

	e := entry("a", "handoff", "", "allow", time.Time{})
	e.HookEvent, e.ToolName, e.CWD = "", "", ""
	record(t, store, e)

	got := store.QueryDecisions(audit.Filter{})
	if len(got) != 1 {
		t.Fatalf("want 1 decision, got %d", len(got))
	}
	if !got[0].Timestamp.Equal(fixedNow) {
		t.Errorf("timestamp: want %v, got %v", fixedNow, got[0].Timestamp)
	}
	if got[0].SessionID != "" || got[0].ToolName != "" {
		t.Errorf("empty fields should read back empty: %+v", got[0])
	}
}

func TestStore_QueryFilters(t *testing.T) {
	store := newTestStore(t, 30)

	base := fixedNow.Add(-time.Hour)
	record(t, store,
		entry("1", "commit-trace", "s1", "block", base),
		entry("2", "commit-trace", "s2", "allow", base.Add(1*time.Second)),
		entry("3", "handoff", "s1", "block", base.Add(2*time.Second)),
		entry("4", "log-quality", "s2", "block", base.Add(3*time.Second)),
		entry("5", "log-quality", "s1", "allow", base.Add(4*time.Second)),
	)

	tests := []struct {
		name   string
		filter audit.Filter
		want   []string
	}{
		{"all", audit.Filter{}, []string{"5", "4", "3", "2", "1"}},
		{"by gate", audit.Filter{Gate: "commit-trace"}, []string{"2", "1"}},
		{"by session", audit.Filter{SessionID: "s2"}, []string{"4", "2"}},
		{"blocked only", audit.Filter{BlockedOnly: true}, []string{"4", "3", "1"}},
		{"combined", audit.Filter{Gate: "log-quality", BlockedOnly: true}, []string{"4"}},
		{"limit", audit.Filter{Limit: 2}, []string{"5", "4"}},
		{"no match", audit.Filter{Gate: "nope"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := store.QueryDecisions(tt.filter)
			if len(got) != len(tt.want) {
				t.Fatalf("want %v, got %d entries", tt.want, len(got))
			}
			for i, e := range got {
				if e.ID != tt.want[i] {
					t.Errorf("position %d: want %s, got %s", i, tt.want[i], e.ID)
				}
			}
		})
	}
}

func TestStore_DailySummaries(t *testing.T) {
	store := newTestStore(t, 30)

	yesterday := fixedNow.AddDate(0, 0, -1)
	record(t, store,
		entry("1", "commit-trace", "s1", "block", fixedNow.Add(-time.Hour)),
		entry("2", "commit-trace", "s1", "allow", fixedNow.Add(-30*time.Minute)),
		entry("3", "commit-trace", "s2", "allow", fixedNow.Add(-10*time.Minute)),
		entry("4", "handoff", "s1", "block", fixedNow.Add(-5*time.Minute)),
		entry("5", "commit-trace", "s3", "block", yesterday),
		entry("6", "log-quality", "s1", "allow", fixedNow.AddDate(0, 0, -20)),
	)

	got := store.QueryDailySummaries(7)
	want := []audit.DailySummary{
		{Date: "2026-04-20", Gate: "commit-trace", Allowed: 2, Blocked: 1, Sessions: 2},
		{Date: "2026-04-20", Gate: "handoff", Allowed: 0, Blocked: 1, Sessions: 1},
		{Date: "2026-04-19", Gate: "commit-trace", Allowed: 0, Blocked: 1, Sessions: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("want %d summaries, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("summary %d: want %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestStore_ConcurrentRecords(t *testing.T) {
	store := newTestStore(t, 30)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := entry(string(rune('a'+i)), "handoff", "s1", "allow", fixedNow.Add(-time.Duration(i)*time.Second))
			if err := store.Record(context.Background(), e); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Record failed: %v", err)
	}

	if got := store.QueryDecisions(audit.Filter{}); len(got) != 20 {
		t.Errorf("want 20 decisions, got %d", len(got))
	}
}

func TestNewStore_DisabledWithoutPath(t *testing.T) {
	store, err := NewStore(config.AuditConfig{})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if store != nil {
		t.Error("empty db_path should disable the store")
	}
}

func TestNewStore_OpensConfiguredPath(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "gates.db")

	store, err := NewStore(config.AuditConfig{DBPath: dbPath, RetentionDays: 30})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if store == nil {
		t.Fatal("expected a store")
	}
	_ = store.Close()
}
