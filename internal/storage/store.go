package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nixlim/devkit-gates/internal/audit"
)

// timeLayout sorts lexically in timestamp order and is understood by
// SQLite's date functions.
const timeLayout = "2006-01-02T15:04:05.000000Z"

const defaultQueryLimit = 500

// SQLiteStore persists gate decisions. Each hook invocation opens the store,
// records one decision and closes it again, so writes are synchronous.
type SQLiteStore struct {
	db            *sql.DB
	retentionDays int
	now           func() time.Time
}

func NewSQLiteStore(dbPath string, retentionDays int) (*SQLiteStore, error) {
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return &SQLiteStore{
		db:            db,
		retentionDays: retentionDays,
		now:           time.Now,
	}, nil
}

// Record implements audit.Logger.
func (s *SQLiteStore) Record(ctx context.Context, e audit.Entry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (id, timestamp, gate, hook_event, session_id, tool_name, cwd, decision, reason, duration_us)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		ts.UTC().Format(timeLayout),
		e.Gate,
		nullIfEmpty(e.HookEvent),
		nullIfEmpty(e.SessionID),
		nullIfEmpty(e.ToolName),
		nullIfEmpty(e.CWD),
		e.Decision,
		nullIfEmpty(e.Reason),
		e.Duration.Microseconds(),
	)
	if err != nil {
		return fmt.Errorf("inserting decision: %w", err)
	}

	if err := s.maybeRunMaintenance(ctx); err != nil {
		log.Printf("ERROR: maintenance cycle failed: %v", err)
	}
	return nil
}

// QueryDecisions returns recorded decisions matching f, newest first.
func (s *SQLiteStore) QueryDecisions(f audit.Filter) []audit.Entry {
	var (
		where []string
		args  []any
	)
	if f.Gate != "" {
		where = append(where, "gate = ?")
		args = append(args, f.Gate)
	}
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.BlockedOnly {
		where = append(where, "decision = 'block'")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	query := `SELECT id, timestamp, gate, COALESCE(hook_event, ''), COALESCE(session_id, ''),
		COALESCE(tool_name, ''), COALESCE(cwd, ''), decision, COALESCE(reason, ''), COALESCE(duration_us, 0)
		FROM decisions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		log.Printf("ERROR: querying decisions: %v", err)
		return nil
	}
	defer func() { _ = rows.Close() }()

	var entries []audit.Entry
	for rows.Next() {
		var (
			e          audit.Entry
			ts         string
			durationUS int64
		)
		if err := rows.Scan(&e.ID, &ts, &e.Gate, &e.HookEvent, &e.SessionID,
			&e.ToolName, &e.CWD, &e.Decision, &e.Reason, &durationUS); err != nil {
			log.Printf("ERROR: scanning decision row: %v", err)
			continue
		}
		e.Timestamp, _ = time.Parse(timeLayout, ts)
		e.Duration = time.Duration(durationUS) * time.Microsecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		log.Printf("ERROR: iterating decision rows: %v", err)
	}
	return entries
}

// QueryDailySummaries returns per-day, per-gate decision counts for the last
// days days, newest first. Days already folded into daily_summaries by
// maintenance are merged with days still held as raw decisions.
func (s *SQLiteStore) QueryDailySummaries(days int) []audit.DailySummary {
	cutoff := s.now().UTC().AddDate(0, 0, -days).Format("2006-01-02")

	rows, err := s.db.Query(`
		SELECT date, gate, SUM(allowed), SUM(blocked), SUM(sessions)
		FROM (
			SELECT date, gate, allowed, blocked, sessions
			FROM daily_summaries
			WHERE date >= ?

			UNION ALL

			SELECT
				date(d.timestamp) AS date,
				d.gate,
				COUNT(CASE WHEN d.decision = 'allow' THEN 1 END),
				COUNT(CASE WHEN d.decision = 'block' THEN 1 END),
				COUNT(DISTINCT d.session_id)
			FROM decisions d
			WHERE date(d.timestamp) >= ?
			AND NOT EXISTS (
				SELECT 1 FROM daily_summaries ds
				WHERE ds.date = date(d.timestamp) AND ds.gate = d.gate
			)
			GROUP BY date(d.timestamp), d.gate
		)
		GROUP BY date, gate
		ORDER BY date DESC, gate
	`, cutoff, cutoff)
	if err != nil {
		log.Printf("ERROR: querying daily summaries: %v", err)
		return nil
	}
	defer func() { _ = rows.Close() }()

	var summaries []audit.DailySummary
	for rows.Next() {
		var ds audit.DailySummary
		if err := rows.Scan(&ds.Date, &ds.Gate, &ds.Allowed, &ds.Blocked, &ds.Sessions); err != nil {
			log.Printf("ERROR: scanning daily summary row: %v", err)
			continue
		}
		summaries = append(summaries, ds)
	}
	if err := rows.Err(); err != nil {
		log.Printf("ERROR: iterating daily summary rows: %v", err)
	}
	return summaries
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
