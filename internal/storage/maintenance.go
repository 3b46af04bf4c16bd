package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	maintenanceInterval  = 1 * time.Hour
	vacuumInterval       = 7 * 24 * time.Hour
	summaryRetentionDays = 365

	keyLastMaintenance = "last_maintenance"
	keyLastVacuum      = "last_vacuum"
)

// maybeRunMaintenance runs a maintenance cycle when the previous one is
// older than maintenanceInterval. The store lives only as long as one hook
// invocation, so the schedule is kept in the database instead of a ticker.
// VACUUM is left to VacuumIfDue so it never runs on the hook path.
func (s *SQLiteStore) maybeRunMaintenance(ctx context.Context) error {
	now := s.now().UTC()

	last, err := s.maintenanceTime(ctx, keyLastMaintenance)
	if err != nil {
		return err
	}
	if !last.IsZero() && now.Sub(last) < maintenanceInterval {
		return nil
	}

	if err := s.runMaintenanceCycle(ctx); err != nil {
		return err
	}
	return s.setMaintenanceTime(ctx, keyLastMaintenance, now)
}

// VacuumIfDue compacts the database when the last VACUUM is older than a
// week. The first call on a database only starts the clock. It reports
// whether VACUUM ran.
func (s *SQLiteStore) VacuumIfDue(ctx context.Context) (bool, error) {
	now := s.now().UTC()

	lastVacuum, err := s.maintenanceTime(ctx, keyLastVacuum)
	if err != nil {
		return false, err
	}
	if lastVacuum.IsZero() {
		return false, s.setMaintenanceTime(ctx, keyLastVacuum, now)
	}
	if now.Sub(lastVacuum) < vacuumInterval {
		return false, nil
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return false, fmt.Errorf("VACUUM failed: %w", err)
	}
	return true, s.setMaintenanceTime(ctx, keyLastVacuum, now)
}

// runMaintenanceCycle folds whole days of decisions older than the retention
// window into daily_summaries, deletes them, and prunes old summaries.
func (s *SQLiteStore) runMaintenanceCycle(ctx context.Context) error {
	today := s.now().UTC()
	retentionCutoff := today.AddDate(0, 0, -s.retentionDays).Format("2006-01-02")
	summaryCutoff := today.AddDate(0, 0, -summaryRetentionDays).Format("2006-01-02")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO daily_summaries (date, gate, allowed, blocked, sessions)
		SELECT
			date(timestamp) AS date,
			gate,
			COUNT(CASE WHEN decision = 'allow' THEN 1 END),
			COUNT(CASE WHEN decision = 'block' THEN 1 END),
			COUNT(DISTINCT session_id)
		FROM decisions
		WHERE date(timestamp) < ?
		GROUP BY date(timestamp), gate
		ON CONFLICT(date, gate) DO UPDATE SET
			allowed = daily_summaries.allowed + excluded.allowed,
			blocked = daily_summaries.blocked + excluded.blocked,
			sessions = daily_summaries.sessions + excluded.sessions
	`, retentionCutoff)
	if err != nil {
		return fmt.Errorf("aggregating old decisions: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM decisions WHERE date(timestamp) < ?", retentionCutoff); err != nil {
		return fmt.Errorf("pruning old decisions: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM daily_summaries WHERE date < ?", summaryCutoff); err != nil {
		return fmt.Errorf("pruning old summaries: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing maintenance: %w", err)
	}
	return nil
}

func (s *SQLiteStore) maintenanceTime(ctx context.Context, key string) (time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM maintenance WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("reading %s: %w", key, err)
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		// An unreadable marker just triggers a fresh cycle.
		return time.Time{}, nil
	}
	return t, nil
}

func (s *SQLiteStore) setMaintenanceTime(ctx context.Context, key string, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO maintenance (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, t.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}
