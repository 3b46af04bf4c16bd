package storage

import (
	"github.com/nixlim/devkit-gates/internal/config"
)

// NewStore opens the decision history configured in cfg. It returns a nil
// store and no error when history is disabled (empty db_path). Callers on
// the hook path treat an error as "no history" rather than failing the gate.
func NewStore(cfg config.AuditConfig) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		return nil, nil
	}
	return NewSQLiteStore(config.ExpandTilde(cfg.DBPath), cfg.RetentionDays)
}
