package database

import (
	"fmt"
	"os"
	"path/filepath"

	"rfi-go/internal/config"
)

// FileName is the history database file inside data_dir.
const FileName = "history.db"

// NewDatabaseFromConfig creates the history database for the configured type.
// Type "none" disables history and has no database; callers check for it first.
func NewDatabaseFromConfig(cfg config.DatabaseConfig) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, FileName))
	case "memory":
		return NewSQLiteDatabase(":memory:")
	case "none":
		return nil, fmt.Errorf("history database is disabled (database type none)")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
